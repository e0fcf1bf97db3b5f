package prep

// Field names of the four top-level research results. These double as stage
// ids for fan-out tracking and multi-stage progress display.
const (
	FieldCompanyResearch         = "companyResearch"
	FieldStrategicNews           = "strategicNews"
	FieldValuesAlignment         = "valuesAlignment"
	FieldCompetitiveIntelligence = "competitiveIntelligence"
)

// Child feature cache keys. Each is independently absent-or-present and
// independently regenerable.
const (
	FeatureBehavioralQuestions = "behavioralQuestions"
	FeatureTechnicalQuestions  = "technicalQuestions"
	FeatureCommonQuestions     = "commonQuestions"
	FeatureCertifications      = "certificationRecommendations"
)

// IsChildFeature reports whether name is a known child feature cache key.
func IsChildFeature(name string) bool {
	switch name {
	case FeatureBehavioralQuestions, FeatureTechnicalQuestions,
		FeatureCommonQuestions, FeatureCertifications:
		return true
	}
	return false
}

// SourceDescriptor describes one research source for the fan-out: which
// record field it fills and the prompt template its call carries.
type SourceDescriptor struct {
	ID     string // stage id, equals the record field name
	Label  string
	Prompt string
}

// DefaultSources returns the four research sources in declared stage order.
// The order matters only for progress display; completions may interleave
// arbitrarily.
func DefaultSources() []SourceDescriptor {
	return []SourceDescriptor{
		{
			ID:    FieldCompanyResearch,
			Label: "Company research",
			Prompt: "Research the company for an interview candidate. Return JSON with keys: " +
				"overview, products, culture, recentGrowth, interviewTips.",
		},
		{
			ID:    FieldStrategicNews,
			Label: "Strategic news",
			Prompt: "Summarize recent strategic news and announcements relevant to an " +
				"interview at this company. Return JSON with keys: headlines, analysis, talkingPoints.",
		},
		{
			ID:    FieldValuesAlignment,
			Label: "Values alignment",
			Prompt: "Map the company's stated values to themes a candidate should speak to. " +
				"Return JSON with keys: values, alignmentPrompts, exampleAnswers.",
		},
		{
			ID:    FieldCompetitiveIntelligence,
			Label: "Competitive intelligence",
			Prompt: "Outline the company's competitive landscape for interview discussion. " +
				"Return JSON with keys: competitors, positioning, differentiators.",
		},
	}
}

// Outcome statuses for a settled research call.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SourceOutcome is the settled result of one research call. A failed call
// simply carries no value; it is never a hard failure for the fan-out.
type SourceOutcome struct {
	SourceID string
	Status   string
	Value    *ResearchResult
	Err      error
}
