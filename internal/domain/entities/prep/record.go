// Package prep defines the interview-prep domain entities: the durable
// per-prep record, the user-editable draft, and research results.
package prep

import (
	"encoding/json"
	"time"
)

// ResearchResult holds one fully-formed result blob from a research source.
// A result is written whole or not at all; there is no partial state.
type ResearchResult struct {
	SourceID    string          `json:"sourceId"`
	Payload     json.RawMessage `json:"payload"`
	Model       string          `json:"model,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// StarStory is a four-part behavioral answer draft keyed by question.
type StarStory struct {
	Situation string `json:"situation"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Result    string `json:"result"`
}

// CustomQuestion is a user-added question; order is user-controlled.
type CustomQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// UserDraft holds every client-owned field of a prep session. Each field is
// independently overwritable; last write wins, single active editor assumed.
type UserDraft struct {
	Checklist       map[string]bool      `json:"checklist,omitempty"`
	Notes           map[string]string    `json:"notes,omitempty"`
	CustomQuestions []CustomQuestion     `json:"customQuestions,omitempty"`
	StarStories     map[string]StarStory `json:"starStories,omitempty"`
	InterviewDate   *time.Time           `json:"interviewDate,omitempty"`
	Bookmarks       []string             `json:"bookmarks,omitempty"`
}

// Draft field names accepted by the draft synchronizer. Anything else is
// rejected at the handler boundary.
const (
	DraftFieldChecklist       = "checklist"
	DraftFieldNotes           = "notes"
	DraftFieldCustomQuestions = "customQuestions"
	DraftFieldStarStories     = "starStories"
	DraftFieldInterviewDate   = "interviewDate"
	DraftFieldBookmarks       = "bookmarks"
)

// IsDraftField reports whether name is a known user-draft field.
func IsDraftField(name string) bool {
	switch name {
	case DraftFieldChecklist, DraftFieldNotes, DraftFieldCustomQuestions,
		DraftFieldStarStories, DraftFieldInterviewDate, DraftFieldBookmarks:
		return true
	}
	return false
}

// PrepRecord is the durable per-prep-session document. The four research
// fields are each written at most once per generation run; presence of any
// one of them means generation has already run for this prep id.
type PrepRecord struct {
	PrepID                  int                        `json:"prepId"`
	CompanyResearch         *ResearchResult            `json:"companyResearch,omitempty"`
	StrategicNews           *ResearchResult            `json:"strategicNews,omitempty"`
	ValuesAlignment         *ResearchResult            `json:"valuesAlignment,omitempty"`
	CompetitiveIntelligence *ResearchResult            `json:"competitiveIntelligence,omitempty"`
	ChildFeatures           map[string]json.RawMessage `json:"childFeatureCache,omitempty"`
	UserDraft               map[string]json.RawMessage `json:"userDraft,omitempty"`
	UpdatedAt               time.Time                  `json:"updatedAt"`
}

// HasResearch reports whether any of the four top-level research fields is
// present. This is the single signal the orchestrator uses to decide that
// generation has already run.
func (r *PrepRecord) HasResearch() bool {
	if r == nil {
		return false
	}
	return r.CompanyResearch != nil || r.StrategicNews != nil ||
		r.ValuesAlignment != nil || r.CompetitiveIntelligence != nil
}

// Research returns the result for a source field name, or nil.
func (r *PrepRecord) Research(field string) *ResearchResult {
	switch field {
	case FieldCompanyResearch:
		return r.CompanyResearch
	case FieldStrategicNews:
		return r.StrategicNews
	case FieldValuesAlignment:
		return r.ValuesAlignment
	case FieldCompetitiveIntelligence:
		return r.CompetitiveIntelligence
	}
	return nil
}

// SetResearch assigns the result for a source field name.
func (r *PrepRecord) SetResearch(field string, result *ResearchResult) {
	switch field {
	case FieldCompanyResearch:
		r.CompanyResearch = result
	case FieldStrategicNews:
		r.StrategicNews = result
	case FieldValuesAlignment:
		r.ValuesAlignment = result
	case FieldCompetitiveIntelligence:
		r.CompetitiveIntelligence = result
	}
}

// Clone returns a copy safe to hand outside the cache lock. The UserDraft
// and ChildFeatures maps are copied; research results are shared because
// they are written whole and never mutated in place.
func (r *PrepRecord) Clone() *PrepRecord {
	if r == nil {
		return nil
	}
	copied := *r
	if r.UserDraft != nil {
		copied.UserDraft = make(map[string]json.RawMessage, len(r.UserDraft))
		for k, v := range r.UserDraft {
			copied.UserDraft[k] = v
		}
	}
	if r.ChildFeatures != nil {
		copied.ChildFeatures = make(map[string]json.RawMessage, len(r.ChildFeatures))
		for k, v := range r.ChildFeatures {
			copied.ChildFeatures[k] = v
		}
	}
	return &copied
}

// ResearchFields is a field-name → result map used by additive merge writes.
// Only the fields present in the map are touched by a merge.
type ResearchFields struct {
	Research      map[string]*ResearchResult
	ChildFeatures map[string]json.RawMessage
}

// IsEmpty reports whether the merge carries nothing to write.
func (f ResearchFields) IsEmpty() bool {
	return len(f.Research) == 0 && len(f.ChildFeatures) == 0
}

// Briefing carries the company/role context the research sources consume.
type Briefing struct {
	Company  string `json:"company"`
	Role     string `json:"role"`
	JobDesc  string `json:"jobDescription,omitempty"`
	Industry string `json:"industry,omitempty"`
}
