package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/progress"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/research"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
)

var featurePrompts = map[string]string{
	prep.FeatureBehavioralQuestions: "Generate likely behavioral interview questions for this role with " +
		"suggested answer frameworks. Return JSON with key: questions (array of {question, framework}).",
	prep.FeatureTechnicalQuestions: "Generate likely technical interview questions for this role with " +
		"preparation pointers. Return JSON with key: questions (array of {question, pointers}).",
	prep.FeatureCommonQuestions: "List common interview questions for this role with strong sample " +
		"answers tailored to the company. Return JSON with key: questions (array of {question, sampleAnswer}).",
	prep.FeatureCertifications: "Recommend certifications that strengthen a candidate for this role. " +
		"Return JSON with key: certifications (array of {name, provider, rationale}).",
}

// ChildFeatureService generates on-demand child features (question packs,
// certification recommendations). Each feature is independently cached in
// the prep record and regenerated only when absent.
type ChildFeatureService struct {
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	prepService *PrepService
	newClient   func(tenantCtx *tenant.Context) research.Client

	trackers map[string]*progress.Tracker
	mu       sync.Mutex
}

// NewChildFeatureService creates a child feature generator.
func NewChildFeatureService(logger *logging.ChanneledLogger, perfTracker *performance.Tracker, prepService *PrepService) *ChildFeatureService {
	return &ChildFeatureService{
		logger:      logger,
		perfTracker: perfTracker,
		prepService: prepService,
		newClient: func(tenantCtx *tenant.Context) research.Client {
			return research.NewLemurClient(tenantCtx.Config.AAIAPIKey)
		},
		trackers: make(map[string]*progress.Tracker),
	}
}

// SetClientFactory overrides the research client construction, for tests.
func (s *ChildFeatureService) SetClientFactory(factory func(tenantCtx *tenant.Context) research.Client) {
	s.newClient = factory
}

func featureKey(tenantID string, prepID int, feature string) string {
	return fmt.Sprintf("%s:%d:%s", tenantID, prepID, feature)
}

// Generate returns the feature payload, generating and caching it on first
// request. The second return reports whether the payload came from cache.
func (s *ChildFeatureService) Generate(ctx context.Context, tenantCtx *tenant.Context, prepID int, feature string, briefing prep.Briefing) (json.RawMessage, bool, error) {
	if !prep.IsChildFeature(feature) {
		return nil, false, fmt.Errorf("unknown child feature %q", feature)
	}

	record, err := s.prepService.GetRecord(tenantCtx, prepID)
	if err != nil {
		return nil, false, err
	}
	if cached, ok := record.ChildFeatures[feature]; ok {
		return cached, true, nil
	}

	marker := s.perfTracker.StartOperation("generate_child_feature", tenantCtx.TenantID)
	marker.AddMetadata("feature", feature)
	defer marker.Complete()

	// Child feature calls carry no stage signal, so progress is estimated
	// from elapsed time against a configured target.
	tracker := progress.NewEstimated([]string{feature}, config.EstimatedFeatureDuration)
	key := featureKey(tenantCtx.TenantID, prepID, feature)
	s.mu.Lock()
	s.trackers[key] = tracker
	s.mu.Unlock()

	client := s.newClient(tenantCtx)
	source := prep.SourceDescriptor{ID: feature, Label: feature, Prompt: featurePrompts[feature]}

	payload, err := client.GenerateResearch(ctx, briefing, source)
	tracker.MarkComplete()
	if err != nil {
		marker.SetError(err)
		s.logger.LogError(logging.ChannelGeneration, "generate_child_feature", err, tenantCtx.TenantID,
			map[string]any{"prepId": prepID, "feature": feature})
		return nil, false, err
	}

	fields := prep.ResearchFields{ChildFeatures: map[string]json.RawMessage{feature: payload}}
	if err := tenantCtx.PrepRepo().MergeResearch(prepID, fields); err != nil {
		marker.SetError(err)
		s.logger.LogError(logging.ChannelGeneration, "merge_child_feature", err, tenantCtx.TenantID,
			map[string]any{"prepId": prepID, "feature": feature})
	}
	tenantCtx.GetCacheManager().Preps().ApplyResearch(tenantCtx.TenantID, prepID, fields)

	marker.SetSuccess(true)
	return payload, false, nil
}

// Progress returns the estimated progress for an in-flight feature call.
func (s *ChildFeatureService) Progress(tenantID string, prepID int, feature string) (progress.Status, bool) {
	s.mu.Lock()
	tracker, exists := s.trackers[featureKey(tenantID, prepID, feature)]
	s.mu.Unlock()

	if !exists {
		return progress.Status{}, false
	}
	return tracker.Snapshot(), true
}
