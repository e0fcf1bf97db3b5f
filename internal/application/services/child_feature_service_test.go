package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/research"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
)

// fakeResearchClient returns a fixed payload or error.
type fakeResearchClient struct {
	mu      sync.Mutex
	calls   int
	payload json.RawMessage
	err     error
}

func (c *fakeResearchClient) GenerateResearch(ctx context.Context, briefing prep.Briefing, source prep.SourceDescriptor) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.payload, nil
}

func (c *fakeResearchClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newFeatureHarness(t *testing.T, repo *fakePrepRepo, client *fakeResearchClient) (*ChildFeatureService, *tenant.Context) {
	t.Helper()
	tenantCtx := newTestContext(t, repo)
	logger := tenantCtx.Logger
	perfTracker := performance.NewTracker(logger.Perf(), 100*time.Millisecond)
	prepService := NewPrepService(logger, perfTracker)

	service := NewChildFeatureService(logger, perfTracker, prepService)
	service.SetClientFactory(func(*tenant.Context) research.Client { return client })
	return service, tenantCtx
}

func TestGenerateChildFeatureCachesResult(t *testing.T) {
	repo := newFakePrepRepo()
	client := &fakeResearchClient{payload: json.RawMessage(`{"questions":[]}`)}
	service, tenantCtx := newFeatureHarness(t, repo, client)

	payload, cached, err := service.Generate(context.Background(), tenantCtx, 1, prep.FeatureBehavioralQuestions, testBriefing())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if cached {
		t.Fatal("first call must not report cached")
	}
	if string(payload) != `{"questions":[]}` {
		t.Fatalf("payload = %s", payload)
	}

	// Durable and ephemeral tiers both hold the feature now.
	record := repo.record(1)
	if record == nil || string(record.ChildFeatures[prep.FeatureBehavioralQuestions]) != `{"questions":[]}` {
		t.Fatal("feature missing from durable record")
	}

	// Second call is served from cache without another model call.
	payload, cached, err = service.Generate(context.Background(), tenantCtx, 1, prep.FeatureBehavioralQuestions, testBriefing())
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if !cached {
		t.Fatal("second call must be served from cache")
	}
	if string(payload) != `{"questions":[]}` {
		t.Fatalf("cached payload = %s", payload)
	}
	if client.callCount() != 1 {
		t.Fatalf("model calls = %d, want 1", client.callCount())
	}
}

func TestGenerateChildFeatureRejectsUnknownFeature(t *testing.T) {
	repo := newFakePrepRepo()
	client := &fakeResearchClient{payload: json.RawMessage(`{}`)}
	service, tenantCtx := newFeatureHarness(t, repo, client)

	if _, _, err := service.Generate(context.Background(), tenantCtx, 1, "horoscope", testBriefing()); err == nil {
		t.Fatal("unknown feature must be rejected")
	}
	if client.callCount() != 0 {
		t.Fatal("rejected feature must not reach the model")
	}
}

func TestGenerateChildFeatureSurfacesModelError(t *testing.T) {
	repo := newFakePrepRepo()
	client := &fakeResearchClient{err: errors.New("model unavailable")}
	service, tenantCtx := newFeatureHarness(t, repo, client)

	_, _, err := service.Generate(context.Background(), tenantCtx, 2, prep.FeatureTechnicalQuestions, testBriefing())
	if err == nil {
		t.Fatal("model failure must surface to the caller")
	}
	if repo.mergeCount() != 0 {
		t.Fatal("failed generation must not merge anything")
	}

	// Progress tracker still settles so the client stops polling.
	status, found := service.Progress("test", 2, prep.FeatureTechnicalQuestions)
	if !found || status.Percent != 100 {
		t.Fatalf("progress = (%v, %v), want settled at 100", status.Percent, found)
	}
}
