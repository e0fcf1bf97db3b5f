package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/progress"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/repositories"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/caching/manager"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
)

const settleTimeout = 5 * time.Second

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: false,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

func newTestContext(t *testing.T, repo repositories.PrepRepository) *tenant.Context {
	t.Helper()
	logger := newTestLogger(t)
	cacheManager := manager.NewManager(logger, manager.Config{
		PrepRecordTTL:  time.Hour,
		DraftMirrorTTL: time.Hour,
	})
	tenantCtx := &tenant.Context{
		TenantID:     "test",
		Config:       &tenant.Config{TenantID: "test"},
		Status:       "active",
		CacheManager: cacheManager,
		Logger:       logger,
	}
	tenantCtx.SetPrepRepo(repo)
	return tenantCtx
}

// fakePrepRepo is an in-memory PrepRepository with call counters. Setting
// getErr makes every read fail with that error.
type fakePrepRepo struct {
	mu          sync.Mutex
	records     map[int]*prep.PrepRecord
	getErr      error
	mergeCalls  int
	draftWrites []struct {
		PrepID int
		Field  string
		Value  json.RawMessage
	}
}

func newFakePrepRepo() *fakePrepRepo {
	return &fakePrepRepo{records: map[int]*prep.PrepRecord{}}
}

func (r *fakePrepRepo) GetRecord(prepID int) (*prep.PrepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	record, exists := r.records[prepID]
	if !exists {
		return nil, repositories.ErrPrepNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *fakePrepRepo) MergeResearch(prepID int, fields prep.ResearchFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeCalls++

	record, exists := r.records[prepID]
	if !exists {
		record = &prep.PrepRecord{PrepID: prepID}
		r.records[prepID] = record
	}
	for field, result := range fields.Research {
		record.SetResearch(field, result)
	}
	for feature, payload := range fields.ChildFeatures {
		if record.ChildFeatures == nil {
			record.ChildFeatures = map[string]json.RawMessage{}
		}
		record.ChildFeatures[feature] = payload
	}
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *fakePrepRepo) WriteDraftField(prepID int, field string, value json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[prepID]
	if !exists {
		record = &prep.PrepRecord{PrepID: prepID}
		r.records[prepID] = record
	}
	if record.UserDraft == nil {
		record.UserDraft = map[string]json.RawMessage{}
	}
	record.UserDraft[field] = value

	r.draftWrites = append(r.draftWrites, struct {
		PrepID int
		Field  string
		Value  json.RawMessage
	}{prepID, field, value})
	return nil
}

func (r *fakePrepRepo) mergeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mergeCalls
}

func (r *fakePrepRepo) record(prepID int) *prep.PrepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[prepID]
}

func (r *fakePrepRepo) seed(record *prep.PrepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.PrepID] = record
}

// fakeBroadcaster records broadcast calls without any transport.
type fakeBroadcaster struct {
	mu            sync.Mutex
	progressCalls int
	settledCalls  int
	lastRecord    *prep.PrepRecord
	lastFailed    []string
}

func (b *fakeBroadcaster) AddClient(tenantID string, prepID int) chan string {
	return make(chan string, 1)
}
func (b *fakeBroadcaster) RemoveClient(ch chan string, tenantID string, prepID int) {}
func (b *fakeBroadcaster) GetConnectionCount(tenantID string, prepID int) int      { return 0 }

func (b *fakeBroadcaster) BroadcastProgress(tenantID string, prepID int, status progress.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progressCalls++
}

func (b *fakeBroadcaster) BroadcastSettled(tenantID string, prepID int, record *prep.PrepRecord, failedSources []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settledCalls++
	b.lastRecord = record
	b.lastFailed = append([]string(nil), failedSources...)
}

func (b *fakeBroadcaster) settled() (int, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settledCalls, b.lastFailed
}

func (b *fakeBroadcaster) settledRecord() *prep.PrepRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRecord
}

// fakeFetcher settles every requested source, failing the ones named in
// fail. An optional gate blocks the fan-out until released.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
	gate  chan struct{}
}

func (f *fakeFetcher) FetchAll(ctx context.Context, briefing prep.Briefing, sources []prep.SourceDescriptor, onSettled func(prep.SourceOutcome)) []prep.SourceOutcome {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	outcomes := make([]prep.SourceOutcome, 0, len(sources))
	for _, source := range sources {
		outcome := prep.SourceOutcome{SourceID: source.ID, Status: prep.OutcomeSuccess}
		if f.fail[source.ID] {
			outcome.Status = prep.OutcomeFailure
		} else {
			outcome.Value = &prep.ResearchResult{
				SourceID:    source.ID,
				Payload:     json.RawMessage(`{"ok":true}`),
				GeneratedAt: time.Now().UTC(),
			}
		}
		if onSettled != nil {
			onSettled(outcome)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newGenerationHarness(t *testing.T, repo *fakePrepRepo, fetcher *fakeFetcher) (*GenerationService, *tenant.Context, *fakeBroadcaster) {
	t.Helper()
	tenantCtx := newTestContext(t, repo)
	broadcaster := &fakeBroadcaster{}
	logger := tenantCtx.Logger
	perfTracker := performance.NewTracker(logger.Perf(), 100*time.Millisecond)

	service := NewGenerationService(logger, perfTracker, broadcaster)
	service.SetFetcherFactory(func(*tenant.Context) Fetcher { return fetcher })
	return service, tenantCtx, broadcaster
}

func testBriefing() prep.Briefing {
	return prep.Briefing{Company: "Acme", Role: "Staff Engineer"}
}

func TestStartGenerationMergesAllSources(t *testing.T) {
	repo := newFakePrepRepo()
	fetcher := &fakeFetcher{}
	service, tenantCtx, broadcaster := newGenerationHarness(t, repo, fetcher)

	started, err := service.StartGeneration(tenantCtx, 7, testBriefing(), false)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if !started {
		t.Fatal("expected a new run to start")
	}
	if !service.WaitForSettled("test", 7, settleTimeout) {
		t.Fatal("run did not settle")
	}

	if repo.mergeCount() != 1 {
		t.Fatalf("merge calls = %d, want 1", repo.mergeCount())
	}
	record := repo.record(7)
	if record == nil || !record.HasResearch() {
		t.Fatal("durable record should hold research after settle")
	}
	for _, source := range prep.DefaultSources() {
		if record.Research(source.ID) == nil {
			t.Errorf("research field %s missing after merge", source.ID)
		}
	}

	settledCalls, failed := broadcaster.settled()
	if settledCalls != 1 {
		t.Fatalf("settled broadcasts = %d, want 1", settledCalls)
	}
	if len(failed) != 0 {
		t.Fatalf("failedSources = %v, want none", failed)
	}

	// The terminal event carries the merged record so clients hydrate
	// without a follow-up read.
	settledRecord := broadcaster.settledRecord()
	if settledRecord == nil || !settledRecord.HasResearch() {
		t.Fatal("settled event must carry the merged record")
	}
	for _, source := range prep.DefaultSources() {
		if settledRecord.Research(source.ID) == nil {
			t.Errorf("settled record missing research field %s", source.ID)
		}
	}

	status, found := service.Progress("test", 7)
	if !found || status.Percent != 100 {
		t.Fatalf("progress = %v found=%v, want 100", status.Percent, found)
	}

	// Ephemeral tier was updated without a second durable read.
	cached, hit := tenantCtx.GetCacheManager().Preps().GetRecord("test", 7)
	if !hit || !cached.HasResearch() {
		t.Fatal("ephemeral record should hold research after settle")
	}
}

func TestStartGenerationSingleFlight(t *testing.T) {
	repo := newFakePrepRepo()
	gate := make(chan struct{})
	fetcher := &fakeFetcher{gate: gate}
	service, tenantCtx, _ := newGenerationHarness(t, repo, fetcher)

	started, err := service.StartGeneration(tenantCtx, 3, testBriefing(), false)
	if err != nil || !started {
		t.Fatalf("first start = (%v, %v), want (true, nil)", started, err)
	}
	if !service.IsGenerating("test", 3) {
		t.Fatal("run should be in flight")
	}

	// Progress is readable as soon as the run is in flight.
	if status, found := service.Progress("test", 3); !found || status.Percent != 0 {
		t.Fatalf("progress = (%v, %v), want (0, true) before any stage settles", status.Percent, found)
	}

	// A second start while the first is in flight is a silent no-op.
	started, err = service.StartGeneration(tenantCtx, 3, testBriefing(), false)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if started {
		t.Fatal("second start must not launch a concurrent run")
	}

	close(gate)
	if !service.WaitForSettled("test", 3, settleTimeout) {
		t.Fatal("run did not settle")
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", fetcher.callCount())
	}
}

func TestStartGenerationCacheHitSkipsFetch(t *testing.T) {
	repo := newFakePrepRepo()
	repo.seed(&prep.PrepRecord{
		PrepID: 42,
		CompanyResearch: &prep.ResearchResult{
			SourceID:    prep.FieldCompanyResearch,
			Payload:     json.RawMessage(`{"cached":true}`),
			GeneratedAt: time.Now().UTC(),
		},
	})
	fetcher := &fakeFetcher{}
	service, tenantCtx, broadcaster := newGenerationHarness(t, repo, fetcher)

	started, err := service.StartGeneration(tenantCtx, 42, testBriefing(), false)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if started {
		t.Fatal("cached research must not start a run")
	}
	if fetcher.callCount() != 0 {
		t.Fatalf("fetch calls = %d, want 0 on cache hit", fetcher.callCount())
	}

	// The client still gets a terminal snapshot and a settled event.
	status, found := service.Progress("test", 42)
	if !found || status.Percent != 100 {
		t.Fatalf("progress = %v found=%v, want 100", status.Percent, found)
	}
	settledCalls, failed := broadcaster.settled()
	if settledCalls != 1 || len(failed) != 0 {
		t.Fatalf("settled = (%d, %v), want (1, none)", settledCalls, failed)
	}
}

func TestStartGenerationDurableReadFailureFallsThrough(t *testing.T) {
	repo := newFakePrepRepo()
	repo.getErr = errors.New("connection reset by peer")
	fetcher := &fakeFetcher{}
	service, tenantCtx, _ := newGenerationHarness(t, repo, fetcher)

	// A failed durable read is treated as never generated: the run starts
	// and fans out instead of surfacing the read error.
	started, err := service.StartGeneration(tenantCtx, 13, testBriefing(), false)
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if !started {
		t.Fatal("read failure must fall through to a generation run")
	}
	if !service.WaitForSettled("test", 13, settleTimeout) {
		t.Fatal("run did not settle")
	}

	if fetcher.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", fetcher.callCount())
	}
	if repo.mergeCount() != 1 {
		t.Fatalf("merge calls = %d, want 1", repo.mergeCount())
	}
}

func TestStartGenerationPartialFailure(t *testing.T) {
	repo := newFakePrepRepo()
	fetcher := &fakeFetcher{fail: map[string]bool{prep.FieldStrategicNews: true}}
	service, tenantCtx, broadcaster := newGenerationHarness(t, repo, fetcher)

	started, err := service.StartGeneration(tenantCtx, 9, testBriefing(), false)
	if err != nil || !started {
		t.Fatalf("start = (%v, %v), want (true, nil)", started, err)
	}
	if !service.WaitForSettled("test", 9, settleTimeout) {
		t.Fatal("run did not settle")
	}

	record := repo.record(9)
	if record == nil {
		t.Fatal("durable record missing")
	}
	if record.StrategicNews != nil {
		t.Error("failed source must not write a research field")
	}
	if record.CompanyResearch == nil || record.ValuesAlignment == nil || record.CompetitiveIntelligence == nil {
		t.Error("succeeded sources must all be merged")
	}

	failed := service.FailedSources("test", 9)
	if len(failed) != 1 || failed[0] != prep.FieldStrategicNews {
		t.Fatalf("failedSources = %v, want [strategicNews]", failed)
	}

	// Failed sources still count as settled stages for display.
	status, _ := service.Progress("test", 9)
	if status.Percent != 100 {
		t.Fatalf("progress = %v, want 100 after all stages settle", status.Percent)
	}

	_, broadcastFailed := broadcaster.settled()
	if len(broadcastFailed) != 1 || broadcastFailed[0] != prep.FieldStrategicNews {
		t.Fatalf("broadcast failedSources = %v, want [strategicNews]", broadcastFailed)
	}
}

func TestStartGenerationTotalFailure(t *testing.T) {
	repo := newFakePrepRepo()
	fetcher := &fakeFetcher{fail: map[string]bool{
		prep.FieldCompanyResearch:         true,
		prep.FieldStrategicNews:           true,
		prep.FieldValuesAlignment:         true,
		prep.FieldCompetitiveIntelligence: true,
	}}
	service, tenantCtx, _ := newGenerationHarness(t, repo, fetcher)

	started, err := service.StartGeneration(tenantCtx, 11, testBriefing(), false)
	if err != nil || !started {
		t.Fatalf("start = (%v, %v), want (true, nil)", started, err)
	}
	if !service.WaitForSettled("test", 11, settleTimeout) {
		t.Fatal("run did not settle")
	}

	if repo.mergeCount() != 0 {
		t.Fatalf("merge calls = %d, want 0 when nothing succeeded", repo.mergeCount())
	}
	if len(service.FailedSources("test", 11)) != 4 {
		t.Fatalf("failedSources = %v, want all four", service.FailedSources("test", 11))
	}

	// The run settles normally so the client can offer a retry.
	if service.IsGenerating("test", 11) {
		t.Fatal("run must not stay in flight after total failure")
	}
}

func TestRegenerateOverwritesResearchKeepsDraft(t *testing.T) {
	repo := newFakePrepRepo()
	draft := json.RawMessage(`{"q1":true}`)
	repo.seed(&prep.PrepRecord{
		PrepID: 5,
		CompanyResearch: &prep.ResearchResult{
			SourceID:    prep.FieldCompanyResearch,
			Payload:     json.RawMessage(`{"stale":true}`),
			GeneratedAt: time.Now().UTC().Add(-time.Hour),
		},
		UserDraft: map[string]json.RawMessage{"checklist": draft},
	})
	fetcher := &fakeFetcher{}
	service, tenantCtx, _ := newGenerationHarness(t, repo, fetcher)

	started, err := service.StartGeneration(tenantCtx, 5, testBriefing(), true)
	if err != nil || !started {
		t.Fatalf("forced start = (%v, %v), want (true, nil)", started, err)
	}
	if !service.WaitForSettled("test", 5, settleTimeout) {
		t.Fatal("run did not settle")
	}

	if fetcher.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1 on forced regenerate", fetcher.callCount())
	}

	record := repo.record(5)
	if string(record.CompanyResearch.Payload) != `{"ok":true}` {
		t.Errorf("companyResearch = %s, want fresh payload", record.CompanyResearch.Payload)
	}
	if string(record.UserDraft["checklist"]) != string(draft) {
		t.Errorf("userDraft.checklist = %s, regenerate must not touch the draft", record.UserDraft["checklist"])
	}
}
