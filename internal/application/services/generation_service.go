// Package services provides application-level orchestration services
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/progress"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/repositories"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/messaging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/research"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
)

// Fetcher fans a briefing out to every research source and returns settled
// outcomes. Satisfied by research.Fetcher; tests substitute fakes.
type Fetcher interface {
	FetchAll(ctx context.Context, briefing prep.Briefing, sources []prep.SourceDescriptor, onSettled func(prep.SourceOutcome)) []prep.SourceOutcome
}

// Generation run phases. A run is single-flight per prep id: a second
// start while one is generating is a no-op.
type runPhase string

const (
	phaseCacheCheck runPhase = "cache-check"
	phaseGenerating runPhase = "generating"
	phaseSettled    runPhase = "settled"
)

// ErrGenerationFailed is returned when every research source failed and
// nothing could be merged.
var ErrGenerationFailed = errors.New("all research sources failed")

type generationRun struct {
	phase         runPhase
	tracker       *progress.Tracker
	failedSources []string
	done          chan struct{}
}

// GenerationService orchestrates research generation: cache check,
// parallel fan-out, additive merge, progress broadcast.
type GenerationService struct {
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	broadcaster messaging.Broadcaster
	newFetcher  func(tenantCtx *tenant.Context) Fetcher

	runs map[string]*generationRun
	mu   sync.Mutex
}

// NewGenerationService creates a generation orchestrator.
func NewGenerationService(logger *logging.ChanneledLogger, perfTracker *performance.Tracker, broadcaster messaging.Broadcaster) *GenerationService {
	return &GenerationService{
		logger:      logger,
		perfTracker: perfTracker,
		broadcaster: broadcaster,
		newFetcher: func(tenantCtx *tenant.Context) Fetcher {
			client := research.NewLemurClient(tenantCtx.Config.AAIAPIKey)
			return research.NewFetcher(client, tenantCtx.Logger, tenantCtx.TenantID)
		},
		runs: make(map[string]*generationRun),
	}
}

// SetFetcherFactory overrides the fetcher construction, for tests.
func (s *GenerationService) SetFetcherFactory(factory func(tenantCtx *tenant.Context) Fetcher) {
	s.newFetcher = factory
}

func runKey(tenantID string, prepID int) string {
	return fmt.Sprintf("%s:%d", tenantID, prepID)
}

// StartGeneration begins a generation run for a prep id. Returns true if a
// new run was started, false when research is already cached or a run is
// already in flight. force skips the cache-presence check and regenerates,
// overwriting research fields while leaving the user draft untouched.
func (s *GenerationService) StartGeneration(tenantCtx *tenant.Context, prepID int, briefing prep.Briefing, force bool) (bool, error) {
	key := runKey(tenantCtx.TenantID, prepID)

	s.mu.Lock()
	if run, exists := s.runs[key]; exists && run.phase != phaseSettled {
		s.mu.Unlock()
		s.logger.Generation().Debug("Generation already in flight, ignoring start",
			"tenantId", tenantCtx.TenantID, "prepId", prepID)
		return false, nil
	}
	run := &generationRun{phase: phaseCacheCheck, done: make(chan struct{})}
	s.runs[key] = run
	s.mu.Unlock()

	record := s.loadRecord(tenantCtx, prepID)

	if record.HasResearch() && !force {
		// Cache hit: generation already ran for this prep. Settle without
		// fetching anything.
		s.settleCached(tenantCtx, prepID, record, run)
		return false, nil
	}

	s.mu.Lock()
	run.tracker = progress.NewMultiStage(stageIDs())
	run.phase = phaseGenerating
	s.mu.Unlock()

	s.logger.Generation().Info("Generation run started",
		"tenantId", tenantCtx.TenantID, "prepId", prepID, "force", force)

	go s.run(tenantCtx, prepID, briefing, run)

	return true, nil
}

// loadRecord reads through the two-tier cache: ephemeral first, then the
// durable store. A missing row is an empty record, and a failed durable
// read is treated the same way: logged, then the run proceeds as if the
// prep was never generated.
func (s *GenerationService) loadRecord(tenantCtx *tenant.Context, prepID int) *prep.PrepRecord {
	cache := tenantCtx.GetCacheManager().Preps()

	if record, hit := cache.GetRecord(tenantCtx.TenantID, prepID); hit {
		return record
	}

	record, err := tenantCtx.PrepRepo().GetRecord(prepID)
	if err != nil {
		if !errors.Is(err, repositories.ErrPrepNotFound) {
			s.logger.LogError(logging.ChannelDatabase, "load_prep_record", err, tenantCtx.TenantID,
				map[string]any{"prepId": prepID})
		}
		return &prep.PrepRecord{PrepID: prepID}
	}

	cache.SetRecord(tenantCtx.TenantID, prepID, record)
	return record
}

func (s *GenerationService) settleCached(tenantCtx *tenant.Context, prepID int, record *prep.PrepRecord, run *generationRun) {
	tracker := progress.NewMultiStage(stageIDs())
	for _, id := range stageIDs() {
		tracker.CompleteStage(id)
	}
	tracker.MarkComplete()

	s.mu.Lock()
	run.tracker = tracker
	run.phase = phaseSettled
	close(run.done)
	s.mu.Unlock()

	s.logger.Generation().Info("Generation skipped, research already cached",
		"tenantId", tenantCtx.TenantID, "prepId", prepID)

	s.broadcaster.BroadcastProgress(tenantCtx.TenantID, prepID, tracker.Snapshot())
	s.broadcaster.BroadcastSettled(tenantCtx.TenantID, prepID, record, nil)
}

func (s *GenerationService) run(tenantCtx *tenant.Context, prepID int, briefing prep.Briefing, run *generationRun) {
	marker := s.perfTracker.StartOperation("generation_run", tenantCtx.TenantID)
	marker.AddMetadata("prepId", prepID)
	defer marker.Complete()

	fetcher := s.newFetcher(tenantCtx)

	outcomes := fetcher.FetchAll(context.Background(), briefing, prep.DefaultSources(), func(outcome prep.SourceOutcome) {
		// Attempted-but-failed counts as a settled stage; display progress
		// reflects work done, not work succeeded.
		run.tracker.CompleteStage(outcome.SourceID)
		s.broadcaster.BroadcastProgress(tenantCtx.TenantID, prepID, run.tracker.Snapshot())
	})

	fields := prep.ResearchFields{Research: make(map[string]*prep.ResearchResult)}
	var failed []string
	for _, outcome := range outcomes {
		if outcome.Status == prep.OutcomeSuccess && outcome.Value != nil {
			fields.Research[outcome.SourceID] = outcome.Value
		} else {
			failed = append(failed, outcome.SourceID)
		}
	}

	if !fields.IsEmpty() {
		if err := tenantCtx.PrepRepo().MergeResearch(prepID, fields); err != nil {
			// Durable write failed; the run still settles. The ephemeral
			// tier keeps serving until a retry lands.
			s.logger.LogError(logging.ChannelGeneration, "merge_research", err, tenantCtx.TenantID,
				map[string]any{"prepId": prepID})
			marker.SetError(err)
		}
		tenantCtx.GetCacheManager().Preps().ApplyResearch(tenantCtx.TenantID, prepID, fields)
	} else {
		s.logger.Generation().Error("Generation produced no research",
			"tenantId", tenantCtx.TenantID, "prepId", prepID,
			"failedSources", strings.Join(failed, ","))
		marker.SetError(ErrGenerationFailed)
	}

	run.tracker.MarkComplete()

	s.mu.Lock()
	run.phase = phaseSettled
	run.failedSources = failed
	close(run.done)
	s.mu.Unlock()

	marker.SetSuccess(len(fields.Research) > 0)

	s.logger.Generation().Info("Generation run settled",
		"tenantId", tenantCtx.TenantID, "prepId", prepID,
		"succeeded", len(fields.Research), "failed", len(failed))

	s.broadcaster.BroadcastProgress(tenantCtx.TenantID, prepID, run.tracker.Snapshot())
	s.broadcaster.BroadcastSettled(tenantCtx.TenantID, prepID, s.loadRecord(tenantCtx, prepID), failed)
}

// Progress returns the current progress snapshot for a prep's latest run.
func (s *GenerationService) Progress(tenantID string, prepID int) (progress.Status, bool) {
	s.mu.Lock()
	var tracker *progress.Tracker
	if run, exists := s.runs[runKey(tenantID, prepID)]; exists {
		tracker = run.tracker
	}
	s.mu.Unlock()

	if tracker == nil {
		return progress.Status{}, false
	}
	return tracker.Snapshot(), true
}

// FailedSources returns the sources that produced no value in the latest
// settled run.
func (s *GenerationService) FailedSources(tenantID string, prepID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run, exists := s.runs[runKey(tenantID, prepID)]; exists && run.phase == phaseSettled {
		return append([]string(nil), run.failedSources...)
	}
	return nil
}

// IsGenerating reports whether a run is currently in flight for the prep.
func (s *GenerationService) IsGenerating(tenantID string, prepID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[runKey(tenantID, prepID)]
	return exists && run.phase == phaseGenerating
}

// ActiveCount returns the number of in-flight runs for a tenant.
func (s *GenerationService) ActiveCount(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := tenantID + ":"
	count := 0
	for key, run := range s.runs {
		if strings.HasPrefix(key, prefix) && run.phase == phaseGenerating {
			count++
		}
	}
	return count
}

// WaitForSettled blocks until the prep's latest run settles or the timeout
// elapses. Returns false on timeout or when no run exists.
func (s *GenerationService) WaitForSettled(tenantID string, prepID int, timeout time.Duration) bool {
	s.mu.Lock()
	run, exists := s.runs[runKey(tenantID, prepID)]
	s.mu.Unlock()

	if !exists {
		return false
	}

	select {
	case <-run.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func stageIDs() []string {
	sources := prep.DefaultSources()
	ids := make([]string, len(sources))
	for i, source := range sources {
		ids[i] = source.ID
	}
	return ids
}
