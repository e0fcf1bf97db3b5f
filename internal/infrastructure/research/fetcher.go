package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
)

// Fetcher fans one briefing out to every research source in parallel and
// collects settled outcomes. A source failure never fails the batch; the
// outcome simply carries no value.
type Fetcher struct {
	client   Client
	timeout  time.Duration
	logger   *logging.ChanneledLogger
	tenantID string
}

// NewFetcher creates a fetcher for one tenant.
func NewFetcher(client Client, logger *logging.ChanneledLogger, tenantID string) *Fetcher {
	return &Fetcher{
		client:   client,
		timeout:  config.ResearchCallTimeout,
		logger:   logger,
		tenantID: tenantID,
	}
}

// FetchAll runs every source concurrently and returns when all have
// settled. onSettled, if non-nil, is invoked once per source as it
// settles (success or failure), for progress tracking.
func (f *Fetcher) FetchAll(ctx context.Context, briefing prep.Briefing, sources []prep.SourceDescriptor, onSettled func(prep.SourceOutcome)) []prep.SourceOutcome {
	outcomes := make([]prep.SourceOutcome, len(sources))

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(idx int, src prep.SourceDescriptor) {
			defer wg.Done()

			outcome := f.fetchOne(ctx, briefing, src)
			outcomes[idx] = outcome

			if onSettled != nil {
				onSettled(outcome)
			}
		}(i, source)
	}
	wg.Wait()

	return outcomes
}

// fetchOne calls a single source with its own timeout. A panic inside the
// client settles the source as failed instead of killing the batch.
func (f *Fetcher) fetchOne(ctx context.Context, briefing prep.Briefing, source prep.SourceDescriptor) (outcome prep.SourceOutcome) {
	outcome = prep.SourceOutcome{SourceID: source.ID, Status: prep.OutcomeFailure}

	defer func() {
		if r := recover(); r != nil {
			outcome.Err = fmt.Errorf("research source %s panicked: %v", source.ID, r)
			f.logger.Research().Error("Research source panicked",
				"sourceId", source.ID, "tenantId", f.tenantID, "panic", fmt.Sprint(r))
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	payload, err := f.client.GenerateResearch(callCtx, briefing, source)
	if err != nil {
		outcome.Err = err
		f.logger.Research().Warn("Research source failed",
			"sourceId", source.ID, "tenantId", f.tenantID,
			"error", err.Error(), "duration", time.Since(start))
		return outcome
	}

	outcome.Status = prep.OutcomeSuccess
	outcome.Value = &prep.ResearchResult{
		SourceID:    source.ID,
		Payload:     payload,
		Model:       config.ResearchModel,
		GeneratedAt: time.Now().UTC(),
	}

	f.logger.Research().Info("Research source complete",
		"sourceId", source.ID, "tenantId", f.tenantID, "duration", time.Since(start))

	return outcome
}
