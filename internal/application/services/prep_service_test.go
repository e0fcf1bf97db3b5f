package services

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
)

func newPrepServiceHarness(t *testing.T, repo *fakePrepRepo) (*PrepService, *tenant.Context) {
	t.Helper()
	tenantCtx := newTestContext(t, repo)
	perfTracker := performance.NewTracker(tenantCtx.Logger.Perf(), 100*time.Millisecond)
	return NewPrepService(tenantCtx.Logger, perfTracker), tenantCtx
}

func TestGetRecordOverlaysDraftMirror(t *testing.T) {
	repo := newFakePrepRepo()
	repo.seed(&prep.PrepRecord{
		PrepID:    1,
		UserDraft: map[string]json.RawMessage{"notes": json.RawMessage(`{"stale":true}`)},
	})
	service, tenantCtx := newPrepServiceHarness(t, repo)
	cache := tenantCtx.GetCacheManager().Preps()

	// A mirror write whose durable flush is still debounced must win.
	cache.SetDraftField("test", 1, "notes", json.RawMessage(`{"fresh":true}`))

	record, err := service.GetRecord(tenantCtx, 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if string(record.UserDraft["notes"]) != `{"fresh":true}` {
		t.Fatalf("notes = %s, want the mirror value", record.UserDraft["notes"])
	}
}

func TestGetRecordReturnsCallerOwnedDraft(t *testing.T) {
	repo := newFakePrepRepo()
	repo.seed(&prep.PrepRecord{PrepID: 2})
	service, tenantCtx := newPrepServiceHarness(t, repo)
	cache := tenantCtx.GetCacheManager().Preps()

	cache.SetDraftField("test", 2, "notes", json.RawMessage(`{"v":1}`))

	record, err := service.GetRecord(tenantCtx, 2)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	record.UserDraft["notes"] = json.RawMessage(`{"mutated":true}`)

	cached, hit := cache.GetRecord("test", 2)
	if !hit {
		t.Fatal("record missing from cache")
	}
	if string(cached.UserDraft["notes"]) == `{"mutated":true}` {
		t.Fatal("callers must not be able to mutate the cached record")
	}
}

func TestGetRecordConcurrentWithDraftEdits(t *testing.T) {
	repo := newFakePrepRepo()
	repo.seed(&prep.PrepRecord{PrepID: 3})
	service, tenantCtx := newPrepServiceHarness(t, repo)
	cache := tenantCtx.GetCacheManager().Preps()

	// Warm the cache so both loops hit the same cached record.
	if _, err := service.GetRecord(tenantCtx, 3); err != nil {
		t.Fatalf("warmup GetRecord: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if _, err := service.GetRecord(tenantCtx, 3); err != nil {
				t.Errorf("GetRecord: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			cache.SetDraftField("test", 3, "notes", json.RawMessage(`{"i":1}`))
		}
	}()
	wg.Wait()
}
