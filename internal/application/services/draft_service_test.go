package services

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func waitForDraftWrites(t *testing.T, repo *fakePrepRepo, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		repo.mu.Lock()
		count := len(repo.draftWrites)
		repo.mu.Unlock()
		if count >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d draft writes", want)
}

func TestWriteFieldRejectsUnknownField(t *testing.T) {
	repo := newFakePrepRepo()
	tenantCtx := newTestContext(t, repo)
	service := NewDraftService(tenantCtx.Logger)

	if err := service.WriteField(tenantCtx, 1, "favoriteColor", json.RawMessage(`"blue"`)); err == nil {
		t.Fatal("unknown draft field must be rejected")
	}
}

func TestWriteFieldDebouncesRapidEdits(t *testing.T) {
	repo := newFakePrepRepo()
	tenantCtx := newTestContext(t, repo)
	service := NewDraftService(tenantCtx.Logger)
	service.SetDebounceWindow(30 * time.Millisecond)

	// Five rapid edits to the same field within the window.
	for i := 0; i < 5; i++ {
		value := json.RawMessage(fmt.Sprintf(`{"rev":%d}`, i))
		if err := service.WriteField(tenantCtx, 1, "notes", value); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}

	// The mirror holds the newest value immediately.
	mirror, ok := tenantCtx.GetCacheManager().Preps().GetDraftMirror("test", 1)
	if !ok {
		t.Fatal("mirror missing after write")
	}
	if string(mirror["notes"]) != `{"rev":4}` {
		t.Fatalf("mirror notes = %s, want newest value", mirror["notes"])
	}

	waitForDraftWrites(t, repo, 1)
	time.Sleep(60 * time.Millisecond) // no trailing writes after the flush

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.draftWrites) != 1 {
		t.Fatalf("durable writes = %d, want 1 coalesced write", len(repo.draftWrites))
	}
	if string(repo.draftWrites[0].Value) != `{"rev":4}` {
		t.Fatalf("durable value = %s, want last edit", repo.draftWrites[0].Value)
	}
}

func TestWriteFieldDebouncesFieldsIndependently(t *testing.T) {
	repo := newFakePrepRepo()
	tenantCtx := newTestContext(t, repo)
	service := NewDraftService(tenantCtx.Logger)
	service.SetDebounceWindow(20 * time.Millisecond)

	if err := service.WriteField(tenantCtx, 1, "notes", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("WriteField notes: %v", err)
	}
	if err := service.WriteField(tenantCtx, 1, "checklist", json.RawMessage(`{"done":true}`)); err != nil {
		t.Fatalf("WriteField checklist: %v", err)
	}
	if service.PendingCount() != 2 {
		t.Fatalf("pending = %d, want 2 independent timers", service.PendingCount())
	}

	waitForDraftWrites(t, repo, 2)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	fields := map[string]bool{}
	for _, write := range repo.draftWrites {
		fields[write.Field] = true
	}
	if !fields["notes"] || !fields["checklist"] {
		t.Fatalf("durable writes = %v, want both fields", fields)
	}
}

func TestFlushAllDoesNotDropFiredTimers(t *testing.T) {
	repo := newFakePrepRepo()
	tenantCtx := newTestContext(t, repo)
	service := NewDraftService(tenantCtx.Logger)
	service.SetDebounceWindow(time.Millisecond)

	const preps = 40
	for i := 0; i < preps; i++ {
		value := json.RawMessage(fmt.Sprintf(`{"prep":%d}`, i))
		if err := service.WriteField(tenantCtx, i, "notes", value); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}

	// Flush races the 1ms timers; each edit must land exactly once whether
	// its timer or the flush wins.
	service.FlushAll()

	waitForDraftWrites(t, repo, preps)
	time.Sleep(20 * time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.draftWrites) != preps {
		t.Fatalf("durable writes = %d, want %d", len(repo.draftWrites), preps)
	}
	seen := map[int]int{}
	for _, write := range repo.draftWrites {
		seen[write.PrepID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("prep %d written %d times, want exactly once", id, count)
		}
	}
}

func TestFlushAllWritesPendingImmediately(t *testing.T) {
	repo := newFakePrepRepo()
	tenantCtx := newTestContext(t, repo)
	service := NewDraftService(tenantCtx.Logger)
	service.SetDebounceWindow(time.Minute) // would never fire during the test

	if err := service.WriteField(tenantCtx, 2, "bookmarks", json.RawMessage(`["q3"]`)); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if service.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", service.PendingCount())
	}

	service.FlushAll()

	if service.PendingCount() != 0 {
		t.Fatalf("pending after flush = %d, want 0", service.PendingCount())
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.draftWrites) != 1 {
		t.Fatalf("durable writes = %d, want 1", len(repo.draftWrites))
	}
	if repo.draftWrites[0].Field != "bookmarks" {
		t.Fatalf("flushed field = %s, want bookmarks", repo.draftWrites[0].Field)
	}
}
