package stores

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
)

func newTestStore(t *testing.T, recordTTL, mirrorTTL time.Duration) *PrepStore {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: false,
	})
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return NewPrepStore(logger, recordTTL, mirrorTTL)
}

func TestSetAndGetRecord(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Hour)

	if _, hit := store.GetRecord("t1", 1); hit {
		t.Fatal("empty store must miss")
	}

	record := &prep.PrepRecord{PrepID: 1}
	store.SetRecord("t1", 1, record)

	got, hit := store.GetRecord("t1", 1)
	if !hit || got.PrepID != 1 {
		t.Fatalf("got (%v, %v), want cached record", got, hit)
	}

	// Tenants are isolated.
	if _, hit := store.GetRecord("t2", 1); hit {
		t.Fatal("record must not leak across tenants")
	}
}

func TestApplyResearchIsAdditive(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Hour)

	existing := &prep.ResearchResult{
		SourceID: prep.FieldCompanyResearch,
		Payload:  json.RawMessage(`{"v":1}`),
	}
	store.SetRecord("t1", 1, &prep.PrepRecord{PrepID: 1, CompanyResearch: existing})

	store.ApplyResearch("t1", 1, prep.ResearchFields{
		Research: map[string]*prep.ResearchResult{
			prep.FieldStrategicNews: {
				SourceID: prep.FieldStrategicNews,
				Payload:  json.RawMessage(`{"v":2}`),
			},
		},
		ChildFeatures: map[string]json.RawMessage{
			prep.FeatureBehavioralQuestions: json.RawMessage(`["q"]`),
		},
	})

	got, hit := store.GetRecord("t1", 1)
	if !hit {
		t.Fatal("record missing after merge")
	}
	if got.CompanyResearch != existing {
		t.Error("merge must leave untouched fields alone")
	}
	if got.StrategicNews == nil || string(got.StrategicNews.Payload) != `{"v":2}` {
		t.Error("merge must add the supplied research field")
	}
	if string(got.ChildFeatures[prep.FeatureBehavioralQuestions]) != `["q"]` {
		t.Error("merge must add the supplied child feature")
	}
}

func TestSetDraftFieldUpdatesMirrorAndRecord(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Hour)
	store.SetRecord("t1", 3, &prep.PrepRecord{PrepID: 3})

	store.SetDraftField("t1", 3, "notes", json.RawMessage(`{"a":1}`))
	store.SetDraftField("t1", 3, "notes", json.RawMessage(`{"a":2}`))

	mirror, hit := store.GetDraftMirror("t1", 3)
	if !hit {
		t.Fatal("mirror missing after write")
	}
	if string(mirror["notes"]) != `{"a":2}` {
		t.Fatalf("mirror notes = %s, want last write", mirror["notes"])
	}

	record, _ := store.GetRecord("t1", 3)
	if string(record.UserDraft["notes"]) != `{"a":2}` {
		t.Fatalf("record userDraft = %s, must see the latest edit", record.UserDraft["notes"])
	}
}

func TestGetRecordReturnsCopy(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Hour)
	store.SetRecord("t1", 5, &prep.PrepRecord{
		PrepID:    5,
		UserDraft: map[string]json.RawMessage{"notes": json.RawMessage(`{"a":1}`)},
	})

	got, _ := store.GetRecord("t1", 5)
	got.UserDraft["notes"] = json.RawMessage(`{"mutated":true}`)

	fresh, _ := store.GetRecord("t1", 5)
	if string(fresh.UserDraft["notes"]) != `{"a":1}` {
		t.Fatal("callers must not be able to mutate the cached record")
	}
}

func TestGetDraftMirrorReturnsCopy(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Hour)
	store.SetDraftField("t1", 4, "notes", json.RawMessage(`{"a":1}`))

	mirror, _ := store.GetDraftMirror("t1", 4)
	mirror["notes"] = json.RawMessage(`{"mutated":true}`)

	fresh, _ := store.GetDraftMirror("t1", 4)
	if string(fresh["notes"]) != `{"a":1}` {
		t.Fatal("callers must not be able to mutate the cached mirror")
	}
}

func TestPurgeExpired(t *testing.T) {
	// Zero TTLs make everything expire immediately.
	store := newTestStore(t, 0, 0)

	store.SetRecord("t1", 1, &prep.PrepRecord{PrepID: 1})
	store.SetDraftField("t1", 1, "notes", json.RawMessage(`{}`))

	time.Sleep(5 * time.Millisecond)

	evicted := store.PurgeExpired("t1")
	if evicted != 2 {
		t.Fatalf("evicted = %d, want 2", evicted)
	}
	if _, hit := store.GetRecord("t1", 1); hit {
		t.Fatal("record must be gone after purge")
	}
	if _, hit := store.GetDraftMirror("t1", 1); hit {
		t.Fatal("mirror must be gone after purge")
	}
}

func TestPurgeTenant(t *testing.T) {
	store := newTestStore(t, time.Hour, time.Hour)

	store.SetRecord("t1", 1, &prep.PrepRecord{PrepID: 1})
	store.SetRecord("t2", 1, &prep.PrepRecord{PrepID: 1})

	store.PurgeTenant("t1")

	if _, hit := store.GetRecord("t1", 1); hit {
		t.Fatal("purged tenant must be empty")
	}
	if _, hit := store.GetRecord("t2", 1); !hit {
		t.Fatal("other tenants must be unaffected")
	}
}
