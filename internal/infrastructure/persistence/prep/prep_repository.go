// Package prep implements the durable prep record repository on SQLite
// and Turso.
package prep

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entities "github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/repositories"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/pkg/config"
)

// Repository persists prep records. One row per prep id; research and
// draft columns hold JSON documents and every write is merge-style.
type Repository struct {
	db       *sql.DB
	tenantID string
	logger   *logging.ChanneledLogger
}

// NewRepository creates a prep repository bound to a tenant database.
func NewRepository(db *sql.DB, tenantID string, logger *logging.ChanneledLogger) *Repository {
	return &Repository{db: db, tenantID: tenantID, logger: logger}
}

var researchColumns = map[string]string{
	entities.FieldCompanyResearch:         "company_research",
	entities.FieldStrategicNews:           "strategic_news",
	entities.FieldValuesAlignment:         "values_alignment",
	entities.FieldCompetitiveIntelligence: "competitive_intelligence",
}

// GetRecord loads the record for a prep id.
func (r *Repository) GetRecord(prepID int) (*entities.PrepRecord, error) {
	query := `SELECT prep_id, company_research, strategic_news, values_alignment,
		competitive_intelligence, child_features, user_draft, updated_at
		FROM preps WHERE prep_id = ?`

	start := time.Now()
	row := r.db.QueryRow(query, prepID)
	r.logSlowQuery(query, start)

	var (
		record        entities.PrepRecord
		company       sql.NullString
		news          sql.NullString
		values        sql.NullString
		competitive   sql.NullString
		childFeatures string
		userDraft     string
		updatedAt     string
	)

	err := row.Scan(&record.PrepID, &company, &news, &values, &competitive,
		&childFeatures, &userDraft, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, repositories.ErrPrepNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prep record %d: %w", prepID, err)
	}

	for field, col := range map[string]sql.NullString{
		entities.FieldCompanyResearch:         company,
		entities.FieldStrategicNews:           news,
		entities.FieldValuesAlignment:         values,
		entities.FieldCompetitiveIntelligence: competitive,
	} {
		if !col.Valid || col.String == "" {
			continue
		}
		var result entities.ResearchResult
		if err := json.Unmarshal([]byte(col.String), &result); err != nil {
			return nil, fmt.Errorf("corrupt research payload for prep %d field %s: %w", prepID, field, err)
		}
		record.SetResearch(field, &result)
	}

	if childFeatures != "" && childFeatures != "{}" {
		if err := json.Unmarshal([]byte(childFeatures), &record.ChildFeatures); err != nil {
			return nil, fmt.Errorf("corrupt child feature cache for prep %d: %w", prepID, err)
		}
	}
	if userDraft != "" && userDraft != "{}" {
		if err := json.Unmarshal([]byte(userDraft), &record.UserDraft); err != nil {
			return nil, fmt.Errorf("corrupt user draft for prep %d: %w", prepID, err)
		}
	}

	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		record.UpdatedAt = ts
	}

	return &record, nil
}

// MergeResearch additively merges supplied research and child feature
// fields into the row, creating it on first write. Columns not supplied
// are never touched.
func (r *Repository) MergeResearch(prepID int, fields entities.ResearchFields) error {
	if fields.IsEmpty() {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.Exec(
		`INSERT INTO preps (prep_id, child_features, user_draft, updated_at)
		 VALUES (?, '{}', '{}', ?) ON CONFLICT(prep_id) DO NOTHING`,
		prepID, now,
	); err != nil {
		return fmt.Errorf("failed to ensure prep row %d: %w", prepID, err)
	}

	for field, result := range fields.Research {
		column, ok := researchColumns[field]
		if !ok {
			return fmt.Errorf("unknown research field %q", field)
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal research field %s: %w", field, err)
		}

		query := fmt.Sprintf(`UPDATE preps SET %s = ?, updated_at = ? WHERE prep_id = ?`, column)
		start := time.Now()
		if _, err := tx.Exec(query, string(payload), now, prepID); err != nil {
			return fmt.Errorf("failed to write research field %s for prep %d: %w", field, prepID, err)
		}
		r.logSlowQuery(query, start)
	}

	if len(fields.ChildFeatures) > 0 {
		// Child features live in one JSON column; merge key-by-key so a
		// feature write never clobbers its siblings.
		var raw string
		if err := tx.QueryRow(`SELECT child_features FROM preps WHERE prep_id = ?`, prepID).Scan(&raw); err != nil {
			return fmt.Errorf("failed to read child feature cache for prep %d: %w", prepID, err)
		}

		existing := make(map[string]json.RawMessage)
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &existing); err != nil {
				return fmt.Errorf("corrupt child feature cache for prep %d: %w", prepID, err)
			}
		}
		for name, payload := range fields.ChildFeatures {
			existing[name] = payload
		}

		merged, err := json.Marshal(existing)
		if err != nil {
			return fmt.Errorf("failed to marshal child feature cache: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE preps SET child_features = ?, updated_at = ? WHERE prep_id = ?`,
			string(merged), now, prepID,
		); err != nil {
			return fmt.Errorf("failed to write child feature cache for prep %d: %w", prepID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge for prep %d: %w", prepID, err)
	}
	return nil
}

// WriteDraftField replaces exactly one field inside the row's user draft.
// Other draft fields and all research columns are untouched.
func (r *Repository) WriteDraftField(prepID int, field string, value json.RawMessage) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin draft transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.Exec(
		`INSERT INTO preps (prep_id, child_features, user_draft, updated_at)
		 VALUES (?, '{}', '{}', ?) ON CONFLICT(prep_id) DO NOTHING`,
		prepID, now,
	); err != nil {
		return fmt.Errorf("failed to ensure prep row %d: %w", prepID, err)
	}

	var raw string
	if err := tx.QueryRow(`SELECT user_draft FROM preps WHERE prep_id = ?`, prepID).Scan(&raw); err != nil {
		return fmt.Errorf("failed to read user draft for prep %d: %w", prepID, err)
	}

	draft := make(map[string]json.RawMessage)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &draft); err != nil {
			return fmt.Errorf("corrupt user draft for prep %d: %w", prepID, err)
		}
	}
	draft[field] = value

	merged, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal user draft: %w", err)
	}

	query := `UPDATE preps SET user_draft = ?, updated_at = ? WHERE prep_id = ?`
	start := time.Now()
	if _, err := tx.Exec(query, string(merged), now, prepID); err != nil {
		return fmt.Errorf("failed to write user draft for prep %d: %w", prepID, err)
	}
	r.logSlowQuery(query, start)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit draft write for prep %d: %w", prepID, err)
	}
	return nil
}

func (r *Repository) logSlowQuery(query string, start time.Time) {
	if r.logger == nil {
		return
	}
	if elapsed := time.Since(start); elapsed > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, elapsed, r.tenantID)
	}
}
