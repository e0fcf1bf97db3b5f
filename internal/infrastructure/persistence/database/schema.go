// Package database bootstraps the per-tenant durable schema.
package database

import (
	"database/sql"
	"fmt"
)

// prepsSchema is the single durable table: one row per prep id, JSON
// documents in the research and draft columns.
const prepsSchema = `
CREATE TABLE IF NOT EXISTS preps (
	prep_id INTEGER PRIMARY KEY,
	company_research TEXT,
	strategic_news TEXT,
	values_alignment TEXT,
	competitive_intelligence TEXT,
	child_features TEXT NOT NULL DEFAULT '{}',
	user_draft TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL
);
`

const visitsSchema = `
CREATE TABLE IF NOT EXISTS visits (
	visit_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visits_session ON visits(session_id);
`

// EnsureSchema creates the tenant's tables if they do not exist yet.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range []string{prepsSchema, visitsSchema} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
