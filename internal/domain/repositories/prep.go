// Package repositories defines the persistence interfaces consumed by the
// application layer. Implementations live in infrastructure/persistence.
package repositories

import (
	"encoding/json"
	"errors"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
)

// ErrPrepNotFound is returned by GetRecord when the prep id has no durable
// row. Missing research fields inside an existing row are never an error.
var ErrPrepNotFound = errors.New("prep record not found")

// PrepRepository is the durable tier of the two-tier cache: one row per
// prep id, merge-style writes only.
type PrepRepository interface {
	// GetRecord loads the record for a prep id, or ErrPrepNotFound.
	GetRecord(prepID int) (*prep.PrepRecord, error)

	// MergeResearch additively merges the supplied research and child
	// feature fields into the record, creating it on first write. Fields
	// not supplied are left untouched.
	MergeResearch(prepID int, fields prep.ResearchFields) error

	// WriteDraftField replaces exactly one named field inside the record's
	// user draft, independent of all other fields.
	WriteDraftField(prepID int, field string, value json.RawMessage) error
}
