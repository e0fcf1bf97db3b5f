package services

import (
	"encoding/json"
	"errors"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/repositories"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/performance"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
)

// PrepService serves prep record reads through the two-tier cache.
type PrepService struct {
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewPrepService creates a prep read service.
func NewPrepService(logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *PrepService {
	return &PrepService{logger: logger, perfTracker: perfTracker}
}

// GetRecord loads a prep record: ephemeral tier first, durable store on
// miss. The draft mirror is overlaid so a read immediately after an edit
// sees the edit even if its durable write is still debounced.
func (s *PrepService) GetRecord(tenantCtx *tenant.Context, prepID int) (*prep.PrepRecord, error) {
	marker := s.perfTracker.StartOperation("get_prep_record", tenantCtx.TenantID)
	defer marker.Complete()

	cache := tenantCtx.GetCacheManager().Preps()

	record, hit := cache.GetRecord(tenantCtx.TenantID, prepID)
	if !hit {
		var err error
		record, err = tenantCtx.PrepRepo().GetRecord(prepID)
		if errors.Is(err, repositories.ErrPrepNotFound) {
			record = &prep.PrepRecord{PrepID: prepID}
		} else if err != nil {
			marker.SetError(err)
			return nil, err
		}
		cache.SetRecord(tenantCtx.TenantID, prepID, record)
		// The cache now shares this pointer; overlay onto our own copy.
		record = record.Clone()
	}

	if mirror, ok := cache.GetDraftMirror(tenantCtx.TenantID, prepID); ok {
		if record.UserDraft == nil {
			record.UserDraft = make(map[string]json.RawMessage, len(mirror))
		}
		for field, value := range mirror {
			record.UserDraft[field] = value
		}
	}

	return record, nil
}

// GetDraft returns only the user draft fields for a prep id.
func (s *PrepService) GetDraft(tenantCtx *tenant.Context, prepID int) (map[string]json.RawMessage, error) {
	record, err := s.GetRecord(tenantCtx, prepID)
	if err != nil {
		return nil, err
	}
	if record.UserDraft == nil {
		return map[string]json.RawMessage{}, nil
	}
	return record.UserDraft, nil
}
