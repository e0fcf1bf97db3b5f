package services

import (
	"fmt"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/security"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
	"golang.org/x/crypto/bcrypt"
)

// VisitResult holds a created visit and its signed token.
type VisitResult struct {
	VisitID   string `json:"visitId"`
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// SessionService issues visit tokens and authenticates the sysop dashboard.
type SessionService struct {
	logger *logging.ChanneledLogger
}

// NewSessionService creates a session service.
func NewSessionService(logger *logging.ChanneledLogger) *SessionService {
	return &SessionService{logger: logger}
}

// CreateVisit records a new visit and returns a signed token. An existing
// sessionID joins the visit to that session; empty means a fresh session.
func (s *SessionService) CreateVisit(tenantCtx *tenant.Context, sessionID string) (*VisitResult, error) {
	visitID := security.GenerateULID()
	if sessionID == "" {
		sessionID = security.GenerateULID()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := tenantCtx.Database.Conn.Exec(
		`INSERT INTO visits (visit_id, session_id, created_at) VALUES (?, ?, ?)`,
		visitID, sessionID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record visit: %w", err)
	}

	token, err := security.GenerateVisitToken(visitID, sessionID, tenantCtx.Config.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign visit token: %w", err)
	}

	s.logger.Tenant().Debug("Visit created",
		"tenantId", tenantCtx.TenantID, "visitId", visitID, "sessionId", sessionID)

	return &VisitResult{VisitID: visitID, SessionID: sessionID, Token: token}, nil
}

// AuthenticateSysop validates the sysop password and issues a dashboard token.
func (s *SessionService) AuthenticateSysop(tenantCtx *tenant.Context, password string) (string, error) {
	stored := tenantCtx.Config.SysopPassword
	if stored == "" {
		return "", fmt.Errorf("sysop access not configured")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
		// Plain-text passwords are accepted for local development setups.
		if stored != password {
			return "", fmt.Errorf("invalid credentials")
		}
	}

	token, err := security.GenerateSysopToken(tenantCtx.Config.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign sysop token: %w", err)
	}

	s.logger.Tenant().Info("Sysop authenticated", "tenantId", tenantCtx.TenantID)
	return token, nil
}
