package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PrepDeckHQ/prepdeck-go/internal/domain/entities/prep"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/email"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/email/templates"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/tenant"
)

// ReminderService sends interview reminder emails based on the interview
// date stored in the user draft.
type ReminderService struct {
	logger      *logging.ChanneledLogger
	prepService *PrepService
	newService  func(tenantCtx *tenant.Context) (email.Service, error)
}

// NewReminderService creates a reminder sender.
func NewReminderService(logger *logging.ChanneledLogger, prepService *PrepService) *ReminderService {
	return &ReminderService{
		logger:      logger,
		prepService: prepService,
		newService: func(tenantCtx *tenant.Context) (email.Service, error) {
			return email.NewService(tenantCtx.Config.ResendAPIKey, tenantCtx.Config.ReminderSender)
		},
	}
}

// SetEmailFactory overrides email service construction, for tests.
func (s *ReminderService) SetEmailFactory(factory func(tenantCtx *tenant.Context) (email.Service, error)) {
	s.newService = factory
}

// SendReminder emails a reminder for the prep's interview date. The date
// comes from the draft's interviewDate field; missing date is an error.
func (s *ReminderService) SendReminder(tenantCtx *tenant.Context, prepID int, toEmail, name, prepURL string, briefing prep.Briefing) error {
	record, err := s.prepService.GetRecord(tenantCtx, prepID)
	if err != nil {
		return err
	}

	raw, ok := record.UserDraft[prep.DraftFieldInterviewDate]
	if !ok {
		return fmt.Errorf("prep %d has no interview date set", prepID)
	}

	var interviewDate time.Time
	if err := json.Unmarshal(raw, &interviewDate); err != nil {
		return fmt.Errorf("invalid interview date on prep %d: %w", prepID, err)
	}

	svc, err := s.newService(tenantCtx)
	if err != nil {
		return fmt.Errorf("email service unavailable: %w", err)
	}

	props := templates.ReminderEmailProps{
		Name:          name,
		Company:       briefing.Company,
		Role:          briefing.Role,
		InterviewDate: interviewDate.Format("Monday, January 2, 2006"),
		PrepURL:       prepURL,
	}

	if err := svc.SendInterviewReminderEmail(toEmail, props); err != nil {
		s.logger.LogError(logging.ChannelEmail, "send_reminder", err, tenantCtx.TenantID,
			map[string]any{"prepId": prepID})
		return err
	}

	s.logger.Email().Info("Interview reminder sent",
		"tenantId", tenantCtx.TenantID, "prepId", prepID)
	return nil
}
