package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/transport"
)

const defaultAccountDailyLimit = 100

type AccountInput struct {
	Name         string `json:"name" validate:"required,max=100"`
	Provider     string `json:"provider" validate:"omitempty,oneof=smtp gmail outlook sendgrid"`
	FromEmail    string `json:"from_email" validate:"required,email"`
	FromName     string `json:"from_name" validate:"max=100"`
	SMTPHost     string `json:"smtp_host" validate:"omitempty,hostname"`
	SMTPPort     int    `json:"smtp_port" validate:"gte=0,lte=65535"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	UseTLS       *bool  `json:"use_tls"`
	APIKey       string `json:"api_key"`
	DailyLimit   int    `json:"daily_limit" validate:"gte=0,lte=100000"`
	IsActive     *bool  `json:"is_active"`
}

type ConnectionTestInput struct {
	TestEmail string `json:"test_email" validate:"required,email"`
	Subject   string `json:"subject"`
	Content   string `json:"content"`
}

// ConnectionTestResult is reported with 200 whether or not the send worked.
type ConnectionTestResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type,omitempty"`
}

type AccountService struct {
	Store         *repository.Store
	Subscriptions *SubscriptionService
	Transport     Transport
	Log           zerolog.Logger
	NewID         func() string
}

func NewAccountService(store *repository.Store, subs *SubscriptionService, t Transport, log zerolog.Logger) *AccountService {
	return &AccountService{
		Store:         store,
		Subscriptions: subs,
		Transport:     t,
		Log:           log.With().Str("component", "accounts").Logger(),
		NewID:         uuid.NewString,
	}
}

func (s *AccountService) Create(ctx context.Context, tenantID string, in AccountInput) (*model.SendingAccount, error) {
	plan, err := s.Subscriptions.Plan(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	count, err := s.Store.Accounts.Count(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := checkAllowance(plan, "sending accounts", plan.MaxSendingAccounts, count); err != nil {
		return nil, err
	}

	a := &model.SendingAccount{ID: s.NewID(), TenantID: tenantID, IsActive: true, UseTLS: true}
	applyAccountInput(a, in)
	if err := validateAccount(a); err != nil {
		return nil, err
	}
	if err := s.Store.Accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.Log.Info().Str("tenant", tenantID).Str("account", a.ID).Str("provider", string(a.Provider)).Msg("sending account created")
	return a, nil
}

// Update replaces the configuration. Empty secrets keep the stored ones. Re-activating an
// account clears its failure streak.
func (s *AccountService) Update(ctx context.Context, tenantID, id string, in AccountInput) (*model.SendingAccount, error) {
	a, err := s.Store.Accounts.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	applyAccountInput(a, in)
	if err := validateAccount(a); err != nil {
		return nil, err
	}
	if err := s.Store.Accounts.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.Store.Accounts.GetByID(ctx, tenantID, id)
}

func (s *AccountService) Get(ctx context.Context, tenantID, id string) (*model.SendingAccount, error) {
	return s.Store.Accounts.GetByID(ctx, tenantID, id)
}

func (s *AccountService) List(ctx context.Context, tenantID string) ([]*model.SendingAccount, error) {
	return s.Store.Accounts.List(ctx, tenantID)
}

func (s *AccountService) Delete(ctx context.Context, tenantID, id string) error {
	return s.Store.Accounts.Delete(ctx, tenantID, id)
}

// TestConnection sends one real message through the account and reports the classified outcome.
// It does not count against the daily limit or the failure streak.
func (s *AccountService) TestConnection(ctx context.Context, tenantID, id string, in ConnectionTestInput) (*ConnectionTestResult, error) {
	a, err := s.Store.Accounts.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = "Test email from " + a.Name
	}
	content := in.Content
	if strings.TrimSpace(content) == "" {
		content = "This is a test email confirming that the sending account is configured correctly."
	}

	msg := transport.Message{
		MessageID: uuid.NewString() + "@" + mailDomain(a.FromEmail),
		ToEmail:   in.TestEmail,
		Subject:   subject,
		Content:   content,
	}
	if err := s.Transport.Send(ctx, a, msg); err != nil {
		te := transport.Classify(err, a)
		s.Log.Warn().Str("account", a.ID).Str("error_type", te.ErrorType()).Msg("connection test failed")
		return &ConnectionTestResult{Success: false, Message: te.Error(), ErrorType: te.ErrorType()}, nil
	}
	return &ConnectionTestResult{Success: true, Message: fmt.Sprintf("test email sent to %s", in.TestEmail)}, nil
}

func applyAccountInput(a *model.SendingAccount, in AccountInput) {
	a.Name = strings.TrimSpace(in.Name)
	a.Provider = model.Provider(strings.ToLower(strings.TrimSpace(in.Provider)))
	if a.Provider == "" {
		a.Provider = model.ProviderSMTP
	}
	a.FromEmail = model.NormalizeEmail(in.FromEmail)
	a.FromName = strings.TrimSpace(in.FromName)
	a.SMTPHost = strings.TrimSpace(in.SMTPHost)
	a.SMTPPort = in.SMTPPort
	a.SMTPUsername = strings.TrimSpace(in.SMTPUsername)
	if in.SMTPPassword != "" {
		a.SMTPPassword = in.SMTPPassword
	}
	if in.APIKey != "" {
		a.APIKey = in.APIKey
	}
	if in.UseTLS != nil {
		a.UseTLS = *in.UseTLS
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	a.DailyLimit = in.DailyLimit
	if a.DailyLimit == 0 {
		a.DailyLimit = defaultAccountDailyLimit
	}

	// listings show the resolved endpoint
	if a.Provider != model.ProviderSendGrid {
		a.SMTPHost, a.SMTPPort = transport.Endpoint(a)
		if a.SMTPUsername == "" {
			a.SMTPUsername = a.FromEmail
		}
	}
}

func validateAccount(a *model.SendingAccount) error {
	var problems []string
	if a.Name == "" {
		problems = append(problems, "name is required")
	}
	if _, err := mail.ParseAddress(a.FromEmail); err != nil {
		problems = append(problems, "from_email is not a valid address")
	}
	switch a.Provider {
	case model.ProviderSMTP, model.ProviderGmail, model.ProviderOutlook:
		if a.SMTPHost == "" {
			problems = append(problems, "smtp_host is required")
		}
		if a.SMTPPassword == "" {
			problems = append(problems, "smtp_password is required")
		}
	case model.ProviderSendGrid:
		if a.APIKey == "" {
			problems = append(problems, "api_key is required for sendgrid accounts")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown provider %q", a.Provider))
	}
	if a.DailyLimit < 0 {
		problems = append(problems, "daily_limit cannot be negative")
	}
	if len(problems) > 0 {
		return appErrors.NewValidationError(problems...)
	}
	return nil
}
