package payment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	stripebilling "github.com/odyssee/backend/internal/infrastructure/billing"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	mailer "github.com/odyssee/backend/internal/infrastructure/mail"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultInstructionsTemplate is used when the request carries no template
const DefaultInstructionsTemplate = `Bonjour {client_name},

Merci pour votre confiance. Pour confirmer votre voyage à {trip_destination}, nous vous remercions de régler un acompte de {amount} par virement bancaire.

Merci d'indiquer votre nom en référence du virement. Nous revenons vers vous dès réception.

Bien cordialement,
L'équipe {agency_name}`

var (
	// ErrPaymentProvider wraps failures of the payment provider
	ErrPaymentProvider = shared.NewDomainError("PAYMENT_PROVIDER_ERROR", "The payment provider rejected the request")
	// ErrMailDelivery wraps SMTP failures
	ErrMailDelivery = shared.NewDomainError("MAIL_DELIVERY_FAILED", "The payment instructions could not be sent")
)

// Credentials opens the agency secrets the payment flows need
type Credentials interface {
	StripeAPIKey(ctx context.Context, agencyID uuid.UUID) (string, error)
	MailConfig(ctx context.Context, agencyID uuid.UUID) (tenancy.MailConfig, error)
}

// LinkProvider creates hosted payment links
type LinkProvider interface {
	CreateDepositLink(ctx context.Context, apiKey string, input stripebilling.DepositLinkInput) (*stripebilling.PaymentLink, error)
}

// Mailer delivers a plain-text mail through an SMTP account
type Mailer interface {
	Send(ctx context.Context, account mailer.Account, msg mailer.Message) error
}

// DepositLinkInput asks for a deposit payment link
type DepositLinkInput struct {
	TripName string
	Amount   decimal.Decimal
}

// DepositLink is the link to send to the client
type DepositLink struct {
	URL      string          `json:"url"`
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ManualPaymentInput asks for bank transfer instructions to be mailed to a client
type ManualPaymentInput struct {
	ClientName      string
	ClientEmail     string
	TripDestination string
	Amount          decimal.Decimal
	// Template may use {client_name}, {trip_destination}, {amount} and {agency_name}
	Template string
}

// ManualPaymentResult tells which account sent the mail
type ManualPaymentResult struct {
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	UsedFallback bool   `json:"used_platform_mail"`
}

// PaymentService creates deposit links and sends manual payment instructions
type PaymentService struct {
	agencies tenancy.AgencyRepository
	creds    Credentials
	links    LinkProvider
	mailer   Mailer
	platform config.MailConfig
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service. platform is the SMTP
// account used for agencies that have not configured their own.
func NewPaymentService(
	agencies tenancy.AgencyRepository,
	creds Credentials,
	links LinkProvider,
	mailer Mailer,
	platform config.MailConfig,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		agencies: agencies,
		creds:    creds,
		links:    links,
		mailer:   mailer,
		platform: platform,
		logger:   logger,
	}
}

// CreateDepositLink creates a Stripe payment link with the agency's own key
func (s *PaymentService) CreateDepositLink(ctx context.Context, agencyID uuid.UUID, input DepositLinkInput) (*DepositLink, error) {
	tripName := strings.TrimSpace(input.TripName)
	if tripName == "" {
		return nil, inputError("Trip name is required")
	}
	if stripebilling.ToMinorUnits(input.Amount) <= 0 {
		return nil, inputError("Deposit amount must be positive")
	}

	apiKey, err := s.creds.StripeAPIKey(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	link, err := s.links.CreateDepositLink(ctx, apiKey, stripebilling.DepositLinkInput{
		AgencyID: agencyID,
		TripName: tripName,
		Amount:   input.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentProvider, err)
	}

	logger.Bind(ctx, s.logger).Info("Deposit payment link created",
		zap.String("agency_id", agencyID.String()),
		zap.String("payment_link_id", link.ID),
		zap.String("amount", link.Amount.StringFixed(2)))
	return &DepositLink{URL: link.URL, ID: link.ID, Amount: link.Amount, Currency: link.Currency}, nil
}

// SendManualPaymentInstructions mails bank transfer instructions to a
// client. The agency's SMTP account is used when configured; otherwise
// the platform account. An unreadable agency mail config is an error,
// never a reason to fall back.
func (s *PaymentService) SendManualPaymentInstructions(ctx context.Context, agencyID uuid.UUID, input ManualPaymentInput) (*ManualPaymentResult, error) {
	recipient, err := mail.ParseAddress(strings.TrimSpace(input.ClientEmail))
	if err != nil {
		return nil, inputError("Client email address is invalid")
	}
	destination := strings.TrimSpace(input.TripDestination)
	if destination == "" {
		return nil, inputError("Trip destination is required")
	}
	if !input.Amount.IsPositive() {
		return nil, inputError("Amount must be positive")
	}

	agency, err := s.agencies.FindByID(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	account, fallback, err := s.mailAccount(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	template := input.Template
	if strings.TrimSpace(template) == "" {
		template = DefaultInstructionsTemplate
	}
	body := RenderInstructions(template, strings.TrimSpace(input.ClientName), destination, input.Amount, agency.Name)
	subject := "Instructions de paiement pour votre voyage à " + destination

	if err := s.mailer.Send(ctx, account, mailer.Message{
		To:      recipient.Address,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	logger.Bind(ctx, s.logger).Info("Manual payment instructions sent",
		zap.String("agency_id", agencyID.String()),
		zap.Bool("platform_mail", fallback))
	return &ManualPaymentResult{Recipient: recipient.Address, Subject: subject, UsedFallback: fallback}, nil
}

func (s *PaymentService) mailAccount(ctx context.Context, agencyID uuid.UUID) (mailer.Account, bool, error) {
	cfg, err := s.creds.MailConfig(ctx, agencyID)
	switch {
	case err == nil:
		return mailer.AccountFromAgency(cfg), false, nil
	case errors.Is(err, tenancy.ErrCredentialNotConfigured):
		if !s.platform.Enabled() {
			return mailer.Account{}, false, err
		}
		return mailer.AccountFromPlatform(s.platform), true, nil
	default:
		return mailer.Account{}, false, err
	}
}

// RenderInstructions fills the four placeholders of template. Unknown
// placeholders are left as they are.
func RenderInstructions(template, clientName, destination string, amount decimal.Decimal, agencyName string) string {
	return strings.NewReplacer(
		"{client_name}", clientName,
		"{trip_destination}", destination,
		"{amount}", FormatAmount(amount),
		"{agency_name}", agencyName,
	).Replace(template)
}

// FormatAmount renders euros the way clients read them: "500€", "480,50€"
func FormatAmount(amount decimal.Decimal) string {
	if amount.Equal(amount.Truncate(0)) {
		return amount.Truncate(0).String() + "€"
	}
	return strings.Replace(amount.StringFixed(2), ".", ",", 1) + "€"
}

func inputError(message string) error {
	return shared.NewDomainError(shared.ErrInvalidInput.Code, message)
}
