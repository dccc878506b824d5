package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	stripebilling "github.com/odyssee/backend/internal/infrastructure/billing"
	"github.com/odyssee/backend/internal/infrastructure/config"
	mailer "github.com/odyssee/backend/internal/infrastructure/mail"
	"github.com/odyssee/backend/internal/infrastructure/secrets"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAgencies struct {
	tenancy.AgencyRepository
	agency *tenancy.Agency
}

func (s stubAgencies) FindByID(_ context.Context, id uuid.UUID) (*tenancy.Agency, error) {
	if s.agency.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.agency, nil
}

type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) StripeAPIKey(ctx context.Context, agencyID uuid.UUID) (string, error) {
	args := m.Called(ctx, agencyID)
	return args.String(0), args.Error(1)
}

func (m *mockCredentials) MailConfig(ctx context.Context, agencyID uuid.UUID) (tenancy.MailConfig, error) {
	args := m.Called(ctx, agencyID)
	return args.Get(0).(tenancy.MailConfig), args.Error(1)
}

type mockLinks struct {
	mock.Mock
}

func (m *mockLinks) CreateDepositLink(ctx context.Context, apiKey string, input stripebilling.DepositLinkInput) (*stripebilling.PaymentLink, error) {
	args := m.Called(ctx, apiKey, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripebilling.PaymentLink), args.Error(1)
}

type recordingMailer struct {
	account mailer.Account
	msg     mailer.Message
	calls   int
	err     error
}

func (r *recordingMailer) Send(_ context.Context, account mailer.Account, msg mailer.Message) error {
	r.calls++
	r.account, r.msg = account, msg
	return r.err
}

type paymentFixture struct {
	agency *tenancy.Agency
	creds  *mockCredentials
	links  *mockLinks
	mailer *recordingMailer
	svc    *PaymentService
}

func newPaymentFixture(t *testing.T, platform config.MailConfig) *paymentFixture {
	t.Helper()
	agency, err := tenancy.NewAgency("Voyages Soleil", "soleil", 100, time.Now())
	require.NoError(t, err)
	f := &paymentFixture{
		agency: agency,
		creds:  new(mockCredentials),
		links:  new(mockLinks),
		mailer: &recordingMailer{},
	}
	f.svc = NewPaymentService(stubAgencies{agency: agency}, f.creds, f.links, f.mailer, platform, zap.NewNop())
	return f
}

func platformMail() config.MailConfig {
	return config.MailConfig{Host: "smtp.odyssee.travel", Port: 587, Username: "noreply", Password: "pw", From: "noreply@odyssee.travel", UseTLS: true}
}

func manualInput() ManualPaymentInput {
	return ManualPaymentInput{
		ClientName:      "Jeanne Martin",
		ClientEmail:     "jeanne.martin@example.com",
		TripDestination: "Lisbonne",
		Amount:          decimal.NewFromInt(500),
		Template:        "Bonjour {client_name}, merci de verser {amount} pour {trip_destination}. {agency_name}",
	}
}

func TestPaymentService_CreateDepositLink(t *testing.T) {
	f := newPaymentFixture(t, config.MailConfig{})
	amount := decimal.RequireFromString("350.50")

	f.creds.On("StripeAPIKey", mock.Anything, f.agency.ID).Return("sk_test_123", nil)
	f.links.On("CreateDepositLink", mock.Anything, "sk_test_123", stripebilling.DepositLinkInput{
		AgencyID: f.agency.ID,
		TripName: "Lisbonne - 4 jours",
		Amount:   amount,
	}).Return(&stripebilling.PaymentLink{ID: "plink_1", URL: "https://buy.stripe.com/test_1", Amount: amount, Currency: "eur"}, nil)

	link, err := f.svc.CreateDepositLink(context.Background(), f.agency.ID, DepositLinkInput{TripName: " Lisbonne - 4 jours ", Amount: amount})
	require.NoError(t, err)
	assert.Equal(t, "https://buy.stripe.com/test_1", link.URL)
	assert.Equal(t, "eur", link.Currency)
	f.links.AssertExpectations(t)
}

func TestPaymentService_CreateDepositLink_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid input never opens the key", func(t *testing.T) {
		f := newPaymentFixture(t, config.MailConfig{})
		_, err := f.svc.CreateDepositLink(ctx, f.agency.ID, DepositLinkInput{TripName: "", Amount: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		_, err = f.svc.CreateDepositLink(ctx, f.agency.ID, DepositLinkInput{TripName: "Rome", Amount: decimal.RequireFromString("0.001")})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		f.creds.AssertNotCalled(t, "StripeAPIKey", mock.Anything, mock.Anything)
	})

	t.Run("key not configured", func(t *testing.T) {
		f := newPaymentFixture(t, config.MailConfig{})
		f.creds.On("StripeAPIKey", mock.Anything, f.agency.ID).Return("", tenancy.NotConfigured(tenancy.CredentialStripeAPIKey))
		_, err := f.svc.CreateDepositLink(ctx, f.agency.ID, DepositLinkInput{TripName: "Rome", Amount: decimal.NewFromInt(100)})
		assert.ErrorIs(t, err, tenancy.ErrCredentialNotConfigured)
		f.links.AssertNotCalled(t, "CreateDepositLink", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newPaymentFixture(t, config.MailConfig{})
		f.creds.On("StripeAPIKey", mock.Anything, f.agency.ID).Return("sk_test_123", nil)
		f.links.On("CreateDepositLink", mock.Anything, "sk_test_123", mock.Anything).
			Return(nil, errors.New("stripe: failed to create product: invalid api key"))
		_, err := f.svc.CreateDepositLink(ctx, f.agency.ID, DepositLinkInput{TripName: "Rome", Amount: decimal.NewFromInt(100)})
		assert.ErrorIs(t, err, ErrPaymentProvider)
	})
}

func TestPaymentService_SendManualPaymentInstructions_AgencyAccount(t *testing.T) {
	f := newPaymentFixture(t, platformMail())
	f.creds.On("MailConfig", mock.Anything, f.agency.ID).Return(tenancy.MailConfig{
		Server: "smtp.soleil.fr", Port: 465, Username: "contact@soleil.fr", Password: "pw", UseSSL: true, Sender: "contact@soleil.fr",
	}, nil)

	res, err := f.svc.SendManualPaymentInstructions(context.Background(), f.agency.ID, manualInput())
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "Instructions de paiement pour votre voyage à Lisbonne", res.Subject)

	assert.Equal(t, "smtp.soleil.fr", f.mailer.account.Host)
	assert.Equal(t, 465, f.mailer.account.Port)
	assert.True(t, f.mailer.account.UseSSL)
	assert.Equal(t, "jeanne.martin@example.com", f.mailer.msg.To)
	assert.Equal(t, "Bonjour Jeanne Martin, merci de verser 500€ pour Lisbonne. Voyages Soleil", f.mailer.msg.Body)
}

func TestPaymentService_SendManualPaymentInstructions_PlatformFallback(t *testing.T) {
	f := newPaymentFixture(t, platformMail())
	f.creds.On("MailConfig", mock.Anything, f.agency.ID).
		Return(tenancy.MailConfig{}, tenancy.NotConfigured(tenancy.CredentialMailConfig))

	input := manualInput()
	input.Template = ""
	res, err := f.svc.SendManualPaymentInstructions(context.Background(), f.agency.ID, input)
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "smtp.odyssee.travel", f.mailer.account.Host)
	assert.Equal(t, "noreply@odyssee.travel", f.mailer.account.Sender)
	assert.Contains(t, f.mailer.msg.Body, "Bonjour Jeanne Martin")
	assert.Contains(t, f.mailer.msg.Body, "L'équipe Voyages Soleil")
}

func TestPaymentService_SendManualPaymentInstructions_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no agency account and no platform account", func(t *testing.T) {
		f := newPaymentFixture(t, config.MailConfig{})
		f.creds.On("MailConfig", mock.Anything, f.agency.ID).
			Return(tenancy.MailConfig{}, tenancy.NotConfigured(tenancy.CredentialMailConfig))
		_, err := f.svc.SendManualPaymentInstructions(ctx, f.agency.ID, manualInput())
		assert.ErrorIs(t, err, tenancy.ErrCredentialNotConfigured)
		assert.Zero(t, f.mailer.calls)
	})

	t.Run("unreadable agency account does not fall back", func(t *testing.T) {
		f := newPaymentFixture(t, platformMail())
		f.creds.On("MailConfig", mock.Anything, f.agency.ID).
			Return(tenancy.MailConfig{}, secrets.ErrDecryptionFailure)
		_, err := f.svc.SendManualPaymentInstructions(ctx, f.agency.ID, manualInput())
		assert.ErrorIs(t, err, secrets.ErrDecryptionFailure)
		assert.Zero(t, f.mailer.calls)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newPaymentFixture(t, platformMail())
		for _, mutate := range []func(*ManualPaymentInput){
			func(in *ManualPaymentInput) { in.ClientEmail = "not-an-email" },
			func(in *ManualPaymentInput) { in.TripDestination = " " },
			func(in *ManualPaymentInput) { in.Amount = decimal.Zero },
		} {
			input := manualInput()
			mutate(&input)
			_, err := f.svc.SendManualPaymentInstructions(ctx, f.agency.ID, input)
			assert.ErrorIs(t, err, shared.ErrInvalidInput)
		}
		f.creds.AssertNotCalled(t, "MailConfig", mock.Anything, mock.Anything)
	})

	t.Run("smtp failure", func(t *testing.T) {
		f := newPaymentFixture(t, platformMail())
		f.mailer.err = errors.New("smtp: send via smtp.odyssee.travel: 535 authentication failed")
		f.creds.On("MailConfig", mock.Anything, f.agency.ID).
			Return(tenancy.MailConfig{}, tenancy.NotConfigured(tenancy.CredentialMailConfig))
		_, err := f.svc.SendManualPaymentInstructions(ctx, f.agency.ID, manualInput())
		assert.ErrorIs(t, err, ErrMailDelivery)
	})
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "500€", FormatAmount(decimal.NewFromInt(500)))
	assert.Equal(t, "480,50€", FormatAmount(decimal.RequireFromString("480.5")))
	assert.Equal(t, "1234,56€", FormatAmount(decimal.RequireFromString("1234.56")))
}

func TestRenderInstructions_KeepsUnknownPlaceholders(t *testing.T) {
	got := RenderInstructions("{client_name} / {iban}", "Jeanne", "Rome", decimal.NewFromInt(1), "Soleil")
	assert.Equal(t, "Jeanne / {iban}", got)
}
