// Package billing talks to the payment provider on behalf of agencies.
// Each call uses the calling agency's own Stripe key; there is no
// platform-wide key.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"
)

// ErrInvalidStripeKey is returned for keys that are obviously not Stripe secret keys
var ErrInvalidStripeKey = errors.New("stripe: api key must start with sk_ or rk_")

// DepositLinkInput describes the deposit a client pays for a trip
type DepositLinkInput struct {
	AgencyID uuid.UUID
	TripName string
	Amount   decimal.Decimal
}

// PaymentLink is a hosted payment page
type PaymentLink struct {
	ID        string
	URL       string
	ProductID string
	PriceID   string
	Amount    decimal.Decimal
	Currency  string
}

// StripePaymentLinks creates one-off payment links with per-agency keys
type StripePaymentLinks struct {
	currency   string
	successURL string
	backends   *stripe.Backends
	logger     *zap.Logger
}

// StripeOption configures StripePaymentLinks
type StripeOption func(*StripePaymentLinks)

// WithBackends replaces the HTTP backends, mainly for tests
func WithBackends(backends *stripe.Backends) StripeOption {
	return func(s *StripePaymentLinks) {
		s.backends = backends
	}
}

// NewStripePaymentLinks creates the adapter
func NewStripePaymentLinks(cfg config.StripeConfig, logger *zap.Logger, opts ...StripeOption) *StripePaymentLinks {
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "eur"
	}
	s := &StripePaymentLinks{
		currency:   currency,
		successURL: cfg.SuccessURL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateSecretKey performs a format check on a Stripe secret key
func ValidateSecretKey(key string) error {
	if strings.HasPrefix(key, "sk_") || strings.HasPrefix(key, "rk_") {
		return nil
	}
	return ErrInvalidStripeKey
}

// ToMinorUnits converts an amount to cents, rounding half away from zero
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreateDepositLink creates a product "Acompte - <trip>", a price for the
// amount and a payment link for that price.
func (s *StripePaymentLinks) CreateDepositLink(ctx context.Context, apiKey string, input DepositLinkInput) (*PaymentLink, error) {
	if err := ValidateSecretKey(apiKey); err != nil {
		return nil, err
	}
	cents := ToMinorUnits(input.Amount)
	if cents <= 0 {
		return nil, fmt.Errorf("stripe: deposit amount must be positive, got %s", input.Amount.String())
	}
	tripName := strings.TrimSpace(input.TripName)
	if tripName == "" {
		return nil, fmt.Errorf("stripe: trip name is required")
	}

	sc := client.New(apiKey, s.backends)
	agencyID := input.AgencyID.String()

	productParams := &stripe.ProductParams{
		Name: stripe.String("Acompte - " + tripName),
	}
	productParams.Context = ctx
	productParams.AddMetadata("agency_id", agencyID)

	product, err := sc.Products.New(productParams)
	if err != nil {
		s.logger.Error("Failed to create Stripe product",
			zap.String("agency_id", agencyID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create product: %w", err)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(product.ID),
		UnitAmount: stripe.Int64(cents),
		Currency:   stripe.String(s.currency),
	}
	priceParams.Context = ctx

	price, err := sc.Prices.New(priceParams)
	if err != nil {
		s.logger.Error("Failed to create Stripe price",
			zap.String("agency_id", agencyID),
			zap.String("product_id", product.ID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create price: %w", err)
	}

	linkParams := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{
				Price:    stripe.String(price.ID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if s.successURL != "" {
		linkParams.AfterCompletion = &stripe.PaymentLinkAfterCompletionParams{
			Type: stripe.String(string(stripe.PaymentLinkAfterCompletionTypeRedirect)),
			Redirect: &stripe.PaymentLinkAfterCompletionRedirectParams{
				URL: stripe.String(s.successURL),
			},
		}
	}
	linkParams.Context = ctx
	linkParams.AddMetadata("agency_id", agencyID)

	link, err := sc.PaymentLinks.New(linkParams)
	if err != nil {
		s.logger.Error("Failed to create Stripe payment link",
			zap.String("agency_id", agencyID),
			zap.String("price_id", price.ID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create payment link: %w", err)
	}

	s.logger.Info("Created Stripe payment link",
		zap.String("agency_id", agencyID),
		zap.String("payment_link_id", link.ID))

	return &PaymentLink{
		ID:        link.ID,
		URL:       link.URL,
		ProductID: product.ID,
		PriceID:   price.ID,
		Amount:    decimal.New(cents, -2),
		Currency:  s.currency,
	}, nil
}
