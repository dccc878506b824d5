package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/application/payment"
	apptenancy "github.com/odyssee/backend/internal/application/tenancy"
	"github.com/odyssee/backend/internal/application/trip"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/stretchr/testify/mock"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type mockTripGenerator struct {
	mock.Mock
}

func (m *mockTripGenerator) Generate(ctx context.Context, input trip.GenerateInput) (*trip.GenerateResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.GenerateResult), args.Error(1)
}

type mockQuotaReader struct {
	mock.Mock
}

func (m *mockQuotaReader) Usage(ctx context.Context, sellerID, agencyID uuid.UUID) (*billing.QuotaUsage, error) {
	args := m.Called(ctx, sellerID, agencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.QuotaUsage), args.Error(1)
}

type mockCredentialManager struct {
	mock.Mock
}

func (m *mockCredentialManager) Status(ctx context.Context, agencyID uuid.UUID) (*apptenancy.CredentialStatus, error) {
	args := m.Called(ctx, agencyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apptenancy.CredentialStatus), args.Error(1)
}

func (m *mockCredentialManager) UpdateCredentials(ctx context.Context, agencyID uuid.UUID, input apptenancy.UpdateCredentialsInput) (*apptenancy.CredentialStatus, error) {
	args := m.Called(ctx, agencyID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apptenancy.CredentialStatus), args.Error(1)
}

type mockSheetPublisher struct {
	mock.Mock
}

func (m *mockSheetPublisher) RenderSheet(ctx context.Context, agencyID uuid.UUID, input trip.SheetInput) (*trip.Sheet, error) {
	args := m.Called(ctx, agencyID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.Sheet), args.Error(1)
}

func (m *mockSheetPublisher) Publish(ctx context.Context, agencyID uuid.UUID, input trip.SheetInput) (*trip.PublishResult, error) {
	args := m.Called(ctx, agencyID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trip.PublishResult), args.Error(1)
}

type mockPaymentRequester struct {
	mock.Mock
}

func (m *mockPaymentRequester) CreateDepositLink(ctx context.Context, agencyID uuid.UUID, input payment.DepositLinkInput) (*payment.DepositLink, error) {
	args := m.Called(ctx, agencyID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.DepositLink), args.Error(1)
}

func (m *mockPaymentRequester) SendManualPaymentInstructions(ctx context.Context, agencyID uuid.UUID, input payment.ManualPaymentInput) (*payment.ManualPaymentResult, error) {
	args := m.Called(ctx, agencyID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ManualPaymentResult), args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping() error { return p.err }

var errDatabaseDown = errors.New("dial tcp: connection refused")
