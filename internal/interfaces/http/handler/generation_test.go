package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	apptrip "github.com/odyssee/backend/internal/application/trip"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/trip"
	"github.com/odyssee/backend/internal/interfaces/http/dto"
	"github.com/odyssee/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testUsage(agencyID, sellerID uuid.UUID, daily, monthly int) *billing.QuotaUsage {
	return &billing.QuotaUsage{
		SellerID:        sellerID,
		AgencyID:        agencyID,
		DailyUsed:       daily,
		DailyLimit:      5,
		DailyResetsAt:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		MonthlyUsed:     monthly,
		MonthlyLimit:    100,
		MonthlyResetsAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerationHandler_Generate(t *testing.T) {
	agencyID, sellerID := uuid.New(), uuid.New()

	t.Run("returns the draft and remaining quota", func(t *testing.T) {
		gen := new(mockTripGenerator)
		h := NewGenerationHandler(newTestBase(), gen, new(mockQuotaReader))
		router := newTestRouter(http.MethodPost, "/generations", agencyID, sellerID, h.Generate)

		draft := &trip.Draft{Destination: "Rome", TransportType: trip.TransportPlane, EstimatedDuration: 3, NumPeople: 2}
		gen.On("Generate", mock.Anything, apptrip.GenerateInput{
			AgencyID:       agencyID,
			SellerID:       sellerID,
			Prompt:         "Rome 3 jours en avion",
			IdempotencyKey: "key-1",
		}).Return(&apptrip.GenerateResult{
			Draft: draft,
			Title: draft.Title(),
			Quota: testUsage(agencyID, sellerID, 3, 42),
		}, nil).Once()

		req := jsonRequest(http.MethodPost, "/generations", `{"prompt":"Rome 3 jours en avion"}`)
		req.Header.Set(middleware.IdempotencyKeyHeader, "key-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp dto.GenerateTripResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
		assert.Equal(t, "Rome - 3 jours", resp.Title)
		assert.Equal(t, "Rome", resp.Draft.Destination)
		assert.Equal(t, 2, resp.Quota.DailyRemaining)
		assert.Equal(t, 58, resp.Quota.MonthlyRemaining)
		gen.AssertExpectations(t)
	})

	t.Run("empty prompt never reaches the service", func(t *testing.T) {
		gen := new(mockTripGenerator)
		h := NewGenerationHandler(newTestBase(), gen, new(mockQuotaReader))
		router := newTestRouter(http.MethodPost, "/generations", agencyID, sellerID, h.Generate)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/generations", `{"prompt":""}`))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("quota denied", func(t *testing.T) {
		gen := new(mockTripGenerator)
		h := NewGenerationHandler(newTestBase(), gen, new(mockQuotaReader))
		router := newTestRouter(http.MethodPost, "/generations", agencyID, sellerID, h.Generate)

		gen.On("Generate", mock.Anything, mock.Anything).Return(nil, &billing.QuotaDeniedError{
			Reason:   billing.ReasonAgencyMonthlyLimit,
			Used:     100,
			Limit:    100,
			ResetsAt: testNow.Add(time.Hour),
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/generations", `{"prompt":"Lisbonne"}`))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
		assert.Equal(t, dto.ErrCodeQuotaDenied, decodeEnvelope(t, rec).Error.Code)
	})

	t.Run("duplicate idempotency key", func(t *testing.T) {
		gen := new(mockTripGenerator)
		h := NewGenerationHandler(newTestBase(), gen, new(mockQuotaReader))
		router := newTestRouter(http.MethodPost, "/generations", agencyID, sellerID, h.Generate)

		gen.On("Generate", mock.Anything, mock.Anything).Return(nil, shared.ErrDuplicate)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/generations", `{"prompt":"Lisbonne"}`))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGenerationHandler_Quota(t *testing.T) {
	agencyID, sellerID := uuid.New(), uuid.New()
	quota := new(mockQuotaReader)
	h := NewGenerationHandler(newTestBase(), new(mockTripGenerator), quota)
	router := newTestRouter(http.MethodGet, "/quota", agencyID, sellerID, h.Quota)

	quota.On("Usage", mock.Anything, sellerID, agencyID).Return(testUsage(agencyID, sellerID, 5, 10), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quota", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.QuotaResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, 5, resp.DailyUsed)
	assert.Equal(t, 0, resp.DailyRemaining)
	assert.Equal(t, 90, resp.MonthlyRemaining)
	quota.AssertExpectations(t)
}

func TestGenerationHandler_QuotaUnknownSeller(t *testing.T) {
	quota := new(mockQuotaReader)
	h := NewGenerationHandler(newTestBase(), new(mockTripGenerator), quota)
	router := newTestRouter(http.MethodGet, "/quota", uuid.New(), uuid.New(), h.Quota)

	quota.On("Usage", mock.Anything, mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quota", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
