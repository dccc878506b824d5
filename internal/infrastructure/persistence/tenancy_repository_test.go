package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormAgencyRepository(t *testing.T) {
	db := setupTenancyTestDB(t)
	repo := NewGormAgencyRepository(db)
	ctx := context.Background()
	today := time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC)

	soleil := seedAgency(t, db, "soleil", 100, today)
	azur := seedAgency(t, db, "azur", 50, today)

	azur.IsActive = false
	require.NoError(t, repo.Save(ctx, azur))

	t.Run("find by subdomain is case insensitive", func(t *testing.T) {
		found, err := repo.FindBySubdomain(ctx, " Soleil ")
		require.NoError(t, err)
		assert.Equal(t, soleil.ID, found.ID)
		assert.Equal(t, time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC), found.UsageResetDate)
	})

	t.Run("unknown subdomain", func(t *testing.T) {
		_, err := repo.FindBySubdomain(ctx, "nowhere")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = repo.FindBySubdomain(ctx, "")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("active and all listings", func(t *testing.T) {
		active, err := repo.FindAllActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "soleil", active[0].Subdomain)

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "azur", all[0].Subdomain)
	})

	t.Run("update secrets replaces blobs and keeps counters", func(t *testing.T) {
		soleil.CurrentMonthUsage = 7
		require.NoError(t, repo.Save(ctx, soleil))

		updated, err := repo.UpdateSecrets(ctx, soleil.ID, map[tenancy.CredentialField]string{
			tenancy.CredentialGoogleAPIKey: "blob-1",
			tenancy.CredentialMailConfig:   "blob-2",
		})
		require.NoError(t, err)
		assert.Equal(t, "blob-1", updated.Secrets.GoogleAPIKey)

		found, err := repo.FindByID(ctx, soleil.ID)
		require.NoError(t, err)
		assert.Equal(t, "blob-1", found.Secrets.GoogleAPIKey)
		assert.Equal(t, "blob-2", found.Secrets.MailConfig)
		assert.Empty(t, found.Secrets.StripeAPIKey)
		assert.Equal(t, 7, found.CurrentMonthUsage)
	})

	t.Run("update secrets leaves other blobs alone", func(t *testing.T) {
		updated, err := repo.UpdateSecrets(ctx, soleil.ID, map[tenancy.CredentialField]string{
			tenancy.CredentialMailConfig:   "",
			tenancy.CredentialStripeAPIKey: "blob-3",
		})
		require.NoError(t, err)
		assert.Equal(t, "blob-1", updated.Secrets.GoogleAPIKey)
		assert.Equal(t, "blob-3", updated.Secrets.StripeAPIKey)
		assert.Empty(t, updated.Secrets.MailConfig)
	})

	t.Run("update secrets with nothing to change", func(t *testing.T) {
		updated, err := repo.UpdateSecrets(ctx, soleil.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, "blob-1", updated.Secrets.GoogleAPIKey)
	})

	t.Run("update secrets of unknown agency", func(t *testing.T) {
		_, err := repo.UpdateSecrets(ctx, uuid.New(), map[tenancy.CredentialField]string{
			tenancy.CredentialGoogleAPIKey: "blob",
		})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("update secrets rejects unknown fields", func(t *testing.T) {
		_, err := repo.UpdateSecrets(ctx, soleil.ID, map[tenancy.CredentialField]string{"is_active": "0"})
		require.Error(t, err)
		found, err := repo.FindByID(ctx, soleil.ID)
		require.NoError(t, err)
		assert.True(t, found.IsActive)
	})
}

func TestGormAgencyRepository_ConcurrentSecretUpdates(t *testing.T) {
	db := setupTenancyTestDB(t)
	repo := NewGormAgencyRepository(db)
	ctx := context.Background()
	agency := seedAgency(t, db, "soleil", 100, time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC))

	fields := tenancy.AllCredentialFields()
	for round := range 20 {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for _, field := range fields {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := repo.UpdateSecrets(ctx, agency.ID, map[tenancy.CredentialField]string{
					field: fmt.Sprintf("%s-%d", field, round),
				})
				assert.NoError(t, err)
			}()
		}
		close(start)
		wg.Wait()

		found, err := repo.FindByID(ctx, agency.ID)
		require.NoError(t, err)
		for _, field := range fields {
			assert.Equal(t, fmt.Sprintf("%s-%d", field, round), found.Secrets.Get(field), "round %d", round)
		}
	}
}

func TestGormSellerRepository_ScopedToAgency(t *testing.T) {
	db := setupTenancyTestDB(t)
	repo := NewGormSellerRepository(db)
	ctx := context.Background()
	today := time.Date(2026, time.May, 4, 0, 0, 0, 0, time.UTC)

	soleil := seedAgency(t, db, "soleil", 100, today)
	azur := seedAgency(t, db, "azur", 100, today)
	marie := seedSeller(t, db, soleil.ID, "marie", 5, today)

	found, err := repo.FindByIDForAgency(ctx, soleil.ID, marie.ID)
	require.NoError(t, err)
	assert.Equal(t, "marie", found.Username)
	assert.Equal(t, tenancy.RoleSeller, found.Role)

	_, err = repo.FindByIDForAgency(ctx, azur.ID, marie.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
