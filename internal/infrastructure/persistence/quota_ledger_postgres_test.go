package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/migration"
	"github.com/odyssee/backend/internal/infrastructure/persistence/models"
	"github.com/odyssee/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgresLedgerDB starts PostgreSQL in a container and applies the
// embedded migrations. Row locks are real here, unlike the SQLite tests.
func setupPostgresLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("odyssee_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrateDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.NewFromFS(migrateDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(20)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestGormQuotaLedger_Postgres_ConcurrentLimits(t *testing.T) {
	db := setupPostgresLedgerDB(t)
	ctx := context.Background()
	today := tenancy.Date(time.Now(), time.UTC)

	agency := seedAgency(t, db, "lyon", 12, today)
	sellers := []*tenancy.Seller{
		seedSeller(t, db, agency.ID, "camille", 5, today),
		seedSeller(t, db, agency.ID, "hugo", 5, today),
		seedSeller(t, db, agency.ID, "ines", 5, today),
	}

	ledger := NewGormQuotaLedger(db, WithLockTimeout(5*time.Second))

	var out concurrentOutcome
	var wg sync.WaitGroup
	for i := range 60 {
		seller := sellers[i%len(sellers)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CheckAndIncrement(ctx, seller.ID, agency.ID)
			out.record(err)
		}()
	}
	wg.Wait()

	// 3 sellers x 5 per day would allow 15; the agency stops at 12
	assert.Equal(t, int64(12), out.allowed.Load())
	assert.Equal(t, int64(48), out.deniedFor(billing.ReasonAgencyMonthlyLimit)+out.deniedFor(billing.ReasonSellerDailyLimit))
	assert.Zero(t, out.failed.Load())

	var stored models.AgencyModel
	require.NoError(t, db.Where("id = ?", agency.ID).Take(&stored).Error)
	assert.Equal(t, 12, stored.CurrentMonthUsage)

	var sellerSum int
	for _, s := range sellers {
		var m models.SellerModel
		require.NoError(t, db.Where("id = ?", s.ID).Take(&m).Error)
		assert.LessOrEqual(t, m.GenerationCount, 5, s.Username)
		sellerSum += m.GenerationCount
	}
	assert.Equal(t, 12, sellerSum)
}

func TestGormQuotaLedger_Postgres_InactiveSeller(t *testing.T) {
	db := setupPostgresLedgerDB(t)
	ctx := context.Background()
	today := tenancy.Date(time.Now(), time.UTC)

	agency := seedAgency(t, db, "nice", 10, today)
	seller := seedSeller(t, db, agency.ID, "lea", 5, today)
	require.NoError(t, db.Model(&models.SellerModel{}).Where("id = ?", seller.ID).Update("is_active", false).Error)

	_, err := NewGormQuotaLedger(db).CheckAndIncrement(ctx, seller.ID, agency.ID)
	denied, ok := billing.IsQuotaDenied(err)
	require.True(t, ok, "expected a quota denial, got %v", err)
	assert.Equal(t, billing.ReasonSellerInactive, denied.Reason)

	var stored models.AgencyModel
	require.NoError(t, db.Where("id = ?", agency.ID).Take(&stored).Error)
	assert.Zero(t, stored.CurrentMonthUsage)
}
