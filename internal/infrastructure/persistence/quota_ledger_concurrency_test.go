package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/billing"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTenancyTestDB opens an in-memory SQLite database holding the
// agencies and sellers tables. A single connection serialises
// transactions, which is what row locks achieve on PostgreSQL.
func setupTenancyTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.AgencyModel{}, &models.SellerModel{}))
	return db
}

func seedAgency(t *testing.T, db *gorm.DB, subdomain string, monthlyLimit int, today time.Time) *tenancy.Agency {
	t.Helper()
	agency, err := tenancy.NewAgency("Agence "+subdomain, subdomain, monthlyLimit, today)
	require.NoError(t, err)
	require.NoError(t, NewGormAgencyRepository(db).Save(context.Background(), agency))
	return agency
}

func seedSeller(t *testing.T, db *gorm.DB, agencyID uuid.UUID, username string, dailyLimit int, today time.Time) *tenancy.Seller {
	t.Helper()
	seller, err := tenancy.NewSeller(agencyID, username, username+"@example.com", tenancy.RoleSeller, dailyLimit, today)
	require.NoError(t, err)
	require.NoError(t, NewGormSellerRepository(db).Save(context.Background(), seller))
	return seller
}

type concurrentOutcome struct {
	allowed atomic.Int64
	denied  sync.Map // billing.DenialReason -> *atomic.Int64
	failed  atomic.Int64
}

func (o *concurrentOutcome) record(err error) {
	if err == nil {
		o.allowed.Add(1)
		return
	}
	if d, ok := billing.IsQuotaDenied(err); ok {
		c, _ := o.denied.LoadOrStore(d.Reason, new(atomic.Int64))
		c.(*atomic.Int64).Add(1)
		return
	}
	o.failed.Add(1)
}

func (o *concurrentOutcome) deniedFor(reason billing.DenialReason) int64 {
	c, ok := o.denied.Load(reason)
	if !ok {
		return 0
	}
	return c.(*atomic.Int64).Load()
}

func TestGormQuotaLedger_ConcurrentSellerLimit(t *testing.T) {
	now := time.Date(2026, time.June, 3, 9, 0, 0, 0, time.UTC)
	today := tenancy.Date(now, time.UTC)
	db := setupTenancyTestDB(t)
	agency := seedAgency(t, db, "azur", 100, today)
	seller := seedSeller(t, db, agency.ID, "lucas", 5, today)

	ledger := NewGormQuotaLedger(db, WithLedgerClock(clockwork.NewFakeClockAt(now)))

	const workers = 20
	var out concurrentOutcome
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CheckAndIncrement(context.Background(), seller.ID, agency.ID)
			out.record(err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), out.allowed.Load())
	assert.Equal(t, int64(workers-5), out.deniedFor(billing.ReasonSellerDailyLimit))
	assert.Zero(t, out.failed.Load())

	usage, err := ledger.Usage(context.Background(), seller.ID, agency.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, usage.DailyUsed)
	assert.Equal(t, 5, usage.MonthlyUsed)
}

func TestGormQuotaLedger_ConcurrentAgencyLimit(t *testing.T) {
	now := time.Date(2026, time.June, 3, 9, 0, 0, 0, time.UTC)
	today := tenancy.Date(now, time.UTC)
	db := setupTenancyTestDB(t)
	agency := seedAgency(t, db, "boreal", 7, today)

	sellers := []*tenancy.Seller{
		seedSeller(t, db, agency.ID, "ana", 10, today),
		seedSeller(t, db, agency.ID, "bruno", 10, today),
		seedSeller(t, db, agency.ID, "chloe", 10, today),
	}

	ledger := NewGormQuotaLedger(db, WithLedgerClock(clockwork.NewFakeClockAt(now)))

	var out concurrentOutcome
	var wg sync.WaitGroup
	for i := range 30 {
		seller := sellers[i%len(sellers)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CheckAndIncrement(context.Background(), seller.ID, agency.ID)
			out.record(err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(7), out.allowed.Load())
	assert.Equal(t, int64(23), out.deniedFor(billing.ReasonAgencyMonthlyLimit))
	assert.Zero(t, out.failed.Load())

	var stored models.AgencyModel
	require.NoError(t, db.Where("id = ?", agency.ID).Take(&stored).Error)
	assert.Equal(t, 7, stored.CurrentMonthUsage)

	var sellerSum int
	for _, s := range sellers {
		var m models.SellerModel
		require.NoError(t, db.Where("id = ?", s.ID).Take(&m).Error)
		sellerSum += m.GenerationCount
	}
	assert.Equal(t, 7, sellerSum)
}

func TestGormQuotaLedger_PeriodRollover(t *testing.T) {
	start := time.Date(2025, time.December, 31, 22, 0, 0, 0, time.UTC)
	db := setupTenancyTestDB(t)
	agency := seedAgency(t, db, "cap-nord", 2, tenancy.Date(start, time.UTC))
	seller := seedSeller(t, db, agency.ID, "diane", 2, tenancy.Date(start, time.UTC))

	clock := clockwork.NewFakeClockAt(start)
	ledger := NewGormQuotaLedger(db, WithLedgerClock(clock))
	ctx := context.Background()

	for range 2 {
		_, err := ledger.CheckAndIncrement(ctx, seller.ID, agency.ID)
		require.NoError(t, err)
	}
	_, err := ledger.CheckAndIncrement(ctx, seller.ID, agency.ID)
	require.ErrorIs(t, err, billing.ErrQuotaDenied)

	// Four hours later it is January 1st: both periods roll over.
	clock.Advance(4 * time.Hour)

	usage, err := ledger.CheckAndIncrement(ctx, seller.ID, agency.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyUsed)
	assert.Equal(t, 1, usage.MonthlyUsed)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), usage.MonthlyResetsAt)

	var stored models.AgencyModel
	require.NoError(t, db.Where("id = ?", agency.ID).Take(&stored).Error)
	assert.True(t, tenancy.SameDay(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), stored.UsageResetDate))
}

func TestGormQuotaLedger_TimeZoneDefinesToday(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 23:30 UTC on March 9th is already March 10th in Paris.
	now := time.Date(2026, time.March, 9, 23, 30, 0, 0, time.UTC)
	db := setupTenancyTestDB(t)
	agency := seedAgency(t, db, "rive-gauche", 100, tenancy.Date(now, time.UTC))
	seller := seedSeller(t, db, agency.ID, "emile", 1, tenancy.Date(now, time.UTC))

	utcLedger := NewGormQuotaLedger(db, WithLedgerClock(clockwork.NewFakeClockAt(now)))
	parisLedger := NewGormQuotaLedger(db,
		WithLedgerClock(clockwork.NewFakeClockAt(now)),
		WithLedgerLocation(paris),
	)
	ctx := context.Background()

	_, err = utcLedger.CheckAndIncrement(ctx, seller.ID, agency.ID)
	require.NoError(t, err)
	_, err = utcLedger.CheckAndIncrement(ctx, seller.ID, agency.ID)
	require.ErrorIs(t, err, billing.ErrQuotaDenied)

	usage, err := parisLedger.CheckAndIncrement(ctx, seller.ID, agency.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyUsed)
	assert.Equal(t, 2, usage.MonthlyUsed)
}

func TestGormQuotaLedger_UnknownSubjects(t *testing.T) {
	now := time.Date(2026, time.June, 3, 9, 0, 0, 0, time.UTC)
	db := setupTenancyTestDB(t)
	agency := seedAgency(t, db, "delta", 10, tenancy.Date(now, time.UTC))
	other := seedAgency(t, db, "epsilon", 10, tenancy.Date(now, time.UTC))
	seller := seedSeller(t, db, agency.ID, "fanny", 10, tenancy.Date(now, time.UTC))
	ledger := NewGormQuotaLedger(db, WithLedgerClock(clockwork.NewFakeClockAt(now)))

	_, err := ledger.CheckAndIncrement(context.Background(), seller.ID, other.ID)
	assert.True(t, errors.Is(err, ErrQuotaSubjectNotFound))

	_, err = ledger.CheckAndIncrement(context.Background(), uuid.New(), agency.ID)
	assert.True(t, errors.Is(err, ErrQuotaSubjectNotFound))

	var stored models.AgencyModel
	require.NoError(t, db.Where("id = ?", other.ID).Take(&stored).Error)
	assert.Zero(t, stored.CurrentMonthUsage)
}
