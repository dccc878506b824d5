// Package scheduler runs periodic read-only background jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ActiveAgencyLister lists the agencies whose usage is reported
type ActiveAgencyLister interface {
	FindAllActive(ctx context.Context) ([]tenancy.Agency, error)
}

// UsageRecorder receives the monthly usage ratio of each agency
type UsageRecorder interface {
	RecordMonthlyUsageRatio(ctx context.Context, agencyID, subdomain string, ratio float64)
}

// UsageReport summarises one reporting run
type UsageReport struct {
	Agencies int
	// NearLimit lists the subdomains at or above the warning ratio
	NearLimit []string
}

// UsageReporter periodically publishes each active agency's monthly
// generation usage as a gauge and warns about agencies close to their limit.
// It never writes to the database; resets are applied to the reported
// value only.
type UsageReporter struct {
	agencies  ActiveAgencyLister
	recorder  UsageRecorder
	clock     clockwork.Clock
	location  *time.Location
	interval  time.Duration
	warnRatio float64
	timeout   time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// UsageReporterOption configures a UsageReporter
type UsageReporterOption func(*UsageReporter)

// WithClock overrides the clock
func WithClock(clock clockwork.Clock) UsageReporterOption {
	return func(r *UsageReporter) {
		r.clock = clock
	}
}

// WithLocation sets the time zone used to determine the current month
func WithLocation(loc *time.Location) UsageReporterOption {
	return func(r *UsageReporter) {
		r.location = loc
	}
}

// NewUsageReporter creates a reporter from the scheduler configuration
func NewUsageReporter(
	agencies ActiveAgencyLister,
	recorder UsageRecorder,
	cfg config.SchedulerConfig,
	logger *zap.Logger,
	opts ...UsageReporterOption,
) (*UsageReporter, error) {
	if cfg.UsageReportInterval <= 0 {
		return nil, fmt.Errorf("%w: usage report interval must be positive", ErrInvalidConfig)
	}
	if cfg.UsageWarnRatio < 0 {
		return nil, fmt.Errorf("%w: usage warn ratio cannot be negative", ErrInvalidConfig)
	}

	r := &UsageReporter{
		agencies:  agencies,
		recorder:  recorder,
		clock:     clockwork.NewRealClock(),
		location:  time.UTC,
		interval:  cfg.UsageReportInterval,
		warnRatio: cfg.UsageWarnRatio,
		timeout:   min(cfg.UsageReportInterval, time.Minute),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start schedules the report every interval, with a first run right away
func (r *UsageReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return ErrAlreadyRunning
	}

	s, err := gocron.NewScheduler(gocron.WithClock(r.clock), gocron.WithLocation(r.location))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(r.run, context.WithoutCancel(ctx)),
		gocron.WithName("agency-usage-report"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("register usage report job: %w", err)
	}

	s.Start()
	r.scheduler = s

	r.logger.Info("Usage reporter started", zap.Duration("interval", r.interval))
	return nil
}

// Stop waits for a running report to finish and stops the scheduler
func (r *UsageReporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler == nil {
		return nil
	}
	err := r.scheduler.Shutdown()
	r.scheduler = nil
	r.logger.Info("Usage reporter stopped")
	return err
}

func (r *UsageReporter) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("Usage report failed", zap.Error(err))
	}
}

// RunOnce reports every active agency once
func (r *UsageReporter) RunOnce(ctx context.Context) (*UsageReport, error) {
	agencies, err := r.agencies.FindAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active agencies: %w", err)
	}

	today := tenancy.Date(r.clock.Now(), r.location)
	report := &UsageReport{Agencies: len(agencies)}

	for i := range agencies {
		agency := agencies[i]
		agency.ResetMonthlyIfStale(today)

		ratio := UsageRatio(agency.CurrentMonthUsage, agency.MonthlyGenerationLimit)
		r.recorder.RecordMonthlyUsageRatio(ctx, agency.ID.String(), agency.Subdomain, ratio)

		if r.warnRatio > 0 && ratio >= r.warnRatio {
			report.NearLimit = append(report.NearLimit, agency.Subdomain)
			r.logger.Warn("Agency close to its monthly generation limit",
				zap.String("agency_id", agency.ID.String()),
				zap.String("subdomain", agency.Subdomain),
				zap.Int("used", agency.CurrentMonthUsage),
				zap.Int("limit", agency.MonthlyGenerationLimit),
				zap.Time("resets_at", agency.NextResetDate()))
		}
	}

	r.logger.Debug("Usage report finished",
		zap.Int("agencies", report.Agencies),
		zap.Int("near_limit", len(report.NearLimit)))
	return report, nil
}

// UsageRatio is used/limit; an agency with a zero limit counts as full
func UsageRatio(used, limit int) float64 {
	if limit <= 0 {
		return 1
	}
	return float64(used) / float64(limit)
}
