package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric attribute keys
var (
	AttrOutcome   = attribute.Key("outcome")
	AttrReason    = attribute.Key("reason")
	AttrField     = attribute.Key("field")
	AttrAgencyID  = attribute.Key("agency_id")
	AttrSubdomain = attribute.Key("subdomain")
)

// Quota decision outcomes
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
)

// GenerationDurationBuckets covers model round trips in seconds
var GenerationDurationBuckets = []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60}

// Metrics holds the service instruments
type Metrics struct {
	quotaDecisions     *Counter
	decryptFailures    *Counter
	generationDuration *Histogram
	monthlyUsageRatio  *FloatGauge
}

// NewMetrics registers the service instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	quotaDecisions, err := NewCounter(meter, "odyssee_quota_decisions_total",
		"Quota decisions by outcome and denial reason", "{decision}")
	if err != nil {
		return nil, err
	}
	decryptFailures, err := NewCounter(meter, "odyssee_vault_decrypt_failures_total",
		"Agency credentials that failed authenticated decryption", "{failure}")
	if err != nil {
		return nil, err
	}
	generationDuration, err := NewHistogram(meter, "odyssee_generation_duration_seconds",
		"End-to-end duration of metered trip generations", "s", GenerationDurationBuckets...)
	if err != nil {
		return nil, err
	}
	monthlyUsageRatio, err := NewFloatGauge(meter, "odyssee_agency_monthly_usage_ratio",
		"Monthly generations used over the agency limit", "1")
	if err != nil {
		return nil, err
	}
	return &Metrics{
		quotaDecisions:     quotaDecisions,
		decryptFailures:    decryptFailures,
		generationDuration: generationDuration,
		monthlyUsageRatio:  monthlyUsageRatio,
	}, nil
}

// NopMetrics returns instruments that record nothing
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

// RecordQuotaDecision counts one quota decision. reason is empty when allowed.
func (m *Metrics) RecordQuotaDecision(ctx context.Context, outcome, reason string) {
	m.quotaDecisions.Inc(ctx, AttrOutcome.String(outcome), AttrReason.String(reason))
}

// RecordDecryptFailure counts one unreadable credential
func (m *Metrics) RecordDecryptFailure(ctx context.Context, field string) {
	m.decryptFailures.Inc(ctx, AttrField.String(field))
}

// RecordGeneration records the duration of one generation request
func (m *Metrics) RecordGeneration(ctx context.Context, d time.Duration, outcome string) {
	m.generationDuration.Record(ctx, d.Seconds(), AttrOutcome.String(outcome))
}

// RecordMonthlyUsageRatio sets the usage gauge of one agency
func (m *Metrics) RecordMonthlyUsageRatio(ctx context.Context, agencyID, subdomain string, ratio float64) {
	m.monthlyUsageRatio.Record(ctx, ratio, AttrAgencyID.String(agencyID), AttrSubdomain.String(subdomain))
}
