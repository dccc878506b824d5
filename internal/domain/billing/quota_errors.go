package billing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuotaDenied matches every QuotaDeniedError
	ErrQuotaDenied = errors.New("quota denied")
	// ErrQuotaCheckFailed matches every QuotaCheckFailedError
	ErrQuotaCheckFailed = errors.New("quota check failed")
)

// DenialReason explains why a generation was refused
type DenialReason string

const (
	// ReasonSellerDailyLimit means the seller used all of today's generations
	ReasonSellerDailyLimit DenialReason = "seller_daily_limit"
	// ReasonAgencyMonthlyLimit means the agency used its monthly allowance
	ReasonAgencyMonthlyLimit DenialReason = "agency_monthly_limit"
	// ReasonSellerInactive means the seller account is disabled
	ReasonSellerInactive DenialReason = "seller_inactive"
	// ReasonAgencyInactive means the agency is disabled
	ReasonAgencyInactive DenialReason = "agency_inactive"
)

// QuotaDeniedError is the expected outcome when a limit is reached.
// Nothing was mutated when it is returned.
type QuotaDeniedError struct {
	Reason   DenialReason
	Used     int
	Limit    int
	ResetsAt time.Time // zero when waiting does not help
}

// Error implements the error interface
func (e *QuotaDeniedError) Error() string {
	switch e.Reason {
	case ReasonSellerDailyLimit:
		return fmt.Sprintf("seller daily limit reached (%d/%d)", e.Used, e.Limit)
	case ReasonAgencyMonthlyLimit:
		return fmt.Sprintf("agency monthly limit reached (%d/%d)", e.Used, e.Limit)
	case ReasonSellerInactive:
		return "seller account is inactive"
	case ReasonAgencyInactive:
		return "agency is inactive"
	}
	return "quota denied"
}

// Is lets errors.Is(err, ErrQuotaDenied) match
func (e *QuotaDeniedError) Is(target error) bool {
	return target == ErrQuotaDenied
}

// RetryAfter returns how long until the limit resets, or zero when unknown
func (e *QuotaDeniedError) RetryAfter(now time.Time) time.Duration {
	if e.ResetsAt.IsZero() || !e.ResetsAt.After(now) {
		return 0
	}
	return e.ResetsAt.Sub(now)
}

// QuotaCheckFailedError reports that the quota decision could not be made
// (lock timeout, lost connection, cancelled context). It is transient and
// the transaction was rolled back.
type QuotaCheckFailedError struct {
	Cause error
}

// NewQuotaCheckFailed wraps cause
func NewQuotaCheckFailed(cause error) *QuotaCheckFailedError {
	return &QuotaCheckFailedError{Cause: cause}
}

// Error implements the error interface
func (e *QuotaCheckFailedError) Error() string {
	return fmt.Sprintf("quota check failed: %v", e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As
func (e *QuotaCheckFailedError) Unwrap() []error {
	return []error{ErrQuotaCheckFailed, e.Cause}
}

// IsQuotaDenied extracts the denial from err
func IsQuotaDenied(err error) (*QuotaDeniedError, bool) {
	var denied *QuotaDeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
