// Package billing provides the generation quota rules of the platform.
//
// Two nested counters gate every metered generation:
//   - the seller's daily counter, reset when the calendar day changes
//   - the agency's monthly counter, reset when the calendar month changes
//
// ConsumeGeneration applies both resets, checks both limits (seller
// first) and increments both counters. It is pure; atomicity is provided
// by the QuotaLedger implementation that locks both rows around it.
package billing
