// Package tenancy holds the agency (tenant) and seller aggregates together
// with the typed credential documents an agency keeps encrypted at rest.
//
// Calendar dates (last generation date, usage reset date) are represented
// as midnight UTC of the calendar day they denote; use Date to convert a
// wall-clock instant in the quota time zone.
package tenancy
