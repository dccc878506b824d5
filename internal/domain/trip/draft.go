// Package trip holds the structured trip draft produced from a seller's
// free-text request.
package trip

import (
	"strconv"
	"strings"

	"github.com/odyssee/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransportType is how travellers reach the destination
type TransportType string

const (
	TransportPlane TransportType = "avion"
	TransportTrain TransportType = "train"
	TransportCoach TransportType = "autocar"
	TransportCar   TransportType = "voiture"
)

// IsValid returns true for a known transport
func (t TransportType) IsValid() bool {
	switch t {
	case TransportPlane, TransportTrain, TransportCoach, TransportCar:
		return true
	}
	return false
}

// MealPlan is the board basis of the stay
type MealPlan string

const (
	MealRoomOnly  MealPlan = "logement_seul"
	MealBreakfast MealPlan = "petit_dejeuner"
	MealHalfBoard MealPlan = "demi_pension"
	MealFullBoard MealPlan = "pension_complete"
	MealAllIn     MealPlan = "all_in"
)

// IsValid returns true for a known meal plan
func (m MealPlan) IsValid() bool {
	switch m {
	case MealRoomOnly, MealBreakfast, MealHalfBoard, MealFullBoard, MealAllIn:
		return true
	}
	return false
}

// Default values applied by Normalize
const (
	DefaultTransport = TransportPlane
	DefaultNumPeople = 2
	DefaultDuration  = 3
)

// ErrInvalidDraft is returned when a draft has no usable destination
var ErrInvalidDraft = shared.NewDomainError("INVALID_TRIP_DRAFT", "Trip draft has no destination")

// Draft is the structured form of a trip request
type Draft struct {
	Destination       string           `json:"destination"`
	TransportType     TransportType    `json:"transport_type"`
	IsDayTrip         bool             `json:"is_day_trip"`
	Activities        []string         `json:"activities"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	HotelName         string           `json:"hotel_name,omitempty"`
	EstimatedDuration int              `json:"estimated_duration"`
	Stars             int              `json:"stars,omitempty"`
	MealPlan          MealPlan         `json:"meal_plan,omitempty"`
	NumPeople         int              `json:"num_people"`
	DepartureCity     string           `json:"departure_city,omitempty"`
}

// Normalize replaces out-of-range values with defaults and rejects a
// draft without destination. Day trips always last zero nights.
func (d *Draft) Normalize() error {
	d.Destination = strings.TrimSpace(d.Destination)
	if d.Destination == "" {
		return ErrInvalidDraft
	}

	if !d.TransportType.IsValid() {
		d.TransportType = DefaultTransport
	}
	if d.MealPlan != "" && !d.MealPlan.IsValid() {
		d.MealPlan = ""
	}
	if d.Stars != 0 {
		d.Stars = min(max(d.Stars, 1), 5)
	}
	if d.NumPeople <= 0 {
		d.NumPeople = DefaultNumPeople
	}

	switch {
	case d.IsDayTrip:
		d.EstimatedDuration = 0
	case d.EstimatedDuration <= 0:
		d.EstimatedDuration = DefaultDuration
	}

	if d.Price != nil && !d.Price.IsPositive() {
		d.Price = nil
	}

	activities := make([]string, 0, len(d.Activities))
	for _, a := range d.Activities {
		if a = strings.TrimSpace(a); a != "" {
			activities = append(activities, a)
		}
	}
	d.Activities = activities
	d.HotelName = strings.TrimSpace(d.HotelName)
	d.DepartureCity = strings.TrimSpace(d.DepartureCity)
	return nil
}

// Title is a short human title, e.g. "Rome, Italie - 3 jours"
func (d Draft) Title() string {
	switch {
	case d.IsDayTrip:
		return d.Destination + " - excursion"
	case d.EstimatedDuration == 1:
		return d.Destination + " - 1 jour"
	default:
		return d.Destination + " - " + strconv.Itoa(d.EstimatedDuration) + " jours"
	}
}

// TotalPrice returns price per person times NumPeople, or zero when no price is known
func (d Draft) TotalPrice() decimal.Decimal {
	if d.Price == nil {
		return decimal.Zero
	}
	return d.Price.Mul(decimal.NewFromInt(int64(d.NumPeople)))
}
