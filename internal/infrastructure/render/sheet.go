// Package render produces the trip sheet handed to clients, as HTML and
// optionally as PDF through headless Chrome.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/odyssee/backend/internal/domain/trip"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const defaultPrimaryColor = "#3B82F6"

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Branding is the agency identity shown on the sheet
type Branding struct {
	AgencyName   string
	PrimaryColor string
	ContactEmail string
	ContactPhone string
}

// SheetData is everything the sheet template reads
type SheetData struct {
	Branding    brandingView
	Draft       trip.Draft
	Extras      trip.Enrichment
	GeneratedAt time.Time
}

type brandingView struct {
	Branding
	PrimaryColor template.CSS
	AccentColor  template.CSS
}

// SheetRenderer renders trip sheets from the embedded template
type SheetRenderer struct {
	tmpl *template.Template
}

// NewSheetRenderer parses the embedded template
func NewSheetRenderer() (*SheetRenderer, error) {
	tmpl, err := template.New("sheet.html.tmpl").Funcs(template.FuncMap{
		"transport": formatTransport,
		"mealPlan":  formatMealPlan,
		"stars":     func(n int) string { return strings.Repeat("★", n) },
		"money":     func(d *decimal.Decimal) string { return formatMoney(*d) },
		"rating":    formatRating,
		"safeURL":   safeURL,
	}).ParseFS(templateFS, "templates/sheet.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("render: parse sheet template: %w", err)
	}
	return &SheetRenderer{tmpl: tmpl}, nil
}

// Render produces the HTML document for draft. extras may be empty.
func (r *SheetRenderer) Render(branding Branding, draft trip.Draft, extras trip.Enrichment, generatedAt time.Time) ([]byte, error) {
	color := branding.PrimaryColor
	if !hexColor.MatchString(color) {
		color = defaultPrimaryColor
	}
	if branding.AgencyName == "" {
		branding.AgencyName = "Agence de voyages"
	}

	data := SheetData{
		Branding: brandingView{
			Branding:     branding,
			PrimaryColor: template.CSS(color),
			AccentColor:  template.CSS(darken(color, 0.8)),
		},
		Draft:       draft,
		Extras:      extras,
		GeneratedAt: generatedAt,
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: execute sheet template: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTransport(t trip.TransportType) string {
	switch t {
	case trip.TransportPlane:
		return "Avion"
	case trip.TransportTrain:
		return "Train"
	case trip.TransportCoach:
		return "Autocar"
	case trip.TransportCar:
		return "Voiture"
	}
	return string(t)
}

func formatMealPlan(m trip.MealPlan) string {
	switch m {
	case trip.MealRoomOnly:
		return "Logement seul"
	case trip.MealBreakfast:
		return "Petit-déjeuner"
	case trip.MealHalfBoard:
		return "Demi-pension"
	case trip.MealFullBoard:
		return "Pension complète"
	case trip.MealAllIn:
		return "All inclusive"
	}
	return strings.ReplaceAll(string(m), "_", " ")
}

// formatRating prints 4.6 as "4,6"
func formatRating(r float64) string {
	return strings.Replace(strconv.FormatFloat(r, 'f', 1, 64), ".", ",", 1)
}

// safeURL keeps only https addresses; anything else renders as "#"
func safeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "#"
	}
	return u.String()
}

// formatMoney prints 1234.5 as "1 234,50"
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(c)
	}
	out := b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}

// darken scales each RGB channel of a #RRGGBB color by factor
func darken(hex string, factor float64) string {
	rgb, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return "#2563eb"
	}
	scale := func(shift uint) uint64 {
		return uint64(float64((rgb>>shift)&0xff) * factor)
	}
	return fmt.Sprintf("#%02x%02x%02x", scale(16), scale(8), scale(0))
}
