package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/odyssee/backend/internal/domain/tenancy"
	"github.com/odyssee/backend/internal/domain/trip"
	"github.com/odyssee/backend/internal/infrastructure/logger"
	"github.com/odyssee/backend/internal/infrastructure/publishing"
	"github.com/odyssee/backend/internal/infrastructure/render"
	"go.uber.org/zap"
)

// Sheet output formats
const (
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// SheetTemplater renders the HTML trip sheet
type SheetTemplater interface {
	Render(branding render.Branding, draft trip.Draft, extras trip.Enrichment, generatedAt time.Time) ([]byte, error)
}

// PlaceLookup gathers hotel details and destination videos with an agency key
type PlaceLookup interface {
	Hotel(ctx context.Context, apiKey, placeID string) (*trip.HotelInfo, []trip.Photo, error)
	Videos(ctx context.Context, apiKey, destination string) ([]trip.Video, error)
}

// PDFPrinter converts HTML to PDF
type PDFPrinter interface {
	Render(ctx context.Context, html []byte) ([]byte, error)
}

// FTPTarget uploads a document to an FTP account
type FTPTarget interface {
	Publish(ctx context.Context, cfg tenancy.FTPConfig, doc publishing.Document) (*publishing.Result, error)
}

// S3Target uploads a document to an S3-compatible bucket
type S3Target interface {
	Publish(ctx context.Context, cfg tenancy.S3Config, doc publishing.Document) (*publishing.Result, error)
}

// PublicationConfigSource opens the agency's publication target
type PublicationConfigSource interface {
	PublicationConfig(ctx context.Context, agencyID uuid.UUID) (tenancy.PublicationConfig, error)
}

// SheetInput is a draft to render with optional branding overrides
type SheetInput struct {
	Draft trip.Draft
	// HotelPlaceID is the Google Places ID of the booked hotel
	HotelPlaceID string
	PrimaryColor string
	ContactEmail string
	ContactPhone string
	Format       string
}

// Sheet is a rendered trip sheet
type Sheet struct {
	Title       string
	FileName    string
	ContentType string
	Content     []byte
}

// PublishResult tells where a sheet was published
type PublishResult struct {
	Kind     tenancy.PublicationKind `json:"kind"`
	Location string                  `json:"location"`
	URL      string                  `json:"url,omitempty"`
}

// PublicationService renders trip sheets and publishes them to the agency's site
type PublicationService struct {
	agencies tenancy.AgencyRepository
	configs  PublicationConfigSource
	sheets   SheetTemplater
	pdf      PDFPrinter
	ftp      FTPTarget
	s3       S3Target
	places   PlaceLookup
	keys     GoogleKeySource
	clock    clockwork.Clock
	logger   *zap.Logger
}

// PublicationDeps groups the collaborators of PublicationService
type PublicationDeps struct {
	Agencies tenancy.AgencyRepository
	Configs  PublicationConfigSource
	Sheets   SheetTemplater
	PDF      PDFPrinter
	FTP      FTPTarget
	S3       S3Target
	// Places and Keys are optional; without them sheets are not enriched
	Places PlaceLookup
	Keys   GoogleKeySource
	Clock  clockwork.Clock
}

// NewPublicationService creates a new publication service
func NewPublicationService(deps PublicationDeps, logger *zap.Logger) *PublicationService {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PublicationService{
		agencies: deps.Agencies,
		configs:  deps.Configs,
		sheets:   deps.Sheets,
		pdf:      deps.PDF,
		ftp:      deps.FTP,
		s3:       deps.S3,
		places:   deps.Places,
		keys:     deps.Keys,
		clock:    clock,
		logger:   logger,
	}
}

// RenderSheet renders the draft as HTML, or as PDF when input.Format is "pdf"
func (s *PublicationService) RenderSheet(ctx context.Context, agencyID uuid.UUID, input SheetInput) (*Sheet, error) {
	agency, err := s.agencies.FindByID(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	draft := input.Draft
	if err := draft.Normalize(); err != nil {
		return nil, err
	}

	extras, err := s.enrich(ctx, agencyID, input.HotelPlaceID, draft)
	if err != nil {
		return nil, err
	}

	html, err := s.sheets.Render(branding(agency, input), draft, extras, s.clock.Now())
	if err != nil {
		return nil, err
	}

	slug := publishing.Slugify(draft.Title())
	switch input.Format {
	case "", FormatHTML:
		return &Sheet{
			Title:       draft.Title(),
			FileName:    slug + ".html",
			ContentType: "text/html; charset=utf-8",
			Content:     html,
		}, nil
	case FormatPDF:
		if s.pdf == nil {
			return nil, render.NewRenderError(render.ErrCodeRenderFailed, "PDF export is not available", nil)
		}
		pdf, err := s.pdf.Render(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Sheet{
			Title:       draft.Title(),
			FileName:    slug + ".pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}, nil
	}
	return nil, tripInputError(fmt.Sprintf("unknown sheet format %q", input.Format))
}

// Publish renders the HTML sheet and uploads it to the agency's FTP
// account or bucket. The publication config is opened right before the
// upload and dropped afterwards.
func (s *PublicationService) Publish(ctx context.Context, agencyID uuid.UUID, input SheetInput) (*PublishResult, error) {
	input.Format = FormatHTML
	sheet, err := s.RenderSheet(ctx, agencyID, input)
	if err != nil {
		return nil, err
	}

	cfg, err := s.configs.PublicationConfig(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	doc := publishing.Document{
		Name:        sheet.Title,
		Content:     sheet.Content,
		ContentType: sheet.ContentType,
	}

	var res *publishing.Result
	switch cfg.Kind {
	case tenancy.PublicationFTP:
		res, err = s.ftp.Publish(ctx, *cfg.FTP, doc)
	case tenancy.PublicationS3:
		res, err = s.s3.Publish(ctx, *cfg.S3, doc)
	default:
		// OpenJSON validated the document, so this is unreachable short of a new kind
		return nil, fmt.Errorf("publication: unsupported kind %q", cfg.Kind)
	}
	if err != nil {
		logger.Bind(ctx, s.logger).Warn("Trip sheet publication failed",
			zap.String("agency_id", agencyID.String()),
			zap.String("kind", string(cfg.Kind)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPublicationFailed, err)
	}

	logger.Bind(ctx, s.logger).Info("Trip sheet published",
		zap.String("agency_id", agencyID.String()),
		zap.String("kind", string(cfg.Kind)),
		zap.String("location", res.Location))
	return &PublishResult{Kind: cfg.Kind, Location: res.Location, URL: res.URL}, nil
}

// enrich gathers hotel details, photos and videos with the agency's Google
// key, opened right before the calls. An agency without a key gets a plain
// sheet; a key that cannot be decrypted fails the render. Lookup failures
// only cost the enrichment.
func (s *PublicationService) enrich(ctx context.Context, agencyID uuid.UUID, placeID string, draft trip.Draft) (trip.Enrichment, error) {
	var extras trip.Enrichment
	if s.places == nil || s.keys == nil {
		return extras, nil
	}

	log := logger.Bind(ctx, s.logger).With(zap.String("agency_id", agencyID.String()))
	key, err := s.keys.GoogleAPIKey(ctx, agencyID)
	if err != nil {
		if errors.Is(err, tenancy.ErrCredentialNotConfigured) {
			log.Debug("No Google key, sheet is not enriched")
			return extras, nil
		}
		return extras, err
	}

	if placeID != "" && !draft.IsDayTrip {
		hotel, photos, err := s.places.Hotel(ctx, key, placeID)
		if err != nil {
			log.Warn("Hotel lookup failed", zap.String("place_id", placeID), zap.Error(err))
		} else {
			extras.Hotel, extras.Photos = hotel, photos
		}
	}

	videos, err := s.places.Videos(ctx, key, draft.Destination)
	if err != nil {
		log.Warn("Video search failed", zap.Error(err))
	} else {
		extras.Videos = videos
	}
	return extras, nil
}

func branding(agency *tenancy.Agency, input SheetInput) render.Branding {
	return render.Branding{
		AgencyName:   agency.Name,
		PrimaryColor: input.PrimaryColor,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
	}
}
