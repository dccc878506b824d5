package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/odyssee/backend/internal/domain/trip"
	"github.com/odyssee/backend/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	// ErrPlaceNotFound means Places has no place with the given ID
	ErrPlaceNotFound = errors.New("places: place not found")
	// ErrPlacesUpstream covers transport failures and non-2xx answers of
	// Places and YouTube
	ErrPlacesUpstream = errors.New("places: upstream error")
)

const (
	placeFieldMask = "displayName,rating,userRatingCount,websiteUri,nationalPhoneNumber,photos"
	photoMaxWidth  = 1200
	maxPlaceBytes  = 256 << 10
)

// PlacesClient looks up hotel details and photos on Google Places (New)
// and destination videos on YouTube. The key always travels in the
// X-Goog-Api-Key header so that it never shows in URLs, traces or the
// photo addresses put on a sheet.
type PlacesClient struct {
	endpoint        string
	youtubeEndpoint string
	language        string
	maxPhotos       int
	maxVideos       int
	httpClient      *http.Client
	logger          *zap.Logger
}

// PlacesOption configures a PlacesClient
type PlacesOption func(*PlacesClient)

// WithPlacesHTTPClient replaces the HTTP client
func WithPlacesHTTPClient(c *http.Client) PlacesOption {
	return func(p *PlacesClient) {
		p.httpClient = c
	}
}

// NewPlacesClient creates a client
func NewPlacesClient(cfg config.PlacesConfig, logger *zap.Logger, opts ...PlacesOption) *PlacesClient {
	p := &PlacesClient{
		endpoint:        strings.TrimRight(cfg.Endpoint, "/"),
		youtubeEndpoint: strings.TrimRight(cfg.YouTubeEndpoint, "/"),
		language:        cfg.Language,
		maxPhotos:       cfg.MaxPhotos,
		maxVideos:       cfg.MaxVideos,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type placeResponse struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	Rating              float64 `json:"rating"`
	UserRatingCount     int     `json:"userRatingCount"`
	WebsiteURI          string  `json:"websiteUri"`
	NationalPhoneNumber string  `json:"nationalPhoneNumber"`
	Photos              []struct {
		Name               string `json:"name"`
		AuthorAttributions []struct {
			DisplayName string `json:"displayName"`
		} `json:"authorAttributions"`
	} `json:"photos"`
}

type photoMediaResponse struct {
	PhotoURI string `json:"photoUri"`
}

// Hotel returns the details of placeID and up to MaxPhotos photo
// addresses. A photo that cannot be resolved is skipped.
func (p *PlacesClient) Hotel(ctx context.Context, apiKey, placeID string) (*trip.HotelInfo, []trip.Photo, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, nil, ErrPlaceNotFound
	}

	q := url.Values{}
	if p.language != "" {
		q.Set("languageCode", p.language)
	}
	endpoint := p.endpoint + "/places/" + url.PathEscape(placeID)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var place placeResponse
	if err := p.getJSON(ctx, endpoint, apiKey, map[string]string{"X-Goog-FieldMask": placeFieldMask}, &place); err != nil {
		return nil, nil, err
	}

	hotel := &trip.HotelInfo{
		Name:        place.DisplayName.Text,
		Rating:      place.Rating,
		RatingCount: place.UserRatingCount,
		Website:     place.WebsiteURI,
		Phone:       place.NationalPhoneNumber,
	}

	photos := make([]trip.Photo, 0, min(len(place.Photos), p.maxPhotos))
	for _, ph := range place.Photos {
		if len(photos) >= p.maxPhotos {
			break
		}
		uri, err := p.photoURI(ctx, apiKey, ph.Name)
		if err != nil {
			p.logger.Debug("Skipping hotel photo", zap.String("photo", ph.Name), zap.Error(err))
			continue
		}
		photo := trip.Photo{URL: uri}
		if len(ph.AuthorAttributions) > 0 {
			photo.Attribution = ph.AuthorAttributions[0].DisplayName
		}
		photos = append(photos, photo)
	}

	p.logger.Debug("Hotel details fetched",
		zap.String("place_id", placeID),
		zap.Int("photos", len(photos)))
	return hotel, photos, nil
}

// photoURI resolves a photo resource name to its keyless googleusercontent address
func (p *PlacesClient) photoURI(ctx context.Context, apiKey, name string) (string, error) {
	// Resource names look like places/{place}/photos/{photo}
	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != "places" || parts[2] != "photos" || parts[1] == "" || parts[3] == "" {
		return "", fmt.Errorf("%w: unexpected photo name %q", ErrPlacesUpstream, name)
	}

	q := url.Values{}
	q.Set("maxWidthPx", strconv.Itoa(photoMaxWidth))
	q.Set("skipHttpRedirect", "true")
	endpoint := fmt.Sprintf("%s/places/%s/photos/%s/media?%s",
		p.endpoint, url.PathEscape(parts[1]), url.PathEscape(parts[3]), q.Encode())

	var media photoMediaResponse
	if err := p.getJSON(ctx, endpoint, apiKey, nil, &media); err != nil {
		return "", err
	}
	if !strings.HasPrefix(media.PhotoURI, "https://") {
		return "", fmt.Errorf("%w: photo has no https address", ErrPlacesUpstream)
	}
	return media.PhotoURI, nil
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// Videos searches embeddable YouTube videos about destination
func (p *PlacesClient) Videos(ctx context.Context, apiKey, destination string) ([]trip.Video, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" || p.maxVideos <= 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", "voyage "+destination)
	q.Set("type", "video")
	q.Set("videoEmbeddable", "true")
	q.Set("maxResults", strconv.Itoa(p.maxVideos))
	if p.language != "" {
		q.Set("relevanceLanguage", p.language)
	}

	var out youtubeSearchResponse
	if err := p.getJSON(ctx, p.youtubeEndpoint+"/search?"+q.Encode(), apiKey, nil, &out); err != nil {
		return nil, err
	}

	videos := make([]trip.Video, 0, len(out.Items))
	for _, item := range out.Items {
		if item.ID.VideoID == "" {
			continue
		}
		thumb := item.Snippet.Thumbnails["high"].URL
		if thumb == "" {
			thumb = item.Snippet.Thumbnails["default"].URL
		}
		videos = append(videos, trip.Video{
			ID:        item.ID.VideoID,
			Title:     item.Snippet.Title,
			Thumbnail: thumb,
		})
	}
	return videos, nil
}

func (p *PlacesClient) getJSON(ctx context.Context, endpoint, apiKey string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("places: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Goog-Api-Key", apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlacesUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaceBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrPlacesUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := apiMessage(data)
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrPlaceNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
			resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key"):
			return fmt.Errorf("%w: %s", ErrInvalidAPIKey, msg)
		default:
			return fmt.Errorf("%w: status %d: %s", ErrPlacesUpstream, resp.StatusCode, msg)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrPlacesUpstream, err)
	}
	return nil
}

// apiMessage extracts the Google error message, truncated for logs
func apiMessage(body []byte) string {
	var apiErr apiError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
