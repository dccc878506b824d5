package trip

import "net/url"

// Enrichment is public data about a trip gathered from Google services
// with the agency's own key. Every part is optional.
type Enrichment struct {
	Hotel  *HotelInfo
	Photos []Photo
	Videos []Video
}

// HotelInfo is what Google Places knows about the booked hotel
type HotelInfo struct {
	Name        string
	Rating      float64
	RatingCount int
	Website     string
	Phone       string
}

// Photo is a hotel picture. URL never carries an API key.
type Photo struct {
	URL string
	// Attribution names the author, which Google requires to be shown
	Attribution string
}

// Video is a YouTube video about the destination
type Video struct {
	ID        string
	Title     string
	Thumbnail string
}

// WatchURL is the public YouTube page of the video
func (v Video) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(v.ID)
}

// IsEmpty reports whether nothing was gathered
func (e Enrichment) IsEmpty() bool {
	return e.Hotel == nil && len(e.Photos) == 0 && len(e.Videos) == 0
}
