// Package publishing uploads rendered trip sheets to the agency's own
// hosting, either an FTP account or an S3-compatible bucket.
package publishing

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Document is a rendered page ready for upload
type Document struct {
	// Name is the file name without extension; it is slugified before use
	Name        string
	Content     []byte
	ContentType string
}

// Result describes where a document was published
type Result struct {
	// Location is the backend-specific address (ftp://host/path/file, s3://bucket/key)
	Location string
	// URL is the public address when the backend knows one
	URL string
}

// Slugify turns a trip title into a file-name-safe slug:
// "Séjour à Rome !" becomes "sejour-a-rome".
func Slugify(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "voyage"
	}
	return slug
}

func fileName(doc Document) string {
	return Slugify(doc.Name) + ".html"
}

func contentType(doc Document) string {
	if doc.ContentType != "" {
		return doc.ContentType
	}
	return "text/html; charset=utf-8"
}
