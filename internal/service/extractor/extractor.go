// Package extractor resolves video URLs into format descriptors and opens media streams.
package extractor

import (
	"context"
	"errors"
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/emanuelef/ytstream-api/internal/domain"
)

var (
	// ErrRateLimited is returned when the upstream site throttles this server (HTTP 429).
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrUnsupportedURL is returned when a URL does not identify a single video.
	ErrUnsupportedURL = errors.New("unsupported video URL")
)

// Format describes one downloadable rendition as reported by a backend.
type Format struct {
	ID             string
	MimeType       string
	Container      string
	QualityLabel   string
	HasVideo       bool
	HasAudio       bool
	ContentLength  int64
	Bitrate        int
	AverageBitrate int
	AudioCodec     string
}

// Video is a resolved video. Handle is backend-private state needed by Open.
type Video struct {
	ID            string
	Title         string
	Author        string
	LengthSeconds int
	Thumbnails    []domain.Thumbnail
	Formats       []Format
	SourceURL     string
	Handle        any
}

// Extractor is implemented by each extraction backend.
type Extractor interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// ValidateURL reports whether rawURL names a single video. It never touches the network.
	ValidateURL(rawURL string) error
	// Video fetches metadata and the format list.
	Video(ctx context.Context, rawURL string) (*Video, error)
	// Open starts streaming the bytes of format f. Cancelling ctx aborts the stream.
	Open(ctx context.Context, v *Video, f Format) (io.ReadCloser, error)
}

// ParseMimeType splits "video/mp4; codecs=\"avc1, mp4a\"" into its container subtype and
// codecs parameter.
func ParseMimeType(s string) (container, codecs string) {
	mediaType, params, err := mime.ParseMediaType(s)
	if err != nil {
		mediaType, _, _ = strings.Cut(s, ";")
		mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok {
		container = sub
	}
	return container, params["codecs"]
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([0-9A-Za-z_-]{11})(?:[&#]|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`/(?:embed|shorts|live|v)/([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
}

// ExtractVideoID returns the 11-character video ID embedded in rawURL.
func ExtractVideoID(rawURL string) (string, error) {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", ErrUnsupportedURL
}
