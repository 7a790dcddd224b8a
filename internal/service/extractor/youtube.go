package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/kkdai/youtube/v2"
)

// YouTube is the in-process backend built on github.com/kkdai/youtube/v2.
type YouTube struct {
	client *youtube.Client
}

// NewYouTube creates the backend. httpClient must not carry an overall timeout since it
// also serves long media streams.
func NewYouTube(httpClient *http.Client) *YouTube {
	return &YouTube{
		client: &youtube.Client{HTTPClient: httpClient},
	}
}

// Name implements Extractor.
func (y *YouTube) Name() string { return "youtube" }

// ValidateURL implements Extractor.
func (y *YouTube) ValidateURL(rawURL string) error {
	if _, err := youtube.ExtractVideoID(rawURL); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	return nil
}

// Video implements Extractor.
func (y *YouTube) Video(ctx context.Context, rawURL string) (*Video, error) {
	v, err := y.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, classifyYouTubeError("failed to get video", err)
	}
	return fromYouTubeVideo(rawURL, v), nil
}

// Open implements Extractor.
func (y *YouTube) Open(ctx context.Context, v *Video, f Format) (io.ReadCloser, error) {
	yv, ok := v.Handle.(*youtube.Video)
	if !ok || yv == nil {
		return nil, errors.New("video was not resolved by the youtube backend")
	}

	itag, err := strconv.Atoi(f.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid format id %q: %w", f.ID, err)
	}

	var format *youtube.Format
	for i := range yv.Formats {
		if yv.Formats[i].ItagNo == itag {
			format = &yv.Formats[i]
			break
		}
	}
	if format == nil {
		return nil, fmt.Errorf("format %d not found", itag)
	}

	stream, _, err := y.client.GetStreamContext(ctx, yv, format)
	if err != nil {
		return nil, classifyYouTubeError("failed to open stream", err)
	}
	return stream, nil
}

func classifyYouTubeError(msg string, err error) error {
	if isUnexpectedStatus(err, http.StatusTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", msg, ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUnexpectedStatus(err error, code int) bool {
	var statusErr youtube.ErrUnexpectedStatusCode
	if errors.As(err, &statusErr) {
		return int(statusErr) == code
	}
	return strings.Contains(err.Error(), "status code: "+strconv.Itoa(code))
}

func fromYouTubeVideo(rawURL string, v *youtube.Video) *Video {
	out := &Video{
		ID:            v.ID,
		Title:         v.Title,
		Author:        v.Author,
		LengthSeconds: max(int(v.Duration.Seconds()), 0),
		SourceURL:     rawURL,
		Handle:        v,
	}

	for _, t := range v.Thumbnails {
		out.Thumbnails = append(out.Thumbnails, domain.Thumbnail{
			URL:    t.URL,
			Width:  t.Width,
			Height: t.Height,
		})
	}

	for _, f := range v.Formats {
		container, codecs := ParseMimeType(f.MimeType)
		out.Formats = append(out.Formats, Format{
			ID:             strconv.Itoa(f.ItagNo),
			MimeType:       f.MimeType,
			Container:      container,
			QualityLabel:   f.QualityLabel,
			HasVideo:       strings.HasPrefix(f.MimeType, "video/"),
			HasAudio:       f.AudioChannels > 0 || f.AudioQuality != "",
			ContentLength:  f.ContentLength,
			Bitrate:        f.Bitrate,
			AverageBitrate: f.AverageBitrate,
			AudioCodec:     codecs,
		})
	}
	return out
}
