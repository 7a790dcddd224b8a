// Package extractortest provides a scriptable Extractor for tests.
package extractortest

import (
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/emanuelef/ytstream-api/internal/service/extractor"
)

// Fake is an extractor.Extractor driven by function fields. Nil fields fall back to
// permissive defaults.
type Fake struct {
	ValidateFn func(rawURL string) error
	VideoFn    func(ctx context.Context, rawURL string) (*extractor.Video, error)
	OpenFn     func(ctx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error)

	ValidateCalls atomic.Int32
	VideoCalls    atomic.Int32
	OpenCalls     atomic.Int32
}

var _ extractor.Extractor = (*Fake)(nil)

// Name implements extractor.Extractor.
func (f *Fake) Name() string { return "fake" }

// ValidateURL implements extractor.Extractor.
func (f *Fake) ValidateURL(rawURL string) error {
	f.ValidateCalls.Add(1)
	if f.ValidateFn != nil {
		return f.ValidateFn(rawURL)
	}
	return nil
}

// Video implements extractor.Extractor.
func (f *Fake) Video(ctx context.Context, rawURL string) (*extractor.Video, error) {
	f.VideoCalls.Add(1)
	if f.VideoFn != nil {
		return f.VideoFn(ctx, rawURL)
	}
	return SampleVideo(rawURL), nil
}

// Open implements extractor.Extractor.
func (f *Fake) Open(ctx context.Context, v *extractor.Video, format extractor.Format) (io.ReadCloser, error) {
	f.OpenCalls.Add(1)
	if f.OpenFn != nil {
		return f.OpenFn(ctx, v, format)
	}
	return io.NopCloser(strings.NewReader("bytes-of-" + format.ID)), nil
}

// SampleVideo returns a video with two progressive mp4 formats (360p, 720p), one
// video-only format and two audio-only formats.
func SampleVideo(rawURL string) *extractor.Video {
	return &extractor.Video{
		ID:            "dQw4w9WgXcQ",
		Title:         "Sample: Video/Title",
		Author:        "Sample Channel",
		LengthSeconds: 213,
		SourceURL:     rawURL,
		Formats: []extractor.Format{
			{ID: "18", MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Container: "mp4", QualityLabel: "360p", HasVideo: true, HasAudio: true, Bitrate: 500000, ContentLength: 1000},
			{ID: "22", MimeType: `video/mp4; codecs="avc1.64001F, mp4a.40.2"`, Container: "mp4", QualityLabel: "720p", HasVideo: true, HasAudio: true, Bitrate: 1500000},
			{ID: "137", MimeType: `video/mp4; codecs="avc1.640028"`, Container: "mp4", QualityLabel: "1080p", HasVideo: true, Bitrate: 4000000},
			{ID: "140", MimeType: `audio/mp4; codecs="mp4a.40.2"`, Container: "mp4", HasAudio: true, AverageBitrate: 129000, AudioCodec: "mp4a.40.2"},
			{ID: "251", MimeType: `audio/webm; codecs="opus"`, Container: "webm", HasAudio: true, AverageBitrate: 141000, AudioCodec: "opus"},
		},
	}
}
