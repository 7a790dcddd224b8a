// Package pipeline resolves, selects and streams media downloads to HTTP clients.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	"github.com/emanuelef/ytstream-api/internal/service/extractor"
	"github.com/emanuelef/ytstream-api/internal/service/transcoder"
	"github.com/emanuelef/ytstream-api/pkg/filename"
	"golang.org/x/sync/semaphore"
)

// Delivery kinds, also used as metric labels.
const (
	DeliveryMP4 = "mp4"
	DeliveryMP3 = "mp3"
)

// Fallback names for titles that sanitize to nothing.
const (
	fallbackVideoName = "video"
	fallbackAudioName = "audio"
)

// Config holds pipeline settings.
type Config struct {
	// DefaultAudioBitrate is used when a request has no usable abr value (kbps).
	DefaultAudioBitrate int
	// MaxConcurrentTranscodes bounds running ffmpeg processes.
	MaxConcurrentTranscodes int64
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		DefaultAudioBitrate:     192,
		MaxConcurrentTranscodes: 4,
	}
}

// Pipeline prepares and streams downloads.
type Pipeline struct {
	extractor      extractor.Extractor
	transcoder     transcoder.Transcoder
	transcodes     *semaphore.Weighted
	defaultBitrate int
}

// New creates a Pipeline.
func New(ex extractor.Extractor, tc transcoder.Transcoder, cfg Config) *Pipeline {
	if cfg.DefaultAudioBitrate <= 0 {
		cfg.DefaultAudioBitrate = DefaultConfig().DefaultAudioBitrate
	}
	if cfg.MaxConcurrentTranscodes <= 0 {
		cfg.MaxConcurrentTranscodes = DefaultConfig().MaxConcurrentTranscodes
	}
	return &Pipeline{
		extractor:      ex,
		transcoder:     tc,
		transcodes:     semaphore.NewWeighted(cfg.MaxConcurrentTranscodes),
		defaultBitrate: cfg.DefaultAudioBitrate,
	}
}

// Delivery is a selected download whose bytes have not been opened yet.
type Delivery struct {
	Kind        string
	ContentType string
	Filename    string
	Format      extractor.Format
	// Bitrate is the MP3 output bitrate in kbps; zero for MP4.
	Bitrate int

	open func(ctx context.Context) (io.ReadCloser, error)
}

// Open starts the byte source. Errors are *domain.Error values.
func (d *Delivery) Open(ctx context.Context) (io.ReadCloser, error) {
	return d.open(ctx)
}

// PrepareMP4 resolves the video and selects a progressive mp4 format.
func (p *Pipeline) PrepareMP4(ctx context.Context, req domain.DownloadRequest) (*Delivery, error) {
	video, err := p.resolve(ctx, req.SourceURL, domain.MsgMP4StartFailed)
	if err != nil {
		return nil, err
	}

	format, err := SelectMP4(video.Formats, req.FormatID)
	if err != nil {
		return nil, err
	}

	return &Delivery{
		Kind:        DeliveryMP4,
		ContentType: "video/mp4",
		Filename:    filename.Sanitize(video.Title, fallbackVideoName) + ".mp4",
		Format:      format,
		open: func(ctx context.Context) (io.ReadCloser, error) {
			rc, err := p.extractor.Open(ctx, video, format)
			if err != nil {
				return nil, domain.NewError(domain.KindStreaming, domain.MsgStreaming, err)
			}
			return rc, nil
		},
	}, nil
}

// PrepareMP3 resolves the video and selects the best audio-only input for transcoding.
func (p *Pipeline) PrepareMP3(ctx context.Context, req domain.DownloadRequest) (*Delivery, error) {
	video, err := p.resolve(ctx, req.SourceURL, domain.MsgMP3StartFailed)
	if err != nil {
		return nil, err
	}

	format, err := SelectAudio(video.Formats)
	if err != nil {
		return nil, err
	}

	kbps := ParseBitrate(req.AudioBitrate, p.defaultBitrate)
	return &Delivery{
		Kind:        DeliveryMP3,
		ContentType: "audio/mpeg",
		Filename:    filename.Sanitize(video.Title, fallbackAudioName) + ".mp3",
		Format:      format,
		Bitrate:     kbps,
		open: func(ctx context.Context) (io.ReadCloser, error) {
			return p.openTranscode(ctx, video, format, kbps)
		},
	}, nil
}

func (p *Pipeline) resolve(ctx context.Context, url, startFailedMsg string) (*extractor.Video, error) {
	backend := p.extractor.Name()
	video, err := p.extractor.Video(ctx, url)
	if err != nil {
		if errors.Is(err, extractor.ErrRateLimited) {
			metrics.UpstreamRequestsTotal.WithLabelValues(backend, metrics.UpstreamRateLimited).Inc()
			return nil, domain.NewError(domain.KindRateLimited, domain.MsgUpstreamRateLimited, err)
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(backend, metrics.UpstreamError).Inc()
		return nil, domain.NewError(domain.KindUpstream, startFailedMsg, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(backend, metrics.UpstreamOK).Inc()
	return video, nil
}

func (p *Pipeline) openTranscode(ctx context.Context, video *extractor.Video, format extractor.Format, kbps int) (io.ReadCloser, error) {
	if err := p.transcodes.Acquire(ctx, 1); err != nil {
		return nil, domain.NewError(domain.KindConversion, domain.MsgConversion, err)
	}
	release := func() { p.transcodes.Release(1) }

	src, err := p.extractor.Open(ctx, video, format)
	if err != nil {
		release()
		return nil, domain.NewError(domain.KindConversion, domain.MsgConversion, err)
	}

	out, err := p.transcoder.MP3(ctx, src, kbps)
	if err != nil {
		src.Close()
		release()
		return nil, domain.NewError(domain.KindConversion, domain.MsgConversion, err)
	}

	return &transcodeStream{ReadCloser: out, src: src, release: release}, nil
}

// transcodeStream owns the encoder output, its input and a transcode slot.
type transcodeStream struct {
	io.ReadCloser
	src     io.Closer
	release func()
	once    sync.Once
}

func (t *transcodeStream) Close() error {
	var err error
	t.once.Do(func() {
		// closing the input first unblocks the encoder's stdin copy
		srcErr := t.src.Close()
		err = t.ReadCloser.Close()
		if err == nil {
			err = srcErr
		}
		t.release()
	})
	return err
}

// SelectMP4 picks a progressive mp4 format. With an id it must match exactly; without one
// the highest quality wins, then the highest bitrate.
func SelectMP4(formats []extractor.Format, formatID string) (extractor.Format, error) {
	formatID = strings.TrimSpace(formatID)

	var best extractor.Format
	found := false
	for _, f := range formats {
		if !f.IsProgressiveMP4() {
			continue
		}
		if formatID != "" {
			if f.ID == formatID {
				return f, nil
			}
			continue
		}
		if !found || betterMP4(f, best) {
			best = f
			found = true
		}
	}

	if !found {
		return extractor.Format{}, domain.NewError(domain.KindFormatUnavailable, domain.MsgNoMP4Format, nil)
	}
	return best, nil
}

func betterMP4(candidate, current extractor.Format) bool {
	cq := extractor.QualityNumber(candidate.QualityLabel)
	bq := extractor.QualityNumber(current.QualityLabel)
	if cq != bq {
		return cq > bq
	}
	return candidate.Bitrate > current.Bitrate
}

// SelectAudio picks the audio-only format with the highest effective bitrate.
func SelectAudio(formats []extractor.Format) (extractor.Format, error) {
	var best extractor.Format
	found := false
	for _, f := range formats {
		if !f.IsAudioOnly() {
			continue
		}
		if !found || f.EffectiveBitrate() > best.EffectiveBitrate() {
			best = f
			found = true
		}
	}
	if !found {
		return extractor.Format{}, domain.NewError(domain.KindFormatUnavailable, domain.MsgNoAudioFormat, nil)
	}
	return best, nil
}

// ParseBitrate reads an abr query value in kbps. Missing, non-numeric or non-positive
// values yield def; the result is clamped to the encoder's range.
func ParseBitrate(raw string, def int) int {
	kbps, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || kbps <= 0 {
		slog.Debug("Using default audio bitrate", "abr", raw, "default", def)
		kbps = def
	}
	return transcoder.ClampBitrate(kbps)
}
