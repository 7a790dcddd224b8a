// Package resolver turns video URLs into client-facing metadata, with caching.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	"github.com/emanuelef/ytstream-api/internal/service/extractor"
	"golang.org/x/sync/singleflight"
)

// MetadataStore is the cache the resolver reads through.
type MetadataStore interface {
	Get(url string) (*domain.VideoMetadata, bool)
	Set(url string, md *domain.VideoMetadata)
}

// Resolver serves metadata from the cache, or fetches it through the extractor.
type Resolver struct {
	extractor extractor.Extractor
	cache     MetadataStore
	timeout   time.Duration
	sfGroup   singleflight.Group
}

// New creates a Resolver. timeout bounds each upstream fetch; zero means no bound.
func New(ex extractor.Extractor, cache MetadataStore, timeout time.Duration) *Resolver {
	return &Resolver{
		extractor: ex,
		cache:     cache,
		timeout:   timeout,
	}
}

// Resolve returns metadata for url. Concurrent misses for the same URL share one upstream
// call. Errors are *domain.Error values.
func (r *Resolver) Resolve(ctx context.Context, url string) (*domain.VideoMetadata, error) {
	if md, ok := r.cache.Get(url); ok {
		slog.Debug("Cache hit", "url", url)
		return md, nil
	}

	result, err, shared := r.sfGroup.Do(url, func() (any, error) {
		// re-check: a flight that finished just before this one may have filled it
		if md, ok := r.cache.Get(url); ok {
			return md, nil
		}
		return r.fetch(ctx, url)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}
	return result.(*domain.VideoMetadata), nil
}

func (r *Resolver) fetch(ctx context.Context, url string) (*domain.VideoMetadata, error) {
	// Waiters sharing this flight must not fail because the leader's client went away.
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	backend := r.extractor.Name()
	video, err := r.extractor.Video(ctx, url)
	if err != nil {
		if errors.Is(err, extractor.ErrRateLimited) {
			metrics.UpstreamRequestsTotal.WithLabelValues(backend, metrics.UpstreamRateLimited).Inc()
			slog.Warn("Upstream rate limited", "url", url, "backend", backend, "error", err)
			return nil, domain.NewError(domain.KindRateLimited, domain.MsgUpstreamRateLimited, err)
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(backend, metrics.UpstreamError).Inc()
		slog.Error("Failed to fetch video info", "url", url, "backend", backend, "error", err)
		return nil, domain.NewError(domain.KindUpstream, domain.MsgInfoFailed, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(backend, metrics.UpstreamOK).Inc()

	md := BuildMetadata(url, video)
	r.cache.Set(url, md)
	slog.Info("Resolved video", "url", url, "id", md.ID,
		"progressive_formats", len(md.ProgressiveFormats),
		"audio_formats", len(md.AudioFormats))
	return md, nil
}

// BuildMetadata maps an extractor result to the client-facing shape. Progressive mp4
// formats are sorted by quality number, highest first, keeping upstream order on ties.
// Audio-only formats keep upstream order.
func BuildMetadata(url string, v *extractor.Video) *domain.VideoMetadata {
	md := &domain.VideoMetadata{
		ID:                 v.ID,
		Title:              v.Title,
		Author:             v.Author,
		LengthSeconds:      max(v.LengthSeconds, 0),
		Thumbnails:         make([]domain.Thumbnail, 0, len(v.Thumbnails)),
		SourceURL:          url,
		ProgressiveFormats: []domain.ProgressiveFormat{},
		AudioFormats:       []domain.AudioFormat{},
	}
	md.Thumbnails = append(md.Thumbnails, v.Thumbnails...)

	for _, f := range v.Formats {
		switch {
		case f.IsProgressiveMP4():
			pf := domain.ProgressiveFormat{
				FormatID:     f.ID,
				QualityLabel: f.QualityLabel,
				Container:    f.Container,
			}
			if f.ContentLength > 0 {
				size := f.ContentLength
				pf.ApproxSizeBytes = &size
			}
			if f.Bitrate > 0 {
				bitrate := f.Bitrate
				pf.Bitrate = &bitrate
			}
			md.ProgressiveFormats = append(md.ProgressiveFormats, pf)
		case f.IsAudioOnly():
			md.AudioFormats = append(md.AudioFormats, domain.AudioFormat{
				FormatID:       f.ID,
				MimeType:       f.MimeType,
				AverageBitrate: f.AverageBitrate,
				AudioCodec:     f.AudioCodec,
			})
		}
	}

	sort.SliceStable(md.ProgressiveFormats, func(i, j int) bool {
		return extractor.QualityNumber(md.ProgressiveFormats[i].QualityLabel) >
			extractor.QualityNumber(md.ProgressiveFormats[j].QualityLabel)
	})
	return md
}
