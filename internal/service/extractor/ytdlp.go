package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/proc"
)

// YtDlp is the backend that shells out to the yt-dlp binary.
type YtDlp struct {
	path string
}

// NewYtDlp creates the backend. path defaults to "yt-dlp" on $PATH.
func NewYtDlp(path string) *YtDlp {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtDlp{path: path}
}

// Name implements Extractor.
func (d *YtDlp) Name() string { return "ytdlp" }

// ValidateURL implements Extractor.
func (d *YtDlp) ValidateURL(rawURL string) error {
	_, err := ExtractVideoID(rawURL)
	return err
}

// Video implements Extractor.
func (d *YtDlp) Video(ctx context.Context, rawURL string) (*Video, error) {
	args := []string{
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
		"--no-cache-dir",
		"--socket-timeout", "30",
		"--", rawURL,
	}

	out, err := exec.CommandContext(ctx, d.path, args...).Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("yt-dlp canceled: %w", ctxErr)
		}
		var stderr string
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, classifyYtDlpError(stderr, err)
	}

	v, err := parseYtDlpInfo(out)
	if err != nil {
		return nil, err
	}
	v.SourceURL = rawURL
	return v, nil
}

// Open implements Extractor. yt-dlp writes the selected format to stdout.
func (d *YtDlp) Open(ctx context.Context, v *Video, f Format) (io.ReadCloser, error) {
	args := []string{
		"--format", f.ID,
		"--output", "-",
		"--no-playlist",
		"--no-part",
		"--no-cache-dir",
		"--quiet",
		"--no-warnings",
		"--socket-timeout", "30",
		"--retries", "3",
		"--", v.SourceURL,
	}
	stream, err := proc.Start(ctx, d.path, args, proc.Options{Classify: classifyYtDlpError})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func classifyYtDlpError(stderr string, err error) error {
	switch {
	case strings.Contains(stderr, "HTTP Error 429"), strings.Contains(stderr, "Too Many Requests"):
		return fmt.Errorf("yt-dlp: %w: %s", ErrRateLimited, stderr)
	case strings.Contains(stderr, "Video unavailable"):
		return fmt.Errorf("video is unavailable or private: %w", err)
	case strings.Contains(stderr, "is not a valid URL"), strings.Contains(stderr, "Unsupported URL"):
		return fmt.Errorf("%w: %s", ErrUnsupportedURL, stderr)
	}
	return proc.ExitError("yt-dlp", stderr, err)
}

type ytdlpInfo struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Uploader   string           `json:"uploader"`
	Channel    string           `json:"channel"`
	Duration   float64          `json:"duration"`
	Thumbnails []ytdlpThumbnail `json:"thumbnails"`
	Formats    []ytdlpFormat    `json:"formats"`
}

type ytdlpThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
}

func parseYtDlpInfo(data []byte) (*Video, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse video info: %w", err)
	}

	author := info.Uploader
	if author == "" {
		author = info.Channel
	}

	v := &Video{
		ID:            info.ID,
		Title:         info.Title,
		Author:        author,
		LengthSeconds: max(int(info.Duration), 0),
	}

	for _, t := range info.Thumbnails {
		if t.URL == "" {
			continue
		}
		v.Thumbnails = append(v.Thumbnails, domain.Thumbnail{
			URL:    t.URL,
			Width:  uint(max(t.Width, 0)),
			Height: uint(max(t.Height, 0)),
		})
	}

	for _, f := range info.Formats {
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		if !hasVideo && !hasAudio {
			// storyboards and similar
			continue
		}

		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}

		v.Formats = append(v.Formats, Format{
			ID:             f.FormatID,
			MimeType:       ytdlpMimeType(f, hasVideo, hasAudio),
			Container:      f.Ext,
			QualityLabel:   ytdlpQualityLabel(f, hasVideo),
			HasVideo:       hasVideo,
			HasAudio:       hasAudio,
			ContentLength:  size,
			Bitrate:        int(f.TBR * 1000),
			AverageBitrate: int(f.ABR * 1000),
			AudioCodec:     ytdlpCodecs(f, hasVideo, hasAudio),
		})
	}
	return v, nil
}

func ytdlpQualityLabel(f ytdlpFormat, hasVideo bool) string {
	if !hasVideo || f.Height <= 0 {
		return ""
	}
	if f.FPS > 30 {
		return fmt.Sprintf("%dp%d", f.Height, int(f.FPS))
	}
	return fmt.Sprintf("%dp", f.Height)
}

func ytdlpCodecs(f ytdlpFormat, hasVideo, hasAudio bool) string {
	switch {
	case hasVideo && hasAudio:
		return f.VCodec + ", " + f.ACodec
	case hasAudio:
		return f.ACodec
	}
	return f.VCodec
}

func ytdlpMimeType(f ytdlpFormat, hasVideo, hasAudio bool) string {
	kind := "audio"
	if hasVideo {
		kind = "video"
	}
	ext := f.Ext
	if kind == "audio" && ext == "m4a" {
		ext = "mp4"
	}
	return fmt.Sprintf("%s/%s; codecs=%q", kind, ext, ytdlpCodecs(f, hasVideo, hasAudio))
}
