package extractor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"
)

func TestParseMimeType(t *testing.T) {
	tests := []struct {
		in            string
		wantContainer string
		wantCodecs    string
	}{
		{`video/mp4; codecs="avc1.42001E, mp4a.40.2"`, "mp4", "avc1.42001E, mp4a.40.2"},
		{`audio/webm; codecs="opus"`, "webm", "opus"},
		{`audio/mp4`, "mp4", ""},
		{`garbage`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, codecs := ParseMimeType(tt.in)
			if c != tt.wantContainer || codecs != tt.wantCodecs {
				t.Errorf("ParseMimeType(%q) = (%q, %q), want (%q, %q)", tt.in, c, codecs, tt.wantContainer, tt.wantCodecs)
			}
		})
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://m.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=4", "dQw4w9WgXcQ", false},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/", "", true},
		{"https://www.youtube.com/watch?v=short", "", true},
		{"https://www.youtube.com/playlist?list=PL123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ExtractVideoID(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedURL) {
					t.Errorf("expected ErrUnsupportedURL, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ExtractVideoID(%q) = (%q, %v), want %q", tt.url, got, err, tt.want)
			}
		})
	}
}

func TestYouTube_ValidateURL(t *testing.T) {
	y := NewYouTube(nil)

	if err := y.ValidateURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"); err != nil {
		t.Errorf("valid watch URL rejected: %v", err)
	}
	if err := y.ValidateURL("https://www.youtube.com/"); !errors.Is(err, ErrUnsupportedURL) {
		t.Errorf("expected ErrUnsupportedURL for channel root, got %v", err)
	}
}

func TestFromYouTubeVideo(t *testing.T) {
	yv := &youtube.Video{
		ID:       "dQw4w9WgXcQ",
		Title:    "Never Gonna Give You Up",
		Author:   "Rick Astley",
		Duration: 213 * time.Second,
		Thumbnails: youtube.Thumbnails{
			{URL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg", Width: 120, Height: 90},
		},
		Formats: youtube.FormatList{
			{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, QualityLabel: "360p", Bitrate: 500000, AudioChannels: 2, ContentLength: 1234},
			{ItagNo: 137, MimeType: `video/mp4; codecs="avc1.640028"`, QualityLabel: "1080p", Bitrate: 4000000},
			{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, AverageBitrate: 129000, AudioChannels: 2},
		},
	}

	v := fromYouTubeVideo("https://youtu.be/dQw4w9WgXcQ", yv)

	if v.ID != "dQw4w9WgXcQ" || v.Author != "Rick Astley" || v.LengthSeconds != 213 {
		t.Errorf("unexpected video fields: %+v", v)
	}
	if v.Handle != yv {
		t.Error("Handle should keep the library video for Open")
	}
	if len(v.Thumbnails) != 1 || v.Thumbnails[0].Width != 120 {
		t.Errorf("thumbnails = %+v", v.Thumbnails)
	}
	if len(v.Formats) != 3 {
		t.Fatalf("len(Formats) = %d, want 3", len(v.Formats))
	}

	progressive := v.Formats[0]
	if progressive.ID != "18" || !progressive.HasVideo || !progressive.HasAudio || progressive.Container != "mp4" {
		t.Errorf("progressive format mapped wrong: %+v", progressive)
	}
	if progressive.ContentLength != 1234 {
		t.Errorf("ContentLength = %d, want 1234", progressive.ContentLength)
	}

	videoOnly := v.Formats[1]
	if !videoOnly.HasVideo || videoOnly.HasAudio {
		t.Errorf("video-only format mapped wrong: %+v", videoOnly)
	}

	audio := v.Formats[2]
	if audio.HasVideo || !audio.HasAudio || audio.AudioCodec != "mp4a.40.2" || audio.AverageBitrate != 129000 {
		t.Errorf("audio format mapped wrong: %+v", audio)
	}
}

func TestYouTube_OpenRejectsForeignVideo(t *testing.T) {
	y := NewYouTube(nil)
	_, err := y.Open(context.Background(), &Video{ID: "x"}, Format{ID: "18"})
	if err == nil {
		t.Fatal("expected error for a video without a youtube handle")
	}
}

func TestClassifyYouTubeError(t *testing.T) {
	err := classifyYouTubeError("failed to get video", youtube.ErrUnexpectedStatusCode(429))
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("429 should map to ErrRateLimited, got %v", err)
	}

	err = classifyYouTubeError("failed to get video", youtube.ErrUnexpectedStatusCode(500))
	if errors.Is(err, ErrRateLimited) {
		t.Errorf("500 should not map to ErrRateLimited")
	}
}

const ytdlpFixture = `{
  "id": "dQw4w9WgXcQ",
  "title": "Never Gonna Give You Up",
  "uploader": "Rick Astley",
  "duration": 212.9,
  "thumbnails": [{"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg", "width": 480, "height": 360}, {"url": ""}],
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "vcodec": "none", "acodec": "none"},
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 129.5, "tbr": 129.5, "filesize": 3433000},
    {"format_id": "18", "ext": "mp4", "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "height": 360, "fps": 25, "tbr": 503.2, "filesize": null, "filesize_approx": 13400000},
    {"format_id": "299", "ext": "mp4", "vcodec": "avc1.64002a", "acodec": "none", "height": 1080, "fps": 60, "tbr": 4500}
  ]
}`

func TestParseYtDlpInfo(t *testing.T) {
	v, err := parseYtDlpInfo([]byte(ytdlpFixture))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if v.Author != "Rick Astley" || v.LengthSeconds != 212 {
		t.Errorf("unexpected fields: author=%q length=%d", v.Author, v.LengthSeconds)
	}
	if len(v.Thumbnails) != 1 {
		t.Errorf("empty thumbnail URLs should be skipped, got %d", len(v.Thumbnails))
	}
	if len(v.Formats) != 3 {
		t.Fatalf("storyboards should be skipped, got %d formats", len(v.Formats))
	}

	audio := v.Formats[0]
	if audio.HasVideo || !audio.HasAudio || audio.AverageBitrate != 129500 || audio.Container != "m4a" {
		t.Errorf("audio mapped wrong: %+v", audio)
	}
	if audio.MimeType != `audio/mp4; codecs="mp4a.40.2"` {
		t.Errorf("audio MimeType = %q", audio.MimeType)
	}

	progressive := v.Formats[1]
	if progressive.QualityLabel != "360p" || !progressive.HasVideo || !progressive.HasAudio {
		t.Errorf("progressive mapped wrong: %+v", progressive)
	}
	if progressive.ContentLength != 13400000 {
		t.Errorf("ContentLength should fall back to filesize_approx, got %d", progressive.ContentLength)
	}

	if v.Formats[2].QualityLabel != "1080p60" {
		t.Errorf("QualityLabel = %q, want 1080p60", v.Formats[2].QualityLabel)
	}
}

func TestParseYtDlpInfo_Invalid(t *testing.T) {
	if _, err := parseYtDlpInfo([]byte("not json")); err == nil {
		t.Error("expected parse error")
	}
}

// fakeYtDlp writes a shell script standing in for the yt-dlp binary.
func fakeYtDlp(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	return path
}

func TestYtDlp_VideoAndOpen(t *testing.T) {
	script := `case "$1" in
--dump-single-json)
cat <<'JSON'
` + ytdlpFixture + `
JSON
;;
--format)
printf 'format-%s-bytes' "$2"
;;
esac
`
	d := NewYtDlp(fakeYtDlp(t, script))
	url := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	v, err := d.Video(context.Background(), url)
	if err != nil {
		t.Fatalf("Video failed: %v", err)
	}
	if v.SourceURL != url || v.Title != "Never Gonna Give You Up" {
		t.Errorf("unexpected video: %+v", v)
	}

	rc, err := d.Open(context.Background(), v, v.Formats[1])
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "format-18-bytes" {
		t.Errorf("stream = %q", got)
	}
}

func TestYtDlp_RateLimited(t *testing.T) {
	d := NewYtDlp(fakeYtDlp(t, "echo 'ERROR: unable to download: HTTP Error 429: Too Many Requests' >&2\nexit 1\n"))

	_, err := d.Video(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestYtDlp_OpenFailureSurfacesAtEOF(t *testing.T) {
	d := NewYtDlp(fakeYtDlp(t, "printf partial\necho 'ERROR: Video unavailable' >&2\nexit 1\n"))

	rc, err := d.Open(context.Background(), &Video{SourceURL: "https://youtu.be/dQw4w9WgXcQ"}, Format{ID: "18"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if string(got) != "partial" {
		t.Errorf("got %q, want partial", got)
	}
	if err == nil {
		t.Fatal("expected failure to surface at end of stream")
	}
}

func TestYtDlp_ValidateURL(t *testing.T) {
	d := NewYtDlp("")
	if err := d.ValidateURL("https://youtu.be/dQw4w9WgXcQ"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	if err := d.ValidateURL("https://www.youtube.com/feed/trending"); err == nil {
		t.Error("non-video URL accepted")
	}
}
