// Package transcoder converts audio byte streams to MP3 with ffmpeg.
package transcoder

import (
	"context"
	"io"
	"strconv"

	"github.com/emanuelef/ytstream-api/internal/infra/proc"
)

// Bitrate bounds in kbps accepted by the MP3 encoder.
const (
	MinBitrate = 32
	MaxBitrate = 320
)

// Transcoder is implemented by MP3 encoders.
type Transcoder interface {
	// MP3 reads src and returns the encoded stream. Read errors on src and encoder
	// failures surface from the returned reader's Read.
	MP3(ctx context.Context, src io.Reader, kbps int) (io.ReadCloser, error)
}

// FFmpeg runs one ffmpeg process per conversion, stdin to stdout.
type FFmpeg struct {
	path string
}

// NewFFmpeg creates the transcoder. path defaults to "ffmpeg" on $PATH.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path}
}

// MP3 implements Transcoder.
func (f *FFmpeg) MP3(ctx context.Context, src io.Reader, kbps int) (io.ReadCloser, error) {
	stream, err := proc.Start(ctx, f.path, mp3Args(kbps), proc.Options{Stdin: src})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// ClampBitrate limits kbps to [MinBitrate, MaxBitrate].
func ClampBitrate(kbps int) int {
	return min(max(kbps, MinBitrate), MaxBitrate)
}

func mp3Args(kbps int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(ClampBitrate(kbps)) + "k",
		"-f", "mp3",
		"pipe:1",
	}
}
