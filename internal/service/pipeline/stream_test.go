package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/service/extractor"
	"github.com/emanuelef/ytstream-api/internal/service/extractor/extractortest"
)

// failAfterReader yields data and then err.
type failAfterReader struct {
	data string
	err  error
}

func (r *failAfterReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func prepareMP4(t *testing.T, fake *extractortest.Fake) (*Pipeline, *Delivery) {
	t.Helper()
	p := New(fake, &mockTranscoder{}, DefaultConfig())
	d, err := p.PrepareMP4(context.Background(), domain.DownloadRequest{SourceURL: testURL})
	if err != nil {
		t.Fatalf("PrepareMP4 failed: %v", err)
	}
	return p, d
}

func TestStream_Success(t *testing.T) {
	p, d := prepareMP4(t, &extractortest.Fake{})

	rec := httptest.NewRecorder()
	if err := p.Stream(context.Background(), rec, d); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "bytes-of-22" {
		t.Errorf("body = %q", rec.Body.String())
	}

	h := rec.Header()
	if h.Get("Content-Type") != "video/mp4" {
		t.Errorf("Content-Type = %q", h.Get("Content-Type"))
	}
	if h.Get("Content-Disposition") != `attachment; filename="Sample Video Title.mp4"` {
		t.Errorf("Content-Disposition = %q", h.Get("Content-Disposition"))
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing cache/sniff headers: %v", h)
	}
}

func TestStream_OpenFailureIsPreStream(t *testing.T) {
	fake := &extractortest.Fake{
		OpenFn: func(ctx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error) {
			return nil, errors.New("403 from CDN")
		},
	}
	p, d := prepareMP4(t, fake)

	rec := httptest.NewRecorder()
	err := p.Stream(context.Background(), rec, d)

	de := domain.AsError(err)
	if de.Kind != domain.KindStreaming || de.Message != domain.MsgStreaming {
		t.Fatalf("got %v, want streaming error", err)
	}
	if rec.Body.Len() != 0 || rec.Header().Get("Content-Type") != "" {
		t.Error("nothing should be written before a pre-stream failure")
	}
}

func TestStream_MidStreamFailureAbortsHandler(t *testing.T) {
	fake := &extractortest.Fake{
		OpenFn: func(ctx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error) {
			return io.NopCloser(&failAfterReader{data: "partial", err: errors.New("upstream reset")}), nil
		},
	}
	p, d := prepareMP4(t, fake)

	rec := httptest.NewRecorder()
	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", r)
		}
		if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
			t.Errorf("committed response = %d %q", rec.Code, rec.Body.String())
		}
	}()

	p.Stream(context.Background(), rec, d)
	t.Fatal("Stream should not return after a mid-stream failure")
}

func TestStream_MidStreamFailureTruncatesTransfer(t *testing.T) {
	fake := &extractortest.Fake{
		OpenFn: func(ctx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error) {
			return io.NopCloser(&failAfterReader{data: "partial", err: errors.New("upstream reset")}), nil
		},
	}
	p, d := prepareMP4(t, fake)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := p.Stream(r.Context(), w, d); err != nil {
			t.Errorf("unexpected pre-stream error: %v", err)
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatal("client should observe a truncated transfer")
	}
	if strings.Contains(string(body), "error") {
		t.Errorf("no JSON may follow media bytes, got %q", body)
	}
}

func TestStream_MP3ThroughTranscoder(t *testing.T) {
	p := New(&extractortest.Fake{}, &mockTranscoder{}, DefaultConfig())
	d, err := p.PrepareMP3(context.Background(), domain.DownloadRequest{SourceURL: testURL})
	if err != nil {
		t.Fatalf("PrepareMP3 failed: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := p.Stream(context.Background(), rec, d); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if rec.Header().Get("Content-Type") != "audio/mpeg" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "mp3:bytes-of-251" {
		t.Errorf("body = %q", rec.Body.String())
	}

	// slot released after the stream closed
	if !p.transcodes.TryAcquire(DefaultConfig().MaxConcurrentTranscodes) {
		t.Error("transcode slot not released")
	}
}

func TestStream_LargeBodyIsForwardedIntact(t *testing.T) {
	payload := strings.Repeat("0123456789abcdef", 10*1024) // 160 KiB, several buffers
	fake := &extractortest.Fake{
		OpenFn: func(ctx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(payload)), nil
		},
	}
	p, d := prepareMP4(t, fake)

	rec := httptest.NewRecorder()
	if err := p.Stream(context.Background(), rec, d); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if rec.Body.String() != payload {
		t.Errorf("forwarded %d bytes, want %d", rec.Body.Len(), len(payload))
	}
	if !rec.Flushed {
		t.Error("expected per-chunk flushes")
	}
}

// endlessReader never runs dry.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

// brokenWriter accepts the first write. With failAfter set it fails every later one, like a
// client that hung up mid-download.
type brokenWriter struct {
	*httptest.ResponseRecorder
	writes    int
	onFirst   func()
	failAfter bool
}

func (w *brokenWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes == 1 {
		if w.onFirst != nil {
			w.onFirst()
		}
		return w.ResponseRecorder.Write(p)
	}
	if w.failAfter {
		return 0, errors.New("write: broken pipe")
	}
	return w.ResponseRecorder.Write(p)
}

// streamAborted runs fn and reports whether it aborted with http.ErrAbortHandler.
func streamAborted(fn func()) (aborted bool) {
	defer func() {
		if r := recover(); r != nil {
			if r != http.ErrAbortHandler {
				panic(r)
			}
			aborted = true
		}
	}()
	fn()
	return false
}

func TestStream_ClientDisconnectReleasesTranscode(t *testing.T) {
	var sources []*trackedCloser
	fake := &extractortest.Fake{
		OpenFn: func(ctx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error) {
			src := &trackedCloser{Reader: endlessReader{}}
			sources = append(sources, src)
			return src, nil
		},
	}
	var encoders []*trackedCloser
	tc := &mockTranscoder{
		mp3Fn: func(ctx context.Context, src io.Reader, kbps int) (io.ReadCloser, error) {
			enc := &trackedCloser{Reader: src}
			encoders = append(encoders, enc)
			return enc, nil
		},
	}
	p := New(fake, tc, Config{MaxConcurrentTranscodes: 1})

	d, err := p.PrepareMP3(context.Background(), domain.DownloadRequest{SourceURL: testURL})
	if err != nil {
		t.Fatalf("PrepareMP3 failed: %v", err)
	}

	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder(), failAfter: true}
	if !streamAborted(func() { p.Stream(context.Background(), w, d) }) {
		t.Fatal("a failed client write after commit should abort the handler")
	}

	if len(sources) != 1 || !sources[0].closed.Load() {
		t.Error("source should be closed after the client went away")
	}
	if len(encoders) != 1 || !encoders[0].closed.Load() {
		t.Error("encoder should be closed after the client went away")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	next, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("second transcode could not start, slot leaked: %v", err)
	}
	next.Close()
}

func TestStream_CanceledRequestClosesSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &trackedCloser{}
	fake := &extractortest.Fake{
		OpenFn: func(openCtx context.Context, v *extractor.Video, f extractor.Format) (io.ReadCloser, error) {
			src.Reader = &ctxReader{ctx: openCtx}
			return src, nil
		},
	}
	p, d := prepareMP4(t, fake)

	w := &brokenWriter{ResponseRecorder: httptest.NewRecorder(), onFirst: cancel}
	if !streamAborted(func() { p.Stream(ctx, w, d) }) {
		t.Fatal("a canceled request after commit should abort the handler")
	}

	if !src.closed.Load() {
		t.Error("source should be closed when the request is canceled")
	}
	if w.Code != http.StatusOK || w.writes != 1 {
		t.Errorf("committed response = %d after %d writes", w.Code, w.writes)
	}
}

// ctxReader yields bytes until ctx is done, then reports ctx.Err.
type ctxReader struct {
	ctx context.Context
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return endlessReader{}.Read(p)
}
