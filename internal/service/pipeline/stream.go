package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	"github.com/emanuelef/ytstream-api/pkg/filename"
	"github.com/google/uuid"
)

// Buffer pool for forwarding media bytes.
var bufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, 32*1024) // 32KB buffer
		return &buf
	},
}

// responseState tracks whether the status line has been sent. It is the only place that
// decides between a JSON error and a connection abort.
type responseState struct {
	w         http.ResponseWriter
	committed bool
}

func (s *responseState) commit() {
	if s.committed {
		return
	}
	s.w.WriteHeader(http.StatusOK)
	s.committed = true
}

// fail returns err while nothing has been sent. After commit it aborts the connection,
// so the client sees a truncated transfer instead of a well-formed short body.
func (s *responseState) fail(err error) error {
	if !s.committed {
		return err
	}
	panic(http.ErrAbortHandler)
}

// clientError marks a failure writing to the client.
type clientError struct{ err error }

func (e *clientError) Error() string { return "client write failed: " + e.err.Error() }
func (e *clientError) Unwrap() error { return e.err }

// Stream opens d and forwards its bytes to w. When it returns a non-nil error nothing has
// been written and the caller should respond with that error. Failures after the
// response is committed abort the handler with http.ErrAbortHandler.
func (p *Pipeline) Stream(ctx context.Context, w http.ResponseWriter, d *Delivery) error {
	log := slog.With(
		"stream_id", uuid.NewString(),
		"delivery", d.Kind,
		"format_id", d.Format.ID,
		"filename", d.Filename,
	)
	state := &responseState{w: w}

	src, err := d.Open(ctx)
	if err != nil {
		metrics.StreamsTotal.WithLabelValues(d.Kind, metrics.StreamFailedPreStream).Inc()
		log.Error("Failed to open stream", "kind", domain.KindOf(err), "error", err)
		return state.fail(err)
	}
	defer src.Close()

	h := w.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Disposition", filename.ContentDisposition(d.Filename))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")

	rc := http.NewResponseController(w)
	// media streams outlive the server's WriteTimeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("Failed to clear write deadline", "error", err)
	}

	state.commit()
	start := time.Now()
	written, err := forward(w, rc, src)
	metrics.StreamedBytesTotal.WithLabelValues(d.Kind).Add(float64(written))

	if err == nil {
		metrics.StreamsTotal.WithLabelValues(d.Kind, metrics.StreamCompleted).Inc()
		log.Info("Stream completed", "bytes", written, "duration", time.Since(start))
		return nil
	}

	var ce *clientError
	if errors.As(err, &ce) || ctx.Err() != nil {
		metrics.StreamsTotal.WithLabelValues(d.Kind, metrics.StreamCanceled).Inc()
		log.Info("Stream canceled by client", "bytes", written, "error", err)
	} else {
		metrics.StreamsTotal.WithLabelValues(d.Kind, metrics.StreamFailedMidStream).Inc()
		log.Error("Stream failed after headers were sent", "bytes", written, "error", err)
	}
	return state.fail(fmt.Errorf("stream %s: %w", d.Kind, err))
}

// forward copies src to w through a pooled buffer, flushing after every chunk so memory
// stays bounded and a slow client slows the source down.
func forward(w io.Writer, rc *http.ResponseController, src io.Reader) (int64, error) {
	bufPtr := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufPtr)
	buf := *bufPtr

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, &clientError{werr}
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, &clientError{ferr}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
