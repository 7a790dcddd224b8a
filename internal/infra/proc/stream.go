// Package proc exposes subprocess output as a stream.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Wait blocks on I/O goroutines after the process is killed.
const waitDelay = 2 * time.Second

// stderrLimit is how much trailing stderr is kept for error reports.
const stderrLimit = 4 * 1024

// ClassifyFunc turns a failed exit plus captured stderr into the error surfaced to readers.
type ClassifyFunc func(stderr string, err error) error

// Options configures a Stream.
type Options struct {
	// Stdin is fed to the process. A read error on Stdin fails the stream even if the
	// process itself exits cleanly.
	Stdin io.Reader
	// Classify maps failures; nil uses a generic "<name> failed" error.
	Classify ClassifyFunc
}

// Stream is a running process whose stdout is read through Read. A failed exit is
// reported by Read in place of io.EOF, so a consumer never mistakes a crashed producer
// for a complete stream.
type Stream struct {
	name     string
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *tailBuffer
	ctx      context.Context
	cancel   context.CancelFunc
	classify ClassifyFunc

	waitOnce sync.Once
	waitErr  error
}

// Start launches path with args. The process is killed when ctx is done or Close is called.
func Start(ctx context.Context, path string, args []string, opts Options) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = opts.Stdin
	cmd.WaitDelay = waitDelay

	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	name := filepath.Base(path)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	return &Stream{
		name:     name,
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		ctx:      ctx,
		cancel:   cancel,
		classify: opts.Classify,
	}, nil
}

// Read reads process stdout. At end of output it reaps the process and returns its
// failure, if any, instead of io.EOF.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == io.EOF {
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// Close kills the process if it is still running and releases its resources.
func (s *Stream) Close() error {
	s.cancel()
	err := s.wait()
	if s.ctx.Err() != nil {
		// killed by us or by the caller's context
		return nil
	}
	return err
}

func (s *Stream) wait() error {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		if err == nil {
			return
		}
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			s.waitErr = fmt.Errorf("%s canceled: %w", s.name, ctxErr)
			return
		}
		stderr := strings.TrimSpace(s.stderr.String())
		if s.classify != nil {
			s.waitErr = s.classify(stderr, err)
			return
		}
		s.waitErr = ExitError(s.name, stderr, err)
	})
	return s.waitErr
}

// ExitError formats a process failure with its trailing stderr.
func ExitError(name, stderr string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && stderr != "" {
		return fmt.Errorf("%s failed: %w: %s", name, err, stderr)
	}
	if stderr != "" {
		return fmt.Errorf("%s failed: %w (stderr: %s)", name, err, stderr)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

// tailBuffer keeps the last limit bytes written. exec writes it from a single goroutine
// and Wait returns only after that goroutine finishes, so reads after Wait are safe.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}
