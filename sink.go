package gofacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/viant/afs"
)

// Sink buffers emitted text for one run and writes it out on Flush. Emit is
// safe for concurrent use; each call's text stays contiguous.
type Sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
	// written is how much of buf has gone to w
	written int

	target string
	w      io.Writer
	fs     afs.Service
}

// NewSink creates a Sink that flushes to target, a local path or an afs
// URL (file://, mem://, ...). An empty target writes to w.
func NewSink(target string, w io.Writer) *Sink {
	return &Sink{target: target, w: w, fs: afs.New()}
}

// Target is the URL or path the Sink flushes to; empty for its writer.
func (s *Sink) Target() string { return s.target }

func (s *Sink) Emit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(text)
	return nil
}

// Bytes returns a copy of the text emitted since the last Reset.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

// Reset drops buffered text.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.written = 0
}

// Flush writes the buffered text to the target, replacing its content.
// A writer only receives text not written by an earlier Flush. The buffer
// is kept so Bytes still reports the run's output.
func (s *Sink) Flush(ctx context.Context) error {
	if s.target == "" {
		return s.flushWriter()
	}

	s.mu.Lock()
	data := bytes.Clone(s.buf.Bytes())
	s.mu.Unlock()

	url := s.target
	if !strings.Contains(url, "://") {
		abs, err := filepath.Abs(url)
		if err != nil {
			return fmt.Errorf("gofacts: output path: %w", err)
		}
		url = abs
	}
	if err := s.fs.Upload(ctx, url, 0o644, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("gofacts: upload output to %s: %w", s.target, err)
	}
	return nil
}

func (s *Sink) flushWriter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil || s.written == s.buf.Len() {
		return nil
	}
	n, err := s.w.Write(s.buf.Bytes()[s.written:])
	s.written += n
	if err != nil {
		return fmt.Errorf("gofacts: write output: %w", err)
	}
	return nil
}
