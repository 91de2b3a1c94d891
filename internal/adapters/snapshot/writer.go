package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Line is one record of the report stream.
type Line struct {
	JobID   string `json:"job_id"`
	Payload any    `json:"payload"`
}

// LineWriter publishes payloads as newline-delimited JSON. It is safe for
// concurrent use.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

// NewLineWriter writes to w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{enc: json.NewEncoder(w)}
}

// Publish writes one line.
func (w *LineWriter) Publish(ctx context.Context, jobID string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(Line{JobID: jobID, Payload: payload}); err != nil {
		return fmt.Errorf("%w: job %s: %w", ErrWrite, jobID, err)
	}
	w.n++
	return nil
}

// Written returns how many lines were written.
func (w *LineWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Encode writes s as one indented snapshot document, the inverse of Decode.
func Encode(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}
