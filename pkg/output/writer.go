package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records.
//
// Implementations must be safe for concurrent use. Each Write* method emits
// one complete record as a single line of JSON followed by a newline.
type Writer interface {
	WriteDecision(ctx context.Context, rec *DecisionRecord) error
	WriteRecovery(ctx context.Context, rec *RecoveryRecord) error
	WriteTag(ctx context.Context, rec *TagRecord) error
	WriteError(ctx context.Context, rec *ErrorRecord) error
	WriteSummary(ctx context.Context, rec *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// Writes are serialized with a mutex so lines never interleave.
type JSONLWriter struct {
	w        io.Writer
	runID    string
	provider string
	now      func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewJSONLWriter creates a JSONL writer stamping every record with runID
// and provider.
func NewJSONLWriter(w io.Writer, runID, provider string) *JSONLWriter {
	return &JSONLWriter{
		w:        w,
		runID:    runID,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WriteDecision emits a routing decision record.
func (jw *JSONLWriter) WriteDecision(ctx context.Context, rec *DecisionRecord) error {
	return jw.writeRecord(ctx, TypeDecision, rec)
}

// WriteRecovery emits a recovery outcome record.
func (jw *JSONLWriter) WriteRecovery(ctx context.Context, rec *RecoveryRecord) error {
	return jw.writeRecord(ctx, TypeRecovery, rec)
}

// WriteTag emits a tag application record.
func (jw *JSONLWriter) WriteTag(ctx context.Context, rec *TagRecord) error {
	return jw.writeRecord(ctx, TypeTag, rec)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, rec *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, rec)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, rec *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, rec)
}

// Close marks the writer as closed. The underlying writer is not closed.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return ErrWriterClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	recordBytes, err := json.Marshal(Record{
		Type:     recordType,
		TS:       jw.now(),
		RunID:    jw.runID,
		Provider: jw.provider,
		Data:     dataBytes,
	})
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// io.Writer may return n < len(p) with a nil error.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}
	return nil
}

func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

var _ Writer = (*JSONLWriter)(nil)
