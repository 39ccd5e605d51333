package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/provider"
)

func decodeLine(t *testing.T, line []byte, payload any) Record {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(line, &record))
	if payload != nil {
		require.NoError(t, json.Unmarshal(record.Data, payload))
	}
	return record
}

func TestJSONLWriter_WriteDecision(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "s3")
	fixed := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	rec := &DecisionRecord{
		Pipeline: "liftover",
		Bucket:   "hgsc-prod",
		Key:      "proj/s1/dragen/s1.hard-filtered.vcf.gz",
		Decision: "submitted",
		Stage:    "intersect",
		JobName:  "intersect_s1",
		JobID:    "job-1",
		Spec: &job.Spec{
			Name:    "intersect_s1",
			Queue:   "reports-plus-queue-prod",
			Command: []string{"-i", "x"},
		},
	}
	require.NoError(t, w.WriteDecision(context.Background(), rec))

	var got DecisionRecord
	record := decodeLine(t, buf.Bytes(), &got)
	assert.Equal(t, TypeDecision, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.Equal(t, "s3", record.Provider)
	assert.True(t, fixed.Equal(record.TS))
	assert.Equal(t, *rec, got)
}

func TestJSONLWriter_RecordTypes(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1", "file")
	ctx := context.Background()

	require.NoError(t, w.WriteRecovery(ctx, &RecoveryRecord{JobName: "a", Resubmitted: true, NewJobName: "a_lambdaResub"}))
	require.NoError(t, w.WriteTag(ctx, &TagRecord{Bucket: "b", Key: "k.bam", Rule: "delete", Tags: []provider.Tag{{Key: "hgsccl:delete", Value: "yes"}}}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Code: ErrCodeInvalidEvent, Message: "bad", Source: "events.jsonl:3"}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Events: 3, Decisions: map[string]int64{"submitted": 1}, Errors: 1}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	var rec RecoveryRecord
	assert.Equal(t, TypeRecovery, decodeLine(t, []byte(lines[0]), &rec).Type)
	assert.Equal(t, "a_lambdaResub", rec.NewJobName)

	var tag TagRecord
	assert.Equal(t, TypeTag, decodeLine(t, []byte(lines[1]), &tag).Type)
	assert.Equal(t, []provider.Tag{{Key: "hgsccl:delete", Value: "yes"}}, tag.Tags)

	var errRec ErrorRecord
	assert.Equal(t, TypeError, decodeLine(t, []byte(lines[2]), &errRec).Type)
	assert.Equal(t, "events.jsonl:3", errRec.Source)

	var sum SummaryRecord
	assert.Equal(t, TypeSummary, decodeLine(t, []byte(lines[3]), &sum).Type)
	assert.Equal(t, int64(1), sum.Decisions["submitted"])
}

func TestJSONLWriter_Closed(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1", "s3")
	require.NoError(t, w.Close())

	err := w.WriteDecision(context.Background(), &DecisionRecord{Key: "x"})
	assert.ErrorIs(t, err, ErrWriterClosed)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1", "s3")

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_ = w.WriteDecision(context.Background(), &DecisionRecord{Key: "k", Decision: "skipped"})
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, writers*perWriter)
	for i, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record), "line %d", i)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-1", "s3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteDecision(ctx, &DecisionRecord{Key: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (int, error) {
	return 0, f.err
}

type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (int, error) {
	if len(p) > sw.bytesPerWrite {
		p = p[:sw.bytesPerWrite]
	}
	return sw.buf.Write(p)
}

type zeroWriteWriter struct{}

func (zeroWriteWriter) Write(p []byte) (int, error) {
	return 0, nil
}

func TestJSONLWriter_WriteFailures(t *testing.T) {
	t.Run("underlying error", func(t *testing.T) {
		w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "run-1", "s3")
		err := w.WriteError(context.Background(), &ErrorRecord{Code: ErrCodeInternal})
		require.Error(t, err)

		var writeErr *WriteError
		require.True(t, errors.As(err, &writeErr))
		assert.Equal(t, "write", writeErr.Op)
	})

	t.Run("short writes complete the line", func(t *testing.T) {
		sw := &shortWriteWriter{bytesPerWrite: 7}
		w := NewJSONLWriter(sw, "run-1", "s3")
		require.NoError(t, w.WriteTag(context.Background(), &TagRecord{Bucket: "b", Key: "k", Rule: "default"}))

		lines := strings.Split(strings.TrimSpace(sw.buf.String()), "\n")
		require.Len(t, lines, 1)
		assert.Equal(t, TypeTag, decodeLine(t, []byte(lines[0]), nil).Type)
	})

	t.Run("zero write", func(t *testing.T) {
		w := NewJSONLWriter(zeroWriteWriter{}, "run-1", "s3")
		err := w.WriteTag(context.Background(), &TagRecord{})
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})

	t.Run("unmarshalable details", func(t *testing.T) {
		w := NewJSONLWriter(io.Discard, "run-1", "s3")
		err := w.WriteError(context.Background(), &ErrorRecord{Details: make(chan int)})

		var writeErr *WriteError
		require.True(t, errors.As(err, &writeErr))
		assert.Equal(t, "marshal_data", writeErr.Op)
	})
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestDecisionRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(DecisionRecord{Pipeline: "alignstats", Bucket: "b", Key: "k", Decision: "skipped"})
	require.NoError(t, err)

	for _, field := range []string{"stage", "reason", "job_name", "job_id", "sibling", "spec"} {
		assert.NotContains(t, string(data), `"`+field+`"`)
	}
}

func BenchmarkJSONLWriter_WriteDecision(b *testing.B) {
	w := NewJSONLWriter(io.Discard, "run-1", "s3")
	rec := &DecisionRecord{
		Pipeline: "liftover",
		Bucket:   "hgsc-prod",
		Key:      "proj/s1/dragen/s1.hard-filtered.vcf.gz",
		Decision: "submitted",
		Stage:    "intersect",
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = w.WriteDecision(ctx, rec)
	}
}
