package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/genoroute/internal/errors"
	"github.com/3leaps/genoroute/internal/observability"
	"github.com/3leaps/genoroute/pkg/output"
	"github.com/3leaps/genoroute/pkg/provider"
)

// maxEventLine bounds a single JSONL input line.
const maxEventLine = 4 << 20

// openInput returns stdin for "" or "-", otherwise the named file.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// openOutput returns stdout for "" or "-", otherwise a new file.
func openOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// replayLine is one non-blank input line.
type replayLine struct {
	source string
	raw    []byte
}

// replay fans the non-blank lines of r out to workers goroutines running
// handle. It returns the first scan error once the workers have drained.
func replay(ctx context.Context, r io.Reader, input string, workers int, handle func(context.Context, replayLine)) error {
	if workers < 1 {
		workers = 1
	}
	lines := make(chan replayLine, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ln := range lines {
				if ctx.Err() != nil {
					return
				}
				handle(ctx, ln)
			}
		}()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	n := 0
	var scanErr error
scan:
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		select {
		case lines <- replayLine{source: lineSource(input, n), raw: append([]byte(nil), raw...)}:
		case <-ctx.Done():
			break scan
		}
	}
	if err := sc.Err(); err != nil {
		scanErr = err
	}
	close(lines)
	wg.Wait()
	return scanErr
}

// replayStats tallies one replay run. It is safe for concurrent use.
type replayStats struct {
	start   time.Time
	events  atomic.Int64
	invalid atomic.Int64
	failed  atomic.Int64

	mu        sync.Mutex
	decisions map[string]int64
}

func newReplayStats() *replayStats {
	return &replayStats{start: time.Now(), decisions: make(map[string]int64)}
}

func (s *replayStats) decision(d string) {
	s.events.Add(1)
	s.mu.Lock()
	s.decisions[d]++
	s.mu.Unlock()
}

// fail counts err against source/key and writes an error record.
func (s *replayStats) fail(w output.Writer, source, key string, err error) {
	s.events.Add(1)
	rec := errorRecord(err, source, key)
	if rec.Code == output.ErrCodeInvalidEvent || rec.Code == output.ErrCodeUnsupportedSource {
		s.invalid.Add(1)
	} else {
		s.failed.Add(1)
	}
	if werr := w.WriteError(context.Background(), rec); werr != nil {
		observability.CLILogger.Warn("failed to write error record", zap.Error(werr))
	}
}

// finish writes the summary and returns the exit error, if any.
func (s *replayStats) finish(ctx context.Context, w output.Writer, name string) error {
	elapsed := time.Since(s.start)
	invalid, failed := s.invalid.Load(), s.failed.Load()

	s.mu.Lock()
	decisions := make(map[string]int64, len(s.decisions))
	for k, v := range s.decisions {
		decisions[k] = v
	}
	s.mu.Unlock()

	if err := w.WriteSummary(context.Background(), &output.SummaryRecord{
		Events:        s.events.Load(),
		Decisions:     decisions,
		Errors:        invalid + failed,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	}); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write summary", err)
	}

	if ctx.Err() != nil {
		return exitError(foundry.ExitSignalInt, name+" cancelled", ctx.Err())
	}
	if failed > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, name+" completed with errors", fmt.Errorf("errors=%d", failed))
	}
	if invalid > 0 {
		return exitError(foundry.ExitInvalidArgument, name+" completed with invalid inputs", fmt.Errorf("invalid_inputs=%d", invalid))
	}
	return nil
}

func errorRecord(err error, source, key string) *output.ErrorRecord {
	appErr := apperrors.Classify(err)
	code := output.ErrCodeInternal
	switch appErr.Code {
	case apperrors.CodeInvalidEvent, apperrors.CodeInvalidRequest:
		code = output.ErrCodeInvalidEvent
	case apperrors.CodeUnsupportedSource:
		code = output.ErrCodeUnsupportedSource
	case apperrors.CodeSubmissionFailed:
		code = output.ErrCodeSubmission
	case apperrors.CodeAccessDenied:
		code = output.ErrCodeAccessDenied
	case apperrors.CodeNotFound:
		code = output.ErrCodeNotFound
	case apperrors.CodeThrottled:
		code = output.ErrCodeThrottled
	case apperrors.CodeExternalService:
		if provider.IsNotFound(err) {
			code = output.ErrCodeNotFound
		}
	}
	rec := &output.ErrorRecord{Code: code, Message: err.Error(), Source: source, Key: key}
	if len(appErr.Details) > 0 {
		rec.Details = appErr.Details
	}
	return rec
}

func lineSource(input string, line int) string {
	if input == "" || input == "-" {
		input = "stdin"
	}
	return fmt.Sprintf("%s:%d", input, line)
}
