package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/genoroute/pkg/event"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/output"
)

type fakeSubmitter struct {
	specs []job.Spec
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, spec job.Spec) (*job.Submission, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return nil, f.err
	}
	return &job.Submission{JobID: "new-id", JobName: spec.Name}, nil
}

type fakeMetrics struct {
	reasons []string
}

func (m *fakeMetrics) Recovery(_ context.Context, reason string) {
	m.reasons = append(m.reasons, reason)
}

func stateChange(t *testing.T, mutate func(detail map[string]any)) []byte {
	t.Helper()
	detail := map[string]any{
		"jobName":       "intersect_NA12878",
		"jobId":         "4c7599ae-0a82-49aa-ba5a-4727fcce14a8",
		"jobQueue":      "arn:aws:batch:us-east-1:123456789012:job-queue/reports-plus-queue-prod",
		"jobDefinition": "arn:aws:batch:us-east-1:123456789012:job-definition/liftover-intersect-prod:3",
		"status":        "FAILED",
		"statusReason":  "Host EC2 (i-abc123) terminated.",
		"startedAt":     1709820000000,
		"stoppedAt":     1709821500000,
		"attempts":      []any{map[string]any{"container": map[string]any{"exitCode": 137}}},
		"parameters":    map[string]string{"project": "AoU", "user": "lambda", "hgsccl:env": "prod"},
		"container": map[string]any{
			"command": []string{"-i", "s3://b/proj/NA12878/dragen/NA12878.hard-filtered.vcf.gz", "-o", "s3://b/proj/NA12878/liftover"},
		},
	}
	if mutate != nil {
		mutate(detail)
	}
	raw, err := json.Marshal(map[string]any{
		"id":          "evt-1",
		"source":      "aws.batch",
		"detail-type": "Batch Job State Change",
		"time":        "2024-03-07T14:22:31Z",
		"detail":      detail,
	})
	require.NoError(t, err)
	return raw
}

func TestIsHostReclaimed(t *testing.T) {
	tests := []struct {
		reason string
		want   bool
	}{
		{"Host EC2 (i-abc123) terminated.", true},
		{"Host EC2 (instance i-0b1d6f9b3d2e4a5c6) terminated.", true},
		{"Host EC2 terminated", true},
		{"Tool exited with code 1", false},
		{"Essential container in task exited", false},
		{"host EC2 (i-abc123) terminated.", false},
		{"The Host EC2 (i-abc123) terminated.", false},
		{"Host EC2 (i-abc123) was stopped", false},
		{"Host EC2x terminated", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHostReclaimed(tt.reason))
		})
	}
}

func TestShortQueueName(t *testing.T) {
	assert.Equal(t, "reports-queue-prod", ShortQueueName("arn:aws:batch:us-east-1:123456789012:job-queue/reports-queue-prod"))
	assert.Equal(t, "reports-queue-prod", ShortQueueName("reports-queue-prod"))
	assert.Equal(t, "trailing/", ShortQueueName("trailing/"))
}

func TestClassifier_HostReclaimedResubmits(t *testing.T) {
	sub := &fakeSubmitter{}
	core, logs := observer.New(zapcore.InfoLevel)
	m := &fakeMetrics{}
	c := New(sub, Config{}).WithLogger(zap.New(core)).WithMetrics(m)

	out, err := c.OnJobStateChange(context.Background(), stateChange(t, nil))
	require.NoError(t, err)

	assert.True(t, out.Resubmitted)
	assert.Equal(t, ReasonResubmitted, out.Reason)
	assert.Equal(t, "intersect_NA12878_lambdaResub", out.NewJobName)
	assert.Equal(t, "new-id", out.NewJobID)

	require.Len(t, sub.specs, 1)
	spec := sub.specs[0]
	assert.Equal(t, "intersect_NA12878_lambdaResub", spec.Name)
	assert.Equal(t, "reports-plus-queue-prod", spec.Queue)
	assert.Equal(t, "arn:aws:batch:us-east-1:123456789012:job-definition/liftover-intersect-prod:3", spec.Definition)
	assert.Equal(t, []string{"-i", "s3://b/proj/NA12878/dragen/NA12878.hard-filtered.vcf.gz", "-o", "s3://b/proj/NA12878/liftover"}, spec.Command)
	assert.Equal(t, map[string]string{"project": "AoU", "user": "lambda", "hgsccl:env": "prod"}, spec.Parameters)
	assert.Nil(t, spec.Tags)
	assert.False(t, spec.PropagateTags)

	assert.Equal(t, "reports-plus-queue-prod", out.Record.JobQueue)
	assert.InDelta(t, 25.0, out.Record.RuntimeMinutes, 1e-9)
	assert.Equal(t, 1, out.Record.Attempts)
	assert.True(t, time.Date(2024, 3, 7, 14, 22, 31, 0, time.UTC).Equal(out.Record.JobDatetime))

	assert.Equal(t, []string{ReasonResubmitted}, m.reasons)
	entries := logs.FilterMessage("recovery outcome").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, true, fields["resubmitted"])
	assert.Equal(t, "Host EC2 (i-abc123) terminated.", fields["status_reason"])

	data, err := json.Marshal(out.Output())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "status_reason")
	assert.NotContains(t, string(data), "Host EC2")
}

func TestClassifier_NoResubmission(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(map[string]any)
		wantReason string
	}{
		{
			name:       "application failure",
			mutate:     func(d map[string]any) { d["statusReason"] = "Tool exited with code 1" },
			wantReason: ReasonNotReclaimed,
		},
		{
			name:       "missing status reason",
			mutate:     func(d map[string]any) { delete(d, "statusReason") },
			wantReason: ReasonNotReclaimed,
		},
		{
			name:       "succeeded",
			mutate:     func(d map[string]any) { d["status"] = "SUCCEEDED" },
			wantReason: ReasonNotFailed,
		},
		{
			name:       "running with reclaim text",
			mutate:     func(d map[string]any) { d["status"] = "RUNNING" },
			wantReason: ReasonNotFailed,
		},
		{
			name:       "already resubmitted",
			mutate:     func(d map[string]any) { d["jobName"] = "intersect_NA12878_lambdaResub" },
			wantReason: ReasonAlreadyResubmitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			out, err := New(sub, Config{}).OnJobStateChange(context.Background(), stateChange(t, tt.mutate))
			require.NoError(t, err)
			assert.False(t, out.Resubmitted)
			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Empty(t, out.NewJobName)
			assert.Nil(t, out.Spec)
			assert.Empty(t, sub.specs)
		})
	}
}

func TestClassifier_CarriesTags(t *testing.T) {
	sub := &fakeSubmitter{}
	raw := stateChange(t, func(d map[string]any) {
		d["tags"] = map[string]string{"hgsccl:project": "AoU", "hgsccl:purpose": "intersect"}
		d["propagateTags"] = true
	})

	_, err := New(sub, Config{}).OnJobStateChange(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, sub.specs, 1)
	assert.Equal(t, "intersect", sub.specs[0].Tags["hgsccl:purpose"])
	assert.True(t, sub.specs[0].PropagateTags)
}

func TestClassifier_LongNameTruncated(t *testing.T) {
	sub := &fakeSubmitter{}
	long := "liftover_Preprocessing_Intersect_" + strings.Repeat("NA12878-", 12)
	raw := stateChange(t, func(d map[string]any) { d["jobName"] = long })

	out, err := New(sub, Config{}).OnJobStateChange(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, job.ResubmitName(long), out.NewJobName)
	assert.Len(t, []rune(out.NewJobName), job.MaxResubmitNameLength+len(job.ResubmitSuffix))
}

func TestClassifier_RuntimeMissing(t *testing.T) {
	raw := stateChange(t, func(d map[string]any) { delete(d, "startedAt") })

	out, err := New(&fakeSubmitter{}, Config{}).OnJobStateChange(context.Background(), raw)
	require.NoError(t, err)
	assert.Zero(t, out.Record.RuntimeMinutes)
}

func TestClassifier_DryRun(t *testing.T) {
	sub := &fakeSubmitter{}
	out, err := New(sub, Config{DryRun: true}).OnJobStateChange(context.Background(), stateChange(t, nil))
	require.NoError(t, err)
	assert.False(t, out.Resubmitted)
	assert.Equal(t, ReasonDryRun, out.Reason)
	assert.Equal(t, "intersect_NA12878_lambdaResub", out.NewJobName)
	require.NotNil(t, out.Spec)
	assert.Empty(t, sub.specs)
}

func TestClassifier_SubmissionError(t *testing.T) {
	t.Run("typed", func(t *testing.T) {
		serr := &job.SubmissionError{JobName: "x", Queue: "q", Code: "ClientException", Err: errors.New("denied")}
		m := &fakeMetrics{}
		out, err := New(&fakeSubmitter{err: serr}, Config{}).WithMetrics(m).OnJobStateChange(context.Background(), stateChange(t, nil))
		require.Error(t, err)
		require.NotNil(t, out)
		assert.False(t, out.Resubmitted)
		assert.Equal(t, ReasonSubmitFailed, out.Reason)

		var got *job.SubmissionError
		require.True(t, errors.As(err, &got))
		assert.Same(t, serr, got)
		assert.Equal(t, []string{ReasonSubmitFailed}, m.reasons)
	})

	t.Run("plain error is wrapped", func(t *testing.T) {
		_, err := New(&fakeSubmitter{err: errors.New("timeout")}, Config{}).OnJobStateChange(context.Background(), stateChange(t, nil))
		assert.ErrorIs(t, err, job.ErrSubmission)
	})
}

func TestClassifier_RejectsOtherSources(t *testing.T) {
	raw := []byte(`{"source":"aws.ec2","detail":{}}`)
	out, err := New(&fakeSubmitter{}, Config{}).OnJobStateChange(context.Background(), raw)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, event.ErrUnsupportedEventSource)
}

func TestOutcome_Output(t *testing.T) {
	out, err := New(&fakeSubmitter{}, Config{}).OnJobStateChange(context.Background(), stateChange(t, nil))
	require.NoError(t, err)

	rec := out.Output()
	assert.Equal(t, "intersect_NA12878", rec.JobName)
	assert.Equal(t, "reports-plus-queue-prod", rec.JobQueue)
	assert.Equal(t, "FAILED", rec.JobStatus)
	assert.Equal(t, "2024-03-07T14:22:31Z", rec.JobDatetime)
	assert.True(t, rec.Resubmitted)
	assert.Equal(t, "new-id", rec.NewJobID)

	require.NotNil(t, rec.Container)
	assert.Equal(t, []string{"-i", "s3://b/proj/NA12878/dragen/NA12878.hard-filtered.vcf.gz", "-o", "s3://b/proj/NA12878/liftover"}, rec.Container.Command)
	assert.Equal(t, map[string]string{"project": "AoU", "user": "lambda", "hgsccl:env": "prod"}, rec.Parameters)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Host EC2")

	var decoded output.RecoveryRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec.Container.Command, decoded.Container.Command)
	assert.Equal(t, rec.Parameters, decoded.Parameters)

	t.Run("empty container omitted", func(t *testing.T) {
		out, err := New(&fakeSubmitter{}, Config{}).OnJobStateChange(context.Background(), stateChange(t, func(d map[string]any) {
			delete(d, "container")
			delete(d, "parameters")
		}))
		require.NoError(t, err)

		data, err := json.Marshal(out.Output())
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"container"`)
		assert.NotContains(t, string(data), `"parameters"`)
	})
}
