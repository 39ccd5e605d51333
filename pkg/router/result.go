package router

import (
	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/job"
	"github.com/3leaps/genoroute/pkg/output"
	"github.com/3leaps/genoroute/pkg/stage"
)

// Decision is the outcome of routing one notification.
type Decision string

const (
	DecisionSubmitted Decision = "submitted"
	DecisionSkipped   Decision = "skipped"
	DecisionNotReady  Decision = "not_ready"
	DecisionAmbiguous Decision = "ambiguous"
	DecisionDryRun    Decision = "dry_run"
)

// Skip reasons.
const (
	ReasonNoMatch          = "no_matching_stage"
	ReasonOutOfScope       = "out_of_scope"
	ReasonSiblingMissing   = "sibling_missing"
	ReasonSiblingAmbiguous = "sibling_ambiguous"
	ReasonShallowKey       = "shallow_key"
)

// Result describes one routing decision.
type Result struct {
	Decision Decision
	Pipeline string
	Bucket   string
	Key      artifact.Key

	// Stage is zero when no rule matched.
	Stage stage.Stage

	// Spec is set for submitted and dry_run decisions.
	Spec *job.Spec

	JobName string
	JobID   string
	Sibling artifact.Key

	// Reason is a stable skip reason; Detail is the human-readable cause.
	Reason string
	Detail string
}

// StageName returns the stage name, or "" when no stage matched.
func (r *Result) StageName() string {
	if r.Stage == 0 {
		return ""
	}
	return r.Stage.String()
}

// Record converts the result to its JSONL payload.
func (r *Result) Record() *output.DecisionRecord {
	return &output.DecisionRecord{
		Pipeline: r.Pipeline,
		Bucket:   r.Bucket,
		Key:      string(r.Key),
		Decision: string(r.Decision),
		Stage:    r.StageName(),
		Reason:   r.Reason,
		JobName:  r.JobName,
		JobID:    r.JobID,
		Sibling:  string(r.Sibling),
		Spec:     r.Spec,
	}
}
