package stage

import (
	"fmt"

	"github.com/3leaps/genoroute/pkg/artifact"
	"github.com/3leaps/genoroute/pkg/job"
)

// Rule recognises one stage's trigger artifact and derives its job.
//
// Rules are immutable values. Match is a pure function of the key. Derive is
// a pure function of Input, so equal inputs always yield equal specs.
type Rule struct {
	Stage      Stage
	Purpose    string
	Queue      string
	Definition string
	Project    string

	// Sibling, when set, names a companion artifact that must be resolved
	// before Derive is called.
	Sibling *SiblingQuery

	match  func(k artifact.Key) bool
	derive func(in Input, spec *job.Spec) error
}

// Input is everything a rule may read when deriving a job.
type Input struct {
	Bucket string
	Key    artifact.Key

	// Sibling is the resolved companion key, required when Rule.Sibling is set.
	Sibling artifact.Key
}

// Match reports whether k is this stage's trigger artifact.
func (r Rule) Match(k artifact.Key) bool {
	return r.match != nil && r.match(k)
}

// Derive builds the job spec for in.
//
// It returns ErrNotReady when the rule needs a sibling that is missing and
// artifact.ErrShallowKey when the key is too shallow to place the output.
func (r Rule) Derive(in Input) (job.Spec, error) {
	if r.Sibling != nil && in.Sibling == "" {
		return job.Spec{}, fmt.Errorf("%s: %w: no %s sibling for %s", r.Stage, ErrNotReady, r.Sibling.Suffix, in.Key)
	}

	spec := job.Spec{
		Stage:      r.Stage.String(),
		Queue:      r.Queue,
		Definition: r.Definition,
		Parameters: map[string]string{
			"project": ProjectAoU,
			TagUser:   SubmittingUser,
			TagEnv:    Environment,
		},
		Tags: map[string]string{
			TagProject: r.Project,
			TagUser:    SubmittingUser,
			TagPurpose: r.Purpose,
			TagEnv:     Environment,
		},
		PropagateTags: true,
	}
	if err := r.derive(in, &spec); err != nil {
		return job.Spec{}, fmt.Errorf("%s: derive %s: %w", r.Stage, in.Key, err)
	}
	return spec, nil
}

// SiblingQuery describes how to find a companion artifact: list everything
// under the trigger key's ancestor at Level and pick the unique key ending
// in Suffix.
type SiblingQuery struct {
	Suffix string
	Level  int
}

// Prefix returns the listing prefix for key, always ending in '/'.
func (q SiblingQuery) Prefix(k artifact.Key) (string, error) {
	anc, err := k.Ancestor(q.Level)
	if err != nil {
		return "", err
	}
	return anc + "/", nil
}

// Matches reports whether candidate satisfies the query for trigger.
func (q SiblingQuery) Matches(trigger, candidate artifact.Key) bool {
	return candidate != trigger && hasSuffix(candidate, q.Suffix)
}
