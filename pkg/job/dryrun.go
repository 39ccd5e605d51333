package job

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DryRunSubmitter accepts every spec without contacting a batch service.
//
// Submitted specs are retained in order so callers can report them.
type DryRunSubmitter struct {
	mu    sync.Mutex
	specs []Spec
}

// Submit records spec and returns a synthetic job id prefixed "dryrun-".
func (d *DryRunSubmitter) Submit(ctx context.Context, spec Spec) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.specs = append(d.specs, spec.Clone())
	d.mu.Unlock()
	return &Submission{JobID: "dryrun-" + uuid.NewString(), JobName: spec.Name}, nil
}

// Specs returns a copy of the recorded specs.
func (d *DryRunSubmitter) Specs() []Spec {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Spec, len(d.specs))
	copy(out, d.specs)
	return out
}

var _ Submitter = (*DryRunSubmitter)(nil)
