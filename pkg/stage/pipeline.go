package stage

import (
	"errors"
	"fmt"
	"slices"

	"github.com/3leaps/genoroute/pkg/artifact"
)

// ErrUnknownPipeline indicates a pipeline name with no definition.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// Pipeline is a named, ordered group of stages whose predicates are mutually
// exclusive. One notification subscription feeds one pipeline.
type Pipeline struct {
	Name   string  `json:"name" yaml:"name"`
	Stages []Stage `json:"stages" yaml:"stages"`
}

// Pipeline names.
const (
	PipelineLiftover    = "liftover"
	PipelineIntervar    = "intervar"
	PipelineAlignStats  = "alignstats"
	PipelineVerifyBamID = "verifybamid"
	PipelineCassandra   = "cassandra"
)

// Pipelines returns every pipeline definition.
func Pipelines() []Pipeline {
	return []Pipeline{
		{Name: PipelineLiftover, Stages: []Stage{Intersect, Preprocessing, Liftover, Stargazer}},
		{Name: PipelineIntervar, Stages: []Stage{Intervar}},
		{Name: PipelineAlignStats, Stages: []Stage{AlignStats}},
		{Name: PipelineVerifyBamID, Stages: []Stage{VerifyBamID}},
		{Name: PipelineCassandra, Stages: []Stage{Cassandra, MpileupVCF, MpileupBAM}},
	}
}

// PipelineNames lists pipeline names in definition order.
func PipelineNames() []string {
	ps := Pipelines()
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	return names
}

// PipelineByName returns the named pipeline.
func PipelineByName(name string) (Pipeline, error) {
	i := slices.IndexFunc(Pipelines(), func(p Pipeline) bool { return p.Name == name })
	if i < 0 {
		return Pipeline{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPipeline, name, PipelineNames())
	}
	return Pipelines()[i], nil
}

// Rules returns the pipeline's rules in evaluation order.
func (p Pipeline) Rules() ([]Rule, error) {
	rules := make([]Rule, 0, len(p.Stages))
	for _, s := range p.Stages {
		r, err := RuleFor(s)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Select returns the first rule whose predicate matches k. Later rules are
// not evaluated once one matches.
func (p Pipeline) Select(k artifact.Key) (Rule, bool) {
	for _, s := range p.Stages {
		r, err := RuleFor(s)
		if err != nil {
			continue
		}
		if r.Match(k) {
			return r, true
		}
	}
	return Rule{}, false
}

// Matching returns every stage in the pipeline whose predicate matches k.
// Used to check mutual exclusivity.
func (p Pipeline) Matching(k artifact.Key) []Stage {
	var out []Stage
	for _, s := range p.Stages {
		if r, err := RuleFor(s); err == nil && r.Match(k) {
			out = append(out, s)
		}
	}
	return out
}
