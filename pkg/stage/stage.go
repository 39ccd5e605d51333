// Package stage defines the pipeline stages genoroute can launch and the
// rule each one uses to recognise its trigger artifact and derive a job.
//
// Every stage is a variant of the Stage enumeration. RuleFor maps a variant to
// its immutable Rule with an exhaustive switch, so adding a variant without a
// rule fails the exhaustiveness test in this package.
package stage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady indicates a required sibling artifact is not present yet.
	ErrNotReady = errors.New("stage not ready")

	// ErrClassificationAmbiguous indicates more than one sibling matched where
	// exactly one was expected.
	ErrClassificationAmbiguous = errors.New("sibling classification ambiguous")

	// ErrUnknownStage indicates a Stage value or name with no rule.
	ErrUnknownStage = errors.New("unknown stage")
)

// Stage enumerates the routable pipeline stages.
type Stage int

const (
	AlignStats Stage = iota + 1
	VerifyBamID
	Intersect
	Preprocessing
	Liftover
	Stargazer
	Intervar
	Cassandra
	MpileupVCF
	MpileupBAM
)

var stageNames = map[Stage]string{
	AlignStats:    "alignstats",
	VerifyBamID:   "verifybamid",
	Intersect:     "intersect",
	Preprocessing: "preprocessing",
	Liftover:      "liftover",
	Stargazer:     "stargazer",
	Intervar:      "intervar",
	Cassandra:     "cassandra",
	MpileupVCF:    "mpileup-vcf",
	MpileupBAM:    "mpileup-bam",
}

// String returns the stable stage name used in logs, records and config.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if _, ok := stageNames[s]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStage, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Parse returns the Stage with the given name.
func Parse(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// AllStages lists every variant in declaration order.
func AllStages() []Stage {
	return []Stage{
		AlignStats,
		VerifyBamID,
		Intersect,
		Preprocessing,
		Liftover,
		Stargazer,
		Intervar,
		Cassandra,
		MpileupVCF,
		MpileupBAM,
	}
}

// RuleFor returns the rule for s.
func RuleFor(s Stage) (Rule, error) {
	switch s {
	case AlignStats:
		return alignStatsRule, nil
	case VerifyBamID:
		return verifyBamIDRule, nil
	case Intersect:
		return intersectRule, nil
	case Preprocessing:
		return preprocessingRule, nil
	case Liftover:
		return liftoverRule, nil
	case Stargazer:
		return stargazerRule, nil
	case Intervar:
		return intervarRule, nil
	case Cassandra:
		return cassandraRule, nil
	case MpileupVCF:
		return mpileupVCFRule, nil
	case MpileupBAM:
		return mpileupBAMRule, nil
	default:
		return Rule{}, fmt.Errorf("%w: %d", ErrUnknownStage, int(s))
	}
}
