package stage

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFor_Exhaustive(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range AllStages() {
		r, err := RuleFor(s)
		require.NoError(t, err, "stage %d has no rule", int(s))
		assert.Equal(t, s, r.Stage)
		assert.NotEmpty(t, r.Queue)
		assert.NotEmpty(t, r.Definition)
		assert.NotEmpty(t, r.Purpose)
		assert.NotEmpty(t, r.Project)
		assert.False(t, seen[s.String()], "duplicate stage name %s", s)
		seen[s.String()] = true
	}
	assert.Len(t, stageNames, len(AllStages()))

	_, err := RuleFor(Stage(0))
	assert.ErrorIs(t, err, ErrUnknownStage)
	_, err = RuleFor(Stage(99))
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestStage_TextRoundTrip(t *testing.T) {
	for _, s := range AllStages() {
		parsed, err := Parse(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := Parse("bogus")
	assert.ErrorIs(t, err, ErrUnknownStage)

	data, err := json.Marshal(Pipeline{Name: "x", Stages: []Stage{MpileupVCF}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","stages":["mpileup-vcf"]}`, string(data))

	var p Pipeline
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x","stages":["cassandra"]}`), &p))
	assert.Equal(t, []Stage{Cassandra}, p.Stages)

	assert.Error(t, json.Unmarshal([]byte(`{"stages":["nope"]}`), &p))
	assert.Equal(t, "stage(42)", Stage(42).String())
}

func TestPipelines(t *testing.T) {
	assert.Equal(t, []string{"liftover", "intervar", "alignstats", "verifybamid", "cassandra"}, PipelineNames())

	p, err := PipelineByName("liftover")
	require.NoError(t, err)
	assert.Equal(t, []Stage{Intersect, Preprocessing, Liftover, Stargazer}, p.Stages)

	rules, err := p.Rules()
	require.NoError(t, err)
	require.Len(t, rules, 4)
	assert.Equal(t, Intersect, rules[0].Stage)

	_, err = PipelineByName("nope")
	assert.True(t, errors.Is(err, ErrUnknownPipeline))

	covered := map[Stage]bool{}
	for _, p := range Pipelines() {
		for _, s := range p.Stages {
			assert.False(t, covered[s], "stage %s in more than one pipeline", s)
			covered[s] = true
		}
	}
	assert.Len(t, covered, len(AllStages()), "every stage belongs to a pipeline")
}
