package cmd

import (
	"bytes"
	"testing"

	"github.com/fulmenhq/gofulmen/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/3leaps/genoroute/internal/assets/schemas"
	"github.com/3leaps/genoroute/pkg/stage"
)

func TestStageTable_JSONMatchesSchema(t *testing.T) {
	table, err := buildStageTable()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeStageTable(&buf, "json", table))

	v, err := schema.NewValidator(schemasassets.StageTableSchema)
	require.NoError(t, err)
	diags, err := v.ValidateJSON(buf.Bytes())
	require.NoError(t, err)
	for _, d := range diags {
		assert.NotEqual(t, schema.SeverityError, d.Severity, "%s: %s", d.Pointer, d.Message)
	}

	assert.Len(t, table.Pipelines, len(stage.Pipelines()))
	var rows int
	for _, p := range table.Pipelines {
		rows += len(p.Stages)
	}
	assert.Len(t, table.Stages, rows)
}

func TestStageTable_YAML(t *testing.T) {
	table, err := buildStageTable()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeStageTable(&buf, "yaml", table))

	var back stageTable
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, table, back)
}

func TestStageTable_UnknownFormat(t *testing.T) {
	err := writeStageTable(&bytes.Buffer{}, "toml", stageTable{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
