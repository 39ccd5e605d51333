package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/genoroute/pkg/stage"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the pipeline stage table",
	Long: `Print every pipeline and the queue, job definition and project of each
stage. The JSON form validates against the embedded stage-table schema.`,
	RunE: runStages,
}

var stagesFormat string

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.Flags().StringVarP(&stagesFormat, "format", "f", "yaml", "Output format (yaml|json)")
}

type stageTable struct {
	Pipelines []stagePipeline `json:"pipelines" yaml:"pipelines"`
	Stages    []stageRow      `json:"stages" yaml:"stages"`
}

type stagePipeline struct {
	Name   string   `json:"name" yaml:"name"`
	Stages []string `json:"stages" yaml:"stages"`
}

type stageRow struct {
	Stage         string `json:"stage" yaml:"stage"`
	Pipeline      string `json:"pipeline" yaml:"pipeline"`
	Queue         string `json:"queue" yaml:"queue"`
	Definition    string `json:"definition" yaml:"definition"`
	Project       string `json:"project" yaml:"project"`
	Purpose       string `json:"purpose" yaml:"purpose"`
	SiblingSuffix string `json:"sibling_suffix,omitempty" yaml:"sibling_suffix,omitempty"`
}

func buildStageTable() (stageTable, error) {
	var t stageTable
	for _, p := range stage.Pipelines() {
		rules, err := p.Rules()
		if err != nil {
			return stageTable{}, err
		}
		sp := stagePipeline{Name: p.Name, Stages: make([]string, 0, len(rules))}
		for _, r := range rules {
			sp.Stages = append(sp.Stages, r.Stage.String())
			row := stageRow{
				Stage:      r.Stage.String(),
				Pipeline:   p.Name,
				Queue:      r.Queue,
				Definition: r.Definition,
				Project:    r.Project,
				Purpose:    r.Purpose,
			}
			if r.Sibling != nil {
				row.SiblingSuffix = r.Sibling.Suffix
			}
			t.Stages = append(t.Stages, row)
		}
		t.Pipelines = append(t.Pipelines, sp)
	}
	return t, nil
}

func writeStageTable(w io.Writer, format string, t stageTable) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (use yaml or json)", format)
	}
}

func runStages(cmd *cobra.Command, _ []string) error {
	t, err := buildStageTable()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid stage table", err)
	}
	if err := writeStageTable(cmd.OutOrStdout(), stagesFormat, t); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to write stage table", err)
	}
	return nil
}
