package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dcshock/pixelpipe/config"
	"github.com/dcshock/pixelpipe/pipeline"
	"github.com/dcshock/pixelpipe/tasks"
)

func newGraphCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the resolved task execution order",
		Long: `Resolve the configured task graph and print tasks in the order they run.

Examples:
  pixelpipe graph -c pipeline.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			p, err := config.BuildPipeline(tasks.NewRegistry(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pipeline %s\n", p.Name)
			fmt.Fprintf(out, "datasets provide: %s\n", strings.Join(p.Initial, ", "))
			for i, t := range p.Tasks {
				fmt.Fprintf(out, "%d. %s (%s): %s -> %s\n", i+1, t.Name, t.Type, contract(t.Require), contract(t.Output))
			}
			return nil
		},
	}
}

func contract(c pipeline.Contract) string {
	var parts []string
	if len(c.Data) > 0 {
		parts = append(parts, "data["+strings.Join(c.Data, " ")+"]")
	}
	if len(c.Record) > 0 {
		parts = append(parts, "record["+strings.Join(c.Record, " ")+"]")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the registered task types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range tasks.NewRegistry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
