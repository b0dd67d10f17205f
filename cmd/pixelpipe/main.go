// Package main implements the pixelpipe CLI: run a configured pipeline over
// every pixel of the input datasets, or inspect the resolved task graph.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dcshock/pixelpipe/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "pixelpipe",
		Short: "Per-pixel time series change detection pipelines",
		Long: `pixelpipe runs a YAML-configured graph of tasks over the observation
series of every pixel: band indices, CCDC segmentation, robust refits and
EWMA structural break tests.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "pixelpipe.yaml", "pipeline configuration file")
	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newGraphCmd(&configPath))
	root.AddCommand(newTasksCmd())
	return root
}

// loadConfig loads path and resolves dataset input files relative to the
// config file's directory.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for _, d := range cfg.Data.Datasets {
		if d.InputFile != "" && !filepath.IsAbs(d.InputFile) {
			d.InputFile = filepath.Join(dir, d.InputFile)
		}
	}
	return cfg, nil
}
