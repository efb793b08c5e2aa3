package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var runFlags pipelineFlags
var runInput string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the result",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.configPath, "config", "c", "", "Pipeline config file (JSON or YAML)")
	runCmd.Flags().StringVarP(&runInput, "input", "i", "-", "Input JSON object file, or - for stdin")
	runCmd.Flags().StringVar(&runFlags.templatesDir, "templates", "", "Templates directory")
	runCmd.Flags().StringVarP(&runFlags.backendName, "backend", "b", "", "Override the backend")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "Override the model")
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadPipelineConfig(runFlags)
	if err != nil {
		return err
	}

	data, err := readInput(runInput, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("input must be a JSON object: %w", err)
	}

	dir, err := resolveTemplatesDir(runFlags, cfg)
	if err != nil {
		return err
	}
	p, err := newPipeline(dir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := p.Run(ctx, input, cfg)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}
