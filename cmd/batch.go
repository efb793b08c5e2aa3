package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PetersonGuo/HTN25/internal/config"
	"github.com/PetersonGuo/HTN25/internal/pipeline"
)

var (
	batchFlags       pipelineFlags
	batchInput       string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the pipeline over a JSONL file of inputs",
	Long:  "Reads one JSON object per line and writes one JSON line per input with either a result or an error.",
	Args:  cobra.NoArgs,
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchFlags.configPath, "config", "c", "", "Pipeline config file (JSON or YAML)")
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "-", "JSONL input file, or - for stdin")
	batchCmd.Flags().StringVar(&batchFlags.templatesDir, "templates", "", "Templates directory")
	batchCmd.Flags().StringVarP(&batchFlags.backendName, "backend", "b", "", "Override the backend")
	batchCmd.Flags().StringVarP(&batchFlags.model, "model", "m", "", "Override the model")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "n", 0, "Maximum concurrent invocations (default from defaults.concurrency)")
	_ = batchCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(batchCmd)
}

type batchLine struct {
	Index  int              `json:"index"`
	Result *pipeline.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadPipelineConfig(batchFlags)
	if err != nil {
		return err
	}

	data, err := readInput(batchInput, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	lines, err := parseBatchInput(data)
	if err != nil {
		return err
	}

	dir, err := resolveTemplatesDir(batchFlags, cfg)
	if err != nil {
		return err
	}
	p, err := newPipeline(dir)
	if err != nil {
		return err
	}

	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = config.GetInt("defaults.concurrency", config.DefaultConcurrency)
	}

	ctx, cancel := signalContext()
	defer cancel()

	inputs := make([]map[string]any, 0, len(lines))
	positions := make([]int, 0, len(lines))
	output := make([]batchLine, len(lines))
	for i, line := range lines {
		output[i].Index = i
		if line.err != nil {
			output[i].Error = line.err.Error()
			continue
		}
		inputs = append(inputs, line.input)
		positions = append(positions, i)
	}

	items, err := p.RunBatch(ctx, inputs, cfg, concurrency)
	if err != nil && items == nil {
		return err
	}
	for j, item := range items {
		i := positions[j]
		if item.Err != nil {
			output[i].Error = item.Err.Error()
			continue
		}
		output[i].Result = item.Result
	}

	failed := 0
	encoder := json.NewEncoder(cmd.OutOrStdout())
	for _, line := range output {
		if line.Error != "" {
			failed++
		}
		if err := encoder.Encode(line); err != nil {
			return err
		}
	}

	logger.Info("batch finished", zap.Int("inputs", len(output)), zap.Int("failed", failed), zap.Int("concurrency", concurrency))
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(output))
	}
	return err
}

type parsedLine struct {
	input map[string]any
	err   error
}

// parseBatchInput splits JSONL data into inputs. Blank lines are skipped; a
// line that is not a JSON object is kept as a per-line error.
func parseBatchInput(data []byte) ([]parsedLine, error) {
	var lines []parsedLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal(raw, &input); err != nil || input == nil {
			lines = append(lines, parsedLine{err: fmt.Errorf("line %d: input must be a JSON object", lineNo)})
			continue
		}
		lines = append(lines, parsedLine{input: input})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return lines, nil
}
