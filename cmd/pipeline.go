package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/PetersonGuo/HTN25/internal/backend"
	_ "github.com/PetersonGuo/HTN25/internal/backend/cerebras"
	_ "github.com/PetersonGuo/HTN25/internal/backend/gemini"
	_ "github.com/PetersonGuo/HTN25/internal/backend/openai"
	"github.com/PetersonGuo/HTN25/internal/config"
	"github.com/PetersonGuo/HTN25/internal/pipeline"
	"github.com/PetersonGuo/HTN25/internal/templates"
)

// pipelineFlags are shared by run, batch and serve.
type pipelineFlags struct {
	configPath   string
	templatesDir string
	backendName  string
	model        string
}

// loadPipelineConfig reads the pipeline config file and applies the
// --backend and --model overrides.
func loadPipelineConfig(flags pipelineFlags) (pipeline.Config, error) {
	path := strings.TrimSpace(flags.configPath)
	if path == "" {
		return pipeline.Config{}, errors.New("--config is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := pipeline.DecodeConfig(data)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	if name := strings.TrimSpace(flags.backendName); name != "" {
		kind, ok := backend.ParseKind(name)
		if !ok {
			return pipeline.Config{}, fmt.Errorf("unknown backend %q (available: %s)", name, kindList())
		}
		cfg.DefaultBackend = kind
	}
	if model := strings.TrimSpace(flags.model); model != "" {
		cfg.DefaultModel = model
	}

	err = cfg.Validate()
	switch {
	case errors.Is(err, pipeline.ErrMissingSchema):
		return pipeline.Config{}, fmt.Errorf("config %s has no output_schema: add a JSON Schema object describing the answer under output_schema", path)
	case errors.Is(err, pipeline.ErrSchemaNotObject):
		return pipeline.Config{}, fmt.Errorf("config %s: output_schema must be a JSON Schema object, e.g. {\"type\": \"object\", \"properties\": {...}}", path)
	case err != nil:
		return pipeline.Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// resolveTemplatesDir picks the first existing directory among the --templates
// flag, the config's template_namespace (relative to the config file, then to
// the working directory) and the defaults.templates setting.
func resolveTemplatesDir(flags pipelineFlags, cfg pipeline.Config) (string, error) {
	if dir := strings.TrimSpace(flags.templatesDir); dir != "" {
		if !isDir(dir) {
			return "", fmt.Errorf("templates directory not found: %s", dir)
		}
		return dir, nil
	}

	var candidates []string
	if namespace := strings.TrimSpace(cfg.TemplateNamespace); namespace != "" {
		if !filepath.IsAbs(namespace) && flags.configPath != "" {
			candidates = append(candidates, filepath.Join(filepath.Dir(flags.configPath), namespace))
		}
		candidates = append(candidates, namespace)
	}
	candidates = append(candidates, config.GetString("defaults.templates", config.DefaultTemplates))

	for _, candidate := range candidates {
		if isDir(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("templates directory not found (tried %s)", strings.Join(candidates, ", "))
}

func newPipeline(templatesDir string) (*pipeline.Pipeline, error) {
	engine, err := templates.New(templates.WithDir(templatesDir))
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	for _, kind := range backend.Kinds() {
		creds := config.BackendCredentials(kind.String())
		opts = append(opts, pipeline.WithCredentials(kind, pipeline.Credentials{
			APIKey:  creds.APIKey,
			BaseURL: creds.BaseURL,
		}))
	}
	return pipeline.New(engine, opts...), nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func kindList() string {
	kinds := backend.Kinds()
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, kind.String())
	}
	return strings.Join(names, ", ")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
