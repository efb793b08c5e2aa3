package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

// TemplateProvider renders a named template with the invocation input.
type TemplateProvider interface {
	Render(name string, input map[string]any) (string, error)
}

// BackendFactory constructs a generation backend for one invocation.
type BackendFactory func(kind backend.Kind, opts backend.Options) (backend.Backend, error)

// Credentials are passed to the backend constructor for a given kind.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// TemplateRef names the template used for an invocation.
type TemplateRef struct {
	Name string `json:"name"`
}

// ValidationReport is the outcome of validating the final answer.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Result is the envelope returned by Run.
type Result struct {
	Answer     any              `json:"answer"`
	Usage      map[string]any   `json:"usage"`
	Model      string           `json:"model"`
	Template   TemplateRef      `json:"template"`
	Validation ValidationReport `json:"validation"`
	Backend    backend.Kind     `json:"backend"`
	Attempts   int              `json:"attempts"`
}

// Pipeline turns structured input into schema-conformant JSON through a
// generation backend. A Pipeline holds no per-invocation state and is safe for
// concurrent use.
type Pipeline struct {
	templates   TemplateProvider
	agent       Agent
	credentials map[backend.Kind]Credentials
	factory     BackendFactory
	logger      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithAgent(agent Agent) Option {
	return func(p *Pipeline) {
		if agent != nil {
			p.agent = agent
		}
	}
}

func WithCredentials(kind backend.Kind, creds Credentials) Option {
	return func(p *Pipeline) {
		p.credentials[kind] = creds
	}
}

func WithBackendFactory(factory BackendFactory) Option {
	return func(p *Pipeline) {
		if factory != nil {
			p.factory = factory
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pipeline rendering prompts with templates.
func New(templates TemplateProvider, opts ...Option) *Pipeline {
	p := &Pipeline{
		templates:   templates,
		agent:       DefaultAgent{},
		credentials: make(map[backend.Kind]Credentials),
		factory:     backend.New,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one invocation. Configuration problems are reported before any
// backend call and wrap ErrConfig. Backend failures are returned as-is and
// never retried. Output that does not conform to the schema is retried up to
// cfg.JSONRetryAttempts times and is never an error.
func (p *Pipeline) Run(ctx context.Context, input map[string]any, cfg Config) (Result, error) {
	validator, err := cfg.compile()
	if err != nil {
		return Result{}, err
	}
	if p.templates == nil {
		return Result{}, configError("no template provider configured")
	}

	decision := p.agent.Decide(input, cfg)
	if !decision.Backend.Valid() {
		return Result{}, configError("unknown backend %q", decision.Backend)
	}
	if strings.TrimSpace(decision.Model) == "" {
		return Result{}, configError("no model selected")
	}

	rendered, err := p.templates.Render(decision.TemplateName, input)
	if err != nil {
		return Result{}, wrapConfigError(err, "render template %q", decision.TemplateName)
	}

	images, err := imagesFromInput(input)
	if err != nil {
		return Result{}, err
	}

	creds := p.credentials[decision.Backend]
	gen, err := p.factory(decision.Backend, backend.Options{
		APIKey:          creds.APIKey,
		BaseURL:         creds.BaseURL,
		Timeout:         cfg.Timeout(),
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create %s backend: %w", decision.Backend, err)
	}
	if len(images) > 0 && !gen.SupportsImages() {
		return Result{}, backend.UnsupportedError(decision.Backend, "images")
	}

	logger := p.logger.With(
		zap.String("backend", decision.Backend.String()),
		zap.String("model", decision.Model),
		zap.String("template", decision.TemplateName),
	)
	logger.Debug("pipeline decision", zap.Int("images", len(images)), zap.Int("attempts", cfg.JSONRetryAttempts))

	instructions := buildInstructions(cfg.OutputSchema)
	result := Result{
		Model:    decision.Model,
		Template: TemplateRef{Name: decision.TemplateName},
		Backend:  decision.Backend,
		Usage:    map[string]any{},
	}

	var (
		lastRaw        *string
		previousErrors string
		answer         any
		parsed         bool
		report         ValidationReport
	)
	for attempt := 1; attempt <= cfg.JSONRetryAttempts; attempt++ {
		prompt := buildPrompt(instructions, attempt, cfg.JSONRetryAttempts, previousErrors, rendered)

		generated, err := p.generate(ctx, gen, cfg, backend.Request{
			Prompt: prompt,
			Model:  decision.Model,
			Images: images,
		})
		result.Attempts = attempt
		if err != nil {
			logger.Warn("backend call failed", zap.Int("attempt", attempt), zap.Error(err))
			return Result{}, fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if generated.Usage != nil {
			result.Usage = generated.Usage
		}
		lastRaw = generated.Output

		answer, parsed = parseOutput(generated.Output)
		if parsed {
			report.Errors = validator.Validate(answer)
		} else {
			report.Errors = []string{notJSONMessage}
		}
		report.Valid = len(report.Errors) == 0

		if report.Valid {
			logger.Info("pipeline attempt succeeded", zap.Int("attempt", attempt))
			break
		}
		logger.Info("pipeline attempt rejected",
			zap.Int("attempt", attempt),
			zap.Bool("parsed", parsed),
			zap.Strings("errors", report.Errors),
		)
		previousErrors = strings.Join(report.Errors, "\n")
	}

	if report.Valid {
		result.Answer = answer
	} else {
		var text any
		if lastRaw != nil {
			text = *lastRaw
		}
		result.Answer = map[string]any{"text": text}
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}
	result.Validation = report
	return result, nil
}

func (p *Pipeline) generate(ctx context.Context, gen backend.Backend, cfg Config, req backend.Request) (backend.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	return gen.Generate(callCtx, req)
}

// parseOutput tries a direct decode of the whole output, then extraction.
// A JSON null is treated as nothing parsed.
func parseOutput(output *string) (any, bool) {
	if output == nil {
		return nil, false
	}
	text := strings.TrimSpace(*output)
	if text == "" {
		return nil, false
	}

	var direct any
	if err := json.Unmarshal([]byte(text), &direct); err == nil && direct != nil {
		return direct, true
	}
	if obj, ok := ExtractJSONObject(text); ok {
		return obj, true
	}
	return nil, false
}

func imagesFromInput(input map[string]any) ([]string, error) {
	raw, ok := input["images"]
	if !ok || raw == nil {
		return nil, nil
	}

	switch values := raw.(type) {
	case []string:
		out := make([]string, 0, len(values))
		for _, value := range values {
			if value != "" {
				out = append(out, value)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(values))
		for i, value := range values {
			image, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %w: images[%d] must be a string", ErrConfig, ErrInvalidInput, i)
			}
			if image != "" {
				out = append(out, image)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %w: images must be a list of strings", ErrConfig, ErrInvalidInput)
	}
}
