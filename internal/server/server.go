package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/PetersonGuo/HTN25/internal/backend"
	"github.com/PetersonGuo/HTN25/internal/pipeline"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPort         = 8080
	defaultMaxBodyBytes = 8 << 20

	requestIDHeader = "X-Request-ID"
)

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, input map[string]any, cfg pipeline.Config) (pipeline.Result, error)
}

// Options configures the HTTP pipeline server.
type Options struct {
	Host         string
	Port         int
	Token        string
	Open         bool
	MaxBodyBytes int64

	Runner Runner
	// DefaultConfig is used for requests that carry no config of their own.
	DefaultConfig *pipeline.Config
	// Configured reports whether credentials exist for a backend kind.
	Configured func(kind backend.Kind) bool
	Logger     *zap.Logger
}

// StartServer runs the HTTP server until ctx is canceled.
func StartServer(ctx context.Context, opts Options) error {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = defaultHost
	}
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}
	if opts.Runner == nil {
		return errors.New("server: runner is required")
	}

	handlerOpts := newHandlerOptions(host, opts)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler:           newHandler(handlerOpts),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctxTimeout)
	}()

	handlerOpts.logger.Info("server listening", zap.String("addr", srv.Addr), zap.Bool("auth", opts.Token != ""))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		select {
		case shutdownErr := <-shutdownErr:
			return shutdownErr
		default:
			return nil
		}
	}
	return err
}

type handlerOptions struct {
	host          string
	token         string
	open          bool
	maxBody       int64
	runner        Runner
	defaultConfig *pipeline.Config
	configured    func(kind backend.Kind) bool
	logger        *zap.Logger
}

func newHandlerOptions(host string, opts Options) handlerOptions {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	configured := opts.Configured
	if configured == nil {
		configured = func(backend.Kind) bool { return false }
	}
	return handlerOptions{
		host:          host,
		token:         opts.Token,
		open:          opts.Open,
		maxBody:       maxBody,
		runner:        opts.Runner,
		defaultConfig: opts.DefaultConfig,
		configured:    configured,
		logger:        logger,
	}
}

func newHandler(opts handlerOptions) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Unknown endpoint")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	router.Use(func(next http.Handler) http.Handler {
		return requireToken(next, opts)
	})

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "llmpipe-server"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/backends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listBackendsResponse(opts))
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		handleOpenAPI(w, r, opts)
	}).Methods(http.MethodGet)

	router.HandleFunc("/v1/pipeline/run", func(w http.ResponseWriter, r *http.Request) {
		handleRun(w, r, opts)
	}).Methods(http.MethodPost)

	return withRequestLog(withCORS(router, opts), opts.logger)
}

type backendInfo struct {
	Name       string `json:"name"`
	Images     bool   `json:"images"`
	Configured bool   `json:"configured"`
}

type backendsResponse struct {
	Backends []backendInfo `json:"backends"`
	Default  backend.Kind  `json:"default"`
}

func listBackendsResponse(opts handlerOptions) backendsResponse {
	registered := backend.Registered()
	response := backendsResponse{
		Backends: make([]backendInfo, 0, len(registered)),
		Default:  backend.DefaultKind(),
	}
	if opts.defaultConfig != nil {
		response.Default = opts.defaultConfig.DefaultBackend
	}
	for _, desc := range registered {
		response.Backends = append(response.Backends, backendInfo{
			Name:       desc.Kind.String(),
			Images:     desc.Images,
			Configured: opts.configured(desc.Kind),
		})
	}
	return response
}

type runRequest struct {
	Input  map[string]any  `json:"input"`
	Config json.RawMessage `json:"config"`
}

func handleRun(w http.ResponseWriter, r *http.Request, opts handlerOptions) {
	var req runRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}

	cfg, err := resolveConfig(req.Config, opts.defaultConfig)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := opts.runner.Run(r.Context(), req.Input, cfg)
	if err != nil {
		status := statusForError(err)
		logger := loggerFrom(r.Context(), opts.logger)
		logger.Warn("pipeline run failed", zap.Int("status", status), zap.Error(err))
		writeJSONError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func resolveConfig(raw json.RawMessage, fallback *pipeline.Config) (pipeline.Config, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		if fallback == nil {
			return pipeline.Config{}, fmt.Errorf("%w: config is required", pipeline.ErrConfig)
		}
		return *fallback, nil
	}
	return pipeline.ParseConfig(raw)
}

// statusForError maps pipeline and backend failures to HTTP status codes.
func statusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, pipeline.ErrConfig) {
		return http.StatusBadRequest
	}
	if kind, ok := backend.KindOf(err); ok {
		switch kind {
		case backend.ErrorUnsupported:
			return http.StatusUnprocessableEntity
		case backend.ErrorAuth:
			return http.StatusServiceUnavailable
		case backend.ErrorUpstream, backend.ErrorTransport:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func withCORS(next http.Handler, opts handlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsOrigin := resolveCORSOrigin(r.Header.Get("Origin"), opts.host, opts.open)
		if corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
			if corsOrigin != "*" {
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if opts.maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, opts.maxBody)
		}

		next.ServeHTTP(w, r)
	})
}

func requireToken(next http.Handler, opts handlerOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorizeRequest(w, r, opts) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authorizeRequest(w http.ResponseWriter, r *http.Request, opts handlerOptions) bool {
	if opts.token == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") || fields[1] != opts.token {
		writeJSONError(w, http.StatusUnauthorized, "Invalid or missing Bearer token")
		return false
	}
	return true
}

func resolveCORSOrigin(origin, host string, open bool) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if open {
		return "*"
	}

	switch origin {
	case "http://localhost", "http://127.0.0.1", "http://[::1]":
		return origin
	}

	host = strings.TrimSpace(host)
	if host != "" && host != "0.0.0.0" && host != "::" {
		if origin == "http://"+host {
			return origin
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	payload := map[string]string{"error": message}
	writeJSON(w, status, payload)
}
