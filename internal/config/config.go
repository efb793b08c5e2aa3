// Package config resolves llmpipe application settings from layered YAML files
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "LLMPIPE"
	defaultProjectName = ".llmpipe.yaml"
)

// Built-in values used when no file or env var sets a key.
const (
	DefaultServerHost  = "127.0.0.1"
	DefaultServerPort  = 8080
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
	DefaultTemplates   = "templates"
	DefaultConcurrency = 4
)

// Paths captures the config files used during LoadConfig.
type Paths struct {
	Default string
	Global  string
	Project string
}

// Backend holds the credentials for one generation backend.
type Backend struct {
	APIKey  string
	BaseURL string
}

// Configured reports whether an API key is available.
func (b Backend) Configured() bool {
	return strings.TrimSpace(b.APIKey) != ""
}

// Server holds the HTTP server settings.
type Server struct {
	Host  string
	Port  int
	Token string
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logging holds the logger settings.
type Logging struct {
	Level  string
	Format string
}

var (
	currentConfig *viper.Viper
	currentPaths  Paths
)

// LoadConfig loads and merges configuration in priority order:
// default -> global -> project (highest). Environment variables override
// every file.
func LoadConfig(projectDir string) (Paths, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	paths := Paths{
		Default: defaultConfigPath(),
		Global:  globalConfigPath(),
		Project: projectConfigPath(projectDir),
	}

	if err := readConfigFile(v, paths.Default); err != nil {
		return paths, err
	}
	if err := mergeConfigFile(v, paths.Global); err != nil {
		return paths, err
	}
	if err := mergeConfigFile(v, paths.Project); err != nil {
		return paths, err
	}

	currentConfig = v
	currentPaths = paths

	return paths, nil
}

// CurrentPaths returns the files resolved by the last LoadConfig call.
func CurrentPaths() Paths {
	return currentPaths
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("defaults.templates", DefaultTemplates)
	v.SetDefault("defaults.concurrency", DefaultConcurrency)
}

// GetConfig returns a config value as a string with env overrides applied.
func GetConfig(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	if legacyKey, ok := legacyEnvOverrides()[key]; ok {
		if value, found := os.LookupEnv(legacyKey); found {
			return value, true
		}
	}

	if currentConfig == nil {
		return "", false
	}

	if !currentConfig.IsSet(key) {
		return "", false
	}

	return valueToString(currentConfig.Get(key)), true
}

// GetString returns the value for key, or fallback when it is unset or blank.
func GetString(key, fallback string) string {
	value, ok := GetConfig(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// GetInt returns the integer value for key, or fallback when it is unset or
// not a number.
func GetInt(key string, fallback int) int {
	value, ok := GetConfig(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

// BackendCredentials returns the credentials configured for a backend kind.
func BackendCredentials(kind string) Backend {
	prefix := "backends." + strings.ToLower(kind)
	return Backend{
		APIKey:  GetString(prefix+".api_key", ""),
		BaseURL: GetString(prefix+".base_url", ""),
	}
}

// ServerSettings returns the HTTP server settings.
func ServerSettings() Server {
	return Server{
		Host:  GetString("server.host", DefaultServerHost),
		Port:  GetInt("server.port", DefaultServerPort),
		Token: GetString("server.token", ""),
	}
}

// LoggingSettings returns the logger settings.
func LoggingSettings() Logging {
	return Logging{
		Level:  GetString("logging.level", DefaultLogLevel),
		Format: GetString("logging.format", DefaultLogFormat),
	}
}

// SetConfig writes a configuration value to the global config file.
func SetConfig(key, value string) error {
	if key == "" {
		return errors.New("config key is required")
	}

	globalPath := globalConfigPath()
	if globalPath == "" {
		return errors.New("global config path is not available")
	}

	if err := os.MkdirAll(filepath.Dir(globalPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(globalPath)
	if fileExists(globalPath) {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read global config: %w", err)
		}
	}

	v.Set(key, value)
	if err := v.WriteConfigAs(globalPath); err != nil {
		return fmt.Errorf("write global config: %w", err)
	}

	if currentConfig != nil {
		currentConfig.Set(key, value)
	}

	return nil
}

// ListConfig returns a flattened view of the current configuration. API keys
// are masked.
func ListConfig() (map[string]string, error) {
	if currentConfig == nil {
		return nil, errors.New("config not loaded")
	}

	settings := currentConfig.AllSettings()
	flattened := map[string]string{}
	flattenSettings("", settings, flattened)
	for key, value := range flattened {
		if isSecretKey(key) && value != "" {
			flattened[key] = maskSecret(value)
		}
	}
	return flattened, nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, ".api_key") || key == "server.token"
}

func maskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

func defaultConfigPath() string {
	if path, ok := os.LookupEnv(envPrefix + "_DEFAULT_CONFIG"); ok && path != "" {
		return path
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config", "default.yaml"),
			filepath.Join(exeDir, "..", "config", "default.yaml"),
		)
	}

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "config", "default.yaml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "llmpipe", "config", "default.yaml"))
	}

	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate
		}
	}

	return ""
}

func globalConfigPath() string {
	if path, ok := os.LookupEnv(envPrefix + "_GLOBAL_CONFIG"); ok && path != "" {
		return path
	}

	configDir := configDir()
	if configDir == "" {
		return ""
	}

	return filepath.Join(configDir, "config.yaml")
}

func projectConfigPath(projectDir string) string {
	if projectDir == "" {
		return ""
	}

	info, err := os.Stat(projectDir)
	if err != nil || !info.IsDir() {
		return ""
	}

	name := os.Getenv(envPrefix + "_PROJECT_CONFIG_NAME")
	if name == "" {
		name = defaultProjectName
	}

	return filepath.Join(projectDir, name)
}

func configDir() string {
	if path, ok := os.LookupEnv(envPrefix + "_CONFIG_DIR"); ok && path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "llmpipe")
}

func readConfigFile(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("merge config %s: %w", path, err)
	}

	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// legacyEnvOverrides maps config keys to the provider variables that tools and
// SDKs conventionally read.
func legacyEnvOverrides() map[string]string {
	return map[string]string{
		"backends.cerebras.api_key":  "CEREBRAS_API_KEY",
		"backends.cerebras.base_url": "CEREBRAS_API_URL",
		"backends.openai.api_key":    "OPENAI_API_KEY",
		"backends.openai.base_url":   "OPENAI_BASE_URL",
		"backends.gemini.api_key":    "GEMINI_API_KEY",
	}
}

func valueToString(value any) string {
	switch typed := value.(type) {
	case []string:
		return strings.Join(typed, ",")
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(value)
	}
}

func flattenSettings(prefix string, value any, out map[string]string) {
	if value == nil {
		return
	}

	switch typed := value.(type) {
	case map[string]any:
		for key, item := range typed {
			nextKey := key
			if prefix != "" {
				nextKey = prefix + "." + key
			}
			flattenSettings(nextKey, item, out)
		}
	case map[any]any:
		for key, item := range typed {
			keyText := fmt.Sprint(key)
			nextKey := keyText
			if prefix != "" {
				nextKey = prefix + "." + keyText
			}
			flattenSettings(nextKey, item, out)
		}
	default:
		if prefix == "" {
			return
		}
		out[prefix] = valueToString(value)
	}
}
