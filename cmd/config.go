package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PetersonGuo/HTN25/internal/backend"
	"github.com/PetersonGuo/HTN25/internal/config"
	"github.com/PetersonGuo/HTN25/internal/logging"
)

var configSection string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage llmpipe settings",
	Long: `Read and write llmpipe settings. Values are merged from the default,
global and project (.llmpipe.yaml) files; LLMPIPE_* environment variables
override all of them.

Sections:
  backends.<name>   api_key and base_url for cerebras, openai or gemini
  server            host, port and token for "llmpipe serve"
  logging           level and format
  defaults          templates directory and batch concurrency`,
	Example: `  llmpipe config set backends.cerebras.api_key csk-...
  llmpipe config set server.port 9000
  llmpipe config list --section backends`,
	RunE: runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the global config file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List settings grouped by section",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config files in effect",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configListCmd.Flags().StringVar(&configSection, "section", "", "Only list one section (backends, server, logging, defaults)")
	configCmd.Flags().StringVar(&configSection, "section", "", "Only list one section (backends, server, logging, defaults)")
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := normalizeConfigKey(args[0])
	if key == "" {
		return errors.New("config key is required")
	}

	value, ok := config.GetConfig(key)
	if !ok {
		return fmt.Errorf("config key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := normalizeConfigKey(args[0])
	if key == "" {
		return errors.New("config key is required")
	}

	value := strings.TrimSpace(args[1])
	if value == "" {
		return errors.New("config value is required")
	}
	if err := checkConfigValue(key, value); err != nil {
		return err
	}

	if err := config.SetConfig(key, value); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Updated config: %s\n", key)
	if paths := config.CurrentPaths(); paths.Project != "" && fileExists(paths.Project) {
		fmt.Fprintf(out, "Note: %s may override this value\n", paths.Project)
	}
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	items, err := config.ListConfig()
	if err != nil {
		return err
	}

	section := strings.ToLower(strings.TrimSpace(configSection))
	if section != "" && !knownSection(section) {
		return fmt.Errorf("unknown config section %q (want one of %s)", section, strings.Join(configSections, ", "))
	}

	writeConfigSections(cmd.OutOrStdout(), items, section)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths := config.CurrentPaths()
	out := cmd.OutOrStdout()
	for _, entry := range []struct {
		label string
		path  string
	}{
		{"default", paths.Default},
		{"global", paths.Global},
		{"project", paths.Project},
	} {
		state := "missing"
		if entry.path == "" {
			state = "unset"
		} else if fileExists(entry.path) {
			state = "loaded"
		}
		fmt.Fprintf(out, "%-8s %s (%s)\n", entry.label, entry.path, state)
	}
	return nil
}

var configSections = []string{"backends", "server", "logging", "defaults"}

func knownSection(name string) bool {
	for _, section := range configSections {
		if section == name {
			return true
		}
	}
	return false
}

// writeConfigSections prints items under one header per top-level section.
// Backend keys are further grouped by backend name.
func writeConfigSections(w io.Writer, items map[string]string, only string) {
	grouped := map[string][]string{}
	for key := range items {
		section, _, _ := strings.Cut(key, ".")
		if only != "" && section != only {
			continue
		}
		grouped[section] = append(grouped[section], key)
	}

	sections := make([]string, 0, len(grouped))
	for section := range grouped {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "[%s]\n", section)
		keys := grouped[section]
		sort.Strings(keys)
		lastBackend := ""
		for _, key := range keys {
			rest := strings.TrimPrefix(key, section+".")
			if section == "backends" {
				name, field, ok := strings.Cut(rest, ".")
				if ok {
					if name != lastBackend {
						fmt.Fprintf(w, "  %s:\n", name)
						lastBackend = name
					}
					fmt.Fprintf(w, "    %s=%s\n", field, items[key])
					continue
				}
			}
			fmt.Fprintf(w, "  %s=%s\n", rest, items[key])
		}
	}
}

func normalizeConfigKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// checkConfigValue rejects values llmpipe would fail on at startup.
func checkConfigValue(key, value string) error {
	switch key {
	case "server.port":
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("server.port must be between 1 and 65535, got %q", value)
		}
	case "defaults.concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("defaults.concurrency must be a positive integer, got %q", value)
		}
	case "logging.level":
		if _, err := logging.ParseLevel(value); err != nil {
			return err
		}
	case "logging.format":
		switch strings.ToLower(value) {
		case logging.FormatConsole, logging.FormatJSON:
		default:
			return fmt.Errorf("logging.format must be %s or %s, got %q", logging.FormatConsole, logging.FormatJSON, value)
		}
	}

	if rest, ok := strings.CutPrefix(key, "backends."); ok {
		name, field, _ := strings.Cut(rest, ".")
		if _, known := backend.ParseKind(name); !known {
			return fmt.Errorf("unknown backend %q in %s", name, key)
		}
		if field != "api_key" && field != "base_url" {
			return fmt.Errorf("backend settings are api_key and base_url, got %q", field)
		}
	}
	return nil
}

func loadConfigForCwd() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}
	_, err = config.LoadConfig(cwd)
	return err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
