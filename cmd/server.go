package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PetersonGuo/HTN25/internal/backend"
	"github.com/PetersonGuo/HTN25/internal/config"
	"github.com/PetersonGuo/HTN25/internal/pipeline"
	"github.com/PetersonGuo/HTN25/internal/server"
)

var (
	serverHost  string
	serverPort  int
	serverToken string
	serverOpen  bool
	serverFlags pipelineFlags
)

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP pipeline server",
	Args:    cobra.NoArgs,
	RunE:    runServer,
}

func init() {
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", config.DefaultServerHost, "Host/IP to bind to")
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", config.DefaultServerPort, "Port number")
	serverCmd.Flags().StringVarP(&serverToken, "token", "t", "", "Authentication token")
	serverCmd.Flags().BoolVar(&serverOpen, "open", false, "Disable token requirement (use with caution)")
	serverCmd.Flags().StringVarP(&serverFlags.configPath, "config", "c", "", "Default pipeline config for requests without one")
	serverCmd.Flags().StringVar(&serverFlags.templatesDir, "templates", "", "Templates directory")

	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	settings := config.ServerSettings()
	if !cmd.Flags().Changed("host") {
		serverHost = settings.Host
	}
	if !cmd.Flags().Changed("port") {
		serverPort = settings.Port
	}
	if !cmd.Flags().Changed("token") {
		serverToken = settings.Token
	}

	host := strings.TrimSpace(serverHost)
	if host == "" {
		host = config.DefaultServerHost
	}
	if serverPort < 1 || serverPort > 65535 {
		return fmt.Errorf("invalid port number: %d", serverPort)
	}
	if !isLocalhost(host) && serverToken == "" && !serverOpen {
		return errors.New("token required when binding to non-localhost address (use --token or --open)")
	}
	if !isLocalhost(host) && serverOpen && serverToken == "" {
		fmt.Fprintln(os.Stderr, "Warning: server exposed without authentication (--open flag used)")
		fmt.Fprintln(os.Stderr, "Anyone with network access can run pipelines with your API keys!")
	}

	var defaultConfig *pipeline.Config
	cfg := pipeline.DefaultConfig()
	if serverFlags.configPath != "" {
		loaded, err := loadPipelineConfig(serverFlags)
		if err != nil {
			return err
		}
		cfg = loaded
		defaultConfig = &loaded
	}

	dir, err := resolveTemplatesDir(serverFlags, cfg)
	if err != nil {
		return err
	}
	p, err := newPipeline(dir)
	if err != nil {
		return err
	}

	printServerInfo(host, serverPort, serverToken, defaultConfig != nil)

	ctx, cancel := signalContext()
	defer cancel()

	return server.StartServer(ctx, server.Options{
		Host:          host,
		Port:          serverPort,
		Token:         serverToken,
		Open:          serverOpen,
		Runner:        p,
		DefaultConfig: defaultConfig,
		Configured: func(kind backend.Kind) bool {
			return config.BackendCredentials(kind.String()).Configured()
		},
		Logger: logger,
	})
}

func printServerInfo(host string, port int, token string, hasDefault bool) {
	fmt.Printf("Starting llmpipe server on %s:%d...\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /                 - Health check")
	fmt.Println("  GET  /v1/backends      - List generation backends")
	fmt.Println("  POST /v1/pipeline/run  - Run the pipeline")
	if strings.TrimSpace(token) != "" {
		fmt.Println("Authentication: Bearer token required")
	} else {
		fmt.Println("Authentication: None (use --token to enable)")
	}
	if !hasDefault {
		fmt.Println("Requests must include a config (no --config given)")
	}
	fmt.Println("")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("")
}

func isLocalhost(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}
