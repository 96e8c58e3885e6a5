// LLM Chat Proxy
//
// This application is the local proxy behind the editor chat panel. It keeps
// the LLM endpoint settings in a per-user JSON file and relays prompts to the
// configured completion endpoint.
//
// CLI Usage:
//
//	--addr="127.0.0.1:3001"
//	  Address the HTTP server listens on.
//	  Example: ./llm-chat-proxy --addr=127.0.0.1:4000
//
//	--config="/path/to/config.json"
//	  Location of the settings file.
//
//	--show-config
//	  Prints the masked configuration and its status as YAML.
//
//	--set-api --api-url="https://..." --api-token="..."
//	  Stores the endpoint URL and token.
//
//	--test-connection
//	  Sends a short prompt to the configured endpoint and reports latency.
//
//	--reset-config
//	  Restores the default configuration.
//
// Environment Variables:
//   - PROXY_ADDR: Listen address (overridden by --addr)
//   - LLM_CONFIG_PATH: Settings file location (overridden by --config)
//   - LLM_API_URL, LLM_API_TOKEN: Default endpoint URL and token
//   - LLM_DEFAULT_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE: Default sampling parameters
//   - LLM_REQUEST_TIMEOUT_MS: Default request timeout in milliseconds
//   - LLM_ENABLE_LOGGING: Set to "true" to log every completion
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"llm-chat-proxy/internal/app"
	"llm-chat-proxy/internal/llm"
	"llm-chat-proxy/pkg/utils"
)

const (
	appName        = "llm-chat-proxy"
	defaultAddr    = "127.0.0.1:3001"
	shutdownPeriod = 5 * time.Second
)

// loadEnvFile loads environment variables from a .env file if present.
// It attempts to load from the current directory and parent directories
// up to the root directory.
func loadEnvFile() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env file in current directory")
		return
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Printf("Warning: Could not determine current directory: %v", err)
		return
	}

	for dir := workDir; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("Loaded environment variables from %s", envPath)
			return
		}
	}

	log.Println("No .env file found. Using existing environment variables.")
}

// resolveConfigPath picks the settings file from the flag, the environment
// or the per-user default, in that order.
func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if p := os.Getenv("LLM_CONFIG_PATH"); p != "" {
		return p, nil
	}
	return utils.DefaultConfigPath(appName)
}

func showConfig(store *llm.Store) error {
	out, err := yaml.Marshal(struct {
		Path   string           `yaml:"path"`
		Config llm.MaskedConfig `yaml:"config"`
		Status llm.ConfigStatus `yaml:"status"`
	}{
		Path:   store.Path(),
		Config: store.Masked(),
		Status: store.Status(),
	})
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func main() {
	loadEnvFile()

	addr := flag.String("addr", utils.GetEnvWithDefault("PROXY_ADDR", defaultAddr), "Address to listen on")
	configPath := flag.String("config", "", "Path to the settings file")
	showCfg := flag.Bool("show-config", false, "Print the masked configuration and exit")
	testConn := flag.Bool("test-connection", false, "Send a test prompt to the configured endpoint and exit")
	resetCfg := flag.Bool("reset-config", false, "Restore the default configuration and exit")
	setAPI := flag.Bool("set-api", false, "Store --api-url and --api-token and exit")
	apiURL := flag.String("api-url", "", "Endpoint URL used with --set-api")
	apiToken := flag.String("api-token", "", "Bearer token used with --set-api")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		log.Fatalf("Failed to determine config path: %v", err)
	}

	store, err := llm.NewStore(path, llm.DefaultsFromEnv(os.Getenv), logger)
	if err != nil {
		log.Fatalf("Failed to open config store: %v", err)
	}
	service := llm.NewService(store, llm.WithLogger(logger))

	switch {
	case *showCfg:
		if err := showConfig(store); err != nil {
			log.Fatalf("%v", err)
		}
		return

	case *setAPI:
		if err := store.SetAPIConfig(*apiURL, *apiToken); err != nil {
			log.Fatalf("Failed to save API configuration: %v", err)
		}
		fmt.Printf("API configuration saved to %s (token %s)\n", store.Path(), store.Masked().AuthToken)
		return

	case *resetCfg:
		if err := store.Reset(); err != nil {
			log.Fatalf("Failed to reset configuration: %v", err)
		}
		fmt.Println("Configuration reset to defaults")
		return

	case *testConn:
		result := service.TestConnection(context.Background())
		fmt.Println(result.Message)
		if result.Response != "" {
			fmt.Printf("Response: %s\n", result.Response)
		}
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	if flag.NFlag() == 0 {
		fmt.Println("Running in server mode. Use --help for CLI options.")
	}
	if status := store.Status(); !status.Configured {
		log.Printf("Warning: LLM API not configured (missing %v). Set it via POST /api/config/api or --set-api.", status.MissingFields)
	}

	a := app.NewApp(store, service, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              *addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s (config %s)...", *addr, store.Path())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	} else {
		log.Println("Server gracefully stopped")
	}
}
