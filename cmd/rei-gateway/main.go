// ABOUTME: Entry point for the rei-gateway chat server
// ABOUTME: Serves the Rei conversational agent over WebSocket and SSE

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/auth"
	"github.com/2389/rei-gateway/internal/config"
	"github.com/2389/rei-gateway/internal/metrics"
	"github.com/2389/rei-gateway/internal/model"
	"github.com/2389/rei-gateway/internal/safety"
	"github.com/2389/rei-gateway/internal/server"
	"github.com/2389/rei-gateway/internal/store"
	"github.com/2389/rei-gateway/internal/tool"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                 _
  _ __ ___(_)       __ _ __ _| |_ _____      ____ _ _   _
 | '__/ _ \ |_____ / _' / _' | __/ _ \ \ /\ / / _' | | | |
 | | |  __/ |_____| (_| (_| | ||  __/\ V  V / (_| | |_| |
 |_|  \___|_|      \__, \__,_|\__\___| \_/\_/ \__,_|\__, |
                   |___/                            |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: REI_CONFIG env var > XDG_CONFIG_HOME/rei/gateway.yaml > ~/.config/rei/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("REI_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "rei", "gateway.yaml")
}

// getDataPath returns the path to the rei data directory.
// Priority: XDG_DATA_HOME/rei > ~/.local/share/rei
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "rei")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: rei-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                 Start the gateway server")
		fmt.Println("  init                  Create a new config file interactively")
		fmt.Println("  token --user USER     Mint a JWT for a user")
		fmt.Println("  health                Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Model:   %s\n", cfg.Model.Name)
	if cfg.Safety.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Guard:   %s\n", cfg.Safety.Name)
	}
	fmt.Println()

	logger.Info("starting rei-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.Model.Name,
	)

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.Run(ctx)
}

// buildServer wires the store, models, guard, tools, orchestrator, and
// transports from configuration.
func buildServer(cfg *config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	cleanup := func() { _ = st.Close() }

	registry := tool.NewRegistry(logger)
	tool.RegisterBuiltins(registry)

	chatModel, err := model.NewOpenAI(model.OpenAIConfig{
		BaseURL:         cfg.Model.BaseURL,
		APIKey:          cfg.Model.APIKey,
		Name:            cfg.Model.Name,
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
		Tools:           registry.Definitions(),
		Logger:          logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating chat model: %w", err)
	}

	var guard *safety.Guard
	if cfg.Safety.Enabled {
		baseURL := cfg.Safety.BaseURL
		if baseURL == "" {
			baseURL = cfg.Model.BaseURL
		}
		apiKey := cfg.Safety.APIKey
		if apiKey == "" {
			apiKey = cfg.Model.APIKey
		}
		guardModel, err := model.NewOpenAI(model.OpenAIConfig{
			BaseURL: baseURL,
			APIKey:  apiKey,
			Name:    cfg.Safety.Name,
			Logger:  logger,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("creating guard model: %w", err)
		}
		guard = safety.NewGuard(safety.NewModelClassifier(guardModel), logger)
	}

	orchestrator, err := agent.New(agent.Config{
		Model:             chatModel,
		Store:             st,
		Guard:             guard,
		Tools:             registry,
		ContextLength:     cfg.Model.ContextLength,
		MaxOutputTokens:   cfg.Model.MaxOutputTokens,
		MaxToolIterations: cfg.Chat.MaxToolIterations,
		Logger:            logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	epilogue := agent.NewEpilogue(st, model.NewTitleSummarizer(chatModel), logger)

	var m *metrics.Metrics
	metricsPath := ""
	if cfg.Metrics.Enabled {
		m = metrics.New(logger)
		metricsPath = cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}

	srv, err := server.New(server.Config{
		HTTPAddr:        cfg.Server.HTTPAddr,
		MetricsPath:     metricsPath,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Store:           st,
		Orchestrator:    orchestrator,
		Epilogue:        epilogue,
		Verifier:        auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		Metrics:         m,
		Logger:          logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}

	return srv, cleanup, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runToken mints a JWT for a user so clients can talk to the gateway.
// Supports both "--user value" and "--user=value" formats.
func runToken() error {
	var userID string
	ttl := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return fmt.Errorf("--ttl requires a value")
			}
			parsed, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing ttl: %w", err)
			}
			ttl = parsed
			i++
		case strings.HasPrefix(arg, "--ttl="):
			parsed, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("parsing ttl: %w", err)
			}
			ttl = parsed
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(userID, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Println("  Token minted")
	fmt.Println()
	cyan.Printf("  User:    ")
	fmt.Println(userID)
	cyan.Printf("  Expires: ")
	fmt.Println(time.Now().Add(ttl).UTC().Format("Jan 02, 2006 15:04 MST"))
	cyan.Printf("  Token:   ")
	fmt.Println(token)

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("rei-gateway configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Model
	fmt.Println("\n--- Model Configuration ---")
	modelBaseURL := prompt(reader, "Model base URL", "http://localhost:11434/v1")
	modelName := prompt(reader, "Model name", "llama3.1")
	contextLength := prompt(reader, "Context length (tokens)", "8192")
	maxOutput := prompt(reader, "Max output tokens", "1024")

	// Safety
	fmt.Println("\n--- Safety Configuration ---")
	enableSafety := prompt(reader, "Enable hazard guard?", "no")
	safetyEnabled := strings.ToLower(enableSafety) == "yes" || strings.ToLower(enableSafety) == "y"
	var guardName string
	if safetyEnabled {
		guardName = prompt(reader, "Guard model name", "llama-guard3")
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate a random JWT secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# rei-gateway configuration\n")
	cfg.WriteString("# Generated by rei-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("  shutdown_timeout: \"15s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("\n")

	cfg.WriteString("model:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", modelBaseURL))
	cfg.WriteString("  api_key: \"${REI_MODEL_API_KEY}\"\n")
	cfg.WriteString(fmt.Sprintf("  name: \"%s\"\n", modelName))
	cfg.WriteString(fmt.Sprintf("  context_length: %s\n", contextLength))
	cfg.WriteString(fmt.Sprintf("  max_output_tokens: %s\n", maxOutput))
	cfg.WriteString("\n")

	cfg.WriteString("safety:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", safetyEnabled))
	if safetyEnabled {
		cfg.WriteString(fmt.Sprintf("  name: \"%s\"\n", guardName))
	}
	cfg.WriteString("\n")

	cfg.WriteString("chat:\n")
	cfg.WriteString("  max_tool_iterations: 5\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  rei-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
