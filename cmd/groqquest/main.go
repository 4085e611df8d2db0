package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/groqquest/internal/handler"
	appI18n "github.com/pavelanni/groqquest/internal/i18n"
	"github.com/pavelanni/groqquest/internal/llm"
	"github.com/pavelanni/groqquest/internal/model"
	"github.com/pavelanni/groqquest/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "groqquest",
		Short: "AI tutor chat and quiz generator",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), useraddCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	def := llm.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "groqquest.db", "SQLite database path")
	f.String("llm-provider", def.Provider, "LLM provider (openai, anthropic, gemini, mock)")
	f.String("llm-url", def.OpenAI.BaseURL, "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", def.OpenAI.Model, "Model name or alias for the OpenAI-compatible endpoint")
	f.String("anthropic-key", "", "Anthropic API key")
	f.String("anthropic-model", def.Anthropic.Model, "Anthropic model name or alias")
	f.String("anthropic-url", "", "Anthropic API base URL override")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", def.Gemini.Model, "Gemini model name or alias")
	f.String("gemini-url", "", "Gemini API base URL override")
	f.Duration("llm-timeout", def.Timeout, "Timeout for a single LLM request")
	f.StringP("lang", "l", "en", "UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ru)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Int("recent-attempts", 10, "Quiz attempts shown on the dashboard")
	f.String("admin-password", "", "Initial admin password (or set GROQQUEST_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export quiz results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "groqquest.db", "SQLite database path")
	f.Int("limit", 0, "Most recent attempts per learner (0 = all)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd USERNAME",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	f.String("db", "groqquest.db", "SQLite database path")
	f.String("password", "", "Password for the new user (or set GROQQUEST_PASSWORD)")
	f.String("display-name", "", "Display name (defaults to the username)")
	f.Bool("admin", false, "Grant the admin role")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("GROQQUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("groqquest")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/groqquest")
	v.AddConfigPath("/etc/groqquest")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func llmConfig(v *viper.Viper) llm.Config {
	return llm.Config{
		Provider: strings.ToLower(strings.TrimSpace(v.GetString("llm-provider"))),
		OpenAI: llm.OpenAIConfig{
			APIKey:  v.GetString("llm-key"),
			Model:   v.GetString("llm-model"),
			BaseURL: v.GetString("llm-url"),
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  v.GetString("anthropic-key"),
			Model:   v.GetString("anthropic-model"),
			BaseURL: v.GetString("anthropic-url"),
		},
		Gemini: llm.GeminiConfig{
			APIKey:  v.GetString("gemini-key"),
			Model:   v.GetString("gemini-model"),
			BaseURL: v.GetString("gemini-url"),
		},
		Timeout: v.GetDuration("llm-timeout"),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg, db)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	llmClient := llm.NewClient(provider, llmCfg.Timeout)
	// An unreachable endpoint is reported per request, not at startup.
	if err := llmClient.Ping(ctx); err != nil {
		slog.Warn("LLM health check failed", "provider", llmCfg.Provider, "error", err)
	} else {
		slog.Info("LLM endpoint OK", "provider", llmCfg.Provider, "model", llmClient.ModelID())
	}

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	appCfg := model.AppConfig{
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		RecentAttempts: v.GetInt("recent-attempts"),
	}

	h, err := handler.New(db, llmClient, appCfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	go cleanupSessions(ctx, h, time.Hour)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"provider", llmCfg.Provider,
		"model", llmClient.ModelID(),
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

// cleanupSessions expires auth sessions every interval, releasing the quiz
// and chat state their users left behind.
func cleanupSessions(ctx context.Context, h *handler.Handler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.PruneExpired(ctx); err != nil {
				slog.Warn("failed to clean up auth sessions", "error", err)
			}
		}
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	learners, err := db.ExportAllAttempts(ctx, v.GetInt("limit"))
	if err != nil {
		return fmt.Errorf("export attempts: %w", err)
	}

	export := model.AttemptsExport{
		ExportedAt: time.Now().UTC(),
		Learners:   learners,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported quiz results", "learners", len(learners))
	return nil
}

func runUseradd(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	password := v.GetString("password")
	if password == "" {
		return fmt.Errorf("password is required: set --password flag or GROQQUEST_PASSWORD env var")
	}
	role := model.UserRoleLearner
	if v.GetBool("admin") {
		role = model.UserRoleAdmin
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := createUser(ctx, db, args[0], v.GetString("display-name"), password, role); err != nil {
		return err
	}
	slog.Info("created user", "username", args[0], "role", role)
	return nil
}

func createUser(ctx context.Context, db *store.Store, username, displayName, password string, role model.UserRole) error {
	existing, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("user %q already exists", username)
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = db.CreateUser(ctx, model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or GROQQUEST_ADMIN_PASSWORD env var")
	}
	if err := createUser(ctx, db, "admin", "Administrator", password, model.UserRoleAdmin); err != nil {
		return err
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
