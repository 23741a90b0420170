// Package main is the entry point for the solardb server.
//
// solardb keeps household energy records (solar production, utility usage
// and an activity log) as JSONL tables in a data directory, versions every
// change with git, and exposes them through a JSON HTTP API. Configuration is
// read from CLI flags, a .env file in the data directory, and
// server_config.json (for JWT secret, quotas, rate limits and tariff).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/solardb/internal/config"
	"github.com/maruel/solardb/internal/history"
	"github.com/maruel/solardb/internal/jsonldb"
	"github.com/maruel/solardb/internal/records"
	"github.com/maruel/solardb/internal/server"
	"github.com/maruel/solardb/internal/server/handlers"
	"github.com/maruel/solardb/internal/server/ratelimit"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "solardb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	useGit := flag.Bool("git", true, "Commit every change of the data directory to git")
	requireAuth := flag.Bool("require-auth", false, "Require a bearer token on write requests")
	token := flag.String("token", "", "Print a write token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 365*24*time.Hour, "Validity of the token printed by -token")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Override with .env file values if not explicitly set via flags
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	if !set["git"] {
		if v := env["GIT"]; v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid GIT in .env: %w", err)
			}
			*useGit = b
		}
	}
	if !set["require-auth"] {
		if v := env["REQUIRE_AUTH"]; v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid REQUIRE_AUTH in .env: %w", err)
			}
			*requireAuth = b
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	// Load server_config.json (creates with defaults if missing)
	serverCfg, err := config.Load(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}

	if *token != "" {
		t, err := server.NewToken(serverCfg.JWTSecret, *token, *tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(t)
		return nil
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	layout, err := records.LoadLayout(filepath.Join(*dataDir, "layout.yaml"))
	if err != nil {
		return err
	}
	store := jsonldb.Open(filepath.Join(*dataDir, "db"))
	if err := layout.Ensure(store); err != nil {
		return fmt.Errorf("failed to initialize tables: %w", err)
	}
	if err := store.Watch(ctx, func(table string) {
		slog.InfoContext(ctx, "Table reloaded from disk", "table", table)
	}); err != nil {
		return fmt.Errorf("failed to watch tables: %w", err)
	}

	var repo *history.Repo
	if *useGit {
		if repo, err = history.Open(*dataDir, "solardb", "solardb@localhost"); err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		// Record tables created on first start.
		if err := repo.Commit(ctx, history.Author{}, "Initialize tables", tableFiles(*dataDir, store)...); err != nil {
			return fmt.Errorf("failed to commit tables: %w", err)
		}
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	buildVersion, _, _, _ := getBuildInfo()
	svc := &handlers.Services{
		Store:   store,
		History: repo,
		Config:  serverCfg,
		Version: buildVersion,
	}
	limits := ratelimit.NewConfig(serverCfg.RateLimits.ReadRatePerMin, serverCfg.RateLimits.WriteRatePerMin)
	defer limits.Close()
	cfg := &server.Config{
		MaxRequestBodyBytes: serverCfg.Quotas.MaxRequestBodyBytes,
		Limits:              limits,
		JWTSecret:           serverCfg.JWTSecret,
		RequireAuth:         *requireAuth,
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion, "tables", len(store.Tables()), "git", *useGit, "auth", *requireAuth)
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// tableFiles returns the table files of store relative to root.
func tableFiles(root string, store *jsonldb.Store) []string {
	var out []string
	for _, f := range store.Files() {
		if rel, err := filepath.Rel(root, filepath.Join(store.Dir(), f)); err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	return out
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("solardb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
