package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolprint/superego/internal/audit"
	"github.com/toolprint/superego/internal/audit/sqlitesink"
	"github.com/toolprint/superego/internal/breaker"
	"github.com/toolprint/superego/internal/config"
	"github.com/toolprint/superego/internal/decision"
	"github.com/toolprint/superego/internal/health"
	"github.com/toolprint/superego/internal/rule"
	"github.com/toolprint/superego/internal/sampler"
	"github.com/toolprint/superego/internal/sanitize"
	"github.com/toolprint/superego/internal/session"
	"github.com/toolprint/superego/internal/transport/httpgw"
	"github.com/toolprint/superego/internal/transport/stdio"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "superego",
		Short: "Interception gateway between AI coding agents and the tools they invoke",
		Long:  "Superego — Observe. Evaluate. Enforce.\nA policy gateway that intercepts tool calls from AI coding agents before they execute.",
	}

	var configFile string

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the decision engine and its configured transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configFile)
		},
	}
	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: superego.yaml)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config and rule file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Compile a rule document and report errors without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("superego %s\n", version)
			fmt.Printf("  Commit: %s\n", commit)
			fmt.Printf("  Built:  %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(startCmd, initCmd, validateCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ─── start ───

func runStart(configFile string) error {
	cfgLoader := config.NewLoader()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfgLoader.Load(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := cfgLoader.Get()

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	// Policy Store + hot-reloading Rule Compiler.
	store := rule.NewStore()
	compiler := rule.NewCompiler()
	watcher := rule.NewWatcher(cfg.Rules.Path, compiler, store, logger, func(err error) {
		logger.Error("rule reload failed", "error", err)
	})
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to load rules from %s: %w", cfg.Rules.Path, err)
	}
	defer watcher.Stop()

	// Circuit Breaker + AI Sampler.
	cb := breaker.New(breaker.Config{
		FailureThreshold: cfg.Sampler.FailureThreshold,
		RecoveryTimeout:  cfg.Sampler.RecoveryTimeout,
		OperationTimeout: cfg.Sampler.OperationTimeout,
	})
	scanner := sanitize.NewScanner(cfg.Sanitize, logger)
	aiSampler := sampler.New(sampler.FromEnv(), cb, scanner)

	// Audit Sink, optionally write-through to a persistent SQLite store.
	sink := audit.New(cfg.Audit.Capacity, logger)
	defer sink.Close()
	if cfg.Audit.SQLitePath != "" {
		sqlStore, err := sqlitesink.Open(cfg.Audit.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer func() { _ = sqlStore.Close() }()
		sink.SetPersistFunc(func(entry audit.Entry) {
			if err := sqlStore.Write(entry); err != nil {
				logger.Error("failed to persist audit entry", "error", err, "entry_id", entry.ID)
			}
		})
	}

	tracker := session.NewTracker()
	go pruneSessionsPeriodically(tracker)

	engine := decision.New(store, aiSampler, sink, tracker, logger)

	// Health Monitor, wired to the three components whose degradation is
	// externally observable.
	monitor := health.New(cfg.Health.PollInterval, logger)
	monitor.RegisterCheck("policy_store", health.PolicyStoreCheck(store))
	monitor.RegisterCheck("circuit_breaker", health.CircuitBreakerCheck(func() string { return cb.State().String() }))
	monitor.RegisterCheck("audit_sink", health.AuditSinkCheck(sink))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)
	defer monitor.Stop()

	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		mux := http.NewServeMux()
		httpgw.New(engine, monitor, logger).RegisterRoutes(mux)
		httpgw.RegisterEventStream(mux, "/v1/events", sink, 50, logger)
		httpServer = &http.Server{
			Addr:         cfg.Server.HTTPAddr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		}
	}

	fmt.Println()
	fmt.Println("  superego " + version)
	fmt.Println("  Observe. Evaluate. Enforce.")
	fmt.Println()
	fmt.Printf("  → Rules:  %s\n", cfg.Rules.Path)
	if httpServer != nil {
		fmt.Printf("  → HTTP:   http://localhost%s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Server.Stdio {
		fmt.Println("  → Stdio:  reading hook requests from stdin")
	}
	if cfg.Audit.SQLitePath != "" {
		fmt.Printf("  → Audit:  %s\n", cfg.Audit.SQLitePath)
	}
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		if httpServer != nil {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutCancel()
			_ = httpServer.Shutdown(shutCtx)
		}
	}()

	if httpServer != nil && cfg.Server.Stdio {
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		go func() {
			tr := stdio.New(engine, os.Stdin, os.Stdout, logger)
			errCh <- tr.Run(ctx)
		}()
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	if cfg.Server.Stdio {
		return stdio.New(engine, os.Stdin, os.Stdout, logger).Run(ctx)
	}

	if httpServer != nil {
		logger.Info("starting HTTP transport", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}

	return fmt.Errorf("neither server.http_addr nor server.stdio is configured: nothing to run")
}

func pruneSessionsPeriodically(tracker *session.Tracker) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		tracker.Prune(30 * time.Minute)
	}
}

// ─── init ───

func runInit() error {
	configPath := "superego.yaml"
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("  ⚠ %s already exists (skipping)\n", configPath)
	} else {
		if err := config.GenerateDefault(configPath); err != nil {
			return err
		}
		fmt.Printf("  ✓ Generated %s\n", configPath)
	}

	rulesDir := "config"
	if err := os.MkdirAll(rulesDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s/: %w", rulesDir, err)
	}
	rulesPath := filepath.Join(rulesDir, "rules.yaml")
	if _, err := os.Stat(rulesPath); err == nil {
		fmt.Printf("  ⚠ %s already exists (skipping)\n", rulesPath)
	} else {
		if err := os.WriteFile(rulesPath, []byte(starterRulesTemplate), 0644); err != nil {
			return err
		}
		fmt.Printf("  ✓ Generated %s\n", rulesPath)
	}

	fmt.Println()
	fmt.Println("  Next steps:")
	fmt.Println("    superego validate config/rules.yaml   # check your rules compile")
	fmt.Println("    superego start                        # start the gateway")
	return nil
}

const starterRulesTemplate = `# config/rules.yaml -- generated by "superego init"
rules:
  - id: deny-recursive-force-delete
    priority: 0
    conditions:
      tool_name: bash
      parameters.command: {glob: "**rm -rf**"}
    action: deny
    reason: "recursive force-delete is blocked by policy"

  - id: sample-env-file-reads
    priority: 10
    conditions:
      tool_name: read
      parameters.path: {glob: "**.env**"}
    action: sample
    sampling_guidance: "does this read expose credentials to the agent unnecessarily?"
`

// ─── validate ───

func runValidate(rulesFile string) error {
	data, err := os.ReadFile(rulesFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", rulesFile, err)
	}

	compiler := rule.NewCompiler()
	snap, err := compiler.Compile(data, 1)
	if err != nil {
		fmt.Printf("✗ %s is invalid:\n", rulesFile)
		for _, e := range flattenJoined(err) {
			fmt.Printf("  - %s\n", e)
		}
		return err
	}

	fmt.Printf("✓ %s is valid: %d rule(s)\n", rulesFile, len(snap.Rules))
	for _, r := range snap.Rules {
		fmt.Printf("  - %s (priority %d, action %s)\n", r.ID, r.Priority, r.Action)
	}
	return nil
}

// flattenJoined splits an errors.Join tree back into individual messages
// for line-by-line reporting, since Compile returns every rule's error
// joined together rather than stopping at the first.
func flattenJoined(err error) []string {
	type unwrapper interface{ Unwrap() []error }
	if u, ok := err.(unwrapper); ok {
		var out []string
		for _, e := range u.Unwrap() {
			out = append(out, flattenJoined(e)...)
		}
		return out
	}
	return []string{err.Error()}
}

// ─── shared helpers ───

func findConfigFile() string {
	candidates := []string{
		"superego.yaml",
		"superego.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "superego", "config.yaml"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
