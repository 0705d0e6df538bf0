// Package main provides the shopfloor binary entry point.
// Shopfloor is the cutting-progress server for the workshop: it stores jobs,
// cutlists, and sheet state in NATS JetStream and serves the terminal API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/shopfloor/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "shopfloor"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		natsURL    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "shopfloor",
		Short: "Shop-floor cutting progress server",
		Long: `Shopfloor tracks sheet-cutting progress across workshop terminals.

It provides:
- Job, cutlist, and material storage in NATS JetStream
- Per-sheet cut/skip status with recut batches
- A REST API plus a websocket feed of change events

Terminals connect over the shop LAN; state lives on this server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, addr, natsURL, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "External NATS URL (overrides config, disables embedded server)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	// Terminal-side commands
	cmd.AddCommand(terminalCmds()...)

	return cmd
}

func run(configPath, addr, natsURL, logLevel string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flag overrides
	cfg.Merge(&config.Config{
		Server: config.ServerConfig{Addr: addr},
		NATS:   config.NATSConfig{URL: natsURL},
		Log:    config.LogConfig{Level: logLevel},
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}

	logger.Info("Shopfloor ready",
		"version", Version,
		"addr", cfg.Server.Addr)

	// Block until shutdown signal
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()
	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	app.Shutdown(cfg.Server.ShutdownTimeout)
	logger.Info("Shopfloor shutdown complete")
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.NewLoader(slog.Default()).Load()
}
