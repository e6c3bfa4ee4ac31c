package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/tgrunner/admin"
	"github.com/hrygo/tgrunner/auditlog"
	"github.com/hrygo/tgrunner/engine"
	"github.com/hrygo/tgrunner/examples/echobot"
	"github.com/hrygo/tgrunner/filter"
	"github.com/hrygo/tgrunner/internal/profile"
	"github.com/hrygo/tgrunner/internal/version"
	"github.com/hrygo/tgrunner/telegram"
)

var rootCmd = &cobra.Command{
	Use:   "tgrunner",
	Short: `A long-poll Telegram bot runtime: one engine.Session per chat, a filterable update gate, and an admin HTTP surface.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as a
		// systemd service, which supplies environment variables itself).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	viper.SetDefault("mode", "demo")

	rootCmd.PersistentFlags().String("mode", "demo", `runtime mode, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory (prod mode only)")
	if err := viper.BindPFlag("mode", rootCmd.PersistentFlags().Lookup("mode")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("tgrunner")
	viper.AutomaticEnv()
}

func run() error {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	client, err := telegram.New(instanceProfile.BotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	var filterEngine *filter.Engine
	if instanceProfile.FilterExpression != "" {
		filterEngine, err = filter.Compile(instanceProfile.FilterExpression)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}

	metrics := engine.NewMetrics(engine.DefaultMetricsConfig())

	var auditStore auditlog.Store
	if instanceProfile.AuditDSN != "" {
		auditStore, err = auditlog.Open(instanceProfile.AuditDriver, instanceProfile.AuditDSN)
		if err != nil {
			return fmt.Errorf("auditlog: %w", err)
		}
		defer auditStore.Close()
	}

	rt := engine.NewRuntime(client, echobot.Lifecycle{}, echobot.Factory, engine.Config{
		PollTimeout:         time.Duration(instanceProfile.PollTimeout) * time.Second,
		PollLimit:           instanceProfile.PollLimit,
		AllowedUpdates:      instanceProfile.AllowedUpdateKinds(),
		DispatchConcurrency: instanceProfile.DispatchConcurrency,
		InactivityTimeout:   time.Duration(instanceProfile.InactivityTimeoutSec) * time.Second,
		Metrics:             metrics,
		Filter:              filterEngine,
		Audit:               auditStore,
	})

	adminServer, err := admin.New(admin.Config{
		Runtime:    rt,
		Audit:      auditStore,
		Registry:   metrics.Registry(),
		AuthSecret: instanceProfile.AdminAuthSecret,
	})
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
	defer stop()

	go func() {
		if err := adminServer.Start(instanceProfile.AdminListenAddr); err != nil {
			slog.Info("admin: server stopped", "error", err)
		}
	}()

	printGreetings(instanceProfile)

	runErr := rt.Run(ctx)

	if err := adminServer.Shutdown(5 * time.Second); err != nil {
		slog.Warn("admin: shutdown error", "error", err)
	}

	return runErr
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("tgrunner %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	if p.IsDev() && p.Data != "" {
		fmt.Fprintf(os.Stderr, "Data directory: %s\n", p.Data)
	}
	fmt.Printf("Admin surface listening on %s\n", p.AdminListenAddr)
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("tgrunner: fatal", "error", err)
		os.Exit(1)
	}
}
