package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the bot runtime.
type Profile struct {
	// Telegram Bot API
	BotToken       string
	PollTimeout    int // getUpdates long-poll timeout, seconds
	PollLimit      int // getUpdates max batch size
	AllowedUpdates string

	// engine.Dispatcher / engine.Session tuning
	DispatchConcurrency  int64
	InactivityTimeoutSec int // <= 0 disables the idle timer

	// Admin HTTP surface
	AdminListenAddr string
	AdminAuthSecret string

	// auditlog store
	AuditDriver string // "sqlite" or "postgres"
	AuditDSN    string

	// filter (optional CEL expression; empty disables the gate)
	FilterExpression string

	Mode    string
	Data    string
	Version string
}

// IsDev reports whether the runtime is in a non-production mode.
func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BotToken = getEnvOrDefault("TGRUNNER_BOT_TOKEN", "")
	p.PollTimeout = getEnvOrDefaultInt("TGRUNNER_POLL_TIMEOUT_SECONDS", 30)
	p.PollLimit = getEnvOrDefaultInt("TGRUNNER_POLL_LIMIT", 100)
	p.AllowedUpdates = getEnvOrDefault("TGRUNNER_ALLOWED_UPDATES", "")

	p.DispatchConcurrency = int64(getEnvOrDefaultInt("TGRUNNER_DISPATCH_CONCURRENCY", 32))
	p.InactivityTimeoutSec = getEnvOrDefaultInt("TGRUNNER_INACTIVITY_TIMEOUT_SECONDS", 0)

	p.AdminListenAddr = getEnvOrDefault("TGRUNNER_ADMIN_ADDR", ":8765")
	p.AdminAuthSecret = getEnvOrDefault("TGRUNNER_ADMIN_SECRET", "")

	p.AuditDriver = getEnvOrDefault("TGRUNNER_AUDIT_DRIVER", "sqlite")
	p.AuditDSN = getEnvOrDefault("TGRUNNER_AUDIT_DSN", "")

	p.FilterExpression = getEnvOrDefault("TGRUNNER_FILTER_EXPR", "")
}

// AllowedUpdateKinds splits the comma-separated AllowedUpdates field into the
// slice engine.Config expects, nil when unset (server default applies).
func (p *Profile) AllowedUpdateKinds() []string {
	if p.AllowedUpdates == "" {
		return nil
	}
	parts := strings.Split(p.AllowedUpdates, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and fills in mode-dependent defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.BotToken == "" {
		return errors.New("TGRUNNER_BOT_TOKEN is required")
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "tgrunner")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/tgrunner"
		}
	}

	if p.Data != "" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
	}

	if p.AuditDriver == "sqlite" && p.AuditDSN == "" {
		dbFile := fmt.Sprintf("tgrunner_%s.db", p.Mode)
		if p.Data != "" {
			p.AuditDSN = filepath.Join(p.Data, dbFile)
		} else {
			p.AuditDSN = "file::memory:?cache=shared"
		}
	}

	if p.DispatchConcurrency <= 0 {
		p.DispatchConcurrency = 32
	}

	return nil
}
