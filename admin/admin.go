// Package admin exposes a small read-only HTTP surface over the running
// engine.Runtime: liveness, Prometheus metrics, live session snapshots, and
// the audit log. It issues no commands that mutate session state, so
// engine.Session/engine.SessionRegistry's invariants are untouched by its
// existence.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/hrygo/tgrunner/auditlog"
	"github.com/hrygo/tgrunner/engine"
)

// SessionSnapshotter is the subset of engine.Runtime the admin surface
// depends on, narrowed so tests can substitute a fake runtime.
type SessionSnapshotter interface {
	Snapshot() []engine.SessionInfo
}

// Server wires an echo instance over a Runtime, an optional audit Store, and
// an optional bearer-auth secret.
type Server struct {
	echo      *echo.Echo
	runtime   SessionSnapshotter
	audit     auditlog.Store
	jwtSecret []byte
}

// Config configures a Server. AuthSecret, if non-empty, is hashed with
// bcrypt at rest and the hash is the key bearer tokens are validated
// against, so only tokens minted by this Server's IssueToken are accepted;
// empty disables auth (suitable for a loopback-only deployment).
type Config struct {
	Runtime SessionSnapshotter
	Audit   auditlog.Store // nil disables /audit
	// Registry is the Prometheus registry the running engine.Metrics
	// registered against; nil falls back to the global default registry.
	Registry   *prometheus.Registry
	AuthSecret string
}

// New builds a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	s := &Server{
		echo:    echo.New(),
		runtime: cfg.Runtime,
		audit:   cfg.Audit,
	}

	if cfg.AuthSecret != "" {
		// Hashed once and held for the process lifetime: the plaintext
		// secret is never retained, and every token this process issues or
		// verifies uses this same in-memory value as the HMAC key.
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AuthSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.jwtSecret = hash
	}

	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())

	metricsHandler := promhttp.Handler()
	if cfg.Registry != nil {
		metricsHandler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}

	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))

	guarded := s.echo.Group("", s.authMiddleware)
	guarded.GET("/sessions", s.handleSessions)
	if s.audit != nil {
		guarded.GET("/audit", s.handleAudit)
	}

	return s, nil
}

// IssueToken mints a bearer token signed with the server's in-memory
// bcrypt-hashed secret, valid for ttl, for handing to an operator out of
// band; the admin surface itself never exposes a login endpoint.
func (s *Server) IssueToken(ttl time.Duration) (string, error) {
	if s.jwtSecret == nil {
		return "", echo.NewHTTPError(http.StatusInternalServerError, "admin: no auth secret configured")
	}
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl))}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server within the given deadline.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.runtime.Snapshot())
}

func (s *Server) handleAudit(c echo.Context) error {
	limit := 50
	ids, err := s.audit.RecentUpdateIDs(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"recent_update_ids": ids})
}

// authMiddleware validates an HMAC-signed bearer token against the
// bcrypt-hashed admin secret. Disabled (always allows) when no AuthSecret was configured.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.jwtSecret == nil {
			return next(c)
		}

		auth := c.Request().Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenString := auth[len(prefix):]

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
		}

		return next(c)
	}
}
