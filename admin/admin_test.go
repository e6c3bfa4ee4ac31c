package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hrygo/tgrunner/engine"
	"github.com/stretchr/testify/assert"
)

type fakeSnapshotter struct {
	sessions []engine.SessionInfo
}

func (f *fakeSnapshotter) Snapshot() []engine.SessionInfo { return f.sessions }

func TestServer_HealthzIsAlwaysOpen(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{}})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SessionsOpenWhenNoAuthSecretConfigured(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{sessions: []engine.SessionInfo{{ChatID: "42"}}}})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "42")
}

func TestServer_SessionsRejectsMissingTokenWhenAuthConfigured(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{}, AuthSecret: "s3cr3t"})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_SessionsAcceptsValidIssuedToken(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{}, AuthSecret: "s3cr3t"})
	assert.NoError(t, err)

	token, err := srv.IssueToken(time.Minute)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_SessionsRejectsExpiredToken(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{}, AuthSecret: "s3cr3t"})
	assert.NoError(t, err)

	token, err := srv.IssueToken(-time.Minute)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AuditRouteAbsentWithoutAuditStore(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{}})
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_IssueTokenFailsWithoutAuthSecret(t *testing.T) {
	srv, err := New(Config{Runtime: &fakeSnapshotter{}})
	assert.NoError(t, err)

	_, err = srv.IssueToken(time.Minute)
	assert.Error(t, err)
}
