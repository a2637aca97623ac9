package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/passport/internal/passport/app"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ADMINCTL_PROFILE", "ADMINCTL_BASE_URL", "ADMINCTL_LOCALE", "ADMINCTL_CACHE",
		"ADMINCTL_TIMEOUT", "ADMINCTL_LOG_FILE", "ADMINCTL_LOG_LEVEL", "ADMINCTL_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	clearEnv(t)

	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(
		"base_url: http://from-profile\nlocale: fr\ntimeout: 2s\ncache: /tmp/profile.json\n"), 0o600))

	t.Setenv("ADMINCTL_LOCALE", "de")

	cfg, err := resolveConfig(Flags{Profile: profile, BaseURL: "http://from-flag"})
	require.NoError(t, err)
	require.Equal(t, "http://from-flag", cfg.BaseURL, "flag beats everything")
	require.Equal(t, "de", cfg.Locale, "env beats profile")
	require.Equal(t, 2*time.Second, cfg.Timeout, "profile beats default")
	require.Equal(t, "/tmp/profile.json", cfg.Cache)
	require.Equal(t, "warn", cfg.LogLevel, "default")
}

func TestResolveConfigErrors(t *testing.T) {
	clearEnv(t)

	_, err := resolveConfig(Flags{Timeout: "soon"})
	require.Error(t, err)

	_, err = resolveConfig(Flags{Profile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func newBackend(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	application, err := app.New(app.Config{
		Issuer:               "passport-test",
		DatabaseFile:         filepath.Join(dir, "passport.db"),
		KeyFile:              filepath.Join(dir, "signing.pem"),
		PepperFile:           filepath.Join(dir, "pepper"),
		AdminUsername:        "admin",
		AdminPassword:        "hunter2",
		AdminScopes:          []string{"admin:read", "admin:write"},
		AccessTTL:            time.Minute,
		RefreshTTL:           time.Hour,
		LogLevel:             "error",
		LogFile:              filepath.Join(dir, "passport.log"),
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = application.Shutdown()
	})
	return srv.URL
}

func TestSession(t *testing.T) {
	for _, cache := range []string{"credentials.json", "credentials.db"} {
		t.Run(cache, func(t *testing.T) {
			clearEnv(t)
			url := newBackend(t)
			ctx := context.Background()

			base := []string{"-url", url, "-cache", filepath.Join(t.TempDir(), cache), "-log-level", "error"}
			exec := func(stdin string, args ...string) (string, error) {
				var stdout, stderr bytes.Buffer
				err := run(ctx, append(append([]string{}, base...), args...), strings.NewReader(stdin), &stdout, &stderr)
				return stdout.String(), err
			}

			_, err := exec("", "whoami")
			require.Error(t, err, "no session yet")

			out, err := exec("hunter2\n", "login", "admin")
			require.NoError(t, err)
			require.Contains(t, out, "logged in as admin")

			out, err = exec("", "whoami")
			require.NoError(t, err, "session survives between runs")
			require.Contains(t, out, "admin")

			out, err = exec("", "get", "/admin/profile", "/admin/system/settings")
			require.NoError(t, err)
			require.Contains(t, out, "# /admin/profile")
			require.Contains(t, out, `"issuer":"passport-test"`)

			_, err = exec("", "logout")
			require.NoError(t, err)

			_, err = exec("", "whoami")
			require.Error(t, err)
		})
	}
}

func TestUsage(t *testing.T) {
	clearEnv(t)

	var stderr bytes.Buffer
	err := run(context.Background(), nil, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	require.Error(t, err)
	require.Contains(t, stderr.String(), "usage: adminctl")

	err = run(context.Background(), []string{"-cache", filepath.Join(t.TempDir(), "c.json"), "frobnicate"},
		strings.NewReader(""), &bytes.Buffer{}, &stderr)
	require.ErrorContains(t, err, "unknown command")
}
