package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does not
// leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "DATABASE_DRIVER", "DATABASE_URL", "JWT_SECRET", "JWT_EXPIRATION",
		"SERVER_PORT", "MAX_LOGIN_ATTEMPTS", "LOCKOUT_DURATION", "OTP_EXPIRATION",
		"AUDIT_FAILURE_MODE", "SEED_ADMIN_PASSWORD", "GUARD_CONFIG", "TRUSTED_PROXIES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, AuditStrict, cfg.AuditFailureMode)
	assert.Equal(t, []string{"/api/admin"}, cfg.AdminPathPrefixes)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LockoutDuration)
	assert.Equal(t, 15*time.Minute, cfg.OTPExpiration)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "a-long-production-secret")
	t.Setenv("SEED_ADMIN_PASSWORD", "first-login-password")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.5")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("AUDIT_FAILURE_MODE", "Lenient")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DURATION", "1h")
	t.Setenv("JWT_EXPIRATION", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, AuditLenient, cfg.AuditFailureMode)
	assert.Equal(t, 3, cfg.MaxLoginAttempts)
	assert.Equal(t, time.Hour, cfg.LockoutDuration)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.5/32"),
	}, cfg.TrustedProxies)
	// Unparseable values fall back to the default.
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"audit mode", "AUDIT_FAILURE_MODE", "sometimes"},
		{"driver", "DATABASE_DRIVER", "oracle"},
		{"attempts", "MAX_LOGIN_ATTEMPTS", "0"},
		{"proxy", "TRUSTED_PROXIES", "10.0.0.0/33"},
		{"proxy address", "TRUSTED_PROXIES", "not-an-ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestProductionRejectsPlaceholderSecrets(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		password string
		ok       bool
	}{
		{"default jwt secret", "", "first-login-password", false},
		{"default admin password", "a-long-production-secret", "", false},
		{"both set", "a-long-production-secret", "first-login-password", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", "production")
			t.Setenv("JWT_SECRET", tt.secret)
			t.Setenv("SEED_ADMIN_PASSWORD", tt.password)
			_, err := Load()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	t.Run("placeholders fine outside production", func(t *testing.T) {
		clearEnv(t)
		_, err := Load()
		assert.NoError(t, err)
	})
}

func TestGuardFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("prefixes from yaml", func(t *testing.T) {
		path := filepath.Join(dir, "guard.yaml")
		require.NoError(t, os.WriteFile(path, []byte("admin_prefixes:\n  - /api/admin\n  - /api/ops\n"), 0o600))

		clearEnv(t)
		t.Setenv("GUARD_CONFIG", path)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"/api/admin", "/api/ops"}, cfg.AdminPathPrefixes)
	})

	t.Run("empty prefixes", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("admin_prefixes: []\n"), 0o600))
		_, err := LoadGuardFile(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadGuardFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("admin_prefixes: [unclosed\n"), 0o600))
		_, err := LoadGuardFile(path)
		assert.Error(t, err)
	})
}
