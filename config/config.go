package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AuditFailureMode decides what a failed audit write does to the request
// that triggered it.
type AuditFailureMode string

const (
	// AuditStrict fails the request when the audit record cannot be written.
	AuditStrict AuditFailureMode = "strict"
	// AuditLenient logs and counts the failure, then lets the request succeed.
	AuditLenient AuditFailureMode = "lenient"
)

// Placeholder secrets, accepted outside production only.
const (
	defaultJWTSecret         = "your-super-secret-key-change-in-production"
	defaultSeedAdminPassword = "admin"
)

type Config struct {
	Env               string
	DatabaseDriver    string
	DatabaseURL       string
	JWTSecret         string
	JWTExpiration     time.Duration
	ServerPort        string
	MaxLoginAttempts  int
	LockoutDuration   time.Duration
	OTPExpiration     time.Duration
	AuditFailureMode  AuditFailureMode
	AdminPathPrefixes []string
	SeedAdminPassword string
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies    []netip.Prefix
}

// GuardFile is the YAML layout of the optional GUARD_CONFIG file.
type GuardFile struct {
	AdminPrefixes []string `yaml:"admin_prefixes"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	// Missing .env is fine, real environment wins.
	_ = godotenv.Load()

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		DatabaseDriver:    getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:       getEnv("DATABASE_URL", "postgresql://postgres@localhost:5432/workhub"),
		JWTSecret:         getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiration:     getDuration("JWT_EXPIRATION", 24*time.Hour),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		MaxLoginAttempts:  getInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:   getDuration("LOCKOUT_DURATION", 15*time.Minute),
		OTPExpiration:     getDuration("OTP_EXPIRATION", 15*time.Minute),
		AuditFailureMode:  AuditFailureMode(strings.ToLower(getEnv("AUDIT_FAILURE_MODE", string(AuditStrict)))),
		AdminPathPrefixes: []string{"/api/admin"},
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", defaultSeedAdminPassword),
	}

	proxies, err := parseProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies

	if path := os.Getenv("GUARD_CONFIG"); path != "" {
		prefixes, err := LoadGuardFile(path)
		if err != nil {
			return nil, err
		}
		cfg.AdminPathPrefixes = prefixes
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGuardFile reads admin-only path prefixes from a YAML file.
func LoadGuardFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guard config: %w", err)
	}
	var gf GuardFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse guard config: %w", err)
	}
	if len(gf.AdminPrefixes) == 0 {
		return nil, fmt.Errorf("guard config %s: admin_prefixes is empty", path)
	}
	return gf.AdminPrefixes, nil
}

func (c *Config) Validate() error {
	switch c.AuditFailureMode {
	case AuditStrict, AuditLenient:
	default:
		return fmt.Errorf("invalid AUDIT_FAILURE_MODE %q", c.AuditFailureMode)
	}
	switch c.DatabaseDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.SeedAdminPassword == defaultSeedAdminPassword {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be changed in production")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parseProxies reads a comma-separated list of CIDR ranges or single
// addresses.
func parseProxies(value string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", item, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", item, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
