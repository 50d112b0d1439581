// Package config loads server configuration from environment variables and
// fails startup closed when secrets look weak or unset outside development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all server configuration, loaded from the environment.
type Config struct {
	Environment string
	DatabaseURL string
	RedisURL    string

	SecretKey        string // access-token signing
	ImageSigningKey  string // image-URL bearer signing (dedicated key)
	CSRFSecretKey    string

	NetworkPepper            string
	NetworkPepperVersion     int
	NetworkPepperPrior       string
	NetworkPepperPriorVersion int

	AccessTokenExpireMinutes int
	RefreshTokenExpireDays   int
	ImageSignedURLTTLSeconds int
	DualControlThreshold     int64 // cents
	DefaultSLAHours          int
	FraudPrivacyThreshold    int

	TrustedProxyIPs []string
	CORSOrigins     []string

	CookieSecure   bool
	CookieSameSite string
	CookieDomain   string
}

var placeholders = map[string]bool{
	"changeme": true, "change-me": true, "secret": true, "password": true,
	"test": true, "testing": true, "dev": true, "development": true,
	"insecure": true, "default": true, "": true,
}

// Load reads configuration from the environment and validates it.
// In any non-development environment it aborts (returns an error) when a
// secret is shorter than 32 characters or matches a known placeholder.
func Load() (*Config, error) {
	c := &Config{
		Environment:     getenv("ENVIRONMENT", "development"),
		DatabaseURL:     getenv("DATABASE_URL", "postgres://checkops@localhost:5432/checkops?sslmode=disable"),
		RedisURL:        os.Getenv("REDIS_URL"),
		SecretKey:       os.Getenv("SECRET_KEY"),
		ImageSigningKey: os.Getenv("IMAGE_SIGNING_KEY"),
		CSRFSecretKey:   os.Getenv("CSRF_SECRET_KEY"),

		NetworkPepper:       os.Getenv("NETWORK_PEPPER"),
		NetworkPepperPrior:  os.Getenv("NETWORK_PEPPER_PRIOR"),

		TrustedProxyIPs: splitCSV(os.Getenv("TRUSTED_PROXY_IPS")),
		CORSOrigins:     splitCSV(os.Getenv("CORS_ORIGINS")),

		CookieSecure:   getenvBool("COOKIE_SECURE", true),
		CookieSameSite: getenv("COOKIE_SAMESITE", "Lax"),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
	}

	var err error
	if c.NetworkPepperVersion, err = getenvInt("NETWORK_PEPPER_VERSION", 1); err != nil {
		return nil, err
	}
	if c.NetworkPepperPriorVersion, err = getenvInt("NETWORK_PEPPER_PRIOR_VERSION", 0); err != nil {
		return nil, err
	}
	if c.AccessTokenExpireMinutes, err = getenvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 15); err != nil {
		return nil, err
	}
	if c.RefreshTokenExpireDays, err = getenvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7); err != nil {
		return nil, err
	}
	if c.ImageSignedURLTTLSeconds, err = getenvInt("IMAGE_SIGNED_URL_TTL_SECONDS", 90); err != nil {
		return nil, err
	}
	dct, err := getenvInt("DUAL_CONTROL_THRESHOLD", 5000)
	if err != nil {
		return nil, err
	}
	c.DualControlThreshold = int64(dct) * 100
	if c.DefaultSLAHours, err = getenvInt("DEFAULT_SLA_HOURS", 4); err != nil {
		return nil, err
	}
	if c.FraudPrivacyThreshold, err = getenvInt("FRAUD_PRIVACY_THRESHOLD", 3); err != nil {
		return nil, err
	}

	if err := c.validateSecrets(); err != nil {
		return nil, err
	}

	return c, nil
}

// IsDevelopment reports whether weak secrets and permissive tenant-isolation
// mode are tolerated.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == "test"
}

func (c *Config) validateSecrets() error {
	if c.IsDevelopment() {
		return nil
	}
	secrets := map[string]string{
		"SECRET_KEY":         c.SecretKey,
		"IMAGE_SIGNING_KEY":  c.ImageSigningKey,
		"CSRF_SECRET_KEY":    c.CSRFSecretKey,
		"NETWORK_PEPPER":     c.NetworkPepper,
	}
	for name, v := range secrets {
		if len(v) < 32 {
			return fmt.Errorf("config: %s must be at least 32 characters in %s", name, c.Environment)
		}
		if placeholders[strings.ToLower(v)] {
			return fmt.Errorf("config: %s must not be a placeholder value in %s", name, c.Environment)
		}
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return n, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
