package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoad_DevelopmentDefaultsAllowWeakSecrets(t *testing.T) {
	clearEnv(t, "ENVIRONMENT", "SECRET_KEY", "IMAGE_SIGNING_KEY", "CSRF_SECRET_KEY", "NETWORK_PEPPER")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.IsDevelopment() {
		t.Fatalf("expected development default")
	}
	if c.DualControlThreshold != 500000 {
		t.Fatalf("expected default dual control threshold of 5000.00 in cents, got %d", c.DualControlThreshold)
	}
}

func TestLoad_ProductionRejectsShortSecret(t *testing.T) {
	clearEnv(t, "SECRET_KEY", "IMAGE_SIGNING_KEY", "CSRF_SECRET_KEY", "NETWORK_PEPPER")
	os.Setenv("ENVIRONMENT", "production")
	os.Setenv("SECRET_KEY", "short")
	os.Setenv("IMAGE_SIGNING_KEY", "01234567890123456789012345678901")
	os.Setenv("CSRF_SECRET_KEY", "01234567890123456789012345678901")
	os.Setenv("NETWORK_PEPPER", "01234567890123456789012345678901")
	t.Cleanup(func() { os.Unsetenv("ENVIRONMENT") })

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for short SECRET_KEY in production")
	}
}

func TestLoad_ProductionRejectsPlaceholder(t *testing.T) {
	clearEnv(t, "SECRET_KEY", "IMAGE_SIGNING_KEY", "CSRF_SECRET_KEY", "NETWORK_PEPPER")
	os.Setenv("ENVIRONMENT", "production")
	os.Setenv("SECRET_KEY", "changeme")
	os.Setenv("IMAGE_SIGNING_KEY", "01234567890123456789012345678901")
	os.Setenv("CSRF_SECRET_KEY", "01234567890123456789012345678901")
	os.Setenv("NETWORK_PEPPER", "01234567890123456789012345678901")
	t.Cleanup(func() { os.Unsetenv("ENVIRONMENT") })

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for placeholder SECRET_KEY in production")
	}
}

func TestLoad_ProductionAcceptsStrongSecrets(t *testing.T) {
	clearEnv(t, "SECRET_KEY", "IMAGE_SIGNING_KEY", "CSRF_SECRET_KEY", "NETWORK_PEPPER")
	os.Setenv("ENVIRONMENT", "production")
	os.Setenv("SECRET_KEY", "a-genuinely-long-random-secret-key-value")
	os.Setenv("IMAGE_SIGNING_KEY", "another-genuinely-long-random-secret-key")
	os.Setenv("CSRF_SECRET_KEY", "yet-another-genuinely-long-random-secret")
	os.Setenv("NETWORK_PEPPER", "a-fourth-genuinely-long-random-secret-ok")
	t.Cleanup(func() { os.Unsetenv("ENVIRONMENT") })

	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
