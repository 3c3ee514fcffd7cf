package config

import (
	"testing"
	"time"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	cfg := LoadAPIConfig()
	if cfg.Addr != ":4000" {
		t.Fatalf("unexpected default addr %q", cfg.Addr)
	}
	if cfg.UsesMemoryStore() {
		t.Fatalf("expected postgres store by default")
	}
	if cfg.AllowAdminSignup {
		t.Fatalf("admin signup must be disabled by default")
	}
}

func TestLoadAPIConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ALLOW_ADMIN_SIGNUP", "true")
	t.Setenv("STREAM_HEARTBEAT", "3s")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "5")

	cfg := LoadAPIConfig()
	if !cfg.UsesMemoryStore() {
		t.Fatalf("expected memory store")
	}
	if !cfg.AllowAdminSignup {
		t.Fatalf("expected admin signup enabled")
	}
	if cfg.StreamHeartbeat != 3*time.Second {
		t.Fatalf("unexpected heartbeat %s", cfg.StreamHeartbeat)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl %s", cfg.AccessTokenTTL)
	}
}

func TestGettersFallBackOnInvalidValues(t *testing.T) {
	t.Setenv("TR_TEST_INT", "nope")
	t.Setenv("TR_TEST_BOOL", "maybe")
	t.Setenv("TR_TEST_DURATION", "soon")

	if got := GetInt("TR_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback int, got %d", got)
	}
	if got := GetBool("TR_TEST_BOOL", true); !got {
		t.Fatalf("expected fallback bool")
	}
	if got := GetDuration("TR_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("expected fallback duration, got %s", got)
	}
}
