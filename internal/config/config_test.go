package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreSQLite || cfg.StorePath != "cmdbot.db" {
		t.Fatalf("unexpected store defaults: %+v", cfg)
	}
	if cfg.ScriptTimeout != 5*time.Second || cfg.ScriptMaxLength != 10000 || cfg.ScriptOutputKB != 4 {
		t.Fatalf("unexpected script defaults: %+v", cfg)
	}
	if cfg.ReplyUnknown {
		t.Fatalf("unknown-command replies should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CMDBOT_STORE", "Memory")
	t.Setenv("CMDBOT_SCRIPT_TIMEOUT", "250ms")
	t.Setenv("CMDBOT_REPLY_UNKNOWN", "true")
	t.Setenv("CMDBOT_BOT_ID", "bot123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("expected memory store, got %q", cfg.Store)
	}
	sb := cfg.Sandbox()
	if sb.Timeout != 250*time.Millisecond || sb.MaxSourceLength != 10000 {
		t.Fatalf("unexpected sandbox config: %+v", sb)
	}
	if !cfg.ReplyUnknown || cfg.BotID != "bot123" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("CMDBOT_SCRIPT_MAX_LENGTH", "not-an-int")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidateRejectsUnknownStore(t *testing.T) {
	cfg := Config{Store: "mongo", ScriptTimeout: time.Second, ScriptMaxLength: 1, ScriptOutputKB: 1}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "unknown store") {
		t.Fatalf("expected unknown store error, got %v", err)
	}
	cfg = Config{Store: "file", ScriptTimeout: time.Second, ScriptMaxLength: 1, ScriptOutputKB: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing path error")
	}
}
