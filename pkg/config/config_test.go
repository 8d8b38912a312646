package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/finroute/pkg/responder"
)

func TestConfigIgnoresFileAPIKeys(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	writeConfigFile(t, home, "config.yaml", "api_keys:\n  anthropic: file-ant\ndb_path: /tmp/finroute.db\nlanguage: en\n")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "" {
		t.Fatalf("expected file API keys to be ignored")
	}
	if cfg.DBPath != "/tmp/finroute.db" || cfg.Language != "en" {
		t.Fatalf("unexpected file values: db=%q lang=%q", cfg.DBPath, cfg.Language)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
}

func TestConfigEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	writeConfigFile(t, home, "config.yaml", "db_path: /tmp/file.db\nlanguage: en\n")
	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("FINROUTE_DB", "/tmp/env.db")
	t.Setenv("FINROUTE_LANGUAGE", "fr")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "env-ant" || !cfg.HasAdapter("anthropic") {
		t.Fatalf("expected env API key to be used")
	}
	if cfg.HasAdapter("openai") {
		t.Fatalf("openai should not be configured")
	}
	if cfg.DBPath != "/tmp/env.db" || cfg.Language != "fr" {
		t.Fatalf("env should win: db=%q lang=%q", cfg.DBPath, cfg.Language)
	}
}

func TestConfigUsesDefaultResponders(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Orchestration == nil || len(cfg.Orchestration.Responders) != 6 {
		t.Fatalf("expected built-in responders, got %+v", cfg.Orchestration)
	}
	if errs := cfg.Orchestration.Validate(); len(errs) != 0 {
		t.Fatalf("default config should validate: %v", errs)
	}
}

func TestConfigResponderFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	writeConfigFile(t, home, "responders.yaml", `
responders:
  - id: TaxAgent
    kind: tax
    priority: 10
    jurisdictions: [CA]
  - id: RemoteAudit
    kind: audit
    endpoint: http://audit.internal:9000
    active: false
intents:
  - tag: tax
    keywords: [tax]
    responder: TaxAgent
default_responder: TaxAgent
gate:
  failure_threshold: 3
  recovery_timeout: 30s
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	orch := cfg.Orchestration
	if orch.Gate.FailureThreshold != 3 || orch.Gate.RecoveryTimeout != 30*time.Second {
		t.Fatalf("unexpected gate config: %+v", orch.Gate)
	}
	if orch.Collaboration.MaxParallel != 4 {
		t.Fatalf("expected default max_parallel, got %d", orch.Collaboration.MaxParallel)
	}

	descs := orch.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descs))
	}
	if !descs[0].Active || !descs[0].IsLocal || descs[0].StaticPriority != 10 || descs[0].Kind != responder.KindTax {
		t.Fatalf("unexpected tax descriptor: %+v", descs[0])
	}
	if descs[1].Active || descs[1].IsLocal || descs[1].StaticPriority != 5 {
		t.Fatalf("unexpected remote descriptor: %+v", descs[1])
	}
}

func TestConfigExplicitMissingResponderFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearEnv(t)

	if _, err := LoadWithResponderFile(filepath.Join(home, "missing.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing responders file")
	}
}

func TestValidateReportsProblems(t *testing.T) {
	cfg, err := ParseOrchestrationConfig([]byte(`
responders:
  - id: A
    kind: astrology
  - id: A
intents:
  - tag: tax
    responder: Ghost
default_responder: Nobody
synthesizer: Missing
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var joined []string
	for _, e := range cfg.Validate() {
		joined = append(joined, e.Error())
	}
	all := strings.Join(joined, "\n")
	for _, want := range []string{"unknown kind", "duplicate id", "no keywords", "unknown responder", "default_responder", "synthesizer"} {
		if !strings.Contains(all, want) {
			t.Errorf("expected %q in validation errors:\n%s", want, all)
		}
	}
}

func writeConfigFile(t *testing.T, home, name, content string) {
	t.Helper()
	configDir := filepath.Join(home, ".finroute")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, name), []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "DEEPSEEK_API_KEY",
		"DEEPSEEK_BASE_URL", "FINROUTE_DB", "FINROUTE_LANGUAGE", "FINROUTE_LISTEN_ADDR"} {
		t.Setenv(key, "")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
