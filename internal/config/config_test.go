package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
workspace_root: /tmp/ws
memory_root: /tmp/mem
provider:
  name: anthropic
  api_key: sk-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IterationCap != defaultIterationCap {
		t.Fatalf("expected default iteration cap, got %d", cfg.IterationCap)
	}
	if cfg.DefaultModel != defaultModel {
		t.Fatalf("expected default model, got %q", cfg.DefaultModel)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("POCKETRB_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
workspace_root: /tmp/ws
memory_root: /tmp/mem
provider:
  name: openai
  api_key: ${POCKETRB_TEST_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Fatalf("expected env-expanded api key, got %q", cfg.Provider.APIKey)
	}
}

func TestLoadRejectsMissingWorkspaceRoot(t *testing.T) {
	path := writeConfig(t, `
memory_root: /tmp/mem
provider:
  name: anthropic
  api_key: sk-test
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing workspace_root")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
workspace_root: /tmp/ws
memory_root: /tmp/mem
provider:
  name: unknown
  api_key: sk-test
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadBedrockDoesNotRequireAPIKey(t *testing.T) {
	path := writeConfig(t, `
workspace_root: /tmp/ws
memory_root: /tmp/mem
provider:
  name: bedrock
  region: us-east-1
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadRejectsCronJobDeliverWithoutChannel(t *testing.T) {
	path := writeConfig(t, `
workspace_root: /tmp/ws
memory_root: /tmp/mem
provider:
  name: anthropic
  api_key: sk-test
cron_jobs:
  - name: heartbeat
    enabled: true
    schedule:
      kind: every
      every_ms: 60000
    payload:
      message: ping
      deliver: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for deliver without channel/chat_id")
	}
}
