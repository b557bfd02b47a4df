package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `db_path: ~/.recall/from-config.db
llm:
  provider: openrouter/openai/gpt-4o-mini
  harvest_model: openrouter/deepseek/deepseek-v3.2
embed:
  provider: ollama/nomic-embed-text
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RECALL_DB", "~/from-env.db")
	t.Setenv("RECALL_LLM", "google/gemini-2.5-flash")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: cfgPath,
		CLILLM:     "openrouter/google/gemini-2.0-flash-001",
		CLIDBPath:  "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI {
		t.Fatalf("expected DB path source cli, got %s", resolved.DBPath.Source)
	}
	if resolved.LLMProvider.Source != SourceCLI {
		t.Fatalf("expected llm provider source cli, got %s", resolved.LLMProvider.Source)
	}
	if resolved.LLMHarvestModel.Source != SourceConfig {
		t.Fatalf("expected harvest model from config, got %s", resolved.LLMHarvestModel.Source)
	}
	if resolved.EmbedProvider.Value != "ollama/nomic-embed-text" {
		t.Fatalf("unexpected embed provider: %q", resolved.EmbedProvider.Value)
	}
}

func TestResolveConfig_MissingFileIsFine(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
		CLIDBPath:  "/tmp/cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.DBPath.Value != "/tmp/cli.db" || resolved.DBPath.Source != SourceCLI {
		t.Fatalf("unexpected db path: %+v", resolved.DBPath)
	}
}

func TestResolveConfig_ExpandsUserPaths(t *testing.T) {
	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
		CLIDBPath:  "~/data/recall.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	home, _ := os.UserHomeDir()
	if resolved.DBPath.Value != filepath.Join(home, "data", "recall.db") {
		t.Fatalf("tilde not expanded: %q", resolved.DBPath.Value)
	}
}

func TestEffectiveLLMModel_PurposeFallback(t *testing.T) {
	resolved := ResolvedConfig{
		LLMProvider:    ResolvedValue{Value: "openrouter", Source: SourceConfig},
		LLMExpandModel: ResolvedValue{Value: "", Source: SourceUnknown},
	}

	m := resolved.EffectiveLLMModel("expand", "openrouter/openai/gpt-4o-mini")
	if m.Value != "openrouter/openai/gpt-4o-mini" {
		t.Fatalf("unexpected effective model: %q", m.Value)
	}
	if m.Source != SourceConfig {
		t.Fatalf("expected source=config from provider fallback, got %s", m.Source)
	}
}

func TestEffectiveLLMModel_PurposeWins(t *testing.T) {
	resolved := ResolvedConfig{
		LLMProvider:     ResolvedValue{Value: "openrouter/openai/gpt-4o-mini", Source: SourceConfig},
		LLMHarvestModel: ResolvedValue{Value: "google/gemini-2.5-flash", Source: SourceEnv},
	}

	m := resolved.EffectiveLLMModel("harvest", "openrouter/openai/gpt-4o-mini")
	if m.Value != "google/gemini-2.5-flash" || m.Source != SourceEnv {
		t.Fatalf("purpose-specific model should win, got %+v", m)
	}
}

func TestAPIKeyForProvider_EnvOverridesConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `llm:
  provider: openrouter/openai/gpt-4o-mini
  api_key: config-key
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	k := resolved.APIKeyForProvider("openrouter/some-model")
	if k.Value != "env-key" {
		t.Fatalf("expected env key, got %q", k.Value)
	}
	if k.Source != SourceEnv {
		t.Fatalf("expected source env, got %s", k.Source)
	}
}
