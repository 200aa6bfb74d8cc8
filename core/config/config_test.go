package config_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/loquilabs/loqui/core/config"
)

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.Default()
	cfg.LLM.Model = "qwen3"
	cfg.TTS.Voice = "af_bella"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LLM.Model != "qwen3" {
		t.Fatalf("LLM.Model = %q, want %q", loaded.LLM.Model, "qwen3")
	}
	if loaded.TTS.Voice != "af_bella" {
		t.Fatalf("TTS.Voice = %q, want %q", loaded.TTS.Voice, "af_bella")
	}
	if loaded.Agent.SettleDelayMs != config.Default().Agent.SettleDelayMs {
		t.Fatalf("Agent.SettleDelayMs = %d, want default %d", loaded.Agent.SettleDelayMs, config.Default().Agent.SettleDelayMs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	// The defaults still come back so the caller can fall back to them.
	if cfg.LLM.BaseURL == "" {
		t.Fatal("expected defaults in the returned config")
	}
}

func TestSet(t *testing.T) {
	cfg := config.Default()

	if err := cfg.Set("llm.temperature", json.RawMessage(`0.2`)); err != nil {
		t.Fatalf("Set llm.temperature: %v", err)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Fatalf("LLM.Temperature = %v, want 0.2", cfg.LLM.Temperature)
	}

	if err := cfg.Set("tts.voice", json.RawMessage(`"af_bella"`)); err != nil {
		t.Fatalf("Set tts.voice: %v", err)
	}
	if cfg.TTS.Voice != "af_bella" {
		t.Fatalf("TTS.Voice = %q, want %q", cfg.TTS.Voice, "af_bella")
	}

	if err := cfg.Set("agent.inactivity_window_ms", json.RawMessage(`30000`)); err != nil {
		t.Fatalf("Set agent.inactivity_window_ms: %v", err)
	}
	if cfg.Agent.InactivityWindowMs != 30000 {
		t.Fatalf("Agent.InactivityWindowMs = %d, want 30000", cfg.Agent.InactivityWindowMs)
	}
}

func TestSetRejectsUnknownPath(t *testing.T) {
	cfg := config.Default()
	before := cfg

	if err := cfg.Set("llm.nonexistent", json.RawMessage(`1`)); err == nil {
		t.Fatal("expected an error for an unknown leaf")
	}
	if err := cfg.Set("nonexistent.model", json.RawMessage(`"x"`)); err == nil {
		t.Fatal("expected an error for an unknown section")
	}
	if cfg != before {
		t.Fatal("config changed despite rejected updates")
	}
}

func TestSetRejectsMistypedValue(t *testing.T) {
	cfg := config.Default()

	if err := cfg.Set("llm.temperature", json.RawMessage(`"hot"`)); err == nil {
		t.Fatal("expected an error for a mistyped value")
	}
	if cfg.LLM.Temperature != config.Default().LLM.Temperature {
		t.Fatalf("LLM.Temperature changed to %v despite rejected update", cfg.LLM.Temperature)
	}
}
