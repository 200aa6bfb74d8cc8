// Package config holds the session configuration and its YAML file format.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Config is the full configuration of a conversation session. Every field
// can be changed at runtime through Set, keyed by its dotted path, e.g.
// "llm.temperature".
type Config struct {
	LLM    LLMConfig    `yaml:"llm" json:"llm"`
	STT    STTConfig    `yaml:"stt" json:"stt"`
	TTS    TTSConfig    `yaml:"tts" json:"tts"`
	Agent  AgentConfig  `yaml:"agent" json:"agent"`
	Server ServerConfig `yaml:"server" json:"server"`
}

type LLMConfig struct {
	BaseURL       string  `yaml:"base_url" json:"base_url"`
	Model         string  `yaml:"model" json:"model"`
	SystemPrompt  string  `yaml:"system_prompt" json:"system_prompt"`
	Temperature   float64 `yaml:"temperature" json:"temperature"`
	ContextLength int     `yaml:"context_length" json:"context_length"`
	RepeatPenalty float64 `yaml:"repeat_penalty" json:"repeat_penalty"`
}

type STTConfig struct {
	// Provider selects the transcription backend, "whisper" or "deepgram".
	Provider string `yaml:"provider" json:"provider"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	Model    string `yaml:"model" json:"model"`
	Language string `yaml:"language" json:"language"`
}

type TTSConfig struct {
	BaseURL string  `yaml:"base_url" json:"base_url"`
	Voice   string  `yaml:"voice" json:"voice"`
	Speed   float64 `yaml:"speed" json:"speed"`
}

type AgentConfig struct {
	// SettleDelayMs is how long the coordinator waits after the last
	// transcript activity before triggering a response.
	SettleDelayMs int `yaml:"settle_delay_ms" json:"settle_delay_ms"`
	// InactivityWindowMs makes the agent respond unconditionally when the
	// conversation has been quiet for at least this long. Zero disables it.
	InactivityWindowMs int `yaml:"inactivity_window_ms" json:"inactivity_window_ms"`
	// ValidationPolicy decides what happens to a response the validator
	// rejects, "discard" or "notify".
	ValidationPolicy string `yaml:"validation_policy" json:"validation_policy"`
	// VoiceOutputEnabled turns speech synthesis on or off. Token streaming
	// is unaffected.
	VoiceOutputEnabled bool `yaml:"voice_output_enabled" json:"voice_output_enabled"`
}

type ServerConfig struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	// AudioDir, when set, makes sessions write synthesized speech to files
	// under it (served at /audio/) instead of inlining samples.
	AudioDir string `yaml:"audio_dir" json:"audio_dir"`
}

// Default returns the configuration used when no file and no stored chat
// provide one.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "llama3.2",
			SystemPrompt:  "You are a helpful voice assistant. Keep your answers short and conversational.",
			Temperature:   0.7,
			ContextLength: 8192,
			RepeatPenalty: 1.1,
		},
		STT: STTConfig{
			Provider: "whisper",
			BaseURL:  "http://localhost:8990",
			Model:    "base.en",
			Language: "en",
		},
		TTS: TTSConfig{
			BaseURL: "http://localhost:8880",
			Voice:   "af_heart",
			Speed:   1.0,
		},
		Agent: AgentConfig{
			SettleDelayMs:      600,
			InactivityWindowMs: 0,
			ValidationPolicy:   "discard",
			VoiceOutputEnabled: true,
		},
		Server: ServerConfig{
			ListenAddress: ":8000",
			DataDir:       "data",
		},
	}
}

// Load reads a YAML configuration file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Set updates a single field addressed by its dotted path with a JSON
// encoded value. Unknown paths and mistyped values are rejected.
func (c *Config) Set(path string, value json.RawMessage) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	segments := strings.Split(path, ".")
	node := tree
	for i, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config path %q", strings.Join(segments[:i+1], "."))
		}
		node = child
	}
	leaf := segments[len(segments)-1]
	if _, ok := node[leaf]; !ok {
		return fmt.Errorf("unknown config path %q", path)
	}
	var decoded any
	if err := json.Unmarshal(value, &decoded); err != nil {
		return fmt.Errorf("invalid value for config path %q: %w", path, err)
	}
	node[leaf] = decoded

	raw, err = json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	updated := *c
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&updated); err != nil {
		return fmt.Errorf("invalid value for config path %q: %w", path, err)
	}
	*c = updated
	return nil
}
