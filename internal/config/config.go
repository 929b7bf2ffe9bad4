package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

// LLMConfig points at an OpenAI-compatible chat-completions endpoint.
// APIKey may stay empty for local servers that do not check authorization.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Validate reports whether the connection settings are complete enough to
// start an evaluation run. Called up front so a misconfigured endpoint is
// rejected before any item is queued.
func (c LLMConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("scoring endpoint base URL is not configured; set llm.base_url or RUBRICA_LLM_BASE_URL")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("scoring model is not configured; set llm.model or RUBRICA_LLM_MODEL")
	}
	return nil
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "llama3.1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.rubrica.app) and the API
// key falls back to macOS Keychain. On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/rubrica/config.json and the key falls back to a secrets
// file under $XDG_DATA_HOME/rubrica.
//
// Environment variables (RUBRICA_*) override backend values on all
// platforms. A missing API key is not an error here; whether the endpoint
// needs one is only known when a run is started.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get("rubrica", "api_key"); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
