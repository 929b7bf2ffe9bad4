package config

import (
	"errors"
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error {
	if m.strings == nil {
		m.strings = map[string]string{}
	}
	m.strings[key] = val
	return nil
}

func (m *memBackend) SetInt(key string, val int) error {
	if m.ints == nil {
		m.ints = map[string]int{}
	}
	m.ints[key] = val
	return nil
}

func (m *memBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty (key is optional)", cfg.LLM.APIKey)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValuesApplied(t *testing.T) {
	clearEnv(t)
	b := &memBackend{
		strings: map[string]string{
			"llm.base_url": "http://custom:8080/v1",
			"llm.model":    "custom-model",
			"log.level":    "debug",
		},
		ints: map[string]int{"server.port": 5000},
	}

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "http://custom:8080/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "custom-model" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	b := &memBackend{strings: map[string]string{"llm.model": "from-backend"}}
	t.Setenv("RUBRICA_LLM_MODEL", "from-env")
	t.Setenv("RUBRICA_SERVER_PORT", "7001")

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("LLM.Model = %q, want env to win over backend", cfg.LLM.Model)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Server.Port = %d, want 7001", cfg.Server.Port)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RUBRICA_LLM_API_KEY", "env-secret")

	cfg, err := loadWith(&memBackend{}, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.APIKey != "env-secret" {
		t.Errorf("APIKey = %q, want env value to win over keychain", cfg.LLM.APIKey)
	}
}

func TestAPIKeyKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{}, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.APIKey != "keychain-secret" {
		t.Errorf("APIKey = %q, want keychain fallback", cfg.LLM.APIKey)
	}

	cfg, err = loadWith(&memBackend{}, mockKeychain{err: errors.New("no keychain")})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("APIKey = %q, want empty when keychain unavailable", cfg.LLM.APIKey)
	}
}

func TestLLMValidate(t *testing.T) {
	ok := LLMConfig{BaseURL: "http://localhost:11434/v1", Model: "llama3.1"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	missing := LLMConfig{Model: "llama3.1"}
	if err := missing.Validate(); err == nil || !strings.Contains(err.Error(), "base URL") {
		t.Errorf("Validate() = %v, want base URL error", err)
	}

	missing = LLMConfig{BaseURL: "http://localhost:11434/v1", Model: "   "}
	if err := missing.Validate(); err == nil || !strings.Contains(err.Error(), "model") {
		t.Errorf("Validate() = %v, want model error", err)
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "super-secret"

	for _, info := range ShowAll(cfg) {
		if info.Key == "llm.api_key" || info.Value == "super-secret" {
			t.Errorf("ShowAll leaked secret key: %+v", info)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	want := map[string]bool{
		"server.port": true, "llm.base_url": true, "llm.model": true,
		"storage.data_dir": true, "log.level": true,
	}
	if len(keys) != len(want) {
		t.Fatalf("ValidKeys = %v, want %d keys", keys, len(want))
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}
}
