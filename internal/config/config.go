// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages the redpill-cli configuration.
//
// Configuration lives in TOML at ~/.redpill/config.toml, with built-in
// defaults and environment variable overrides applied on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete redpill-cli configuration.
type Config struct {
	Gateway  GatewayConfig  `toml:"gateway"`
	Sampling SamplingConfig `toml:"sampling"`
	Storage  StorageConfig  `toml:"storage"`
	Chat     ChatConfig     `toml:"chat"`
}

// GatewayConfig selects the inference gateway and model.
type GatewayConfig struct {
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `toml:"base_url"`
	// APIKey authenticates against the gateway. Prefer the
	// REDPILL_API_KEY environment variable over storing it here.
	APIKey string `toml:"api_key"`
	// Model is the default chat model id.
	Model string `toml:"model"`
	// TitleModel is the model used for chat title generation.
	// Empty means use Model.
	TitleModel string `toml:"title_model"`
}

// SamplingConfig holds optional sampling parameters. Nil fields are
// omitted from requests so the gateway applies its own defaults.
type SamplingConfig struct {
	Temperature      *float64 `toml:"temperature"`
	MaxTokens        *int     `toml:"max_tokens"`
	TopP             *float64 `toml:"top_p"`
	PresencePenalty  *float64 `toml:"presence_penalty"`
	FrequencyPenalty *float64 `toml:"frequency_penalty"`
}

// StorageConfig locates the local chat database.
type StorageConfig struct {
	// Path is the SQLite database file. Empty means ~/.redpill/chats.db.
	Path string `toml:"path"`
}

// ChatConfig tunes conversation behavior.
type ChatConfig struct {
	// SystemPrompt is prepended to every conversation when non-empty.
	SystemPrompt string `toml:"system_prompt"`
	// SaveDebounceMs is how long to coalesce chat edits before writing,
	// in milliseconds.
	SaveDebounceMs int `toml:"save_debounce_ms"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL: "https://api.redpill.ai/v1",
			Model:   "phala/llama-3.3-70b-instruct",
		},
		Storage: StorageConfig{
			Path: "", // resolved lazily against the config dir
		},
		Chat: ChatConfig{
			SaveDebounceMs: 500,
		},
	}
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the redpill-cli configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".redpill"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// DatabasePath resolves the chat database location, defaulting to
// chats.db inside the config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats.db"), nil
}

// TitleModel returns the model to use for title generation.
func (c *Config) TitleModel() string {
	if c.Gateway.TitleModel != "" {
		return c.Gateway.TitleModel
	}
	return c.Gateway.Model
}

// ensureSecurePermissions tightens config file permissions to 0600 so the
// stored API key is not world readable.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions: %w", err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the configuration file, falling back to defaults when it is
// absent. Environment overrides apply last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file. A missing
// file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file with 0600
// permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file. The file is created
// with owner-only permissions since it may carry the API key.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# redpill-cli configuration file")
	fmt.Fprintln(file, "# Edit with care; prefer REDPILL_API_KEY over storing the key here.")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS, OVERRIDES, VALIDATION
// =============================================================================

// SetDefaults fills in any missing values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = defaults.Gateway.BaseURL
	}
	if c.Gateway.Model == "" {
		c.Gateway.Model = defaults.Gateway.Model
	}
	if c.Chat.SaveDebounceMs <= 0 {
		c.Chat.SaveDebounceMs = defaults.Chat.SaveDebounceMs
	}
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - REDPILL_API_KEY: overrides gateway.api_key
//   - REDPILL_BASE_URL: overrides gateway.base_url
//   - REDPILL_MODEL: overrides gateway.model
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("REDPILL_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}
	if base := os.Getenv("REDPILL_BASE_URL"); base != "" {
		c.Gateway.BaseURL = base
	}
	if model := os.Getenv("REDPILL_MODEL"); model != "" {
		c.Gateway.Model = model
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL != "" {
		u, err := url.Parse(c.Gateway.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return ValidationError{
				Field:   "gateway.base_url",
				Message: fmt.Sprintf("invalid URL %q", c.Gateway.BaseURL),
			}
		}
	}
	if t := c.Sampling.Temperature; t != nil && (*t < 0 || *t > 2) {
		return ValidationError{
			Field:   "sampling.temperature",
			Message: fmt.Sprintf("must be in [0, 2], got %v", *t),
		}
	}
	if p := c.Sampling.TopP; p != nil && (*p <= 0 || *p > 1) {
		return ValidationError{
			Field:   "sampling.top_p",
			Message: fmt.Sprintf("must be in (0, 1], got %v", *p),
		}
	}
	if m := c.Sampling.MaxTokens; m != nil && *m <= 0 {
		return ValidationError{
			Field:   "sampling.max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", *m),
		}
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g. "gateway.model").
func (c *Config) Get(key string) (any, error) {
	field, err := c.resolve(key)
	if err != nil {
		return nil, err
	}
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil, nil
		}
		return field.Elem().Interface(), nil
	}
	return field.Interface(), nil
}

// Set assigns a configuration value using dot notation. String input is
// converted to the field's type.
func (c *Config) Set(key, value string) error {
	field, err := c.resolve(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) resolve(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 || key == "" {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value string) error {
	target := field
	if field.Kind() == reflect.Ptr {
		target = reflect.New(field.Type().Elem()).Elem()
	}

	switch target.Kind() {
	case reflect.String:
		target.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %v", err)
		}
		target.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %v", err)
		}
		target.SetFloat(f)
	case reflect.Bool:
		v := strings.ToLower(value)
		target.SetBool(v == "1" || v == "true" || v == "yes")
	default:
		return fmt.Errorf("cannot assign to %s", field.Type())
	}

	if field.Kind() == reflect.Ptr {
		field.Set(target.Addr())
	}
	return nil
}

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	return []string{
		"gateway.base_url",
		"gateway.api_key",
		"gateway.model",
		"gateway.title_model",
		"sampling.temperature",
		"sampling.max_tokens",
		"sampling.top_p",
		"sampling.presence_penalty",
		"sampling.frequency_penalty",
		"storage.path",
		"chat.system_prompt",
		"chat.save_debounce_ms",
	}
}

// Redacted returns a copy with the API key masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Gateway.APIKey != "" {
		out.Gateway.APIKey = "[REDACTED]"
	}
	return &out
}

// =============================================================================
// GLOBAL INSTANCE
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.ApplyEnvOverrides()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal replaces the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}
