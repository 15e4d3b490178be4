// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/minillm/internal/storage"
	"github.com/jeranaias/minillm/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete minillm configuration.
type Config struct {
	Backend BackendConfig `toml:"backend" yaml:"backend" json:"backend"`
	Auth    AuthConfig    `toml:"auth" yaml:"auth" json:"auth"`
	Storage StorageConfig `toml:"storage" yaml:"storage" json:"storage"`
	UI      UIConfig      `toml:"ui" yaml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" yaml:"log" json:"log"`
}

// BackendConfig describes the Mini LLM backend.
type BackendConfig struct {
	// URL is the backend base URL.
	URL string `toml:"url" yaml:"url" json:"url"`
	// MaxTokens is sent with every generate call.
	MaxTokens int `toml:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	// GenerateTimeoutSecs bounds one generation (0 = unbounded).
	GenerateTimeoutSecs int `toml:"generate_timeout_secs" yaml:"generate_timeout_secs" json:"generate_timeout_secs"`
	// RequestTimeoutSecs bounds every other call.
	RequestTimeoutSecs int `toml:"request_timeout_secs" yaml:"request_timeout_secs" json:"request_timeout_secs"`
	// RateLimitPerSec spaces outbound requests (0 = no pacing).
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	UserAgent       string  `toml:"user_agent" yaml:"user_agent" json:"user_agent"`
}

// AuthConfig configures the loopback callback listener.
type AuthConfig struct {
	CallbackAddr     string `toml:"callback_addr" yaml:"callback_addr" json:"callback_addr"`
	CallbackPath     string `toml:"callback_path" yaml:"callback_path" json:"callback_path"`
	LoginTimeoutSecs int    `toml:"login_timeout_secs" yaml:"login_timeout_secs" json:"login_timeout_secs"`
}

// StorageConfig selects where the token is persisted.
type StorageConfig struct {
	// Backend is one of "file", "sqlite" or "memory".
	Backend string `toml:"backend" yaml:"backend" json:"backend"`
	// Path overrides the default location under the config directory.
	Path string `toml:"path" yaml:"path" json:"path"`
	// Watch observes changes made by other processes.
	Watch bool `toml:"watch" yaml:"watch" json:"watch"`
}

// UIConfig contains terminal presentation settings.
type UIConfig struct {
	// Theme is "dark", "light" or "auto".
	Theme             string `toml:"theme" yaml:"theme" json:"theme"`
	RenderMarkdown    bool   `toml:"render_markdown" yaml:"render_markdown" json:"render_markdown"`
	WordWrap          int    `toml:"word_wrap" yaml:"word_wrap" json:"word_wrap"`
	ShowInferenceTime bool   `toml:"show_inference_time" yaml:"show_inference_time" json:"show_inference_time"`
}

// LogConfig controls where log lines go.
type LogConfig struct {
	// File is the log file (empty = minillm.log under the config directory).
	File    string `toml:"file" yaml:"file" json:"file"`
	Verbose bool   `toml:"verbose" yaml:"verbose" json:"verbose"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                 "http://localhost:8000",
			MaxTokens:           100,
			GenerateTimeoutSecs: 120,
			RequestTimeoutSecs:  30,
		},
		Auth: AuthConfig{
			CallbackAddr:     "127.0.0.1:3000",
			CallbackPath:     "/auth/callback",
			LoginTimeoutSecs: 300,
		},
		Storage: StorageConfig{
			Backend: string(storage.KindFile),
			Watch:   true,
		},
		UI: UIConfig{
			Theme:             "auto",
			RenderMarkdown:    true,
			WordWrap:          80,
			ShowInferenceTime: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// EnvHome relocates the configuration directory.
const EnvHome = "MINILLM_HOME"

// ConfigDir returns the minillm configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".minillm"), nil
}

func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) { return configPath("config.toml") }

// ConfigPathYAML returns the path to the YAML config file.
func ConfigPathYAML() (string, error) { return configPath("config.yaml") }

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) { return configPath("config.json") }

// StoragePath returns the token store location for the configured backend.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	switch storage.Kind(c.Storage.Backend) {
	case storage.KindMemory:
		return "", nil
	case storage.KindSQLite:
		return configPath("session.db")
	default:
		return configPath("session.json")
	}
}

// LogPath returns the log file location.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	return configPath("minillm.log")
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory, trying config.toml,
// config.yaml and config.json in that order, then falling back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	candidates := []func() (string, error){ConfigPathTOML, ConfigPathYAML, ConfigPathJSON}
	for _, candidate := range candidates {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file. The format follows
// the extension: .json (comments allowed), .yaml/.yml, otherwise TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	warnPermissions(path)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadYAML decodes a YAML file over cfg.
func LoadYAML(cfg *Config, path string) error {
	warnPermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg. Comments and trailing commas are
// accepted.
func LoadJSON(cfg *Config, path string) error {
	warnPermissions(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func warnPermissions(path string) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
}

// SetDefaults fills zero values that have no meaning as zero.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Backend.URL == "" {
		c.Backend.URL = d.Backend.URL
	}
	if c.Backend.MaxTokens == 0 {
		c.Backend.MaxTokens = d.Backend.MaxTokens
	}
	if c.Backend.RequestTimeoutSecs == 0 {
		c.Backend.RequestTimeoutSecs = d.Backend.RequestTimeoutSecs
	}
	if c.Auth.CallbackAddr == "" {
		c.Auth.CallbackAddr = d.Auth.CallbackAddr
	}
	if c.Auth.CallbackPath == "" {
		c.Auth.CallbackPath = d.Auth.CallbackPath
	}
	if c.Auth.LoginTimeoutSecs == 0 {
		c.Auth.LoginTimeoutSecs = d.Auth.LoginTimeoutSecs
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.WordWrap == 0 {
		c.UI.WordWrap = d.UI.WordWrap
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# minillm configuration file")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveYAML writes cfg as YAML with 0600 permissions.
func SaveYAML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveToPath writes cfg in the format implied by the extension of path,
// matching LoadFromPath.
func SaveToPath(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SaveJSON(cfg, path)
	case ".yaml", ".yml":
		return SaveYAML(cfg, path)
	default:
		return SaveTOML(cfg, path)
	}
}

// ActivePath returns the file Load would read: the first existing of
// config.toml, config.yaml and config.json, or config.toml if none exists.
func ActivePath() (string, error) {
	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathYAML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			return "", err
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	return ConfigPathTOML()
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Host == "" ||
		(u.Scheme != "http" && u.Scheme != "https") {
		add("backend.url", "must be an absolute http(s) URL")
	}
	if c.Backend.MaxTokens < 1 {
		add("backend.max_tokens", "must be at least 1")
	}
	if c.Backend.GenerateTimeoutSecs < 0 {
		add("backend.generate_timeout_secs", "must not be negative")
	}
	if c.Backend.RequestTimeoutSecs < 0 {
		add("backend.request_timeout_secs", "must not be negative")
	}
	if c.Backend.RateLimitPerSec < 0 {
		add("backend.rate_limit_per_sec", "must not be negative")
	}

	if _, _, err := net.SplitHostPort(c.Auth.CallbackAddr); err != nil {
		add("auth.callback_addr", "must be host:port")
	}
	if !strings.HasPrefix(c.Auth.CallbackPath, "/") {
		add("auth.callback_path", "must start with /")
	}
	if c.Auth.LoginTimeoutSecs < 0 {
		add("auth.login_timeout_secs", "must not be negative")
	}

	if !validStorage(c.Storage.Backend) {
		add("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "must be dark, light or auto")
	}
	if c.UI.WordWrap < 20 {
		add("ui.word_wrap", "must be at least 20")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validStorage(name string) bool {
	for _, k := range storage.Kinds() {
		if string(k) == name {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - MINILLM_API_URL: backend.url
//   - MINILLM_MAX_TOKENS: backend.max_tokens
//   - MINILLM_STORAGE: storage.backend
//   - MINILLM_STORAGE_PATH: storage.path
//   - MINILLM_CALLBACK_ADDR: auth.callback_addr
//   - MINILLM_LOG_FILE: log.file
//   - MINILLM_THEME: ui.theme
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MINILLM_API_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("MINILLM_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.MaxTokens = n
		}
	}
	if v := os.Getenv("MINILLM_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MINILLM_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("MINILLM_CALLBACK_ADDR"); v != "" {
		c.Auth.CallbackAddr = v
	}
	if v := os.Getenv("MINILLM_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("MINILLM_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "backend.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "backend.url").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

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
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
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

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
				if !boolVal && !strings.EqualFold(strVal, "no") {
					return fmt.Errorf("invalid boolean value: %q", strVal)
				}
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"backend.url",
		"backend.max_tokens",
		"backend.generate_timeout_secs",
		"backend.request_timeout_secs",
		"backend.rate_limit_per_sec",
		"backend.user_agent",
		"auth.callback_addr",
		"auth.callback_path",
		"auth.login_timeout_secs",
		"storage.backend",
		"storage.path",
		"storage.watch",
		"ui.theme",
		"ui.render_markdown",
		"ui.word_wrap",
		"ui.show_inference_time",
		"log.file",
		"log.verbose",
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
