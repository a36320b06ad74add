// Package config loads, validates, and persists the flightbot
// configuration file (JSON, ~/.flightbot/config.json by default).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root of the configuration tree.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Server    ServerConfig              `json:"server"`
	Tools     ToolsConfig               `json:"tools"`
	History   HistoryConfig             `json:"history"`
}

// GeneralConfig holds settings that cut across commands.
type GeneralConfig struct {
	LogLevel          string         `json:"logLevel"`
	LogFile           string         `json:"logFile,omitempty"`
	DefaultProvider   string         `json:"defaultProvider"`
	FailoverChain     FlexStringList `json:"failoverChain,omitempty"`
	ToolsAddr         string         `json:"toolsAddr"`
	SystemPromptExtra string         `json:"systemPromptExtra,omitempty"`
}

// ProviderConfig configures one model provider. The key in
// Config.Providers is the name used by --provider and the failover chain.
type ProviderConfig struct {
	Enabled      bool    `json:"enabled"`
	APIBase      string  `json:"apiBase,omitempty"`
	APIKey       string  `json:"apiKey,omitempty"`
	DefaultModel string  `json:"defaultModel,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// ServerConfig configures the tools RPC server started by `flightbot serve`.
type ServerConfig struct {
	Addr        string `json:"addr"`
	MetricsAddr string `json:"metricsAddr,omitempty"`
}

// ToolsConfig holds per-tool settings.
type ToolsConfig struct {
	Convert ConvertConfig `json:"convert"`
	Search  SearchConfig  `json:"search"`
}

// ConvertConfig configures the file conversion tool.
type ConvertConfig struct {
	ProfilesDir    string `json:"profilesDir,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// SearchConfig configures the web search tool.
type SearchConfig struct {
	MaxResults     int    `json:"maxResults"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Proxy          string `json:"proxy,omitempty"`
}

// HistoryConfig configures conversation persistence.
type HistoryConfig struct {
	Enabled                   bool   `json:"enabled"`
	DBPath                    string `json:"dbPath"`
	MaxHistoryPerConversation int    `json:"maxHistoryPerConversation"`
	RetentionDays             int    `json:"retentionDays"`
}

// FlexStringList unmarshals from a JSON array that may mix strings and
// numbers. Numbers are converted to their shortest string form.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var strs []string
	if err := json.Unmarshal(data, &strs); err == nil {
		*f = strs
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprintf("%v", t))
		}
	}
	*f = out
	return nil
}

// Load reads the config file at path, expands ${VAR} references and the
// leading ~ of path fields, merges the result over Defaults, and validates.
func Load(path string) (*Config, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Defaults()
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.General.LogFile != "" {
		if p, err := ExpandPath(cfg.General.LogFile); err == nil {
			cfg.General.LogFile = p
		}
	}
	if cfg.History.DBPath != "" {
		if p, err := ExpandPath(cfg.History.DBPath); err == nil {
			cfg.History.DBPath = p
		}
	}
	if cfg.Tools.Convert.ProfilesDir != "" {
		if p, err := ExpandPath(cfg.Tools.Convert.ProfilesDir); err == nil {
			cfg.Tools.Convert.ProfilesDir = p
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} references in raw
// config text. A reference to an unset variable with no default is left
// untouched so the problem stays visible in the loaded values.
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}
		return match
	})
}

// Save writes cfg as indented JSON, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks field constraints and reports every violation at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("general.logLevel must be one of debug, info, warn, error (got %q)", cfg.General.LogLevel))
	}
	if cfg.General.DefaultProvider == "" {
		errs = append(errs, "general.defaultProvider must not be empty")
	}
	if cfg.General.ToolsAddr == "" {
		errs = append(errs, "general.toolsAddr must not be empty")
	}

	for name, pc := range cfg.Providers {
		if pc.Temperature < 0 || pc.Temperature > 2 {
			errs = append(errs, fmt.Sprintf("providers.%s.temperature must be between 0 and 2 (got %g)", name, pc.Temperature))
		}
	}

	for _, name := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[name]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider %q", name))
		}
	}

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}

	if cfg.Tools.Convert.TimeoutSeconds < 1 {
		errs = append(errs, "tools.convert.timeoutSeconds must be at least 1")
	}
	if cfg.Tools.Search.MaxResults < 1 {
		errs = append(errs, "tools.search.maxResults must be at least 1")
	}
	if cfg.Tools.Search.TimeoutSeconds < 1 {
		errs = append(errs, "tools.search.timeoutSeconds must be at least 1")
	}

	if cfg.History.Enabled {
		if cfg.History.DBPath == "" {
			errs = append(errs, "history.dbPath must not be empty when history is enabled")
		}
		if cfg.History.MaxHistoryPerConversation < 1 {
			errs = append(errs, "history.maxHistoryPerConversation must be at least 1")
		}
		if cfg.History.RetentionDays < 1 {
			errs = append(errs, "history.retentionDays must be at least 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DefaultConfigDir returns ~/.flightbot, falling back to a relative
// .flightbot when the home directory cannot be resolved.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flightbot"
	}
	return filepath.Join(home, ".flightbot")
}

// DefaultConfigPath returns the default location of the config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
