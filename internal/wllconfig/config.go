// Package wllconfig loads the ambient configuration every command-line
// entry point needs before touching the core: the environment-variable
// surface from §6, plus a layered global/repo identity config, following
// the familiar global-then-repo JSON layering most CLI tools in this
// ecosystem use, generalized here with an env-var layer on top that
// always wins over either file.
package wllconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig holds author identity (name and email), formatted by
// Config.Author.
type UserConfig struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CoreConfig holds storage and compression settings.
type CoreConfig struct {
	Dir         string `json:"dir,omitempty"`
	Compression string `json:"compression,omitempty"`
}

// LogConfig controls structured logging verbosity.
type LogConfig struct {
	Level string `json:"level,omitempty"`
}

// Config is the full ambient configuration for a wll invocation.
type Config struct {
	User    UserConfig `json:"user"`
	Core    CoreConfig `json:"core"`
	Log     LogConfig  `json:"log"`
	NoColor bool       `json:"no_color,omitempty"`
}

// DefaultConfig returns the baseline config before any file or
// environment variable is consulted.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			Dir:         defaultDir(),
			Compression: "zstd",
		},
		Log: LogConfig{Level: "info"},
	}
}

// defaultDir is the repository path before WLL_DIR or any config file
// overrides it: a ".wll" directory under the current working directory,
// the same "repo-local by default" convention most of this ecosystem's
// CLIs follow for their dot-directory.
func defaultDir() string {
	return ".wll"
}

// globalConfigPath resolves the global identity config file: WLL_CONFIG
// if set, otherwise ~/.wllconfig.
func globalConfigPath() (string, error) {
	if v := os.Getenv("WLL_CONFIG"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("wllconfig: get home directory: %w", err)
	}
	return filepath.Join(home, ".wllconfig"), nil
}

func repoConfigPath(dir string) string {
	return filepath.Join(dir, "config.json")
}

// Load builds the effective config by layering, in increasing priority:
// defaults, the global config file (~/.wllconfig), the repo config file
// (<dir>/config.json), then environment variables (§6's WLL_* list plus
// NO_COLOR). Each layer only overrides fields the layer above it actually
// set.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if data, readErr := os.ReadFile(globalPath); readErr == nil {
			var globalCfg Config
			if json.Unmarshal(data, &globalCfg) == nil {
				merge(cfg, &globalCfg)
			}
		}
	}

	repoPath := repoConfigPath(cfg.Core.Dir)
	if data, err := os.ReadFile(repoPath); err == nil {
		var repoCfg Config
		if json.Unmarshal(data, &repoCfg) == nil {
			merge(cfg, &repoCfg)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays §6's environment-variable list, which always wins
// over both config files.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WLL_DIR"); v != "" {
		cfg.Core.Dir = v
	}
	if v := os.Getenv("WLL_AUTHOR_NAME"); v != "" {
		cfg.User.Name = v
	}
	if v := os.Getenv("WLL_AUTHOR_EMAIL"); v != "" {
		cfg.User.Email = v
	}
	if v := os.Getenv("WLL_COMPRESSION"); v != "" {
		cfg.Core.Compression = v
	}
	if v := os.Getenv("WLL_LOG"); v != "" {
		cfg.Log.Level = v
	}
	if os.Getenv("NO_COLOR") != "" {
		cfg.NoColor = true
	}
}

func merge(dst, src *Config) {
	if src.User.Name != "" {
		dst.User.Name = src.User.Name
	}
	if src.User.Email != "" {
		dst.User.Email = src.User.Email
	}
	if src.Core.Dir != "" {
		dst.Core.Dir = src.Core.Dir
	}
	if src.Core.Compression != "" {
		dst.Core.Compression = src.Core.Compression
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	dst.NoColor = dst.NoColor || src.NoColor
}

// SaveGlobal writes cfg to the global config file.
func SaveGlobal(cfg *Config) error {
	path, err := globalConfigPath()
	if err != nil {
		return err
	}
	return writeJSON(path, cfg)
}

// SaveRepo writes cfg to <dir>/config.json, creating dir if needed.
func SaveRepo(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("wllconfig: create config dir: %w", err)
	}
	return writeJSON(repoConfigPath(dir), cfg)
}

func writeJSON(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("wllconfig: marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Author formats the configured identity as "Name <email>", the form
// CommitmentPayload.Author-adjacent callers expect. Returns an error if
// either field is unset, failing closed rather than silently stamping an
// empty author.
func (c *Config) Author() (string, error) {
	if c.User.Name == "" || c.User.Email == "" {
		return "", fmt.Errorf("wllconfig: user.name and user.email are not configured (set WLL_AUTHOR_NAME / WLL_AUTHOR_EMAIL or edit ~/.wllconfig)")
	}
	return fmt.Sprintf("%s <%s>", c.User.Name, c.User.Email), nil
}
