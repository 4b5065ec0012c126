package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	dirName        = ".anythingllm-sync"
	defaultBaseURL = "http://localhost:3001"

	// DefaultName is the config file looked up when --config is not given.
	DefaultName = "config.yml"
)

// Config is the per-workspace sync configuration loaded from a YAML
// file in the config directory.
type Config struct {
	APIKey            string   `mapstructure:"api-key"`
	WorkspaceSlug     string   `mapstructure:"workspace-slug"`
	BaseURL           string   `mapstructure:"base-url"`
	FilePaths         []string `mapstructure:"file-paths"`
	DirectoryExcludes []string `mapstructure:"directory-excludes"`
	FileExcludes      []string `mapstructure:"file-excludes"`
}

// Dir returns the configuration directory (~/.anythingllm-sync),
// creating it if missing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// Load reads and validates the configuration at path. A .env file next
// to it and ANYTHINGLLM_* environment variables override file values.
func Load(path string) (*Config, error) {
	// Ignore error: no .env is the normal case
	_ = godotenv.Overload(filepath.Join(filepath.Dir(path), ".env"))

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("base-url", defaultBaseURL)
	v.SetEnvPrefix("anythingllm")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.validate(v); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// validate checks the presence of every required key. Excludes must be
// declared even when empty so that a typo'd key fails loudly instead
// of silently syncing everything.
func (c *Config) validate(v *viper.Viper) error {
	if c.APIKey == "" {
		return fmt.Errorf("api-key is required")
	}
	if c.WorkspaceSlug == "" {
		return fmt.Errorf("workspace-slug is required")
	}
	if len(c.FilePaths) == 0 {
		return fmt.Errorf("file-paths must list at least one directory")
	}
	if !v.InConfig("directory-excludes") {
		return fmt.Errorf("directory-excludes is required (may be an empty list)")
	}
	if !v.InConfig("file-excludes") {
		return fmt.Errorf("file-excludes is required (may be an empty list)")
	}
	return nil
}

// LedgerPath returns the per-workspace tracking database path inside dir.
func (c *Config) LedgerPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("uploaded-docs-%s.db", c.WorkspaceSlug))
}

const template = `# AnythingLLM document sync configuration.
# Edit this file with your real values.

api-key: YOUR_ANYTHINGLLM_API_KEY_HERE
workspace-slug: your-workspace-slug-here

# base-url: http://localhost:3001

file-paths:
  - /home/user/path/to/your/repo-or-folder
  # Add more absolute paths as needed

directory-excludes:
  - .git
  - venv
  - node_modules
  - __pycache__

file-excludes:
  - .log
  - .tmp
`

// WriteTemplate writes a starter configuration to path. It refuses to
// overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
