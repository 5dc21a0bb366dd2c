// Package config loads the bot configuration from a TOML file, with
// secrets overridable from the environment. Validation failures are
// fatal at boot; nothing here is consulted after startup except the
// read-only repo table.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full service configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Braid   BraidConfig   `toml:"braid"`
	GitHub  GitHubConfig  `toml:"github"`
	Repos   []RepoConfig  `toml:"repos"`
}

// GeneralConfig holds process-level settings.
type GeneralConfig struct {
	Port     int    `toml:"port"`
	DBFile   string `toml:"db_file"`
	LogLevel string `toml:"log_level"`
}

// BraidConfig identifies the bot on the chat platform.
type BraidConfig struct {
	Name    string `toml:"name"`
	APIURL  string `toml:"api_url"`
	SiteURL string `toml:"site_url"`
	AppID   string `toml:"app_id"`
	Token   string `toml:"token"`
}

// GitHubConfig holds the webhook secret and, optionally, GitHub App
// credentials used instead of per-repo tokens.
type GitHubConfig struct {
	WebhookSecret string         `toml:"webhook_secret"`
	App           *AppCredential `toml:"app"`
}

// AppCredential configures GitHub App installation-token auth.
type AppCredential struct {
	AppID          string `toml:"app_id"`
	PrivateKeyFile string `toml:"private_key_file"`
}

// RepoConfig is one connected repository: credentials plus the chat
// group and tag used to open threads for its issues. Read-only after
// load.
type RepoConfig struct {
	Org     string `toml:"org"`
	Repo    string `toml:"repo"`
	Token   string `toml:"token"`
	GroupID string `toml:"group_id"`
	TagID   string `toml:"tag_id"`
}

// FullName returns the "org/repo" form.
func (r RepoConfig) FullName() string {
	return r.Org + "/" + r.Repo
}

// Load reads and validates the configuration file. Environment
// variables override selected keys so secrets can stay out of files:
// OCTOCAT_PORT, OCTOCAT_DB_FILE, OCTOCAT_LOG_LEVEL, OCTOCAT_BRAID_TOKEN,
// OCTOCAT_WEBHOOK_SECRET.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OCTOCAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.General.Port = port
		}
	}
	if v := os.Getenv("OCTOCAT_DB_FILE"); v != "" {
		c.General.DBFile = v
	}
	if v := os.Getenv("OCTOCAT_LOG_LEVEL"); v != "" {
		c.General.LogLevel = v
	}
	if v := os.Getenv("OCTOCAT_BRAID_TOKEN"); v != "" {
		c.Braid.Token = v
	}
	if v := os.Getenv("OCTOCAT_WEBHOOK_SECRET"); v != "" {
		c.GitHub.WebhookSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.General.Port == 0 {
		c.General.Port = 9999
	}
	if c.General.DBFile == "" {
		c.General.DBFile = "threads_issues.sqlite"
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	braidRequired := []struct {
		key, value string
	}{
		{"braid.name", c.Braid.Name},
		{"braid.api_url", c.Braid.APIURL},
		{"braid.site_url", c.Braid.SiteURL},
		{"braid.app_id", c.Braid.AppID},
		{"braid.token", c.Braid.Token},
	}
	for _, required := range braidRequired {
		if required.value == "" {
			return fmt.Errorf("missing configuration key %s", required.key)
		}
	}

	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("missing configuration key github.webhook_secret")
	}
	if app := c.GitHub.App; app != nil {
		if app.AppID == "" || app.PrivateKeyFile == "" {
			return fmt.Errorf("github.app requires both app_id and private_key_file")
		}
	}

	if len(c.Repos) == 0 {
		return fmt.Errorf("at least one [[repos]] entry is required")
	}
	for i, repo := range c.Repos {
		if repo.Org == "" || repo.Repo == "" {
			return fmt.Errorf("repos[%d]: org and repo are required", i)
		}
		if repo.GroupID == "" || repo.TagID == "" {
			return fmt.Errorf("repos[%d] (%s): group_id and tag_id are required", i, repo.FullName())
		}
		if repo.Token == "" && c.GitHub.App == nil {
			return fmt.Errorf("repos[%d] (%s): token is required without github.app credentials", i, repo.FullName())
		}
	}

	return nil
}

// FindRepo resolves a repo selector: an exact short name ("widgets")
// or the full "org/repo" form. First match wins.
func (c *Config) FindRepo(selector string) *RepoConfig {
	for i := range c.Repos {
		if c.Repos[i].Repo == selector || c.Repos[i].FullName() == selector {
			return &c.Repos[i]
		}
	}
	return nil
}

// RepoByFullName resolves a repository by its "org/repo" name, as
// reported in webhook payloads.
func (c *Config) RepoByFullName(fullName string) *RepoConfig {
	for i := range c.Repos {
		if c.Repos[i].FullName() == fullName {
			return &c.Repos[i]
		}
	}
	return nil
}
