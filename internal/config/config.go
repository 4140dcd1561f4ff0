package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Thread reopen policies. The strict variant refuses to reopen a closed
// thread; the permissive variant lets the admin toggle it back open.
const (
	ReopenAllow  = "allow"
	ReopenForbid = "forbid"
)

// Storage backends for submission attachments.
const (
	StorageDB = "db"
	StorageFS = "fs"
)

// Config models deskline.yml.
type Config struct {
	Auth struct {
		JWTSecret       string `yaml:"jwt_secret"`
		AdminPassword   string `yaml:"admin_password"`
		SessionTTLHours int    `yaml:"session_ttl_hours"`
	} `yaml:"auth"`
	Workflow struct {
		ThreadReopen  string `yaml:"thread_reopen"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"workflow"`
	Storage struct {
		Backend   string `yaml:"backend"`
		UploadDir string `yaml:"upload_dir"`
	} `yaml:"storage"`
	Cron struct {
		Secret string `yaml:"secret"`
	} `yaml:"cron"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Workflow.ThreadReopen {
	case ReopenAllow, ReopenForbid:
	default:
		return fmt.Errorf("config.workflow.thread_reopen must be %q or %q", ReopenAllow, ReopenForbid)
	}
	if c.Workflow.RetentionDays < 0 {
		return fmt.Errorf("config.workflow.retention_days must not be negative")
	}
	switch c.Storage.Backend {
	case StorageDB:
	case StorageFS:
		if c.Storage.UploadDir == "" {
			return fmt.Errorf("config.storage.upload_dir is required for the fs backend")
		}
	default:
		return fmt.Errorf("config.storage.backend must be %q or %q", StorageDB, StorageFS)
	}
	if c.Auth.SessionTTLHours <= 0 {
		return fmt.Errorf("config.auth.session_ttl_hours must be positive")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// ReopenAllowed reports whether a closed thread may be reopened.
func (c *Config) ReopenAllowed() bool {
	return c.Workflow.ThreadReopen != ReopenForbid
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "deskline.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// take their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `auth:
  jwt_secret: ""
  admin_password: ""
  session_ttl_hours: 168

workflow:
  # allow: a closed thread may be reopened by the admin.
  # forbid: closing a thread is final.
  thread_reopen: allow
  # 0 disables the expiry horizon on new submissions.
  retention_days: 0

storage:
  backend: db
  upload_dir: ""

cron:
  secret: ""

webhooks: []
`
