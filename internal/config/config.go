package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models teamline.yml.
type Config struct {
	Portal struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"portal"`
	Routing struct {
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	} `yaml:"routing"`
	Notify struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
		// Subjects maps an action to a notification subject line; unknown
		// actions fall back to a generic subject.
		Subjects map[string]string `yaml:"subjects"`
	} `yaml:"notify"`
	Admins []string `yaml:"admins"`
}

// WebhookConfig describes one outbound notification sink.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Roles          []string `yaml:"roles"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Portal.ID == "" {
		return fmt.Errorf("config.portal.id is required")
	}
	if c.Routing.CacheTTLSeconds < 0 {
		return fmt.Errorf("config.routing.cache_ttl_seconds must be >= 0")
	}
	for i, hook := range c.Notify.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.notify.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notify.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	for i, admin := range c.Admins {
		if admin == "" {
			return fmt.Errorf("config.admins[%d] is empty", i)
		}
	}
	return nil
}

// IsAdmin reports whether actorID is listed as a portal administrator.
func (c *Config) IsAdmin(actorID string) bool {
	for _, a := range c.Admins {
		if a == actorID {
			return true
		}
	}
	return false
}

// Subject returns the configured subject line for an action.
func (c *Config) Subject(action, fallback string) string {
	if s, ok := c.Notify.Subjects[action]; ok && s != "" {
		return s
	}
	return fallback
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "teamline.yml")
}

// Default returns the default Config struct for a portal.
func Default(portalID string) *Config {
	var cfg Config
	cfg.Portal.ID = portalID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, portalID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `portal:
  id: %s
  name: Members Portal

routing:
  cache_ttl_seconds: 300

notify:
  webhooks: []
  subjects:
    create: "New assignment submitted"
    edit: "Assignment updated"
    extend: "Deadline extension requested"
    cancel: "Assignment cancelled"
    delete: "Assignment deleted"
    approve: "Assignment approved"
    decline: "Assignment declined"
    request_revision: "Update requested on assignment"
    approve_extension: "Deadline updated"
    accept: "Assignment accepted"
    deliver: "Work delivered"
    request_extension: "Extension requested"
    request_cancel: "Cancellation requested"
    request_update: "Update requested"
    message: "New reply on assignment"

admins: []
`
