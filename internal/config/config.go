package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ouvidor/internal/domain"
)

// Config models ouvidor.yml.
type Config struct {
	Office struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"office"`
	Deadlines struct {
		// DefaultDays maps a manifestation type to the default response
		// deadline in days applied at intake when none is given.
		DefaultDays map[string]int `yaml:"default_days"`
	} `yaml:"deadlines"`
	Routing struct {
		// OnReturn decides the manifestation transition applied when a
		// forwarding records its return: awaiting_return, in_service or none.
		OnReturn string `yaml:"on_return"`
	} `yaml:"routing"`
	Mail struct {
		WebhookURL     string `yaml:"webhook_url"`
		Sender         string `yaml:"sender"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"mail"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one external collaborator receiving audit events.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const (
	OnReturnNone           = "none"
	OnReturnAwaitingReturn = "awaiting_return"
	OnReturnInService      = "in_service"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with ouv office config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Office.ID == "" {
		return fmt.Errorf("config.office.id is required")
	}
	for t, days := range c.Deadlines.DefaultDays {
		if !domain.Type(t).Valid() {
			return fmt.Errorf("deadlines.default_days has unknown manifestation type %s", t)
		}
		if days < 0 {
			return fmt.Errorf("deadlines.default_days.%s must not be negative", t)
		}
	}
	switch c.Routing.OnReturn {
	case "", OnReturnNone, OnReturnAwaitingReturn, OnReturnInService:
	default:
		return fmt.Errorf("routing.on_return must be none, awaiting_return or in_service")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// OnReturnStatus resolves the configured return transition; empty means none.
func (c *Config) OnReturnStatus() string {
	if c.Routing.OnReturn == "" {
		return OnReturnNone
	}
	return c.Routing.OnReturn
}

// DefaultDeadlineDays returns the configured intake deadline for a type,
// zero meaning no default.
func (c *Config) DefaultDeadlineDays(t domain.Type) int {
	if c.Deadlines.DefaultDays == nil {
		return 0
	}
	return c.Deadlines.DefaultDays[string(t)]
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ouvidor.yml")
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

// Default returns the default Config struct for an office.
func Default(officeID string) *Config {
	var cfg Config
	cfg.Office.ID = officeID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, officeID))).Decode(&cfg)
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

const defaultTemplate = `office:
  id: %s
  name: Ombudsman Office

deadlines:
  default_days:
    praise: 0
    suggestion: 30
    complaint: 30
    denunciation: 15
    request: 20

routing:
  on_return: none
`
