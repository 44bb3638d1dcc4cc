package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"scavenger/internal/domain"
)

// Config models scavenger.yml.
type Config struct {
	Ledger struct {
		ID string `yaml:"id" json:"id"`
	} `yaml:"ledger" json:"ledger"`
	Roles struct {
		Catalog map[string]RoleSpec `yaml:"catalog" json:"catalog"`
	} `yaml:"roles" json:"roles"`
	Auth struct {
		AllowAddressHeader bool `yaml:"allow_address_header" json:"allow_address_header"`
	} `yaml:"auth" json:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type RoleSpec struct {
	Description  string   `yaml:"description" json:"description,omitempty"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with scav config init", path)
		}
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Ledger.ID == "" {
		return fmt.Errorf("config.ledger.id is required")
	}
	if len(c.Roles.Catalog) == 0 {
		return fmt.Errorf("config.roles.catalog is required")
	}
	for _, role := range domain.Roles() {
		if _, ok := c.Roles.Catalog[role]; !ok {
			return fmt.Errorf("config.roles.catalog must include %s", role)
		}
	}
	for roleID, spec := range c.Roles.Catalog {
		if !domain.ValidRole(roleID) {
			return fmt.Errorf("unknown role %s in catalog", roleID)
		}
		for _, cap := range spec.Capabilities {
			switch cap {
			case domain.CapCollect, domain.CapProcessRecyclables, domain.CapManufacture:
			default:
				return fmt.Errorf("role %s has unknown capability %s", roleID, cap)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// KnownRole reports whether role is declared in the catalog.
func (c *Config) KnownRole(role string) bool {
	_, ok := c.Roles.Catalog[role]
	return ok
}

// RoleCapabilities returns the catalog's capability list for a role, or nil
// when the role is not in the catalog.
func (c *Config) RoleCapabilities(role string) []string {
	spec, ok := c.Roles.Catalog[role]
	if !ok {
		return nil
	}
	return spec.Capabilities
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "scavenger.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(ledgerID string) string {
	return fmt.Sprintf(defaultTemplate, ledgerID)
}

// Default returns the default Config struct for a ledger.
func Default(ledgerID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, ledgerID)), &cfg)
	cfg.Ledger.ID = ledgerID
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

const defaultTemplate = `ledger:
  id: %s

roles:
  catalog:
    collector:
      description: "Gathers waste units and submits them into the chain"
      capabilities: [collect]
    recycler:
      description: "Processes recyclable materials"
      capabilities: [process_recyclables]
    manufacturer:
      description: "Turns recycled output into products"
      capabilities: [manufacture]

auth:
  allow_address_header: false

webhooks: []
`
