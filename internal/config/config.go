package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"sonicwall-to-mx/internal/engine"
	"sonicwall-to-mx/internal/model"
	"sonicwall-to-mx/internal/parser"
)

const DefaultBaseURL = "https://api.meraki.com/api/v1"

// ErrConfigMissing means the configuration file does not exist. Callers that
// can run on defaults check for it with errors.Is.
var ErrConfigMissing = errors.New("config file not found")

// Config is the run configuration loaded from YAML.
type Config struct {
	APIKey      string `yaml:"api_key"`
	OrgName     string `yaml:"org_name"`
	NetworkName string `yaml:"network_name"`
	BaseURL     string `yaml:"base_url"`

	// Zones are listed in output order. A zone that is not a local VLAN
	// (WAN, VPN) leaves vlan blank.
	Zones     []Zone `yaml:"zones"`
	ZonesFile string `yaml:"zones_file"`

	Inbound    []string `yaml:"inbound"`
	SiteToSite []string `yaml:"site2site"`

	// Unset feature flags are asked for interactively.
	IntelligentMapping   *bool `yaml:"intelligent_mapping"`
	DefaultInterZoneDeny *bool `yaml:"default_inter_zone_deny"`

	Syslog           bool `yaml:"syslog"`
	RejectFQDNSource bool `yaml:"reject_fqdn_source"`
}

type Zone struct {
	Name string `yaml:"name"`
	VLAN string `yaml:"vlan"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML configuration file. Environment variables override the
// file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.APIKey = getEnv("MERAKI_DASHBOARD_API_KEY", c.APIKey)
	c.BaseURL = getEnv("MERAKI_BASE_URL", c.BaseURL)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Inbound == nil {
		c.Inbound = []string{"WAN"}
	}
	if c.SiteToSite == nil {
		c.SiteToSite = []string{"VPN", "SSLVPN"}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ResolveZones returns the configured zones followed by the zones of the
// zones file. A zone named twice keeps its first VLAN.
func (c *Config) ResolveZones() ([]model.Zone, error) {
	var zones []model.Zone
	seen := make(map[string]bool)
	add := func(z model.Zone) {
		if z.Name == "" || seen[z.Name] {
			return
		}
		seen[z.Name] = true
		zones = append(zones, z)
	}
	for _, z := range c.Zones {
		add(model.Zone{Name: z.Name, VLAN: z.VLAN})
	}
	if c.ZonesFile == "" {
		return zones, nil
	}

	f, err := os.Open(c.ZonesFile)
	if err != nil {
		return nil, fmt.Errorf("open zones file: %w", err)
	}
	defer f.Close()
	fromFile, err := parser.LoadZones(f)
	if err != nil {
		return nil, fmt.Errorf("load zones file %s: %w", c.ZonesFile, err)
	}
	for _, z := range fromFile {
		add(z)
	}
	return zones, nil
}

// CheckPush reports the settings the dashboard push cannot do without.
func (c *Config) CheckPush() error {
	var missing []error
	if c.APIKey == "" {
		missing = append(missing, errors.New("api_key (or MERAKI_DASHBOARD_API_KEY) is required"))
	}
	if c.OrgName == "" {
		missing = append(missing, errors.New("org_name is required"))
	}
	if c.NetworkName == "" {
		missing = append(missing, errors.New("network_name is required"))
	}
	return errors.Join(missing...)
}

// Options builds the translation options once both feature flags are known.
func (c *Config) Options(mapping, defaultDeny bool) engine.Options {
	return engine.Options{
		IntelligentMapping:   mapping,
		DefaultInterZoneDeny: defaultDeny,
		Inbound:              c.Inbound,
		SiteToSite:           c.SiteToSite,
		Syslog:               c.Syslog,
		RejectFQDNSource:     c.RejectFQDNSource,
	}
}
