package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry is the set of procurement portals the watcher scans.
type Registry struct {
	Portals []PortalConfig `yaml:"portals"`
}

// PortalConfig describes one portal's listing pages and how to read them.
type PortalConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Seeds    []string `yaml:"seed_urls"`
	MaxPages int      `yaml:"max_pages,omitempty"`

	Selectors  SelectorConfig `yaml:"selectors"`
	Pagination struct {
		Next string `yaml:"next,omitempty"`
	} `yaml:"pagination,omitempty"`

	Fetch FetchConfig `yaml:"fetch,omitempty"`
}

// SelectorConfig holds the CSS selectors for one listing layout.
type SelectorConfig struct {
	Container string `yaml:"container"`
	Link      string `yaml:"link"`
	LinkAttr  string `yaml:"link_attr,omitempty"` // default href
	Title     string `yaml:"title"`
	Closing   string `yaml:"closing,omitempty"` // closing date in the listing, when present
}

type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
	DelaySeconds   float64 `yaml:"delay_seconds,omitempty"`
	UserAgent      string  `yaml:"user_agent,omitempty"`
}

// LoadRegistry reads the embedded portal registry, falling back to a
// filesystem path for local overrides. Env references like ${PORTAL_KEY}
// are expanded before parsing.
func LoadRegistry(path string) (*Registry, error) {
	data, err := sourcesYAML.ReadFile("config/sources.yaml")
	if err != nil {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load portal registry: %w", err)
		}
	}

	var reg Registry
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &reg); err != nil {
		return nil, fmt.Errorf("parse portal registry: %w", err)
	}

	for i := range reg.Portals {
		p := &reg.Portals[i]
		if p.ID == "" || len(p.Seeds) == 0 {
			return nil, fmt.Errorf("portal %d: id and seed_urls are required", i)
		}
		if p.Selectors.LinkAttr == "" {
			p.Selectors.LinkAttr = "href"
		}
		if p.MaxPages <= 0 {
			p.MaxPages = 3
		}
	}
	return &reg, nil
}
