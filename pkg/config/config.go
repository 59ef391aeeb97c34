// Package config holds the target memory configuration: the named address
// sections code and data are placed into, and which of them is the default.
// A built-in 6502 layout is used unless a YAML file overrides it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Section is a contiguous address range functions or data can be placed
// into. Start and End are inclusive.
type Section struct {
	Name  string `yaml:"name"`
	Start uint16 `yaml:"start"`
	End   uint16 `yaml:"end"`
}

// Size returns the section's capacity in bytes.
func (s Section) Size() int { return int(s.End) - int(s.Start) + 1 }

// Contains reports whether addr falls inside the section.
func (s Section) Contains(addr uint16) bool { return addr >= s.Start && addr <= s.End }

// MemoryConfig is the full placement configuration.
type MemoryConfig struct {
	// Sections in declaration order.
	Sections []Section `yaml:"sections"`
	// Default names the section functions without explicit placement go to.
	Default string `yaml:"default"`
}

// Default6502 is the standard layout: a stdlib region, a code region the
// compiler fills by default, and a data region for statics and strings.
func Default6502() *MemoryConfig {
	return &MemoryConfig{
		Sections: []Section{
			{Name: "STDLIB", Start: 0x8000, End: 0x8FFF},
			{Name: "CODE", Start: 0x9000, End: 0xBFFF},
			{Name: "DATA", Start: 0xC000, End: 0xCFFF},
		},
		Default: "CODE",
	}
}

// Load reads a YAML memory configuration from path.
func Load(path string) (*MemoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &MemoryConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse memory config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("memory config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault reads path if it exists, falling back to Default6502.
func LoadOrDefault(path string) (*MemoryConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default6502(), nil
	}
	return Load(path)
}

// Validate checks the configuration is usable: at least one section, no
// empty or inverted ranges, unique names, and a default that exists.
func (c *MemoryConfig) Validate() error {
	if len(c.Sections) == 0 {
		return fmt.Errorf("no sections defined")
	}
	seen := make(map[string]bool)
	for _, s := range c.Sections {
		if s.Name == "" {
			return fmt.Errorf("section with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate section %q", s.Name)
		}
		seen[s.Name] = true
		if s.End < s.Start {
			return fmt.Errorf("section %q has end $%04X below start $%04X", s.Name, s.End, s.Start)
		}
	}
	if c.Default == "" {
		c.Default = c.Sections[0].Name
	}
	if !seen[c.Default] {
		return fmt.Errorf("default section %q is not defined", c.Default)
	}
	return nil
}

// Find returns the named section.
func (c *MemoryConfig) Find(name string) (Section, bool) {
	for _, s := range c.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// DefaultSection returns the section functions are placed into when they
// carry no org or section attribute.
func (c *MemoryConfig) DefaultSection() Section {
	s, _ := c.Find(c.Default)
	return s
}
