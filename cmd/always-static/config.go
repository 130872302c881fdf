package main

import (
	"fmt"
	"os"

	headerrules "github.com/always-cache/always-static/pkg/header-rules"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Root          string            `yaml:"root"`
	Port          int               `yaml:"port"`
	IndexFile     string            `yaml:"indexFile"`
	Preconditions bool              `yaml:"preconditions"`
	Workers       int               `yaml:"workers"`
	Provider      string            `yaml:"provider"`
	DB            string            `yaml:"db"`
	Precompress   bool              `yaml:"precompress"`
	Rules         headerrules.Rules `yaml:"rules"`
}

func defaultConfig() Config {
	return Config{
		Root:     ".",
		Port:     8080,
		Provider: "sqlite",
	}
}

func getConfig(filename string) (Config, error) {
	config := defaultConfig()
	if filename == "" {
		return config, nil
	}
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", filename, err)
	}
	return config, nil
}

func (c Config) validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port: invalid port %d", c.Port)
	}
	switch c.Provider {
	case "none", "memory", "sqlite", "leveldb":
	default:
		return fmt.Errorf("provider: unsupported provider %q", c.Provider)
	}
	for i, rule := range c.Rules {
		if rule.Default != "" && rule.Override != "" {
			return fmt.Errorf("rules[%d]: default and override are mutually exclusive", i)
		}
	}
	return nil
}

// dbFilename returns the store location for the provider.
// An empty result means an in-memory store.
func (c Config) dbFilename() string {
	switch {
	case c.DB == "memory":
		return ""
	case c.DB != "":
		return c.DB
	case c.Provider == "leveldb":
		return "etags.ldb"
	default:
		return "etags.db"
	}
}
