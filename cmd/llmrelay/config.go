package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scriptloom/llmrelay/pkg/provider"
)

// fileConfig is the YAML layout accepted by --config. Credentials may name
// an environment variable instead of carrying the secret inline.
//
//	providers:
//	  - identity: openai_compatible
//	    api_key_env: OPENAI_API_KEY
//	    base_url: https://api.openai.com/v1
//	    rpm: 60
type fileConfig struct {
	Providers []struct {
		Identity     string            `yaml:"identity"`
		APIKey       string            `yaml:"api_key"`
		APIKeyEnv    string            `yaml:"api_key_env"`
		BaseURL      string            `yaml:"base_url"`
		Headers      map[string]string `yaml:"headers"`
		TimeoutSecs  int               `yaml:"timeout_seconds"`
		RPM          int               `yaml:"rpm"`
		SingleFlight bool              `yaml:"single_flight"`
	} `yaml:"providers"`
}

func loadConfigFile(path string) ([]provider.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	configs := make([]provider.Config, 0, len(fc.Providers))
	for i, p := range fc.Providers {
		if p.Identity == "" {
			return nil, fmt.Errorf("provider %d: identity is required", i)
		}
		key := p.APIKey
		if key == "" && p.APIKeyEnv != "" {
			key = os.Getenv(p.APIKeyEnv)
		}
		configs = append(configs, provider.Config{
			Identity:     provider.Identity(p.Identity),
			APIKey:       key,
			BaseURL:      p.BaseURL,
			Headers:      p.Headers,
			Timeout:      time.Duration(p.TimeoutSecs) * time.Second,
			RPM:          p.RPM,
			SingleFlight: p.SingleFlight,
		})
	}
	return configs, nil
}
