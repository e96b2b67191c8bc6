package main

import (
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Origin   string   `yaml:"origin" env:"EDGE_ORIGIN"`
	Version  string   `yaml:"version" env:"EDGE_VERSION"`
	DB       string   `yaml:"db" env:"EDGE_DB"`
	Precache []string `yaml:"precache"`

	APIPrefixes    []string `yaml:"apiPrefixes"`
	AnalyticsHosts []string `yaml:"analyticsHosts"`
	ExternalHosts  []string `yaml:"externalHosts"`

	SubmissionEndpoints map[string]string `yaml:"submissionEndpoints"`
}

// getConfig reads the optional YAML config file and overlays
// environment variables on top of it.
func getConfig(filename string) (Config, error) {
	var config Config
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(configBytes, &config); err != nil {
			return config, err
		}
	}
	err := env.Parse(&config)
	return config, err
}
