package main

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/clusterctl/internal/orchestrator"
)

// fileConfig is the optional YAML configuration file:
//
//	endpoint: http://minfs-web:9000
//	listen: :8080
//	timeout: 5s
//	topology: /etc/clusterctl/topology.yaml
//	timing:
//	  pollInterval: 30s
//	  settleDelay: 2s
//	  startInterval: 2s
//	  refreshDelay: 3s
type fileConfig struct {
	Endpoint string              `yaml:"endpoint"`
	Listen   string              `yaml:"listen"`
	Timeout  time.Duration       `yaml:"timeout"`
	Topology string              `yaml:"topology"`
	Timing   orchestrator.Config `yaml:"timing"`
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := fileConfig{Timing: orchestrator.DefaultConfig()}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Timing.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// options are the global flags.
type options struct {
	endpoint string
	listen   string
	topology string
	config   string
	logLevel string
	output   string
	timeout  time.Duration
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.endpoint, "endpoint", getenv("CLUSTERCTL_ENDPOINT", "http://localhost:9000"), "control endpoint URL")
	fs.StringVar(&o.topology, "topology", "", "topology YAML file (default: built-in 3 meta + 4 data on localhost)")
	fs.StringVarP(&o.config, "config", "c", "", "YAML configuration file")
	fs.StringVar(&o.logLevel, "log-level", "warning", "log level (debug, info, notice, warning, error)")
	fs.StringVarP(&o.output, "output", "o", "table", "output format (table, json, yaml)")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Second, "timeout of each control endpoint request")
}

// merge fills options the user did not set on the command line from the
// config file.
func (o *options) merge(fs *pflag.FlagSet, cfg fileConfig) {
	if cfg.Endpoint != "" && !fs.Changed("endpoint") {
		o.endpoint = cfg.Endpoint
	}
	if cfg.Listen != "" && !fs.Changed("listen") {
		o.listen = cfg.Listen
	}
	if cfg.Topology != "" && !fs.Changed("topology") {
		o.topology = cfg.Topology
	}
	if cfg.Timeout != 0 && !fs.Changed("timeout") {
		o.timeout = cfg.Timeout
	}
}
