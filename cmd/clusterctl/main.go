// Command clusterctl is the operator console of the storage cluster.
//
// It reconciles the configured topology with what the control endpoint
// reports and starts, stops or queries meta and data servers, one at a time
// or as a batch. It runs either as a one-shot CLI or as a long-lived console
// API (serve).
//
//	┌────────────┐      ┌──────────────────────┐      ┌─────────────────┐
//	│ clusterctl │ ───▶ │ orchestrator.Session │ ───▶ │ control endpoint│
//	│  (cobra)   │      │  poll, reconcile,    │ HTTP │ /api/fs/...     │
//	└────────────┘      │  dispatch, batches   │      └─────────────────┘
//	      │             └──────────────────────┘
//	      └── serve ──▶ console API (gin) on --listen
//
// Configuration (flags override the config file, which overrides the
// environment):
//   - CLUSTERCTL_ENDPOINT: control endpoint URL (default "http://localhost:9000")
//   - CLUSTERCTL_LISTEN: console listen address for serve (default ":8080")
//
// Example usage:
//
//	clusterctl view
//	clusterctl stop data 3
//	clusterctl start meta --yes
//	clusterctl serve --listen :8080 --topology topology.yaml
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/coreos/pkg/capnslog"
)

var plog = capnslog.NewPackageLogger("github.com/dreamware/clusterctl", "clusterctl")

func main() {
	if err := newRootCommand(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// setupLogging sends every package logger of the repo to stderr at level.
func setupLogging(level string) error {
	lvl, err := capnslog.ParseLevel(strings.ToUpper(level))
	if err != nil {
		return err
	}
	capnslog.SetFormatter(capnslog.NewPrettyFormatter(os.Stderr, false))
	capnslog.MustRepoLogger("github.com/dreamware/clusterctl").SetRepoLogLevel(lvl)
	return nil
}
