// Command simcluster serves an in-memory storage cluster behind the same
// control endpoints as the real one, for demos and trying out clusterctl.
//
// Configuration:
//   - SIMCLUSTER_ADDR: listen address (default ":9000")
//
// Example usage:
//
//	# cluster with meta 1 down and a slow control plane
//	simcluster --stopped localhost:9090 --latency 500ms
//
//	# make data 3 refuse to stop
//	curl -X PUT localhost:9000/sim/fail/data/8003 -d '{"msg":"disk busy"}'
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/pkg/capnslog"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/dreamware/clusterctl/internal/simcluster"
	"github.com/dreamware/clusterctl/internal/topology"
)

var plog = capnslog.NewPackageLogger("github.com/dreamware/clusterctl", "simcluster-main")

type options struct {
	listen   string
	topology string
	capacity int64
	latency  time.Duration
	stopped  []string
	logLevel string
}

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:          "simcluster",
		Short:        "Serve a simulated storage cluster control plane",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, o)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&o.listen, "listen", getenv("SIMCLUSTER_ADDR", ":9000"), "listen address")
	fs.StringVar(&o.topology, "topology", "", "topology YAML file (default: built-in 3 meta + 4 data on localhost)")
	fs.Int64Var(&o.capacity, "capacity", 1024, "capacity of each data server in MB")
	fs.DurationVar(&o.latency, "latency", 0, "delay of every start and stop")
	fs.StringSliceVar(&o.stopped, "stopped", nil, "addresses of servers that start stopped")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")
	return cmd
}

func run(ctx context.Context, o options) error {
	lvl, err := capnslog.ParseLevel(strings.ToUpper(o.logLevel))
	if err != nil {
		return err
	}
	capnslog.SetFormatter(capnslog.NewPrettyFormatter(os.Stderr, false))
	capnslog.MustRepoLogger("github.com/dreamware/clusterctl").SetRepoLogLevel(lvl)

	catalog := topology.Default()
	if o.topology != "" {
		if catalog, err = topology.Load(o.topology); err != nil {
			return err
		}
	}

	gin.SetMode(gin.ReleaseMode)
	sim := simcluster.New(catalog, simcluster.Options{
		DataCapacityMiB: o.capacity,
		Latency:         o.latency,
		Stopped:         o.stopped,
	})

	srv := &http.Server{
		Addr:              o.listen,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		plog.Infof("simulated cluster listening on %s", o.listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return errors.Wrapf(err, "listen on %s", o.listen)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		plog.Warningf("shutdown: %v", err)
	}
	plog.Infof("simulated cluster stopped")
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
