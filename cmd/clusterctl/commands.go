package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/console"
	"github.com/dreamware/clusterctl/internal/controlplane"
	"github.com/dreamware/clusterctl/internal/orchestrator"
	"github.com/dreamware/clusterctl/internal/topology"
)

// app carries what every subcommand shares.
type app struct {
	opts   options
	timing orchestrator.Config
	in     io.Reader
	out    io.Writer
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out, timing: orchestrator.DefaultConfig()}

	root := &cobra.Command{
		Use:           "clusterctl",
		Short:         "Operate the meta and data servers of the storage cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setupLogging(a.opts.logLevel); err != nil {
				return err
			}
			cfg, err := loadConfig(a.opts.config)
			if err != nil {
				return err
			}
			a.opts.merge(cmd.Flags(), cfg)
			a.timing = cfg.Timing
			switch a.opts.output {
			case "table", "json", "yaml":
				return nil
			}
			return errors.Newf("unknown output format %q", a.opts.output)
		},
	}
	a.opts.register(root.PersistentFlags())
	root.SetIn(in)
	root.SetOut(out)

	root.AddCommand(
		a.viewCommand(),
		a.healthCommand(),
		a.controlCommand(cluster.Start),
		a.controlCommand(cluster.Stop),
		a.controlCommand(cluster.Status),
		a.serveCommand(),
	)
	return root
}

// newSession builds a session against the configured endpoint and topology.
func (a *app) newSession(opts ...orchestrator.Option) (*orchestrator.Session, error) {
	catalog := topology.Default()
	if a.opts.topology != "" {
		var err error
		if catalog, err = topology.Load(a.opts.topology); err != nil {
			return nil, err
		}
	}
	client, err := controlplane.New(controlplane.Config{BaseURL: a.opts.endpoint, Timeout: a.opts.timeout})
	if err != nil {
		return nil, err
	}
	return orchestrator.NewSession(catalog, client, a.timing, opts...)
}

func (a *app) viewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Poll the cluster once and show every expected node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSession()
			if err != nil {
				return err
			}
			defer s.Stop()

			view, pollErr := s.Refresh(cmd.Context())
			if err := render(a.out, a.opts.output, view); err != nil {
				return err
			}
			return pollErr
		},
	}
}

func (a *app) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the control endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSession()
			if err != nil {
				return err
			}
			defer s.Stop()

			msg, err := s.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, msg)
			return nil
		},
	}
}

var controlShort = map[cluster.Action]string{
	cluster.Start:  "Start one node, or every node of a class in order",
	cluster.Stop:   "Stop one node, or every node of a class at once",
	cluster.Status: "Query the process status of one node or a class",
}

// controlCommand builds start, stop and status. With a node id one
// operation runs; without, the action runs as a batch over the class.
func (a *app) controlCommand(action cluster.Action) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   action.String() + " <meta|data> [id]",
		Short: controlShort[action],
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := cluster.ParseRoleClass(args[0])
			if err != nil {
				return err
			}
			s, err := a.newSession()
			if err != nil {
				return err
			}
			defer s.Stop()

			if len(args) == 2 {
				out, err := s.Execute(cmd.Context(), class, action, args[1])
				if err != nil {
					return err
				}
				return render(a.out, a.opts.output, out)
			}

			opts := orchestrator.BatchOptions{Confirm: promptConfirm(a.in, a.out)}
			if yes {
				opts.Confirm = orchestrator.AlwaysContinue
			}
			res, err := s.RunBatch(cmd.Context(), class, action, opts)
			if res != nil {
				if rerr := render(a.out, a.opts.output, res); rerr != nil {
					return rerr
				}
			}
			if err == nil && res.FailureCount > 0 {
				err = errors.Newf("%d of %d %s operations failed", res.FailureCount, len(res.Items), action)
			}
			return err
		},
	}
	if action == cluster.Start {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "continue after failed starts without asking")
	}
	return cmd
}

// promptConfirm asks on out and reads the answer from in. Anything but
// "y" or "yes", including end of input, aborts.
func promptConfirm(in io.Reader, out io.Writer) orchestrator.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, key orchestrator.OperationKey, err error) orchestrator.Decision {
		fmt.Fprintf(out, "%s failed: %v\ncontinue with the remaining nodes? [y/N] ", key, err)
		line, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return orchestrator.Continue
		default:
			return orchestrator.Abort
		}
	}
}

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the cluster continuously and serve the console API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			activity := console.NewActivityLog(0)
			s, err := a.newSession(orchestrator.WithListener(activity))
			if err != nil {
				return err
			}
			s.Start()
			defer s.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			plog.Noticef("console for %s on %s", a.opts.endpoint, a.opts.listen)
			return console.New(s, activity).Run(ctx, a.opts.listen)
		},
	}
	cmd.Flags().StringVar(&a.opts.listen, "listen", getenv("CLUSTERCTL_LISTEN", ":8080"), "console API listen address")
	return cmd
}
