package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/clusterctl/internal/orchestrator"
)

// render writes v in format. Tables exist for views, outcomes and batch
// results; json and yaml work for any value.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode json")
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch v := v.(type) {
	case *orchestrator.ClusterView:
		renderView(tw, v)
	case *orchestrator.Outcome:
		fmt.Fprintf(tw, "%s\tok\t%s\n", v.Key, v.Output)
	case *orchestrator.BatchResult:
		renderBatch(tw, v)
	default:
		return errors.Newf("no table format for %T", v)
	}
	return tw.Flush()
}

func renderView(w io.Writer, v *orchestrator.ClusterView) {
	fmt.Fprintln(w, "CLASS\tID\tADDRESS\tSTATE\tROLE")
	for _, n := range v.Meta {
		role := n.Role
		if n.UsedCachedRole {
			role += " (last seen)"
		}
		fmt.Fprintf(w, "meta\t%s\t%s\t%s\t%s\n", n.Expected.LogicalID, n.Expected.Address(), state(n.Running), role)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CLASS\tID\tADDRESS\tSTATE\tCAPACITY\tUSED\tBLOCKS")
	for _, n := range v.Data {
		if n.Observed == nil {
			fmt.Fprintf(w, "data\t%s\t%s\t%s\t-\t-\t-\n", n.Expected.LogicalID, n.Expected.Address(), state(n.Running))
			continue
		}
		fmt.Fprintf(w, "data\t%s\t%s\t%s\t%d MB\t%d MB\t%d\n", n.Expected.LogicalID, n.Expected.Address(),
			state(n.Running), n.Observed.Capacity, n.Observed.Used, n.Observed.BlockCount)
	}
	fmt.Fprintln(w)

	s := v.Summary
	health := "unhealthy"
	if s.Healthy {
		health = "healthy"
	}
	usage := "unknown"
	if s.StorageKnown {
		usage = fmt.Sprintf("%.1f%%", s.StorageUsage)
	}
	fmt.Fprintf(w, "meta %d/%d online, data %d/%d online, %s, storage used %s\n",
		s.MetaOnline, s.MetaTotal, s.DataOnline, s.DataTotal, health, usage)
	if v.PollError != "" {
		fmt.Fprintf(w, "poll failed: %s\n", v.PollError)
	}
}

func renderBatch(w io.Writer, r *orchestrator.BatchResult) {
	fmt.Fprintln(w, "ID\tRESULT\tDETAIL")
	for _, item := range r.Items {
		if item.Success {
			fmt.Fprintf(w, "%s\tok\t%s\n", item.LogicalID, item.Output)
		} else {
			fmt.Fprintf(w, "%s\tfailed\t%s\n", item.LogicalID, item.Reason)
		}
	}
	fmt.Fprintf(w, "%s %s: %d ok, %d failed", r.Action, r.Class, r.SuccessCount, r.FailureCount)
	if r.Aborted {
		fmt.Fprint(w, ", aborted")
	}
	fmt.Fprintln(w)
}

func state(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
