package orchestrator

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"

	"github.com/dreamware/clusterctl/internal/cluster"
)

// sessionMetrics owns a private metrics set, so several sessions in one
// process never share counters.
type sessionMetrics struct {
	set          *metrics.Set
	polls        *metrics.Counter
	pollFailures *metrics.Counter
	batches      *metrics.Counter
	batchAborts  *metrics.Counter
	duplicates   *metrics.Counter
}

func newSessionMetrics() *sessionMetrics {
	set := metrics.NewSet()
	return &sessionMetrics{
		set:          set,
		polls:        set.NewCounter("clusterctl_polls_total"),
		pollFailures: set.NewCounter("clusterctl_poll_failures_total"),
		batches:      set.NewCounter("clusterctl_batches_total"),
		batchAborts:  set.NewCounter("clusterctl_batch_aborts_total"),
		duplicates:   set.NewCounter("clusterctl_duplicate_operations_total"),
	}
}

// registerViewGauges exposes online counts of the latest view.
func (m *sessionMetrics) registerViewGauges(view func() *ClusterView) {
	for _, class := range cluster.RoleClasses {
		class := class
		name := fmt.Sprintf(`clusterctl_nodes_online{class=%q}`, class)
		m.set.NewGauge(name, func() float64 {
			s := view().Summary
			if class == cluster.Meta {
				return float64(s.MetaOnline)
			}
			return float64(s.DataOnline)
		})
	}
	m.set.NewGauge("clusterctl_healthy", func() float64 {
		if view().Summary.Healthy {
			return 1
		}
		return 0
	})
}

func (m *sessionMetrics) polled(err error) {
	m.polls.Inc()
	if err != nil {
		m.pollFailures.Inc()
	}
}

func (m *sessionMetrics) duplicate(OperationKey) {
	m.duplicates.Inc()
}

func (m *sessionMetrics) dispatched(key OperationKey, err error, took time.Duration) {
	label := fmt.Sprintf(`{class=%q,action=%q,result=%q}`, key.Class, key.Action, resultLabel(err))
	m.set.GetOrCreateCounter("clusterctl_operations_total" + label).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`clusterctl_operation_duration_seconds{action=%q}`, key.Action)).UpdateDuration(time.Now().Add(-took))
}

func (m *sessionMetrics) batched(res *BatchResult) {
	m.batches.Inc()
	if res.Aborted {
		m.batchAborts.Inc()
	}
}

// resultLabel classifies an operation error for metric labels.
func resultLabel(err error) string {
	var remote *cluster.RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, cluster.ErrTransport):
		return "transport"
	case errors.Is(err, cluster.ErrDecode):
		return "decode"
	case errors.As(err, &remote):
		return "remote"
	default:
		return "error"
	}
}
