package orchestrator

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/pkg/capnslog"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/topology"
)

var plog = capnslog.NewPackageLogger("github.com/dreamware/clusterctl", "orchestrator")

// ClusterView is the reconciled state of the cluster after one poll.
type ClusterView struct {
	// Seq increases by one for every applied poll. The initial view, built
	// before any poll, has Seq 0.
	Seq       uint64     `json:"seq"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Meta      []NodeView `json:"meta"`
	Data      []NodeView `json:"data"`
	Summary   Summary    `json:"summary"`
	// PollError is set when the poll producing this view failed; nodes are
	// then reported from cached or default roles.
	PollError string `json:"pollError,omitempty"`
}

// Node returns the view of the node of class with the given logical id.
func (v *ClusterView) Node(class cluster.RoleClass, logicalID string) (NodeView, bool) {
	nodes := v.Meta
	if class == cluster.Data {
		nodes = v.Data
	}
	for _, n := range nodes {
		if n.Expected.LogicalID == logicalID {
			return n, true
		}
	}
	return NodeView{}, false
}

// Option configures a Session.
type Option func(*Session)

// WithListener installs the listener told about operation start and
// settlement.
func WithListener(l OperationListener) Option {
	return func(s *Session) { s.listener = l }
}

// WithViewHandler installs a callback invoked after every applied poll,
// typically to re-render.
func WithViewHandler(f func(*ClusterView)) Option {
	return func(s *Session) { s.onView = f }
}

// Session is one orchestrator instance. It owns the role cache, the set of
// in-flight operations, the poller and the latest view; nothing is shared
// between sessions. Create it at the start of a console session and Stop it
// at teardown.
type Session struct {
	cfg        Config
	catalog    *topology.Catalog
	plane      ControlPlane
	cache      *RoleCache
	inflight   *inflightSet
	listener   OperationListener
	onView     func(*ClusterView)
	metrics    *sessionMetrics
	dispatcher *Dispatcher
	batches    *BatchRunner
	poller     *Poller

	mu   sync.RWMutex // protects view and seq; serializes reconciliation
	view *ClusterView
	seq  uint64
}

// NewSession creates a session. It does not contact the cluster until
// Start or Refresh is called.
func NewSession(catalog *topology.Catalog, plane ControlPlane, cfg Config, opts ...Option) (*Session, error) {
	if catalog == nil || plane == nil {
		return nil, errors.New("catalog and control plane are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:      cfg,
		catalog:  catalog,
		plane:    plane,
		cache:    NewRoleCache(),
		inflight: newInflightSet(),
		listener: nopListener{},
		metrics:  newSessionMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.poller = NewPoller(cfg.PollInterval, func(ctx context.Context) {
		if _, err := s.Refresh(ctx); err != nil {
			plog.Warningf("poll failed: %v", err)
		}
	})
	s.dispatcher = &Dispatcher{
		catalog:     catalog,
		plane:       plane,
		inflight:    s.inflight,
		listener:    s.listener,
		metrics:     s.metrics,
		schedule:    s.schedulePoll,
		settleDelay: cfg.SettleDelay,
	}
	s.batches = &BatchRunner{
		catalog:    catalog,
		dispatcher: s.dispatcher,
		metrics:    s.metrics,
		schedule:   s.schedulePoll,
		cfg:        cfg,
		sleep:      sleepContext,
	}
	s.view = s.buildView(nil, nil)
	s.metrics.registerViewGauges(s.View)
	return s, nil
}

// Start begins periodic polling. Calling it again has no effect.
func (s *Session) Start() {
	s.poller.Start()
}

// Stop ends polling and cancels pending delayed polls. Operations already
// dispatched still settle and release their keys.
func (s *Session) Stop() {
	s.poller.Stop()
}

func (s *Session) schedulePoll(d time.Duration) {
	if !s.poller.TriggerAfter(d) {
		plog.Debugf("session stopped, delayed poll dropped")
	}
}

// Refresh polls the cluster once and applies the result. A failed poll is
// still applied: every node then reports as not running with its cached or
// default role, and the error is returned alongside the view.
//
// Results are applied in the order they arrive, not the order the polls
// were issued; the last applied poll wins.
func (s *Session) Refresh(ctx context.Context) (*ClusterView, error) {
	snap, err := s.plane.Snapshot(ctx)
	s.metrics.polled(err)
	if err != nil {
		snap = nil
	}

	s.mu.Lock()
	view := s.buildView(snap, err)
	s.seq++
	view.Seq = s.seq
	s.view = view
	s.mu.Unlock()

	if s.onView != nil {
		s.onView(view)
	}
	return view, err
}

func (s *Session) buildView(snap *cluster.Snapshot, pollErr error) *ClusterView {
	views := Reconcile(s.catalog, snap, s.cache)
	v := &ClusterView{
		UpdatedAt: time.Now(),
		Summary:   Summarize(views, snap),
	}
	for _, nv := range views {
		if nv.Expected.Class == cluster.Meta {
			v.Meta = append(v.Meta, nv)
		} else {
			v.Data = append(v.Data, nv)
		}
	}
	if pollErr != nil {
		v.PollError = pollErr.Error()
	}
	return v
}

// View returns the latest applied view. It is never nil.
func (s *Session) View() *ClusterView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Health checks the control endpoint.
func (s *Session) Health(ctx context.Context) (string, error) {
	return s.plane.Health(ctx)
}

// Execute runs one control operation. See Dispatcher.Execute.
func (s *Session) Execute(ctx context.Context, class cluster.RoleClass, action cluster.Action, logicalID string) (*Outcome, error) {
	return s.dispatcher.Execute(ctx, class, action, logicalID)
}

// RunBatch runs action across class. See BatchRunner.Run.
func (s *Session) RunBatch(ctx context.Context, class cluster.RoleClass, action cluster.Action, opts BatchOptions) (*BatchResult, error) {
	return s.batches.Run(ctx, class, action, opts)
}

// InFlight returns the operations currently pending.
func (s *Session) InFlight() []OperationKey {
	return s.inflight.list()
}

// DataNodeDetail returns the storage breakdown of a running data node from
// the latest view.
func (s *Session) DataNodeDetail(logicalID string) (*DataNodeDetail, error) {
	v, ok := s.View().Node(cluster.Data, logicalID)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "data %s", logicalID)
	}
	return NewDataNodeDetail(v)
}

// Catalog returns the expected topology.
func (s *Session) Catalog() *topology.Catalog {
	return s.catalog
}

// RoleCache exposes the session's role cache for inspection.
func (s *Session) RoleCache() *RoleCache {
	return s.cache
}

// WriteMetrics writes the session metrics in Prometheus text format.
func (s *Session) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
