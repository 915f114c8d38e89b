package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/controlplane"
	"github.com/dreamware/clusterctl/internal/topology"
)

type controlCall struct {
	class  cluster.RoleClass
	action cluster.Action
	port   int
}

// fakePlane is an in-memory ControlPlane. Control calls go through
// controlFn when set and succeed with "ok" otherwise.
type fakePlane struct {
	mu        sync.Mutex
	snap      *cluster.Snapshot
	snapErr   error
	snapCalls int
	controlFn func(ctx context.Context, class cluster.RoleClass, action cluster.Action, port int) (*controlplane.Reply, error)
	calls     []controlCall
}

func (f *fakePlane) Snapshot(ctx context.Context) (*cluster.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapCalls++
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	if f.snap == nil {
		return &cluster.Snapshot{}, nil
	}
	cp := *f.snap
	return &cp, nil
}

func (f *fakePlane) Health(ctx context.Context) (string, error) {
	return "ok", nil
}

func (f *fakePlane) Control(ctx context.Context, class cluster.RoleClass, action cluster.Action, port int) (*controlplane.Reply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, controlCall{class: class, action: action, port: port})
	fn := f.controlFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, class, action, port)
	}
	return &controlplane.Reply{RequestID: "req-" + strconv.Itoa(port), Output: "ok"}, nil
}

func (f *fakePlane) setSnapshot(s *cluster.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.snapErr = s, err
}

func (f *fakePlane) snapshotCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapCalls
}

func (f *fakePlane) controlCalls() []controlCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlCall(nil), f.calls...)
}

// testConfig keeps every delay short enough for unit tests.
func testConfig() Config {
	return Config{
		PollInterval:  time.Hour,
		SettleDelay:   10 * time.Millisecond,
		StartInterval: 5 * time.Millisecond,
		RefreshDelay:  10 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, plane *fakePlane, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(topology.Default(), plane, testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func node(addr string) cluster.NodeInfo {
	return cluster.NodeInfo{Address: addr, Status: "Active"}
}

func dataNode(addr string, capacity, used int64, blocks int) cluster.NodeInfo {
	return cluster.NodeInfo{Address: addr, Status: "Active", Capacity: capacity, Used: used, BlockCount: blocks}
}

// recordingListener records listener callbacks.
type recordingListener struct {
	mu      sync.Mutex
	started []OperationKey
	settled []OperationKey
	errs    []error
}

func (r *recordingListener) OperationStarted(key OperationKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, key)
}

func (r *recordingListener) OperationSettled(key OperationKey, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, key)
	r.errs = append(r.errs, err)
}
