package orchestrator

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/topology"
)

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession(nil, &fakePlane{}, testConfig())
	assert.Error(t, err)

	_, err = NewSession(topology.Default(), nil, testConfig())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.PollInterval = 0
	_, err = NewSession(topology.Default(), &fakePlane{}, cfg)
	assert.Error(t, err)
}

// TestSessionInitialView verifies a fresh session reports positional roles
// without contacting the cluster.
func TestSessionInitialView(t *testing.T) {
	plane := &fakePlane{}
	s := newTestSession(t, plane)

	v := s.View()
	require.NotNil(t, v)
	assert.Equal(t, uint64(0), v.Seq)
	assert.Len(t, v.Meta, 3)
	assert.Len(t, v.Data, 4)
	assert.Equal(t, "Master", v.Meta[0].Role)
	assert.False(t, v.Summary.Healthy)
	assert.Equal(t, 0, plane.snapshotCalls())
}

// TestSessionRefresh verifies a poll is reconciled into a new view and
// handed to the view handler.
func TestSessionRefresh(t *testing.T) {
	plane := &fakePlane{}
	plane.setSnapshot(&cluster.Snapshot{
		MasterMeta: &cluster.NodeInfo{Address: "localhost:9091"},
		SlaveMetas: []cluster.NodeInfo{node("localhost:9090")},
		DataNodes:  []cluster.NodeInfo{dataNode("localhost:8001", 100, 10, 2)},
	}, nil)

	var seen []*ClusterView
	s := newTestSession(t, plane, WithViewHandler(func(v *ClusterView) { seen = append(seen, v) }))

	v, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Seq)
	assert.Same(t, v, s.View())
	assert.Equal(t, []*ClusterView{v}, seen)

	m, ok := v.Node(cluster.Meta, "2")
	require.True(t, ok)
	assert.True(t, m.IsMaster)
	assert.True(t, v.Summary.Healthy)
	assert.Empty(t, v.PollError)

	d, err := s.DataNodeDetail("1")
	require.NoError(t, err)
	assert.Equal(t, int64(90), d.Free)

	_, err = s.DataNodeDetail("4")
	assert.ErrorIs(t, err, ErrNodeOffline)
	_, err = s.DataNodeDetail("9")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

// TestSessionFailedPollKeepsRoles verifies a failed poll marks every node
// down while keeping roles from the cache.
func TestSessionFailedPollKeepsRoles(t *testing.T) {
	plane := &fakePlane{}
	plane.setSnapshot(&cluster.Snapshot{
		MasterMeta: &cluster.NodeInfo{Address: "localhost:9092"},
		SlaveMetas: []cluster.NodeInfo{node("localhost:9090"), node("localhost:9091")},
	}, nil)
	s := newTestSession(t, plane)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	plane.setSnapshot(nil, errors.Mark(errors.New("connection refused"), cluster.ErrTransport))
	v, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, cluster.ErrTransport)
	require.NotNil(t, v)
	assert.Equal(t, uint64(2), v.Seq)
	assert.Contains(t, v.PollError, "connection refused")

	for _, n := range v.Meta {
		assert.False(t, n.Running)
		assert.True(t, n.UsedCachedRole)
	}
	assert.Equal(t, "Slave 1", v.Meta[0].Role)
	assert.Equal(t, "Slave 2", v.Meta[1].Role)
	assert.Equal(t, "Master", v.Meta[2].Role)
	assert.False(t, v.Summary.Healthy)
}

// TestSessionStartPolls verifies Start polls immediately and Stop is safe to
// repeat.
func TestSessionStartPolls(t *testing.T) {
	plane := &fakePlane{}
	s := newTestSession(t, plane)

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return s.View().Seq == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, plane.snapshotCalls())
}

// TestSessionConcurrentRefresh verifies concurrent polls each apply exactly
// once.
func TestSessionConcurrentRefresh(t *testing.T) {
	plane := &fakePlane{}
	s := newTestSession(t, plane)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Refresh(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(16), s.View().Seq)
}

// TestSessionsAreIsolated verifies role caches are per session.
func TestSessionsAreIsolated(t *testing.T) {
	plane := &fakePlane{}
	plane.setSnapshot(&cluster.Snapshot{MasterMeta: &cluster.NodeInfo{Address: "localhost:9091"}}, nil)

	a := newTestSession(t, plane)
	b := newTestSession(t, plane)

	_, err := a.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, a.RoleCache().Len())
	assert.Equal(t, 0, b.RoleCache().Len())
}

func TestSessionMetrics(t *testing.T) {
	plane := &fakePlane{}
	plane.setSnapshot(&cluster.Snapshot{
		MasterMeta: &cluster.NodeInfo{Address: "localhost:9090"},
		DataNodes:  []cluster.NodeInfo{dataNode("localhost:8001", 1, 0, 0)},
	}, nil)
	s := newTestSession(t, plane)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	_, err = s.Execute(context.Background(), cluster.Data, cluster.Status, "1")
	require.NoError(t, err)

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, "clusterctl_polls_total 1")
	assert.Contains(t, out, `clusterctl_nodes_online{class="meta"} 1`)
	assert.Contains(t, out, "clusterctl_healthy 1")
	assert.Contains(t, out, `clusterctl_operations_total{class="data",action="status",result="ok"} 1`)
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.Mark(errors.New("dial"), cluster.ErrTransport), "transport"},
		{errors.Wrap(cluster.ErrDecode, "bad json"), "decode"},
		{errors.Wrap(&cluster.RemoteError{Code: 500}, "stop"), "remote"},
		{ErrDuplicateOperation, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resultLabel(tt.err))
	}
}
