package simcluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/storage"
	"github.com/dreamware/clusterctl/internal/topology"
)

func addresses(nodes []cluster.NodeInfo) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Address)
	}
	return out
}

func TestNewCluster(t *testing.T) {
	c := New(topology.Default(), Options{Stopped: []string{"localhost:9090", "localhost:8004"}})

	snap := c.Snapshot()
	require.NotNil(t, snap.MasterMeta)
	assert.Equal(t, "localhost:9091", snap.MasterMeta.Address)
	assert.Equal(t, []string{"localhost:9092"}, addresses(snap.SlaveMetas))
	assert.Equal(t, []string{"localhost:8001", "localhost:8002", "localhost:8003"}, addresses(snap.DataNodes))
	assert.Equal(t, 2, snap.TotalMeta)
	assert.Equal(t, 3, snap.TotalData)
	assert.Equal(t, int64(1024), snap.DataNodes[0].Capacity)
	assert.Equal(t, "Active", snap.DataNodes[0].Status)
}

// TestMasterFailover verifies promotion of the first slave and that a
// restarted server rejoins last.
func TestMasterFailover(t *testing.T) {
	c := New(topology.Default(), Options{})

	_, err := c.Stop(cluster.Meta, 9090)
	require.NoError(t, err)
	snap := c.Snapshot()
	assert.Equal(t, "localhost:9091", snap.MasterMeta.Address)
	assert.Equal(t, []string{"localhost:9092"}, addresses(snap.SlaveMetas))

	out, err := c.Start(cluster.Meta, 9090)
	require.NoError(t, err)
	assert.Equal(t, "meta server 9090 started", out)
	snap = c.Snapshot()
	assert.Equal(t, "localhost:9091", snap.MasterMeta.Address)
	assert.Equal(t, []string{"localhost:9092", "localhost:9090"}, addresses(snap.SlaveMetas))

	for _, port := range []int{9091, 9092, 9090} {
		_, err := c.Stop(cluster.Meta, port)
		require.NoError(t, err)
	}
	snap = c.Snapshot()
	assert.Nil(t, snap.MasterMeta)
	assert.Empty(t, snap.SlaveMetas)
	assert.Contains(t, c.Health(), "degraded")

	_, err = c.Start(cluster.Meta, 9092)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9092", c.Snapshot().MasterMeta.Address)
}

func TestControlErrors(t *testing.T) {
	c := New(topology.Default(), Options{Stopped: []string{"localhost:8002"}})

	tests := []struct {
		name    string
		run     func() (string, error)
		wantErr error
	}{
		{"unknown port", func() (string, error) { return c.Stop(cluster.Meta, 1) }, ErrUnknownServer},
		{"data port on meta", func() (string, error) { return c.Start(cluster.Meta, 8001) }, ErrUnknownServer},
		{"start running", func() (string, error) { return c.Start(cluster.Data, 8001) }, ErrAlreadyRunning},
		{"stop stopped", func() (string, error) { return c.Stop(cluster.Data, 8002) }, ErrNotRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestInjectedFailure(t *testing.T) {
	c := New(topology.Default(), Options{})

	require.NoError(t, c.InjectFailure(cluster.Data, 8003, "disk missing"))
	_, err := c.Stop(cluster.Data, 8003)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk missing")
	assert.Len(t, c.Snapshot().DataNodes, 4, "failed stop leaves the server running")

	require.NoError(t, c.ClearFailure(cluster.Data, 8003))
	_, err = c.Stop(cluster.Data, 8003)
	assert.NoError(t, err)

	assert.ErrorIs(t, c.InjectFailure(cluster.Meta, 1234, ""), ErrUnknownServer)
}

func TestStatus(t *testing.T) {
	c := New(topology.Default(), Options{Stopped: []string{"localhost:9092"}})

	out, err := c.Status(cluster.Meta, 0)
	require.NoError(t, err)
	assert.Equal(t,
		"meta server localhost:9090: running (master)\n"+
			"meta server localhost:9091: running (slave)\n"+
			"meta server localhost:9092: stopped", out)

	out, err = c.Status(cluster.Data, 8004)
	require.NoError(t, err)
	assert.Equal(t, "data server localhost:8004: running", out)

	_, err = c.Status(cluster.Data, 9)
	assert.ErrorIs(t, err, ErrUnknownServer)
}

func TestBlocks(t *testing.T) {
	c := New(topology.Default(), Options{DataCapacityMiB: 10, Stopped: []string{"localhost:8004"}})

	require.NoError(t, c.WriteBlock(8001, "a", 3<<20))
	require.NoError(t, c.WriteBlock(8001, "b", 1))
	assert.ErrorIs(t, c.WriteBlock(8001, "c", 10<<20), storage.ErrNoSpace)
	assert.ErrorIs(t, c.WriteBlock(8004, "a", 1), ErrNotRunning)

	n := c.Snapshot().DataNodes[0]
	assert.Equal(t, int64(10), n.Capacity)
	assert.Equal(t, int64(4), n.Used)
	assert.Equal(t, 2, n.BlockCount)

	require.NoError(t, c.DeleteBlock(8001, "a"))
	assert.Equal(t, int64(1), c.Snapshot().DataNodes[0].Used)
}
