package orchestrator

import (
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/topology"
)

// RoleMaster is the role of the meta node currently acting as primary.
const RoleMaster = "Master"

// SlaveRole returns the label of the k-th (1-based) standby meta node.
func SlaveRole(k int) string {
	return "Slave " + strconv.Itoa(k)
}

// NodeView is the reconciled, display- and control-ready state of one
// expected node. It is derived on every poll and never stored on its own.
type NodeView struct {
	Expected topology.ExpectedNode `json:"expected"`
	Running  bool                  `json:"running"`
	// Role is "Master" or "Slave k" for meta nodes and empty for data nodes.
	Role     string `json:"role,omitempty"`
	IsMaster bool   `json:"isMaster"`
	// UsedCachedRole is set when the node is not running and Role comes
	// from the last confirmed observation rather than the snapshot.
	UsedCachedRole bool `json:"usedCachedRole"`
	// Observed is the snapshot entry for a running node; nil otherwise.
	Observed *cluster.NodeInfo `json:"observed,omitempty"`
}

// Reconcile merges the catalog, a snapshot and the role cache into one view
// per expected node: meta nodes first, then data nodes, each in catalog
// order. Roles of running meta nodes are recorded into cache.
//
// Reconcile never fails. A nil snapshot, or one missing a class, reports
// the affected nodes as not running.
//
// For a meta node E at catalog index i:
//  1. E is the snapshot master: running, "Master".
//  2. E is the k-th entry of the snapshot slave list: running, "Slave k".
//     Numbering follows the current list and is recomputed every poll.
//  3. Otherwise E is not running. Its cached role is reused if present;
//     else index 0 defaults to "Master" and index i to "Slave i".
//
// Data nodes carry no role. Their capacity figures come only from the
// current snapshot and are never cached.
func Reconcile(catalog *topology.Catalog, snap *cluster.Snapshot, cache *RoleCache) []NodeView {
	if snap == nil {
		snap = &cluster.Snapshot{}
	}
	views := make([]NodeView, 0, catalog.Size(cluster.Meta)+catalog.Size(cluster.Data))
	views = append(views, reconcileMeta(catalog.Nodes(cluster.Meta), snap, cache)...)
	views = append(views, reconcileData(catalog.Nodes(cluster.Data), snap)...)
	return views
}

func reconcileMeta(expected []topology.ExpectedNode, snap *cluster.Snapshot, cache *RoleCache) []NodeView {
	match := matcher(expected)
	views := make([]NodeView, 0, len(expected))
	for i, e := range expected {
		v := NodeView{Expected: e}
		if snap.MasterMeta != nil && match(e, *snap.MasterMeta) {
			observed := *snap.MasterMeta
			v.Running, v.Role, v.IsMaster, v.Observed = true, RoleMaster, true, &observed
		} else if k := slices.IndexFunc(snap.SlaveMetas, func(n cluster.NodeInfo) bool { return match(e, n) }); k >= 0 {
			observed := snap.SlaveMetas[k]
			v.Running, v.Role, v.IsMaster, v.Observed = true, SlaveRole(k+1), false, &observed
		}

		if v.Running {
			cache.Record(e.Address(), v.Role, v.IsMaster)
		} else if cached, ok := cache.Lookup(e.Address()); ok {
			v.Role, v.IsMaster, v.UsedCachedRole = cached.Role, cached.IsMaster, true
		} else if i == 0 {
			v.Role, v.IsMaster = RoleMaster, true
		} else {
			v.Role = SlaveRole(i)
		}
		views = append(views, v)
	}
	return views
}

func reconcileData(expected []topology.ExpectedNode, snap *cluster.Snapshot) []NodeView {
	match := matcher(expected)
	views := make([]NodeView, 0, len(expected))
	for _, e := range expected {
		v := NodeView{Expected: e}
		if k := slices.IndexFunc(snap.DataNodes, func(n cluster.NodeInfo) bool { return match(e, n) }); k >= 0 {
			observed := snap.DataNodes[k]
			v.Running, v.Observed = true, &observed
		}
		views = append(views, v)
	}
	return views
}

// matcher returns the predicate deciding whether an observed node is the
// expected one. An exact address match always wins. Servers often report a
// different host spelling than the catalog ("127.0.0.1" vs "localhost"), so
// when a port is used by a single slot of the class the port alone is
// enough.
func matcher(expected []topology.ExpectedNode) func(topology.ExpectedNode, cluster.NodeInfo) bool {
	ports := make(map[int]int, len(expected))
	for _, e := range expected {
		ports[e.Port]++
	}
	return func(e topology.ExpectedNode, n cluster.NodeInfo) bool {
		if n.Addr() == e.Address() {
			return true
		}
		return ports[e.Port] == 1 && n.PortNumber() == e.Port
	}
}

// Summary aggregates a reconciliation for the overview.
type Summary struct {
	MetaOnline int  `json:"metaOnline"`
	MetaTotal  int  `json:"metaTotal"`
	DataOnline int  `json:"dataOnline"`
	DataTotal  int  `json:"dataTotal"`
	Healthy    bool `json:"healthy"`
	// StorageUsage is the used share of data-node capacity, in percent.
	// It is only meaningful when StorageKnown is set.
	StorageUsage float64 `json:"storageUsage"`
	StorageKnown bool    `json:"storageKnown"`
}

// Summarize counts running nodes per class and computes storage usage over
// every reported data node with a positive capacity. The cluster is healthy
// only when each class has at least one running node.
func Summarize(views []NodeView, snap *cluster.Snapshot) Summary {
	var s Summary
	for _, v := range views {
		switch v.Expected.Class {
		case cluster.Meta:
			s.MetaTotal++
			if v.Running {
				s.MetaOnline++
			}
		case cluster.Data:
			s.DataTotal++
			if v.Running {
				s.DataOnline++
			}
		}
	}
	s.Healthy = s.MetaOnline > 0 && s.DataOnline > 0

	if snap != nil {
		var capacity, used int64
		for _, n := range snap.DataNodes {
			if n.Capacity > 0 {
				capacity += n.Capacity
				used += n.Used
			}
		}
		if capacity > 0 {
			s.StorageKnown = true
			s.StorageUsage = float64(used) * 100 / float64(capacity)
		}
	}
	return s
}

// DataNodeDetail is the storage breakdown of a running data node. Sizes are
// in MiB.
type DataNodeDetail struct {
	LogicalID    string  `json:"id"`
	Address      string  `json:"address"`
	Capacity     int64   `json:"capacity"`
	Used         int64   `json:"used"`
	Free         int64   `json:"free"`
	UsagePercent float64 `json:"usagePercent"`
	BlockCount   int     `json:"blockCount"`
	// AvgBlockBytes is the mean block size in bytes, zero without blocks.
	AvgBlockBytes int64 `json:"avgBlockBytes"`
}

// NewDataNodeDetail builds the detail of a data node view. It returns
// ErrNodeOffline when the node is not running.
func NewDataNodeDetail(v NodeView) (*DataNodeDetail, error) {
	if !v.Running || v.Observed == nil {
		return nil, ErrNodeOffline
	}
	o := v.Observed
	d := &DataNodeDetail{
		LogicalID:  v.Expected.LogicalID,
		Address:    v.Expected.Address(),
		Capacity:   o.Capacity,
		Used:       o.Used,
		Free:       o.Capacity - o.Used,
		BlockCount: o.BlockCount,
	}
	if o.Capacity > 0 {
		d.UsagePercent = float64(o.Used) * 100 / float64(o.Capacity)
	}
	if o.BlockCount > 0 {
		d.AvgBlockBytes = o.Used * 1024 * 1024 / int64(o.BlockCount)
	}
	return d, nil
}
