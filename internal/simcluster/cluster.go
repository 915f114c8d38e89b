package simcluster

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/coreos/pkg/capnslog"
	"golang.org/x/exp/slices"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/storage"
	"github.com/dreamware/clusterctl/internal/topology"
)

var plog = capnslog.NewPackageLogger("github.com/dreamware/clusterctl", "simcluster")

var (
	// ErrUnknownServer is returned for a port that no server of the class
	// listens on.
	ErrUnknownServer = errors.New("unknown server")
	// ErrAlreadyRunning is returned when starting a running server.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned when stopping, or writing to, a stopped
	// server.
	ErrNotRunning = errors.New("server not running")
)

// Options tunes a simulated cluster.
type Options struct {
	// DataCapacityMiB is the capacity of every data server. Zero means
	// 1024.
	DataCapacityMiB int64
	// Latency delays every start and stop, imitating process startup.
	Latency time.Duration
	// Stopped lists addresses of servers that begin stopped.
	Stopped []string
}

type server struct {
	class    cluster.RoleClass
	expected topology.ExpectedNode
	running  bool
	store    *storage.MemoryStore // data servers only
	failure  string               // injected control failure, if any
}

func (s *server) info() cluster.NodeInfo {
	status := "Inactive"
	if s.running {
		status = "Active"
	}
	n := cluster.NodeInfo{
		Address: s.expected.Address(),
		Host:    s.expected.Host,
		Port:    s.expected.Port,
		Status:  status,
	}
	if s.store != nil {
		st := s.store.Stats()
		n.Capacity, n.Used, n.BlockCount = st.CapacityMiB(), st.UsedMiB(), st.Blocks
	}
	return n
}

// Cluster is an in-memory stand-in for the storage cluster's control plane.
//
// Meta servers replicate as one master and an ordered list of slaves. A
// started meta server becomes master when there is none and otherwise joins
// the end of the slave list. Stopping the master promotes the first slave,
// so slave numbering shifts the way a real failover does.
//
// Thread-safe: all methods may be called concurrently.
type Cluster struct {
	mu      sync.Mutex
	meta    []*server
	data    []*server
	master  *server   // nil when no meta server runs
	slaves  []*server // running meta servers other than master, in join order
	latency time.Duration
}

// New creates a cluster with one server per catalog entry. Meta servers
// join in catalog order, so the first running one is master.
func New(catalog *topology.Catalog, opts Options) *Cluster {
	capacity := opts.DataCapacityMiB
	if capacity == 0 {
		capacity = 1024
	}
	c := &Cluster{latency: opts.Latency}
	for _, e := range catalog.Nodes(cluster.Meta) {
		c.meta = append(c.meta, &server{class: cluster.Meta, expected: e})
	}
	for _, e := range catalog.Nodes(cluster.Data) {
		c.data = append(c.data, &server{class: cluster.Data, expected: e, store: storage.NewMemoryStore(capacity)})
	}
	for _, s := range append(slices.Clone(c.meta), c.data...) {
		if !slices.Contains(opts.Stopped, s.expected.Address()) {
			c.start(s)
		}
	}
	return c
}

func (c *Cluster) servers(class cluster.RoleClass) []*server {
	if class == cluster.Meta {
		return c.meta
	}
	return c.data
}

func (c *Cluster) lookup(class cluster.RoleClass, port int) (*server, error) {
	servers := c.servers(class)
	idx := slices.IndexFunc(servers, func(s *server) bool { return s.expected.Port == port })
	if idx < 0 {
		return nil, errors.Wrapf(ErrUnknownServer, "%s server %d", class, port)
	}
	return servers[idx], nil
}

// start and stop must be called with mu held.
func (c *Cluster) start(s *server) {
	s.running = true
	if s.class != cluster.Meta {
		return
	}
	if c.master == nil {
		c.master = s
		return
	}
	c.slaves = append(c.slaves, s)
}

func (c *Cluster) stop(s *server) {
	s.running = false
	if s.class != cluster.Meta {
		return
	}
	if c.master == s {
		c.master = nil
		if len(c.slaves) > 0 {
			c.master, c.slaves = c.slaves[0], c.slaves[1:]
			plog.Infof("master %s stopped, promoted %s", s.expected.Address(), c.master.expected.Address())
		}
		return
	}
	if i := slices.Index(c.slaves, s); i >= 0 {
		c.slaves = slices.Delete(c.slaves, i, i+1)
	}
}

// Start starts the server of class listening on port.
func (c *Cluster) Start(class cluster.RoleClass, port int) (string, error) {
	return c.control(class, cluster.Start, port)
}

// Stop stops the server of class listening on port.
func (c *Cluster) Stop(class cluster.RoleClass, port int) (string, error) {
	return c.control(class, cluster.Stop, port)
}

func (c *Cluster) control(class cluster.RoleClass, action cluster.Action, port int) (string, error) {
	if c.latency > 0 {
		time.Sleep(c.latency)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.lookup(class, port)
	if err != nil {
		return "", err
	}
	if s.failure != "" {
		return "", errors.Newf("%s %s: %s", action, s.expected.Address(), s.failure)
	}
	switch {
	case action == cluster.Start && s.running:
		return "", errors.Wrapf(ErrAlreadyRunning, "%s server %d", class, port)
	case action == cluster.Stop && !s.running:
		return "", errors.Wrapf(ErrNotRunning, "%s server %d", class, port)
	case action == cluster.Start:
		c.start(s)
	default:
		c.stop(s)
	}
	plog.Infof("%s server %s %s", class, s.expected.Address(), pastTense(action))
	return fmt.Sprintf("%s server %d %s", class, port, pastTense(action)), nil
}

func pastTense(a cluster.Action) string {
	if a == cluster.Stop {
		return "stopped"
	}
	return "started"
}

// Status reports the process state of the server of class on port, or of
// every server of the class when port is zero.
func (c *Cluster) Status(class cluster.RoleClass, port int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	servers := c.servers(class)
	if port != 0 {
		s, err := c.lookup(class, port)
		if err != nil {
			return "", err
		}
		servers = []*server{s}
	}
	var b strings.Builder
	for _, s := range servers {
		state := "stopped"
		if s.running {
			state = "running"
		}
		fmt.Fprintf(&b, "%s server %s: %s", class, s.expected.Address(), state)
		if s.running && s.class == cluster.Meta {
			fmt.Fprintf(&b, " (%s)", c.roleOf(s))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

func (c *Cluster) roleOf(s *server) string {
	if c.master == s {
		return "master"
	}
	return "slave"
}

// Snapshot returns the current cluster state as the control plane reports
// it. Stopped servers are omitted.
func (c *Cluster) Snapshot() cluster.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := cluster.Snapshot{
		SlaveMetas: []cluster.NodeInfo{},
		DataNodes:  []cluster.NodeInfo{},
	}
	if c.master != nil {
		m := c.master.info()
		snap.MasterMeta = &m
		snap.TotalMeta++
	}
	for _, s := range c.slaves {
		snap.SlaveMetas = append(snap.SlaveMetas, s.info())
		snap.TotalMeta++
	}
	for _, s := range c.data {
		if s.running {
			snap.DataNodes = append(snap.DataNodes, s.info())
			snap.TotalData++
		}
	}
	return snap
}

// Health summarizes the cluster in one line.
func (c *Cluster) Health() string {
	snap := c.Snapshot()
	if snap.TotalMeta == 0 || snap.TotalData == 0 {
		return fmt.Sprintf("degraded: %d meta, %d data servers running", snap.TotalMeta, snap.TotalData)
	}
	return fmt.Sprintf("ok: %d meta, %d data servers running", snap.TotalMeta, snap.TotalData)
}

// InjectFailure makes every start and stop of the server fail with msg
// until ClearFailure is called.
func (c *Cluster) InjectFailure(class cluster.RoleClass, port int, msg string) error {
	if msg == "" {
		msg = "injected failure"
	}
	return c.setFailure(class, port, msg)
}

// ClearFailure removes an injected failure.
func (c *Cluster) ClearFailure(class cluster.RoleClass, port int) error {
	return c.setFailure(class, port, "")
}

func (c *Cluster) setFailure(class cluster.RoleClass, port int, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookup(class, port)
	if err != nil {
		return err
	}
	s.failure = msg
	return nil
}

// WriteBlock records a block of size bytes on the data server on port.
func (c *Cluster) WriteBlock(port int, id string, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookup(cluster.Data, port)
	if err != nil {
		return err
	}
	if !s.running {
		return errors.Wrapf(ErrNotRunning, "data server %d", port)
	}
	return s.store.Put(id, size)
}

// DeleteBlock removes a block from the data server on port.
func (c *Cluster) DeleteBlock(port int, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookup(cluster.Data, port)
	if err != nil {
		return err
	}
	return s.store.Delete(id)
}
