// Package topology holds the statically configured set of nodes the console
// expects the cluster to contain.
package topology

import (
	"net"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/clusterctl/internal/cluster"
)

// ExpectedNode is one configured cluster slot. Its identity is
// (Class, LogicalID); it is never created or destroyed at runtime.
type ExpectedNode struct {
	Class     cluster.RoleClass `json:"class" yaml:"-"`
	LogicalID string            `json:"id" yaml:"id"`
	Host      string            `json:"host" yaml:"host"`
	Port      int               `json:"port" yaml:"port"`
}

// Address returns host:port.
func (n ExpectedNode) Address() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Catalog is the immutable, ordered set of expected nodes per class.
type Catalog struct {
	meta []ExpectedNode
	data []ExpectedNode
}

// New builds a catalog from ordered meta and data slots. The class of each
// slot is set from the list it is passed in. It returns an error when the
// slots fail Validate.
func New(meta, data []ExpectedNode) (*Catalog, error) {
	c := &Catalog{
		meta: withClass(meta, cluster.Meta),
		data: withClass(data, cluster.Data),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the reference deployment: meta 1..3 on localhost:9090..9092
// and data 1..4 on localhost:8001..8004.
func Default() *Catalog {
	meta := make([]ExpectedNode, 0, 3)
	for i := 0; i < 3; i++ {
		meta = append(meta, ExpectedNode{LogicalID: strconv.Itoa(i + 1), Host: "localhost", Port: 9090 + i})
	}
	data := make([]ExpectedNode, 0, 4)
	for i := 0; i < 4; i++ {
		data = append(data, ExpectedNode{LogicalID: strconv.Itoa(i + 1), Host: "localhost", Port: 8001 + i})
	}
	c, err := New(meta, data)
	if err != nil {
		panic(err)
	}
	return c
}

type fileFormat struct {
	Meta []ExpectedNode `yaml:"meta"`
	Data []ExpectedNode `yaml:"data"`
}

// Load reads a catalog from a YAML file of the form:
//
//	meta:
//	  - {id: "1", host: localhost, port: 9090}
//	data:
//	  - {id: "1", host: localhost, port: 8001}
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read topology %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse topology")
	}
	return New(f.Meta, f.Data)
}

// Validate checks every class has at least one slot, logical ids are unique
// and non-empty within a class, ports are valid and no address is used twice.
func (c *Catalog) Validate() error {
	seenAddr := make(map[string]string)
	for _, class := range cluster.RoleClasses {
		nodes := c.Nodes(class)
		if len(nodes) == 0 {
			return errors.Newf("topology has no %s nodes", class)
		}
		seenID := make(map[string]bool)
		for _, n := range nodes {
			if n.LogicalID == "" {
				return errors.Newf("%s node on port %d has no id", class, n.Port)
			}
			if seenID[n.LogicalID] {
				return errors.Newf("duplicate %s node id %q", class, n.LogicalID)
			}
			seenID[n.LogicalID] = true
			if n.Port <= 0 || n.Port > 65535 {
				return errors.Newf("%s node %s has invalid port %d", class, n.LogicalID, n.Port)
			}
			addr := n.Address()
			if owner, ok := seenAddr[addr]; ok {
				return errors.Newf("address %s used by %s and %s %s", addr, owner, class, n.LogicalID)
			}
			seenAddr[addr] = class.String() + " " + n.LogicalID
		}
	}
	return nil
}

// Nodes returns a copy of the ordered slots of class.
func (c *Catalog) Nodes(class cluster.RoleClass) []ExpectedNode {
	switch class {
	case cluster.Meta:
		return slices.Clone(c.meta)
	case cluster.Data:
		return slices.Clone(c.data)
	default:
		return nil
	}
}

// LogicalIDs returns the logical ids of class in catalog order.
func (c *Catalog) LogicalIDs(class cluster.RoleClass) []string {
	nodes := c.Nodes(class)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.LogicalID)
	}
	return ids
}

// Lookup finds the slot of class with the given logical id.
func (c *Catalog) Lookup(class cluster.RoleClass, logicalID string) (ExpectedNode, bool) {
	nodes := c.Nodes(class)
	idx := slices.IndexFunc(nodes, func(n ExpectedNode) bool { return n.LogicalID == logicalID })
	if idx < 0 {
		return ExpectedNode{}, false
	}
	return nodes[idx], true
}

// LookupAddress finds the slot of class listening on address.
func (c *Catalog) LookupAddress(class cluster.RoleClass, address string) (ExpectedNode, bool) {
	nodes := c.Nodes(class)
	idx := slices.IndexFunc(nodes, func(n ExpectedNode) bool { return n.Address() == address })
	if idx < 0 {
		return ExpectedNode{}, false
	}
	return nodes[idx], true
}

// Size returns the number of slots of class.
func (c *Catalog) Size(class cluster.RoleClass) int {
	switch class {
	case cluster.Meta:
		return len(c.meta)
	case cluster.Data:
		return len(c.data)
	default:
		return 0
	}
}

func withClass(nodes []ExpectedNode, class cluster.RoleClass) []ExpectedNode {
	out := make([]ExpectedNode, len(nodes))
	for i, n := range nodes {
		n.Class = class
		out[i] = n
	}
	return out
}
