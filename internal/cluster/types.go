package cluster

import (
	"net"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

// json is the codec shared by every package that speaks the control-plane
// wire format.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CodeOK is the only envelope code that denotes success.
const CodeOK = 200

// RoleClass is the class of a cluster node.
type RoleClass int

const (
	// Meta is a metadata server taking part in primary/standby replication.
	Meta RoleClass = iota + 1
	// Data is a data server holding file block replicas.
	Data
)

// RoleClasses lists every class in display order.
var RoleClasses = []RoleClass{Meta, Data}

func (c RoleClass) String() string {
	switch c {
	case Meta:
		return "meta"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c RoleClass) MarshalText() ([]byte, error) {
	if c != Meta && c != Data {
		return nil, errors.Newf("invalid role class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RoleClass) UnmarshalText(b []byte) error {
	v, err := ParseRoleClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseRoleClass parses "meta" or "data", case-insensitively.
func ParseRoleClass(s string) (RoleClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "meta":
		return Meta, nil
	case "data":
		return Data, nil
	}
	return 0, errors.Newf("unknown role class %q", s)
}

// Action is a control command that can be sent to a node.
type Action int

const (
	// Start brings a node up.
	Start Action = iota + 1
	// Stop shuts a node down.
	Stop
	// Status queries a node, or the whole class when no node is named.
	Status
)

// Actions lists every action.
var Actions = []Action{Start, Stop, Status}

func (a Action) String() string {
	switch a {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Status:
		return "status"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if a < Start || a > Status {
		return nil, errors.Newf("invalid action %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Mutating reports whether the action changes node state.
func (a Action) Mutating() bool {
	return a == Start || a == Stop
}

// ParseAction parses "start", "stop" or "status", case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return Start, nil
	case "stop":
		return Stop, nil
	case "status":
		return Status, nil
	}
	return 0, errors.Newf("unknown action %q", s)
}

// NodeInfo is a single server as reported by the cluster. Capacity and Used
// are expressed in MiB.
type NodeInfo struct {
	Address    string `json:"address"`
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Status     string `json:"status,omitempty"`
	Capacity   int64  `json:"capacity,omitempty"`
	Used       int64  `json:"used,omitempty"`
	BlockCount int    `json:"fileTotal,omitempty"`
}

// PortNumber returns the port parsed from Address, falling back to Port
// when the address carries none.
func (n NodeInfo) PortNumber() int {
	if n.Address != "" {
		if _, p, err := net.SplitHostPort(n.Address); err == nil {
			if v, err := strconv.Atoi(p); err == nil {
				return v
			}
		}
	}
	return n.Port
}

// Addr returns Address, or host:port when Address is empty.
func (n NodeInfo) Addr() string {
	if n.Address != "" {
		return n.Address
	}
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// Snapshot is one poll's observed state of the cluster. A snapshot is never
// merged with an earlier one; the next poll replaces it entirely.
type Snapshot struct {
	MasterMeta *NodeInfo  `json:"masterMetaServer,omitempty"`
	SlaveMetas []NodeInfo `json:"slaveMetaServers"`
	DataNodes  []NodeInfo `json:"dataServers"`
	TotalMeta  int        `json:"totalMetaServers"`
	TotalData  int        `json:"totalDataServers"`
}

// Envelope is the response wrapper used by every control-plane endpoint.
type Envelope struct {
	Code      int                 `json:"code"`
	Msg       string              `json:"msg"`
	RequestID string              `json:"requestId,omitempty"`
	Data      jsoniter.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope carries the success code.
func (e *Envelope) OK() bool {
	return e.Code == CodeOK
}

// NewEnvelope builds an envelope, encoding data when it is non-nil.
func NewEnvelope(code int, msg, requestID string, data any) (*Envelope, error) {
	env := &Envelope{Code: code, Msg: msg, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrap(err, "encode envelope data")
		}
		env.Data = raw
	}
	return env, nil
}

// Marshal encodes v with the shared codec.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data into v with the shared codec.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
