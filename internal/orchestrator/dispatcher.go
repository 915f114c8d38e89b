package orchestrator

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/controlplane"
	"github.com/dreamware/clusterctl/internal/topology"
)

// ControlPlane is the remote side the orchestrator drives.
// *controlplane.Client implements it.
type ControlPlane interface {
	Snapshot(ctx context.Context) (*cluster.Snapshot, error)
	Health(ctx context.Context) (string, error)
	Control(ctx context.Context, class cluster.RoleClass, action cluster.Action, port int) (*controlplane.Reply, error)
}

// OperationListener is told when an operation starts and when it settles, so
// the presentation layer can disable and re-enable the affordances of the
// target. OperationSettled is called on every exit path.
type OperationListener interface {
	OperationStarted(key OperationKey)
	OperationSettled(key OperationKey, err error)
}

type nopListener struct{}

func (nopListener) OperationStarted(OperationKey)        {}
func (nopListener) OperationSettled(OperationKey, error) {}

// Outcome is the result of a successful control operation.
type Outcome struct {
	Key OperationKey `json:"key"`
	// ID is a local identifier for correlating logs.
	ID string `json:"id"`
	// RemoteRequestID is the request id reported by the control endpoint.
	RemoteRequestID string `json:"remoteRequestId,omitempty"`
	// Output is the command output, e.g. the text of a status query.
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Dispatcher executes single control operations, allowing at most one
// in-flight operation per OperationKey.
type Dispatcher struct {
	catalog     *topology.Catalog
	plane       ControlPlane
	inflight    *inflightSet
	listener    OperationListener
	metrics     *sessionMetrics
	schedule    func(time.Duration)
	settleDelay time.Duration
}

// Execute runs action against the node of class with the given logical id.
// An empty logicalID is only accepted for Status and queries the whole
// class.
//
// It fails with ErrDuplicateOperation, without contacting the cluster, when
// the same operation is already in flight. Remote failures are returned as
// errors marked cluster.ErrTransport or cluster.ErrDecode, or as a
// *cluster.RemoteError. A successful start or stop schedules one poll after
// the settle delay.
func (d *Dispatcher) Execute(ctx context.Context, class cluster.RoleClass, action cluster.Action, logicalID string) (*Outcome, error) {
	return d.execute(ctx, class, action, logicalID, true)
}

func (d *Dispatcher) execute(
	ctx context.Context, class cluster.RoleClass, action cluster.Action, logicalID string, settle bool,
) (*Outcome, error) {
	key := OperationKey{Class: class, Action: action, LogicalID: logicalID}
	port, err := d.resolve(key)
	if err != nil {
		return nil, err
	}

	if !d.inflight.acquire(key) {
		d.metrics.duplicate(key)
		plog.Warningf("%s rejected: already in progress", key)
		return nil, errors.Wrapf(ErrDuplicateOperation, "%s", key)
	}
	d.listener.OperationStarted(key)

	id := uuid.New().String()
	start := time.Now()
	var reply *controlplane.Reply
	defer func() {
		d.inflight.release(key)
		d.listener.OperationSettled(key, err)
		d.metrics.dispatched(key, err, time.Since(start))
	}()

	plog.Infof("%s [%s] dispatching to port %d", key, id, port)
	reply, err = d.plane.Control(ctx, class, action, port)
	if err != nil {
		plog.Warningf("%s [%s] failed: %v", key, id, err)
		return nil, err
	}

	out := &Outcome{
		Key:             key,
		ID:              id,
		RemoteRequestID: reply.RequestID,
		Output:          reply.Output,
		Duration:        time.Since(start),
	}
	plog.Infof("%s [%s] succeeded in %s", key, id, out.Duration)
	if settle && action.Mutating() {
		d.schedule(d.settleDelay)
	}
	return out, nil
}

// resolve validates key and maps its logical id to the port the control
// endpoint expects. Zero means the whole class.
func (d *Dispatcher) resolve(key OperationKey) (int, error) {
	switch key.Class {
	case cluster.Meta, cluster.Data:
	default:
		return 0, errors.Wrapf(ErrUnsupported, "role class %d", int(key.Class))
	}
	switch key.Action {
	case cluster.Start, cluster.Stop:
		if key.LogicalID == "" {
			return 0, errors.Wrapf(ErrUnsupported, "%s %s needs a node id", key.Action, key.Class)
		}
	case cluster.Status:
		if key.LogicalID == "" {
			return 0, nil
		}
	default:
		return 0, errors.Wrapf(ErrUnsupported, "action %d", int(key.Action))
	}
	node, ok := d.catalog.Lookup(key.Class, key.LogicalID)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownNode, "%s %s", key.Class, key.LogicalID)
	}
	return node.Port, nil
}
