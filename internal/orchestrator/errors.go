package orchestrator

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrDuplicateOperation is returned when the same (class, action, node)
	// operation is already in flight. The second request is rejected, never
	// queued.
	ErrDuplicateOperation = errors.New("operation already in progress")

	// ErrBatchAborted is returned when the operator declines to continue a
	// sequential start batch after a failure.
	ErrBatchAborted = errors.New("batch aborted by operator")

	// ErrUnknownNode is returned when a logical id is not in the catalog.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnsupported is returned for a class or action outside the closed
	// sets, or a combination the control plane cannot serve.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrNodeOffline is returned when details are requested for a node that
	// is not running in the latest view.
	ErrNodeOffline = errors.New("node offline")
)
