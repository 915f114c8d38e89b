// Package orchestrator reconciles the expected topology of the storage
// cluster with what the control plane reports, and dispatches start, stop
// and status operations to its nodes.
//
// # Overview
//
// A Session is the unit of ownership. It is created when a console session
// begins and stopped when it ends; nothing in this package is global.
//
//	┌──────────────────────────────────────────────┐
//	│                   Session                    │
//	├──────────────────────────────────────────────┤
//	│  Poller ──▶ Refresh ──▶ Reconcile ──▶ View   │
//	│                            ▲                 │
//	│                  Catalog ──┤                 │
//	│                RoleCache ◀─┘ (records roles) │
//	│                                              │
//	│  BatchRunner ──▶ Dispatcher ──▶ ControlPlane │
//	│                      │                       │
//	│                 in-flight set                │
//	└──────────────────────────────────────────────┘
//
// # Reconciliation
//
// Reconcile merges three inputs into one NodeView per expected node:
//   - the Catalog of expected nodes (fixed, from configuration)
//   - the latest Snapshot (fresh every poll, possibly incomplete)
//   - the RoleCache of last confirmed meta roles, keyed by address
//
// A meta node that drops out of a snapshot keeps the role it last held
// ("Master" or "Slave k") and is flagged UsedCachedRole, so identity does not
// flicker while a node restarts. Standby numbering follows the current slave
// list and is recomputed on every poll. A node never observed falls back to
// its catalog position: the first slot is "Master", the i-th other slot is
// "Slave i".
//
// # Dispatch
//
// Each operation is keyed by (class, action, logical id). While a key is in
// flight a second request for it fails with ErrDuplicateOperation; requests
// are never queued. The key is released on every exit path. A successful
// start or stop schedules a single poll after Config.SettleDelay.
//
// # Batches
//
// BatchRunner applies one action to every node of a class:
//   - stop: concurrent, all outcomes awaited, failures isolated
//   - start: sequential in catalog order with Config.StartInterval after each
//     success; after a failure a ConfirmFunc decides Continue or Abort
//   - status: concurrent, failures reported only
//
// One poll follows the batch after Config.RefreshDelay.
//
// # Polling
//
// The Poller runs on a syncutil.Stopper. Start is idempotent and Stop
// cancels the periodic poll and every pending delayed poll exactly once.
// Snapshots are applied in the order responses arrive; the last applied
// wins.
//
// # Errors
//
// Nothing is retried automatically. Callers classify failures with
// errors.Is against ErrDuplicateOperation, ErrBatchAborted, ErrUnknownNode,
// ErrUnsupported, cluster.ErrTransport and cluster.ErrDecode, or errors.As
// against *cluster.RemoteError.
package orchestrator
