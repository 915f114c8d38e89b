// Package cluster defines the wire model shared by the console and the
// storage cluster's control plane.
//
// # Overview
//
// The storage cluster is made of two classes of servers:
//
//	┌───────────────────────────────┐
//	│      Meta servers (MDS)       │
//	│  1 master + N ordered slaves  │
//	└───────────────┬───────────────┘
//	                │ block placement
//	   ┌────────────┼────────────┐
//	   │            │            │
//	┌──▼───┐     ┌──▼───┐     ┌──▼───┐
//	│ Data │     │ Data │     │ Data │
//	└──────┘     └──────┘     └──────┘
//
// Every control-plane endpoint answers with an Envelope:
//
//	{"code": 200, "msg": "ok", "requestId": "...", "data": ...}
//
// Code 200 is the only success value. Anything else becomes a *RemoteError.
// Failures to reach the endpoint are marked with ErrTransport and malformed
// bodies with ErrDecode, so callers can classify errors with errors.Is:
//
//	env, err := cluster.GetEnvelope(ctx, client, url, &snap)
//	switch {
//	case errors.Is(err, cluster.ErrTransport):
//	    // endpoint unreachable
//	case errors.As(err, &remoteErr):
//	    // endpoint rejected the request
//	}
//
// # Closed enums
//
// RoleClass (Meta, Data) and Action (Start, Stop, Status) are closed sets.
// They encode to their lower-case names in JSON and URLs and are parsed back
// with ParseRoleClass and ParseAction. Callers switch over them exhaustively.
//
// # Snapshots
//
// A Snapshot is the result of one poll. Nothing in it carries identity
// beyond the poll that produced it: the next Snapshot supersedes it
// entirely. Capacity figures are in MiB, as reported by the data servers.
package cluster
