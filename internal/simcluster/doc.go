// Package simcluster simulates the control plane of the storage cluster
// in memory, for demos and end-to-end tests of the console.
//
// It serves the same endpoints and envelopes as the real control plane, so a
// controlplane.Client cannot tell the two apart:
//
//	┌──────────────┐   HTTP/JSON    ┌────────────────────────────┐
//	│ controlplane │ ─────────────▶ │ simcluster.Handler (gin)   │
//	│   Client     │ ◀───────────── │   Cluster                  │
//	└──────────────┘   envelopes    │   ├── meta: master, slaves │
//	                                │   └── data: block ledgers  │
//	                                └────────────────────────────┘
//
// Meta servers fail over like the real cluster: stopping the master promotes
// the first slave, and a restarted server rejoins as the last slave. Data
// servers keep a storage.MemoryStore whose usage is reported in the
// snapshot.
//
// Failures can be injected per server through InjectFailure or the /sim
// endpoints; an injected failure makes every start and stop of that server
// answer with a failure envelope until it is cleared.
package simcluster
