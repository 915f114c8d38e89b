// Package storage keeps the block ledger of simulated data nodes.
//
// A data node in the simulated cluster does not hold file contents. It only
// records which blocks it stores and how large they are, which is all the
// control plane reports: capacity, used space and the number of blocks.
//
//	┌──────────────┐  Put/Delete  ┌──────────────┐
//	│  simcluster  │ ───────────▶ │ MemoryStore  │
//	│  data node   │ ◀─────────── │ id -> size   │
//	└──────────────┘    Stats     └──────────────┘
//
// Sizes are tracked in bytes and reported in MiB, rounded up, matching the
// units of the cluster snapshot. Writes that would exceed the capacity fail
// with ErrNoSpace and leave the ledger unchanged.
//
// MemoryStore is safe for concurrent use: reads share an RWMutex, writes
// take it exclusively.
package storage
