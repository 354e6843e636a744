// Package store provides SQLite-backed durable storage for rule artifacts
// and the serving dumps traced from them.
//
// The store is write-once:
//   - Rule artifacts: keyed by content hash (rule.Artifact.ID)
//   - Serving dumps: keyed by dump hash (graph.Dump.ID), optionally linked
//     to the artifact that produced them
//
// # Invariants
//
// Content Addressing
//   - A row's id is the hash of its bytes; re-putting identical content is
//     a no-op that reports inserted=false
//   - Reads re-validate the bytes and re-check the hash
//
// Deterministic Query Results
//   - All list queries use: ORDER BY seq ASC, id ASC COLLATE BINARY
//   - seq is a per-table insertion counter, never a timestamp
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
