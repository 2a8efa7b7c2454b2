// Package store persists sources, segments, and ingestion checkpoints in a
// SQLite-backed vector store. Single-statement writes go through
// execWithRetry and transactions through withTx, both retrying SQLITE_BUSY
// with exponential backoff; withTx always rolls back on an error path so a
// failed transaction is not left open. Read queries run directly, without
// retry.
package store
