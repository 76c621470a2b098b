// Package memory contains the durable, user-scoped memory store: tagged text
// records with full-text retrieval and recency/frequency access tracking.
// The Store interface keeps the agent decoupled from the backing engine;
// SQLiteStore is the default implementation using an FTS5 index.
package memory
