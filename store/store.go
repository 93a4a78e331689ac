// Package store provides durable persistence for the execution journal and
// per-wave run checkpoints, so an interrupted run can be resumed with
// Engine.Resume. Implementations: SQLite (single file, zero setup), MySQL
// (shared production database), and an in-memory store for tests.
//
// All implementations satisfy engine.CheckpointStore. The journal log and
// the checkpoint snapshot are deliberately redundant: the log is an
// append-only audit trail of every commit, the checkpoint is the compact
// restart point the engine actually loads.
package store

import "errors"

// ErrNotFound is returned when a requested session has no persisted
// checkpoint.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store: closed")
