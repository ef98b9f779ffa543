package domain

// HeightObservation records a confirmed chain height seen by a module.
// Corresponds to height_observations table in PostgreSQL.
// Append-only: one row per (module, height), never updated.
type HeightObservation struct {
	Module     string // observing module, e.g. "monitor"
	Height     int64  // confirmed block height
	ObservedAt int64  // Unix timestamp in milliseconds
}
