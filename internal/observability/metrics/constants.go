// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation names recorded by the datastore.
const (
	// OpPagedFind is the paged find-and-count query.
	OpPagedFind = "paged_find"
	// OpPhotoCreate inserts a photo record.
	OpPhotoCreate = "photo_create"
	// OpPhotoGet loads a photo record.
	OpPhotoGet = "photo_get"
	// OpPhotoMark marks a photo analyzed.
	OpPhotoMark = "photo_mark"
	// OpPhotoDelete deletes one photo and its observations.
	OpPhotoDelete = "photo_delete"
	// OpPhotoCount counts photos by analysis state.
	OpPhotoCount = "photo_count"
	// OpClearAll removes every photo and observation.
	OpClearAll = "clear_all"
	// OpObservationCreate inserts one observation.
	OpObservationCreate = "observation_create"
	// OpSaveAnalysis stores observations and marks the photo in one transaction.
	OpSaveAnalysis = "save_analysis"
	// OpStatByCell aggregates observations per cell.
	OpStatByCell = "stat_by_cell"
	// OpListPoints lists observations with their photo position.
	OpListPoints = "list_points"
)

// Label values shared by several collectors.
const (
	// LabelSuccess marks a successful operation.
	LabelSuccess = "success"
	// LabelError marks a failed operation.
	LabelError = "error"
	// LabelStore is the lock type label of the per-store query lock.
	LabelStore = "store"
	// LabelCommit is the transaction status for commits.
	LabelCommit = "commit"
	// LabelRollback is the transaction status for rollbacks.
	LabelRollback = "rollback"
)

// Pipeline run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCanceled  = "canceled"
	OutcomeFailed    = "failed"
	OutcomeEmpty     = "empty"
)

// Histogram bucket configuration constants.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	BucketCount10 = 10
	BucketCount12 = 12
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics listener.
const ShutdownTimeout = 5 * time.Second
