// Package ports defines interfaces (contracts) between layers.
// Implementations live in adapters/.
package ports

import (
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Import Observation Ports
// -----------------------------------------------------------------------------

// Import pipeline stages reported to ImportRecorder.Failed.
const (
	StageLocate      = "locate"
	StageTranslate   = "translate"
	StageMaterialize = "materialize"
)

// ImportRecorder observes the module import pipeline.
type ImportRecorder interface {
	// CacheHit records an import served from the module cache.
	CacheHit(module string)

	// Declined records an import no resolver could locate.
	Declined(module string)

	// Materialized records a module built from its source.
	Materialized(module, format string, classes int, took time.Duration)

	// Failed records an import that was located but could not be built.
	Failed(module, stage string)
}

// NopRecorder discards all import observations.
type NopRecorder struct{}

func (NopRecorder) CacheHit(string) {}
func (NopRecorder) Declined(string) {}
func (NopRecorder) Materialized(string, string, int, time.Duration) {}
func (NopRecorder) Failed(string, string) {}

var _ ImportRecorder = NopRecorder{}
