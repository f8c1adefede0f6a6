// Package engine is the Dynamic Engine (C10): it schedules
// (station, event_day) tasks, fetches forecast and market state for
// each in parallel, pipes the results through the Probability Mapper
// and Edge & Sizer, and publishes snapshots and trades, per spec.md
// §4.7/§5.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// Task is one (station, event_day) unit of scheduled work (§4.7).
type Task struct {
	StationCode string
	City        string
	EventDay    string
}

// State is a Task's position in the per-cycle state machine (§5).
type State string

const (
	StateSelected     State = "selected"
	StateFetching     State = "fetching"
	StateMapping      State = "mapping"
	StateDeciding     State = "deciding"
	StateSnapshotting State = "snapshotting"
	StateBrokering    State = "brokering"
	StatePublished    State = "published"
	StateFailed       State = "failed"
)

// CycleRecord is the outcome of running one Task through one cycle,
// used for the cycle_complete/cycle_failed event payloads and for
// ledger bookkeeping.
type CycleRecord struct {
	CycleID       string
	Task          Task
	State         State
	FailReason    string
	StartedAt     time.Time
	FinishedAt    time.Time
	DecisionsMade int
	TradesPlaced  int
}

// newCycleID generates a fresh correlation id for one cycle run, carried
// on its CycleRecord and on its cycle_started/cycle_complete/cycle_failed
// bus events. Snapshot files and broker rows do not carry it.
func newCycleID() string {
	return uuid.NewString()
}

// Duration reports the wall-clock time the cycle took.
func (r CycleRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
