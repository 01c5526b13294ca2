package workerpool

// Status is a slot's occupancy state.
type Status string

const (
	StatusIdle Status = "idle"
	StatusBusy Status = "busy"
)

// Slot is one fixed worker seat with an assigned model tier (spec.md §4.D).
// While busy it holds the id of the task it is running, so the orchestrator
// can always reconstruct activeTaskIds for the queue's stale-dispatch
// reconciler.
type Slot struct {
	ID   int
	Tier string

	status Status
	taskID string
}

func (s *Slot) Status() Status { return s.status }
func (s *Slot) TaskID() string { return s.taskID }

// TierConfig describes how many slots to provision for one model tier.
type TierConfig struct {
	Tier  string
	Count int
}
