// Package taskmanager persists tasks, enforces dependency-graph invariants,
// and round-trips task state to markdown for session hand-off. It owns the
// long-lived persistent fields of a task (subject, description, ownership,
// the blockedBy/blocks adjacency); runtime dispatch state (wave, retry
// cooldown, dispatched-at) is the queue package's concern.
package taskmanager

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the Task Manager's own view of a task's lifecycle, distinct from
// the richer ready/dispatched/failed/skipped machine the queue drives.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDeleted    Status = "deleted"
)

// statusSortOrder is the sort key used by ListSummaries, per spec:
// in_progress, pending, completed, deleted.
var statusSortOrder = map[Status]int{
	StatusInProgress: 0,
	StatusPending:    1,
	StatusCompleted:  2,
	StatusDeleted:    3,
}

// Type categorizes the kind of work a task represents.
type Type string

const (
	TypeResearch  Type = "research"
	TypeImplement Type = "implement"
	TypeTest      Type = "test"
	TypeReview    Type = "review"
	TypeRefactor  Type = "refactor"
	TypeMerge     Type = "merge"
	TypeFixup     Type = "fixup"
)

// Task is a single unit of work. Fields not touched by the Task Manager's own
// operations (wave, dispatchedAt, retryAfter, ownerTier, output,
// partialContext) live in the queue package's runtime record instead.
type Task struct {
	ID          string
	Subject     string
	Description string
	ActiveForm  string
	Type        Type
	Complexity  int
	Modifies    []string
	Reads       []string
	Metadata    map[string]any

	Status    Status
	Owner     string
	BlockedBy []string
	Blocks    []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the listSummaries() projection.
type Summary struct {
	ID           string
	Subject      string
	Status       Status
	Owner        string
	OpenBlockers []string
}

// NormalizeID implements spec.md §9's single shorthand-normalization rule:
// bare numeric ids ("1") are aliases for the prefixed form ("task-1"). It is
// the only place this rule may be implemented; every public entry point
// routes ids through it.
func NormalizeID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return trimmed
	}
	if _, err := strconv.Atoi(trimmed); err == nil {
		return "task-" + trimmed
	}
	return trimmed
}

func defaultActiveForm(subject string) string {
	return "Working on " + strings.ToLower(subject)
}

func newTaskID(n int) string {
	return fmt.Sprintf("task-%d", n)
}
