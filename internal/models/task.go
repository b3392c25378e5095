package models

import (
	"strings"
	"time"
)

// TaskStatus enumerates the task lifecycle states.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskApproved TaskStatus = "approved"
	TaskDone     TaskStatus = "done"
	TaskArchived TaskStatus = "archived"
)

// IsValid reports whether the status is a known lifecycle state.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskApproved, TaskDone, TaskArchived:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may move to next. Transitions
// follow pending -> approved -> done -> archived; archiving is allowed from
// any state.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if next == TaskArchived {
		return s != TaskArchived
	}
	switch s {
	case TaskPending:
		return next == TaskApproved
	case TaskApproved:
		return next == TaskDone
	}
	return false
}

// Task is a persisted, user-owned action item materialized from an
// approved-by-default create_task proposal.
type Task struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Source      TaskSource   `json:"source"`
	Tags        []string     `json:"tags,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	StartDate   *time.Time   `json:"start_date,omitempty"`
	EndDate     *time.Time   `json:"end_date,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ApprovedAt  *time.Time   `json:"approved_at,omitempty"`
}

// DedupKey returns the de-duplication key for the task: the lower-cased,
// whitespace-collapsed title joined with the source tag. Two syncs over
// identical upstream content converge onto the same key.
func (t *Task) DedupKey() string {
	return NormalizeTaskKey(t.Title, t.Source)
}

// NormalizeTaskKey builds the (title, source) de-duplication key.
func NormalizeTaskKey(title string, source TaskSource) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	return normalized + "|" + string(source)
}
