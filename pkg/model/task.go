package model

import (
	"slices"
	"time"
)

// Status is the local task status vocabulary.
type Status string

const (
	StatusOpen     Status = "open"
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
)

var Statuses = []Status{StatusOpen, StatusActive, StatusComplete}

// Done reports whether the status counts as finished work.
func (s Status) Done() bool {
	return s == StatusComplete
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Linkage ties a local task to its mirror in the external provider.
type Linkage struct {
	TaskID         string `json:"external_task_id"`
	ListID         string `json:"external_list_id"`
	ExternalOrigin bool   `json:"external_origin"`
}

// Task represents a unit of work owned by a project.
type Task struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	Order        int        `json:"order"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	AssigneeID   string     `json:"assignee_id,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	External     *Linkage   `json:"external,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Linked reports whether the task carries an external linkage.
func (t *Task) Linked() bool {
	return t.External != nil && t.External.TaskID != ""
}

// NewTask builds a task for projectID with defaults, then applies patch on top.
func NewTask(projectID string, patch TaskPatch) Task {
	t := Task{
		ProjectID: projectID,
		Status:    StatusOpen,
		Priority:  PriorityMedium,
	}
	patch.Apply(&t)
	return t
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t Task) Clone() Task {
	out := t
	if t.DueAt != nil {
		d := *t.DueAt
		out.DueAt = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	if t.External != nil {
		l := *t.External
		out.External = &l
	}
	out.Tags = slices.Clone(t.Tags)
	return out
}
