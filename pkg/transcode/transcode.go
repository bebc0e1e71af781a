// Package transcode maps between Google Tasks records and local tasks.
// Every function here is pure.
package transcode

import (
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"google.golang.org/api/tasks/v1"
)

const (
	ExternalNeedsAction = "needsAction"
	ExternalCompleted   = "completed"

	// UntitledTask replaces an empty provider title.
	UntitledTask = "Untitled"
)

// ExternalToLocal returns the patch that creates a local mirror of ext, linked
// to listID. Combine with model.NewTask to get a task for a project.
func ExternalToLocal(ext *tasks.Task, listID string) model.TaskPatch {
	p := ExternalChanges(ext)
	// A new task has nothing to clear.
	if p.DueAt.IsNull() {
		p.DueAt = model.Field[time.Time]{}
	}
	if p.CompletedAt.IsNull() {
		p.CompletedAt = model.Field[time.Time]{}
	}
	p.Priority = model.Set(model.PriorityMedium)
	p.Order = model.Set(0)
	p.External = model.Set(model.Linkage{
		TaskID:         ext.Id,
		ListID:         listID,
		ExternalOrigin: true,
	})
	return p
}

// ExternalChanges returns only the fields the provider owns: title, notes,
// status, due and completion. A missing due or completion on the provider
// side clears the local value.
func ExternalChanges(ext *tasks.Task) model.TaskPatch {
	title := ext.Title
	if title == "" {
		title = UntitledTask
	}
	p := model.TaskPatch{
		Title:       model.Set(title),
		Description: model.Set(ext.Notes),
		Status:      model.Set(StatusFromExternal(ext.Status)),
		DueAt:       model.Null[time.Time](),
		CompletedAt: model.Null[time.Time](),
	}
	if due, ok := ParseTime(ext.Due); ok {
		p.DueAt = model.Set(due)
	}
	if ext.Completed != nil {
		if done, ok := ParseTime(*ext.Completed); ok {
			p.CompletedAt = model.Set(done)
		}
	}
	return p
}

// LocalToExternal maps only the present fields of p. Null fields are sent as
// JSON null so the provider clears them; absent fields are left untouched.
func LocalToExternal(p model.TaskPatch) *tasks.Task {
	ext := &tasks.Task{}

	if p.Title.Present() {
		ext.Title, _ = p.Title.Value()
		if ext.Title == "" {
			ext.ForceSendFields = append(ext.ForceSendFields, "Title")
		}
	}

	if p.Description.IsNull() {
		ext.NullFields = append(ext.NullFields, "Notes")
	} else if notes, ok := p.Description.Value(); ok {
		ext.Notes = notes
		if notes == "" {
			ext.ForceSendFields = append(ext.ForceSendFields, "Notes")
		}
	}

	if status, ok := p.Status.Value(); ok {
		ext.Status = StatusToExternal(status)
	}

	if p.DueAt.IsNull() {
		ext.NullFields = append(ext.NullFields, "Due")
	} else if due, ok := p.DueAt.Value(); ok {
		ext.Due = FormatDue(due)
	}

	if p.CompletedAt.IsNull() {
		ext.NullFields = append(ext.NullFields, "Completed")
	} else if done, ok := p.CompletedAt.Value(); ok {
		s := FormatTime(done)
		ext.Completed = &s
	}

	if link, ok := p.External.Value(); ok {
		ext.Id = link.TaskID
	}

	return ext
}

// NeedsUpdate reports whether the provider-owned fields of ext differ from
// local. An unchanged external record does not need to be written again.
func NeedsUpdate(local model.Task, ext *tasks.Task) bool {
	want := local.Clone()
	ExternalChanges(ext).Apply(&want)

	if want.Title != local.Title || want.Description != local.Description || want.Status != local.Status {
		return true
	}
	if !sameDay(want.DueAt, local.DueAt) {
		return true
	}
	return !sameInstant(want.CompletedAt, local.CompletedAt)
}

// StatusFromExternal maps the provider vocabulary onto local statuses.
func StatusFromExternal(s string) model.Status {
	if s == ExternalCompleted {
		return model.StatusComplete
	}
	return model.StatusOpen
}

// StatusToExternal maps local statuses onto the provider vocabulary.
func StatusToExternal(s model.Status) string {
	if s.Done() {
		return ExternalCompleted
	}
	return ExternalNeedsAction
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, time.DateOnly}

// ParseTime parses a provider timestamp. Empty or malformed strings report false.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTime renders an instant in the provider's timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatDue renders a due date. The provider keeps only the date portion, so
// the time of day is dropped.
func FormatDue(t time.Time) string {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

// LastModified returns the provider's modification instant or the zero time.
func LastModified(ext *tasks.Task) time.Time {
	t, _ := ParseTime(ext.Updated)
	return t
}

// SameDate reports whether a and b fall on the same UTC calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return SameDate(*a, *b)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
