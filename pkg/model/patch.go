package model

import (
	"fmt"
	"slices"
	"time"
)

// TaskPatch is a partial task update. Only present fields are written.
type TaskPatch struct {
	Title        Field[string]    `json:"title"`
	Description  Field[string]    `json:"description"`
	Status       Field[Status]    `json:"status"`
	Priority     Field[Priority]  `json:"priority"`
	Order        Field[int]       `json:"order"`
	DueAt        Field[time.Time] `json:"due_at"`
	CompletedAt  Field[time.Time] `json:"completed_at"`
	AssigneeID   Field[string]    `json:"assignee_id"`
	AssigneeName Field[string]    `json:"assignee_name"`
	Tags         Field[[]string]  `json:"tags"`
	External     Field[Linkage]   `json:"-"`
}

// IsEmpty reports whether no field is present.
func (p TaskPatch) IsEmpty() bool {
	return !(p.Title.Present() || p.Description.Present() || p.Status.Present() ||
		p.Priority.Present() || p.Order.Present() || p.DueAt.Present() ||
		p.CompletedAt.Present() || p.AssigneeID.Present() || p.AssigneeName.Present() ||
		p.Tags.Present() || p.External.Present())
}

// Validate rejects values outside the status and priority vocabularies and
// clears of fields that cannot be empty.
func (p TaskPatch) Validate() error {
	if status, ok := p.Status.Value(); ok && !slices.Contains(Statuses, status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	if p.Status.IsNull() {
		return fmt.Errorf("%w: status cannot be cleared", ErrInvalidArgument)
	}
	if priority, ok := p.Priority.Value(); ok && !slices.Contains(Priorities, priority) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, priority)
	}
	if p.Priority.IsNull() {
		return fmt.Errorf("%w: priority cannot be cleared", ErrInvalidArgument)
	}
	return nil
}

// Apply writes every present field onto t. Null clears the field.
func (p TaskPatch) Apply(t *Task) {
	applyValue(p.Title, &t.Title)
	applyValue(p.Description, &t.Description)
	applyValue(p.Status, &t.Status)
	applyValue(p.Priority, &t.Priority)
	applyValue(p.Order, &t.Order)
	applyPtr(p.DueAt, &t.DueAt)
	applyPtr(p.CompletedAt, &t.CompletedAt)
	applyValue(p.AssigneeID, &t.AssigneeID)
	applyValue(p.AssigneeName, &t.AssigneeName)
	if p.Tags.Present() {
		tags, _ := p.Tags.Value()
		t.Tags = slices.Clone(tags)
	}
	applyPtr(p.External, &t.External)
}

// PatchFromTask returns a patch that sets every transcodable field of t.
func PatchFromTask(t Task) TaskPatch {
	p := TaskPatch{
		Title:        Set(t.Title),
		Description:  Set(t.Description),
		Status:       Set(t.Status),
		Priority:     Set(t.Priority),
		Order:        Set(t.Order),
		DueAt:        FromPtr(t.DueAt),
		CompletedAt:  FromPtr(t.CompletedAt),
		AssigneeID:   Set(t.AssigneeID),
		AssigneeName: Set(t.AssigneeName),
		External:     FromPtr(t.External),
	}
	if t.Tags != nil {
		p.Tags = Set(slices.Clone(t.Tags))
	}
	return p
}

func applyValue[T any](f Field[T], dst *T) {
	if !f.Present() {
		return
	}
	v, _ := f.Value()
	*dst = v
}

func applyPtr[T any](f Field[T], dst **T) {
	if !f.Present() {
		return
	}
	*dst = f.Ptr()
}
