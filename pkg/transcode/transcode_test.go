package transcode

import (
	"slices"
	"testing"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"google.golang.org/api/tasks/v1"
)

func TestExternalToLocal(t *testing.T) {
	completed := "2023-01-02T10:30:00.000Z"
	ext := &tasks.Task{
		Id:        "ext-1",
		Title:     "Buy milk",
		Notes:     "almond",
		Status:    "completed",
		Due:       "2023-01-05T00:00:00.000Z",
		Completed: &completed,
		Updated:   "2023-01-02T10:31:00.000Z",
	}

	task := model.NewTask("proj-1", ExternalToLocal(ext, "list-1"))

	if task.Title != "Buy milk" {
		t.Errorf("Expected title 'Buy milk', got '%s'", task.Title)
	}
	if task.Description != "almond" {
		t.Errorf("Expected description 'almond', got '%s'", task.Description)
	}
	if task.Status != model.StatusComplete {
		t.Errorf("Expected status complete, got %s", task.Status)
	}
	if task.Priority != model.PriorityMedium || task.Order != 0 {
		t.Errorf("Expected default priority/order, got %s/%d", task.Priority, task.Order)
	}
	if task.External == nil || task.External.TaskID != "ext-1" || task.External.ListID != "list-1" || !task.External.ExternalOrigin {
		t.Fatalf("Expected external linkage to ext-1/list-1 with origin flag, got %+v", task.External)
	}
	wantDue := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	if task.DueAt == nil || !task.DueAt.Equal(wantDue) {
		t.Errorf("Expected due %v, got %v", wantDue, task.DueAt)
	}
	if task.CompletedAt == nil {
		t.Errorf("Expected completion timestamp to be set")
	}
}

func TestExternalToLocalDefaults(t *testing.T) {
	ext := &tasks.Task{Id: "ext-2", Status: "needsAction"}

	task := model.NewTask("proj-1", ExternalToLocal(ext, "list-1"))

	if task.Title != UntitledTask {
		t.Errorf("Expected title %q, got %q", UntitledTask, task.Title)
	}
	if task.Status != model.StatusOpen {
		t.Errorf("Expected status open, got %s", task.Status)
	}
	if task.DueAt != nil || task.CompletedAt != nil {
		t.Errorf("Expected no due/completion, got %v/%v", task.DueAt, task.CompletedAt)
	}
}

func TestLocalToExternalOnlyMapsPresentFields(t *testing.T) {
	ext := LocalToExternal(model.TaskPatch{Title: model.Set("Only title")})

	if ext.Title != "Only title" {
		t.Errorf("Expected title 'Only title', got '%s'", ext.Title)
	}
	if ext.Status != "" || ext.Due != "" || ext.Notes != "" || ext.Completed != nil {
		t.Errorf("Expected absent fields to stay empty, got %+v", ext)
	}
	if len(ext.NullFields) != 0 {
		t.Errorf("Expected no null fields, got %v", ext.NullFields)
	}
}

func TestLocalToExternalClearsNullFields(t *testing.T) {
	ext := LocalToExternal(model.TaskPatch{
		DueAt:       model.Null[time.Time](),
		Description: model.Null[string](),
		Status:      model.Set(model.StatusActive),
	})

	if !slices.Contains(ext.NullFields, "Due") || !slices.Contains(ext.NullFields, "Notes") {
		t.Errorf("Expected Due and Notes to be sent as null, got %v", ext.NullFields)
	}
	if ext.Status != ExternalNeedsAction {
		t.Errorf("Expected active to map to needsAction, got %s", ext.Status)
	}
}

func TestRoundTripPreservesStatusAndDueDate(t *testing.T) {
	due := time.Date(2024, 3, 17, 15, 45, 0, 0, time.UTC)
	local := model.Task{
		Title:    "File taxes",
		Status:   model.StatusComplete,
		DueAt:    &due,
		External: &model.Linkage{TaskID: "ext-9", ListID: "list-1"},
	}

	ext := LocalToExternal(model.PatchFromTask(local))
	back := model.NewTask("proj-1", ExternalToLocal(ext, "list-1"))

	if back.Title != local.Title {
		t.Errorf("Expected title %q, got %q", local.Title, back.Title)
	}
	if back.Status != model.StatusComplete {
		t.Errorf("Expected status complete, got %s", back.Status)
	}
	if back.DueAt == nil || !SameDate(*back.DueAt, due) {
		t.Errorf("Expected due date %s, got %v", due.Format(time.DateOnly), back.DueAt)
	}
}

func TestNeedsUpdate(t *testing.T) {
	due := time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)
	local := model.Task{Title: "Same", Description: "notes", Status: model.StatusOpen, DueAt: &due}
	ext := &tasks.Task{Title: "Same", Notes: "notes", Status: ExternalNeedsAction, Due: "2024-03-17T00:00:00.000Z"}

	if NeedsUpdate(local, ext) {
		t.Errorf("Expected identical records to need no update")
	}

	ext.Title = "Changed"
	if !NeedsUpdate(local, ext) {
		t.Errorf("Expected a title change to need an update")
	}
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2023-01-01T12:00:00Z", "2023-01-01T12:00:00.000Z", "2023-01-01"} {
		if _, ok := ParseTime(s); !ok {
			t.Errorf("Expected %q to parse", s)
		}
	}
	if _, ok := ParseTime("not a time"); ok {
		t.Errorf("Expected malformed input to be rejected")
	}
}
