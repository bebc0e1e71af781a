// Package trigger decodes task write events handed to the notify-hook command.
//
// An event is one or two JSON task documents, one per line. A single
// document is a create. Two documents are the state before and after the
// write; a null after-state is a delete.
package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

var ErrEmptyEvent = errors.New("write event carries no task")

// ParseEvent decodes a write event from r.
func ParseEvent(r io.Reader) (store.TaskChange, error) {
	docs, err := parseTasks(r)
	if err != nil {
		return store.TaskChange{}, err
	}

	var change store.TaskChange
	switch len(docs) {
	case 0:
		return store.TaskChange{}, ErrEmptyEvent
	case 1:
		change.After = docs[0]
	case 2:
		change.Before, change.After = docs[0], docs[1]
	default:
		return store.TaskChange{}, fmt.Errorf("write event has %d documents, want 1 or 2", len(docs))
	}

	switch {
	case change.After != nil:
		change.TaskID = change.After.ID
	case change.Before != nil:
		change.TaskID = change.Before.ID
	default:
		return store.TaskChange{}, ErrEmptyEvent
	}
	if change.TaskID == "" {
		return store.TaskChange{}, fmt.Errorf("%w: task id is missing", model.ErrInvalidArgument)
	}
	return change, nil
}

// parseTasks reads consecutive JSON documents until EOF. A null document
// yields a nil task.
func parseTasks(r io.Reader) ([]*model.Task, error) {
	var tasks []*model.Task
	decoder := json.NewDecoder(r)
	for {
		var task *model.Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
