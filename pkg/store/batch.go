package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one task write inside an AtomicBatch.
type Op struct {
	Kind  OpKind
	ID    string
	Task  model.Task
	Patch model.TaskPatch
}

func CreateOp(t model.Task) Op {
	return Op{Kind: OpCreate, Task: t}
}

func UpdateOp(id string, patch model.TaskPatch) Op {
	return Op{Kind: OpUpdate, ID: id, Patch: patch}
}

func DeleteOp(id string) Op {
	return Op{Kind: OpDelete, ID: id}
}

// AtomicBatch applies ops in order inside one transaction. Either every op is
// visible to readers afterwards or none is. Write hooks fire once the batch
// has committed.
func (s *Store) AtomicBatch(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}

	changes := make([]TaskChange, 0, len(ops))
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i, op := range ops {
			change, err := s.applyOp(ctx, tx, op)
			if err != nil {
				return fmt.Errorf("batch op %d (%s): %w", i, op.Kind, err)
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, changes)
	return nil
}

func (s *Store) applyOp(ctx context.Context, tx *sqlx.Tx, op Op) (TaskChange, error) {
	switch op.Kind {
	case OpCreate:
		created, err := s.createTask(ctx, tx, op.Task)
		if err != nil {
			return TaskChange{}, err
		}
		return TaskChange{TaskID: created.ID, After: ptr(created)}, nil
	case OpUpdate:
		return s.updateTask(ctx, tx, op.ID, op.Patch)
	case OpDelete:
		return s.deleteTask(ctx, tx, op.ID)
	}
	return TaskChange{}, fmt.Errorf("%w: unknown batch op %s", model.ErrInvalidArgument, op.Kind)
}
