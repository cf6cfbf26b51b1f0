package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maccam912/smart-todo-sub000/internal/store"
)

// commit replays the staged operations against the store in one
// transaction. On success the session becomes terminal; on failure nothing
// is persisted and the session, including its staged ops, is left exactly
// as it was so the agent can correct and retry.
func (s *Session) commit(ctx context.Context) *Response {
	if len(s.pendingOps) == 0 {
		s.state = StateCompleted
		s.editTarget = nil
		s.log.Info("session %s: completed with no changes", s.id)
		return s.ok(ctx, "session completed; no changes were made")
	}

	var counts opCounts
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		refIDs := make(map[int]int64)
		for i, op := range s.pendingOps {
			if err := applyOp(ctx, tx, s.scope, op, refIDs, &counts); err != nil {
				return &commitError{index: i, op: op, cause: err}
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("session %s: commit failed: %v", s.id, err)
		var ce *commitError
		if errors.As(err, &ce) {
			return s.fail(ctx, ce.Error())
		}
		return s.fail(ctx, fmt.Sprintf("commit failed: %v", err))
	}

	total := len(s.pendingOps)
	s.pendingOps = nil
	s.editTarget = nil
	s.state = StateCompleted
	s.log.Info("session %s: committed %d operation(s): %s", s.id, total, counts.summary())
	return s.ok(ctx, fmt.Sprintf("session completed; %s", counts.summary()))
}

func applyOp(ctx context.Context, tx store.Tx, scope string, op *PendingOp, refIDs map[int]int64, counts *opCounts) error {
	switch op.Type {
	case OpCreate:
		created, err := tx.Create(ctx, scope, op.Attrs)
		if err != nil {
			return err
		}
		refIDs[op.Target.Ref] = created.ID
		counts.created++

	case OpUpdate:
		id, err := resolveTarget(op.Target, refIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Update(ctx, scope, id, op.Attrs); err != nil {
			return err
		}
		counts.updated++

	case OpDelete:
		id, err := resolveTarget(op.Target, refIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, scope, id); err != nil {
			return err
		}
		counts.deleted++

	case OpComplete:
		id, err := resolveTarget(op.Target, refIDs)
		if err != nil {
			return err
		}
		if _, err := tx.Complete(ctx, scope, id); err != nil {
			return err
		}
		counts.completed++

	default:
		return fmt.Errorf("unknown staged operation type %q", op.Type)
	}
	return nil
}

// resolveTarget maps a target to a store id. Pending refs resolve through
// the ids recorded by earlier creates in the same commit; a ref with no
// recorded id means the staging invariants were broken.
func resolveTarget(t Target, refIDs map[int]int64) (int64, error) {
	switch t.Kind {
	case TargetExisting:
		return t.ID, nil
	case TargetPending:
		id, ok := refIDs[t.Ref]
		if !ok {
			return 0, fmt.Errorf("pending #%d was never created in this commit", t.Ref)
		}
		return id, nil
	}
	return 0, fmt.Errorf("unknown target kind %q", t.Kind)
}

// commitError names the staged operation that failed so the agent can fix
// exactly that one.
type commitError struct {
	index int
	op    *PendingOp
	cause error
}

func (e *commitError) Error() string {
	return fmt.Sprintf("staged operation %d (%s %s) failed: %v", e.index+1, e.op.Type, e.op.Target, e.cause)
}

func (e *commitError) Unwrap() error { return e.cause }

type opCounts struct {
	created   int
	updated   int
	deleted   int
	completed int
}

func (c opCounts) summary() string {
	var parts []string
	if c.created > 0 {
		parts = append(parts, fmt.Sprintf("%d created", c.created))
	}
	if c.updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", c.updated))
	}
	if c.deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", c.deleted))
	}
	if c.completed > 0 {
		parts = append(parts, fmt.Sprintf("%d completed", c.completed))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}
