// Package session implements the command protocol an LLM drives to edit a
// task list. The model never mutates tasks directly: it issues one command
// per turn, mutations accumulate as staged operations, and everything is
// written in a single store transaction when the session completes.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/maccam912/smart-todo-sub000/internal/logger"
	"github.com/maccam912/smart-todo-sub000/internal/store"
	"github.com/maccam912/smart-todo-sub000/internal/task"
)

// State is the session's position in the command protocol.
type State string

const (
	// StateAwaitingCommand accepts any non-editing command.
	StateAwaitingCommand State = "awaiting_command"
	// StateEditing has a selected target; field-level commands apply to it.
	StateEditing State = "editing"
	// StateCompleted is terminal. Every further command is rejected.
	StateCompleted State = "completed"
)

// Session holds the in-memory protocol state for one agent run over one
// scope's task list. A session is driven by a single loop and is not safe
// for concurrent use; the store transaction at commit is the only
// cross-session consistency boundary.
type Session struct {
	id             string
	scope          string
	store          store.Store
	state          State
	pendingOps     []*PendingOp
	editTarget     *Target
	nextPendingRef int
	planNotes      []PlanNote

	log *logger.Logger
}

// PlanNote is one record_plan entry. Notes are rendered back to the model
// on every turn but never touch the store.
type PlanNote struct {
	Plan  string   `json:"plan,omitempty"`
	Steps []string `json:"steps,omitempty"`
}

// New creates a session over the given scope's tasks.
func New(st store.Store, scope string) *Session {
	return &Session{
		id:             uuid.NewString(),
		scope:          scope,
		store:          st,
		state:          StateAwaitingCommand,
		nextPendingRef: 1,
		log:            logger.Global().WithPrefix("session"),
	}
}

// ID returns the session identifier minted at creation.
func (s *Session) ID() string { return s.id }

// Scope returns the owner identity this session operates on.
func (s *Session) Scope() string { return s.scope }

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// Completed reports whether the session reached its terminal state.
func (s *Session) Completed() bool { return s.state == StateCompleted }

// PendingOps returns the staged operations in insertion order. The slice is
// a copy, the ops are shared.
func (s *Session) PendingOps() []*PendingOp {
	return append([]*PendingOp(nil), s.pendingOps...)
}

// Apply runs one command against the session and returns the rendered
// response for the model's next turn. Failures are signalled through
// Response.Error and leave the session state untouched.
func (s *Session) Apply(ctx context.Context, cmd Command) *Response {
	if s.state == StateCompleted {
		return s.fail(ctx, "session is already completed; no further commands are accepted")
	}

	s.log.Debug("session %s: %s in state %s", s.id, cmd.Name(), s.state)

	switch c := cmd.(type) {
	case *SelectTask:
		return s.applySelect(ctx, c)
	case *CreateTask:
		return s.applyCreate(ctx, c)
	case *UpdateTaskFields:
		return s.applyUpdate(ctx, c)
	case *DeleteTask:
		return s.applyDelete(ctx)
	case *CompleteTask:
		return s.applyComplete(ctx)
	case *ExitEditing:
		return s.applyExit(ctx)
	case *DiscardAll:
		return s.applyDiscard(ctx)
	case *RecordPlan:
		return s.applyPlan(ctx, c)
	case *CompleteSession:
		return s.commit(ctx)
	}
	return s.fail(ctx, fmt.Sprintf("unsupported command %q", cmd.Name()))
}

func (s *Session) applySelect(ctx context.Context, cmd *SelectTask) *Response {
	switch {
	case cmd.HasTaskID:
		t, err := s.store.Get(ctx, s.scope, cmd.TaskID)
		if err != nil {
			if store.IsNotFound(err) {
				return s.fail(ctx, fmt.Sprintf("task %d does not exist", cmd.TaskID))
			}
			return s.fail(ctx, fmt.Sprintf("failed to look up task %d: %v", cmd.TaskID, err))
		}
		if t.Status.Terminal() {
			return s.fail(ctx, fmt.Sprintf("task %d is already completed and cannot be edited", cmd.TaskID))
		}
		target := ExistingTarget(cmd.TaskID)
		s.editTarget = &target
		s.state = StateEditing
		return s.ok(ctx, fmt.Sprintf("editing task %d (%q)", cmd.TaskID, t.Title))

	case cmd.HasPendingRef:
		if s.findCreate(cmd.PendingRef) == nil {
			return s.fail(ctx, fmt.Sprintf("pending #%d does not exist in this session", cmd.PendingRef))
		}
		target := PendingTarget(cmd.PendingRef)
		s.editTarget = &target
		s.state = StateEditing
		return s.ok(ctx, fmt.Sprintf("editing pending #%d", cmd.PendingRef))
	}
	return s.fail(ctx, "select_task requires task_id or pending_ref")
}

func (s *Session) applyCreate(ctx context.Context, cmd *CreateTask) *Response {
	recognized, unknown := task.FilterAttrs(cmd.Attrs)

	title, _ := recognized[task.FieldTitle].(string)
	if strings.TrimSpace(title) == "" {
		return s.fail(ctx, "create_task requires a non-empty title")
	}

	ref := s.nextPendingRef
	s.nextPendingRef++
	s.pendingOps = append(s.pendingOps, &PendingOp{
		Type:   OpCreate,
		Target: PendingTarget(ref),
		Attrs:  recognized,
	})

	msg := fmt.Sprintf("staged creation of %q as pending #%d", title, ref)
	if len(unknown) > 0 {
		msg += fmt.Sprintf("; ignored unknown fields: %s", strings.Join(unknown, ", "))
	}
	return s.ok(ctx, msg)
}

func (s *Session) applyUpdate(ctx context.Context, cmd *UpdateTaskFields) *Response {
	if s.state != StateEditing || s.editTarget == nil {
		return s.fail(ctx, "update_task_fields is only valid while editing a task")
	}

	recognized, unknown := task.FilterAttrs(cmd.Attrs)
	if len(recognized) == 0 {
		return s.fail(ctx, "update_task_fields requires at least one recognized field")
	}

	target := *s.editTarget
	s.mergeAttrs(target, recognized)

	fields := make([]string, 0, len(recognized))
	for k := range recognized {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	msg := fmt.Sprintf("staged changes to %s for %s", strings.Join(fields, ", "), target)
	if len(unknown) > 0 {
		msg += fmt.Sprintf("; ignored unknown fields: %s", strings.Join(unknown, ", "))
	}
	return s.ok(ctx, msg)
}

func (s *Session) applyDelete(ctx context.Context) *Response {
	if s.state != StateEditing || s.editTarget == nil {
		return s.fail(ctx, "delete_task is only valid while editing a task")
	}

	target := *s.editTarget
	var msg string
	if target.Kind == TargetPending {
		s.removeOpsFor(target)
		msg = fmt.Sprintf("cancelled pending #%d before it was created", target.Ref)
	} else {
		s.pendingOps = append(s.pendingOps, &PendingOp{Type: OpDelete, Target: target})
		msg = fmt.Sprintf("staged deletion of task %d", target.ID)
	}

	s.editTarget = nil
	s.state = StateAwaitingCommand
	return s.ok(ctx, msg)
}

func (s *Session) applyComplete(ctx context.Context) *Response {
	if s.state != StateEditing || s.editTarget == nil {
		return s.fail(ctx, "complete_task is only valid while editing a task")
	}

	target := *s.editTarget
	if target.Kind == TargetPending {
		return s.fail(ctx, fmt.Sprintf("pending #%d cannot be completed before it is created", target.Ref))
	}
	if s.hasComplete(target) {
		return s.ok(ctx, fmt.Sprintf("task %d is already staged for completion", target.ID))
	}

	s.pendingOps = append(s.pendingOps, &PendingOp{Type: OpComplete, Target: target})
	return s.ok(ctx, fmt.Sprintf("staged completion of task %d", target.ID))
}

func (s *Session) applyExit(ctx context.Context) *Response {
	if s.state != StateEditing {
		return s.fail(ctx, "exit_editing is only valid while editing a task")
	}
	s.editTarget = nil
	s.state = StateAwaitingCommand
	return s.ok(ctx, "stopped editing; staged operations are kept")
}

func (s *Session) applyDiscard(ctx context.Context) *Response {
	n := len(s.pendingOps)
	s.pendingOps = nil
	s.editTarget = nil
	s.state = StateAwaitingCommand
	if n == 0 {
		return s.ok(ctx, "nothing was staged")
	}
	return s.ok(ctx, fmt.Sprintf("discarded %d staged operation(s)", n))
}

func (s *Session) applyPlan(ctx context.Context, cmd *RecordPlan) *Response {
	if strings.TrimSpace(cmd.Plan) == "" && len(cmd.Steps) == 0 {
		return s.fail(ctx, "record_plan requires a plan or at least one step")
	}
	s.planNotes = append(s.planNotes, PlanNote{Plan: cmd.Plan, Steps: cmd.Steps})
	return s.ok(ctx, "plan recorded")
}
