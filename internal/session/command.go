package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Command names as they appear in tool calls.
const (
	CmdSelectTask       = "select_task"
	CmdCreateTask       = "create_task"
	CmdUpdateTaskFields = "update_task_fields"
	CmdDeleteTask       = "delete_task"
	CmdCompleteTask     = "complete_task"
	CmdExitEditing      = "exit_editing"
	CmdDiscardAll       = "discard_all"
	CmdRecordPlan       = "record_plan"
	CmdCompleteSession  = "complete_session"
)

// Command is one protocol command, one variant per struct. ParseCommand
// builds variants structurally; whether a command is valid in the current
// state is decided by Session.Apply.
type Command interface {
	Name() string
}

// SelectTask enters editing for an existing task or a staged pending task.
// The Has* flags distinguish "absent" from zero values.
type SelectTask struct {
	TaskID        int64
	PendingRef    int
	HasTaskID     bool
	HasPendingRef bool
}

func (*SelectTask) Name() string { return CmdSelectTask }

// CreateTask stages a new task under a fresh pending ref.
type CreateTask struct {
	Attrs map[string]any
}

func (*CreateTask) Name() string { return CmdCreateTask }

// UpdateTaskFields merges whitelisted attrs into the staged operation for
// the task currently being edited.
type UpdateTaskFields struct {
	Attrs map[string]any
}

func (*UpdateTaskFields) Name() string { return CmdUpdateTaskFields }

// DeleteTask stages deletion of the edited task, or cancels its staged
// create when the target is pending.
type DeleteTask struct{}

func (*DeleteTask) Name() string { return CmdDeleteTask }

// CompleteTask stages completion of the edited task.
type CompleteTask struct{}

func (*CompleteTask) Name() string { return CmdCompleteTask }

// ExitEditing leaves editing mode, keeping everything staged.
type ExitEditing struct{}

func (*ExitEditing) Name() string { return CmdExitEditing }

// DiscardAll drops every staged operation and leaves editing mode.
type DiscardAll struct{}

func (*DiscardAll) Name() string { return CmdDiscardAll }

// RecordPlan appends a free-form plan note. Notes are context for later
// rounds and are never replayed against the store.
type RecordPlan struct {
	Plan  string
	Steps []string
}

func (*RecordPlan) Name() string { return CmdRecordPlan }

// CompleteSession commits all staged operations atomically and ends the
// session.
type CompleteSession struct{}

func (*CompleteSession) Name() string { return CmdCompleteSession }

// ParseCommand builds the command variant for a decoded tool-call argument
// map. It validates structure only (argument types); semantic checks like
// "is this valid in the current state" belong to Apply. Unknown names and
// malformed argument values are errors.
func ParseCommand(name string, args map[string]any) (Command, error) {
	switch name {
	case CmdSelectTask:
		cmd := &SelectTask{}
		if raw, ok := args["task_id"]; ok && raw != nil {
			id, err := intArg(raw, "task_id")
			if err != nil {
				return nil, err
			}
			cmd.TaskID = id
			cmd.HasTaskID = true
		}
		if raw, ok := args["pending_ref"]; ok && raw != nil {
			ref, err := intArg(raw, "pending_ref")
			if err != nil {
				return nil, err
			}
			cmd.PendingRef = int(ref)
			cmd.HasPendingRef = true
		}
		return cmd, nil

	case CmdCreateTask:
		return &CreateTask{Attrs: cloneAttrs(args)}, nil

	case CmdUpdateTaskFields:
		return &UpdateTaskFields{Attrs: cloneAttrs(args)}, nil

	case CmdDeleteTask:
		return &DeleteTask{}, nil

	case CmdCompleteTask:
		return &CompleteTask{}, nil

	case CmdExitEditing:
		return &ExitEditing{}, nil

	case CmdDiscardAll:
		return &DiscardAll{}, nil

	case CmdRecordPlan:
		cmd := &RecordPlan{}
		if raw, ok := args["plan"].(string); ok {
			cmd.Plan = raw
		}
		if raw, ok := args["steps"]; ok {
			steps, err := stringListArg(raw, "steps")
			if err != nil {
				return nil, err
			}
			cmd.Steps = steps
		}
		return cmd, nil

	case CmdCompleteSession:
		return &CompleteSession{}, nil
	}

	return nil, fmt.Errorf("unknown command %q", name)
}

func cloneAttrs(args map[string]any) map[string]any {
	attrs := make(map[string]any, len(args))
	for k, v := range args {
		attrs[k] = v
	}
	return attrs
}

// intArg coerces the number representations JSON decoding and model output
// produce into an int64.
func intArg(raw any, field string) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer, got %v", field, v)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", field, v.String())
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", field, v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s must be an integer, got %T", field, raw)
}

func stringListArg(raw any, field string) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings, got %T element", field, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must be a list of strings, got %T", field, raw)
}
