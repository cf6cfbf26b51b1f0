package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maccam912/smart-todo-sub000/internal/task"
)

// Response is the full state rendering returned after every command. It is
// a pure function of the session: the same session state always renders the
// same response (modulo the store's current task list).
type Response struct {
	State             State           `json:"state"`
	Message           string          `json:"message,omitempty"`
	Error             string          `json:"error,omitempty"`
	OpenTasks         []TaskView      `json:"open_tasks"`
	PendingOperations []OpView        `json:"pending_operations"`
	Editing           *EditingView    `json:"editing,omitempty"`
	PlanNotes         []PlanNote      `json:"plan_notes,omitempty"`
	AvailableCommands []CommandSchema `json:"available_commands,omitempty"`
}

// TaskView is a task as shown to the model: either a persisted row (ID set)
// with any staged changes overlaid, or a synthetic preview of a staged
// create (PendingRef set).
type TaskView struct {
	ID              int64   `json:"id,omitempty"`
	PendingRef      int     `json:"pending_ref,omitempty"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Status          string  `json:"status"`
	Urgency         string  `json:"urgency"`
	DueDate         string  `json:"due_date,omitempty"`
	Recurrence      string  `json:"recurrence,omitempty"`
	AssigneeID      string  `json:"assignee_id,omitempty"`
	PrerequisiteIDs []int64 `json:"prerequisite_ids,omitempty"`
}

// OpView summarizes one staged operation.
type OpView struct {
	Type   OpType         `json:"type"`
	Target Target         `json:"target"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// EditingView describes the current edit target and the attrs already
// staged for it.
type EditingView struct {
	Target      Target         `json:"target"`
	StagedAttrs map[string]any `json:"staged_attrs,omitempty"`
}

// Allows reports whether the response advertises a command name. The loop
// uses it to catch the model calling something outside the current catalog.
func (r *Response) Allows(name string) bool {
	for _, c := range r.AvailableCommands {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ToolDefinitions converts the advertised commands into provider tool
// definitions.
func (r *Response) ToolDefinitions() []map[string]any {
	if len(r.AvailableCommands) == 0 {
		return nil
	}
	tools := make([]map[string]any, 0, len(r.AvailableCommands))
	for _, c := range r.AvailableCommands {
		tools = append(tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        c.Name,
				"description": c.Description,
				"parameters":  c.Parameters,
			},
		})
	}
	return tools
}

// PayloadJSON renders the response as the tool-result payload for the next
// model turn. Available commands travel separately as tool definitions, so
// they are stripped here to keep turns compact.
func (r *Response) PayloadJSON() string {
	trimmed := *r
	trimmed.AvailableCommands = nil
	b, err := json.Marshal(&trimmed)
	if err != nil {
		return fmt.Sprintf(`{"state":%q,"error":"failed to render state"}`, r.State)
	}
	return string(b)
}

// Render computes the response for the session as it stands, with no
// message. The orchestrator uses it to seed the first turn.
func (s *Session) Render(ctx context.Context) *Response {
	return s.render(ctx, "", "")
}

func (s *Session) ok(ctx context.Context, message string) *Response {
	return s.render(ctx, message, "")
}

func (s *Session) fail(ctx context.Context, errMsg string) *Response {
	return s.render(ctx, "", errMsg)
}

func (s *Session) render(ctx context.Context, message, errMsg string) *Response {
	resp := &Response{
		State:             s.state,
		Message:           message,
		Error:             errMsg,
		PendingOperations: s.opViews(),
		PlanNotes:         append([]PlanNote(nil), s.planNotes...),
		AvailableCommands: CommandsFor(s.state, len(s.pendingOps)),
	}

	open, err := s.previewOpenTasks(ctx)
	if err != nil {
		s.log.Warn("session %s: failed to list open tasks: %v", s.id, err)
		if resp.Error == "" {
			resp.Error = fmt.Sprintf("failed to list open tasks: %v", err)
		}
	}
	resp.OpenTasks = open

	if s.state == StateEditing && s.editTarget != nil {
		resp.Editing = s.editingView()
	}
	return resp
}

func (s *Session) opViews() []OpView {
	views := make([]OpView, 0, len(s.pendingOps))
	for _, op := range s.pendingOps {
		views = append(views, OpView{
			Type:   op.Type,
			Target: op.Target,
			Attrs:  cloneAttrs(op.Attrs),
		})
	}
	return views
}

func (s *Session) editingView() *EditingView {
	target := *s.editTarget
	view := &EditingView{Target: target}
	for _, op := range s.pendingOps {
		if op.Target == target && (op.Type == OpCreate || op.Type == OpUpdate) {
			view.StagedAttrs = cloneAttrs(op.Attrs)
			break
		}
	}
	return view
}

// previewOpenTasks merges the store's open tasks with the staged effects:
// staged updates overlay their fields, staged deletes and completes drop
// the task from the view, and each staged create contributes a synthetic
// entry carrying its pending ref.
func (s *Session) previewOpenTasks(ctx context.Context) ([]TaskView, error) {
	tasks, err := s.store.ListOpen(ctx, s.scope)
	if err != nil {
		return nil, err
	}

	removed := make(map[int64]bool)
	overlays := make(map[int64]map[string]any)
	var creates []*PendingOp
	for _, op := range s.pendingOps {
		switch op.Type {
		case OpCreate:
			creates = append(creates, op)
		case OpUpdate:
			if op.Target.Kind == TargetExisting {
				overlay := overlays[op.Target.ID]
				if overlay == nil {
					overlay = make(map[string]any, len(op.Attrs))
					overlays[op.Target.ID] = overlay
				}
				for k, v := range op.Attrs {
					overlay[k] = v
				}
			}
		case OpDelete, OpComplete:
			if op.Target.Kind == TargetExisting {
				removed[op.Target.ID] = true
			}
		}
	}

	views := make([]TaskView, 0, len(tasks)+len(creates))
	for _, t := range tasks {
		if removed[t.ID] {
			continue
		}
		view := taskView(t)
		if overlay, ok := overlays[t.ID]; ok {
			overlayAttrs(&view, overlay)
		}
		views = append(views, view)
	}
	for _, op := range creates {
		view := TaskView{
			PendingRef: op.Target.Ref,
			Status:     string(task.StatusOpen),
			Urgency:    string(task.UrgencyNormal),
		}
		overlayAttrs(&view, op.Attrs)
		views = append(views, view)
	}
	return views, nil
}

func taskView(t *task.Task) TaskView {
	view := TaskView{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Status:          string(t.Status),
		Urgency:         string(t.Urgency),
		AssigneeID:      t.AssigneeID,
		PrerequisiteIDs: append([]int64(nil), t.PrerequisiteIDs...),
	}
	if t.DueDate != nil {
		view.DueDate = t.DueDate.UTC().Format(time.RFC3339)
	}
	if t.Recurrence != task.RecurrenceNone {
		view.Recurrence = string(t.Recurrence)
	}
	return view
}

// overlayAttrs applies staged attrs onto a view. Values that coerce cleanly
// are shown typed; anything unparseable is shown verbatim, since the preview
// reflects what is staged, not what would survive validation.
func overlayAttrs(view *TaskView, attrs map[string]any) {
	patch, err := task.PatchFromAttrs(attrs)
	if err == nil {
		if patch.Title != nil {
			view.Title = *patch.Title
		}
		if patch.Description != nil {
			view.Description = *patch.Description
		}
		if patch.Status != nil {
			view.Status = string(*patch.Status)
		}
		if patch.Urgency != nil {
			view.Urgency = string(*patch.Urgency)
		}
		if patch.DueDateSet {
			if patch.DueDate != nil {
				view.DueDate = patch.DueDate.UTC().Format(time.RFC3339)
			} else {
				view.DueDate = ""
			}
		}
		if patch.Recurrence != nil {
			if *patch.Recurrence == task.RecurrenceNone {
				view.Recurrence = ""
			} else {
				view.Recurrence = string(*patch.Recurrence)
			}
		}
		if patch.AssigneeID != nil {
			view.AssigneeID = *patch.AssigneeID
		}
		if patch.PrerequisitesSet {
			view.PrerequisiteIDs = append([]int64(nil), patch.PrerequisiteIDs...)
		}
		return
	}

	for key, raw := range attrs {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		switch key {
		case task.FieldTitle:
			view.Title = str
		case task.FieldDescription:
			view.Description = str
		case task.FieldStatus:
			view.Status = str
		case task.FieldUrgency:
			view.Urgency = str
		case task.FieldDueDate:
			view.DueDate = str
		case task.FieldRecurrence:
			view.Recurrence = str
		case task.FieldAssigneeID:
			view.AssigneeID = str
		}
	}
}
