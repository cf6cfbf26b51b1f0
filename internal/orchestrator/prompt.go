package orchestrator

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maccam912/smart-todo-sub000/internal/session"
)

// maxDescriptionChars bounds how much of a task description the prompt
// repeats each round. The full text still lives in the store.
const maxDescriptionChars = 160

// systemPromptData feeds the volatile zones of the prompt template. The
// command catalog and plan notes change rarely within a run; the task and
// staging sections change on almost every round.
type systemPromptData struct {
	Scope     string
	State     string
	Editing   string
	Commands  []string
	PlanNotes []string
	OpenTasks []string
	StagedOps []string
	Message   string
	Error     string
}

// buildSystemPrompt renders the system prompt for the next model turn from
// the latest session response.
func buildSystemPrompt(scope string, resp *session.Response) (string, error) {
	data := systemPromptData{
		Scope:     scope,
		State:     string(resp.State),
		Commands:  describeCommands(resp.AvailableCommands),
		PlanNotes: describePlanNotes(resp.PlanNotes),
		OpenTasks: describeTasks(resp.OpenTasks),
		StagedOps: describeOps(resp.PendingOperations),
		Message:   resp.Message,
		Error:     resp.Error,
	}
	if resp.Editing != nil {
		data.Editing = resp.Editing.Target.String()
	}

	var buf bytes.Buffer
	if err := systemPrompt.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func describeCommands(schemas []session.CommandSchema) []string {
	lines := make([]string, 0, len(schemas))
	for _, s := range schemas {
		lines = append(lines, fmt.Sprintf("%s: %s", s.Name, s.Description))
	}
	return lines
}

func describePlanNotes(notes []session.PlanNote) []string {
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		var parts []string
		if strings.TrimSpace(n.Plan) != "" {
			parts = append(parts, n.Plan)
		}
		for i, step := range n.Steps {
			parts = append(parts, fmt.Sprintf("step %d: %s", i+1, step))
		}
		lines = append(lines, strings.Join(parts, "; "))
	}
	return lines
}

func describeTasks(views []session.TaskView) []string {
	lines := make([]string, 0, len(views))
	for _, v := range views {
		lines = append(lines, describeTask(v))
	}
	return lines
}

func describeTask(v session.TaskView) string {
	var b strings.Builder
	if v.ID != 0 {
		fmt.Fprintf(&b, "task %d %q", v.ID, v.Title)
	} else {
		fmt.Fprintf(&b, "pending #%d %q", v.PendingRef, v.Title)
	}

	details := []string{"status " + v.Status, "urgency " + v.Urgency}
	if v.DueDate != "" {
		details = append(details, "due "+v.DueDate)
	}
	if v.Recurrence != "" {
		details = append(details, "repeats "+v.Recurrence)
	}
	if v.AssigneeID != "" {
		details = append(details, "assignee "+v.AssigneeID)
	}
	if len(v.PrerequisiteIDs) > 0 {
		ids := make([]string, 0, len(v.PrerequisiteIDs))
		for _, id := range v.PrerequisiteIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		details = append(details, "requires "+strings.Join(ids, ", "))
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))

	if v.Description != "" {
		fmt.Fprintf(&b, ": %s", compactText(v.Description, maxDescriptionChars))
	}
	return b.String()
}

func describeOps(views []session.OpView) []string {
	lines := make([]string, 0, len(views))
	for _, v := range views {
		lines = append(lines, describeOp(v))
	}
	return lines
}

func describeOp(v session.OpView) string {
	line := fmt.Sprintf("%s %s", v.Type, v.Target)
	if len(v.Attrs) == 0 {
		return line
	}
	keys := make([]string, 0, len(v.Attrs))
	for k := range v.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v.Attrs[k]))
	}
	return line + " with " + strings.Join(pairs, ", ")
}

// compactText collapses whitespace and caps the length so one staged task
// cannot flood the prompt.
func compactText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
