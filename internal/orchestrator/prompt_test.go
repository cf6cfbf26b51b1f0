package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccam912/smart-todo-sub000/internal/session"
)

func TestBuildSystemPromptSections(t *testing.T) {
	resp := &session.Response{
		State:   session.StateAwaitingCommand,
		Message: "staged changes to urgency for task 3",
		OpenTasks: []session.TaskView{
			{
				ID:              3,
				Title:           "Pay rent",
				Status:          "open",
				Urgency:         "high",
				DueDate:         "2026-09-01T00:00:00Z",
				Recurrence:      "monthly",
				AssigneeID:      "alice",
				PrerequisiteIDs: []int64{1, 2},
			},
		},
		PendingOperations: []session.OpView{
			{
				Type:   session.OpUpdate,
				Target: session.ExistingTarget(3),
				Attrs:  map[string]any{"urgency": "high"},
			},
		},
		PlanNotes: []session.PlanNote{
			{Plan: "bump rent urgency", Steps: []string{"select task 3", "set urgency"}},
		},
		AvailableCommands: session.CommandsFor(session.StateAwaitingCommand, 1),
	}

	prompt, err := buildSystemPrompt("alice", resp)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, systemPromptStatic))
	assert.Contains(t, prompt, "- Scope: alice")
	assert.Contains(t, prompt, "- Session state: awaiting_command")
	assert.Contains(t, prompt, `task 3 "Pay rent" (status open, urgency high, due 2026-09-01T00:00:00Z, repeats monthly, assignee alice, requires 1, 2)`)
	assert.Contains(t, prompt, "update task 3 with urgency=high")
	assert.Contains(t, prompt, "bump rent urgency; step 1: select task 3; step 2: set urgency")
	assert.Contains(t, prompt, "select_task: ")
	assert.Contains(t, prompt, "- Last command result: staged changes to urgency for task 3")
	assert.NotContains(t, prompt, "Last command error")
}

func TestBuildSystemPromptEmptyState(t *testing.T) {
	resp := &session.Response{
		State:             session.StateAwaitingCommand,
		AvailableCommands: session.CommandsFor(session.StateAwaitingCommand, 0),
	}

	prompt, err := buildSystemPrompt("bob", resp)
	require.NoError(t, err)

	assert.Contains(t, prompt, "- Open tasks: none")
	assert.Contains(t, prompt, "- Staged operations: none")
	assert.NotContains(t, prompt, "## Recorded plan")
	assert.NotContains(t, prompt, "- Editing:")
}

func TestBuildSystemPromptEditingTarget(t *testing.T) {
	target := session.PendingTarget(2)
	resp := &session.Response{
		State:             session.StateEditing,
		Editing:           &session.EditingView{Target: target},
		AvailableCommands: session.CommandsFor(session.StateEditing, 1),
	}

	prompt, err := buildSystemPrompt("bob", resp)
	require.NoError(t, err)

	assert.Contains(t, prompt, "- Editing: pending #2")
	assert.Contains(t, prompt, "- Session state: editing")
}

func TestDescribeTaskPending(t *testing.T) {
	line := describeTask(session.TaskView{
		PendingRef: 2,
		Title:      "New task",
		Status:     "open",
		Urgency:    "normal",
	})
	assert.Equal(t, `pending #2 "New task" (status open, urgency normal)`, line)
}

func TestDescribeTaskIncludesDescription(t *testing.T) {
	line := describeTask(session.TaskView{
		ID:          7,
		Title:       "Write report",
		Status:      "open",
		Urgency:     "normal",
		Description: "Quarterly numbers\nwith  odd   spacing",
	})
	assert.Contains(t, line, ": Quarterly numbers with odd spacing")
}

func TestDescribeOpWithoutAttrs(t *testing.T) {
	line := describeOp(session.OpView{
		Type:   session.OpDelete,
		Target: session.ExistingTarget(9),
	})
	assert.Equal(t, "delete task 9", line)
}

func TestCompactTextTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := compactText(long, 20)
	assert.Len(t, []rune(got), 23)
	assert.True(t, strings.HasSuffix(got, "..."))
}
