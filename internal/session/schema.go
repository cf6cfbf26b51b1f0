package session

import (
	"fmt"

	"github.com/maccam912/smart-todo-sub000/internal/task"
)

// CommandSchema describes one command the model may issue right now: its
// name, a description, and a JSON-schema object for its parameters. The
// shape converts directly into provider tool definitions.
type CommandSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CommandsFor returns the command catalog for a state. The catalog depends
// on the state alone, except that complete_session's description reflects
// how many operations are staged. Terminal sessions advertise nothing.
func CommandsFor(state State, staged int) []CommandSchema {
	switch state {
	case StateAwaitingCommand:
		return []CommandSchema{
			selectTaskSchema(),
			createTaskSchema(),
			discardAllSchema(),
			recordPlanSchema(),
			completeSessionSchema(staged),
		}
	case StateEditing:
		return []CommandSchema{
			selectTaskSchema(),
			createTaskSchema(),
			updateTaskFieldsSchema(),
			deleteTaskSchema(),
			completeTaskSchema(),
			exitEditingSchema(),
			discardAllSchema(),
			recordPlanSchema(),
			completeSessionSchema(staged),
		}
	}
	return nil
}

func selectTaskSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdSelectTask,
		Description: "Start editing a task. Pass task_id for an existing task or pending_ref for a task staged in this session.",
		Parameters: objectSchema(map[string]any{
			"task_id": map[string]any{
				"type":        "integer",
				"description": "Id of an existing, not yet completed task",
			},
			"pending_ref": map[string]any{
				"type":        "integer",
				"description": "Ref of a task staged with create_task in this session",
			},
		}),
	}
}

func createTaskSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdCreateTask,
		Description: "Stage creation of a new task. Nothing is written until complete_session.",
		Parameters:  objectSchema(taskFieldProperties(), "title"),
	}
}

func updateTaskFieldsSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdUpdateTaskFields,
		Description: "Stage field changes for the task currently being edited. Pass only the fields to change.",
		Parameters:  objectSchema(taskFieldProperties()),
	}
}

func deleteTaskSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdDeleteTask,
		Description: "Stage deletion of the task currently being edited. Deleting a task staged in this session just cancels it.",
		Parameters:  objectSchema(nil),
	}
}

func completeTaskSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdCompleteTask,
		Description: "Stage completion of the task currently being edited.",
		Parameters:  objectSchema(nil),
	}
}

func exitEditingSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdExitEditing,
		Description: "Stop editing the current task. Staged operations are kept.",
		Parameters:  objectSchema(nil),
	}
}

func discardAllSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdDiscardAll,
		Description: "Throw away every staged operation and stop editing.",
		Parameters:  objectSchema(nil),
	}
}

func recordPlanSchema() CommandSchema {
	return CommandSchema{
		Name:        CmdRecordPlan,
		Description: "Record a short plan for the remaining work. Plans are notes only and change no tasks.",
		Parameters: objectSchema(map[string]any{
			"plan": map[string]any{
				"type":        "string",
				"description": "One-line summary of the intended approach",
			},
			"steps": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Ordered steps, if useful",
			},
		}),
	}
}

func completeSessionSchema(staged int) CommandSchema {
	desc := "Finish the session without making any changes."
	if staged > 0 {
		desc = fmt.Sprintf("Commit all %d staged operation(s) atomically and finish the session.", staged)
	}
	return CommandSchema{
		Name:        CmdCompleteSession,
		Description: desc,
		Parameters:  objectSchema(nil),
	}
}

// taskFieldProperties is the parameter schema shared by create_task and
// update_task_fields: exactly the whitelisted task fields.
func taskFieldProperties() map[string]any {
	return map[string]any{
		task.FieldTitle: map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("Task title, at most %d characters", task.MaxTitleLength),
		},
		task.FieldDescription: map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("Free-form details, at most %d characters", task.MaxDescriptionLength),
		},
		task.FieldStatus: map[string]any{
			"type": "string",
			"enum": []string{
				string(task.StatusOpen),
				string(task.StatusInProgress),
				string(task.StatusBlocked),
				string(task.StatusDone),
			},
		},
		task.FieldUrgency: map[string]any{
			"type": "string",
			"enum": []string{
				string(task.UrgencyLow),
				string(task.UrgencyNormal),
				string(task.UrgencyHigh),
				string(task.UrgencyUrgent),
			},
		},
		task.FieldDueDate: map[string]any{
			"type":        "string",
			"description": "Due date as RFC 3339 date or datetime; empty string clears it",
		},
		task.FieldRecurrence: map[string]any{
			"type": "string",
			"enum": []string{
				string(task.RecurrenceNone),
				string(task.RecurrenceDaily),
				string(task.RecurrenceWeekly),
				string(task.RecurrenceMonthly),
			},
		},
		task.FieldAssigneeID: map[string]any{
			"type":        "string",
			"description": "Opaque assignee identifier",
		},
		task.FieldPrerequisiteIDs: map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "integer"},
			"description": "Ids of tasks that must be completed before this one",
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
