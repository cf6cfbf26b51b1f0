package task

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("  In_Progress ")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status)

	_, err = ParseStatus("finished")
	require.Error(t, err)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FieldStatus, fe.Field)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.False(t, StatusOpen.Terminal())
	assert.False(t, StatusBlocked.Terminal())
}

func TestUrgencyRank(t *testing.T) {
	assert.Less(t, UrgencyUrgent.Rank(), UrgencyHigh.Rank())
	assert.Less(t, UrgencyHigh.Rank(), UrgencyNormal.Rank())
	assert.Less(t, UrgencyNormal.Rank(), UrgencyLow.Rank())
}

func TestRecurrenceNext(t *testing.T) {
	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, from.AddDate(0, 0, 1), RecurrenceDaily.Next(from))
	assert.Equal(t, from.AddDate(0, 0, 7), RecurrenceWeekly.Next(from))
	assert.Equal(t, from.AddDate(0, 1, 0), RecurrenceMonthly.Next(from))
	assert.Equal(t, from, RecurrenceNone.Next(from))
}

func TestValidate(t *testing.T) {
	valid := &Task{
		ID:         1,
		Title:      "Write tests",
		Status:     StatusOpen,
		Urgency:    UrgencyNormal,
		Recurrence: RecurrenceNone,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Task)
		field  string
	}{
		{"empty title", func(tk *Task) { tk.Title = "  " }, FieldTitle},
		{"long title", func(tk *Task) { tk.Title = strings.Repeat("x", MaxTitleLength+1) }, FieldTitle},
		{"long description", func(tk *Task) { tk.Description = strings.Repeat("x", MaxDescriptionLength+1) }, FieldDescription},
		{"bad status", func(tk *Task) { tk.Status = "paused" }, FieldStatus},
		{"bad urgency", func(tk *Task) { tk.Urgency = "asap" }, FieldUrgency},
		{"bad recurrence", func(tk *Task) { tk.Recurrence = "yearly" }, FieldRecurrence},
		{"self prerequisite", func(tk *Task) { tk.PrerequisiteIDs = []int64{1} }, FieldPrerequisiteIDs},
		{"non-positive prerequisite", func(tk *Task) { tk.PrerequisiteIDs = []int64{-3} }, FieldPrerequisiteIDs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := valid.Clone()
			tt.mutate(tk)

			err := tk.Validate()
			require.Error(t, err)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestFilterAttrs(t *testing.T) {
	recognized, unknown := FilterAttrs(map[string]any{
		"title":    "Buy milk",
		"urgency":  "high",
		"priority": 1, // not a protocol field
		"notes":    "whole milk",
	})

	assert.Equal(t, map[string]any{"title": "Buy milk", "urgency": "high"}, recognized)
	assert.ElementsMatch(t, []string{"priority", "notes"}, unknown)
}

func TestPatchFromAttrs(t *testing.T) {
	patch, err := PatchFromAttrs(map[string]any{
		"title":            "Buy milk",
		"status":           "blocked",
		"urgency":          "urgent",
		"due_date":         "2026-09-01",
		"recurrence":       "weekly",
		"assignee_id":      "user-7",
		"prerequisite_ids": []any{float64(3), float64(4)},
	})
	require.NoError(t, err)

	require.NotNil(t, patch.Title)
	assert.Equal(t, "Buy milk", *patch.Title)
	require.NotNil(t, patch.Status)
	assert.Equal(t, StatusBlocked, *patch.Status)
	require.NotNil(t, patch.Urgency)
	assert.Equal(t, UrgencyUrgent, *patch.Urgency)
	require.True(t, patch.DueDateSet)
	require.NotNil(t, patch.DueDate)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), *patch.DueDate)
	require.NotNil(t, patch.Recurrence)
	assert.Equal(t, RecurrenceWeekly, *patch.Recurrence)
	require.NotNil(t, patch.AssigneeID)
	assert.Equal(t, "user-7", *patch.AssigneeID)
	assert.True(t, patch.PrerequisitesSet)
	assert.Equal(t, []int64{3, 4}, patch.PrerequisiteIDs)
	assert.False(t, patch.IsZero())
}

func TestPatchFromAttrsClearsDueDate(t *testing.T) {
	patch, err := PatchFromAttrs(map[string]any{"due_date": ""})
	require.NoError(t, err)
	assert.True(t, patch.DueDateSet)
	assert.Nil(t, patch.DueDate)

	patch, err = PatchFromAttrs(map[string]any{"due_date": nil})
	require.NoError(t, err)
	assert.True(t, patch.DueDateSet)
	assert.Nil(t, patch.DueDate)
}

func TestPatchFromAttrsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		field string
	}{
		{"numeric title", map[string]any{"title": 42}, FieldTitle},
		{"unknown status", map[string]any{"status": "paused"}, FieldStatus},
		{"garbled date", map[string]any{"due_date": "next tuesday"}, FieldDueDate},
		{"scalar prereqs", map[string]any{"prerequisite_ids": 3}, FieldPrerequisiteIDs},
		{"fractional prereq", map[string]any{"prerequisite_ids": []any{1.5}}, FieldPrerequisiteIDs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PatchFromAttrs(tt.attrs)
			require.Error(t, err)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestPatchApplyTo(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tk := &Task{
		ID:              5,
		Title:           "Old title",
		Status:          StatusOpen,
		Urgency:         UrgencyNormal,
		Recurrence:      RecurrenceNone,
		DueDate:         &now,
		PrerequisiteIDs: []int64{1},
	}

	patch, err := PatchFromAttrs(map[string]any{
		"title":            "New title",
		"due_date":         nil,
		"prerequisite_ids": []any{float64(2)},
	})
	require.NoError(t, err)

	patch.ApplyTo(tk)

	assert.Equal(t, "New title", tk.Title)
	assert.Nil(t, tk.DueDate)
	assert.Equal(t, []int64{2}, tk.PrerequisiteIDs)
	// Untouched fields survive.
	assert.Equal(t, StatusOpen, tk.Status)
	assert.Equal(t, UrgencyNormal, tk.Urgency)
}
