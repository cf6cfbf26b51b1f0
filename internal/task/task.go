package task

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a task. Only StatusDone is terminal.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// Terminal reports whether the status ends the task's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDone
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusDone:
		return true
	}
	return false
}

// ParseStatus parses a string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &FieldError{Field: FieldStatus, Reason: fmt.Sprintf("unknown status %q", raw)}
	}
	return s, nil
}

// Urgency orders tasks for presentation. It never gates transitions.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Valid reports whether the urgency is a known value.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

// Rank returns the sort rank of the urgency, most urgent first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyUrgent:
		return 0
	case UrgencyHigh:
		return 1
	case UrgencyNormal:
		return 2
	case UrgencyLow:
		return 3
	default:
		return 4
	}
}

// ParseUrgency parses a string into an Urgency.
func ParseUrgency(raw string) (Urgency, error) {
	u := Urgency(strings.ToLower(strings.TrimSpace(raw)))
	if !u.Valid() {
		return "", &FieldError{Field: FieldUrgency, Reason: fmt.Sprintf("unknown urgency %q", raw)}
	}
	return u, nil
}

// Recurrence describes how a task repeats after completion.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether the recurrence is a known value.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Next returns the occurrence following from. RecurrenceNone returns from
// unchanged.
func (r Recurrence) Next(from time.Time) time.Time {
	switch r {
	case RecurrenceDaily:
		return from.AddDate(0, 0, 1)
	case RecurrenceWeekly:
		return from.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from
	}
}

// ParseRecurrence parses a string into a Recurrence.
func ParseRecurrence(raw string) (Recurrence, error) {
	r := Recurrence(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", &FieldError{Field: FieldRecurrence, Reason: fmt.Sprintf("unknown recurrence %q", raw)}
	}
	return r, nil
}

const (
	// MaxTitleLength bounds task titles.
	MaxTitleLength = 200
	// MaxDescriptionLength bounds task descriptions.
	MaxDescriptionLength = 2000
)

// Task is one entry in a user's task list. Scope identifies the owner and is
// never exposed to the model.
type Task struct {
	ID              int64      `json:"id"`
	Scope           string     `json:"-"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Status          Status     `json:"status"`
	Urgency         Urgency    `json:"urgency"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Recurrence      Recurrence `json:"recurrence,omitempty"`
	AssigneeID      string     `json:"assignee_id,omitempty"`
	PrerequisiteIDs []int64    `json:"prerequisite_ids,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Validate checks the task's own fields. Cross-task rules (prerequisite
// existence) belong to the store.
func (t *Task) Validate() error {
	title := strings.TrimSpace(t.Title)
	if title == "" {
		return &FieldError{Field: FieldTitle, Reason: "title is required"}
	}
	if len(t.Title) > MaxTitleLength {
		return &FieldError{Field: FieldTitle, Reason: fmt.Sprintf("title exceeds %d characters", MaxTitleLength)}
	}
	if len(t.Description) > MaxDescriptionLength {
		return &FieldError{Field: FieldDescription, Reason: fmt.Sprintf("description exceeds %d characters", MaxDescriptionLength)}
	}
	if !t.Status.Valid() {
		return &FieldError{Field: FieldStatus, Reason: fmt.Sprintf("unknown status %q", t.Status)}
	}
	if !t.Urgency.Valid() {
		return &FieldError{Field: FieldUrgency, Reason: fmt.Sprintf("unknown urgency %q", t.Urgency)}
	}
	if !t.Recurrence.Valid() {
		return &FieldError{Field: FieldRecurrence, Reason: fmt.Sprintf("unknown recurrence %q", t.Recurrence)}
	}
	for _, id := range t.PrerequisiteIDs {
		if id == t.ID && id != 0 {
			return &FieldError{Field: FieldPrerequisiteIDs, Reason: "a task cannot be its own prerequisite"}
		}
		if id <= 0 {
			return &FieldError{Field: FieldPrerequisiteIDs, Reason: fmt.Sprintf("invalid prerequisite id %d", id)}
		}
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.DueDate != nil {
		due := *t.DueDate
		clone.DueDate = &due
	}
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		clone.CompletedAt = &done
	}
	if t.PrerequisiteIDs != nil {
		clone.PrerequisiteIDs = append([]int64(nil), t.PrerequisiteIDs...)
	}
	return &clone
}

// FieldError reports an invalid value for a named task field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
