package task

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// The fixed whitelist of attribute fields the protocol may stage. Anything
// else arriving from the model is dropped before staging.
const (
	FieldTitle           = "title"
	FieldDescription     = "description"
	FieldStatus          = "status"
	FieldUrgency         = "urgency"
	FieldDueDate         = "due_date"
	FieldRecurrence      = "recurrence"
	FieldAssigneeID      = "assignee_id"
	FieldPrerequisiteIDs = "prerequisite_ids"
)

var allowedFields = []string{
	FieldTitle,
	FieldDescription,
	FieldStatus,
	FieldUrgency,
	FieldDueDate,
	FieldRecurrence,
	FieldAssigneeID,
	FieldPrerequisiteIDs,
}

// AllowedFields returns the attribute whitelist in a stable order.
func AllowedFields() []string {
	out := make([]string, len(allowedFields))
	copy(out, allowedFields)
	return out
}

// IsAllowedField reports whether name is a whitelisted attribute field.
func IsAllowedField(name string) bool {
	for _, f := range allowedFields {
		if f == name {
			return true
		}
	}
	return false
}

// FilterAttrs splits raw attributes into the whitelisted subset and the list
// of dropped keys. Values are not validated here; bad values surface when a
// patch is built at persistence time.
func FilterAttrs(attrs map[string]any) (map[string]any, []string) {
	recognized := make(map[string]any, len(attrs))
	var unknown []string
	for key, value := range attrs {
		if IsAllowedField(key) {
			recognized[key] = value
		} else {
			unknown = append(unknown, key)
		}
	}
	return recognized, unknown
}

// Patch is a typed, partial update built from raw attribute maps. Nil
// pointers mean "leave unchanged"; DueDateSet and PrerequisitesSet
// distinguish clearing from absence.
type Patch struct {
	Title            *string
	Description      *string
	Status           *Status
	Urgency          *Urgency
	DueDate          *time.Time
	DueDateSet       bool
	Recurrence       *Recurrence
	AssigneeID       *string
	PrerequisiteIDs  []int64
	PrerequisitesSet bool
}

// IsZero reports whether the patch changes nothing.
func (p *Patch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Urgency == nil && !p.DueDateSet && p.Recurrence == nil &&
		p.AssigneeID == nil && !p.PrerequisitesSet
}

// ApplyTo writes the patch onto a task in place.
func (p *Patch) ApplyTo(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Urgency != nil {
		t.Urgency = *p.Urgency
	}
	if p.DueDateSet {
		t.DueDate = p.DueDate
	}
	if p.Recurrence != nil {
		t.Recurrence = *p.Recurrence
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.PrerequisitesSet {
		t.PrerequisiteIDs = append([]int64(nil), p.PrerequisiteIDs...)
	}
}

// PatchFromAttrs coerces a raw attribute map (typically decoded JSON) into a
// typed patch. Unknown keys are ignored; a value of the wrong shape returns
// a FieldError naming the offending field.
func PatchFromAttrs(attrs map[string]any) (*Patch, error) {
	patch := &Patch{}

	for key, value := range attrs {
		switch key {
		case FieldTitle:
			s, err := coerceString(key, value)
			if err != nil {
				return nil, err
			}
			patch.Title = &s
		case FieldDescription:
			s, err := coerceString(key, value)
			if err != nil {
				return nil, err
			}
			patch.Description = &s
		case FieldStatus:
			s, err := coerceString(key, value)
			if err != nil {
				return nil, err
			}
			status, err := ParseStatus(s)
			if err != nil {
				return nil, err
			}
			patch.Status = &status
		case FieldUrgency:
			s, err := coerceString(key, value)
			if err != nil {
				return nil, err
			}
			urgency, err := ParseUrgency(s)
			if err != nil {
				return nil, err
			}
			patch.Urgency = &urgency
		case FieldDueDate:
			due, err := coerceDueDate(value)
			if err != nil {
				return nil, err
			}
			patch.DueDate = due
			patch.DueDateSet = true
		case FieldRecurrence:
			s, err := coerceString(key, value)
			if err != nil {
				return nil, err
			}
			rec, err := ParseRecurrence(s)
			if err != nil {
				return nil, err
			}
			patch.Recurrence = &rec
		case FieldAssigneeID:
			s, err := coerceString(key, value)
			if err != nil {
				return nil, err
			}
			patch.AssigneeID = &s
		case FieldPrerequisiteIDs:
			ids, err := coerceIDList(key, value)
			if err != nil {
				return nil, err
			}
			patch.PrerequisiteIDs = ids
			patch.PrerequisitesSet = true
		}
	}

	return patch, nil
}

func coerceString(field string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", &FieldError{Field: field, Reason: fmt.Sprintf("expected a string, got %T", value)}
	}
}

// coerceDueDate accepts an RFC 3339 timestamp or a bare date; nil and the
// empty string clear the due date.
func coerceDueDate(value any) (*time.Time, error) {
	raw, err := coerceString(FieldDueDate, value)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}
	if day, err := time.Parse("2006-01-02", raw); err == nil {
		utc := day.UTC()
		return &utc, nil
	}
	return nil, &FieldError{Field: FieldDueDate, Reason: fmt.Sprintf("cannot parse %q as a date (want YYYY-MM-DD or RFC 3339)", raw)}
}

func coerceIDList(field string, value any) ([]int64, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case []int64:
		return append([]int64(nil), v...), nil
	case []any:
		ids := make([]int64, 0, len(v))
		for _, item := range v {
			id, ok := coerceID(item)
			if !ok {
				return nil, &FieldError{Field: field, Reason: fmt.Sprintf("expected an array of task ids, got element %v", item)}
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, &FieldError{Field: field, Reason: fmt.Sprintf("expected an array of task ids, got %T", value)}
	}
}

// coerceID converts a JSON-decoded numeric value to an id. Floats with a
// fractional part are rejected.
func coerceID(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
