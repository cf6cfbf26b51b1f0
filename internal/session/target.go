package session

import (
	"encoding/json"
	"fmt"
)

// TargetKind discriminates the two ways a staged operation can point at a
// task.
type TargetKind string

const (
	// TargetExisting points at a task row that already exists in the store.
	TargetExisting TargetKind = "existing"
	// TargetPending points at a staged create that has no id yet.
	TargetPending TargetKind = "pending"
)

// Target identifies the task a command or staged operation acts on. Existing
// targets carry a store id, pending targets carry the ref minted when their
// create was staged. Comparison is structural, so Target values work as map
// keys and with ==.
type Target struct {
	Kind TargetKind
	ID   int64
	Ref  int
}

// ExistingTarget returns a Target for a persisted task id.
func ExistingTarget(id int64) Target {
	return Target{Kind: TargetExisting, ID: id}
}

// PendingTarget returns a Target for a staged-but-unpersisted task.
func PendingTarget(ref int) Target {
	return Target{Kind: TargetPending, Ref: ref}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetExisting:
		return fmt.Sprintf("task %d", t.ID)
	case TargetPending:
		return fmt.Sprintf("pending #%d", t.Ref)
	}
	return "unknown target"
}

// MarshalJSON renders the variant that is actually set, so the model sees
// {"kind":"existing","task_id":N} or {"kind":"pending","pending_ref":N}.
func (t Target) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TargetExisting:
		return json.Marshal(struct {
			Kind   TargetKind `json:"kind"`
			TaskID int64      `json:"task_id"`
		}{t.Kind, t.ID})
	case TargetPending:
		return json.Marshal(struct {
			Kind       TargetKind `json:"kind"`
			PendingRef int        `json:"pending_ref"`
		}{t.Kind, t.Ref})
	}
	return nil, fmt.Errorf("cannot marshal target with kind %q", t.Kind)
}
