package session

// OpType is the kind of a staged operation.
type OpType string

const (
	OpCreate   OpType = "create"
	OpUpdate   OpType = "update"
	OpDelete   OpType = "delete"
	OpComplete OpType = "complete"
)

// PendingOp is one staged mutation. Ops live in the session's staging list
// in insertion order, which is also the order they replay against the store
// at commit. Attrs is only populated for create and update ops and holds
// whitelisted keys exclusively.
type PendingOp struct {
	Type   OpType
	Target Target
	Attrs  map[string]any
}

// mergeAttrs folds attrs into the staging list for target, preserving the
// staging invariants: a target has at most one attr-carrying op (its create,
// or one update), later keys overwrite earlier ones, and field changes always
// land ahead of a staged complete for the same target so completion sees
// them applied.
func (s *Session) mergeAttrs(target Target, attrs map[string]any) {
	for _, op := range s.pendingOps {
		if op.Target == target && (op.Type == OpCreate || op.Type == OpUpdate) {
			for k, v := range attrs {
				op.Attrs[k] = v
			}
			return
		}
	}

	newOp := &PendingOp{Type: OpUpdate, Target: target, Attrs: cloneAttrs(attrs)}
	for i, op := range s.pendingOps {
		if op.Target == target && op.Type == OpComplete {
			s.pendingOps = append(s.pendingOps[:i], append([]*PendingOp{newOp}, s.pendingOps[i:]...)...)
			return
		}
	}
	s.pendingOps = append(s.pendingOps, newOp)
}

// removeOpsFor drops every staged op for target. Used when a pending create
// is cancelled before commit.
func (s *Session) removeOpsFor(target Target) {
	kept := s.pendingOps[:0]
	for _, op := range s.pendingOps {
		if op.Target != target {
			kept = append(kept, op)
		}
	}
	s.pendingOps = kept
}

// findCreate returns the staged create for a pending ref, or nil when the
// ref was never staged or its create was cancelled.
func (s *Session) findCreate(ref int) *PendingOp {
	target := PendingTarget(ref)
	for _, op := range s.pendingOps {
		if op.Type == OpCreate && op.Target == target {
			return op
		}
	}
	return nil
}

// hasComplete reports whether completion is already staged for target.
func (s *Session) hasComplete(target Target) bool {
	for _, op := range s.pendingOps {
		if op.Type == OpComplete && op.Target == target {
			return true
		}
	}
	return false
}
