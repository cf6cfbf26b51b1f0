// Package store owns task persistence. The session protocol in
// internal/session stages mutations in memory and applies them here, either
// one call at a time or atomically through WithTx.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/maccam912/smart-todo-sub000/internal/task"
)

// ErrNotFound is returned when a task id does not exist within a scope.
var ErrNotFound = errors.New("task not found")

// ValidationError rejects a write whose values violate task rules. It is
// recoverable: the caller may correct the attributes and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the task persistence surface consumed by sessions and the CLI.
// Every call is scoped to an owning principal; no call ever crosses scopes.
type Store interface {
	Create(ctx context.Context, scope string, attrs map[string]any) (*task.Task, error)
	Update(ctx context.Context, scope string, id int64, attrs map[string]any) (*task.Task, error)
	Delete(ctx context.Context, scope string, id int64) (*task.Task, error)
	Complete(ctx context.Context, scope string, id int64) (*task.Task, error)
	ListOpen(ctx context.Context, scope string) ([]*task.Task, error)
	Get(ctx context.Context, scope string, id int64) (*task.Task, error)

	// WithTx runs fn inside a single transaction. A nil return commits;
	// an error or panic rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the write operations inside one transaction.
type Tx interface {
	Create(ctx context.Context, scope string, attrs map[string]any) (*task.Task, error)
	Update(ctx context.Context, scope string, id int64, attrs map[string]any) (*task.Task, error)
	Delete(ctx context.Context, scope string, id int64) (*task.Task, error)
	Complete(ctx context.Context, scope string, id int64) (*task.Task, error)
	Get(ctx context.Context, scope string, id int64) (*task.Task, error)
}
