package orchestrator

import (
	"fmt"

	"github.com/maccam912/smart-todo-sub000/internal/llm"
	"github.com/maccam912/smart-todo-sub000/internal/session"
)

// ErrorKind classifies why a run stopped without completing its session.
type ErrorKind string

const (
	// ErrMaxRounds means the round budget ran out before complete_session.
	ErrMaxRounds ErrorKind = "max_rounds"
	// ErrMaxErrors means too many consecutive command failures.
	ErrMaxErrors ErrorKind = "max_errors"
	// ErrTransport means the model call itself failed, including timeouts.
	ErrTransport ErrorKind = "transport"
	// ErrUnsupportedCommand means the model replied without a tool call or
	// called a command outside the advertised catalog.
	ErrUnsupportedCommand ErrorKind = "unsupported_command"
	// ErrInvalidArguments means the command arguments did not decode or did
	// not match the command's parameter types.
	ErrInvalidArguments ErrorKind = "invalid_arguments"
)

// RunError reports a failed run with enough context to debug it: the round
// it died in, the offending command when there was one, the last rendered
// session state, and the conversation as it was sent to the model. Nothing
// staged in the failed session reaches the store.
type RunError struct {
	Kind     ErrorKind
	Round    int
	Command  string
	Response *session.Response
	History  []*llm.Message
	Err      error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("run failed in round %d: %s", e.Round, e.Kind)
	if e.Command != "" {
		msg += fmt.Sprintf(" (command %s)", e.Command)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }
