// Package orchestrator drives a task-list session against an LLM. Each round
// it renders the session state into the system prompt, sends the conversation
// with the currently advertised commands as tools, applies the single command
// the model calls, and feeds the resulting state back as the tool result. The
// loop ends when the session completes or a budget or protocol violation
// kills the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maccam912/smart-todo-sub000/internal/consts"
	"github.com/maccam912/smart-todo-sub000/internal/llm"
	"github.com/maccam912/smart-todo-sub000/internal/logger"
	"github.com/maccam912/smart-todo-sub000/internal/session"
	"github.com/maccam912/smart-todo-sub000/internal/store"
)

// CallFunc sends one completion request to a model. Production runs use the
// client's CompleteWithRequest; tests inject scripted implementations.
type CallFunc func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)

// Options configures a run. Zero fields fall back to the defaults; one of
// Client or CallModel must be set.
type Options struct {
	// MaxRounds bounds the total number of model rounds in the run.
	MaxRounds int
	// MaxErrors bounds consecutive failed commands. A successful command
	// resets the count.
	MaxErrors int
	// ReceiveTimeout bounds each individual model call.
	ReceiveTimeout time.Duration
	// MaxTokens is the completion budget passed to the model.
	MaxTokens int
	// Temperature is passed through to the model when non-zero.
	Temperature float64

	// Client is the model to drive. When CallModel is also set the client is
	// not called, but its model name still selects the token encoding.
	Client llm.Client
	// CallModel overrides how completion requests are sent.
	CallModel CallFunc
}

func (o Options) withDefaults() Options {
	if o.MaxRounds <= 0 {
		o.MaxRounds = consts.DefaultMaxRounds
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = consts.DefaultMaxErrors
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = consts.Timeout2Minutes
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = consts.DefaultMaxTokens
	}
	return o
}

// ExecutedCommand records one command the model issued and how it went.
type ExecutedCommand struct {
	Round  int            `json:"round"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// Result is a completed run: the session reached its terminal state and all
// staged operations were committed.
type Result struct {
	SessionID string
	Executed  []ExecutedCommand
	Final     *session.Response
	Rounds    int
	// EstimatedPromptTokens is the token estimate for the last request sent.
	EstimatedPromptTokens int
}

// Run drives one session over scope's task list until the model completes it
// or the run dies. Failed runs return a *RunError carrying the failure kind,
// the last rendered state, and the full conversation.
func Run(ctx context.Context, st store.Store, scope, requestText string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	call := opts.CallModel
	modelID := ""
	if opts.Client != nil {
		modelID = opts.Client.GetModelName()
		if call == nil {
			call = opts.Client.CompleteWithRequest
		}
	}
	if call == nil {
		return nil, errors.New("orchestrator: neither Client nor CallModel is set")
	}

	log := logger.Global().WithPrefix("orchestrator")

	sess := session.New(st, scope)
	resp := sess.Render(ctx)

	history := []*llm.Message{
		{Role: "user", Content: requestText},
		{Role: "user", Content: resp.PayloadJSON()},
	}

	log.Info("run %s: scope %s, model %q, max %d rounds", sess.ID(), scope, modelID, opts.MaxRounds)

	var (
		executed        []ExecutedCommand
		round           int
		consecutiveErrs int
		lastEstimate    int
	)

	fail := func(kind ErrorKind, failedRound int, command string, err error) (*Result, error) {
		log.Warn("run %s: %s in round %d: %v", sess.ID(), kind, failedRound, err)
		return nil, &RunError{
			Kind:     kind,
			Round:    failedRound,
			Command:  command,
			Response: resp,
			History:  history,
			Err:      err,
		}
	}

	for {
		if sess.Completed() {
			log.Info("run %s: session completed after %d round(s)", sess.ID(), round)
			return &Result{
				SessionID:             sess.ID(),
				Executed:              executed,
				Final:                 resp,
				Rounds:                round,
				EstimatedPromptTokens: lastEstimate,
			}, nil
		}
		if round >= opts.MaxRounds {
			return fail(ErrMaxRounds, round, "", fmt.Errorf("no complete_session after %d rounds", round))
		}
		if consecutiveErrs >= opts.MaxErrors {
			return fail(ErrMaxErrors, round, "", fmt.Errorf("%d consecutive command failures", consecutiveErrs))
		}

		attempt := round + 1

		prompt, err := buildSystemPrompt(scope, resp)
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}

		req := &llm.CompletionRequest{
			Messages:     history,
			Tools:        resp.ToolDefinitions(),
			Temperature:  opts.Temperature,
			MaxTokens:    opts.MaxTokens,
			SystemPrompt: prompt,
		}

		estimate, _, approx := estimateContextTokens(modelID, prompt, history)
		lastEstimate = estimate
		log.Debug("run %s: round %d sending ~%d prompt tokens (approx=%v, %d messages)",
			sess.ID(), attempt, estimate, approx, len(history))

		callCtx, cancel := context.WithTimeout(ctx, opts.ReceiveTimeout)
		completion, err := call(callCtx, req)
		cancel()
		if err != nil {
			return fail(ErrTransport, attempt, "", fmt.Errorf("model call failed: %w", err))
		}

		llm.NormalizeToolCallIDs(completion.ToolCalls)
		if len(completion.ToolCalls) == 0 {
			return fail(ErrUnsupportedCommand, attempt, "", errors.New("model reply contained no command call"))
		}
		// Extra calls beyond the first are dropped.
		toolCall := completion.ToolCalls[0]
		name := llm.ToolCallName(toolCall)

		if !resp.Allows(name) {
			return fail(ErrUnsupportedCommand, attempt, name, fmt.Errorf("command %q is not in the advertised catalog", name))
		}

		args, err := llm.ToolCallArguments(toolCall)
		if err != nil {
			return fail(ErrInvalidArguments, attempt, name, err)
		}
		cmd, err := session.ParseCommand(name, args)
		if err != nil {
			return fail(ErrInvalidArguments, attempt, name, err)
		}

		applied := sess.Apply(ctx, cmd)

		record := ExecutedCommand{Round: attempt, Name: name, Params: args}
		if applied.Error != "" {
			record.Err = applied.Error
			consecutiveErrs++
			log.Debug("run %s: round %d %s failed: %s", sess.ID(), attempt, name, applied.Error)
		} else {
			consecutiveErrs = 0
			log.Debug("run %s: round %d %s ok, state %s", sess.ID(), attempt, name, applied.State)
		}
		executed = append(executed, record)

		history = append(history,
			&llm.Message{
				Role:      "assistant",
				Content:   completion.Content,
				ToolCalls: completion.ToolCalls[:1],
			},
			&llm.Message{
				Role:     "tool",
				Content:  applied.PayloadJSON(),
				ToolID:   llm.ToolCallID(toolCall),
				ToolName: name,
			},
		)

		resp = applied
		round = attempt
	}
}
