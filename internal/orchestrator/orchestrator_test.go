package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccam912/smart-todo-sub000/internal/consts"
	"github.com/maccam912/smart-todo-sub000/internal/llm"
	"github.com/maccam912/smart-todo-sub000/internal/session"
	"github.com/maccam912/smart-todo-sub000/internal/store"
	"github.com/maccam912/smart-todo-sub000/internal/task"
)

func openStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// scriptedModel plays back canned completions and records every request the
// loop sends.
type scriptedModel struct {
	t         *testing.T
	requests  []*llm.CompletionRequest
	responses []*llm.CompletionResponse
}

func newScriptedModel(t *testing.T, responses ...*llm.CompletionResponse) *scriptedModel {
	return &scriptedModel{t: t, responses: responses}
}

func (m *scriptedModel) call(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.requests = append(m.requests, req)
	require.NotEmpty(m.t, m.responses, "model called more often than scripted")
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next, nil
}

func commandCall(name string, args map[string]any) *llm.CompletionResponse {
	arguments := "{}"
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			panic(err)
		}
		arguments = string(data)
	}
	return &llm.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls: []map[string]any{{
			"type":     "function",
			"function": map[string]any{"name": name, "arguments": arguments},
		}},
	}
}

func runError(t *testing.T, err error) *RunError {
	t.Helper()
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	return runErr
}

func TestRunCreatesAndCommits(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("create_task", map[string]any{"title": "Pay rent", "urgency": "high"}),
		commandCall("complete_session", nil),
	)

	res, err := Run(context.Background(), st, "alice", "add a task to pay rent, high urgency", Options{CallModel: model.call})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 2, res.Rounds)
	require.Len(t, res.Executed, 2)
	assert.Equal(t, "create_task", res.Executed[0].Name)
	assert.Equal(t, "Pay rent", res.Executed[0].Params["title"])
	assert.Empty(t, res.Executed[0].Err)
	assert.Equal(t, "complete_session", res.Executed[1].Name)
	assert.Equal(t, session.StateCompleted, res.Final.State)
	assert.Positive(t, res.EstimatedPromptTokens)

	tasks, err := st.ListOpen(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Pay rent", tasks[0].Title)
	assert.Equal(t, task.UrgencyHigh, tasks[0].Urgency)
}

func TestRunSendsStateAndCatalog(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("create_task", map[string]any{"title": "Water plants"}),
		commandCall("complete_session", nil),
	)

	_, err := Run(context.Background(), st, "alice", "add watering", Options{CallModel: model.call})
	require.NoError(t, err)
	require.Len(t, model.requests, 2)

	first := model.requests[0]
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "user", first.Messages[0].Role)
	assert.Equal(t, "add watering", first.Messages[0].Content)
	assert.Contains(t, first.Messages[1].Content, `"state":"awaiting_command"`)
	assert.Len(t, first.Tools, 5)
	assert.Equal(t, consts.DefaultMaxTokens, first.MaxTokens)

	second := model.requests[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "assistant", second.Messages[2].Role)
	require.Len(t, second.Messages[2].ToolCalls, 1)
	assert.Equal(t, "tool", second.Messages[3].Role)
	assert.Equal(t, "create_task", second.Messages[3].ToolName)
	assert.NotEmpty(t, second.Messages[3].ToolID)
	assert.Contains(t, second.Messages[3].Content, `"pending_operations"`)
}

func TestRunSystemPromptStaticPrefix(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("create_task", map[string]any{"title": "Pay rent"}),
		commandCall("complete_session", nil),
	)

	_, err := Run(context.Background(), st, "alice", "rent", Options{CallModel: model.call})
	require.NoError(t, err)
	require.Len(t, model.requests, 2)

	for _, req := range model.requests {
		assert.True(t, strings.HasPrefix(req.SystemPrompt, systemPromptStatic))
	}
	assert.NotEqual(t, model.requests[0].SystemPrompt, model.requests[1].SystemPrompt)
	assert.Contains(t, model.requests[1].SystemPrompt, "create pending #1")
}

func TestRunEditsExistingTask(t *testing.T) {
	st := openStore(t)
	seeded, err := st.Create(context.Background(), "alice", map[string]any{"title": "Write report"})
	require.NoError(t, err)

	model := newScriptedModel(t,
		commandCall("select_task", map[string]any{"task_id": seeded.ID}),
		commandCall("update_task_fields", map[string]any{"urgency": "urgent"}),
		commandCall("complete_session", nil),
	)

	res, err := Run(context.Background(), st, "alice", "make the report urgent", Options{CallModel: model.call})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rounds)

	// Editing state advertises the full command catalog.
	require.Len(t, model.requests, 3)
	assert.Len(t, model.requests[1].Tools, 9)

	got, err := st.Get(context.Background(), "alice", seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, task.UrgencyUrgent, got.Urgency)
}

func TestRunCreatesThenEditsPending(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("create_task", map[string]any{"title": "Book flights"}),
		commandCall("select_task", map[string]any{"pending_ref": 1}),
		commandCall("update_task_fields", map[string]any{"due_date": "2026-09-15"}),
		commandCall("complete_session", nil),
	)

	res, err := Run(context.Background(), st, "alice", "book flights by mid september", Options{CallModel: model.call})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rounds)

	tasks, err := st.ListOpen(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Book flights", tasks[0].Title)
	require.NotNil(t, tasks[0].DueDate)
}

func TestRunWithNoChangesCompletesImmediately(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t, commandCall("complete_session", nil))

	res, err := Run(context.Background(), st, "alice", "nothing to do", Options{CallModel: model.call})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Contains(t, res.Final.Message, "no changes")
}

func TestRunStopsAtRoundBudget(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("record_plan", map[string]any{"plan": "thinking"}),
		commandCall("record_plan", map[string]any{"plan": "still thinking"}),
		commandCall("record_plan", map[string]any{"plan": "more thinking"}),
	)

	_, err := Run(context.Background(), st, "alice", "do everything", Options{CallModel: model.call, MaxRounds: 3})
	runErr := runError(t, err)
	assert.Equal(t, ErrMaxRounds, runErr.Kind)
	assert.Equal(t, 3, runErr.Round)
	assert.Equal(t, session.StateAwaitingCommand, runErr.Response.State)
	assert.Len(t, runErr.History, 8)
}

func TestRunStopsAfterConsecutiveErrors(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("select_task", map[string]any{"task_id": 999}),
		commandCall("select_task", map[string]any{"task_id": 999}),
	)

	_, err := Run(context.Background(), st, "alice", "edit task 999", Options{CallModel: model.call, MaxErrors: 2})
	runErr := runError(t, err)
	assert.Equal(t, ErrMaxErrors, runErr.Kind)
	assert.Equal(t, 2, runErr.Round)
	assert.Contains(t, runErr.Err.Error(), "2 consecutive")

	last := runErr.History[len(runErr.History)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.Content, "task 999 does not exist")
}

func TestRunSuccessResetsErrorBudget(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t,
		commandCall("select_task", map[string]any{"task_id": 999}),
		commandCall("record_plan", map[string]any{"plan": "try creating instead"}),
		commandCall("select_task", map[string]any{"task_id": 999}),
		commandCall("create_task", map[string]any{"title": "Replacement"}),
		commandCall("complete_session", nil),
	)

	res, err := Run(context.Background(), st, "alice", "sort my tasks", Options{CallModel: model.call, MaxErrors: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rounds)
	assert.NotEmpty(t, res.Executed[0].Err)
	assert.Empty(t, res.Executed[1].Err)
	assert.NotEmpty(t, res.Executed[2].Err)
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t, commandCall("drop_table", nil))

	_, err := Run(context.Background(), st, "alice", "clean up", Options{CallModel: model.call})
	runErr := runError(t, err)
	assert.Equal(t, ErrUnsupportedCommand, runErr.Kind)
	assert.Equal(t, "drop_table", runErr.Command)
	assert.Equal(t, 1, runErr.Round)
}

func TestRunRejectsCommandOutsideCatalog(t *testing.T) {
	// update_task_fields is a real command but is not advertised while the
	// session awaits a command.
	st := openStore(t)
	model := newScriptedModel(t, commandCall("update_task_fields", map[string]any{"urgency": "high"}))

	_, err := Run(context.Background(), st, "alice", "bump urgency", Options{CallModel: model.call})
	runErr := runError(t, err)
	assert.Equal(t, ErrUnsupportedCommand, runErr.Kind)
	assert.Equal(t, "update_task_fields", runErr.Command)
}

func TestRunRejectsReplyWithoutCommand(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t, &llm.CompletionResponse{Content: "All done!", StopReason: "stop"})

	_, err := Run(context.Background(), st, "alice", "add a task", Options{CallModel: model.call})
	runErr := runError(t, err)
	assert.Equal(t, ErrUnsupportedCommand, runErr.Kind)
	assert.Empty(t, runErr.Command)
}

func TestRunRejectsMalformedArguments(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t, &llm.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls: []map[string]any{{
			"type":     "function",
			"function": map[string]any{"name": "select_task", "arguments": "{not json"},
		}},
	})

	_, err := Run(context.Background(), st, "alice", "edit something", Options{CallModel: model.call})
	runErr := runError(t, err)
	assert.Equal(t, ErrInvalidArguments, runErr.Kind)
	assert.Equal(t, "select_task", runErr.Command)
}

func TestRunRejectsBadArgumentTypes(t *testing.T) {
	st := openStore(t)
	model := newScriptedModel(t, commandCall("select_task", map[string]any{"task_id": "soon"}))

	_, err := Run(context.Background(), st, "alice", "edit something", Options{CallModel: model.call})
	runErr := runError(t, err)
	assert.Equal(t, ErrInvalidArguments, runErr.Kind)
	assert.Contains(t, runErr.Err.Error(), "task_id")
}

func TestRunTransportFailure(t *testing.T) {
	st := openStore(t)
	upstream := errors.New("connection refused")
	callModel := func(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, upstream
	}

	_, err := Run(context.Background(), st, "alice", "anything", Options{CallModel: callModel})
	runErr := runError(t, err)
	assert.Equal(t, ErrTransport, runErr.Kind)
	assert.Equal(t, 1, runErr.Round)
	assert.ErrorIs(t, err, upstream)
}

func TestRunHonorsReceiveTimeout(t *testing.T) {
	st := openStore(t)
	callModel := func(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := Run(context.Background(), st, "alice", "anything", Options{
		CallModel:      callModel,
		ReceiveTimeout: 20 * time.Millisecond,
	})
	runErr := runError(t, err)
	assert.Equal(t, ErrTransport, runErr.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunTakesFirstCommandOnly(t *testing.T) {
	st := openStore(t)
	double := &llm.CompletionResponse{
		StopReason: "tool_calls",
		ToolCalls: []map[string]any{
			{"type": "function", "function": map[string]any{"name": "create_task", "arguments": `{"title":"First"}`}},
			{"type": "function", "function": map[string]any{"name": "complete_session", "arguments": "{}"}},
		},
	}
	model := newScriptedModel(t, double, commandCall("complete_session", nil))

	res, err := Run(context.Background(), st, "alice", "add first", Options{CallModel: model.call})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, "create_task", res.Executed[0].Name)

	require.Len(t, model.requests, 2)
	assistant := model.requests[1].Messages[2]
	assert.Len(t, assistant.ToolCalls, 1)
}

func TestRunRequiresModel(t *testing.T) {
	st := openStore(t)

	_, err := Run(context.Background(), st, "alice", "anything", Options{})
	require.Error(t, err)
	var runErr *RunError
	assert.False(t, errors.As(err, &runErr))
}
