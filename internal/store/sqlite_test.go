package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccam912/smart-todo-sub000/internal/task"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{
		"title":       "buy groceries",
		"description": "milk, eggs",
		"urgency":     "high",
		"due_date":    "2026-03-10",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	assert.Equal(t, "buy groceries", created.Title)
	assert.Equal(t, task.StatusOpen, created.Status)
	assert.Equal(t, task.UrgencyHigh, created.Urgency)
	assert.Equal(t, task.RecurrenceNone, created.Recurrence)
	require.NotNil(t, created.DueDate)
	assert.Equal(t, "2026-03-10", created.DueDate.Format("2006-01-02"))

	got, err := s.Get(ctx, "home", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "buy groceries", got.Title)
	assert.Equal(t, "milk, eggs", got.Description)
	assert.Equal(t, task.UrgencyHigh, got.Urgency)
	require.NotNil(t, got.DueDate)
	assert.True(t, created.DueDate.Equal(*got.DueDate))
	assert.False(t, got.CreatedAt.IsZero())
	assert.Nil(t, got.CompletedAt)
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Create(context.Background(), "home", map[string]any{"title": "minimal"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusOpen, created.Status)
	assert.Equal(t, task.UrgencyNormal, created.Urgency)
	assert.Equal(t, task.RecurrenceNone, created.Recurrence)
	assert.Empty(t, created.Description)
	assert.Empty(t, created.AssigneeID)
	assert.Nil(t, created.DueDate)
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(context.Background(), "home", map[string]any{"title": "  "})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, task.FieldTitle, ve.Field)
}

func TestCreateRejectsUnknownPrerequisite(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(context.Background(), "home", map[string]any{
		"title":            "dependent",
		"prerequisite_ids": []int64{999},
	})
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, task.FieldPrerequisiteIDs, ve.Field)
}

func TestScopeIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{"title": "home only"})
	require.NoError(t, err)

	_, err = s.Get(ctx, "work", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	workList, err := s.ListOpen(ctx, "work")
	require.NoError(t, err)
	assert.Empty(t, workList)
}

func TestUpdateMergesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prereq, err := s.Create(ctx, "home", map[string]any{"title": "prerequisite"})
	require.NoError(t, err)
	created, err := s.Create(ctx, "home", map[string]any{
		"title":       "original title",
		"description": "original description",
	})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "home", created.ID, map[string]any{
		"description":      "revised description",
		"urgency":          "urgent",
		"prerequisite_ids": []int64{prereq.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "original title", updated.Title)
	assert.Equal(t, "revised description", updated.Description)
	assert.Equal(t, task.UrgencyUrgent, updated.Urgency)
	assert.Equal(t, []int64{prereq.ID}, updated.PrerequisiteIDs)

	// Replacing prerequisites with an empty list clears the links.
	cleared, err := s.Update(ctx, "home", created.ID, map[string]any{
		"prerequisite_ids": []int64{},
	})
	require.NoError(t, err)
	assert.Empty(t, cleared.PrerequisiteIDs)
}

func TestUpdateUnknownTask(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Update(context.Background(), "home", 42, map[string]any{"title": "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRejectsSelfPrerequisite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{"title": "loop"})
	require.NoError(t, err)

	_, err = s.Update(ctx, "home", created.ID, map[string]any{
		"prerequisite_ids": []int64{created.ID},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestDeleteReturnsTaskAndCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prereq, err := s.Create(ctx, "home", map[string]any{"title": "prerequisite"})
	require.NoError(t, err)
	dependent, err := s.Create(ctx, "home", map[string]any{
		"title":            "dependent",
		"prerequisite_ids": []int64{prereq.ID},
	})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "home", prereq.ID)
	require.NoError(t, err)
	assert.Equal(t, "prerequisite", deleted.Title)

	_, err = s.Get(ctx, "home", prereq.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The link went away with the prerequisite, so completion is unblocked.
	got, err := s.Get(ctx, "home", dependent.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PrerequisiteIDs)

	_, err = s.Complete(ctx, "home", dependent.ID)
	assert.NoError(t, err)
}

func TestCompleteSetsTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{"title": "finish me"})
	require.NoError(t, err)

	completed, err := s.Complete(ctx, "home", created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	list, err := s.ListOpen(ctx, "home")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCompleteAlreadyDone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{"title": "once"})
	require.NoError(t, err)
	_, err = s.Complete(ctx, "home", created.ID)
	require.NoError(t, err)

	_, err = s.Complete(ctx, "home", created.ID)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, task.FieldStatus, ve.Field)
}

func TestCompleteBlockedByPrerequisite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prereq, err := s.Create(ctx, "home", map[string]any{"title": "first"})
	require.NoError(t, err)
	dependent, err := s.Create(ctx, "home", map[string]any{
		"title":            "second",
		"prerequisite_ids": []int64{prereq.ID},
	})
	require.NoError(t, err)

	_, err = s.Complete(ctx, "home", dependent.ID)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, task.FieldPrerequisiteIDs, ve.Field)

	_, err = s.Complete(ctx, "home", prereq.ID)
	require.NoError(t, err)
	_, err = s.Complete(ctx, "home", dependent.ID)
	assert.NoError(t, err)
}

func TestCompleteRecurringSpawnsNext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{
		"title":      "water plants",
		"recurrence": "daily",
		"due_date":   "2026-03-10",
	})
	require.NoError(t, err)

	_, err = s.Complete(ctx, "home", created.ID)
	require.NoError(t, err)

	list, err := s.ListOpen(ctx, "home")
	require.NoError(t, err)
	require.Len(t, list, 1)

	next := list[0]
	assert.NotEqual(t, created.ID, next.ID)
	assert.Equal(t, "water plants", next.Title)
	assert.Equal(t, task.StatusOpen, next.Status)
	assert.Equal(t, task.RecurrenceDaily, next.Recurrence)
	require.NotNil(t, next.DueDate)
	assert.Equal(t, "2026-03-11", next.DueDate.UTC().Format("2006-01-02"))
}

func TestCompleteRecurringWithoutDueDate(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	created, err := s.Create(ctx, "home", map[string]any{
		"title":      "weekly review",
		"recurrence": "weekly",
	})
	require.NoError(t, err)

	_, err = s.Complete(ctx, "home", created.ID)
	require.NoError(t, err)

	list, err := s.ListOpen(ctx, "home")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].DueDate)
	assert.Equal(t, "2026-04-08", list[0].DueDate.UTC().Format("2006-01-02"))
}

func TestListOpenOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low, err := s.Create(ctx, "home", map[string]any{"title": "someday", "urgency": "low"})
	require.NoError(t, err)
	urgent, err := s.Create(ctx, "home", map[string]any{"title": "now", "urgency": "urgent"})
	require.NoError(t, err)
	high, err := s.Create(ctx, "home", map[string]any{"title": "soon", "urgency": "high"})
	require.NoError(t, err)
	done, err := s.Create(ctx, "home", map[string]any{"title": "already handled"})
	require.NoError(t, err)
	_, err = s.Complete(ctx, "home", done.ID)
	require.NoError(t, err)

	list, err := s.ListOpen(ctx, "home")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, urgent.ID, list[0].ID)
	assert.Equal(t, high.ID, list[1].ID)
	assert.Equal(t, low.ID, list[2].ID)
}

func TestListOpenDueDateBeforeUndated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	undated, err := s.Create(ctx, "home", map[string]any{"title": "undated"})
	require.NoError(t, err)
	later, err := s.Create(ctx, "home", map[string]any{"title": "later", "due_date": "2026-06-01"})
	require.NoError(t, err)
	sooner, err := s.Create(ctx, "home", map[string]any{"title": "sooner", "due_date": "2026-05-01"})
	require.NoError(t, err)

	list, err := s.ListOpen(ctx, "home")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, sooner.ID, list[0].ID)
	assert.Equal(t, later.ID, list[1].ID)
	assert.Equal(t, undated.ID, list[2].ID)
}

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.WithTx(ctx, func(tx Tx) error {
		created, err := tx.Create(ctx, "home", map[string]any{"title": "inside tx"})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "home", id)
	require.NoError(t, err)
	assert.Equal(t, "inside tx", got.Title)
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Create(ctx, "home", map[string]any{"title": "doomed"}); err != nil {
			return err
		}
		if _, err := tx.Create(ctx, "home", map[string]any{"title": "also doomed"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.ListOpen(ctx, "home")
	require.NoError(t, err)
	assert.Empty(t, list)
}
