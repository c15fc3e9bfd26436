package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"breakdown-api/domain"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stepClock returns strictly increasing times one second apart.
func stepClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func createWithSubtasks(t *testing.T, s *SQLStore, userID, title string, texts ...string) domain.Task {
	t.Helper()
	ctx := context.Background()
	task, err := s.CreateTask(ctx, userID, title)
	require.NoError(t, err)
	subtasks, err := s.CreateSubtasks(ctx, userID, task.ID, texts)
	require.NoError(t, err)
	task.Subtasks = subtasks
	return task
}

func TestSQLStoreCreateAndList(t *testing.T) {
	s := openTestStore(t)
	s.now = stepClock()
	ctx := context.Background()

	older := createWithSubtasks(t, s, "user-1", "Older", "a", "b", "c")
	newer := createWithSubtasks(t, s, "user-1", "Newer", "x", "y", "z", "w")
	createWithSubtasks(t, s, "user-2", "Someone else", "p", "q", "r")

	tasks, err := s.ListTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, newer.ID, tasks[0].ID)
	require.Equal(t, older.ID, tasks[1].ID)
	require.Equal(t, "user-1", tasks[0].UserID)
	require.True(t, tasks[0].CreatedAt.After(tasks[1].CreatedAt))

	texts := make([]string, 0, len(tasks[0].Subtasks))
	for i, st := range tasks[0].Subtasks {
		require.Equal(t, i, st.Position)
		require.Equal(t, newer.ID, st.TaskID)
		require.False(t, st.Checked)
		texts = append(texts, st.Text)
	}
	require.Equal(t, []string{"x", "y", "z", "w"}, texts)
}

func TestSQLStoreListEmpty(t *testing.T) {
	s := openTestStore(t)
	tasks, err := s.ListTasks(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, tasks)
	require.Empty(t, tasks)
}

func TestSQLStoreTaskWithoutSubtasksListsEmptySlice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.CreateTask(ctx, "user-1", "Bare")
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Subtasks)
	require.Empty(t, tasks[0].Subtasks)
}

func TestSQLStoreToggleKeepsPositionAndSiblings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := createWithSubtasks(t, s, "user-1", "Party", "one", "two", "three")
	target := task.Subtasks[1]

	got, err := s.UpdateSubtaskChecked(ctx, "user-1", task.ID, target.ID, true)
	require.NoError(t, err)
	require.True(t, got.Checked)
	require.Equal(t, 1, got.Position)
	require.Equal(t, "two", got.Text)

	tasks, err := s.ListTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tasks[0].Subtasks, 3)
	for i, st := range tasks[0].Subtasks {
		require.Equal(t, i, st.Position)
		require.Equal(t, st.ID == target.ID, st.Checked, "subtask %s", st.ID)
	}

	got, err = s.UpdateSubtaskChecked(ctx, "user-1", task.ID, target.ID, false)
	require.NoError(t, err)
	require.False(t, got.Checked)
}

func TestSQLStoreToggleNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := createWithSubtasks(t, s, "user-1", "Party", "one", "two", "three")
	other := createWithSubtasks(t, s, "user-1", "Trip", "pack", "book", "go")

	_, err := s.UpdateSubtaskChecked(ctx, "user-1", task.ID, "missing", true)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.UpdateSubtaskChecked(ctx, "user-2", task.ID, task.Subtasks[0].ID, true)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// A subtask addressed through a task it does not belong to is a miss.
	_, err = s.UpdateSubtaskChecked(ctx, "user-1", task.ID, other.Subtasks[0].ID, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLStoreDeleteRemovesSubtasks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := createWithSubtasks(t, s, "user-1", "Party", "one", "two", "three")

	require.NoError(t, s.DeleteTask(ctx, "user-1", task.ID))

	tasks, err := s.ListTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, tasks)

	var count int64
	require.NoError(t, s.db.Model(&subtaskRow{}).Where("task_id = ?", task.ID).Count(&count).Error)
	require.Zero(t, count)

	require.ErrorIs(t, s.DeleteTask(ctx, "user-1", task.ID), domain.ErrNotFound)
}

func TestSQLStoreDeleteOtherUserIsNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := createWithSubtasks(t, s, "user-1", "Party", "one", "two", "three")

	require.ErrorIs(t, s.DeleteTask(ctx, "user-2", task.ID), domain.ErrNotFound)

	tasks, err := s.ListTasks(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, tasks[0].Subtasks, 3)
}

func TestSQLStoreCreateSubtasksRequiresOwnedTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task, err := s.CreateTask(ctx, "user-1", "Party")
	require.NoError(t, err)

	_, err = s.CreateSubtasks(ctx, "user-2", task.ID, []string{"a"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.CreateSubtasks(ctx, "user-1", task.ID, nil)
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestSQLStorePing(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
