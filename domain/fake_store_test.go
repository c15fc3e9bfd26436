package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type fakeStore struct {
	mu            sync.Mutex
	tasks         map[string]Task
	seq           int
	createTaskErr error
	subtasksErr   error
	deleted       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]Task{}}
}

func (f *fakeStore) CreateTask(ctx context.Context, userID, title string) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createTaskErr != nil {
		return Task{}, f.createTaskErr
	}
	f.seq++
	t := Task{ID: fmt.Sprintf("task-%d", f.seq), UserID: userID, Title: title, CreatedAt: time.Unix(int64(f.seq), 0).UTC()}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeStore) CreateSubtasks(ctx context.Context, userID, taskID string, texts []string) ([]Subtask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subtasksErr != nil {
		return nil, f.subtasksErr
	}
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != userID {
		return nil, ErrNotFound
	}
	out := make([]Subtask, len(texts))
	for i, text := range texts {
		out[i] = Subtask{ID: fmt.Sprintf("%s-s%d", taskID, i), TaskID: taskID, Text: text, Position: i}
	}
	t.Subtasks = out
	f.tasks[taskID] = t
	return out, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, userID string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Task{}
	for _, t := range f.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateSubtaskChecked(ctx context.Context, userID, taskID, subtaskID string, checked bool) (Subtask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != userID {
		return Subtask{}, ErrNotFound
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subtaskID {
			t.Subtasks[i].Checked = checked
			return t.Subtasks[i], nil
		}
	}
	return Subtask{}, ErrNotFound
}

func (f *fakeStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.UserID != userID {
		return ErrNotFound
	}
	delete(f.tasks, taskID)
	f.deleted = append(f.deleted, taskID)
	return nil
}

type fakeCompleter struct {
	raw   string
	err   error
	calls int
	got   string
}

func (f *fakeCompleter) RequestBreakdown(ctx context.Context, task string) (string, error) {
	f.calls++
	f.got = task
	return f.raw, f.err
}

var errBoom = errors.New("boom")
