package domain

import "time"

// Task is a user-owned unit of work with an ordered checklist of subtasks.
type Task struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Subtasks  []Subtask `json:"subtasks"`
}

// Subtask is one actionable item of a task. Position is zero-based and
// unique within the parent task.
type Subtask struct {
	ID       string `json:"id"`
	TaskID   string `json:"-"`
	Text     string `json:"text"`
	Checked  bool   `json:"checked"`
	Position int    `json:"position"`
}
