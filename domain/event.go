package domain

const (
	EventTaskCreated      = "task-created"
	EventSubtaskChecked   = "subtask-checked"
	EventSubtaskUnchecked = "subtask-unchecked"
	EventTaskDeleted      = "task-deleted"
)

// Event describes a change to a user's tasks. Timestamp is unix nanoseconds
// and strictly increases within one process.
type Event struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId,omitempty"`
	Timestamp int64  `json:"ts"`
}
