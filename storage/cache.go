package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"breakdown-api/domain"
)

// Backend is a task store that can also report its own health.
type Backend interface {
	domain.TaskStore
	Ping(ctx context.Context) error
}

// genTTL bounds how long a user's generation counter outlives its last write.
const genTTL = 24 * time.Hour

// fillScript stores a task list only while the user's generation is still the
// one read before loading from the backend.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or ''
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Cache wraps a Backend with a Redis read-through cache of each user's task
// list. Any write for a user bumps that user's generation and evicts the
// entry, so a list loaded before the write is never stored.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or a zero TTL disables caching.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

func (c *Cache) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasks(ctx, userID); ok {
		return tasks, nil
	}
	gen, ok := c.generation(ctx, userID)
	tasks, err := c.base.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		c.storeTasks(ctx, userID, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, userID, title string) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, userID, title)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

func (c *Cache) CreateSubtasks(ctx context.Context, userID, taskID string, texts []string) ([]domain.Subtask, error) {
	subtasks, err := c.base.CreateSubtasks(ctx, userID, taskID, texts)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, userID)
	return subtasks, nil
}

func (c *Cache) UpdateSubtaskChecked(ctx context.Context, userID, taskID, subtaskID string, checked bool) (domain.Subtask, error) {
	subtask, err := c.base.UpdateSubtaskChecked(ctx, userID, taskID, subtaskID, checked)
	if err != nil {
		return domain.Subtask{}, err
	}
	c.evict(ctx, userID)
	return subtask, nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, taskID string) error {
	err := c.base.DeleteTask(ctx, userID, taskID)
	// A failed delete may still have removed rows.
	c.evict(ctx, userID)
	return err
}

// cachedTask mirrors domain.Task with the owner and task references kept,
// since the API encoding hides them.
type cachedTask struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	CreatedAt time.Time       `json:"created_at"`
	Subtasks  []cachedSubtask `json:"subtasks"`
}

type cachedSubtask struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	Text     string `json:"text"`
	Checked  bool   `json:"checked"`
	Position int    `json:"position"`
}

func (c *Cache) loadTasks(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil || c.ttl == 0 {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var cached []cachedTask
	if err := sonic.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	tasks := make([]domain.Task, len(cached))
	for i, ct := range cached {
		subtasks := make([]domain.Subtask, len(ct.Subtasks))
		for j, cs := range ct.Subtasks {
			subtasks[j] = domain.Subtask{ID: cs.ID, TaskID: cs.TaskID, Text: cs.Text, Checked: cs.Checked, Position: cs.Position}
		}
		tasks[i] = domain.Task{ID: ct.ID, UserID: ct.UserID, Title: ct.Title, CreatedAt: ct.CreatedAt, Subtasks: subtasks}
	}
	return tasks, true
}

// generation returns the user's write counter, empty before the first write.
// ok is false when caching is off or Redis cannot be read.
func (c *Cache) generation(ctx context.Context, userID string) (gen string, ok bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, tasksGenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", true
	}
	return gen, err == nil
}

func (c *Cache) storeTasks(ctx context.Context, userID, gen string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	cached := make([]cachedTask, len(tasks))
	for i, t := range tasks {
		subtasks := make([]cachedSubtask, len(t.Subtasks))
		for j, s := range t.Subtasks {
			subtasks[j] = cachedSubtask{ID: s.ID, TaskID: s.TaskID, Text: s.Text, Checked: s.Checked, Position: s.Position}
		}
		cached[i] = cachedTask{ID: t.ID, UserID: t.UserID, Title: t.Title, CreatedAt: t.CreatedAt, Subtasks: subtasks}
	}
	data, err := sonic.Marshal(cached)
	if err != nil {
		return
	}
	keys := []string{tasksCacheKey(userID), tasksGenKey(userID)}
	_ = fillScript.Run(ctx, c.redis, keys, gen, data, c.ttl.Milliseconds()).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, tasksGenKey(userID))
		pipe.Expire(ctx, tasksGenKey(userID), genTTL)
		pipe.Del(ctx, tasksCacheKey(userID))
		return nil
	})
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func tasksGenKey(userID string) string {
	return "tasksgen:" + userID
}
