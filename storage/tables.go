package storage

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"breakdown-api/domain"
)

const edmInt64 = "Edm.Int64"

// maxBatch is the entity limit of a single table transaction.
const maxBatch = 100

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// taskEntity is partitioned by owner so a user's list is one partition scan.
type taskEntity struct {
	entityKeys
	Title         string `json:"Title"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

// subtaskEntity is partitioned by task so a task's subtasks can be written
// and removed in one transaction.
type subtaskEntity struct {
	entityKeys
	UserID   string `json:"UserID"`
	Text     string `json:"Text"`
	Checked  bool   `json:"Checked"`
	Position int    `json:"Position"`
}

type subtaskCheckedUpdate struct {
	entityKeys
	Checked bool `json:"Checked"`
}

// TableStore keeps tasks in Azure Table Storage.
type TableStore struct {
	svc          *aztables.ServiceClient
	taskTable    *aztables.Client
	subtaskTable *aztables.Client
	now          func() time.Time
}

// NewTableStore creates a TableStore from the given connection string.
// Retries are disabled: the task creation flow has no retry semantics of its
// own and a failed write is compensated by the caller.
func NewTableStore(connStr, tasksTable, subtasksTable string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: -1,
				TryTimeout: time.Second * 30,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{
		svc:          svc,
		taskTable:    svc.NewClient(tasksTable),
		subtaskTable: svc.NewClient(subtasksTable),
		now:          time.Now,
	}, nil
}

func (s *TableStore) Ping(ctx context.Context) error {
	_, err := s.svc.GetProperties(ctx, nil)
	return err
}

func (s *TableStore) CreateTask(ctx context.Context, userID, title string) (domain.Task, error) {
	ent := taskEntity{
		entityKeys:    entityKeys{PartitionKey: userID, RowKey: uuid.NewString()},
		Title:         title,
		CreatedAt:     s.now().UTC().UnixNano(),
		CreatedAtType: edmInt64,
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return domain.Task{}, persistence("encode task", err)
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, persistence("create task", err)
	}
	return ent.toDomain(nil), nil
}

func (s *TableStore) CreateSubtasks(ctx context.Context, userID, taskID string, texts []string) ([]domain.Subtask, error) {
	if len(texts) == 0 {
		return nil, persistence("create subtasks", errors.New("no subtasks given"))
	}
	if len(texts) > maxBatch {
		return nil, persistence("create subtasks", errors.New("too many subtasks for one transaction"))
	}
	if err := s.ownTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	actions := make([]aztables.TransactionAction, len(texts))
	out := make([]domain.Subtask, len(texts))
	for i, text := range texts {
		ent := subtaskEntity{
			entityKeys: entityKeys{PartitionKey: taskID, RowKey: uuid.NewString()},
			UserID:     userID,
			Text:       text,
			Position:   i,
		}
		payload, err := sonic.Marshal(ent)
		if err != nil {
			return nil, persistence("encode subtask", err)
		}
		actions[i] = aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: payload}
		out[i] = ent.toDomain()
	}
	if _, err := s.subtaskTable.SubmitTransaction(ctx, actions, nil); err != nil {
		return nil, persistence("create subtasks", err)
	}
	return out, nil
}

func (s *TableStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var tasks []domain.Task
	err := s.scan(ctx, s.taskTable, partitionFilter(userID), func(data []byte) error {
		var ent taskEntity
		if err := sonic.Unmarshal(data, &ent); err != nil {
			return err
		}
		tasks = append(tasks, ent.toDomain(nil))
		return nil
	})
	if err != nil {
		return nil, persistence("list tasks", err)
	}
	for i := range tasks {
		subtasks, err := s.listSubtasks(ctx, tasks[i].ID)
		if err != nil {
			return nil, persistence("list subtasks", err)
		}
		tasks[i].Subtasks = subtasks
	}
	sortTasks(tasks)
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (s *TableStore) UpdateSubtaskChecked(ctx context.Context, userID, taskID, subtaskID string, checked bool) (domain.Subtask, error) {
	if err := s.ownTask(ctx, userID, taskID); err != nil {
		return domain.Subtask{}, err
	}
	resp, err := s.subtaskTable.GetEntity(ctx, taskID, subtaskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Subtask{}, domain.ErrNotFound
		}
		return domain.Subtask{}, persistence("load subtask", err)
	}
	var ent subtaskEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Subtask{}, persistence("decode subtask", err)
	}
	payload, err := sonic.Marshal(subtaskCheckedUpdate{entityKeys: ent.entityKeys, Checked: checked})
	if err != nil {
		return domain.Subtask{}, persistence("encode subtask", err)
	}
	_, err = s.subtaskTable.UpdateEntity(ctx, payload, checkedUpdateOptions())
	if err != nil {
		if isNotFound(err) {
			return domain.Subtask{}, domain.ErrNotFound
		}
		return domain.Subtask{}, persistence("update subtask", err)
	}
	ent.Checked = checked
	return ent.toDomain(), nil
}

func (s *TableStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	if err := s.ownTask(ctx, userID, taskID); err != nil {
		return err
	}
	var actions []aztables.TransactionAction
	err := s.scan(ctx, s.subtaskTable, partitionFilter(taskID), func(data []byte) error {
		var keys entityKeys
		if err := sonic.Unmarshal(data, &keys); err != nil {
			return err
		}
		payload, err := sonic.Marshal(keys)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: payload})
		return nil
	})
	if err != nil {
		return persistence("list subtasks", err)
	}
	for start := 0; start < len(actions); start += maxBatch {
		end := min(start+maxBatch, len(actions))
		if _, err := s.subtaskTable.SubmitTransaction(ctx, actions[start:end], nil); err != nil {
			return persistence("delete subtasks", err)
		}
	}
	if _, err := s.taskTable.DeleteEntity(ctx, userID, taskID, nil); err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return persistence("delete task", err)
	}
	return nil
}

// ownTask reports ErrNotFound when the task is missing or owned by someone
// else. The task partition is the owner, so both cases are a plain miss.
func (s *TableStore) ownTask(ctx context.Context, userID, taskID string) error {
	_, err := s.taskTable.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.ErrNotFound
		}
		return persistence("load task", err)
	}
	return nil
}

func (s *TableStore) listSubtasks(ctx context.Context, taskID string) ([]domain.Subtask, error) {
	subtasks := []domain.Subtask{}
	err := s.scan(ctx, s.subtaskTable, partitionFilter(taskID), func(data []byte) error {
		var ent subtaskEntity
		if err := sonic.Unmarshal(data, &ent); err != nil {
			return err
		}
		subtasks = append(subtasks, ent.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(subtasks, func(i, j int) bool { return subtasks[i].Position < subtasks[j].Position })
	return subtasks, nil
}

func (s *TableStore) scan(ctx context.Context, table *aztables.Client, filter string, fn func([]byte) error) error {
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e taskEntity) toDomain(subtasks []domain.Subtask) domain.Task {
	if subtasks == nil {
		subtasks = []domain.Subtask{}
	}
	return domain.Task{
		ID:        e.RowKey,
		UserID:    e.PartitionKey,
		Title:     e.Title,
		CreatedAt: time.Unix(0, e.CreatedAt).UTC(),
		Subtasks:  subtasks,
	}
}

func (e subtaskEntity) toDomain() domain.Subtask {
	return domain.Subtask{ID: e.RowKey, TaskID: e.PartitionKey, Text: e.Text, Checked: e.Checked, Position: e.Position}
}

// checkedUpdateOptions merges only the checked column and matches any ETag, so
// concurrent toggles of one subtask resolve last write wins.
func checkedUpdateOptions() *aztables.UpdateEntityOptions {
	etag := azcore.ETagAny
	return &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge}
}

// sortTasks orders newest first, with the id as a stable tie break.
func sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func partitionFilter(pk string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(pk, "'", "''") + "'"
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
