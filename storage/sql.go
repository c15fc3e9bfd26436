package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"breakdown-api/domain"
)

type taskRow struct {
	ID        string `gorm:"column:id;primaryKey"`
	UserID    string `gorm:"column:user_id;not null;index:idx_tasks_user_created,priority:1"`
	Title     string `gorm:"column:title;not null;size:200"`
	CreatedAt int64  `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_tasks_user_created,priority:2,sort:desc"`
}

func (taskRow) TableName() string { return "tasks" }

type subtaskRow struct {
	ID       string `gorm:"column:id;primaryKey"`
	TaskID   string `gorm:"column:task_id;not null;uniqueIndex:idx_subtasks_task_position,priority:1"`
	Text     string `gorm:"column:text;not null;size:100"`
	Checked  bool   `gorm:"column:checked;not null;default:false"`
	Position int    `gorm:"column:position;not null;uniqueIndex:idx_subtasks_task_position,priority:2"`
}

func (subtaskRow) TableName() string { return "subtasks" }

// SQLStore keeps tasks in a relational database through gorm. Every query
// filters on the owning user.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates the schema.
func OpenSQLite(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`, `PRAGMA foreign_keys=ON;`} {
		if err := gdb.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	if err := Migrate(gdb); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return NewSQLStore(gdb), nil
}

// Migrate creates or updates the task tables.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	return db.AutoMigrate(&taskRow{}, &subtaskRow{})
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) CreateTask(ctx context.Context, userID, title string) (domain.Task, error) {
	row := taskRow{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: s.now().UTC().UnixNano(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Task{}, persistence("create task", err)
	}
	return row.toDomain(nil), nil
}

func (s *SQLStore) CreateSubtasks(ctx context.Context, userID, taskID string, texts []string) ([]domain.Subtask, error) {
	if len(texts) == 0 {
		return nil, persistence("create subtasks", errors.New("no subtasks given"))
	}
	db := s.db.WithContext(ctx)
	if _, err := s.ownedTask(db, userID, taskID); err != nil {
		return nil, err
	}
	rows := make([]subtaskRow, len(texts))
	for i, text := range texts {
		rows[i] = subtaskRow{ID: uuid.NewString(), TaskID: taskID, Text: text, Position: i}
	}
	if err := db.Create(&rows).Error; err != nil {
		return nil, persistence("create subtasks", err)
	}
	out := make([]domain.Subtask, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *SQLStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	db := s.db.WithContext(ctx)
	var rows []taskRow
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, persistence("list tasks", err)
	}
	if len(rows) == 0 {
		return []domain.Task{}, nil
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var subRows []subtaskRow
	if err := db.Where("task_id IN ?", ids).Order("task_id, position ASC").Find(&subRows).Error; err != nil {
		return nil, persistence("list subtasks", err)
	}
	byTask := make(map[string][]domain.Subtask, len(rows))
	for i := range subRows {
		byTask[subRows[i].TaskID] = append(byTask[subRows[i].TaskID], subRows[i].toDomain())
	}
	tasks := make([]domain.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toDomain(byTask[rows[i].ID])
	}
	return tasks, nil
}

func (s *SQLStore) UpdateSubtaskChecked(ctx context.Context, userID, taskID, subtaskID string, checked bool) (domain.Subtask, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.ownedTask(db, userID, taskID); err != nil {
		return domain.Subtask{}, err
	}
	var row subtaskRow
	if err := db.Where("id = ? AND task_id = ?", subtaskID, taskID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subtask{}, domain.ErrNotFound
		}
		return domain.Subtask{}, persistence("load subtask", err)
	}
	if err := db.Model(&subtaskRow{}).Where("id = ? AND task_id = ?", subtaskID, taskID).Update("checked", checked).Error; err != nil {
		return domain.Subtask{}, persistence("update subtask", err)
	}
	row.Checked = checked
	return row.toDomain(), nil
}

func (s *SQLStore) DeleteTask(ctx context.Context, userID, taskID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ownedTask(tx, userID, taskID); err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", taskID).Delete(&subtaskRow{}).Error; err != nil {
			return persistence("delete subtasks", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", taskID, userID).Delete(&taskRow{}).Error; err != nil {
			return persistence("delete task", err)
		}
		return nil
	})
}

func (s *SQLStore) ownedTask(db *gorm.DB, userID, taskID string) (taskRow, error) {
	var row taskRow
	err := db.Where("id = ? AND user_id = ?", taskID, userID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return taskRow{}, domain.ErrNotFound
	case err != nil:
		return taskRow{}, persistence("load task", err)
	}
	return row, nil
}

func (r taskRow) toDomain(subtasks []domain.Subtask) domain.Task {
	if subtasks == nil {
		subtasks = []domain.Subtask{}
	}
	return domain.Task{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
		Subtasks:  subtasks,
	}
}

func (r subtaskRow) toDomain() domain.Subtask {
	return domain.Subtask{ID: r.ID, TaskID: r.TaskID, Text: r.Text, Checked: r.Checked, Position: r.Position}
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}
