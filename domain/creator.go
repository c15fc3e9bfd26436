package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "breakdown-api/domain"

// Completer returns raw model text for a validated task description.
type Completer interface {
	RequestBreakdown(ctx context.Context, task string) (string, error)
}

// TaskStore persists tasks and subtasks scoped to their owning user.
type TaskStore interface {
	CreateTask(ctx context.Context, userID, title string) (Task, error)
	CreateSubtasks(ctx context.Context, userID, taskID string, texts []string) ([]Subtask, error)
	ListTasks(ctx context.Context, userID string) ([]Task, error)
	UpdateSubtaskChecked(ctx context.Context, userID, taskID, subtaskID string, checked bool) (Subtask, error)
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// Stage names a step of task creation.
type Stage string

const (
	StageValidating   Stage = "validating"
	StageGenerating   Stage = "generating"
	StageInterpreting Stage = "interpreting"
	StagePersisting   Stage = "persisting"
	StageDone         Stage = "done"
)

// StageError reports the stage task creation failed in. Err always wraps
// one of the package sentinels.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// CreateResult is a fully persisted task plus the interpreter tier used.
type CreateResult struct {
	Task Task
	Tier Tier
}

// Creator turns free-text input into a stored task with generated title and
// subtasks. Either the task and all its subtasks exist afterwards, or none
// of it does.
type Creator struct {
	completer Completer
	store     TaskStore
	tracer    trace.Tracer
}

func NewCreator(completer Completer, store TaskStore) *Creator {
	if completer == nil || store == nil {
		panic("domain.NewCreator: completer and store are required")
	}
	return &Creator{completer: completer, store: store, tracer: otel.Tracer(tracerName)}
}

// Create runs validation, generation, interpretation and persistence in
// order. Nothing is retried. The pipeline ignores cancellation of ctx so a
// started creation always finishes or compensates; the completion client
// bounds the only long call with its own timeout.
func (c *Creator) Create(ctx context.Context, userID, input string) (CreateResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.tracer.Start(ctx, "tasks.create")
	defer span.End()

	var text, raw string
	var breakdown Breakdown
	var task Task

	err := c.run(ctx, StageValidating, func(context.Context) error {
		var err error
		text, err = ValidateTaskInput(input)
		return err
	})
	if err == nil {
		err = c.run(ctx, StageGenerating, func(ctx context.Context) error {
			var err error
			raw, err = c.completer.RequestBreakdown(ctx, text)
			if err != nil {
				return ensure(err, ErrCompletionUnavailable)
			}
			if strings.TrimSpace(raw) == "" {
				return fmt.Errorf("%w: empty completion", ErrCompletionUnavailable)
			}
			return nil
		})
	}
	if err == nil {
		err = c.run(ctx, StageInterpreting, func(ctx context.Context) error {
			var err error
			breakdown, err = Interpret(raw, text)
			if err != nil {
				return ensure(err, ErrBreakdownParse)
			}
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String("breakdown.tier", string(breakdown.Tier)),
				attribute.Int("breakdown.subtasks", len(breakdown.Subtasks)),
			)
			return nil
		})
	}
	if err == nil {
		err = c.run(ctx, StagePersisting, func(ctx context.Context) error {
			var err error
			task, err = c.persist(ctx, userID, breakdown)
			return err
		})
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CreateResult{}, err
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	span.SetStatus(codes.Ok, "")
	return CreateResult{Task: task, Tier: breakdown.Tier}, nil
}

func (c *Creator) persist(ctx context.Context, userID string, b Breakdown) (Task, error) {
	task, err := c.store.CreateTask(ctx, userID, b.Title)
	if err != nil {
		return Task{}, ensure(err, ErrPersistence)
	}
	subtasks, err := c.store.CreateSubtasks(ctx, userID, task.ID, b.Subtasks)
	if err != nil {
		if delErr := c.store.DeleteTask(ctx, userID, task.ID); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			log.WithFields(log.Fields{"task": task.ID, "user": userID, "error": delErr}).Error("compensating task delete failed")
		}
		return Task{}, ensure(err, ErrPersistence)
	}
	task.Subtasks = subtasks
	return task, nil
}

func (c *Creator) run(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "tasks.create."+string(stage))
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// ensure makes err match sentinel, wrapping it when it does not already.
func ensure(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
