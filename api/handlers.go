package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"breakdown-api/domain"
)

const (
	msgBreakdownFailed = "could not break down the task, please try again"
	msgSaveFailed      = "failed to save the task"
	msgLoadFailed      = "failed to load tasks"
	msgDeleteFailed    = "failed to delete the task"
	msgNotFound        = "not found"
	msgDuplicate       = "duplicate request"
	msgTooLarge        = "request body too large"
	healthTimeout      = 2 * time.Second
)

// Deps are the collaborators handlers need. Deduper and Events may be nil.
type Deps struct {
	Store   Store
	Creator TaskCreator
	Auth    Authenticator
	Deduper Deduper
	Events  *EventDispatcher
	Log     *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	if deps.Store == nil || deps.Creator == nil || deps.Auth == nil {
		panic("api.Register: store, creator and auth are required")
	}
	if deps.Log == nil {
		panic("Logger is not initialized")
	}

	g := e.Group("/tasks", RequireUser(deps.Auth, deps.Log))
	g.POST("", createTask(deps))
	g.GET("", listTasks(deps))
	g.PATCH("/:taskId/subtasks/:subtaskId", toggleSubtask(deps))
	g.DELETE("/:taskId", deleteTask(deps))

	e.GET("/healthz", healthz(deps.Store, deps.Log))
}

func healthz(store Store, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			logger.WithError(err).Warn("health check failed")
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		}
		return c.NoContent(http.StatusOK)
	}
}

func createTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, deps.Log, http.MethodPost, "/tasks")
		c.SetRequest(c.Request().WithContext(ctx))
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, errors.Join(failure, err))
		}()

		uid, _ := userID(c)

		var body createTaskRequest
		if decodeErr := decodeBody(c, &body); decodeErr != nil {
			metrics.SetErrorStage("decode_body")
			failure = decodeErr
			return writeError(c, decodeErr, msgSaveFailed)
		}

		key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
		if key != "" && deps.Deduper != nil {
			added, dedupeErr := deps.Deduper.Add(ctx, uid, key)
			switch {
			case dedupeErr != nil:
				// Without Redis the request is still served, only unguarded.
				deps.Log.WithError(dedupeErr).Warn("idempotency check failed")
				key = ""
			case !added:
				metrics.SetErrorStage("idempotency")
				taskCreations.WithLabelValues(outcomeDuplicate).Inc()
				return c.JSON(http.StatusConflict, errorResponse{Error: msgDuplicate})
			}
		} else {
			key = ""
		}

		createStart := time.Now()
		result, createErr := deps.Creator.Create(ctx, uid, body.Task)
		metrics.Observe("create", time.Since(createStart))
		observeCreation(result, createErr)
		if createErr != nil {
			failure = createErr
			var stageErr *domain.StageError
			if errors.As(createErr, &stageErr) {
				metrics.SetErrorStage(string(stageErr.Stage))
			}
			if key != "" {
				if rerr := deps.Deduper.Remove(context.WithoutCancel(ctx), uid, key); rerr != nil {
					deps.Log.Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", rerr, key, uid)
				}
			}
			if !errors.Is(createErr, domain.ErrInvalidInput) {
				deps.Log.WithError(createErr).WithField("user", uid).Error("task creation failed")
			}
			return writeError(c, createErr, msgSaveFailed)
		}

		metrics.SetString("tier", string(result.Tier))
		metrics.SetInt("subtasks", len(result.Task.Subtasks))
		deps.Events.Dispatch(domain.Event{Type: domain.EventTaskCreated, UserID: uid, TaskID: result.Task.ID})
		return c.JSON(http.StatusCreated, taskResponse{Task: result.Task})
	}
}

func listTasks(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, ctx := newRequestMetrics(ctx, deps.Log, http.MethodGet, "/tasks")
		c.SetRequest(c.Request().WithContext(ctx))
		var failure error
		defer func() {
			metrics.Log(c.Response().Status, errors.Join(failure, err))
		}()

		uid, _ := userID(c)

		fetchStart := time.Now()
		tasks, fetchErr := deps.Store.ListTasks(ctx, uid)
		metrics.Observe("fetch", time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			failure = fetchErr
			deps.Log.WithError(fetchErr).WithField("user", uid).Error("list tasks failed")
			return writeError(c, fetchErr, msgLoadFailed)
		}
		metrics.SetInt("tasks_returned", len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		metrics.Observe("encode", time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func toggleSubtask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		uid, _ := userID(c)

		var body toggleSubtaskRequest
		if err := decodeBody(c, &body); err != nil {
			return writeError(c, err, msgSaveFailed)
		}
		if body.Checked == nil {
			return writeError(c, &domain.InputError{Msg: "checked is required"}, msgSaveFailed)
		}

		taskID, subtaskID := c.Param("taskId"), c.Param("subtaskId")
		subtask, err := deps.Store.UpdateSubtaskChecked(ctx, uid, taskID, subtaskID, *body.Checked)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				deps.Log.WithError(err).WithField("task", taskID).Error("toggle subtask failed")
			}
			return writeError(c, err, msgSaveFailed)
		}

		eventType := domain.EventSubtaskUnchecked
		if subtask.Checked {
			eventType = domain.EventSubtaskChecked
		}
		deps.Events.Dispatch(domain.Event{Type: eventType, UserID: uid, TaskID: taskID, SubtaskID: subtask.ID})
		return c.JSON(http.StatusOK, subtaskResponse{Subtask: subtask})
	}
}

func deleteTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		uid, _ := userID(c)
		taskID := c.Param("taskId")

		if err := deps.Store.DeleteTask(ctx, uid, taskID); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				deps.Log.WithError(err).WithField("task", taskID).Error("delete task failed")
			}
			return writeError(c, err, msgDeleteFailed)
		}

		deps.Events.Dispatch(domain.Event{Type: domain.EventTaskDeleted, UserID: uid, TaskID: taskID})
		return c.JSON(http.StatusOK, deleteResponse{Success: true})
	}
}

// HTTPErrorHandler renders errors raised by echo itself (unknown routes,
// disallowed methods, body limits) and unhandled handler errors as {error}.
func HTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := strings.ToLower(http.StatusText(status))
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = strings.ToLower(http.StatusText(status))
			if m, ok := he.Message.(string); ok && status < http.StatusInternalServerError {
				msg = strings.ToLower(m)
			}
		} else {
			logger.WithError(err).WithField("path", c.Path()).Error("unhandled request error")
		}
		if status == http.StatusRequestEntityTooLarge {
			msg = msgTooLarge
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, errorResponse{Error: msg})
		}
		if werr != nil {
			logger.WithError(werr).Warn("write error response failed")
		}
	}
}

// writeError maps err to a status and a client-safe message. fallback is the
// message for storage failures.
func writeError(c echo.Context, err error, fallback string) error {
	var inputErr *domain.InputError
	switch {
	case errors.As(err, &inputErr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: inputErr.Msg})
	case errors.Is(err, errBodyTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: msgTooLarge})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request"})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: msgNotFound})
	case errors.Is(err, domain.ErrCompletionUnavailable), errors.Is(err, domain.ErrBreakdownParse):
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: msgBreakdownFailed})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: fallback})
	}
}
