package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"breakdown-api/domain"
)

// MaxBodySize bounds request bodies after any decompression.
const MaxBodySize = 64 * 1024 // 64 KiB

const idempotencyHeader = "Idempotency-Key"

// POST /tasks request body
type createTaskRequest struct {
	Task string `json:"task"`
}

// PATCH /tasks/:taskId/subtasks/:subtaskId request body. Checked is a
// pointer so a missing field can be told apart from false.
type toggleSubtaskRequest struct {
	Checked *bool `json:"checked"`
}

type taskResponse struct {
	Task domain.Task `json:"task"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type subtaskResponse struct {
	Subtask domain.Subtask `json:"subtask"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SonicSerializer is an echo.JSONSerializer backed by sonic.
type SonicSerializer struct{}

func (SonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (SonicSerializer) Deserialize(c echo.Context, i any) error {
	err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body").SetInternal(err)
	}
	return nil
}

var strictJSON = sonic.Config{
	EscapeHTML:            true,
	SortMapKeys:           true,
	CompactMarshaler:      true,
	CopyString:            true,
	ValidateString:        true,
	DisallowUnknownFields: true,
}.Froze()

var errBodyTooLarge = errors.New("request body too large")

// decodeBody reads a single JSON object from the request. Unknown fields are
// rejected.
func decodeBody(c echo.Context, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return &domain.InputError{Msg: "invalid request body"}
	}
	if err := strictJSON.Unmarshal(data, v); err != nil {
		return &domain.InputError{Msg: "invalid request body"}
	}
	return nil
}
