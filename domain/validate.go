package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTaskInputLen = 200
	MinTitleLen     = 2
	MaxTitleLen     = 50
	MinSubtasks     = 3
	MaxSubtasks     = 5
	MaxSubtaskLen   = 100
)

// Tier records which interpreter stage produced a breakdown.
type Tier string

const (
	TierFull    Tier = "full"
	TierPartial Tier = "partial"
)

// Breakdown is the title and ordered subtask texts derived from model output.
type Breakdown struct {
	Title    string
	Subtasks []string
	Tier     Tier
}

// ValidateTaskInput trims text and checks it is between 1 and 200 characters.
func ValidateTaskInput(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &InputError{Msg: "task is required"}
	}
	if utf8.RuneCountInString(trimmed) > MaxTaskInputLen {
		return "", &InputError{Msg: fmt.Sprintf("task must be %d characters or fewer", MaxTaskInputLen)}
	}
	return trimmed, nil
}

// ValidateBreakdown checks a decoded model response. It accepts only a
// title of 2-50 characters and 3-5 subtasks of 1-100 characters each,
// measured after trimming.
func ValidateBreakdown(obj map[string]any) (Breakdown, error) {
	title, ok := obj["title"].(string)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: title is not a string", errInvalidBreakdown)
	}
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n < MinTitleLen || n > MaxTitleLen {
		return Breakdown{}, fmt.Errorf("%w: title length %d out of range", errInvalidBreakdown, n)
	}

	items, ok := sequence(obj["subtasks"])
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: subtasks is not a list", errInvalidBreakdown)
	}
	if len(items) < MinSubtasks || len(items) > MaxSubtasks {
		return Breakdown{}, fmt.Errorf("%w: %d subtasks", errInvalidBreakdown, len(items))
	}
	subtasks := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return Breakdown{}, fmt.Errorf("%w: subtask %d is not a string", errInvalidBreakdown, i)
		}
		s = strings.TrimSpace(s)
		if n := utf8.RuneCountInString(s); n < 1 || n > MaxSubtaskLen {
			return Breakdown{}, fmt.Errorf("%w: subtask %d length %d out of range", errInvalidBreakdown, i, n)
		}
		subtasks = append(subtasks, s)
	}
	return Breakdown{Title: title, Subtasks: subtasks}, nil
}

// sequence normalises decoded JSON arrays and plain string slices.
func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
