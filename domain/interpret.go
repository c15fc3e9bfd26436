package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Interpret turns raw completion text into a breakdown.
//
// A response that validates fully is returned as is. Otherwise whatever
// non-empty subtasks the object carries are salvaged, with the model title
// kept when it has at least two characters (cut to 50) and the original
// input used as title otherwise. Text that is not a JSON object, or an
// object with no usable subtasks, yields ErrBreakdownParse.
func Interpret(raw, originalInput string) (Breakdown, error) {
	var parsed map[string]any
	if err := sonic.UnmarshalString(stripCodeFence(raw), &parsed); err != nil {
		return Breakdown{}, fmt.Errorf("%w: response is not JSON: %v", ErrBreakdownParse, err)
	}
	if parsed == nil {
		return Breakdown{}, fmt.Errorf("%w: response is not an object", ErrBreakdownParse)
	}

	if b, err := ValidateBreakdown(parsed); err == nil {
		b.Tier = TierFull
		return b, nil
	}
	return recoverBreakdown(parsed, originalInput)
}

func recoverBreakdown(parsed map[string]any, originalInput string) (Breakdown, error) {
	items, _ := sequence(parsed["subtasks"])
	subtasks := make([]string, 0, MaxSubtasks)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		subtasks = append(subtasks, truncateRunes(s, MaxSubtaskLen))
		if len(subtasks) == MaxSubtasks {
			break
		}
	}
	if len(subtasks) == 0 {
		return Breakdown{}, fmt.Errorf("%w: no usable subtasks", ErrBreakdownParse)
	}

	title := originalInput
	if t, ok := parsed["title"].(string); ok {
		t = strings.TrimSpace(t)
		if utf8.RuneCountInString(t) >= MinTitleLen {
			title = truncateRunes(t, MaxTitleLen)
		}
	}
	return Breakdown{Title: title, Subtasks: subtasks, Tier: TierPartial}, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence some models
// wrap around JSON output.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(s)
}
