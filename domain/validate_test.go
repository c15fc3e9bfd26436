package domain

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidateTaskInput(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "empty", in: "", wantErr: true},
		{name: "whitespace only", in: " \t\n ", wantErr: true},
		{name: "single char", in: "a", want: "a"},
		{name: "trimmed", in: "  Plan a birthday party  ", want: "Plan a birthday party"},
		{name: "exactly max", in: strings.Repeat("x", MaxTaskInputLen), want: strings.Repeat("x", MaxTaskInputLen)},
		{name: "max after trim", in: "  " + strings.Repeat("x", MaxTaskInputLen) + "  ", want: strings.Repeat("x", MaxTaskInputLen)},
		{name: "too long", in: strings.Repeat("x", MaxTaskInputLen+1), wantErr: true},
		{name: "multibyte counts runes", in: strings.Repeat("é", MaxTaskInputLen), want: strings.Repeat("é", MaxTaskInputLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTaskInput(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				var inputErr *InputError
				if !errors.As(err, &inputErr) || inputErr.Msg == "" {
					t.Fatalf("expected client message, got %#v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ValidateTaskInput(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateBreakdownAccepts(t *testing.T) {
	tests := map[string]map[string]any{
		"three subtasks": {
			"title":    "Birthday Party Planning",
			"subtasks": []any{"Send invitations", "Order cake", "Buy decorations"},
		},
		"five subtasks": {
			"title":    "Go",
			"subtasks": []any{"a", "b", "c", "d", "e"},
		},
		"max lengths": {
			"title":    strings.Repeat("t", MaxTitleLen),
			"subtasks": []string{strings.Repeat("s", MaxSubtaskLen), "b", "c"},
		},
	}
	for name, obj := range tests {
		t.Run(name, func(t *testing.T) {
			first, err := ValidateBreakdown(obj)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			second, err := ValidateBreakdown(obj)
			if err != nil {
				t.Fatalf("unexpected error on second call: %v", err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("validation not idempotent: %#v vs %#v", first, second)
			}
		})
	}
}

func TestValidateBreakdownReturnsTrimmedText(t *testing.T) {
	b, err := ValidateBreakdown(map[string]any{
		"title":    "  Garage Cleanup \n",
		"subtasks": []any{" Sort tools", "Sweep floor  ", "\tDonate boxes"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Title != "Garage Cleanup" {
		t.Fatalf("unexpected title %q", b.Title)
	}
	want := []string{"Sort tools", "Sweep floor", "Donate boxes"}
	if !reflect.DeepEqual(b.Subtasks, want) {
		t.Fatalf("unexpected subtasks %q", b.Subtasks)
	}
}

func TestValidateBreakdownRejects(t *testing.T) {
	three := []any{"a", "b", "c"}
	tests := map[string]map[string]any{
		"missing title":      {"subtasks": three},
		"title not string":   {"title": 42, "subtasks": three},
		"title too short":    {"title": "A", "subtasks": three},
		"title blank padded": {"title": "  A  ", "subtasks": three},
		"title too long":     {"title": strings.Repeat("t", MaxTitleLen+1), "subtasks": three},
		"missing subtasks":   {"title": "Plan"},
		"subtasks not list":  {"title": "Plan", "subtasks": "a,b,c"},
		"two subtasks":       {"title": "Plan", "subtasks": []any{"a", "b"}},
		"six subtasks":       {"title": "Plan", "subtasks": []any{"a", "b", "c", "d", "e", "f"}},
		"blank subtask":      {"title": "Plan", "subtasks": []any{"a", "   ", "c"}},
		"non string subtask": {"title": "Plan", "subtasks": []any{"a", 2.0, "c"}},
		"subtask too long":   {"title": "Plan", "subtasks": []any{"a", strings.Repeat("s", MaxSubtaskLen+1), "c"}},
	}
	for name, obj := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ValidateBreakdown(obj); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}
