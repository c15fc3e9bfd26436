package domain

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestInterpretWellFormed(t *testing.T) {
	raw := `{"title":"Birthday Party Planning","subtasks":["Send invitations","Order cake","Buy decorations"]}`

	b, err := Interpret(raw, "Plan a birthday party")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if b.Title != "Birthday Party Planning" {
		t.Fatalf("unexpected title: %q", b.Title)
	}
	want := []string{"Send invitations", "Order cake", "Buy decorations"}
	if !reflect.DeepEqual(b.Subtasks, want) {
		t.Fatalf("unexpected subtasks: %#v", b.Subtasks)
	}
	if b.Tier != TierFull {
		t.Fatalf("expected full tier, got %s", b.Tier)
	}
}

func TestInterpretCodeFencedJSON(t *testing.T) {
	raw := "```json\n{\"title\":\"Move House\",\"subtasks\":[\"Book van\",\"Pack boxes\",\"Update address\"]}\n```"

	b, err := Interpret(raw, "move")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if b.Title != "Move House" || len(b.Subtasks) != 3 || b.Tier != TierFull {
		t.Fatalf("unexpected breakdown: %#v", b)
	}
}

func TestInterpretFallsBackToInputTitle(t *testing.T) {
	tests := map[string]string{
		"missing title": `{"subtasks":["Send invitations","Order cake","Buy decorations"]}`,
		"short title":   `{"title":"P","subtasks":["Send invitations","Order cake","Buy decorations"]}`,
		"title number":  `{"title":7,"subtasks":["Send invitations","Order cake","Buy decorations"]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			b, err := Interpret(raw, "Plan a birthday party")
			if err != nil {
				t.Fatalf("interpret: %v", err)
			}
			if b.Title != "Plan a birthday party" {
				t.Fatalf("expected original input as title, got %q", b.Title)
			}
			if len(b.Subtasks) != 3 {
				t.Fatalf("unexpected subtasks: %#v", b.Subtasks)
			}
			if b.Tier != TierPartial {
				t.Fatalf("expected partial tier, got %s", b.Tier)
			}
		})
	}
}

func TestInterpretPartialFiltersSubtasks(t *testing.T) {
	raw := `{"title":"Clean The Garage","subtasks":["  Sort tools ", "", 3, null, "Sweep floor"]}`

	b, err := Interpret(raw, "clean garage")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if b.Title != "Clean The Garage" {
		t.Fatalf("expected model title kept, got %q", b.Title)
	}
	want := []string{"Sort tools", "Sweep floor"}
	if !reflect.DeepEqual(b.Subtasks, want) {
		t.Fatalf("unexpected subtasks: %#v", b.Subtasks)
	}
}

func TestInterpretPartialTruncatesLongTitle(t *testing.T) {
	long := strings.Repeat("word ", 20)
	raw := `{"title":"` + long + `","subtasks":["a","b","c"]}`

	b, err := Interpret(raw, "input")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if want := strings.TrimSpace(long)[:MaxTitleLen]; b.Title != want {
		t.Fatalf("expected hard cut title %q, got %q", want, b.Title)
	}
}

func TestInterpretPartialCapsSubtasks(t *testing.T) {
	raw := `{"title":"Big Project","subtasks":["a","b","c","d","e","f","g"]}`

	b, err := Interpret(raw, "input")
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if len(b.Subtasks) != MaxSubtasks {
		t.Fatalf("expected %d subtasks, got %d", MaxSubtasks, len(b.Subtasks))
	}
	if b.Subtasks[4] != "e" {
		t.Fatalf("expected order preserved, got %#v", b.Subtasks)
	}
}

func TestInterpretFailures(t *testing.T) {
	tests := map[string]string{
		"plain text":       "Sure! Here are some subtasks: buy cake",
		"empty":            "",
		"array":            `["a","b","c"]`,
		"null":             "null",
		"no subtasks":      `{"title":"Birthday Party Planning"}`,
		"empty subtasks":   `{"title":"Birthday Party Planning","subtasks":[]}`,
		"blank subtasks":   `{"title":"Birthday Party Planning","subtasks":["", "  "]}`,
		"subtasks string":  `{"title":"Birthday Party Planning","subtasks":"a, b"}`,
		"truncated object": `{"title":"Birthday Party Planning","subtasks":["a",`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Interpret(raw, "Plan a birthday party"); !errors.Is(err, ErrBreakdownParse) {
				t.Fatalf("expected ErrBreakdownParse, got %v", err)
			}
		})
	}
}
