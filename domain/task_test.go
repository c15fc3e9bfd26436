package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestSubtaskMarshalIncludesZeroValues(t *testing.T) {
	st := Subtask{ID: "s1", TaskID: "t1", Text: "Order cake", Position: 0}

	payload, err := sonic.Marshal(st)
	if err != nil {
		t.Fatalf("marshal subtask: %v", err)
	}

	s := string(payload)
	if !strings.Contains(s, "\"position\":0") {
		t.Fatalf("expected position field to be present, got %s", s)
	}
	if !strings.Contains(s, "\"checked\":false") {
		t.Fatalf("expected checked field to be present, got %s", s)
	}
	if strings.Contains(s, "t1") {
		t.Fatalf("expected parent id to stay internal, got %s", s)
	}
}

func TestTaskMarshalHidesOwner(t *testing.T) {
	task := Task{ID: "t1", UserID: "user-1", Title: "Birthday Party Planning"}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	if strings.Contains(string(payload), "user-1") {
		t.Fatalf("expected owner to be omitted, got %s", payload)
	}
	if !strings.Contains(string(payload), "\"created_at\"") {
		t.Fatalf("expected created_at field, got %s", payload)
	}
}
