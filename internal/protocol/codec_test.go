package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()

	in := &TaskMessage{
		ID:        "req-1",
		Type:      TaskProcess,
		SessionID: "sess-1",
		Request: &OperationRequest{
			Operation: "search",
			Action:    "bulk",
			Params:    json.RawMessage(`{"query":"beta"}`),
		},
		Context: &TaskContext{
			FileContents: map[string]string{"a.md": "alpha"},
			LinkGraph:    map[string][]string{"a.md": {"b.md"}},
		},
	}

	raw, err := EncodeTask(in)
	if err != nil {
		t.Fatalf("EncodeTask: %v", err)
	}
	out, err := DecodeTask(raw)
	if err != nil {
		t.Fatalf("DecodeTask: %v", err)
	}
	if out.ID != in.ID || out.SessionID != in.SessionID {
		t.Fatalf("identity fields lost: %+v", out)
	}
	if out.Request.Operation != "search" || out.Request.Action != "bulk" {
		t.Fatalf("request lost: %+v", out.Request)
	}
	if out.Context.FileContents["a.md"] != "alpha" {
		t.Fatalf("context lost: %+v", out.Context)
	}
}

func TestTaskRoundTripKeepsEmptySnapshot(t *testing.T) {
	t.Parallel()

	in := &TaskMessage{
		ID:   "req-1",
		Type: TaskProcess,
		Request: &OperationRequest{
			Operation: "search",
			Action:    "bulk",
		},
		Context: &TaskContext{
			FileContents: map[string]string{},
			LinkGraph:    map[string][]string{},
		},
	}

	raw, err := EncodeTask(in)
	if err != nil {
		t.Fatalf("EncodeTask: %v", err)
	}
	out, err := DecodeTask(raw)
	if err != nil {
		t.Fatalf("DecodeTask: %v", err)
	}

	// An empty store is a valid snapshot; it must not decode as absent.
	if out.Context.FileContents == nil {
		t.Fatal("empty file contents decoded as nil")
	}
	if out.Context.LinkGraph == nil {
		t.Fatal("empty link graph decoded as nil")
	}
}

func TestValidateTaskBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		task *TaskMessage
		want string
	}{
		{
			name: "process without id",
			task: &TaskMessage{Type: TaskProcess, Request: &OperationRequest{Operation: "a", Action: "b"}},
			want: "missing required field: id",
		},
		{
			name: "process without request",
			task: &TaskMessage{ID: "x", Type: TaskProcess},
			want: "missing required field: request",
		},
		{
			name: "process without action",
			task: &TaskMessage{ID: "x", Type: TaskProcess, Request: &OperationRequest{Operation: "a"}},
			want: "must name operation and action",
		},
		{
			name: "unknown type",
			task: &TaskMessage{ID: "x", Type: "restart"},
			want: "invalid task type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := EncodeTask(tc.task)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	// Shutdown needs no payload at all.
	if _, err := EncodeTask(&TaskMessage{Type: TaskShutdown}); err != nil {
		t.Fatalf("bare shutdown should be valid: %v", err)
	}
}

func TestValidateResultBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  *ResultMessage
		want string
	}{
		{
			name: "ok without id",
			res:  &ResultMessage{Type: ResultOK, Result: json.RawMessage(`{}`)},
			want: "missing required field: id",
		},
		{
			name: "ok carrying an error",
			res:  &ResultMessage{ID: "x", Type: ResultOK, Error: "boom"},
			want: "carries an error",
		},
		{
			name: "error without message",
			res:  &ResultMessage{ID: "x", Type: ResultError},
			want: "no error message",
		},
		{
			name: "error carrying a result",
			res:  &ResultMessage{ID: "x", Type: ResultError, Error: "boom", Result: json.RawMessage(`{}`)},
			want: "carries a result value",
		},
		{
			name: "ready with an id",
			res:  &ResultMessage{ID: "x", Type: WorkerReady},
			want: "must not carry an id",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := EncodeResult(tc.res)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := DecodeTask(nil); err == nil {
		t.Fatal("empty task should fail")
	}
	if _, err := DecodeTask([]byte("not json")); err == nil {
		t.Fatal("invalid JSON should fail")
	}
	if _, err := DecodeResult([]byte(`{"type":"result"}`)); err == nil {
		t.Fatal("decoded results are validated too")
	}
}
