package worker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mkessler/quern/internal/protocol"
)

func TestCPUIntensiveClosedSet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		op, action string
		want       bool
	}{
		{OpSearch, ActionBulk, true},
		{OpFragments, ActionExtract, true},
		{OpGraph, ActionTraverse, true},
		{OpSearch, ActionExtract, false},
		{"sessions", "list", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := CPUIntensive(tc.op, tc.action); got != tc.want {
			t.Errorf("CPUIntensive(%q, %q) = %v, want %v", tc.op, tc.action, got, tc.want)
		}
	}
}

func TestExecuteUnsupportedOperation(t *testing.T) {
	t.Parallel()

	req := &protocol.OperationRequest{Operation: "compress", Action: "gzip"}
	_, err := Execute(req, &protocol.TaskContext{FileContents: map[string]string{}})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestExecuteMissingContext(t *testing.T) {
	t.Parallel()

	params, _ := json.Marshal(SearchParams{Query: "x"})
	req := &protocol.OperationRequest{Operation: OpSearch, Action: ActionBulk, Params: params}

	if _, err := Execute(req, nil); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("nil context should fail, got %v", err)
	}

	// Traversal additionally needs the link graph.
	tp, _ := json.Marshal(TraverseParams{Start: "a.md"})
	treq := &protocol.OperationRequest{Operation: OpGraph, Action: ActionTraverse, Params: tp}
	tc := &protocol.TaskContext{FileContents: map[string]string{"a.md": "x"}}
	if _, err := Execute(treq, tc); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("missing link graph should fail, got %v", err)
	}
}

func TestExecuteBulkSearch(t *testing.T) {
	t.Parallel()

	params, _ := json.Marshal(SearchParams{Query: "beta"})
	req := &protocol.OperationRequest{Operation: OpSearch, Action: ActionBulk, Params: params}
	tc := &protocol.TaskContext{FileContents: map[string]string{"a.md": "alpha beta"}}

	value, err := Execute(req, tc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res, ok := value.(*SearchResult)
	if !ok {
		t.Fatalf("expected *SearchResult, got %T", value)
	}
	if res.TotalHits != 1 {
		t.Fatalf("expected one hit, got %d", res.TotalHits)
	}
}

func TestExecuteBadParams(t *testing.T) {
	t.Parallel()

	req := &protocol.OperationRequest{
		Operation: OpSearch,
		Action:    ActionBulk,
		Params:    json.RawMessage(`{"query": 42}`),
	}
	tc := &protocol.TaskContext{FileContents: map[string]string{}}
	if _, err := Execute(req, tc); err == nil {
		t.Fatal("expected a params decode error")
	}
}
