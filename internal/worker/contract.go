package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkessler/quern/internal/protocol"
)

// Operation/action pairs forming the closed set of worker-executable work.
const (
	OpSearch    = "search"
	OpFragments = "fragments"
	OpGraph     = "graph"

	ActionBulk     = "bulk"
	ActionExtract  = "extract"
	ActionTraverse = "traverse"
)

var (
	// ErrUnsupportedOperation is returned for an (operation, action) pair
	// outside the closed handler set.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrMissingContext is returned when a task arrives without the snapshot
	// data its handler requires.
	ErrMissingContext = errors.New("missing required context")
)

// CPUIntensive reports whether the (operation, action) pair qualifies for
// worker execution. Everything else runs on the caller's own goroutine.
func CPUIntensive(operation, action string) bool {
	switch operation + "/" + action {
	case OpSearch + "/" + ActionBulk,
		OpFragments + "/" + ActionExtract,
		OpGraph + "/" + ActionTraverse:
		return true
	}
	return false
}

// Execute runs one operation against an immutable snapshot. It is a pure
// function: it never touches shared mutable state, so both worker units and
// the main-thread fallback path call it directly.
func Execute(req *protocol.OperationRequest, tc *protocol.TaskContext) (any, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrMissingContext)
	}

	switch req.Operation + "/" + req.Action {
	case OpSearch + "/" + ActionBulk:
		var params SearchParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if tc == nil || tc.FileContents == nil {
			return nil, fmt.Errorf("%w: bulk search requires file contents", ErrMissingContext)
		}
		return BulkSearch(tc.FileContents, params), nil

	case OpFragments + "/" + ActionExtract:
		var params FragmentParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if tc == nil || tc.FileContents == nil {
			return nil, fmt.Errorf("%w: fragment extraction requires file contents", ErrMissingContext)
		}
		return ExtractFragments(tc.FileContents, params)

	case OpGraph + "/" + ActionTraverse:
		var params TraverseParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		if tc == nil || tc.FileContents == nil || tc.LinkGraph == nil {
			return nil, fmt.Errorf("%w: traversal requires file contents and a link graph", ErrMissingContext)
		}
		return Traverse(tc.FileContents, tc.LinkGraph, params)

	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedOperation, req.Operation, req.Action)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
