package protocol

import "encoding/json"

// MessageType tags the envelopes crossing the worker boundary.
type MessageType string

const (
	// TaskProcess asks a worker unit to execute one operation.
	TaskProcess MessageType = "process"
	// TaskShutdown terminates a worker unit immediately without draining.
	TaskShutdown MessageType = "shutdown"

	// ResultOK carries a successful operation result.
	ResultOK MessageType = "result"
	// ResultError carries an execution failure.
	ResultError MessageType = "error"
	// WorkerReady is emitted once by a worker unit at startup. It carries no id.
	WorkerReady MessageType = "ready"
)

// OperationRequest names the operation a worker should run.
type OperationRequest struct {
	Operation string          `json:"operation"`
	Action    string          `json:"action"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// TaskContext is the immutable data snapshot handed to a worker. Workers
// have no access to the host's live state; everything they may read is here.
// FileContents and LinkGraph must survive the encode/decode round trip even
// when empty: an empty store is a valid snapshot, not a missing one.
type TaskContext struct {
	FileContents map[string]string   `json:"file_contents"`
	LinkGraph    map[string][]string `json:"link_graph"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

// TaskMessage is the dispatcher → worker envelope.
type TaskMessage struct {
	ID        string            `json:"id,omitempty"`
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Request   *OperationRequest `json:"request,omitempty"`
	Context   *TaskContext      `json:"context,omitempty"`
}

// ResultMessage is the worker → dispatcher envelope. Exactly one of
// Result/Error is present for terminal types.
type ResultMessage struct {
	ID     string          `json:"id,omitempty"`
	Type   MessageType     `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
