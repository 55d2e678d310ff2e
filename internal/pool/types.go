package pool

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Priority classes for admission. Within a class dispatch is FIFO; across
// classes HIGH always drains before NORMAL before LOW.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh

	priorityClasses = 3
)

// ParsePriority maps a string to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Request is one unit of admitted work. Identity is the ID; the struct is
// read-only after creation.
type Request struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id,omitempty"`
	Operation   string          `json:"operation"`
	Action      string          `json:"action"`
	Params      json.RawMessage `json:"params,omitempty"`
	Priority    Priority        `json:"priority"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Response is the resolved outcome handed back to the submitter.
type Response struct {
	RequestID      string        `json:"request_id"`
	Value          any           `json:"value"`
	WorkerExecuted bool          `json:"worker_executed"`
	Duration       time.Duration `json:"-"`
}

// Stats is a consistent point-in-time snapshot of pool occupancy.
type Stats struct {
	Active      int     `json:"active"`
	Queued      int     `json:"queued"`
	Max         int     `json:"max"`
	Utilization float64 `json:"utilization"`
}

var (
	// ErrQueueFull rejects a submission once the admission queue is at
	// capacity. Never retried by the pool.
	ErrQueueFull = errors.New("admission queue is full")

	// ErrShuttingDown rejects submissions during and after shutdown, and
	// resolves requests dropped by the shutdown drain.
	ErrShuttingDown = errors.New("pool is shutting down")

	// ErrRequestTimeout resolves a request that saw no result within the
	// request timeout.
	ErrRequestTimeout = errors.New("request timed out")
)

// resolutionKind discriminates the one-shot outcomes a pending request can see.
type resolutionKind int

const (
	// resolutionDone carries a final value or execution error.
	resolutionDone resolutionKind = iota
	// resolutionReady tells the submitter to run the operation on its own
	// goroutine (the "main thread" path).
	resolutionReady
	// resolutionTimeout abandons the request at its deadline.
	resolutionTimeout
	// resolutionDropped discards the request at shutdown.
	resolutionDropped
)

type resolution struct {
	kind           resolutionKind
	value          any
	err            error
	workerExecuted bool
	// digest identifies the snapshot the execution saw, for the journal.
	digest string
}
