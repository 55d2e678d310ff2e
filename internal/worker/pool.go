package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkessler/quern/internal/protocol"
)

var (
	// ErrNoIdleUnit is returned when every execution unit is busy. The
	// dispatcher treats this as "worker unavailable" and falls back to the
	// caller's goroutine.
	ErrNoIdleUnit = errors.New("no idle worker unit")

	// ErrPoolClosed is returned for submissions after shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// shutdownWait bounds how long Shutdown blocks on units still computing.
const shutdownWait = 2 * time.Second

// unit is one isolated execution context. It shares no mutable state with
// the pool or other units: tasks and results cross as encoded bytes.
type unit struct {
	id    int
	tasks chan []byte
	out   chan []byte
}

// Pool owns a fixed number of worker execution units and assigns tasks to
// idle ones.
type Pool struct {
	logger *slog.Logger
	units  []*unit
	idle   chan *unit
	quit   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewPool starts n execution units and waits for each to emit its ready
// signal before returning.
func NewPool(n int, logger *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		logger: logger.With("component", "worker"),
		idle:   make(chan *unit, n),
		quit:   make(chan struct{}),
	}

	for i := 0; i < n; i++ {
		u := &unit{
			id:    i,
			tasks: make(chan []byte),
			// Buffered so a unit never blocks handing back a result the
			// dispatcher has already abandoned.
			out: make(chan []byte, 1),
		}
		p.units = append(p.units, u)
		p.wg.Add(1)
		go p.run(u)
	}

	for _, u := range p.units {
		raw := <-u.out
		msg, err := protocol.DecodeResult(raw)
		if err != nil || msg.Type != protocol.WorkerReady {
			p.logger.Warn("unexpected startup message from unit", "unit", u.id, "error", err)
		}
		p.idle <- u
	}

	p.logger.Info("worker pool started", "units", n)
	return p
}

// Size returns the number of execution units.
func (p *Pool) Size() int {
	return len(p.units)
}

// SubmitTask hands a task to an idle unit and blocks until the unit replies.
// It fails fast with ErrNoIdleUnit when every unit is busy; it never queues.
func (p *Pool) SubmitTask(ctx context.Context, task *protocol.TaskMessage) (*protocol.ResultMessage, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	raw, err := protocol.EncodeTask(task)
	if err != nil {
		return nil, err
	}

	var u *unit
	select {
	case u = <-p.idle:
	default:
		return nil, ErrNoIdleUnit
	}

	select {
	case u.tasks <- raw:
	case <-p.quit:
		return nil, ErrPoolClosed
	}

	select {
	case out := <-u.out:
		if !p.closed.Load() {
			p.idle <- u
		}
		res, err := protocol.DecodeResult(out)
		if err != nil {
			return nil, fmt.Errorf("unit %d returned invalid result: %w", u.id, err)
		}
		return res, nil
	case <-p.quit:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		// The unit keeps computing. Reclaim it once it finishes so the idle
		// set stays at full strength; the late result is discarded.
		go func() {
			select {
			case <-u.out:
				if !p.closed.Load() {
					p.idle <- u
				}
			case <-p.quit:
			}
		}()
		return nil, ctx.Err()
	}
}

// Shutdown terminates all units. Idle units receive an explicit shutdown
// task; busy units observe the quit signal after their current task.
// Best-effort: units still computing after the wait are logged and abandoned.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	stop, err := protocol.EncodeTask(&protocol.TaskMessage{Type: protocol.TaskShutdown})
	if err == nil {
	drain:
		for {
			select {
			case u := <-p.idle:
				select {
				case u.tasks <- stop:
				default:
				}
			default:
				break drain
			}
		}
	}
	close(p.quit)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(shutdownWait):
		p.logger.Warn("worker units still running after shutdown wait")
	}
}

// run is the unit loop: decode a task, execute it, hand back an envelope.
// Nothing escapes the boundary: panics and handler errors become error
// envelopes.
func (p *Pool) run(u *unit) {
	defer p.wg.Done()

	ready, _ := protocol.EncodeResult(&protocol.ResultMessage{Type: protocol.WorkerReady})
	u.out <- ready

	for {
		select {
		case <-p.quit:
			return
		case raw := <-u.tasks:
			task, err := protocol.DecodeTask(raw)
			if err != nil {
				u.out <- errorEnvelope(taskID(raw), fmt.Sprintf("invalid task: %v", err))
				continue
			}
			if task.Type == protocol.TaskShutdown {
				return
			}
			u.out <- p.execute(u, task)
		}
	}
}

// execute runs one process task and returns an encoded result envelope.
func (p *Pool) execute(u *unit, task *protocol.TaskMessage) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("unit panic", "unit", u.id, "task_id", task.ID, "panic", r)
			out = errorEnvelope(task.ID, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	value, err := Execute(task.Request, task.Context)
	if err != nil {
		return errorEnvelope(task.ID, err.Error())
	}

	result, err := json.Marshal(value)
	if err != nil {
		return errorEnvelope(task.ID, fmt.Sprintf("marshal result: %v", err))
	}

	raw, err := protocol.EncodeResult(&protocol.ResultMessage{
		ID:     task.ID,
		Type:   protocol.ResultOK,
		Result: result,
	})
	if err != nil {
		return errorEnvelope(task.ID, fmt.Sprintf("encode result: %v", err))
	}
	return raw
}

func errorEnvelope(id, msg string) []byte {
	if id == "" {
		id = "invalid"
	}
	raw, err := protocol.EncodeResult(&protocol.ResultMessage{
		ID:    id,
		Type:  protocol.ResultError,
		Error: msg,
	})
	if err != nil {
		// Validation cannot fail here: id and error are both non-empty.
		return []byte(`{"id":"invalid","type":"error","error":"internal encode failure"}`)
	}
	return raw
}

// taskID best-effort extracts the id from an undecodable task so the error
// envelope can still be correlated.
func taskID(raw []byte) string {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.ID
}
