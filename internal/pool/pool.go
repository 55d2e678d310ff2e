package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkessler/quern/internal/config"
	"github.com/mkessler/quern/internal/events"
	"github.com/mkessler/quern/internal/journal"
	"github.com/mkessler/quern/internal/protocol"
	"github.com/mkessler/quern/internal/session"
	"github.com/mkessler/quern/internal/worker"
)

// ExecutionError is a failure inside the worker execution contract. It is a
// normal failed result, not plumbing: the pool never falls back on it.
type ExecutionError struct {
	RequestID string
	Reason    string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed for request %s: %s", e.RequestID, e.Reason)
}

func decodeValue(raw json.RawMessage, dst *any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode worker result: %w", err)
	}
	return nil
}

// TaskRunner executes tasks on isolated worker units. Implemented by
// worker.Pool.
type TaskRunner interface {
	SubmitTask(ctx context.Context, task *protocol.TaskMessage) (*protocol.ResultMessage, error)
	Shutdown()
}

// SnapshotSource supplies the immutable data snapshot handed to workers.
type SnapshotSource interface {
	TaskContext(ctx context.Context) (*protocol.TaskContext, error)
}

// SessionRegistry tracks per-client sessions. Implemented by session.Manager.
type SessionRegistry interface {
	GetOrCreate(id string) session.Record
}

// Recorder persists terminal request outcomes. Implemented by journal.Journal.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// ConnectionPool is the single entry point for requests: it admits them
// under capacity limits, queues them by priority class, routes them to a
// worker unit or back to the caller's goroutine, and resolves each pending
// request exactly once.
//
// All queue, active-slot, and pending bookkeeping is guarded by one mutex;
// every mutation is a short non-suspending critical section, so the pool
// behaves as a single-threaded dispatch loop.
type ConnectionPool struct {
	cfg    config.PoolConfig
	logger *slog.Logger
	hub    *events.Hub

	runner    TaskRunner
	snapshots SnapshotSource
	sessions  SessionRegistry
	recorder  Recorder

	mu           sync.Mutex
	queues       [priorityClasses][]*Request
	active       map[string]*Request
	pending      map[string]chan resolution
	timers       map[string]*time.Timer
	shuttingDown bool
}

// Option customizes pool construction.
type Option func(*ConnectionPool)

// WithSessions attaches a session registry; requests bearing a session id
// touch their session on admission.
func WithSessions(s SessionRegistry) Option {
	return func(p *ConnectionPool) { p.sessions = s }
}

// WithRecorder attaches a journal for terminal request outcomes.
func WithRecorder(r Recorder) Option {
	return func(p *ConnectionPool) { p.recorder = r }
}

// New creates a connection pool. runner and snapshots may be nil, in which
// case every request takes the caller-goroutine path.
func New(cfg config.PoolConfig, runner TaskRunner, snapshots SnapshotSource, hub *events.Hub, logger *slog.Logger, opts ...Option) *ConnectionPool {
	p := &ConnectionPool{
		cfg:       cfg,
		logger:    logger.With("component", "pool"),
		hub:       hub,
		runner:    runner,
		snapshots: snapshots,
		active:    make(map[string]*Request),
		pending:   make(map[string]chan resolution),
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit admits a request and blocks until it resolves: a worker result, a
// local execution on this goroutine, a timeout, or a shutdown drop.
// Admission fails immediately with ErrQueueFull or ErrShuttingDown; it never
// blocks waiting for queue space.
func (p *ConnectionPool) Submit(ctx context.Context, req *Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	// Priority is an open int at the API boundary; anything outside the
	// known classes is treated as normal rather than trusted as a queue index.
	if req.Priority < PriorityLow || req.Priority > PriorityHigh {
		req.Priority = PriorityNormal
	}
	req.SubmittedAt = time.Now()

	resCh := make(chan resolution, 1)

	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if p.queuedLocked() >= p.cfg.MaxQueueSize {
		p.mu.Unlock()
		return nil, ErrQueueFull
	}

	p.pending[req.ID] = resCh
	p.queues[req.Priority] = append(p.queues[req.Priority], req)
	p.timers[req.ID] = time.AfterFunc(p.cfg.RequestTimeout, func() {
		p.expire(req.ID)
	})
	p.advanceLocked()
	p.mu.Unlock()

	if p.sessions != nil && req.SessionID != "" {
		p.sessions.GetOrCreate(req.SessionID)
	}

	select {
	case res := <-resCh:
		return p.settle(req, res)
	case <-ctx.Done():
		p.abandon(req.ID)
		return nil, ctx.Err()
	}
}

// settle turns a resolution into the submitter-visible outcome. The ready
// path executes the operation here, on the caller's own goroutine.
func (p *ConnectionPool) settle(req *Request, res resolution) (*Response, error) {
	switch res.kind {
	case resolutionReady:
		value, digest, err := p.executeLocal(req)
		p.release(req.ID)
		if err != nil {
			p.record(req, "failed", false, err, digest)
			return nil, err
		}
		p.record(req, "completed", false, nil, digest)
		return &Response{
			RequestID:      req.ID,
			Value:          value,
			Duration:       time.Since(req.SubmittedAt),
			WorkerExecuted: false,
		}, nil

	case resolutionDone:
		if res.err != nil {
			p.record(req, "failed", res.workerExecuted, res.err, res.digest)
			return nil, res.err
		}
		p.record(req, "completed", res.workerExecuted, nil, res.digest)
		return &Response{
			RequestID:      req.ID,
			Value:          res.value,
			Duration:       time.Since(req.SubmittedAt),
			WorkerExecuted: res.workerExecuted,
		}, nil

	case resolutionTimeout:
		p.record(req, "timed_out", false, ErrRequestTimeout, "")
		if p.hub != nil {
			p.hub.Publish(events.TypeRequestTimeout, req)
		}
		return nil, ErrRequestTimeout

	default: // resolutionDropped
		p.record(req, "dropped", false, ErrShuttingDown, "")
		return nil, ErrShuttingDown
	}
}

// executeLocal runs the operation via the same pure contract functions the
// workers use, against a fresh snapshot when one is available. It also
// returns the digest of the snapshot it executed against, for the journal.
func (p *ConnectionPool) executeLocal(req *Request) (any, string, error) {
	var tc *protocol.TaskContext
	if p.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
		defer cancel()
		var err error
		tc, err = p.snapshots.TaskContext(ctx)
		if err != nil {
			return nil, "", err
		}
	}
	value, err := worker.Execute(&protocol.OperationRequest{
		Operation: req.Operation,
		Action:    req.Action,
		Params:    req.Params,
	}, tc)
	return value, snapshotDigest(tc), err
}

// snapshotDigest extracts the digest metadata a snapshot source attaches.
func snapshotDigest(tc *protocol.TaskContext) string {
	if tc == nil {
		return ""
	}
	return tc.Metadata["digest"]
}

// Stats returns a consistent snapshot of occupancy at call time.
func (p *ConnectionPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := len(p.active)
	return Stats{
		Active:      active,
		Queued:      p.queuedLocked(),
		Max:         p.cfg.MaxConnections,
		Utilization: float64(active) / float64(p.cfg.MaxConnections),
	}
}

// Shutdown stops admission, drops everything still queued, waits up to the
// configured grace for active requests to drain, force-clears the rest, and
// terminates the worker units.
func (p *ConnectionPool) Shutdown() {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		return
	}
	p.shuttingDown = true

	for i := range p.queues {
		for _, req := range p.queues[i] {
			p.resolveLocked(req.ID, resolution{kind: resolutionDropped})
		}
		p.queues[i] = nil
	}
	p.mu.Unlock()

	p.logger.Info("pool draining", "grace", p.cfg.ShutdownGrace)
	deadline := time.Now().Add(p.cfg.ShutdownGrace)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		remaining := len(p.active)
		p.mu.Unlock()
		if remaining == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	p.mu.Lock()
	forced := len(p.active)
	for id := range p.active {
		p.resolveLocked(id, resolution{kind: resolutionDropped})
		delete(p.active, id)
	}
	p.mu.Unlock()
	if forced > 0 {
		p.logger.Warn("force-cleared active requests at shutdown", "count", forced)
	}

	if p.runner != nil {
		p.runner.Shutdown()
	}
	if p.hub != nil {
		p.hub.Publish(events.TypePoolShutdown, map[string]int{"forced": forced})
	}
	p.logger.Info("pool stopped")
}

// advanceLocked dispatches queued requests while concurrency slots are free,
// always draining the highest non-empty priority class first.
func (p *ConnectionPool) advanceLocked() {
	for len(p.active) < p.cfg.MaxConnections {
		req := p.popLocked()
		if req == nil {
			return
		}
		p.active[req.ID] = req

		if p.workerEligible(req) {
			go p.dispatchToWorker(req)
		} else {
			p.resolveLocked(req.ID, resolution{kind: resolutionReady})
		}
	}
}

// popLocked removes the head of the highest non-empty priority queue.
func (p *ConnectionPool) popLocked() *Request {
	for i := priorityClasses - 1; i >= 0; i-- {
		q := p.queues[i]
		if len(q) == 0 {
			continue
		}
		req := q[0]
		p.queues[i] = q[1:]
		return req
	}
	return nil
}

// workerEligible requires an associated session and a CPU-intensive
// operation; everything else runs on the caller's goroutine.
func (p *ConnectionPool) workerEligible(req *Request) bool {
	return req.SessionID != "" &&
		p.runner != nil &&
		p.snapshots != nil &&
		worker.CPUIntensive(req.Operation, req.Action)
}

// dispatchToWorker snapshots host data and hands the task to a worker unit.
// Plumbing failures (snapshot errors, no idle unit) fall back silently to
// the caller's goroutine; execution failures inside the contract surface as
// normal failed results.
func (p *ConnectionPool) dispatchToWorker(req *Request) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	defer cancel()

	tc, err := p.snapshots.TaskContext(ctx)
	if err != nil {
		p.logger.Debug("snapshot failed, falling back to caller", "request_id", req.ID, "error", err)
		p.fallback(req.ID)
		return
	}

	res, err := p.runner.SubmitTask(ctx, &protocol.TaskMessage{
		ID:        req.ID,
		Type:      protocol.TaskProcess,
		SessionID: req.SessionID,
		Request: &protocol.OperationRequest{
			Operation: req.Operation,
			Action:    req.Action,
			Params:    req.Params,
		},
		Context: tc,
	})
	if err != nil {
		p.logger.Debug("worker dispatch failed, falling back to caller", "request_id", req.ID, "error", err)
		p.fallback(req.ID)
		return
	}

	digest := snapshotDigest(tc)
	if res.Type == protocol.ResultError {
		p.complete(req.ID, resolution{
			kind:           resolutionDone,
			err:            &ExecutionError{RequestID: req.ID, Reason: res.Error},
			workerExecuted: true,
			digest:         digest,
		})
		return
	}

	var value any
	if len(res.Result) > 0 {
		if err := decodeValue(res.Result, &value); err != nil {
			p.complete(req.ID, resolution{
				kind:           resolutionDone,
				err:            &ExecutionError{RequestID: req.ID, Reason: err.Error()},
				workerExecuted: true,
				digest:         digest,
			})
			return
		}
	}
	p.complete(req.ID, resolution{kind: resolutionDone, value: value, workerExecuted: true, digest: digest})
}

// complete resolves a pending request with a final outcome, removes its
// active slot, and re-attempts queue advancement. Late results for requests
// already resolved (timeout, fallback, shutdown) are discarded.
func (p *ConnectionPool) complete(id string, res resolution) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[id]; !ok {
		p.logger.Debug("discarding late result", "request_id", id)
		return
	}
	delete(p.active, id)
	p.resolveLocked(id, res)
	p.advanceLocked()
}

// fallback reroutes an active request to the caller's goroutine. The request
// keeps its active slot until the caller finishes and calls release.
func (p *ConnectionPool) fallback(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[id]; !ok {
		return
	}
	p.resolveLocked(id, resolution{kind: resolutionReady})
}

// release frees the active slot after a caller-goroutine execution and
// advances the queue. This is a completion in all but name.
func (p *ConnectionPool) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, id)
	p.advanceLocked()
}

// expire fires at the request deadline: the request is resolved with a
// timeout and removed from whichever of queue or active set still holds it.
// A running worker task is abandoned, not cancelled.
func (p *ConnectionPool) expire(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[id]; !ok {
		return
	}
	p.removeQueuedLocked(id)
	delete(p.active, id)
	p.resolveLocked(id, resolution{kind: resolutionTimeout})
	p.advanceLocked()
}

// abandon cleans up after a submitter that stopped waiting (context done).
func (p *ConnectionPool) abandon(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pending[id]; !ok {
		return
	}
	p.removeQueuedLocked(id)
	delete(p.active, id)
	p.resolveLocked(id, resolution{kind: resolutionDropped})
	p.advanceLocked()
}

// resolveLocked delivers the one-shot resolution and stops the deadline
// timer. Exactly one resolution wins per request.
func (p *ConnectionPool) resolveLocked(id string, res resolution) {
	ch, ok := p.pending[id]
	if !ok {
		return
	}
	delete(p.pending, id)
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
	ch <- res
}

func (p *ConnectionPool) removeQueuedLocked(id string) {
	for i := range p.queues {
		for j, req := range p.queues[i] {
			if req.ID == id {
				p.queues[i] = append(p.queues[i][:j], p.queues[i][j+1:]...)
				return
			}
		}
	}
}

func (p *ConnectionPool) queuedLocked() int {
	n := 0
	for i := range p.queues {
		n += len(p.queues[i])
	}
	return n
}

// record journals a terminal outcome without holding the pool lock.
func (p *ConnectionPool) record(req *Request, status string, workerExecuted bool, cause error, digest string) {
	if p.hub != nil && status != "timed_out" {
		p.hub.Publish(events.TypeRequestDone, map[string]string{
			"request_id": req.ID,
			"status":     status,
		})
	}
	if p.recorder == nil {
		return
	}

	now := time.Now()
	entry := journal.Entry{
		RequestID:      req.ID,
		SessionID:      req.SessionID,
		Operation:      req.Operation,
		Action:         req.Action,
		Priority:       req.Priority.String(),
		Status:         status,
		WorkerExecuted: workerExecuted,
		QueuedAt:       req.SubmittedAt,
		CompletedAt:    now,
		DurationMs:     now.Sub(req.SubmittedAt).Milliseconds(),
		SnapshotDigest: digest,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.recorder.Record(ctx, entry); err != nil {
			p.logger.Warn("journal record failed", "request_id", req.ID, "error", err)
		}
	}()
}
