// Package engine resolves execution order over chains and workflows and
// drives their requests one at a time, tracking live per-node status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/mapping"
	"github.com/pyhu26/post-woman/internal/model"
)

var (
	// ErrNoSteps is returned when a chain or workflow has nothing to run
	ErrNoSteps = errors.New("nothing to run: no steps or nodes")
	// ErrRunning is returned when an operation needs the orchestrator idle
	ErrRunning = errors.New("a run is already in progress")
)

// Dispatcher sends one request. HTTP error statuses are ordinary responses;
// an error means the transport failed. A transport failure may also be
// reported as a status 0 response.
type Dispatcher interface {
	Send(ctx context.Context, req model.Request) (*model.Response, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface
type DispatcherFunc func(ctx context.Context, req model.Request) (*model.Response, error)

// Send calls f(ctx, req)
func (f DispatcherFunc) Send(ctx context.Context, req model.Request) (*model.Response, error) {
	return f(ctx, req)
}

// State is the lifecycle state of the orchestrator's current run
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

// Mode tells whether a run walks a chain or a workflow
type Mode string

const (
	ModeChain    Mode = "chain"
	ModeWorkflow Mode = "workflow"
)

// Orchestrator owns the state of one run at a time. Runs execute on the
// caller's goroutine; Stop, Snapshot and Subscribe are safe to call from
// any goroutine.
type Orchestrator struct {
	dispatcher   Dispatcher
	mapper       *mapping.Evaluator
	log          *zap.Logger
	rejectCycles bool

	mu         sync.Mutex
	runID      string
	mode       Mode
	name       string
	state      State
	results    []model.ExecutionResult
	index      map[string]int
	cursor     int
	currentID  string
	skipped    []string
	stopping   bool
	startedAt  time.Time
	finishedAt time.Time

	hub listeners
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithEvaluator sets the mapping evaluator used in workflow mode
func WithEvaluator(e *mapping.Evaluator) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.mapper = e
		}
	}
}

// WithRejectCycles makes RunWorkflow refuse workflows whose graph has a
// cycle instead of leaving the affected nodes pending.
func WithRejectCycles(reject bool) Option {
	return func(o *Orchestrator) {
		o.rejectCycles = reject
	}
}

// New creates an orchestrator that sends requests through d
func New(d Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher: d,
		log:        zap.NewNop(),
		state:      StateIdle,
		cursor:     -1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.mapper == nil {
		o.mapper = mapping.NewEvaluator(o.log)
	}
	return o
}

// RunChain executes the chain's steps in slice order without data mapping.
// It only returns an error when the run is rejected before starting; every
// execution failure is recorded in the results.
func (o *Orchestrator) RunChain(ctx context.Context, chain *model.Chain) (Snapshot, error) {
	if chain == nil || len(chain.Steps) == 0 {
		return o.Snapshot(), ErrNoSteps
	}

	initial := make([]model.ExecutionResult, len(chain.Steps))
	ids := make([]string, len(chain.Steps))
	requests := make(map[string]model.Request, len(chain.Steps))
	for i, s := range chain.Steps {
		initial[i] = pendingResult(s.ID, s.Request)
		ids[i] = s.ID
		requests[s.ID] = s.Request
	}

	if err := o.begin(ModeChain, chain.Name, initial, nil); err != nil {
		return o.Snapshot(), err
	}

	o.execute(ctx, ids,
		func(id string) model.Request { return requests[id] },
		func(string, *model.Response) {},
	)
	return o.Snapshot(), nil
}

// RunWorkflow executes the workflow's nodes in dependency order. Before a
// node is sent, the mappings of its incoming edges are applied against the
// cached responses of their source nodes.
func (o *Orchestrator) RunWorkflow(ctx context.Context, wf *model.Workflow) (Snapshot, error) {
	if wf == nil || len(wf.Nodes) == 0 {
		return o.Snapshot(), ErrNoSteps
	}

	order := ResolveOrder(wf.Nodes, wf.Edges)
	if order.Cyclic() {
		if o.rejectCycles {
			return o.Snapshot(), &CycleError{NodeIDs: order.Skipped}
		}
		o.log.Warn("Workflow has a cycle, some nodes will not run",
			zap.String("workflow", wf.Name),
			zap.Strings("skipped", order.Skipped),
		)
	}

	initial := make([]model.ExecutionResult, len(wf.Nodes))
	nodes := make(map[string]model.WorkflowNode, len(wf.Nodes))
	for i, n := range wf.Nodes {
		initial[i] = pendingResult(n.ID, n.Request)
		nodes[n.ID] = n
	}
	edges := append([]model.WorkflowEdge(nil), wf.Edges...)

	if err := o.begin(ModeWorkflow, wf.Name, initial, order.Skipped); err != nil {
		return o.Snapshot(), err
	}

	bodies := make(map[string]string)
	prepare := func(id string) model.Request {
		req := nodes[id].Request
		for _, e := range edges {
			if e.Target != id || len(e.Mappings) == 0 {
				continue
			}
			body, ok := bodies[e.Source]
			if !ok {
				continue
			}
			req = o.mapper.Apply(req, e.Mappings, body)
		}
		return req
	}
	cache := func(id string, resp *model.Response) {
		bodies[id] = resp.Body
	}

	o.execute(ctx, order.IDs, prepare, cache)
	return o.Snapshot(), nil
}

// Stop asks the current run to halt before its next dispatch. A request
// already in flight is allowed to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		o.stopping = true
		o.log.Info("Stop requested", zap.String("run", o.runID))
	}
}

// ClearResults discards the results of the last run
func (o *Orchestrator) ClearResults() error {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return ErrRunning
	}
	o.results = nil
	o.index = nil
	o.skipped = nil
	o.cursor = -1
	o.currentID = ""
	o.state = StateIdle
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.hub.emit(Event{Type: EventResultsCleared, Snapshot: snap})
	return nil
}

// Running reports whether a run is in progress
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateRunning
}

// Snapshot returns a copy of the current run state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe registers l for run events and returns a function that
// removes it. Listeners are called synchronously on the run goroutine.
func (o *Orchestrator) Subscribe(l Listener) func() {
	return o.hub.add(l)
}

// Classify maps a response to a terminal status and error message.
// 200-399 is success. Status 0 is a transport failure whose body carries
// the underlying error text.
func Classify(resp *model.Response) (model.ResultStatus, string) {
	switch {
	case resp == nil:
		return model.StatusError, "no response"
	case resp.Successful():
		return model.StatusSuccess, ""
	case resp.TransportFailure():
		if resp.Body == "" {
			return model.StatusError, "transport error"
		}
		return model.StatusError, "transport error: " + resp.Body
	default:
		return model.StatusError, fmt.Sprintf("HTTP %d", resp.Status)
	}
}

func pendingResult(id string, req model.Request) model.ExecutionResult {
	return model.ExecutionResult{
		ID:      id,
		Request: req.Clone(),
		Status:  model.StatusPending,
	}
}

func (o *Orchestrator) begin(mode Mode, name string, initial []model.ExecutionResult, skipped []string) error {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return ErrRunning
	}
	o.runID = model.NewID()
	o.mode = mode
	o.name = name
	o.state = StateRunning
	o.results = initial
	o.index = make(map[string]int, len(initial))
	for i, r := range initial {
		o.index[r.ID] = i
	}
	o.skipped = append([]string(nil), skipped...)
	o.cursor = 0
	o.currentID = ""
	o.stopping = false
	o.startedAt = time.Now()
	o.finishedAt = time.Time{}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Info("Run started",
		zap.String("run", snap.RunID),
		zap.String("mode", string(mode)),
		zap.String("name", name),
		zap.Int("nodes", len(initial)),
	)
	o.hub.emit(Event{Type: EventRunStarted, Snapshot: snap})
	return nil
}

// execute walks ids in order. Cancellation is checked only between
// dispatches; the dispatch context is detached from ctx so a stop never
// interrupts a request in flight.
func (o *Orchestrator) execute(
	ctx context.Context,
	ids []string,
	prepare func(id string) model.Request,
	onSuccess func(id string, resp *model.Response),
) {
	sendCtx := context.WithoutCancel(ctx)

	for i, id := range ids {
		if o.cancelled(ctx) {
			o.finish(StateStopped)
			return
		}

		req := prepare(id)
		o.markRunning(i, id, req)

		resp, err := o.dispatcher.Send(sendCtx, req)
		if err != nil {
			msg := err.Error()
			if msg == "" {
				msg = "unknown error"
			}
			o.record(id, nil, model.StatusError, msg)
			o.finish(StateStopped)
			return
		}

		status, msg := Classify(resp)
		o.record(id, resp, status, msg)
		if status == model.StatusError {
			o.finish(StateStopped)
			return
		}
		onSuccess(id, resp)
	}
	o.finish(StateCompleted)
}

func (o *Orchestrator) cancelled(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping || ctx.Err() != nil
}

func (o *Orchestrator) markRunning(cursor int, id string, req model.Request) {
	o.mu.Lock()
	o.cursor = cursor
	o.currentID = id
	if i, ok := o.index[id]; ok {
		o.results[i].Status = model.StatusRunning
		o.results[i].Request = req.Clone()
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Debug("Dispatching",
		zap.String("run", snap.RunID),
		zap.String("node", id),
		zap.String("method", string(req.Method)),
		zap.String("url", req.URL),
	)
	o.hub.emit(Event{Type: EventNodeStarted, NodeID: id, Snapshot: snap})
}

func (o *Orchestrator) record(id string, resp *model.Response, status model.ResultStatus, msg string) {
	o.mu.Lock()
	if i, ok := o.index[id]; ok {
		o.results[i].Response = resp
		o.results[i].Status = status
		o.results[i].Error = msg
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	fields := []zap.Field{
		zap.String("run", snap.RunID),
		zap.String("node", id),
		zap.String("status", string(status)),
	}
	if resp != nil {
		fields = append(fields, zap.Int("http_status", resp.Status), zap.Int64("time_ms", resp.Time))
	}
	if status == model.StatusError {
		o.log.Warn("Request failed", append(fields, zap.String("error", msg))...)
	} else {
		o.log.Debug("Request finished", fields...)
	}
	o.hub.emit(Event{Type: EventNodeFinished, NodeID: id, Snapshot: snap})
}

func (o *Orchestrator) finish(state State) {
	o.mu.Lock()
	o.state = state
	o.cursor = -1
	o.currentID = ""
	o.stopping = false
	o.finishedAt = time.Now()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Info("Run finished",
		zap.String("run", snap.RunID),
		zap.String("state", string(state)),
		zap.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	o.hub.emit(Event{Type: EventRunFinished, Snapshot: snap})
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	results := make([]model.ExecutionResult, len(o.results))
	for i, r := range o.results {
		results[i] = r.Clone()
	}
	return Snapshot{
		RunID:        o.runID,
		Mode:         o.mode,
		Name:         o.name,
		State:        o.state,
		Results:      results,
		CurrentIndex: o.cursor,
		CurrentID:    o.currentID,
		Skipped:      append([]string(nil), o.skipped...),
		StartedAt:    o.startedAt,
		FinishedAt:   o.finishedAt,
	}
}
