package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyhu26/post-woman/internal/model"
)

// scripted answers by request URL and records what was sent
type scripted struct {
	mu        sync.Mutex
	responses map[string]*model.Response
	errs      map[string]error
	sent      []model.Request
}

func newScripted() *scripted {
	return &scripted{
		responses: map[string]*model.Response{},
		errs:      map[string]error{},
	}
}

func (s *scripted) on(url string, status int, body string) *scripted {
	s.responses[url] = &model.Response{Status: status, StatusText: "", Headers: map[string]string{}, Body: body}
	return s
}

func (s *scripted) fail(url string, err error) *scripted {
	s.errs[url] = err
	return s
}

func (s *scripted) Send(_ context.Context, req model.Request) (*model.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	if err, ok := s.errs[req.URL]; ok {
		return nil, err
	}
	if resp, ok := s.responses[req.URL]; ok {
		return resp, nil
	}
	return &model.Response{Status: 200, Headers: map[string]string{}, Body: "{}"}, nil
}

func (s *scripted) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, r := range s.sent {
		out[i] = r.URL
	}
	return out
}

func testChain(urls ...string) *model.Chain {
	c := model.NewChain("chain")
	for _, u := range urls {
		c.AddStep(model.NewRequest(u, model.MethodGet, u))
	}
	return c
}

func statuses(s Snapshot) []model.ResultStatus {
	out := make([]model.ResultStatus, len(s.Results))
	for i, r := range s.Results {
		out[i] = r.Status
	}
	return out
}

func TestRunChain_AllSucceed(t *testing.T) {
	d := newScripted()
	o := New(d)

	snap, err := o.RunChain(context.Background(), testChain("https://a", "https://b", "https://c"))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, -1, snap.CurrentIndex)
	assert.Empty(t, snap.CurrentID)
	assert.Equal(t, []model.ResultStatus{model.StatusSuccess, model.StatusSuccess, model.StatusSuccess}, statuses(snap))
	assert.Equal(t, []string{"https://a", "https://b", "https://c"}, d.urls())
	assert.False(t, snap.Failed())
}

func TestRunChain_IgnoresOrderField(t *testing.T) {
	tests := []struct {
		name   string
		orders []int
	}{
		{"reversed", []int{2, 1, 0}},
		{"duplicated", []int{0, 0, 0}},
		{"sparse", []int{9, 3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testChain("https://a", "https://b", "https://c")
			for i, order := range tt.orders {
				c.Steps[i].Order = order
			}
			d := newScripted()

			snap, err := New(d).RunChain(context.Background(), c)
			require.NoError(t, err)

			assert.Equal(t, []string{"https://a", "https://b", "https://c"}, d.urls())
			require.Len(t, snap.Results, 3)
			for i, r := range snap.Results {
				assert.Equal(t, c.Steps[i].ID, r.ID)
			}
		})
	}
}

func TestRunChain_EmptyIsRejected(t *testing.T) {
	o := New(newScripted())

	snap, err := o.RunChain(context.Background(), model.NewChain("empty"))

	assert.ErrorIs(t, err, ErrNoSteps)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Results)
}

func TestRunChain_FailFastOnHTTPError(t *testing.T) {
	d := newScripted().on("https://b", 500, "boom")
	o := New(d)

	snap, err := o.RunChain(context.Background(), testChain("https://a", "https://b", "https://c"))
	require.NoError(t, err)

	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, []model.ResultStatus{model.StatusSuccess, model.StatusError, model.StatusPending}, statuses(snap))
	assert.Equal(t, "HTTP 500", snap.Results[1].Error)
	assert.Equal(t, []string{"https://a", "https://b"}, d.urls())
	assert.True(t, snap.Failed())
}

func TestRunChain_RedirectStatusIsSuccess(t *testing.T) {
	d := newScripted().on("https://a", 304, "")
	snap, err := New(d).RunChain(context.Background(), testChain("https://a", "https://b"))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, model.StatusSuccess, snap.Results[0].Status)
}

func TestRunChain_TransportErrorHalts(t *testing.T) {
	d := newScripted().fail("https://a", errors.New("dial tcp: connection refused"))
	snap, err := New(d).RunChain(context.Background(), testChain("https://a", "https://b"))
	require.NoError(t, err)

	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, model.StatusError, snap.Results[0].Status)
	assert.Equal(t, "dial tcp: connection refused", snap.Results[0].Error)
	assert.Nil(t, snap.Results[0].Response)
	assert.Equal(t, model.StatusPending, snap.Results[1].Status)
}

func TestRunChain_StatusZeroResponseHalts(t *testing.T) {
	d := newScripted()
	d.responses["https://a"] = model.NewTransportErrorResponse(errors.New("no such host"), 0)

	snap, err := New(d).RunChain(context.Background(), testChain("https://a", "https://b"))
	require.NoError(t, err)

	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, "transport error: no such host", snap.Results[0].Error)
	assert.Equal(t, model.StatusPending, snap.Results[1].Status)
}

// blocking holds every dispatch until released
type blocking struct {
	started chan string
	release chan struct{}
}

func (b *blocking) Send(ctx context.Context, req model.Request) (*model.Response, error) {
	b.started <- req.URL
	<-b.release
	return &model.Response{Status: 200, Body: "{}"}, nil
}

func TestRunChain_StopDoesNotInterruptInFlight(t *testing.T) {
	d := &blocking{started: make(chan string, 3), release: make(chan struct{})}
	o := New(d)

	var mu sync.Mutex
	var runningSeen []string
	unsubscribe := o.Subscribe(func(ev Event) {
		if ev.Type == EventNodeStarted {
			mu.Lock()
			runningSeen = append(runningSeen, ev.NodeID)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	chain := testChain("https://a", "https://b", "https://c")
	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := o.RunChain(context.Background(), chain)
		done <- snap
	}()

	select {
	case <-d.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first dispatch never started")
	}
	assert.True(t, o.Running())
	o.Stop()
	// the in-flight request is still running after Stop
	assert.Equal(t, model.StatusRunning, o.Snapshot().Results[0].Status)
	close(d.release)

	var snap Snapshot
	select {
	case snap = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, []model.ResultStatus{model.StatusSuccess, model.StatusPending, model.StatusPending}, statuses(snap))
	mu.Lock()
	assert.Equal(t, []string{chain.Steps[0].ID}, runningSeen)
	mu.Unlock()
}

func TestRunChain_ContextCancelStopsBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	d := DispatcherFunc(func(sendCtx context.Context, req model.Request) (*model.Response, error) {
		calls++
		cancel()
		// the dispatch context is detached from run cancellation
		assert.NoError(t, sendCtx.Err())
		return &model.Response{Status: 200}, nil
	})

	snap, err := New(d).RunChain(ctx, testChain("https://a", "https://b"))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, model.StatusPending, snap.Results[1].Status)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	d := &blocking{started: make(chan string, 1), release: make(chan struct{})}
	o := New(d)

	done := make(chan struct{})
	go func() {
		_, _ = o.RunChain(context.Background(), testChain("https://a"))
		close(done)
	}()
	<-d.started

	_, err := o.RunChain(context.Background(), testChain("https://b"))
	assert.ErrorIs(t, err, ErrRunning)
	assert.ErrorIs(t, o.ClearResults(), ErrRunning)

	close(d.release)
	<-done
}

func TestClearResults_AlwaysEmpties(t *testing.T) {
	for _, status := range []int{200, 500} {
		d := newScripted().on("https://a", status, "")
		o := New(d)
		_, err := o.RunChain(context.Background(), testChain("https://a"))
		require.NoError(t, err)

		require.NoError(t, o.ClearResults())
		snap := o.Snapshot()
		assert.Empty(t, snap.Results)
		assert.Equal(t, StateIdle, snap.State)

		require.NoError(t, o.ClearResults())
		assert.Empty(t, o.Snapshot().Results)
	}
}

func TestRunChain_EventsInOrder(t *testing.T) {
	o := New(newScripted())
	var types []EventType
	o.Subscribe(func(ev Event) { types = append(types, ev.Type) })

	_, err := o.RunChain(context.Background(), testChain("https://a"))
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventRunStarted, EventNodeStarted, EventNodeFinished, EventRunFinished}, types)
}

func testWorkflow() (*model.Workflow, map[string]string) {
	wf := model.NewWorkflow("login flow")
	login := wf.AddNode(model.NewRequest("login", model.MethodPost, "https://api.test/login"), model.Position{})
	me := model.NewRequest("me", model.MethodGet, "https://api.test/users/{{userId}}")
	meNode := wf.AddNode(me, model.Position{X: 200})

	edge, _ := wf.AddEdge(login.ID, meNode.ID)
	_ = wf.UpdateEdgeMappings(edge.ID, []model.ParameterMapping{
		{ID: "m1", SourceJSONPath: "$.data.token", TargetField: "Authorization", TargetType: model.TargetHeader},
		{ID: "m2", SourceJSONPath: "$.data.user.id", TargetField: "userId", TargetType: model.TargetURL},
	})
	return wf, map[string]string{"login": login.ID, "me": meNode.ID}
}

func TestRunWorkflow_AppliesMappings(t *testing.T) {
	wf, ids := testWorkflow()
	d := newScripted().on("https://api.test/login", 200, `{"data":{"token":"abc123","user":{"id":42}}}`)

	snap, err := New(d).RunWorkflow(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, []string{"https://api.test/login", "https://api.test/users/42"}, d.urls())

	me, ok := snap.Result(ids["me"])
	require.True(t, ok)
	assert.Equal(t, "https://api.test/users/42", me.Request.URL)
	require.Len(t, me.Request.Headers, 1)
	assert.Equal(t, "Authorization", me.Request.Headers[0].Key)
	assert.Equal(t, "abc123", me.Request.Headers[0].Value)

	// the stored workflow is untouched
	node, _ := wf.Node(ids["me"])
	assert.Equal(t, "https://api.test/users/{{userId}}", node.Request.URL)
	assert.Empty(t, node.Request.Headers)
}

func TestRunWorkflow_EdgesApplyInListOrder(t *testing.T) {
	wf := model.NewWorkflow("fan-in")
	a := wf.AddNode(model.NewRequest("a", model.MethodGet, "https://a"), model.Position{})
	b := wf.AddNode(model.NewRequest("b", model.MethodGet, "https://b"), model.Position{})
	c := wf.AddNode(model.NewRequest("c", model.MethodGet, "https://c"), model.Position{})
	eb, _ := wf.AddEdge(b.ID, c.ID)
	ea, _ := wf.AddEdge(a.ID, c.ID)
	header := func(id string) []model.ParameterMapping {
		return []model.ParameterMapping{{ID: id, SourceJSONPath: "$.v", TargetField: "X-V", TargetType: model.TargetHeader}}
	}
	_ = wf.UpdateEdgeMappings(eb.ID, header("from-b"))
	_ = wf.UpdateEdgeMappings(ea.ID, header("from-a"))

	d := newScripted().on("https://a", 200, `{"v":"a"}`).on("https://b", 200, `{"v":"b"}`)
	snap, err := New(d).RunWorkflow(context.Background(), wf)
	require.NoError(t, err)

	res, _ := snap.Result(c.ID)
	require.Len(t, res.Request.Headers, 1)
	// b's edge comes first in the edge list, a's edge overwrites it
	assert.Equal(t, "a", res.Request.Headers[0].Value)
}

func TestRunWorkflow_FailureStopsDownstream(t *testing.T) {
	wf, ids := testWorkflow()
	d := newScripted().on("https://api.test/login", 401, `{"error":"nope"}`)

	snap, err := New(d).RunWorkflow(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, StateStopped, snap.State)
	login, _ := snap.Result(ids["login"])
	me, _ := snap.Result(ids["me"])
	assert.Equal(t, "HTTP 401", login.Error)
	assert.Equal(t, model.StatusPending, me.Status)
	assert.Len(t, d.urls(), 1)
}

func cyclicWorkflow() (*model.Workflow, map[string]string) {
	wf := model.NewWorkflow("cyclic")
	a := wf.AddNode(model.NewRequest("a", model.MethodGet, "https://a"), model.Position{})
	b := wf.AddNode(model.NewRequest("b", model.MethodGet, "https://b"), model.Position{})
	c := wf.AddNode(model.NewRequest("c", model.MethodGet, "https://c"), model.Position{})
	_, _ = wf.AddEdge(a.ID, b.ID)
	_, _ = wf.AddEdge(b.ID, a.ID)
	return wf, map[string]string{"a": a.ID, "b": b.ID, "c": c.ID}
}

func TestRunWorkflow_CycleNodesStayPending(t *testing.T) {
	wf, ids := cyclicWorkflow()
	d := newScripted()

	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := New(d).RunWorkflow(context.Background(), wf)
		done <- snap
	}()

	var snap Snapshot
	select {
	case snap = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cyclic workflow run hung")
	}

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, []string{"https://c"}, d.urls())
	assert.ElementsMatch(t, []string{ids["a"], ids["b"]}, snap.Skipped)
	a, _ := snap.Result(ids["a"])
	assert.Equal(t, model.StatusPending, a.Status)
}

func TestRunWorkflow_RejectCycles(t *testing.T) {
	wf, ids := cyclicWorkflow()
	d := newScripted()
	o := New(d, WithRejectCycles(true))

	snap, err := o.RunWorkflow(context.Background(), wf)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{ids["a"], ids["b"]}, cycleErr.NodeIDs)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, d.urls())
}

func TestRunWorkflow_EmptyIsRejected(t *testing.T) {
	_, err := New(newScripted()).RunWorkflow(context.Background(), model.NewWorkflow("empty"))
	assert.ErrorIs(t, err, ErrNoSteps)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		resp   *model.Response
		status model.ResultStatus
		msg    string
	}{
		{&model.Response{Status: 200}, model.StatusSuccess, ""},
		{&model.Response{Status: 399}, model.StatusSuccess, ""},
		{&model.Response{Status: 404}, model.StatusError, "HTTP 404"},
		{&model.Response{Status: 101}, model.StatusError, "HTTP 101"},
		{&model.Response{Status: 0, StatusText: "Error"}, model.StatusError, "transport error"},
		{nil, model.StatusError, "no response"},
	}
	for _, tt := range tests {
		status, msg := Classify(tt.resp)
		assert.Equal(t, tt.status, status)
		assert.Equal(t, tt.msg, msg)
	}
}
