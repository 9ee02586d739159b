package workspace

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pyhu26/post-woman/internal/model"
	"github.com/pyhu26/post-woman/internal/storage"
)

func newStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.Open(storage.Options{Type: storage.TypeJSON, Dir: t.TempDir(), Log: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChains_CRUD(t *testing.T) {
	chains := NewChains(newStore(t), nil)

	c, err := chains.Create("login")
	require.NoError(t, err)

	_, err = chains.Create("login")
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = chains.Create("  ")
	assert.ErrorIs(t, err, ErrEmptyName)

	byName, err := chains.Get("login")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byName.ID)

	renamed, err := chains.Rename(c.ID, "sign-in")
	require.NoError(t, err)
	assert.Equal(t, "sign-in", renamed.Name)

	_, err = chains.Get("login")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = chains.Delete("sign-in")
	require.NoError(t, err)
	all, err := chains.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestChains_Steps(t *testing.T) {
	chains := NewChains(newStore(t), nil)
	_, err := chains.Create("flow")
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		_, err := chains.AddStep("flow", model.NewRequest(name, model.MethodGet, "https://api.test/"+name))
		require.NoError(t, err)
	}

	c, err := chains.ReorderSteps("flow", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "c", c.Steps[0].Request.Name)

	// persisted, with dense order
	c, err = chains.Get("flow")
	require.NoError(t, err)
	names := []string{}
	for i, s := range c.Steps {
		names = append(names, s.Request.Name)
		assert.Equal(t, i, s.Order)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)

	require.NoError(t, chains.RemoveStep("flow", "1"))
	require.NoError(t, chains.RemoveStep("flow", "b"))
	c, err = chains.Get("flow")
	require.NoError(t, err)
	require.Len(t, c.Steps, 1)
	assert.Equal(t, "a", c.Steps[0].Request.Name)

	upd := model.NewRequest("a2", model.MethodPost, "https://api.test/a2")
	require.NoError(t, chains.UpdateStep("flow", c.Steps[0].ID, upd))
	c, err = chains.Get("flow")
	require.NoError(t, err)
	assert.Equal(t, "https://api.test/a2", c.Steps[0].Request.URL)

	assert.ErrorIs(t, chains.RemoveStep("flow", "9"), model.ErrIndexOutOfRange)
	assert.ErrorIs(t, chains.RemoveStep("flow", "nope"), model.ErrStepNotFound)
	_, err = chains.ReorderSteps("flow", 0, 5)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}

func TestChains_ExportImport(t *testing.T) {
	chains := NewChains(newStore(t), nil)
	c, err := chains.Create("export-me")
	require.NoError(t, err)
	_, err = chains.AddStep(c.ID, model.NewRequest("ping", model.MethodGet, "https://api.test/ping"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, chains.Export(c.ID, &buf))
	assert.Contains(t, buf.String(), "name: export-me")

	// name clash
	_, err = chains.Import(bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrDuplicateName)

	doc := strings.Replace(buf.String(), "name: export-me", "name: imported", 1)
	imported, err := chains.Import(strings.NewReader(doc))
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, imported.ID)
	require.Len(t, imported.Steps, 1)
	assert.Equal(t, "https://api.test/ping", imported.Steps[0].Request.URL)

	_, err = chains.Import(strings.NewReader("name: x\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestWorkflows_Graph(t *testing.T) {
	wfs := NewWorkflows(newStore(t), nil)
	_, err := wfs.Create("flow")
	require.NoError(t, err)

	login, err := wfs.AddNode("flow", model.NewRequest("login", model.MethodPost, "https://api.test/login"), model.Position{})
	require.NoError(t, err)
	_, err = wfs.AddNode("flow", model.NewRequest("me", model.MethodGet, "https://api.test/me"), model.Position{X: 100})
	require.NoError(t, err)

	edge, err := wfs.AddEdge("flow", "login", "me")
	require.NoError(t, err)

	dup, err := wfs.AddEdge("flow", login.ID, "me")
	assert.ErrorIs(t, err, model.ErrDuplicateEdge)
	assert.Equal(t, edge.ID, dup.ID)

	_, err = wfs.AddEdge("flow", "login", "login")
	assert.ErrorIs(t, err, model.ErrSelfEdge)
	_, err = wfs.AddEdge("flow", "login", "ghost")
	assert.ErrorIs(t, err, model.ErrNodeNotFound)

	m, err := model.NewParameterMapping("$.token", "Authorization", model.TargetHeader)
	require.NoError(t, err)
	require.NoError(t, wfs.AddMapping("flow", "login->me", m))

	wf, err := wfs.Get("flow")
	require.NoError(t, err)
	require.Len(t, wf.Edges, 1)
	require.Len(t, wf.Edges[0].Mappings, 1)
	assert.Equal(t, "Authorization", wf.Edges[0].Mappings[0].TargetField)

	require.NoError(t, wfs.MoveNode("flow", "me", model.Position{X: 5, Y: 6}))
	require.NoError(t, wfs.RemoveNode("flow", "login"))
	wf, err = wfs.Get("flow")
	require.NoError(t, err)
	assert.Len(t, wf.Nodes, 1)
	assert.Empty(t, wf.Edges)
	assert.Equal(t, model.Position{X: 5, Y: 6}, wf.Nodes[0].Position)
}

func TestWorkflows_ImportRejectsDanglingEdges(t *testing.T) {
	wfs := NewWorkflows(newStore(t), nil)

	doc := `
name: broken
nodes:
  - id: a
    request: {name: a, method: GET, url: "https://a"}
edges:
  - id: e1
    source: a
    target: missing
`
	_, err := wfs.Import(strings.NewReader(doc))
	assert.ErrorIs(t, err, model.ErrNodeNotFound)
}

func TestWorkflows_ImportRejectsInvalidGraphs(t *testing.T) {
	node := func(id string) string {
		return "  - id: " + id + "\n    request: {name: " + id + ", method: GET, url: \"https://" + id + "\"}\n"
	}
	edge := func(id, source, target string) string {
		return "  - id: " + id + "\n    source: " + source + "\n    target: " + target + "\n"
	}

	tests := []struct {
		name  string
		nodes []string
		edges []string
		want  error
	}{
		{"duplicate node id", []string{node("a"), node("a"), node("b")}, nil, ErrDuplicateID},
		{"duplicate edge pair", []string{node("a"), node("b")}, []string{edge("e1", "a", "b"), edge("e2", "a", "b")}, model.ErrDuplicateEdge},
		{"self edge", []string{node("a")}, []string{edge("e1", "a", "a")}, model.ErrSelfEdge},
		{"duplicate edge id", []string{node("a"), node("b"), node("c")}, []string{edge("e1", "a", "b"), edge("e1", "b", "c")}, ErrDuplicateID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wfs := NewWorkflows(newStore(t), nil)
			doc := "name: bad\nnodes:\n" + strings.Join(tt.nodes, "")
			if len(tt.edges) > 0 {
				doc += "edges:\n" + strings.Join(tt.edges, "")
			}

			_, err := wfs.Import(strings.NewReader(doc))
			assert.ErrorIs(t, err, tt.want)

			list, err := wfs.List()
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestChains_OrderFollowsSlicePosition(t *testing.T) {
	chains := NewChains(newStore(t), nil)

	doc := `
name: drifted
steps:
  - order: 7
    request: {name: first, method: GET, url: "https://a"}
  - order: 7
    request: {name: second, method: GET, url: "https://b"}
  - order: 0
    request: {name: third, method: GET, url: "https://c"}
`
	c, err := chains.Import(strings.NewReader(doc))
	require.NoError(t, err)
	for i, s := range c.Steps {
		assert.Equal(t, i, s.Order)
	}
	assert.Equal(t, "first", c.Steps[0].Request.Name)

	c, err = chains.ReorderSteps(c.ID, 2, 0)
	require.NoError(t, err)
	names := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		names[i] = s.Request.Name
		assert.Equal(t, i, s.Order)
	}
	assert.Equal(t, []string{"third", "first", "second"}, names)
}

func TestResolveEdge(t *testing.T) {
	wf := model.NewWorkflow("x")
	a := wf.AddNode(model.NewRequest("a", model.MethodGet, "https://a"), model.Position{})
	b := wf.AddNode(model.NewRequest("b", model.MethodGet, "https://b"), model.Position{})
	e, err := wf.AddEdge(a.ID, b.ID)
	require.NoError(t, err)

	got, err := ResolveEdge(wf, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	got, err = ResolveEdge(wf, "a->b")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = ResolveEdge(wf, "b->a")
	assert.ErrorIs(t, err, model.ErrEdgeNotFound)
	_, err = ResolveEdge(wf, "->b")
	assert.ErrorIs(t, err, model.ErrEdgeNotFound)
}

func TestCollections(t *testing.T) {
	cols := NewCollections(newStore(t), nil)

	c, err := cols.GetOrCreate("api")
	require.NoError(t, err)
	again, err := cols.GetOrCreate("api")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	folder, err := cols.AddFolder("api", "", "users")
	require.NoError(t, err)
	_, err = cols.AddRequest("api", "", model.NewRequest("health", model.MethodGet, "https://api.test/health"))
	require.NoError(t, err)
	saved, err := cols.AddRequest("api", folder.ID, model.NewRequest("list users", model.MethodGet, "https://api.test/users"))
	require.NoError(t, err)

	found, err := cols.FindRequest("api", "list users")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, found.ID)

	_, err = cols.AddRequest("api", "nope", model.NewRequest("x", model.MethodGet, "https://x"))
	assert.ErrorIs(t, err, model.ErrFolderNotFound)

	got, err := cols.Get("api")
	require.NoError(t, err)
	assert.Len(t, got.AllRequests(), 2)

	require.NoError(t, cols.DeleteRequest("api", "health"))
	require.NoError(t, cols.DeleteFolder("api", folder.ID))
	got, err = cols.Get("api")
	require.NoError(t, err)
	assert.Empty(t, got.AllRequests())

	_, err = cols.Rename("api", "public-api")
	require.NoError(t, err)
	_, err = cols.Get("public-api")
	assert.NoError(t, err)
}
