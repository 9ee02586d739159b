package format

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/model"
)

var (
	pendingColor = color.New(color.Faint)
	runningColor = color.New(color.FgYellow)
)

func statusColor(s model.ResultStatus) *color.Color {
	switch s {
	case model.StatusSuccess:
		return successColor
	case model.StatusError:
		return clientErrColor
	case model.StatusRunning:
		return runningColor
	default:
		return pendingColor
	}
}

func statusSymbol(s model.ResultStatus) string {
	switch s {
	case model.StatusSuccess:
		return "✓"
	case model.StatusError:
		return "✗"
	case model.StatusRunning:
		return "…"
	default:
		return "·"
	}
}

// PrintChainList prints saved chains
func PrintChainList(chains []model.Chain) {
	if len(chains) == 0 {
		dimColor.Fprintln(out, "No chains found")
		return
	}
	writeln("Chains:")
	for _, c := range chains {
		headerKeyColor.Fprintf(out, "  %s ", sanitizeOutput(c.Name))
		dimColor.Fprintf(out, "(%d steps) %s\n", len(c.Steps), c.ID)
	}
}

// PrintChain prints a chain's steps in execution order
func PrintChain(c *model.Chain) {
	headerKeyColor.Fprintf(out, "Chain: %s\n", sanitizeOutput(c.Name))
	dimColor.Fprintf(out, "ID: %s\n", c.ID)
	writeln(strings.Repeat("-", 40))
	if len(c.Steps) == 0 {
		dimColor.Fprintln(out, "(no steps)")
		return
	}
	for i, s := range c.Steps {
		dimColor.Fprintf(out, "[%d] ", i+1)
		if s.Request.Name != "" {
			writef("%s: ", sanitizeOutput(s.Request.Name))
		}
		methodColor.Fprintf(out, "%s ", s.Request.Method)
		urlColor.Fprint(out, sanitizeOutput(s.Request.URL))
		dimColor.Fprintf(out, "  %s\n", s.ID)
	}
}

// PrintWorkflowList prints saved workflows
func PrintWorkflowList(workflows []model.Workflow) {
	if len(workflows) == 0 {
		dimColor.Fprintln(out, "No workflows found")
		return
	}
	writeln("Workflows:")
	for _, w := range workflows {
		headerKeyColor.Fprintf(out, "  %s ", sanitizeOutput(w.Name))
		dimColor.Fprintf(out, "(%d nodes, %d edges) %s\n", len(w.Nodes), len(w.Edges), w.ID)
	}
}

func nodeLabel(w *model.Workflow, id string) string {
	if n, ok := w.Node(id); ok {
		return sanitizeOutput(n.Request.Label())
	}
	return id
}

// PrintWorkflow prints nodes, then edges with their mappings
func PrintWorkflow(w *model.Workflow) {
	headerKeyColor.Fprintf(out, "Workflow: %s\n", sanitizeOutput(w.Name))
	dimColor.Fprintf(out, "ID: %s\n", w.ID)
	writeln(strings.Repeat("-", 40))

	writeln("Nodes:")
	if len(w.Nodes) == 0 {
		dimColor.Fprintln(out, "  (none)")
	}
	for _, n := range w.Nodes {
		writef("  ")
		if n.Request.Name != "" {
			writef("%s: ", sanitizeOutput(n.Request.Name))
		}
		methodColor.Fprintf(out, "%s ", n.Request.Method)
		urlColor.Fprint(out, sanitizeOutput(n.Request.URL))
		dimColor.Fprintf(out, "  %s @(%g,%g)\n", n.ID, n.Position.X, n.Position.Y)
	}

	writeln("Edges:")
	if len(w.Edges) == 0 {
		dimColor.Fprintln(out, "  (none)")
	}
	for _, e := range w.Edges {
		writef("  %s → %s", nodeLabel(w, e.Source), nodeLabel(w, e.Target))
		dimColor.Fprintf(out, "  %s\n", e.ID)
		for _, m := range e.Mappings {
			dimColor.Fprintf(out, "      %s ⇒ %s %s\n",
				sanitizeOutput(m.SourceJSONPath), m.TargetType, sanitizeOutput(m.TargetField))
		}
	}
}

// PrintOrder prints the resolved execution order of a workflow
func PrintOrder(w *model.Workflow, order engine.Order) {
	writeln("Execution order:")
	for i, id := range order.IDs {
		dimColor.Fprintf(out, "  %d. ", i+1)
		writeln(nodeLabel(w, id))
	}
	if order.Cyclic() {
		clientErrColor.Fprintf(out, "Not runnable (cycle): ")
		labels := make([]string, len(order.Skipped))
		for i, id := range order.Skipped {
			labels[i] = nodeLabel(w, id)
		}
		writeln(strings.Join(labels, ", "))
	}
}

// PrintProgress prints one line per node lifecycle event
func PrintProgress(ev engine.Event) {
	switch ev.Type {
	case engine.EventRunStarted:
		writef("Running %s '%s' (%d requests)\n\n", ev.Snapshot.Mode, sanitizeOutput(ev.Snapshot.Name), len(ev.Snapshot.Results))
	case engine.EventNodeStarted:
		r, ok := ev.Snapshot.Result(ev.NodeID)
		if !ok {
			return
		}
		runningColor.Fprintf(out, "[%d/%d] ", ev.Snapshot.CurrentIndex+1, len(ev.Snapshot.Results))
		methodColor.Fprintf(out, "%s ", r.Request.Method)
		urlColor.Fprintln(out, sanitizeOutput(r.Request.URL))
	case engine.EventNodeFinished:
		r, ok := ev.Snapshot.Result(ev.NodeID)
		if !ok {
			return
		}
		writef("       ")
		statusColor(r.Status).Fprintf(out, "%s ", statusSymbol(r.Status))
		if r.Response != nil && !r.Response.TransportFailure() {
			getStatusColor(r.Response.Status).Fprintf(out, "%s ", sanitizeOutput(statusLine(r.Response)))
			dimColor.Fprintf(out, "(%dms)", r.Response.Time)
		}
		if r.Error != "" {
			clientErrColor.Fprintf(out, " %s", sanitizeOutput(r.Error))
		}
		writeln()
	}
}

// PrintRunResults prints the final table of a run. With verbose set every
// response body is printed too.
func PrintRunResults(snap engine.Snapshot, verbose bool) {
	writeln()
	writeln(strings.Repeat("-", 60))
	for i, r := range snap.Results {
		statusColor(r.Status).Fprintf(out, "%s %-8s ", statusSymbol(r.Status), r.Status)
		dimColor.Fprintf(out, "%2d. ", i+1)
		writef("%s", sanitizeOutput(truncate(r.Request.Label(), 50)))
		if r.Response != nil && !r.Response.TransportFailure() {
			dimColor.Fprintf(out, "  %d (%dms)", r.Response.Status, r.Response.Time)
		}
		if r.Error != "" {
			clientErrColor.Fprintf(out, "  %s", sanitizeOutput(r.Error))
		}
		writeln()
		if verbose && r.Response != nil {
			writeln()
			PrintResponse(r.Response, true)
			writeln()
		}
	}
	writeln(strings.Repeat("-", 60))

	counts := snap.Counts()
	summary := fmt.Sprintf("%d succeeded, %d failed, %d not run",
		counts[model.StatusSuccess], counts[model.StatusError], counts[model.StatusPending])

	switch {
	case snap.State == engine.StateCompleted && len(snap.Skipped) == 0:
		PrintSuccess(fmt.Sprintf("Run completed: %s", summary))
	case snap.State == engine.StateCompleted:
		redirectColor.Fprintf(out, "! Run completed with %d node(s) left out by a cycle: %s\n", len(snap.Skipped), summary)
	case snap.Failed():
		PrintError(fmt.Sprintf("Run stopped after a failure: %s", summary))
	default:
		redirectColor.Fprintf(out, "! Run stopped: %s\n", summary)
	}
}
