package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/format"
	"github.com/pyhu26/post-woman/internal/model"
)

func init() {
	workflowCmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage and run request workflows",
		Long: `A workflow is a graph of requests. An edge from one request to another
makes the target wait for the source, and the edge's mappings copy values
out of the source's JSON response into the target before it is sent.

Nodes are referenced by id or request name, edges by id or "source->target".`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		Args:  cobra.NoArgs,
		Run:   runWorkflowList,
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new workflow",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowCreate,
	}

	showCmd := &cobra.Command{
		Use:   "show <workflow>",
		Short: "Show nodes, edges and mappings of a workflow",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowShow,
	}

	renameCmd := &cobra.Command{
		Use:   "rename <workflow> <new-name>",
		Short: "Rename a workflow",
		Args:  cobra.ExactArgs(2),
		Run:   runWorkflowRename,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <workflow>",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowDelete,
	}

	addNodeCmd := &cobra.Command{
		Use:   "add-node <workflow> <method> <url>",
		Short: "Add a request node",
		Long: `Add a request node to a workflow. Give the node a --name so edges can
refer to it.

Example:
  postwoman workflow add-node login-flow POST api/login -d '{"user":"demo"}' --name login
  postwoman workflow add-node login-flow GET 'api/users/{{userId}}' --name profile`,
		Args: cobra.ExactArgs(3),
		Run:  runWorkflowAddNode,
	}
	addRequestFlags(addNodeCmd)
	addNodeCmd.Flags().Float64("x", 0, "Canvas x position")
	addNodeCmd.Flags().Float64("y", 0, "Canvas y position")

	removeNodeCmd := &cobra.Command{
		Use:   "remove-node <workflow> <node>",
		Short: "Remove a node and every edge touching it",
		Args:  cobra.ExactArgs(2),
		Run:   runWorkflowRemoveNode,
	}

	moveNodeCmd := &cobra.Command{
		Use:   "move-node <workflow> <node> <x> <y>",
		Short: "Set a node's canvas position",
		Args:  cobra.ExactArgs(4),
		Run:   runWorkflowMoveNode,
	}

	connectCmd := &cobra.Command{
		Use:   "connect <workflow> <source> <target>",
		Short: "Add an edge so target runs after source",
		Args:  cobra.ExactArgs(3),
		Run:   runWorkflowConnect,
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect <workflow> <edge>",
		Short: "Remove an edge",
		Args:  cobra.ExactArgs(2),
		Run:   runWorkflowDisconnect,
	}

	mapCmd := &cobra.Command{
		Use:   "map <workflow> <edge> [<jsonpath> <header|param|url|body> <field>]",
		Short: "Add a parameter mapping to an edge",
		Long: `Add a parameter mapping to an edge. The value found at jsonpath in the
source response is written into the target request:

  header  set header <field>, added if missing
  param   set query parameter <field>, added if missing
  url     replace {{field}} in the URL
  body    replace {{field}} in the body

Example:
  postwoman workflow map login-flow "login->profile" '$.data.token' header Authorization
  postwoman workflow map login-flow "login->profile" '$.data.user.id' url userId
  postwoman workflow map login-flow "login->profile" --clear`,
		Args: func(cmd *cobra.Command, args []string) error {
			if clearAll, _ := cmd.Flags().GetBool("clear"); clearAll {
				return cobra.ExactArgs(2)(cmd, args)
			}
			return cobra.ExactArgs(5)(cmd, args)
		},
		Run: runWorkflowMap,
	}
	mapCmd.Flags().Bool("clear", false, "Remove every mapping from the edge")

	orderCmd := &cobra.Command{
		Use:   "order <workflow>",
		Short: "Show the order nodes will run in",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowOrder,
	}

	runCmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow in dependency order",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowRun,
	}
	addRunFlags(runCmd)

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a workflow from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowImport,
	}

	exportCmd := &cobra.Command{
		Use:   "export <workflow>",
		Short: "Export a workflow as YAML",
		Args:  cobra.ExactArgs(1),
		Run:   runWorkflowExport,
	}
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	workflowCmd.AddCommand(listCmd, createCmd, showCmd, renameCmd, deleteCmd,
		addNodeCmd, removeNodeCmd, moveNodeCmd, connectCmd, disconnectCmd, mapCmd,
		orderCmd, runCmd, importCmd, exportCmd)
	rootCmd.AddCommand(workflowCmd)
}

func runWorkflowList(cmd *cobra.Command, args []string) {
	list, err := workflows().List()
	if err != nil {
		fatal("Failed to load workflows", err)
	}
	format.PrintWorkflowList(list)
}

func runWorkflowCreate(cmd *cobra.Command, args []string) {
	w, err := workflows().Create(args[0])
	if err != nil {
		fatal("Failed to create workflow", err)
	}
	format.PrintSuccess(fmt.Sprintf("Workflow '%s' created (%s)", w.Name, w.ID))
}

func runWorkflowShow(cmd *cobra.Command, args []string) {
	w, err := workflows().Get(args[0])
	if err != nil {
		fatal("Failed to load workflow", err)
	}
	format.PrintWorkflow(w)
}

func runWorkflowRename(cmd *cobra.Command, args []string) {
	w, err := workflows().Rename(args[0], args[1])
	if err != nil {
		fatal("Failed to rename workflow", err)
	}
	format.PrintSuccess(fmt.Sprintf("Workflow renamed to '%s'", w.Name))
}

func runWorkflowDelete(cmd *cobra.Command, args []string) {
	w, err := workflows().Delete(args[0])
	if err != nil {
		fatal("Failed to delete workflow", err)
	}
	format.PrintSuccess(fmt.Sprintf("Workflow '%s' deleted", w.Name))
}

func runWorkflowAddNode(cmd *cobra.Command, args []string) {
	method, err := model.ParseMethod(args[1])
	if err != nil {
		fatal("Invalid request", err)
	}
	req, err := buildRequest(requestName, method, args[2])
	if err != nil {
		fatal("Invalid request", err)
	}
	x, _ := cmd.Flags().GetFloat64("x")
	y, _ := cmd.Flags().GetFloat64("y")

	node, err := workflows().AddNode(args[0], req, model.Position{X: x, Y: y})
	if err != nil {
		fatal("Failed to add node", err)
	}
	format.PrintSuccess(fmt.Sprintf("Node added: %s (%s)", node.Request.Label(), node.ID))
}

func runWorkflowRemoveNode(cmd *cobra.Command, args []string) {
	if err := workflows().RemoveNode(args[0], args[1]); err != nil {
		fatal("Failed to remove node", err)
	}
	format.PrintSuccess("Node removed")
}

func runWorkflowMoveNode(cmd *cobra.Command, args []string) {
	x, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		fatal(fmt.Sprintf("Invalid position: %s", args[2]), nil)
	}
	y, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		fatal(fmt.Sprintf("Invalid position: %s", args[3]), nil)
	}
	pos := model.Position{X: x, Y: y}
	if err := workflows().MoveNode(args[0], args[1], pos); err != nil {
		fatal("Failed to move node", err)
	}
	format.PrintSuccess(fmt.Sprintf("Node moved to (%g, %g)", pos.X, pos.Y))
}

func runWorkflowConnect(cmd *cobra.Command, args []string) {
	edge, err := workflows().AddEdge(args[0], args[1], args[2])
	switch {
	case errors.Is(err, model.ErrDuplicateEdge):
		format.PrintSuccess(fmt.Sprintf("Edge already exists (%s)", edge.ID))
	case err != nil:
		fatal("Failed to connect nodes", err)
	default:
		format.PrintSuccess(fmt.Sprintf("Edge added (%s)", edge.ID))
	}
}

func runWorkflowDisconnect(cmd *cobra.Command, args []string) {
	if err := workflows().RemoveEdge(args[0], args[1]); err != nil {
		fatal("Failed to remove edge", err)
	}
	format.PrintSuccess("Edge removed")
}

func runWorkflowMap(cmd *cobra.Command, args []string) {
	wfs := workflows()

	if clearAll, _ := cmd.Flags().GetBool("clear"); clearAll {
		if err := wfs.SetEdgeMappings(args[0], args[1], nil); err != nil {
			fatal("Failed to clear mappings", err)
		}
		format.PrintSuccess("Mappings cleared")
		return
	}

	targetType, err := model.ParseTargetType(args[3])
	if err != nil {
		fatal("Invalid mapping", err)
	}
	m, err := model.NewParameterMapping(args[2], args[4], targetType)
	if err != nil {
		fatal("Invalid mapping", err)
	}
	if err := wfs.AddMapping(args[0], args[1], m); err != nil {
		fatal("Failed to add mapping", err)
	}
	format.PrintSuccess(fmt.Sprintf("Mapping added: %s ⇒ %s %s", m.SourceJSONPath, m.TargetType, m.TargetField))
}

func runWorkflowOrder(cmd *cobra.Command, args []string) {
	w, err := workflows().Get(args[0])
	if err != nil {
		fatal("Failed to load workflow", err)
	}
	format.PrintOrder(w, engine.ResolveOrder(w.Nodes, w.Edges))
}

func runWorkflowRun(cmd *cobra.Command, args []string) {
	w, err := workflows().Get(args[0])
	if err != nil {
		fatal("Failed to load workflow", err)
	}

	executeRun(cmd, func(ctx context.Context, o *engine.Orchestrator) (engine.Snapshot, error) {
		return o.RunWorkflow(ctx, w)
	})
}

func runWorkflowImport(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		fatal("Failed to open file", err)
	}
	defer f.Close()

	w, err := workflows().Import(f)
	if err != nil {
		fatal("Failed to import workflow", err)
	}
	format.PrintSuccess(fmt.Sprintf("Workflow '%s' imported with %d nodes and %d edges", w.Name, len(w.Nodes), len(w.Edges)))
}

func runWorkflowExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")
	exportTo(output, func(w io.Writer) error {
		return workflows().Export(args[0], w)
	})
}
