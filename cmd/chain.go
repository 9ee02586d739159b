package cmd

import (
	"context"
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
	chainCmd := &cobra.Command{
		Use:     "chain",
		Aliases: []string{"ch"},
		Short:   "Manage and run request chains",
		Long: `A chain is an ordered list of requests run one after another.

The run stops at the first request that fails: a transport error or any
status outside 200-399. Chains and their steps can be referenced by id or
by name.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all chains",
		Args:  cobra.NoArgs,
		Run:   runChainList,
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new chain",
		Args:  cobra.ExactArgs(1),
		Run:   runChainCreate,
	}

	showCmd := &cobra.Command{
		Use:   "show <chain>",
		Short: "Show the steps of a chain",
		Args:  cobra.ExactArgs(1),
		Run:   runChainShow,
	}

	renameCmd := &cobra.Command{
		Use:   "rename <chain> <new-name>",
		Short: "Rename a chain",
		Args:  cobra.ExactArgs(2),
		Run:   runChainRename,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <chain>",
		Short: "Delete a chain",
		Args:  cobra.ExactArgs(1),
		Run:   runChainDelete,
	}

	addStepCmd := &cobra.Command{
		Use:   "add-step <chain> <method> <url>",
		Short: "Append a request to a chain",
		Long: `Append a request to the end of a chain.

Example:
  postwoman chain add-step smoke POST api/login -d '{"user":"demo"}' --name login
  postwoman chain add-step smoke GET api/me -H "Accept: application/json"`,
		Args: cobra.ExactArgs(3),
		Run:  runChainAddStep,
	}
	addRequestFlags(addStepCmd)

	removeStepCmd := &cobra.Command{
		Use:   "remove-step <chain> <step>",
		Short: "Remove a step (by id, 1-based position or request name)",
		Args:  cobra.ExactArgs(2),
		Run:   runChainRemoveStep,
	}

	moveStepCmd := &cobra.Command{
		Use:   "move-step <chain> <from> <to>",
		Short: "Move a step to another 1-based position",
		Args:  cobra.ExactArgs(3),
		Run:   runChainMoveStep,
	}

	runCmd := &cobra.Command{
		Use:   "run <chain>",
		Short: "Run a chain's steps in order",
		Args:  cobra.ExactArgs(1),
		Run:   runChainRun,
	}
	addRunFlags(runCmd)

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a chain from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run:   runChainImport,
	}

	exportCmd := &cobra.Command{
		Use:   "export <chain>",
		Short: "Export a chain as YAML",
		Args:  cobra.ExactArgs(1),
		Run:   runChainExport,
	}
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	chainCmd.AddCommand(listCmd, createCmd, showCmd, renameCmd, deleteCmd,
		addStepCmd, removeStepCmd, moveStepCmd, runCmd, importCmd, exportCmd)
	rootCmd.AddCommand(chainCmd)
}

func runChainList(cmd *cobra.Command, args []string) {
	list, err := chains().List()
	if err != nil {
		fatal("Failed to load chains", err)
	}
	format.PrintChainList(list)
}

func runChainCreate(cmd *cobra.Command, args []string) {
	c, err := chains().Create(args[0])
	if err != nil {
		fatal("Failed to create chain", err)
	}
	format.PrintSuccess(fmt.Sprintf("Chain '%s' created (%s)", c.Name, c.ID))
}

func runChainShow(cmd *cobra.Command, args []string) {
	c, err := chains().Get(args[0])
	if err != nil {
		fatal("Failed to load chain", err)
	}
	format.PrintChain(c)
}

func runChainRename(cmd *cobra.Command, args []string) {
	c, err := chains().Rename(args[0], args[1])
	if err != nil {
		fatal("Failed to rename chain", err)
	}
	format.PrintSuccess(fmt.Sprintf("Chain renamed to '%s'", c.Name))
}

func runChainDelete(cmd *cobra.Command, args []string) {
	c, err := chains().Delete(args[0])
	if err != nil {
		fatal("Failed to delete chain", err)
	}
	format.PrintSuccess(fmt.Sprintf("Chain '%s' deleted", c.Name))
}

func runChainAddStep(cmd *cobra.Command, args []string) {
	method, err := model.ParseMethod(args[1])
	if err != nil {
		fatal("Invalid request", err)
	}
	req, err := buildRequest(requestName, method, args[2])
	if err != nil {
		fatal("Invalid request", err)
	}

	step, err := chains().AddStep(args[0], req)
	if err != nil {
		fatal("Failed to add step", err)
	}
	format.PrintSuccess(fmt.Sprintf("Step %d added: %s", step.Order+1, step.Request.Label()))
}

func runChainRemoveStep(cmd *cobra.Command, args []string) {
	if err := chains().RemoveStep(args[0], args[1]); err != nil {
		fatal("Failed to remove step", err)
	}
	format.PrintSuccess("Step removed")
}

func runChainMoveStep(cmd *cobra.Command, args []string) {
	from, err := strconv.Atoi(args[1])
	if err != nil {
		fatal(fmt.Sprintf("Invalid position: %s", args[1]), nil)
	}
	to, err := strconv.Atoi(args[2])
	if err != nil {
		fatal(fmt.Sprintf("Invalid position: %s", args[2]), nil)
	}

	c, err := chains().ReorderSteps(args[0], from-1, to-1)
	if err != nil {
		fatal("Failed to move step", err)
	}
	format.PrintChain(c)
}

func runChainRun(cmd *cobra.Command, args []string) {
	c, err := chains().Get(args[0])
	if err != nil {
		fatal("Failed to load chain", err)
	}

	executeRun(cmd, func(ctx context.Context, o *engine.Orchestrator) (engine.Snapshot, error) {
		return o.RunChain(ctx, c)
	})
}

func runChainImport(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		fatal("Failed to open file", err)
	}
	defer f.Close()

	c, err := chains().Import(f)
	if err != nil {
		fatal("Failed to import chain", err)
	}
	format.PrintSuccess(fmt.Sprintf("Chain '%s' imported with %d steps", c.Name, len(c.Steps)))
}

func runChainExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")
	exportTo(output, func(w io.Writer) error {
		return chains().Export(args[0], w)
	})
}

// exportTo writes to stdout, or to path with owner-only permissions
func exportTo(path string, write func(io.Writer) error) {
	if path == "" {
		if err := write(os.Stdout); err != nil {
			fatal("Failed to export", err)
		}
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		fatal("Failed to create file", err)
	}
	if err := write(f); err != nil {
		f.Close()
		fatal("Failed to export", err)
	}
	if err := f.Close(); err != nil {
		fatal("Failed to write file", err)
	}
	format.PrintSuccess(fmt.Sprintf("Exported to %s", path))
}
