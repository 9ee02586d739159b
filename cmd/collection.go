package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/format"
	"github.com/pyhu26/post-woman/internal/history"
	"github.com/pyhu26/post-woman/internal/model"
)

func init() {
	collectionCmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"col"},
		Short:   "Manage request collections",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all collections",
		Run:   runCollectionList,
	}

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(1),
		Run:   runCollectionCreate,
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show requests in a collection",
		Args:  cobra.ExactArgs(1),
		Run:   runCollectionShow,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a collection",
		Args:  cobra.ExactArgs(1),
		Run:   runCollectionDelete,
	}

	addCmd := &cobra.Command{
		Use:   "add <collection> <name> <method> <url>",
		Short: "Add a request to a collection",
		Long: `Add a request to a collection.

Example:
  postwoman collection add my-api "Get Users" GET https://api.example.com/users
  postwoman collection add my-api "Create User" POST api/users -d @user.json --folder users`,
		Args: cobra.ExactArgs(4),
		Run:  runCollectionAdd,
	}
	addRequestFlags(addCmd)
	addCmd.Flags().String("folder", "", "Folder id or name to add the request to")

	removeCmd := &cobra.Command{
		Use:   "remove <collection> <request>",
		Short: "Remove a request (by id or name) from a collection",
		Args:  cobra.ExactArgs(2),
		Run:   runCollectionRemove,
	}

	folderCmd := &cobra.Command{
		Use:   "folder <collection> <name>",
		Short: "Create a folder in a collection",
		Args:  cobra.ExactArgs(2),
		Run:   runCollectionFolder,
	}
	folderCmd.Flags().String("parent", "", "Parent folder id or name")
	folderCmd.Flags().Bool("delete", false, "Delete the folder and everything in it instead")

	runCmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run all requests in a collection as a chain",
		Long: `Run every request in a collection in order, top-level requests first and
then each folder depth-first. The run stops at the first failure.`,
		Args: cobra.ExactArgs(1),
		Run:  runCollectionRun,
	}
	addRunFlags(runCmd)

	exportCmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export a collection as YAML",
		Args:  cobra.ExactArgs(1),
		Run:   runCollectionExport,
	}
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")

	collectionCmd.AddCommand(listCmd, createCmd, showCmd, deleteCmd, addCmd, removeCmd,
		folderCmd, runCmd, exportCmd)
	rootCmd.AddCommand(collectionCmd)
}

func runCollectionList(cmd *cobra.Command, args []string) {
	list, err := collections().List()
	if err != nil {
		fatal("Failed to load collections", err)
	}

	format.PrintCollectionList(list)
}

func runCollectionCreate(cmd *cobra.Command, args []string) {
	col, err := collections().Create(args[0])
	if err != nil {
		fatal("Failed to create collection", err)
	}

	format.PrintSuccess(fmt.Sprintf("Collection '%s' created", col.Name))
}

func runCollectionShow(cmd *cobra.Command, args []string) {
	col, err := collections().Get(args[0])
	if err != nil {
		fatal("Failed to load collection", err)
	}

	format.PrintCollection(col)
}

func runCollectionDelete(cmd *cobra.Command, args []string) {
	col, err := collections().Delete(args[0])
	if err != nil {
		fatal("Failed to delete collection", err)
	}

	format.PrintSuccess(fmt.Sprintf("Collection '%s' deleted", col.Name))
}

func runCollectionAdd(cmd *cobra.Command, args []string) {
	collectionName, name, url := args[0], args[1], args[3]
	folder, _ := cmd.Flags().GetString("folder")

	method, err := model.ParseMethod(args[2])
	if err != nil {
		fatal("Invalid request", err)
	}
	req, err := buildRequest(name, method, url)
	if err != nil {
		fatal("Invalid request", err)
	}

	// Filter sensitive headers before storing in collection
	if _, err := collections().AddRequest(collectionName, folder, history.RedactRequest(req)); err != nil {
		fatal("Failed to add request", err)
	}

	format.PrintSuccess(fmt.Sprintf("Request '%s' added to collection '%s'", name, collectionName))
}

func runCollectionRemove(cmd *cobra.Command, args []string) {
	if err := collections().DeleteRequest(args[0], args[1]); err != nil {
		fatal("Failed to remove request", err)
	}

	format.PrintSuccess(fmt.Sprintf("Request '%s' removed", args[1]))
}

func runCollectionFolder(cmd *cobra.Command, args []string) {
	collectionName, name := args[0], args[1]
	cols := collections()

	if del, _ := cmd.Flags().GetBool("delete"); del {
		if err := cols.DeleteFolder(collectionName, name); err != nil {
			fatal("Failed to delete folder", err)
		}
		format.PrintSuccess(fmt.Sprintf("Folder '%s' deleted", name))
		return
	}

	parent, _ := cmd.Flags().GetString("parent")
	folder, err := cols.AddFolder(collectionName, parent, name)
	if err != nil {
		fatal("Failed to create folder", err)
	}

	format.PrintSuccess(fmt.Sprintf("Folder '%s' created (%s)", folder.Name, folder.ID))
}

func runCollectionRun(cmd *cobra.Command, args []string) {
	col, err := collections().Get(args[0])
	if err != nil {
		fatal("Failed to load collection", err)
	}

	requests := col.AllRequests()
	if len(requests) == 0 {
		fatal(fmt.Sprintf("Collection '%s' is empty", col.Name), nil)
	}

	chain := model.NewChain(col.Name)
	for _, req := range requests {
		chain.AddStep(req)
	}

	executeRun(cmd, func(ctx context.Context, o *engine.Orchestrator) (engine.Snapshot, error) {
		return o.RunChain(ctx, chain)
	})
}

func runCollectionExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")
	exportTo(output, func(w io.Writer) error {
		return collections().Export(args[0], w)
	})
}
