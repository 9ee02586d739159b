package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyhu26/post-woman/internal/format"
)

func init() {
	aliasCmd := &cobra.Command{
		Use:     "alias",
		Aliases: []string{"a"},
		Short:   "Manage URL aliases",
		Long: `Manage URL aliases for frequently used endpoints.

Aliases are shortcuts for base URLs. They resolve in single requests and in
every chain step and workflow node, so 'api/users/1' can stand in for
'https://api.example.com/v1/users/1'.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all aliases",
		Run:   runAliasList,
	}

	createCmd := &cobra.Command{
		Use:   "create <name> <url>",
		Short: "Create or replace an alias",
		Long: `Create an alias for a base URL. An existing alias with the same name is
replaced.

Example:
  postwoman alias create api https://api.example.com/v1
  postwoman get api/users/1`,
		Args: cobra.ExactArgs(2),
		Run:  runAliasCreate,
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show an alias",
		Args:  cobra.ExactArgs(1),
		Run:   runAliasShow,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an alias",
		Args:  cobra.ExactArgs(1),
		Run:   runAliasDelete,
	}

	aliasCmd.AddCommand(listCmd, createCmd, showCmd, deleteCmd)
	rootCmd.AddCommand(aliasCmd)
}

func runAliasList(cmd *cobra.Command, args []string) {
	aliases, err := openStore().LoadAliases()
	if err != nil {
		fatal("Failed to load aliases", err)
	}

	format.PrintAliasList(aliases)
}

func runAliasCreate(cmd *cobra.Command, args []string) {
	name, url := args[0], args[1]

	if err := openStore().CreateAlias(name, url); err != nil {
		fatal("Failed to create alias", err)
	}

	format.PrintSuccess(fmt.Sprintf("Alias '%s' created for %s", name, url))
}

func runAliasShow(cmd *cobra.Command, args []string) {
	name := args[0]

	url, exists, err := openStore().GetAlias(name)
	if err != nil {
		fatal("Failed to load alias", err)
	}
	if !exists {
		fatal(fmt.Sprintf("Alias '%s' not found", name), nil)
	}

	format.PrintAlias(name, url)
}

func runAliasDelete(cmd *cobra.Command, args []string) {
	name := args[0]

	if err := openStore().DeleteAlias(name); err != nil {
		fatal("Failed to delete alias", err)
	}

	format.PrintSuccess(fmt.Sprintf("Alias '%s' deleted", name))
}
