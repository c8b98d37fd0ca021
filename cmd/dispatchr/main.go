package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds the daemon connection flags for client commands
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// buildRoot creates the root command and wires all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	cli := command{api: apiFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createCreateCommand(cli),
		createGetCommand(cli),
		createSetStateCommand(cli),
		createListCommand(cli),
		createDeleteCommand(cli),
		createAssignCommand(cli),
	)
	addAPIFlags := func(c *cobra.Command) {
		c.PersistentFlags().StringVar(&apiFlags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8081/api)")
		c.PersistentFlags().DurationVar(&apiFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	}
	addAPIFlags(root)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatchr",
		Short: "Process registry and dispatcher service",
		Long: `Dispatchr keeps a registry of dispatched processes and hands pending
processes out to supervisors.

Examples:
  dispatchr serve --config=dispatchr.toml     # Start the service
  dispatchr create --source-id=42             # Register a process record
  dispatchr list --source-id=42               # List records for a source
  dispatchr assign                            # Claim the oldest pending process`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the dispatchr daemon",
		Long: `Start the dispatchr daemon: the HTTP registry API plus the schedule
loop that creates daily processes for active sources.

Examples:
  dispatchr serve                    # Defaults plus env overrides
  dispatchr serve dispatchr.toml     # Start with a specific config file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(cmd.Context(), configPath)
		},
	}
}

// createCreateCommand creates the create subcommand
func createCreateCommand(cli command) *cobra.Command {
	var sourceID uint32
	var kind uint8
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a process record",
		Long: `Create a pending process record for a source.

Examples:
  dispatchr create --source-id=42
  dispatchr create --source-id=42 --type=2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Create(sourceID, kind)
		},
	}
	cmd.Flags().Uint32Var(&sourceID, "source-id", 0, "source id (required)")
	cmd.Flags().Uint8Var(&kind, "type", 1, "process type (1=regular, 2=sandbox)")
	if err := cmd.MarkFlagRequired("source-id"); err != nil {
		panic(err)
	}
	return cmd
}

// createGetCommand creates the get subcommand
func createGetCommand(cli command) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a process record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Get(id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createSetStateCommand creates the set-state subcommand
func createSetStateCommand(cli command) *cobra.Command {
	var id, state string
	cmd := &cobra.Command{
		Use:   "set-state",
		Short: "Transition a process record",
		Long: `Apply a state transition to a process record. The daemon rejects
transitions the lifecycle does not allow.

Examples:
  dispatchr set-state --id=<uuid> --state=running
  dispatchr set-state --id=<uuid> --state=completed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.SetState(id, state)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id (required)")
	cmd.Flags().StringVar(&state, "state", "", "target state (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("state"); err != nil {
		panic(err)
	}
	return cmd
}

// createListCommand creates the list subcommand
func createListCommand(cli command) *cobra.Command {
	var sourceID uint32
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List process records for a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.List(sourceID)
		},
	}
	cmd.Flags().Uint32Var(&sourceID, "source-id", 0, "source id (required)")
	if err := cmd.MarkFlagRequired("source-id"); err != nil {
		panic(err)
	}
	return cmd
}

// createDeleteCommand creates the delete subcommand
func createDeleteCommand(cli command) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a process record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Delete(id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createAssignCommand creates the assign subcommand
func createAssignCommand(cli command) *cobra.Command {
	var supervisorID string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Claim the oldest pending process",
		Long: `Claim the oldest pending process for a supervisor. With no
--supervisor-id a fresh identifier is generated.

Examples:
  dispatchr assign
  dispatchr assign --supervisor-id=<uuid>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Assign(supervisorID)
		},
	}
	cmd.Flags().StringVar(&supervisorID, "supervisor-id", "", "supervisor id (optional)")
	return cmd
}
