// Package cli wires the smart-todo commands: the model-driven run command
// and the direct task commands that skip the model entirely.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smart-todo",
	Short: "LLM-driven task list",
	Long: `smart-todo keeps a task list in a local sqlite database and lets an LLM
edit it through a guarded command session: the model stages changes one
command at a time and nothing is written until it commits the session
in a single transaction.

Running 'smart-todo' without a subcommand is equivalent to 'smart-todo run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: treat the arguments as a run request.
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(doneCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default: the user config dir)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug detail to the configured log file")

	// The root command doubles as 'run', so it carries the run flags too.
	registerRunFlags(rootCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
