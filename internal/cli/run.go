package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maccam912/smart-todo-sub000/internal/config"
	"github.com/maccam912/smart-todo-sub000/internal/orchestrator"
	"github.com/maccam912/smart-todo-sub000/internal/provider"
)

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Let the model edit the task list from a natural-language request",
	Long: `Run starts a command session, hands your request to the configured model,
and lets it stage task changes one command at a time. The staged changes
are committed in one transaction when the model completes the session; a
run that dies from a budget or protocol violation writes nothing.

Examples:
  smart-todo run "add a dentist appointment for next friday"
  smart-todo run --scope work "mark the quarterly report urgent"
  smart-todo run --provider openai-compatible --base-url http://localhost:8080/v1 --model qwen3-32b "clear my watering tasks"`,
	RunE: runRun,
}

func init() {
	registerRunFlags(runCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("scope", "s", "", "Task owner to operate on (default: scope from config)")
	cmd.Flags().String("db", "", "Path to the task database (default: path from config)")
	cmd.Flags().String("provider", "", "Model provider: anthropic, openai, google, or openai-compatible")
	cmd.Flags().StringP("model", "m", "", "Model name to use")
	cmd.Flags().String("base-url", "", "Base URL for openai-compatible endpoints")
	cmd.Flags().Int("max-rounds", 0, "Maximum model rounds before the run is aborted")
	cmd.Flags().Int("max-errors", 0, "Maximum consecutive command failures before the run is aborted")
	cmd.Flags().Int("timeout-ms", 0, "Per-call receive timeout in milliseconds")
}

func runRun(cmd *cobra.Command, args []string) error {
	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return errors.New(`a request is required, e.g.: smart-todo run "add a task to water the plants"`)
	}

	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	applyStoreFlags(cmd, cfg)
	applyModelFlags(cmd, cfg)

	st, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	client, err := provider.NewClientFromConfig(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "asking %s to work on scope %q...\n", client.GetModelName(), cfg.Scope)

	res, err := orchestrator.Run(cmd.Context(), st, cfg.Scope, request, orchestrator.Options{
		MaxRounds:      cfg.Agent.MaxRounds,
		MaxErrors:      cfg.Agent.MaxErrors,
		ReceiveTimeout: time.Duration(cfg.Agent.ReceiveTimeoutMs) * time.Millisecond,
		MaxTokens:      cfg.Agent.MaxTokens,
		Temperature:    cfg.Agent.Temperature,
		Client:         client,
	})
	if err != nil {
		var runErr *orchestrator.RunError
		if errors.As(err, &runErr) {
			printRunFailure(cmd.ErrOrStderr(), runErr)
		}
		return err
	}

	printRunResult(out, res)
	return nil
}

func applyModelFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("provider"); v != "" {
		cfg.Model.Provider = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model.Name = v
	}
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v, _ := cmd.Flags().GetInt("max-rounds"); v > 0 {
		cfg.Agent.MaxRounds = v
	}
	if v, _ := cmd.Flags().GetInt("max-errors"); v > 0 {
		cfg.Agent.MaxErrors = v
	}
	if v, _ := cmd.Flags().GetInt("timeout-ms"); v > 0 {
		cfg.Agent.ReceiveTimeoutMs = v
	}
}

func printRunResult(w io.Writer, res *orchestrator.Result) {
	for _, ec := range res.Executed {
		if ec.Err != "" {
			fmt.Fprintf(w, "round %d: %s %s: %s\n", ec.Round, ec.Name, color.RedString("failed"), ec.Err)
		} else {
			fmt.Fprintf(w, "round %d: %s %s\n", ec.Round, ec.Name, color.GreenString("ok"))
		}
	}
	fmt.Fprintln(w, color.GreenString(res.Final.Message))
}

func printRunFailure(w io.Writer, runErr *orchestrator.RunError) {
	if runErr.Response != nil && runErr.Response.Error != "" {
		fmt.Fprintf(w, "%s %s\n", color.RedString("session error:"), runErr.Response.Error)
	}
	fmt.Fprintln(w, "no changes were written")
}
