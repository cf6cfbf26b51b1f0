package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/maccam912/smart-todo-sub000/internal/store"
	"github.com/maccam912/smart-todo-sub000/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the open tasks for a scope",
	RunE:  runTasks,
}

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task directly, without the model",
	RunE:  runAdd,
}

var doneCmd = &cobra.Command{
	Use:   "done [id]",
	Short: "Complete a task directly, without the model",
	RunE:  runDone,
}

func init() {
	for _, cmd := range []*cobra.Command{tasksCmd, addCmd, doneCmd} {
		cmd.Flags().StringP("scope", "s", "", "Task owner to operate on (default: scope from config)")
		cmd.Flags().String("db", "", "Path to the task database (default: path from config)")
	}

	addCmd.Flags().StringP("description", "d", "", "Free-form details")
	addCmd.Flags().StringP("urgency", "u", "", "Urgency: low, normal, high, or urgent")
	addCmd.Flags().String("due", "", "Due date (YYYY-MM-DD or RFC 3339)")
	addCmd.Flags().String("recurrence", "", "Recurrence: none, daily, weekly, or monthly")
	addCmd.Flags().String("assignee", "", "Assignee identifier")
	addCmd.Flags().Int64Slice("prereq", nil, "Id of a task that must be completed first (repeatable)")
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	applyStoreFlags(cmd, cfg)

	st, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	tasks, err := st.ListOpen(cmd.Context(), cfg.Scope)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintf(out, "no open tasks in scope %q\n", cfg.Scope)
		return nil
	}

	printTaskTable(out, tasks)
	return nil
}

func printTaskTable(out io.Writer, tasks []*task.Task) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tURGENCY\tDUE\tREQUIRES")
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.UTC().Format("2006-01-02")
		}
		requires := ""
		if len(t.PrerequisiteIDs) > 0 {
			ids := make([]string, 0, len(t.PrerequisiteIDs))
			for _, id := range t.PrerequisiteIDs {
				ids = append(ids, strconv.FormatInt(id, 10))
			}
			requires = strings.Join(ids, ",")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.Urgency, due, requires)
	}
	_ = w.Flush()
}

func runAdd(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		return errors.New(`a title is required, e.g.: smart-todo add "water the plants"`)
	}

	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	applyStoreFlags(cmd, cfg)

	attrs := map[string]any{task.FieldTitle: title}
	if v, _ := cmd.Flags().GetString("description"); v != "" {
		attrs[task.FieldDescription] = v
	}
	if v, _ := cmd.Flags().GetString("urgency"); v != "" {
		attrs[task.FieldUrgency] = v
	}
	if v, _ := cmd.Flags().GetString("due"); v != "" {
		attrs[task.FieldDueDate] = v
	}
	if v, _ := cmd.Flags().GetString("recurrence"); v != "" {
		attrs[task.FieldRecurrence] = v
	}
	if v, _ := cmd.Flags().GetString("assignee"); v != "" {
		attrs[task.FieldAssigneeID] = v
	}
	if ids, _ := cmd.Flags().GetInt64Slice("prereq"); len(ids) > 0 {
		attrs[task.FieldPrerequisiteIDs] = ids
	}

	st, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	created, err := st.Create(cmd.Context(), cfg.Scope, attrs)
	if err != nil {
		return describeStoreError(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created task %d %q\n", created.ID, created.Title)
	return nil
}

func runDone(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one task id is required, e.g.: smart-todo done 3")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id %q", args[0])
	}

	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	applyStoreFlags(cmd, cfg)

	st, err := openTaskStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	completed, err := st.Complete(cmd.Context(), cfg.Scope, id)
	if err != nil {
		return describeStoreError(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s task %d %q\n", color.GreenString("completed"), completed.ID, completed.Title)
	if completed.Recurrence != task.RecurrenceNone {
		next := completed.Recurrence.Next(nextBase(completed))
		fmt.Fprintf(out, "next %s occurrence scheduled for %s\n", completed.Recurrence, next.UTC().Format("2006-01-02"))
	}
	return nil
}

func nextBase(t *task.Task) time.Time {
	if t.DueDate != nil {
		return *t.DueDate
	}
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return time.Now()
}

// describeStoreError keeps validation failures readable on the terminal
// instead of surfacing them as a wrapped error chain.
func describeStoreError(err error) error {
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%s: %s", ve.Field, ve.Reason)
	}
	if store.IsNotFound(err) {
		return errors.New("no such task in this scope")
	}
	return err
}
