package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/tasks"
	"github.com/harrisonrobin/taskflow/pkg/view"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List your tasks.

Filters: all, today, overdue, completed, todo, in-progress.
Sort orders: created_at (newest first), due_date, priority, title.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show the number of tasks per filter",
	Args:  cobra.NoArgs,
	RunE:  runCounts,
}

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runDone,
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var shareCmd = &cobra.Command{
	Use:   "share <id> <email>",
	Short: "Share a task and assign it to email",
	Args:  cobra.ExactArgs(2),
	RunE:  runShare,
}

func init() {
	listCmd.Flags().String("filter", "all", "Which tasks to show")
	listCmd.Flags().String("sort", "created_at", "Sort order")
	listCmd.Flags().String("search", "", "Only tasks whose title or description contains this text")

	addCmd.Flags().String("desc", "", "Description")
	addCmd.Flags().String("priority", "medium", "low, medium, high or urgent")
	addCmd.Flags().String("status", "todo", "todo, in-progress or completed")
	addCmd.Flags().String("due", "", "Due date (YYYY-MM-DD, 'YYYY-MM-DD HH:MM' or RFC 3339)")
	addCmd.Flags().String("assign", "", "Email of the assignee")
	addCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")

	addUpdateFlags(updateCmd)

	shareCmd.Flags().Bool("write", false, "Grant write permission instead of read")
}

func addUpdateFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("desc", "", "New description")
	cmd.Flags().Bool("clear-desc", false, "Remove the description")
	cmd.Flags().String("priority", "", "low, medium, high or urgent")
	cmd.Flags().String("status", "", "todo, in-progress or completed")
	cmd.Flags().String("due", "", "New due date")
	cmd.Flags().Bool("clear-due", false, "Remove the due date")
	cmd.Flags().String("assign", "", "Email of the assignee")
	cmd.Flags().Bool("unassign", false, "Remove the assignee")
	cmd.Flags().StringSlice("tag", nil, "Replace the tags (repeatable)")
}

// withTasks opens the app, waits for the collection to load and runs fn.
func withTasks(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.ready(ctx); err != nil {
		if errors.Is(err, errNotSignedIn) || a.cache == nil || ctx.Err() != nil {
			return err
		}
		log.Printf("Warning: working from the offline cache: %v", err)
		a.stale = true
	}
	return fn(ctx, a)
}

// collection is the loaded task list, or the cached snapshot when the store
// could not be reached.
func (a *app) collection(ctx context.Context) ([]model.Task, error) {
	if a.stale {
		return a.cache.Tasks()
	}
	return a.syncer.Snapshot(ctx)
}

// quiet hides ErrQueuedOffline: the notifier already said what happened.
func quiet(err error) error {
	if errors.Is(err, tasks.ErrQueuedOffline) {
		return nil
	}
	return err
}

var dueLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// parseDue reads a due date in the local time zone. A bare date means local
// midnight.
func parseDue(s string) (*time.Time, error) {
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("could not parse due date %q", s)
}

func printTasks(w io.Writer, list []model.Task, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE\tTAGS")
	for _, t := range list {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.In(now.Location()).Format("2006-01-02 15:04")
			if view.Overdue(t, now) {
				due += " !"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Status, t.Priority, due, t.Title, strings.Join(t.Tags, ","))
	}
	tw.Flush()
}

func runList(cmd *cobra.Command, args []string) error {
	filterName, _ := cmd.Flags().GetString("filter")
	sortName, _ := cmd.Flags().GetString("sort")
	search, _ := cmd.Flags().GetString("search")
	filter, err := view.ParseFilter(filterName)
	if err != nil {
		return err
	}
	by, err := view.ParseSort(sortName)
	if err != nil {
		return err
	}

	return withTasks(cmd, func(ctx context.Context, a *app) error {
		all, err := a.collection(ctx)
		if err != nil {
			return err
		}
		now := time.Now()
		visible := view.Derive(all, view.Options{Filter: filter, Sort: by, Search: search, Now: now, Locale: a.locale})
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%d)\n\n", filter.Title(), view.Count(all, now).For(filter))
		if len(visible) == 0 {
			fmt.Fprintln(out, "No tasks found")
			return nil
		}
		printTasks(out, visible, now)
		return nil
	})
}

func runCounts(cmd *cobra.Command, args []string) error {
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		all, err := a.collection(ctx)
		if err != nil {
			return err
		}
		counts := view.Count(all, time.Now())
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, f := range view.Filters {
			fmt.Fprintf(tw, "%s\t%d\n", f.Title(), counts.For(f))
		}
		return tw.Flush()
	})
}

func runAdd(cmd *cobra.Command, args []string) error {
	in := model.TaskInsert{Title: strings.Join(args, " ")}
	if desc, _ := cmd.Flags().GetString("desc"); desc != "" {
		in.Description = model.String(desc)
	}
	p, _ := cmd.Flags().GetString("priority")
	priority, err := model.ParsePriority(p)
	if err != nil {
		return err
	}
	in.Priority = priority
	st, _ := cmd.Flags().GetString("status")
	status, err := model.ParseStatus(st)
	if err != nil {
		return err
	}
	in.Status = status
	if due, _ := cmd.Flags().GetString("due"); due != "" {
		if in.DueDate, err = parseDue(due); err != nil {
			return err
		}
	}
	if assignee, _ := cmd.Flags().GetString("assign"); assignee != "" {
		in.AssignedTo = model.String(assignee)
	}
	in.Tags, _ = cmd.Flags().GetStringSlice("tag")

	return withTasks(cmd, func(ctx context.Context, a *app) error {
		t, err := a.syncer.Create(ctx, in)
		if err != nil {
			return quiet(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.ID)
		return nil
	})
}

// updateFromFlags builds the partial update for the flags that were set.
func updateFromFlags(cmd *cobra.Command) (model.TaskUpdate, error) {
	var u model.TaskUpdate
	flags := cmd.Flags()
	if flags.Changed("title") {
		title, _ := flags.GetString("title")
		u.Title = &title
	}
	if flags.Changed("desc") {
		desc, _ := flags.GetString("desc")
		u.Description = &desc
	}
	u.ClearDescription, _ = flags.GetBool("clear-desc")
	if flags.Changed("priority") {
		s, _ := flags.GetString("priority")
		p, err := model.ParsePriority(s)
		if err != nil {
			return u, err
		}
		u.Priority = &p
	}
	if flags.Changed("status") {
		s, _ := flags.GetString("status")
		st, err := model.ParseStatus(s)
		if err != nil {
			return u, err
		}
		u.Status = &st
	}
	if flags.Changed("due") {
		s, _ := flags.GetString("due")
		due, err := parseDue(s)
		if err != nil {
			return u, err
		}
		u.DueDate = due
	}
	u.ClearDueDate, _ = flags.GetBool("clear-due")
	if flags.Changed("assign") {
		s, _ := flags.GetString("assign")
		u.AssignedTo = &s
	}
	u.ClearAssignee, _ = flags.GetBool("unassign")
	if flags.Changed("tag") {
		u.Tags, _ = flags.GetStringSlice("tag")
		if u.Tags == nil {
			u.Tags = []string{}
		}
	}
	if u.Empty() {
		return u, errors.New("nothing to update; pass at least one field flag")
	}
	return u, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	u, err := updateFromFlags(cmd)
	if err != nil {
		return err
	}
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		_, err := a.syncer.Update(ctx, args[0], u)
		return quiet(err)
	})
}

func runDone(cmd *cobra.Command, args []string) error {
	completed := model.StatusCompleted
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		_, err := a.syncer.Update(ctx, args[0], model.TaskUpdate{Status: &completed})
		return quiet(err)
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		return quiet(a.syncer.Delete(ctx, args[0]))
	})
}

func runShare(cmd *cobra.Command, args []string) error {
	perm := model.PermissionRead
	if write, _ := cmd.Flags().GetBool("write"); write {
		perm = model.PermissionWrite
	}
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		_, err := a.syncer.Share(ctx, args[0], args[1], perm)
		return err
	})
}
