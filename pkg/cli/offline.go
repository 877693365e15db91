package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/harrisonrobin/taskflow/pkg/offline"
	"github.com/spf13/cobra"
)

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Inspect and replay changes made while the database was unreachable",
}

var offlineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued changes, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runOfflineList,
}

var offlineReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Send queued changes to the database",
	Long: `Send queued changes to the database, oldest first.

Replay stops at the first change the database rejects; that change and the
ones after it stay queued. Changes are sent as recorded, so a change made
by someone else in the meantime is overwritten.`,
	Args: cobra.NoArgs,
	RunE: runOfflineReplay,
}

var offlineClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every queued change",
	Args:  cobra.NoArgs,
	RunE:  runOfflineClear,
}

func init() {
	offlineCmd.AddCommand(offlineListCmd)
	offlineCmd.AddCommand(offlineReplayCmd)
	offlineCmd.AddCommand(offlineClearCmd)
}

func withCache(fn func(c *offline.Cache) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := offline.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func runOfflineList(cmd *cobra.Command, args []string) error {
	return withCache(func(c *offline.Cache) error {
		actions, err := c.Actions()
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No queued changes")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "QUEUED\tACTION\tTASK")
		for _, a := range actions {
			target := a.TaskID
			if a.Insert != nil {
				target = a.Insert.Title
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Timestamp.Local().Format("2006-01-02 15:04:05"), a.Kind, target)
		}
		return tw.Flush()
	})
}

func runOfflineReplay(cmd *cobra.Command, args []string) error {
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		if a.stale {
			return fmt.Errorf("database is unreachable; nothing replayed")
		}
		n, err := a.syncer.ReplayOffline(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d queued changes\n", n)
		return err
	})
}

func runOfflineClear(cmd *cobra.Command, args []string) error {
	return withCache(func(c *offline.Cache) error {
		if err := c.ClearActions(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Offline queue cleared")
		return nil
	})
}
