package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harrisonrobin/taskflow/pkg/importer"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/tasks"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tasks from another tool",
}

var importTaskwarriorCmd = &cobra.Command{
	Use:   "taskwarrior <file>",
	Short: "Import the output of 'task export' ('-' reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportTaskwarrior,
}

var importOrgCmd = &cobra.Command{
	Use:   "org <file>",
	Short: "Import TODO headings from an Org-mode file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportOrg,
}

func init() {
	importCmd.AddCommand(importTaskwarriorCmd)
	importCmd.AddCommand(importOrgCmd)
}

func openInput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

func runImportTaskwarrior(cmd *cobra.Command, args []string) error {
	f, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	exported, err := importer.ParseTaskwarrior(f)
	if err != nil {
		return fmt.Errorf("error parsing tasks: %w", err)
	}
	return createAll(cmd, importer.FromTaskwarrior(exported))
}

func runImportOrg(cmd *cobra.Command, args []string) error {
	f, err := openInput(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	inserts, err := importer.ParseOrg(f, time.Local)
	if err != nil {
		return fmt.Errorf("error parsing org file: %w", err)
	}
	return createAll(cmd, inserts)
}

// createAll creates the tasks one by one and stops at the first failure
// that was not queued offline.
func createAll(cmd *cobra.Command, inserts []model.TaskInsert) error {
	if len(inserts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to import")
		return nil
	}
	return withTasks(cmd, func(ctx context.Context, a *app) error {
		created, queued := 0, 0
		for _, in := range inserts {
			_, err := a.syncer.Create(ctx, in)
			switch {
			case err == nil:
				created++
			case errors.Is(err, tasks.ErrQueuedOffline):
				queued++
			default:
				return fmt.Errorf("imported %d of %d tasks: %w", created, len(inserts), err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks", created)
		if queued > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d queued offline", queued)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}
