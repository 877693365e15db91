package cli

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/harrisonrobin/taskflow/pkg/auth"
	"github.com/harrisonrobin/taskflow/pkg/calendar"
	"github.com/harrisonrobin/taskflow/pkg/model"
	"github.com/harrisonrobin/taskflow/pkg/tasks"
	"github.com/harrisonrobin/taskflow/pkg/web"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print task changes as they happen",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Keep a Google Calendar in step with tasks that have a due date",
	Long: `Mirror tasks with a due date into a Google Calendar.

Every task with a due date gets one event, colored by priority. Completed
tasks are marked with ✓, tasks in progress with ‣, and once a task is overdue
its event is marked with !. Requires a Google sign-in ('taskflow login --google').`,
	Args: cobra.NoArgs,
	RunE: runMirror,
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (overrides config)")
	mirrorCmd.Flags().String("calendar", "", "Google Calendar name to mirror into (overrides config)")
}

// printer writes collection changes to w.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) TaskChanged(t model.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "changed  %s  [%s/%s]  %s\n", t.ID, t.Status, t.Priority, t.Title)
}

func (p *printer) TaskRemoved(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "removed  %s\n", id)
}

func (p *printer) Reset(list []model.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "loaded   %d tasks\n", len(list))
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, true, tasks.WithObserver(&printer{w: cmd.OutOrStdout()}))
	if err != nil {
		return err
	}
	defer a.close()
	if a.sess.Current() == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in; waiting for a sign-in")
	}
	<-ctx.Done()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Listen
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		addr = listen
	}
	srv := web.NewServer(a.syncer, a.locale)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(addr) }()
	log.Printf("Serving tasks on %s", addr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	google, err := auth.NewGoogleProvider(dir)
	if err != nil {
		return err
	}
	httpClient, err := google.Client(ctx)
	if err != nil {
		return fmt.Errorf("not signed in with Google; run 'taskflow login --google': %w", err)
	}

	name := cfg.Calendar
	if flag, _ := cmd.Flags().GetString("calendar"); flag != "" {
		name = flag
	}
	idx, err := calendar.NewEventIndex(dir)
	if err != nil {
		log.Printf("Warning: failed to initialize event index: %v", err)
		idx = nil
	}
	overdue, err := calendar.NewOverdueTable(dir)
	if err != nil {
		log.Printf("Warning: failed to initialize overdue sweep table: %v", err)
		overdue = nil
	}
	client, err := calendar.NewClient(ctx, httpClient, name, idx)
	if err != nil {
		return fmt.Errorf("error creating Google Calendar client: %w", err)
	}
	mirror := calendar.NewMirror(client, idx, overdue)

	a, err := openApp(ctx, true, tasks.WithObserver(mirror))
	if err != nil {
		return err
	}
	defer a.close()

	log.Printf("Mirroring tasks into calendar %q", name)
	mirror.Run(ctx)
	return nil
}
