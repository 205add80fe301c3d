package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/ingest"
	"github.com/Dropicx/docworker/internal/pipeline"
	"github.com/Dropicx/docworker/internal/storage"
	"github.com/Dropicx/docworker/internal/watch"
)

var watchInbox string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox directory and process documents as they arrive",
	Long: `Watches the inbox directory for new PDF or image files. Every file
that settles is assessed, and admitted documents run through the
pipeline concurrently. Existing files in the inbox are picked up on
start. Stop with Ctrl-C; in-flight runs finish before exit.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInbox, "inbox", "inbox", "directory to watch for incoming documents")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pool := pipeline.NewPool(ctx, a.orch, a.cfg.Pipeline.MaxConcurrentRuns, a.logger)

	inbox := watch.NewInbox(watchInbox, func(path string) {
		admitFile(ctx, a, pool, path)
	}, a.logger)

	if err := inbox.Start(ctx); err != nil {
		return err
	}
	if err := inbox.SubmitExisting(); err != nil {
		a.logger.Warn().Err(err).Str("inbox", watchInbox).Msg("failed to drain inbox backlog")
	}

	fmt.Fprintf(os.Stderr, "watching %s (press Ctrl-C to stop)\n", watchInbox)
	<-ctx.Done()

	inbox.Stop()
	fmt.Fprintln(os.Stderr, "waiting for in-flight runs...")
	return pool.Wait()
}

// admitFile runs the quality gate on a settled inbox file and submits
// admitted documents to the pool. Failures are reported per file and
// never stop the watcher.
func admitFile(ctx context.Context, a *app, pool *pipeline.Pool, path string) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("skipped"), name, err)
		return
	}

	adm, err := ingest.Prepare(ctx, data, a.assessor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("skipped"), name, err)
		return
	}

	doc := &storage.Document{Filename: name, Status: domain.StatusPending}
	if err := a.repos.Documents.Create(ctx, doc); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("skipped"), name, err)
		return
	}
	if err := a.repos.Documents.SetQuality(ctx, doc.ID, adm.Assessment.QualityScore); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("skipped"), name, err)
		return
	}

	if !adm.Assessment.Admitted {
		if err := a.repos.Documents.Transition(ctx, doc.ID, domain.StatusPending, domain.StatusQualityRejected); err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("skipped"), name, err)
			return
		}
		fmt.Fprintf(os.Stderr, "%s %s %s\n", color.RedString("rejected"), name, qualityVerdict(adm.Assessment))
		return
	}

	fmt.Fprintf(os.Stderr, "%s %s %s\n", color.GreenString("admitted"), name, qualityVerdict(adm.Assessment))
	pool.Submit(pipeline.RunRequest{
		DocumentID: doc.ID,
		Filename:   name,
		Pages:      adm.Pages,
	})
}
