package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/ingest"
	"github.com/Dropicx/docworker/internal/pipeline"
	"github.com/Dropicx/docworker/internal/storage"
)

var processOutput string

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run one document through the full pipeline",
	Long: `Assesses the scan quality of the given PDF or image, and when it
passes the gate, runs every configured pipeline step. The final
patient-readable text is printed to stdout or written to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOutput, "output", "o", "", "write the result to a file instead of stdout")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	adm, err := ingest.Prepare(ctx, data, a.assessor)
	if err != nil {
		return err
	}

	fmt.Printf("Quality: %s\n", qualityVerdict(adm.Assessment))

	doc := &storage.Document{Filename: filepath.Base(path), Status: domain.StatusPending}
	if err := a.repos.Documents.Create(ctx, doc); err != nil {
		return err
	}
	if err := a.repos.Documents.SetQuality(ctx, doc.ID, adm.Assessment.QualityScore); err != nil {
		return err
	}

	if !adm.Assessment.Admitted {
		if err := a.repos.Documents.Transition(ctx, doc.ID, domain.StatusPending, domain.StatusQualityRejected); err != nil {
			return err
		}
		for _, issue := range adm.Assessment.Issues {
			fmt.Printf("  %s %s\n", color.RedString("issue:"), issue)
		}
		for _, suggestion := range adm.Assessment.Suggestions {
			fmt.Printf("  %s %s\n", color.YellowString("hint:"), suggestion)
		}
		return fmt.Errorf("document rejected by quality gate (score %.2f, threshold %.2f)",
			adm.Assessment.QualityScore, adm.Assessment.MinThreshold)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " running pipeline..."
	s.Writer = os.Stderr
	s.Start()

	result, runErr := a.orch.Run(ctx, pipeline.RunRequest{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Pages:      adm.Pages,
	})
	s.Stop()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%s step %s: %s\n",
			color.RedString("FAILED"), result.FailedStep, result.FailureReason)
		return runErr
	}

	fmt.Printf("%s document type %s, %d steps, session %s\n",
		color.GreenString("COMPLETED"), result.DocumentType, len(result.ExecutedSteps), result.SessionID)

	if processOutput != "" {
		if err := os.WriteFile(processOutput, []byte(result.Output), 0o644); err != nil {
			return err
		}
		fmt.Printf("Result written to %s\n", processOutput)
		return nil
	}

	fmt.Println()
	fmt.Println(result.Output)
	return nil
}
