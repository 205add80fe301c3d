package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Dropicx/docworker/internal/ingest"
)

var assessCmd = &cobra.Command{
	Use:   "assess <file>...",
	Short: "Run the quality gate without processing",
	Long: `Scores each file against the blur and contrast heuristics and prints
the admission verdict per page. Nothing is stored and no model is
called.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("assessing"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)

	var rows [][]string
	failures := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		adm, err := ingest.Prepare(ctx, data, a.assessor)
		if err != nil {
			rows = append(rows, []string{path, "-", "-", "-", "unreadable: " + err.Error()})
			failures++
			_ = bar.Add(1)
			continue
		}

		for i, page := range adm.PageAssessments {
			rows = append(rows, []string{
				fmt.Sprintf("%s (page %d)", path, i+1),
				fmt.Sprintf("%.2f", page.BlurScore),
				fmt.Sprintf("%.2f", page.ContrastScore),
				fmt.Sprintf("%.2f", page.QualityScore),
				qualityVerdict(page),
			})
		}
		if !adm.Assessment.Admitted {
			failures++
		}
		_ = bar.Add(1)
	}

	printTable([]string{"FILE", "BLUR", "CONTRAST", "QUALITY", "VERDICT"}, rows)

	if failures > 0 {
		return fmt.Errorf("%d of %d file(s) would be rejected", failures, len(args))
	}
	return nil
}
