package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/llm"
	"github.com/Dropicx/docworker/internal/monitoring"
	"github.com/Dropicx/docworker/internal/observability"
	"github.com/Dropicx/docworker/internal/ocr"
	"github.com/Dropicx/docworker/internal/pipeline"
	"github.com/Dropicx/docworker/internal/prompt"
	"github.com/Dropicx/docworker/internal/quality"
	"github.com/Dropicx/docworker/internal/steps"
	"github.com/Dropicx/docworker/internal/storage"
)

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	db       *sql.DB
	repos    *storage.Repositories
	assessor *quality.Assessor
	orch     *pipeline.Orchestrator
}

// bootstrap loads configuration, opens storage, and wires the pipeline.
// Callers must Close the returned app.
func bootstrap(ctx context.Context) (*app, error) {
	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Observability.LogLevel
	if !verbose {
		level = "warn"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "docworker-cli",
	})

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repos := storage.NewRepositories(db)
	if err := storage.Seed(ctx, repos); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	assessor := quality.NewAssessor(quality.StaticThreshold(cfg.Quality.MinThreshold))
	invoker := llm.NewClient(cfg.Model, logger)
	recorder := monitoring.NewInteractionLogger(repos.Logs, nil, cfg.Pipeline.LogTruncateRunes, logger)

	orch := pipeline.NewOrchestrator(
		repos.Documents, repos.Artifacts,
		steps.NewRegistry(repos.StepConfigs),
		prompt.NewResolver(repos.Prompts),
		recorder,
		pipeline.DefaultHandlers(invoker, ocr.NewHTTPEngine(cfg.OCR)),
		invoker.ModelName(), logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		repos:    repos,
		assessor: assessor,
		orch:     orch,
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
}

// printTable renders rows with aligned columns.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = strings.Repeat("-", len(headers[i]))
	}
	fmt.Fprintln(w, strings.Join(separator, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

// qualityVerdict renders an assessment as a one-line colored verdict.
func qualityVerdict(a quality.Assessment) string {
	score := fmt.Sprintf("%.2f (%s)", a.QualityScore, a.Band)
	if a.Admitted {
		return color.GreenString("ADMITTED ") + score
	}
	return color.RedString("REJECTED ") + score
}
