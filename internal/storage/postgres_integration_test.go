package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Dropicx/docworker/internal/config"
	"github.com/Dropicx/docworker/internal/domain"
)

// startPostgres runs a throwaway PostgreSQL container and returns
// repositories backed by a migrated, seeded database.
func startPostgres(t *testing.T) *Repositories {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("docworker_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := Open(ctx, config.DatabaseConfig{
		Driver: "postgres",
		Postgres: config.PostgresConfig{
			DSN: fmt.Sprintf("postgres://test:test@%s:%s/docworker_test?sslmode=disable",
				host, port.Port()),
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db))
	repos := NewRepositories(db)
	require.NoError(t, Seed(ctx, repos))
	return repos
}

// isDockerAvailable checks if Docker is available for testing.
func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}

func TestPostgresDocumentLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if !isDockerAvailable() {
		t.Skip("Docker not available")
	}

	ctx := context.Background()
	repos := startPostgres(t)

	doc := &Document{Filename: "entlassungsbrief.pdf"}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	require.NoError(t, repos.Documents.SetQuality(ctx, doc.ID, 0.81))
	require.NoError(t, repos.Documents.Transition(ctx, doc.ID, domain.StatusPending, domain.StatusInProgress))

	// The conditional update rejects a stale transition.
	err := repos.Documents.Transition(ctx, doc.ID, domain.StatusPending, domain.StatusInProgress)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, repos.Documents.SetType(ctx, doc.ID, domain.DocTypeDischargeSummary))
	require.NoError(t, repos.Documents.Transition(ctx, doc.ID, domain.StatusInProgress, domain.StatusCompleted))

	got, err := repos.Documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.DocumentType)
	assert.Equal(t, domain.DocTypeDischargeSummary, *got.DocumentType)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.81, *got.QualityScore, 1e-9)
}

func TestPostgresSeedAndPromptVersioning(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if !isDockerAvailable() {
		t.Skip("Docker not available")
	}

	ctx := context.Background()
	repos := startPostgres(t)

	steps, err := repos.StepConfigs.ListByScope(ctx, "")
	require.NoError(t, err)
	assert.Len(t, steps, len(defaultSteps))

	seeded, err := repos.Prompts.Active(ctx, domain.StepTranslation, "")
	require.NoError(t, err)
	assert.Equal(t, 1, seeded.Version)

	published, err := repos.Prompts.Publish(ctx, domain.StepTranslation, "", "updated instructions", "ops")
	require.NoError(t, err)
	assert.Equal(t, 2, published.Version)

	active, err := repos.Prompts.Active(ctx, domain.StepTranslation, "")
	require.NoError(t, err)
	assert.Equal(t, "updated instructions", active.Body)

	// The scoped step upsert replaces in place on conflict.
	require.NoError(t, repos.StepConfigs.Upsert(ctx, &StepConfig{
		Name:         domain.StepFactCheck,
		DisplayName:  "Fact Check",
		DocumentType: domain.DocTypeLabReport,
		Enabled:      true,
		ExecOrder:    60,
	}))
	require.NoError(t, repos.StepConfigs.Upsert(ctx, &StepConfig{
		Name:         domain.StepFactCheck,
		DisplayName:  "Fact Check",
		DocumentType: domain.DocTypeLabReport,
		Enabled:      false,
		ExecOrder:    60,
	}))

	scoped, err := repos.StepConfigs.ListByScope(ctx, domain.DocTypeLabReport)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.False(t, scoped[0].Enabled)
}
