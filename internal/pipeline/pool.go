package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Dropicx/docworker/internal/observability"
)

// Pool runs pipeline executions concurrently across documents with a
// bounded worker count. Steps inside a single run stay sequential.
type Pool struct {
	orch   *Orchestrator
	group  *errgroup.Group
	ctx    context.Context
	logger *observability.Logger
}

// NewPool creates a pool bounded to limit concurrent runs. The context
// cancels in-flight runs at their next step boundary.
func NewPool(ctx context.Context, orch *Orchestrator, limit int, logger *observability.Logger) *Pool {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	return &Pool{
		orch:   orch,
		group:  group,
		ctx:    groupCtx,
		logger: logger.WithComponent("pipeline_pool"),
	}
}

// Submit schedules one document run. Blocks while the pool is at its
// concurrency limit. Run failures are terminal document states, not pool
// errors, so one bad document never stops the others.
func (p *Pool) Submit(req RunRequest) {
	p.group.Go(func() error {
		result, err := p.orch.Run(p.ctx, req)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("document_id", req.DocumentID.String()).
				Msg("run finished with failure")
			return nil
		}
		p.logger.Info().
			Str("document_id", result.DocumentID.String()).
			Str("status", string(result.Status)).
			Msg("run finished")
		return nil
	})
}

// Wait blocks until every submitted run has finished.
func (p *Pool) Wait() error {
	return p.group.Wait()
}
