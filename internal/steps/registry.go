// Package steps provides the pipeline step registry: the ordered,
// enable/disable configuration of steps, split into the universal scope
// and per-document-type scopes.
package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/Dropicx/docworker/internal/domain"
	"github.com/Dropicx/docworker/internal/storage"
)

// ConfigSource reads step configuration for one scope. The empty document
// type is the universal scope.
type ConfigSource interface {
	ListByScope(ctx context.Context, docType domain.DocumentType) ([]*storage.StepConfig, error)
}

// Registry merges universal and type-scoped step configuration into the
// effective execution sequence. It holds no state of its own; every call
// reads the configuration snapshot current at that moment.
type Registry struct {
	source ConfigSource
}

// NewRegistry creates a registry over the given configuration source.
func NewRegistry(source ConfigSource) *Registry {
	return &Registry{source: source}
}

// OrderedSteps returns the enabled steps applicable to docType, sorted by
// execution order. Passing the empty document type returns the universal
// sequence only. Duplicate order values within the merged sequence are a
// configuration error.
func (r *Registry) OrderedSteps(ctx context.Context, docType domain.DocumentType) ([]storage.StepConfig, error) {
	merged, err := r.merged(ctx, docType)
	if err != nil {
		return nil, err
	}

	var enabled []storage.StepConfig
	for _, c := range merged {
		if c.Enabled {
			enabled = append(enabled, *c)
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].ExecOrder < enabled[j].ExecOrder
	})

	for i := 1; i < len(enabled); i++ {
		if enabled[i].ExecOrder == enabled[i-1].ExecOrder {
			return nil, domain.ConfigError(
				fmt.Sprintf("steps %s and %s share order %d for document type %q",
					enabled[i-1].Name, enabled[i].Name, enabled[i].ExecOrder, docType),
				nil,
			)
		}
	}

	return enabled, nil
}

// Validate checks the merged configuration for docType without filtering,
// so admin mutations can be rejected before they break a running scope.
func (r *Registry) Validate(ctx context.Context, docType domain.DocumentType) error {
	merged, err := r.merged(ctx, docType)
	if err != nil {
		return err
	}

	seen := map[int]domain.StepName{}
	for _, c := range merged {
		if !c.Enabled {
			continue
		}
		if !c.Name.Valid() {
			return domain.ConfigError(fmt.Sprintf("unknown step name %q", c.Name), nil)
		}
		if prev, ok := seen[c.ExecOrder]; ok {
			return domain.ConfigError(
				fmt.Sprintf("steps %s and %s share order %d for document type %q",
					prev, c.Name, c.ExecOrder, docType),
				nil,
			)
		}
		seen[c.ExecOrder] = c.Name
	}

	return nil
}

func (r *Registry) merged(ctx context.Context, docType domain.DocumentType) ([]*storage.StepConfig, error) {
	universal, err := r.source.ListByScope(ctx, "")
	if err != nil {
		return nil, err
	}

	if docType == "" {
		return universal, nil
	}

	scoped, err := r.source.ListByScope(ctx, docType)
	if err != nil {
		return nil, err
	}

	return append(universal, scoped...), nil
}
