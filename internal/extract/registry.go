package extract

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/analytics"
)

// Registry maps extractor names to their implementations.
type Registry struct {
	extractors map[string]Extractor
	order      []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with all satellite extractors.
// delayOverrides adjusts an extractor's completeness window by name,
// for upstreams whose processing lag differs between properties.
func NewRegistry(client analytics.Client, delayOverrides map[string]int) *Registry {
	r := &Registry{
		extractors: make(map[string]Extractor),
	}

	r.Register(NewProducts(client))
	r.Register(NewCommodityConversions(client))
	r.Register(NewChannels(client))
	r.Register(NewCampaigns(client))

	for name, delay := range delayOverrides {
		if e, ok := r.extractors[name]; ok {
			if o, ok := e.(delayOverridable); ok {
				o.setDelayDays(delay)
			}
		}
	}
	return r
}

// delayOverridable is implemented by extractors whose completeness
// window can be tuned from configuration.
type delayOverridable interface {
	setDelayDays(days int)
}

// Register adds an extractor, replacing any previous one with the
// same name.
func (r *Registry) Register(e Extractor) {
	name := e.Descriptor().Name
	if _, exists := r.extractors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.extractors[name] = e
}

// Get returns the named extractor or an error listing what exists.
func (r *Registry) Get(name string) (Extractor, error) {
	e, ok := r.extractors[name]
	if !ok {
		return nil, eris.Errorf("unknown extractor %q (available: %s)",
			name, strings.Join(r.Names(), ", "))
	}
	return e, nil
}

// Names returns extractor names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns extractors in registration order.
func (r *Registry) All() []Extractor {
	out := make([]Extractor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.extractors[name])
	}
	return out
}
