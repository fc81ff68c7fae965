// Package registry selects the extraction strategy for a document:
// every catalog strategy is scored against the text and the best
// confidence wins, with catalog order breaking ties.
package registry

import (
	"tariff_parser/internal/strategy"
	"tariff_parser/internal/tariff"
)

// Registry holds the strategy catalog organised for dispatch.
type Registry struct {
	strategies []*strategy.Strategy

	// byTransport maps a transport type to its dedicated strategy, for
	// documents that arrive with an explicit transport hint.
	byTransport map[tariff.TransportType]*strategy.Strategy

	// fallback is the universal strategy, used for multimodal hints and
	// as the last catalog entry during detection.
	fallback *strategy.Strategy
}

// New builds a registry over the built-in strategy catalog.
func New() *Registry {
	r := &Registry{byTransport: make(map[tariff.TransportType]*strategy.Strategy)}
	for _, s := range strategy.Catalog() {
		r.strategies = append(r.strategies, s)
		if _, ok := r.byTransport[s.Transport]; !ok {
			r.byTransport[s.Transport] = s
		}
		r.fallback = s
	}
	return r
}

// Global default registry.
var defaultRegistry = New()

// Default returns the shared registry instance. The catalog is
// read-only, so the instance is safe for concurrent use.
func Default() *Registry {
	return defaultRegistry
}

// Detect scores every strategy against the text and returns the one
// with the highest confidence. Earlier catalog entries win ties among
// positive scores; a document that matches nothing falls through to
// the universal strategy, so detection always returns something and
// stays deterministic.
func (r *Registry) Detect(text string) *strategy.Strategy {
	best := r.fallback
	bestConf := 0.0
	for _, s := range r.strategies {
		if conf := confidence(s, text); conf > bestConf {
			best = s
			bestConf = conf
		}
	}
	return best
}

// ForTransport returns the dedicated strategy for a transport type, or
// nil when no catalog entry claims it (multimodal has none).
func (r *Registry) ForTransport(t tariff.TransportType) *strategy.Strategy {
	return r.byTransport[t]
}

// Fallback returns the universal strategy.
func (r *Registry) Fallback() *strategy.Strategy {
	return r.fallback
}

// Strategies returns the catalog in priority order.
func (r *Registry) Strategies() []*strategy.Strategy {
	return r.strategies
}

func confidence(s *strategy.Strategy, text string) float64 {
	matched, total := s.Score(text)
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
