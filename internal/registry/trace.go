// This file contains detection tracing used by the detect command.
package registry

import (
	"tariff_parser/internal/strategy"
	"tariff_parser/internal/tariff"
)

// StrategyTrace records how one strategy scored during detection.
type StrategyTrace struct {
	Name       string               // Strategy name.
	Transport  tariff.TransportType // Transport the strategy maps to.
	Matched    int                  // Detection patterns that matched.
	Total      int                  // Detection patterns tried.
	Confidence float64              // Matched/Total.
	Selected   bool                 // Whether this strategy won.
}

// DetectWithTrace is Detect plus a per-strategy score report, in
// catalog order.
func (r *Registry) DetectWithTrace(text string) (*strategy.Strategy, []StrategyTrace) {
	best := r.Detect(text)
	traces := make([]StrategyTrace, 0, len(r.strategies))
	for _, s := range r.strategies {
		matched, total := s.Score(text)
		traces = append(traces, StrategyTrace{
			Name:       s.Name,
			Transport:  s.Transport,
			Matched:    matched,
			Total:      total,
			Confidence: confidence(s, text),
			Selected:   s == best,
		})
	}
	return best, traces
}
