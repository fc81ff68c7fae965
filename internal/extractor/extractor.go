// Package extractor is the extraction engine: it picks the right
// strategy for a document, runs it, and assembles validated tariff
// candidates from the raw extraction. The engine is storage-agnostic
// and never fails; text that resists extraction yields no candidates.
package extractor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tariff_parser/internal/logger"
	"tariff_parser/internal/patterns"
	"tariff_parser/internal/places"
	"tariff_parser/internal/registry"
	"tariff_parser/internal/strategy"
	"tariff_parser/internal/tariff"
)

// DefaultBasis is assumed when the text names no delivery terms.
const DefaultBasis = "EXW"

// Config bounds the engine's work per document.
type Config struct {
	// MaxCandidates caps the candidates returned per document.
	MaxCandidates int

	// PriceWindow is the radius in runes for picking up prices around
	// a route match that has none on its own line.
	PriceWindow int

	// MaxTextLen truncates longer documents before extraction, in bytes.
	MaxTextLen int

	// CityTablePath overrides the embedded place table with a YAML file.
	CityTablePath string
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxCandidates: 10,
		PriceWindow:   200,
		MaxTextLen:    1 << 20,
	}
}

// Options carries per-document metadata alongside the text.
type Options struct {
	// TransportHint routes the document straight to a transport's
	// strategy. Empty, "auto" and unknown hints go through detection.
	TransportHint string

	// Supplier is carried through to every candidate.
	Supplier string
}

// Engine turns raw document text into tariff candidates.
type Engine struct {
	cfg Config
	log logger.Logger
	reg *registry.Registry
	res *places.Resolver
}

// New builds an engine over the built-in strategy catalog. Zero config
// fields take their defaults.
func New(cfg Config, log logger.Logger) (*Engine, error) {
	def := DefaultConfig()
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.PriceWindow <= 0 {
		cfg.PriceWindow = def.PriceWindow
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = def.MaxTextLen
	}
	if log == nil {
		log = logger.Nop()
	}

	res, err := resolver(cfg.CityTablePath)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, log: log, reg: registry.New(), res: res}, nil
}

func resolver(path string) (*places.Resolver, error) {
	if path == "" {
		return places.DefaultResolver()
	}
	table, err := places.LoadTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("city table %s: %w", path, err)
	}
	return places.NewResolver(table), nil
}

// Extract runs the full pipeline on one document.
func (e *Engine) Extract(text string, opts Options) []tariff.Candidate {
	text = e.truncate(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s, transport := e.pick(text, opts.TransportHint)
	ex := s.Extract(text, e.res, e.cfg.PriceWindow)
	e.log.Debugf("strategy %s: %d routes in %d bytes", ex.Strategy, len(ex.Routes), len(text))

	return e.assemble(text, ex, transport, opts.Supplier)
}

// Detect reports the strategy detection outcome without extracting.
func (e *Engine) Detect(text string) (*strategy.Strategy, []registry.StrategyTrace) {
	return e.reg.DetectWithTrace(text)
}

// pick selects the strategy for a document. Explicit air, sea and rail
// hints bypass detection; a multimodal document runs the universal
// strategy but keeps its transport; everything else is detected from
// the text.
func (e *Engine) pick(text, hint string) (*strategy.Strategy, tariff.TransportType) {
	t, ok := tariff.ParseTransport(hint)
	if !ok || t == tariff.TransportAuto {
		s := e.reg.Detect(text)
		return s, s.Transport
	}
	if t == tariff.TransportMultimodal {
		return e.reg.Fallback(), t
	}
	return e.reg.ForTransport(t), t
}

// assemble builds candidates from the raw extraction. Route-level
// prices win over document-level ones; delivery terms, transit time,
// validity and ancillary fees come from the whole document.
func (e *Engine) assemble(text string, ex strategy.Extraction, transport tariff.TransportType, supplier string) []tariff.Candidate {
	basis := patterns.FindBasis(text)
	if basis == "" {
		basis = DefaultBasis
	}
	costs := patterns.FindCosts(text)
	transit, hasTransit := patterns.FindTransitDays(text)
	validity := patterns.FindValidity(text)

	var out []tariff.Candidate
	for _, r := range ex.Routes {
		if places.Noisy(r.Origin.City) || places.Noisy(r.Destination.City) {
			e.log.Debugf("dropping noisy route %q -> %q", r.Origin.City, r.Destination.City)
			continue
		}

		prices := r.Prices
		prices.Merge(ex.Prices)

		c := tariff.Candidate{
			TransportType:      transport,
			Basis:              basis,
			OriginCity:         r.Origin.City,
			OriginCountry:      r.Origin.Country,
			DestinationCity:    r.Destination.City,
			DestinationCountry: r.Destination.Country,
			PriceUSD:           prices.USD,
			PriceRUB:           prices.RUB,
			PriceCNY:           prices.CNY,
			SourceStrategy:     ex.Strategy,
			Supplier:           supplier,
		}
		if v := r.Vehicle; v != "" {
			c.VehicleType = &v
		} else if v := ex.Vehicle; v != "" {
			c.VehicleType = &v
		}
		if hasTransit {
			d := transit
			c.TransitTimeDays = &d
		}
		if v := validity; v != "" {
			c.ValidityDate = &v
		}
		for _, key := range tariff.CostKeys {
			if v, ok := costs[key]; ok {
				c.SetCost(key, v)
			}
		}

		// A complete route without a price is still worth keeping: the
		// caller may backfill the price from another currency or send
		// the record to review. Neither route nor price is noise.
		if !c.HasRoute() && !c.HasPrice() {
			continue
		}
		out = append(out, c)
		if len(out) == e.cfg.MaxCandidates {
			e.log.Debugf("candidate cap %d reached", e.cfg.MaxCandidates)
			break
		}
	}
	return out
}

// truncate bounds the document size, cutting on a rune boundary.
func (e *Engine) truncate(text string) string {
	if len(text) <= e.cfg.MaxTextLen {
		return text
	}
	n := e.cfg.MaxTextLen
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	e.log.Warnf("document truncated from %d to %d bytes", len(text), n)
	return text[:n]
}
