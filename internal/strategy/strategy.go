// Package strategy implements the extraction strategy catalog: one
// data-driven strategy per transport domain plus a universal fallback.
// A strategy carries the pattern tables used to score it against a
// document and, once selected, to pull routes, prices and vehicle
// types out of the text.
package strategy

import (
	"regexp"
	"strings"

	"tariff_parser/internal/normalize"
	"tariff_parser/internal/patterns"
	"tariff_parser/internal/places"
	"tariff_parser/internal/tariff"
)

// Kind selects the route-extraction variant for a strategy.
type Kind int

const (
	// KindGeneric extracts routes line by line with the strategy's own
	// route patterns, tabular rows first.
	KindGeneric Kind = iota
	// KindAir extracts airport-code rate rows ("HKG-PEK D1357 8.90 ...").
	KindAir
	// KindFTL extracts EXW truck lanes with multi-origin alternatives
	// ("EXW Shenzhen/Guangzhou - Moscow - $9500").
	KindFTL
)

// Strategy is one catalog entry. The exported fields identify it; the
// pattern tables are read-only after construction.
type Strategy struct {
	Name      string
	Transport tariff.TransportType
	Priority  int
	// Currency is assumed for amounts the price table matches without
	// an explicit currency tag.
	Currency string

	kind       Kind
	indicators *patterns.Compiler
	prices     *patterns.Compiler
	routes     *patterns.Compiler
	extract    *patterns.Compiler // route table for KindAir/KindFTL
	vehicles   *patterns.Compiler
	keywords   bool // city-keyword fallback when no routes found
}

// Route is a single extracted lane with the prices found next to it.
type Route struct {
	Origin      places.Place
	Destination places.Place
	Prices      patterns.PriceSet
	Vehicle     string
	Pos         int // byte offset of the match, orders output
}

// Extraction is the raw strategy output before assembly into
// candidates: routes in match order plus document-level findings.
type Extraction struct {
	Strategy  string
	Transport tariff.TransportType
	Routes    []Route
	Prices    patterns.PriceSet
	Vehicle   string
}

// Score reports how many detection patterns match the text, pooled
// across the indicator, price and route groups. Confidence is
// matched/total; total is fixed per strategy.
func (s *Strategy) Score(text string) (matched, total int) {
	for _, c := range []*patterns.Compiler{s.indicators, s.prices, s.routes} {
		m, n := c.CountMatching(text)
		matched += m
		total += n
	}
	return matched, total
}

// Trace reports the match outcome of every detection pattern against
// text, in score order: indicators, then prices, then routes.
func (s *Strategy) Trace(text string) []patterns.FormatTrace {
	var traces []patterns.FormatTrace
	for _, c := range []*patterns.Compiler{s.indicators, s.prices, s.routes} {
		traces = append(traces, c.TraceAll(text)...)
	}
	return traces
}

// Extract runs the strategy's route, price and vehicle tables against
// the text. window is the radius in bytes for picking up prices around
// a route match that has none on its own line. Extract never fails;
// unmatchable tables yield empty fields.
func (s *Strategy) Extract(text string, res *places.Resolver, window int) Extraction {
	ex := Extraction{Strategy: s.Name, Transport: s.Transport}
	switch s.kind {
	case KindAir:
		ex.Routes = s.airRoutes(text, res)
	case KindFTL:
		ex.Routes = s.ftlRoutes(text, res)
	default:
		ex.Routes = s.genericRoutes(text, res, window)
	}
	if s.keywords && len(ex.Routes) == 0 {
		ex.Routes = keywordRoutes(text, res)
	}
	ex.Prices = s.priceSet(text, s.prices.ScanAll(text))
	ex.Vehicle = s.vehicleType(text)
	return ex
}

// priceSet folds price spans into a set; the first match per currency
// wins. Currency comes from the matched text itself, falling back to
// the strategy default for untagged amounts.
func (s *Strategy) priceSet(text string, spans []patterns.Span) patterns.PriceSet {
	var set patterns.PriceSet
	for _, sp := range spans {
		raw := sp.GetCapture("amount", "")
		if raw == "" {
			continue
		}
		v, ok := normalize.ParseNumber(raw)
		if !ok || v <= 0 {
			continue
		}
		cur := sniffCurrency(text[sp.Start:sp.End], s.Currency)
		if set.Get(cur) == nil {
			set.Set(cur, v)
		}
	}
	return set
}

var (
	usdMarker = regexp.MustCompile(`(?i)USD|\$|долл`)
	rubMarker = regexp.MustCompile(`(?i)RUB|₽|руб`)
	cnyMarker = regexp.MustCompile(`(?i)CNY|RMB|¥|юан`)
)

// sniffCurrency decides the currency of a matched price fragment.
func sniffCurrency(sample, fallback string) string {
	switch {
	case usdMarker.MatchString(sample):
		return patterns.CurrencyUSD
	case rubMarker.MatchString(sample):
		return patterns.CurrencyRUB
	case cnyMarker.MatchString(sample):
		return patterns.CurrencyCNY
	}
	return fallback
}

// vehicleType returns the vehicle/container description of the first
// matching format in the strategy's vehicle table, or "". Named body
// types precede dimension strings in the tables, so a row carrying both
// reports the body type.
func (s *Strategy) vehicleType(text string) string {
	if s.vehicles == nil {
		return ""
	}
	return strings.TrimSpace(s.vehicles.Parse(text).GetCapture("vehicle", ""))
}

// routeList accumulates routes, rejecting same-endpoint lanes and
// duplicate normalized pairs.
type routeList struct {
	routes []Route
	seen   map[string]bool
}

func (l *routeList) add(r Route) {
	o := strings.ToLower(r.Origin.City)
	d := strings.ToLower(r.Destination.City)
	if o == "" || d == "" || o == d {
		return
	}
	key := o + "\x00" + d
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[key] {
		return
	}
	l.seen[key] = true
	l.routes = append(l.routes, r)
}
