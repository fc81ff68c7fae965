package strategy

import (
	"regexp"
	"strings"

	"tariff_parser/internal/normalize"
	"tariff_parser/internal/patterns"
	"tariff_parser/internal/places"
)

// ftlShape describes how one EXW format's capture groups map to a lane.
type ftlShape int

const (
	// shapePair has origin, dest and price groups.
	shapePair ftlShape = iota
	// shapeTransit adds a transit group between origin and dest; the
	// transit point stands in for an unresolvable destination.
	shapeTransit
	// shapeCombined has the whole lane in one route group ("A-B").
	shapeCombined
)

type ftlFormat struct {
	shape    ftlShape
	currency string // "" sniffs the currency from the matched text
}

var ftlFormats = map[string]ftlFormat{
	"exw_usd":          {shapePair, patterns.CurrencyUSD},
	"exw_free":         {shapePair, ""},
	"exw_cny_transit":  {shapeTransit, patterns.CurrencyCNY},
	"exw_cny_combined": {shapeCombined, patterns.CurrencyCNY},
	"exw_cny_pair":     {shapePair, patterns.CurrencyCNY},
	"exw_cny_ftl":      {shapePair, patterns.CurrencyCNY},
	"exw_cny_cbm":      {shapePair, patterns.CurrencyCNY},
	"exw_cny_nl":       {shapeCombined, patterns.CurrencyCNY},
	"exw_cny_ftl_nl":   {shapePair, patterns.CurrencyCNY},
}

// ftlRoutes extracts EXW truck lanes. Origin cells may list
// alternatives ("Shenzhen/Guangzhou"); each resolvable alternative
// becomes its own lane. Endpoints resolve strictly against the place
// table, which keeps free-text tails like "price on request" out.
func (s *Strategy) ftlRoutes(text string, res *places.Resolver) []Route {
	var list routeList
	for _, sp := range s.extract.ScanClaimed(text) {
		meta, ok := ftlFormats[sp.FormatName]
		if !ok {
			continue
		}
		originText := sp.GetCapture("origin", "")
		destText := sp.GetCapture("dest", "")
		if meta.shape == shapeCombined {
			parts := strings.SplitN(sp.GetCapture("route", ""), "-", 2)
			if len(parts) < 2 {
				continue
			}
			originText, destText = parts[0], parts[1]
		}

		prices := ftlPrice(sp.GetCapture("price", ""), meta.currency, text[sp.Start:sp.End])

		dests := resolveAlternatives(res, destText)
		if meta.shape == shapeTransit && len(dests) == 0 {
			// "EXW Xian-KZ: ..." style rows name a border point where
			// the destination should be.
			if p, ok := res.Lookup(sp.GetCapture("transit", "")); ok {
				dests = []places.Place{p}
			}
		}
		for _, o := range resolveAlternatives(res, originText) {
			for _, d := range dests {
				list.add(Route{Origin: o, Destination: d, Prices: prices, Pos: sp.Start})
			}
		}
	}
	return list.routes
}

// resolveAlternatives splits a multi-city cell on "/" and resolves
// each part strictly against the place table.
func resolveAlternatives(res *places.Resolver, cell string) []places.Place {
	var out []places.Place
	for _, part := range strings.Split(cell, "/") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		if p, ok := res.Lookup(part); ok {
			out = append(out, p)
		}
	}
	return out
}

// amountToken pulls the first number out of a free-form price cell
// ("$9500 per truck", "78 600").
var amountToken = regexp.MustCompile(`\d+(?:[ ,]\d{3})*(?:[.,]\d+)?`)

// ftlPrice parses the captured amount. An explicit currency marker in
// the matched text outranks the format's own currency.
func ftlPrice(raw, currency, matched string) patterns.PriceSet {
	var set patterns.PriceSet
	tok := amountToken.FindString(raw)
	if tok == "" {
		return set
	}
	v, ok := normalize.ParseNumber(tok)
	if !ok || v <= 0 {
		return set
	}
	if currency == "" {
		currency = sniffCurrency(matched, patterns.CurrencyUSD)
	}
	set.Set(currency, v)
	return set
}
