package strategy

import (
	"strings"

	"tariff_parser/internal/normalize"
	"tariff_parser/internal/places"
)

// airRoutes extracts airport-code rate rows. A row looks like
// "HKG-PEK D1357 8.90 5.50 4.85 4.57": origin and destination codes,
// a flight or shipment token, then four rate columns of which the
// first is the base rate.
func (s *Strategy) airRoutes(text string, res *places.Resolver) []Route {
	var list routeList
	for _, sp := range s.extract.ScanAll(text) {
		r := Route{
			Origin:      resolveCode(res, sp.GetCapture("origin", "")),
			Destination: resolveCode(res, lastLeg(sp.GetCapture("dest", ""))),
			Vehicle:     sp.GetCapture("vehicle", ""),
			Pos:         sp.Start,
		}
		if v, ok := normalize.ParseNumber(sp.GetCapture("p1", "")); ok && v > 0 {
			r.Prices.Set(s.Currency, v)
		}
		list.add(r)
	}
	return list.routes
}

// resolveCode maps an airport code through the place table. Unknown
// codes pass through as-is so the row is not lost.
func resolveCode(res *places.Resolver, code string) places.Place {
	code = strings.TrimSpace(code)
	if code == "" {
		return places.Place{}
	}
	if p, ok := res.Lookup(code); ok {
		return p
	}
	return places.Place{City: strings.ToUpper(code)}
}

// lastLeg returns the final segment of a multi-leg destination
// ("XIY-SVO1" -> "SVO1").
func lastLeg(code string) string {
	if i := strings.LastIndex(code, "-"); i >= 0 {
		return code[i+1:]
	}
	return code
}
