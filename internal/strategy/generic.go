package strategy

import (
	"strings"

	"tariff_parser/internal/patterns"
	"tariff_parser/internal/places"
)

// genericRoutes extracts routes line by line. A line that splits as a
// delimited table row is read cell-wise; otherwise the strategy's
// route patterns run over it. Prices come from the same line first,
// then from a window of the surrounding text.
func (s *Strategy) genericRoutes(text string, res *places.Resolver, window int) []Route {
	var list routeList
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		lineStart := offset
		offset += len(line) + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		if cells := patterns.SplitTableRow(line); cells != nil {
			s.tableRoute(&list, cells, line, lineStart, text, window, res)
			continue
		}
		for _, sp := range s.routes.ScanAll(line) {
			origin, ok := res.Resolve(sp.GetCapture("origin", ""))
			if !ok {
				continue
			}
			dest, ok := res.Resolve(sp.GetCapture("dest", ""))
			if !ok {
				continue
			}
			prices := s.priceSet(line, s.prices.ScanAll(line))
			if prices.Empty() {
				prices = patterns.PricesNear(text, lineStart+sp.Start, lineStart+sp.End, window)
			}
			list.add(Route{Origin: origin, Destination: dest, Prices: prices, Pos: lineStart + sp.Start})
		}
	}
	return list.routes
}

// tableRoute reads the first two resolvable cells of a delimited row
// as origin and destination. Header rows never yield two plausible
// place cells, so they drop out here.
func (s *Strategy) tableRoute(list *routeList, cells []string, line string, lineStart int, text string, window int, res *places.Resolver) {
	var found []places.Place
	for _, cell := range cells {
		if p, ok := res.Resolve(cell); ok {
			found = append(found, p)
			if len(found) == 2 {
				break
			}
		}
	}
	if len(found) < 2 {
		return
	}
	prices := s.priceSet(line, s.prices.ScanAll(line))
	if prices.Empty() {
		prices = patterns.PricesNear(text, lineStart, lineStart+len(line), window)
	}
	list.add(Route{Origin: found[0], Destination: found[1], Prices: prices, Pos: lineStart})
}

// City keyword vocabularies for the universal fallback. When no route
// pattern fires but the text names a Chinese city and a Russian or
// Belarusian one, the pair still makes a lane.
var (
	keywordChinese = []string{
		"гуанчжоу", "guangzhou", "шанхай", "shanghai", "пекин", "beijing",
		"шенчжень", "shenzhen", "тяньцзинь", "tianjin", "далянь", "dalian",
		"циндао", "qingdao", "нинбо", "ningbo", "сиань", "xian",
		"чунцин", "chongqing", "ханчжоу", "hangzhou", "ухань", "wuhan",
		"нанкин", "nanjing", "сямэнь", "xiamen", "иу", "yiwu",
		"гонконг", "hong kong", "макао", "macau",
	}
	keywordRussian = []string{
		"москва", "moscow", "санкт-петербург", "st. petersburg",
		"владивосток", "vladivostok", "краснодар", "krasnodar",
		"ростов-на-дону", "rostov", "екатеринбург", "yekaterinburg",
		"новосибирск", "novosibirsk", "красноярск", "krasnoyarsk",
		"уфа", "казань", "kazan",
	}
	keywordBelarus = []string{"минск", "minsk"}
)

// keywordRoutes pairs the first Chinese city mentioned anywhere in the
// text with up to two Russian and two Belarusian ones. Document-level
// prices attach to every lane; per-lane prices are not recoverable at
// this point, so the largest amount per currency is the safest read of
// a rate sheet that resisted the route patterns.
func keywordRoutes(text string, res *places.Resolver) []Route {
	lower := strings.ToLower(text)
	origins := keywordHits(lower, keywordChinese, 1)
	dests := append(keywordHits(lower, keywordRussian, 2), keywordHits(lower, keywordBelarus, 2)...)
	if len(origins) == 0 || len(dests) == 0 {
		return nil
	}
	origin, ok := res.Lookup(origins[0])
	if !ok {
		return nil
	}
	prices := patterns.LargestPerCurrency(patterns.FindPriceHits(text))
	var list routeList
	for i, d := range dests {
		dest, ok := res.Lookup(d)
		if !ok {
			continue
		}
		list.add(Route{Origin: origin, Destination: dest, Prices: prices, Pos: i})
	}
	return list.routes
}

// keywordHits returns up to limit vocabulary words contained in the
// lowercased text, in vocabulary order.
func keywordHits(lower string, vocab []string, limit int) []string {
	var out []string
	for _, w := range vocab {
		if strings.Contains(lower, w) {
			out = append(out, w)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
