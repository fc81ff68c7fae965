// Package patterns provides shared regex tables and helper functions for tariff extraction.
package patterns

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"tariff_parser/internal/normalize"
	"tariff_parser/internal/tariff"
)

// Supported price currencies, in candidate field order.
const (
	CurrencyUSD = "usd"
	CurrencyRUB = "rub"
	CurrencyCNY = "cny"
)

// Currencies lists the supported currencies in a fixed order so that
// extraction output never depends on map iteration.
var Currencies = []string{CurrencyUSD, CurrencyRUB, CurrencyCNY}

// Currency marker tiers. An explicit code or symbol outranks a spelled-out
// currency word; a bare number falls through to the strategy default.
const (
	TierCode = 1
	TierWord = 2
)

// priceCompiler holds one format per currency, tier, and marker position.
// Group "amount" captures the numeric part.
var priceCompiler = MustCompiler([]Format{
	{Name: "usd_code", Pattern: `(?P<amount>{NUMSP})\s*{CUR_USD}`},
	{Name: "usd_code_pre", Pattern: `{CUR_USD}\s*(?P<amount>{NUMSP})`},
	{Name: "usd_word", Pattern: `(?P<amount>{NUMSP})\s*{CUR_USD_WORD}`},
	{Name: "rub_code", Pattern: `(?P<amount>{NUMSP})\s*{CUR_RUB}`},
	{Name: "rub_code_pre", Pattern: `{CUR_RUB}\s*(?P<amount>{NUMSP})`},
	{Name: "rub_word", Pattern: `(?P<amount>{NUMSP})\s*{CUR_RUB_WORD}`},
	{Name: "cny_code", Pattern: `(?P<amount>{NUMSP})\s*{CUR_CNY}`},
	{Name: "cny_code_pre", Pattern: `{CUR_CNY}\s*(?P<amount>{NUMSP})`},
	{Name: "cny_word", Pattern: `(?P<amount>{NUMSP})\s*{CUR_CNY_WORD}`},
}, nil)

// priceFormatMeta maps price format names to their currency and tier.
var priceFormatMeta = map[string]struct {
	currency string
	tier     int
}{
	"usd_code":     {CurrencyUSD, TierCode},
	"usd_code_pre": {CurrencyUSD, TierCode},
	"usd_word":     {CurrencyUSD, TierWord},
	"rub_code":     {CurrencyRUB, TierCode},
	"rub_code_pre": {CurrencyRUB, TierCode},
	"rub_word":     {CurrencyRUB, TierWord},
	"cny_code":     {CurrencyCNY, TierCode},
	"cny_code_pre": {CurrencyCNY, TierCode},
	"cny_word":     {CurrencyCNY, TierWord},
}

// PriceHit is a currency-marked number found in text.
type PriceHit struct {
	Currency string
	Value    float64
	Pos      int // byte offset of the match
	Tier     int
}

// FindPriceHits scans text for all currency-marked numbers, ordered by
// match position.
func FindPriceHits(text string) []PriceHit {
	var hits []PriceHit
	for _, span := range priceCompiler.ScanAll(text) {
		meta := priceFormatMeta[span.FormatName]
		value, ok := normalize.ParseNumber(span.GetCapture("amount", ""))
		if !ok {
			continue
		}
		hits = append(hits, PriceHit{
			Currency: meta.currency,
			Value:    value,
			Pos:      span.Start,
			Tier:     meta.tier,
		})
	}
	return hits
}

// PriceSet holds at most one price per currency.
type PriceSet struct {
	USD *float64
	RUB *float64
	CNY *float64
}

// Empty reports whether no currency has a price.
func (p PriceSet) Empty() bool {
	return p.USD == nil && p.RUB == nil && p.CNY == nil
}

// Get returns the price for a currency, or nil.
func (p PriceSet) Get(currency string) *float64 {
	switch currency {
	case CurrencyUSD:
		return p.USD
	case CurrencyRUB:
		return p.RUB
	case CurrencyCNY:
		return p.CNY
	}
	return nil
}

// Set stores a price for a currency, overwriting any previous value.
// Unknown currencies are ignored.
func (p *PriceSet) Set(currency string, value float64) {
	switch currency {
	case CurrencyUSD:
		p.USD = &value
	case CurrencyRUB:
		p.RUB = &value
	case CurrencyCNY:
		p.CNY = &value
	}
}

// Merge fills currencies missing from p with values from other.
// Existing values are never overwritten.
func (p *PriceSet) Merge(other PriceSet) {
	if p.USD == nil {
		p.USD = other.USD
	}
	if p.RUB == nil {
		p.RUB = other.RUB
	}
	if p.CNY == nil {
		p.CNY = other.CNY
	}
}

// FirstPerCurrency picks one hit per currency: the earliest code/symbol
// match, falling back to the earliest currency-word match. Hits must be
// in position order, as returned by FindPriceHits.
func FirstPerCurrency(hits []PriceHit) PriceSet {
	var set PriceSet
	best := make(map[string]int) // currency -> tier of the stored hit
	for _, h := range hits {
		tier, seen := best[h.Currency]
		if seen && tier <= h.Tier {
			continue
		}
		set.Set(h.Currency, h.Value)
		best[h.Currency] = h.Tier
	}
	return set
}

// LargestPerCurrency picks the largest value per currency regardless of
// marker tier. Used by the whole-text fallback where the biggest marked
// number is most likely the tariff total.
func LargestPerCurrency(hits []PriceHit) PriceSet {
	var set PriceSet
	for _, h := range hits {
		if cur := set.Get(h.Currency); cur == nil || h.Value > *cur {
			set.Set(h.Currency, h.Value)
		}
	}
	return set
}

// PricesNear extracts prices from a window of radius characters around the
// [start, end) byte span, one per currency, earliest code match first.
func PricesNear(text string, start, end, radius int) PriceSet {
	lo, hi := expandWindow(text, start, end, radius)
	return FirstPerCurrency(FindPriceHits(text[lo:hi]))
}

// expandWindow widens a byte span by up to radius runes on each side,
// staying on UTF-8 boundaries. Byte-based widening would halve the window
// on Cyrillic text.
func expandWindow(text string, start, end, radius int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	lo := start
	for i := 0; i < radius && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:lo])
		lo -= size
	}
	hi := end
	for i := 0; i < radius && hi < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[hi:])
		hi += size
	}
	return lo, hi
}

// transitPattern matches day-based transit times, optionally a range.
// Hour-based durations are not converted; suppliers quote door-to-door
// transit in days.
var transitPattern = regexp.MustCompile(`(?i)(\d{1,3}(?:\s*-\s*\d{1,3})?)\s*(?:календарн[а-яё]*\s+)?(?:раб[а-яё.]*\s+)?(?:дн[а-яё]*|сут[а-яё]*|days?)`)

// FindTransitDays returns the first transit time in days found in text.
// Ranges average: "25-30 дней" yields 27.
func FindTransitDays(text string) (int, bool) {
	m := transitPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	days, ok := normalize.ParseInt(m[1])
	if !ok || days <= 0 {
		return 0, false
	}
	return days, true
}

// basisPatterns maps delivery bases to their textual markers, in precedence
// order. The first basis whose marker appears anywhere in the text wins.
// Three-letter codes take word boundaries; boundaries are ASCII-only in Go
// regexps, which is fine here since Incoterm codes are Latin.
var basisPatterns = []struct {
	basis string
	re    *regexp.Regexp
}{
	{"EXW", regexp.MustCompile(`(?i)\bEXW\b|ex\s+works|франко\s*завод`)},
	{"FCA", regexp.MustCompile(`(?i)\bFCA\b|free\s+carrier`)},
	{"CPT", regexp.MustCompile(`(?i)\bCPT\b|carriage\s+paid\s+to`)},
	{"CIP", regexp.MustCompile(`(?i)\bCIP\b|carriage\s+and\s+insurance\s+paid`)},
	{"DAP", regexp.MustCompile(`(?i)\bDAP\b|delivered\s+at\s+place`)},
	{"DPU", regexp.MustCompile(`(?i)\bDPU\b|delivered\s+at\s+place\s+unloaded`)},
	{"DDP", regexp.MustCompile(`(?i)\bDDP\b|delivered\s+duty\s+paid`)},
	{"FAS", regexp.MustCompile(`(?i)\bFAS\b|free\s+alongside\s+ship`)},
	{"FOB", regexp.MustCompile(`(?i)\bFOB\b|free\s+on\s+board`)},
	{"CFR", regexp.MustCompile(`(?i)\bCFR\b|cost\s+and\s+freight`)},
	{"CIF", regexp.MustCompile(`(?i)\bCIF\b|cost\s+insurance\s+and\s+freight`)},
}

// FindBasis returns the delivery basis named in text, or "" when none is
// mentioned. Callers apply the strategy default.
func FindBasis(text string) string {
	for _, bp := range basisPatterns {
		if bp.re.MatchString(text) {
			return bp.basis
		}
	}
	return ""
}

// validityPattern matches "valid until" style markers followed by a date.
var validityPattern = regexp.MustCompile(`(?i)(?:действ[а-яё]*(?:\s+до)?|валидн[а-яё]*(?:\s+до)?|срок\s+до|valid\s*(?:until|till|to)?|до)\s*:?\s*(\d{1,2}[./-]\d{1,2}[./-]\d{2,4})`)

// FindValidity returns the tariff validity date in ISO form, or "" when
// the text names none. Unparseable dates pass through unchanged.
func FindValidity(text string) string {
	m := validityPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return normalize.ParseDate(m[1])
}

// costFormats maps ancillary fee keys to their markers, in output order.
// The fee amount may carry a mangled currency prefix: scanned rate sheets
// lose the first letter of USD ("SD 30"), DECLARATION and REGISTRATION the
// same way.
var costFormats = []struct {
	key string
	re  *regexp.Regexp
}{
	{tariff.CostCBX, mustPattern(`(?:СВХ|CBX|раскредитаци[а-яё]*){COSTSEP}({NUMSP})`)},
	{tariff.CostTerminalHandling, mustPattern(`(?:терминальн[а-яё]*\s+обработк[а-яё]*|terminal\s+handling){COSTSEP}({NUMSP})`)},
	{tariff.CostAutoPickup, mustPattern(`(?:автовывоз[а-яё]*|auto\s+pickup){COSTSEP}({NUMSP})`)},
	{tariff.CostSecurity, mustPattern(`(?:охран[а-яё]*|security){COSTSEP}({NUMSP})`)},
	{tariff.CostPrecarriage, mustPattern(`(?:прекерридж[а-яё]*|pre[\s-]?carriage){COSTSEP}({NUMSP})`)},
	{tariff.CostCarParking, mustPattern(`(?:car\s*parking|gate\s*fee|parking|стоянк[а-яё]*|парковк[а-яё]*){COSTSEP}({NUMSP})`)},
	{tariff.CostHandling, mustPattern(`(?:handling(?:\s*fee)?|обработк[а-яё]*|перегрузк[а-яё]*){COSTSEP}({NUMSP})`)},
	{tariff.CostDeclaration, mustPattern(`(?:d?eclaration(?:\s*fee)?|декларировани[а-яё]*|таможн[а-яё]*){COSTSEP}({NUMSP})`)},
	{tariff.CostRegistration, mustPattern(`(?:r?egistration(?:\s*fee)?|регистраци[а-яё]*|оформлени[а-яё]*){COSTSEP}({NUMSP})`)},
}

// FindCosts extracts known ancillary fees from text. Keys are claimed in
// output order and each text span feeds at most one key, so "terminal
// handling 50" never leaks into the plain handling fee. Unrecognized fee
// names are dropped.
func FindCosts(text string) map[string]float64 {
	costs := make(map[string]float64)
	var claimed [][2]int

	for _, cf := range costFormats {
		for _, idx := range cf.re.FindAllStringSubmatchIndex(text, -1) {
			if overlapsAny(claimed, idx[0], idx[1]) {
				continue
			}
			value, ok := normalize.ParseNumber(text[idx[2]:idx[3]])
			if !ok {
				continue
			}
			costs[cf.key] = value
			claimed = append(claimed, [2]int{idx[0], idx[1]})
			break
		}
	}
	return costs
}

func overlapsAny(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// SplitTableRow splits a pipe-delimited table row into trimmed, non-empty
// cells. Returns nil for lines without a pipe.
func SplitTableRow(line string) []string {
	if !strings.Contains(line, "|") {
		return nil
	}
	var cells []string
	for _, c := range strings.Split(line, "|") {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return cells
}

// mustPattern expands {PLACEHOLDER} references against the global base
// patterns and compiles the result case-insensitively.
func mustPattern(pattern string) *regexp.Regexp {
	for name, regex := range BasePatterns {
		pattern = strings.ReplaceAll(pattern, "{"+name+"}", regex)
	}
	return regexp.MustCompile(`(?i)` + pattern)
}
