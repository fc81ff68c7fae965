// Package places resolves noisy city mentions from rate sheets to
// canonical place names. The resolver is backed by an ordered city
// table (embedded by default, loadable from YAML) and tolerates
// Russian and English spellings, IATA and rate-sheet codes, OCR
// damage and surrounding junk.
package places

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed data/cities.yaml
var defaultTable []byte

// Place is a resolved city with its country. Country is empty when the
// city was accepted as plausible free text rather than matched against
// the table.
type Place struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Entry is one row of the city table.
type Entry struct {
	City     string   `yaml:"city"`
	Country  string   `yaml:"country"`
	Variants []string `yaml:"variants"`
	Codes    []string `yaml:"codes"`
}

// Table is an ordered list of city entries. Order matters: the
// substring pass returns the first entry that matches.
type Table struct {
	Cities []Entry `yaml:"cities"`
}

// ParseTable decodes a YAML city table and validates it.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse city table: %w", err)
	}
	if len(t.Cities) == 0 {
		return nil, fmt.Errorf("city table is empty")
	}
	for i, e := range t.Cities {
		if e.City == "" {
			return nil, fmt.Errorf("city table entry %d: missing city name", i)
		}
		if e.Country == "" {
			return nil, fmt.Errorf("city table entry %d (%s): missing country", i, e.City)
		}
	}
	return &t, nil
}

// LoadTableFile reads a city table from a YAML file.
func LoadTableFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read city table: %w", err)
	}
	return ParseTable(data)
}

// Resolver matches raw city text against a Table.
type Resolver struct {
	entries []Entry
	keys    [][]string // folded names and variants, aligned with entries
	byExact map[string]int
	byCode  map[string]int
}

// NewResolver builds lookup indexes over a table.
func NewResolver(t *Table) *Resolver {
	r := &Resolver{
		entries: t.Cities,
		keys:    make([][]string, 0, len(t.Cities)),
		byExact: make(map[string]int),
		byCode:  make(map[string]int),
	}
	for i, e := range t.Cities {
		names := make([]string, 0, len(e.Variants)+1)
		names = append(names, e.City)
		names = append(names, e.Variants...)

		keys := make([]string, 0, len(names))
		for _, name := range names {
			k := fold(name)
			keys = append(keys, k)
			if _, ok := r.byExact[k]; !ok {
				r.byExact[k] = i
			}
		}
		r.keys = append(r.keys, keys)

		for _, c := range e.Codes {
			u := strings.ToUpper(c)
			if _, ok := r.byCode[u]; !ok {
				r.byCode[u] = i
			}
		}
	}
	return r
}

// DefaultResolver builds a resolver over the embedded city table.
func DefaultResolver() (*Resolver, error) {
	t, err := ParseTable(defaultTable)
	if err != nil {
		return nil, err
	}
	return NewResolver(t), nil
}

var (
	// \w is ASCII-only in Go regexps, so the junk classes are spelled
	// with Unicode letter and digit properties.
	junkChars   = regexp.MustCompile(`[^\p{L}\p{N}\s\-.]`)
	strippable  = regexp.MustCompile(`[^\p{L}\p{N}\s\-.]+`)
	spaceRun    = regexp.MustCompile(`\s+`)
	contextWord = regexp.MustCompile(`(?i)\b(?:truck|transportation|from|to|port|terminal|station)\b`)
)

// Words that disqualify a string from being used as a city name on the
// passthrough path. Matched by containment against the lowered text.
var citySkipWords = []string{
	"factory", "destination", "without", "reloading", "please", "recheck",
	"case", "above", "quotation", "assumed", "carriage", "costs",
	"overweight", "tarpaulin", "truck", "ce", "pol", "pod", "fcl", "ltl",
	"ftl", "sea", "air", "rail", "auto", "морской", "авиа", "жд", "авто",
	"port", "terminal", "05", "com",
}

// Rate-sheet noise vocabulary. A route whose endpoints accumulate more
// than two of these is header or fee text, not a lane; a bare term on
// its own ("20GP", "kg") is never a city.
var noiseTerms = []string{
	"pol", "pod", "20gp", "40gp", "kg", "min", "usd", "bl", "fee", "set",
	"pick", "gate", "handling", "declaration", "registration", "parking",
	"cases", "shpt", "price", "case", "by", "car", "sd", "if", "nee",
	"occurs", "igkong", "hongkon",
}

var noiseTermSet = func() map[string]bool {
	m := make(map[string]bool, len(noiseTerms))
	for _, t := range noiseTerms {
		m[t] = true
	}
	return m
}()

// Token-level fixes for OCR shapes that appear in real sheets. Keys and
// values are folded.
var ocrCorrections = map[string]string{
	"svo1":        "svo",
	"vwvo":        "vvo",
	"ууо":         "vvo",
	"hongkong":    "hong kong",
	"viadivostok": "vladivostok",
	"urumai":      "urumqi",
	"urungi":      "urumqi",
}

// Lookup resolves raw text strictly against the table: exact name or
// variant, code, then ordered substring in both directions. It reports
// false when the table has no match.
func (r *Resolver) Lookup(raw string) (Place, bool) {
	q := r.query(raw)
	if utf8.RuneCountInString(q) < 2 {
		return Place{}, false
	}
	if i, ok := r.byExact[q]; ok {
		return r.place(i), true
	}
	if i, ok := r.byCode[strings.ToUpper(q)]; ok {
		return r.place(i), true
	}
	qLong := utf8.RuneCountInString(q) >= 4
	for i, keys := range r.keys {
		for _, k := range keys {
			if utf8.RuneCountInString(k) >= 4 && strings.Contains(q, k) {
				return r.place(i), true
			}
			if qLong && strings.Contains(k, q) {
				return r.place(i), true
			}
		}
	}
	return Place{}, false
}

// Resolve is Lookup with a passthrough fallback: text the table does
// not know is still accepted as a city when it survives CleanCity and
// contains at least one letter. Passthrough places carry no country.
func (r *Resolver) Resolve(raw string) (Place, bool) {
	if p, ok := r.Lookup(raw); ok {
		return p, true
	}
	c := CleanCity(raw)
	if c == "" {
		return Place{}, false
	}
	if strings.IndexFunc(c, unicode.IsLetter) < 0 {
		return Place{}, false
	}
	return Place{City: titleCase(c)}, true
}

func (r *Resolver) place(i int) Place {
	e := r.entries[i]
	return Place{City: e.City, Country: e.Country}
}

// query normalizes raw text for table lookup: junk characters become
// spaces, filler words like "port" and "terminal" are dropped, the
// result is folded and OCR-corrected token by token.
func (r *Resolver) query(raw string) string {
	s := junkChars.ReplaceAllString(strings.TrimSpace(raw), " ")
	s = contextWord.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	s = fold(s)
	if s == "" {
		return ""
	}
	tokens := strings.Fields(s)
	changed := false
	for i, tok := range tokens {
		if fix, ok := ocrCorrections[tok]; ok {
			tokens[i] = fix
			changed = true
		}
	}
	if changed {
		s = strings.Join(tokens, " ")
	}
	return s
}

// CleanCity prepares free text for use as a city name. It rejects
// strings containing rate-sheet vocabulary or consisting of a bare
// noise term, strips junk characters and enforces a 2..50 rune length.
// The empty string means rejected.
func CleanCity(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	for _, w := range citySkipWords {
		if strings.Contains(lower, w) {
			return ""
		}
	}
	s = strippable.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	if n := utf8.RuneCountInString(s); n < 2 || n > 50 {
		return ""
	}
	if noiseTermSet[fold(s)] {
		return ""
	}
	return s
}

// Noisy reports whether a city name accumulates enough rate-sheet
// noise vocabulary to be header or fee text rather than a place.
func Noisy(name string) bool {
	lower := fold(name)
	hits := 0
	for _, t := range noiseTerms {
		if strings.Contains(lower, t) {
			hits++
			if hits > 2 {
				return true
			}
		}
	}
	return false
}

// fold lowercases and strips combining marks so that accented Latin
// and decomposed Cyrillic (ё, й) compare equal on both sides.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
