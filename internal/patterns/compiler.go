// Package patterns provides shared regex tables and the pattern compiler
// used by the extraction strategies.
// This file contains the grok-style pattern compiler.

package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Format represents a text format with named capture groups.
type Format struct {
	Name     string         // Format name for identification
	Pattern  string         // Pattern with {PLACEHOLDER} syntax
	Compiled *regexp.Regexp // Compiled regex (populated by Compile)
	Fields   []string       // Field names in capture order (for documentation)
}

// Compiler manages pattern compilation and matching for a set of formats.
type Compiler struct {
	basePatterns map[string]string
	formats      []Format
}

// NewCompiler creates a new pattern compiler with the given formats.
// It merges the provided base patterns with the global BasePatterns,
// allowing local patterns to override global ones.
func NewCompiler(formats []Format, localPatterns map[string]string) *Compiler {
	c := &Compiler{
		basePatterns: make(map[string]string),
		formats:      make([]Format, len(formats)),
	}

	// Copy global base patterns.
	for k, v := range BasePatterns {
		c.basePatterns[k] = v
	}

	// Overlay local patterns (can override global ones).
	for k, v := range localPatterns {
		c.basePatterns[k] = v
	}

	// Copy formats.
	copy(c.formats, formats)

	return c
}

// Compile expands all {PLACEHOLDER} references and compiles regexes.
// Patterns compile case-insensitive: document text mixes cases freely and
// uppercasing the input would break Cyrillic character classes.
func (c *Compiler) Compile() error {
	for i := range c.formats {
		expanded := c.expand(c.formats[i].Pattern)
		re, err := regexp.Compile(`(?i)` + expanded)
		if err != nil {
			return fmt.Errorf("format %s: %w", c.formats[i].Name, err)
		}
		c.formats[i].Compiled = re
	}
	return nil
}

// MustCompiler builds and compiles a Compiler, panicking on bad patterns.
// Pattern definitions are static configuration: a failure here is a
// programmer error caught at process start.
func MustCompiler(formats []Format, localPatterns map[string]string) *Compiler {
	c := NewCompiler(formats, localPatterns)
	if err := c.Compile(); err != nil {
		panic(err)
	}
	return c
}

// expand replaces {PLACEHOLDER} with actual regex patterns.
func (c *Compiler) expand(pattern string) string {
	result := pattern
	for name, regex := range c.basePatterns {
		placeholder := "{" + name + "}"
		result = strings.ReplaceAll(result, placeholder, regex)
	}
	return result
}

// Match represents a successful pattern match with extracted fields.
type Match struct {
	FormatName string            // Name of the matched format
	Captures   map[string]string // Named capture group values
}

// Span is a positioned occurrence of a format within a larger text.
// Start/End are byte offsets into the scanned text.
type Span struct {
	FormatName string
	Captures   map[string]string
	Start, End int
}

// Parse attempts to parse text using all compiled formats.
// Returns the first successful match, or nil if no format matches.
func (c *Compiler) Parse(text string) *Match {
	for _, format := range c.formats {
		if format.Compiled == nil {
			continue
		}

		match := format.Compiled.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		return &Match{
			FormatName: format.Name,
			Captures:   captures(format.Compiled, match),
		}
	}

	return nil
}

// CountMatching returns how many formats match text, out of the total
// format count. Used by the detector's confidence score.
func (c *Compiler) CountMatching(text string) (matched, total int) {
	for _, format := range c.formats {
		if format.Compiled == nil {
			continue
		}
		total++
		if format.Compiled.MatchString(text) {
			matched++
		}
	}
	return matched, total
}

// ScanAll finds every occurrence of every format in text, ordered by match
// position (then by format definition order for equal positions).
func (c *Compiler) ScanAll(text string) []Span {
	var spans []Span
	for _, format := range c.formats {
		spans = append(spans, c.scanFormat(text, &format)...)
	}
	sortSpans(spans)
	return spans
}

// ScanClaimed is ScanAll with overlap suppression: formats claim their
// matched text in definition order, and a span overlapping an earlier
// format's claim is dropped. Format tables scanned this way list specific
// formats before generic fallbacks, so a row read by a specific format is
// never re-read as something looser.
func (c *Compiler) ScanClaimed(text string) []Span {
	var spans []Span
	var claimed [][2]int
	for i := range c.formats {
		for _, sp := range c.scanFormat(text, &c.formats[i]) {
			if overlapsAny(claimed, sp.Start, sp.End) {
				continue
			}
			claimed = append(claimed, [2]int{sp.Start, sp.End})
			spans = append(spans, sp)
		}
	}
	sortSpans(spans)
	return spans
}

// Scan finds all occurrences of a single named format in text, in order.
func (c *Compiler) Scan(text, formatName string) []Span {
	for i := range c.formats {
		if c.formats[i].Name == formatName {
			return c.scanFormat(text, &c.formats[i])
		}
	}
	return nil
}

func (c *Compiler) scanFormat(text string, format *Format) []Span {
	if format.Compiled == nil {
		return nil
	}

	var spans []Span
	for _, idx := range format.Compiled.FindAllStringSubmatchIndex(text, -1) {
		caps := make(map[string]string)
		for i, name := range format.Compiled.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			if start := idx[2*i]; start >= 0 {
				caps[name] = text[start:idx[2*i+1]]
			}
		}
		spans = append(spans, Span{
			FormatName: format.Name,
			Captures:   caps,
			Start:      idx[0],
			End:        idx[1],
		})
	}
	return spans
}

func sortSpans(spans []Span) {
	// Insertion sort keeps the per-format order stable; span lists are short.
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].Start < spans[j-1].Start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
}

func captures(re *regexp.Regexp, match []string) map[string]string {
	caps := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		caps[name] = match[i]
	}
	return caps
}

// GetCapture is a helper to safely get a capture value with a default.
func (m *Match) GetCapture(name string, defaultVal string) string {
	if m == nil {
		return defaultVal
	}
	if val, ok := m.Captures[name]; ok && val != "" {
		return val
	}
	return defaultVal
}

// GetCapture returns a named capture from the span, or the default.
func (s *Span) GetCapture(name string, defaultVal string) string {
	if s == nil {
		return defaultVal
	}
	if val, ok := s.Captures[name]; ok && val != "" {
		return val
	}
	return defaultVal
}

// FormatTrace contains debug information about a format match attempt.
type FormatTrace struct {
	Name     string            // Format name
	Matched  bool              // Whether the pattern matched
	Pattern  string            // The expanded regex pattern
	Captures map[string]string // Captured groups (if matched)
}

// TraceAll reports the match outcome of every format against text. This
// backs the detect command's per-pattern output.
func (c *Compiler) TraceAll(text string) []FormatTrace {
	traces := make([]FormatTrace, 0, len(c.formats))

	for _, format := range c.formats {
		ft := FormatTrace{
			Name:    format.Name,
			Pattern: c.expand(format.Pattern),
		}

		if format.Compiled == nil {
			traces = append(traces, ft)
			continue
		}

		if match := format.Compiled.FindStringSubmatch(text); match != nil {
			ft.Matched = true
			ft.Captures = captures(format.Compiled, match)
		}
		traces = append(traces, ft)
	}

	return traces
}
