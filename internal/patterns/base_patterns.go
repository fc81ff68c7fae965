// Package patterns provides shared regex tables and the pattern compiler
// used by the extraction strategies.
// This file contains grok-style base patterns for use with the Compiler.

package patterns

// BasePatterns defines reusable regex components for grok-style pattern
// composition. These are referenced in format patterns using {PATTERN_NAME}
// syntax.
//
// Word boundaries (\b) are ASCII-only in Go regexps, so Cyrillic fragments
// never rely on them; keyword fragments accept suffix letters explicitly
// instead (руб -> рубль/рублей).
var BasePatterns = map[string]string{
	// Numbers. NUM allows a decimal part, NUMSP additionally allows spaced
	// or comma-grouped thousands as they appear in CNY quotes ("78 600").
	"NUM":   `\d+(?:[.,]\d+)?`,
	"NUMSP": `\d+(?:[ ,]\d{3})*(?:[.,]\d+)?`,

	// Route separators: hyphen, dashes and an arrow, with optional spacing.
	"SEP": `\s*[-–—→]\s*`,

	// Unicode-aware word boundaries for Cyrillic keywords. \b only sees
	// ASCII word characters, so "авто\b" would never match; these consume
	// or anchor a non-letter instead.
	"BL": `(?:^|[^\p{L}\p{N}_])`,
	"BR": `(?:[^\p{L}\p{N}_]|$)`,

	// Three-letter airport/station code; the EXT variant tolerates a glued
	// tail segment from OCR ("HKG-XIY-SVO1"). Formats compile with (?i) for
	// the Cyrillic keywords, so codes opt back into case sensitivity: three
	// lowercase letters are a word, not a code.
	"CODE3":    `(?-i:[A-Z]{3})`,
	"CODE3EXT": `(?-i:[A-Z]{3}(?:-[A-Z0-9]+)?)`,

	// Currency markers by tier. Explicit ISO codes and symbols outrank
	// localized words when both appear.
	"CUR_USD":      `(?:USD|\$)`,
	"CUR_USD_WORD": `(?:долл[а-яё]*|dollars?)`,
	"CUR_RUB":      `(?:RUB|₽)`,
	"CUR_RUB_WORD": `(?:руб[а-яё]*|r[ou]ubles?|rubles?)`,
	"CUR_CNY":      `(?:CNY|RMB|¥)`,
	"CUR_CNY_WORD": `(?:юан[а-яё]*|yuan)`,

	// Separator between a fee name and its amount: punctuation plus an
	// optional currency token. OCR drops the U from USD ("SD 30").
	"COSTSEP": `[:\s-]*(?:USD|US|SD|\$)?\s*`,

	// Free-text city token: anything up to the next separator or line end.
	"CITY": `[^-–—→|\n]+?`,

	// Vehicle/flight token in air rate tables: "375/shpt", "D1357", "MU208".
	"FLIGHT": `(?-i:[A-Z]{0,2}\d+(?:/\w+)?)`,
}
