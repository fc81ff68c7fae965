// Command-line entry point for the tariff extraction engine.
//
// Note about input formats
// ------------------------
// The engine expects a "document.Document" with at least a text field.
// In the real world, you may have any of these inputs:
//  1. NATS feed wrapper: {"document":{...}, "sender":{...}, ...}
//  2. Flat document:     {"text":"...","supplier":"...", ...}
//  3. Gateway exports:   mail body and attachments nested under "mail".
//
// This CLI tries to autodetect all three. Use -all to keep documents
// even if extraction produced no candidates.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"tariff_parser/internal/document"
	"tariff_parser/internal/extractor"
	"tariff_parser/internal/registry"
	"tariff_parser/internal/tariff"
)

// ExtractOut is one output line of the extract command.
type ExtractOut struct {
	DocumentID int64              `json:"document_id,omitempty"`
	Supplier   string             `json:"supplier,omitempty"`
	FileName   string             `json:"file_name,omitempty"`
	Candidates []tariff.Candidate `json:"candidates"`
}

// DetectOut is one output line of the detect command.
type DetectOut struct {
	DocumentID int64        `json:"document_id,omitempty"`
	Selected   string       `json:"selected"`
	Scores     []ScoreEntry `json:"scores"`
}

// ScoreEntry is one strategy's detection score.
type ScoreEntry struct {
	Name       string  `json:"name"`
	Transport  string  `json:"transport"`
	Matched    int     `json:"matched"`
	Total      int     `json:"total"`
	Confidence float64 `json:"confidence"`
	Selected   bool    `json:"selected"`
}

type Stats struct {
	Lines        int
	ParsedNATS   int
	ParsedFlat   int
	ParsedNested int
	SkippedEmpty int
	Documents    int
	Emitted      int
	Candidates   int
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "tariff_parser - commands:")
	fmt.Fprintln(w, "  extract  - run tariff extraction over JSONL documents")
	fmt.Fprintln(w, "  detect   - report strategy detection scores per document")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tariff_parser extract -input docs.jsonl [-output out.jsonl] [-all] [-stats] [-cities table.yaml]")
	fmt.Fprintln(w, "  tariff_parser detect  -input docs.jsonl [-output out.jsonl]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Input must be JSONL (one JSON object per line); stdin when -input is omitted.")
	fmt.Fprintln(w, "  - NATS wrappers, flat documents and mail-gateway exports are autodetected.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "extract":
		runExtract(os.Args[2:])
	case "detect":
		runDetect(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	outPath := fs.String("output", "", "Output JSONL file (default: stdout)")
	includeAll := fs.Bool("all", false, "Include documents even if extraction produced nothing")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	maxCandidates := fs.Int("max", 0, "Candidate cap per document (default: engine default)")
	cityTable := fs.String("cities", "", "City table YAML overriding the embedded one")
	_ = fs.Parse(args)

	engine, err := extractor.New(extractor.Config{
		MaxCandidates: *maxCandidates,
		CityTablePath: *cityTable,
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Engine init error: %v\n", err)
		os.Exit(1)
	}

	st := &Stats{}
	wout, closeOut := openOutput(*outPath)
	defer closeOut()
	enc := json.NewEncoder(wout)

	forEachDocument(*inPath, st, func(doc *document.Document) {
		candidates := engine.Extract(doc.Text, extractor.Options{
			TransportHint: doc.TransportHint,
			Supplier:      doc.Supplier,
		})
		st.Candidates += len(candidates)
		if len(candidates) == 0 && !*includeAll {
			return
		}
		if candidates == nil {
			candidates = []tariff.Candidate{}
		}
		out := ExtractOut{
			DocumentID: int64(doc.ID),
			Supplier:   doc.Supplier,
			FileName:   doc.FileName,
			Candidates: candidates,
		}
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
			os.Exit(1)
		}
		st.Emitted++
	})

	if *showStats {
		fmt.Fprintf(os.Stderr,
			"stats: lines=%d parsed(nats=%d flat=%d nested=%d) skipped(no_text)=%d documents=%d emitted=%d candidates=%d\n",
			st.Lines, st.ParsedNATS, st.ParsedFlat, st.ParsedNested, st.SkippedEmpty, st.Documents, st.Emitted, st.Candidates,
		)
	}
}

func runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	outPath := fs.String("output", "", "Output JSONL file (default: stdout)")
	_ = fs.Parse(args)

	reg := registry.Default()
	st := &Stats{}
	wout, closeOut := openOutput(*outPath)
	defer closeOut()
	enc := json.NewEncoder(wout)

	forEachDocument(*inPath, st, func(doc *document.Document) {
		best, traces := reg.DetectWithTrace(doc.Text)
		out := DetectOut{
			DocumentID: int64(doc.ID),
			Selected:   best.Name,
		}
		for _, tr := range traces {
			out.Scores = append(out.Scores, ScoreEntry{
				Name:       tr.Name,
				Transport:  string(tr.Transport),
				Matched:    tr.Matched,
				Total:      tr.Total,
				Confidence: tr.Confidence,
				Selected:   tr.Selected,
			})
		}
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
			os.Exit(1)
		}
		st.Emitted++
	})
}

// forEachDocument streams a JSONL input, decoding every line into
// documents and invoking fn per document.
func forEachDocument(inPath string, st *Stats, fn func(*document.Document)) {
	var r io.Reader = os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	// JSON lines can be long; bump buffer (60MB).
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 60*1024*1024)

	for scanner.Scan() {
		st.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		docs, kind := document.Decode([]byte(line))
		if len(docs) == 0 {
			st.SkippedEmpty++
			continue
		}
		switch kind {
		case "nats":
			st.ParsedNATS++
		case "flat":
			st.ParsedFlat++
		case "nested":
			st.ParsedNested++
		}

		for _, doc := range docs {
			if doc == nil || strings.TrimSpace(doc.Text) == "" {
				continue
			}
			st.Documents++
			fn(doc)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}
}

func openOutput(path string) (io.Writer, func()) {
	if path == "" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
		os.Exit(1)
	}
	return f, func() { _ = f.Close() }
}
