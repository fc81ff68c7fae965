package document

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Decode turns one feed line into documents. It autodetects the formats
// seen in practice:
//  1. NATS intake wrapper: {"document":{...},"sender":{...},...}
//  2. Flat document:       {"text":"...","supplier":"...",...}
//  3. Mail-gateway export: body and attachments nested under "mail".
//
// The second return value names the matched format ("nats", "flat",
// "nested"), or "" when the line carried no usable text.
func Decode(b []byte) ([]*Document, string) {
	// 1) NATS wrapper
	var w NATSWrapper
	if err := json.Unmarshal(b, &w); err == nil && w.Document != nil {
		if doc := w.ToDocument(); doc != nil && strings.TrimSpace(doc.Text) != "" {
			return []*Document{doc}, "nats"
		}
	}

	// 2) Flat document (only accept if it actually carries text)
	var d Document
	if err := json.Unmarshal(b, &d); err == nil {
		if strings.TrimSpace(d.Text) != "" {
			return []*Document{&d}, "flat"
		}
	}

	// 3) Nested gateway exports
	var anyObj any
	if err := json.Unmarshal(b, &anyObj); err != nil {
		return nil, ""
	}
	docs := buildFromNested(anyObj)
	if len(docs) > 0 {
		return docs, "nested"
	}
	return nil, ""
}

// buildFromNested tries common paths used by mail-gateway and upload
// service exports. It returns one document per text-bearing part: the
// mail body first, then every attachment with an extracted text layer.
func buildFromNested(obj any) []*Document {
	root, ok := obj.(map[string]any)
	if !ok {
		return nil
	}

	supplier := firstString(root,
		"supplier",
		"mail.from.company",
		"mail.from.name",
		"sender.company",
		"upload.company",
	)
	hint := firstString(root,
		"transport_hint",
		"mail.transport_hint",
		"upload.transport_hint",
	)
	source := firstString(root,
		"source",
		"mail.gateway",
		"upload.service",
		"app.name",
	)
	ts := firstString(root,
		"received_at",
		"mail.date",
		"upload.date",
	)
	// If no timestamp string, try epoch seconds found in gateway exports.
	if ts == "" {
		if sec := firstInt64(root, "received_ts", "mail.ts", "upload.ts"); sec > 0 {
			ts = time.Unix(sec, 0).UTC().Format(time.RFC3339)
		}
	}

	var docs []*Document

	body := firstString(root,
		"body",
		"mail.text",
		"mail.body",
		"mail.body.text",
		"upload.text",
	)
	if strings.TrimSpace(body) != "" {
		docs = append(docs, &Document{
			Source:        source,
			ReceivedAt:    ts,
			Supplier:      supplier,
			TransportHint: hint,
			Text:          body,
		})
	}

	// Attachments with extracted text become documents of their own.
	for _, att := range attachmentList(root) {
		text := firstString(att, "text", "content", "ocr.text")
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, &Document{
			Source:        source,
			ReceivedAt:    ts,
			Supplier:      supplier,
			TransportHint: hint,
			Text:          text,
			FileName:      firstString(att, "name", "file_name"),
		})
	}

	return docs
}

func attachmentList(root map[string]any) []map[string]any {
	for _, path := range []string{"attachments", "mail.attachments", "upload.attachments"} {
		v, ok := deepGet(root, path)
		if !ok {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]map[string]any, 0, len(arr))
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func firstString(root map[string]any, paths ...string) string {
	for _, p := range paths {
		if v, ok := deepGet(root, p); ok {
			switch t := v.(type) {
			case string:
				if strings.TrimSpace(t) != "" {
					return t
				}
			case float64:
				// Some gateways send numeric company IDs; keep digits.
				if t == float64(int64(t)) {
					return strconv.FormatInt(int64(t), 10)
				}
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}

func firstInt64(root map[string]any, paths ...string) int64 {
	for _, p := range paths {
		if v, ok := deepGet(root, p); ok {
			switch t := v.(type) {
			case float64:
				return int64(t)
			case string:
				if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
					return i
				}
			}
		}
	}
	return 0
}

// deepGet walks a map[string]any using a dotted path: "a.b.c".
func deepGet(root map[string]any, dotted string) (any, bool) {
	parts := strings.Split(dotted, ".")
	var cur any = root
	for _, part := range parts {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}
