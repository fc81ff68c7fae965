package document

import (
	"encoding/json"
	"testing"
)

func TestFlexInt64_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FlexInt64
	}{
		{"integer", `123`, 123},
		{"string number", `"456"`, 456},
		{"empty string", `""`, 0},
		{"negative integer", `-100`, -100},
		{"zero", `0`, 0},
		{"invalid string", `"not a number"`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexInt64
			err := json.Unmarshal([]byte(tt.input), &got)
			if err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FlexInt64 = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNATSWrapper_ToDocument(t *testing.T) {
	t.Run("nil document", func(t *testing.T) {
		w := &NATSWrapper{}
		doc := w.ToDocument()
		if doc != nil {
			t.Errorf("expected nil, got %+v", doc)
		}
	})

	t.Run("basic conversion", func(t *testing.T) {
		w := &NATSWrapper{
			Source: &NATSSource{Name: "mail-gateway", Application: "imap-poller"},
			Document: &NATSInner{
				ID:            123,
				ReceivedAt:    "2025-11-02T08:15:00Z",
				Supplier:      "ACME Logistics",
				TransportHint: "auto",
				Text:          "EXW Shanghai - Moscow: $9500 per truck",
			},
		}

		doc := w.ToDocument()
		if doc == nil {
			t.Fatal("expected document, got nil")
		}
		if doc.ID != 123 {
			t.Errorf("ID = %d, want 123", doc.ID)
		}
		if doc.Source != "mail-gateway" {
			t.Errorf("Source = %s, want mail-gateway", doc.Source)
		}
		if doc.Supplier != "ACME Logistics" {
			t.Errorf("Supplier = %s, want ACME Logistics", doc.Supplier)
		}
		if doc.TransportHint != "auto" {
			t.Errorf("TransportHint = %s, want auto", doc.TransportHint)
		}
	})

	t.Run("supplier from sender", func(t *testing.T) {
		w := &NATSWrapper{
			Sender: &Sender{
				Name:    "Li Wei",
				Email:   "rates@pacific-lines.example",
				Company: "Pacific Lines",
			},
			Document: &NATSInner{
				ID:   456,
				Text: "Ningbo - Rotterdam FCL 2500 USD",
			},
		}

		doc := w.ToDocument()
		if doc == nil {
			t.Fatal("expected document, got nil")
		}
		if doc.Supplier != "Pacific Lines" {
			t.Errorf("Supplier = %s, want Pacific Lines (from sender)", doc.Supplier)
		}
		if doc.Sender == nil {
			t.Error("Sender should be populated")
		}
	})

	t.Run("file name from attachment", func(t *testing.T) {
		w := &NATSWrapper{
			Attachment: &Attachment{Name: "rates_q4.xlsx", Sheet: "FTL"},
			Document: &NATSInner{
				ID:   789,
				Text: "EXW Yiwu - Moscow: $11000",
			},
		}

		doc := w.ToDocument()
		if doc == nil {
			t.Fatal("expected document, got nil")
		}
		if doc.FileName != "rates_q4.xlsx" {
			t.Errorf("FileName = %s, want rates_q4.xlsx", doc.FileName)
		}
		if doc.Attachment == nil || doc.Attachment.Sheet != "FTL" {
			t.Errorf("Attachment = %+v, want sheet FTL", doc.Attachment)
		}
	})
}

func TestDecode(t *testing.T) {
	t.Run("nats wrapper", func(t *testing.T) {
		line := `{"source":{"name":"mail-gateway"},"sender":{"company":"ACME Logistics"},"document":{"id":"123","text":"EXW Shanghai - Moscow: $9500 per truck","transport_hint":"auto"}}`
		docs, kind := Decode([]byte(line))
		if kind != "nats" {
			t.Fatalf("kind = %q, want nats", kind)
		}
		if len(docs) != 1 {
			t.Fatalf("got %d documents, want 1", len(docs))
		}
		if docs[0].ID != 123 {
			t.Errorf("ID = %d, want 123 (string coerced)", docs[0].ID)
		}
		if docs[0].Supplier != "ACME Logistics" {
			t.Errorf("Supplier = %s, want ACME Logistics", docs[0].Supplier)
		}
	})

	t.Run("flat document", func(t *testing.T) {
		line := `{"id":7,"text":"Москва - Казань 15000 руб","supplier":"ТрансКо"}`
		docs, kind := Decode([]byte(line))
		if kind != "flat" {
			t.Fatalf("kind = %q, want flat", kind)
		}
		if len(docs) != 1 {
			t.Fatalf("got %d documents, want 1", len(docs))
		}
		if docs[0].ID != 7 {
			t.Errorf("ID = %d, want 7", docs[0].ID)
		}
		if docs[0].Supplier != "ТрансКо" {
			t.Errorf("Supplier = %s, want ТрансКо", docs[0].Supplier)
		}
	})

	t.Run("nested mail body", func(t *testing.T) {
		line := `{"source":"imap","mail":{"from":{"company":"Pacific Lines"},"date":"2025-11-02","body":"Ningbo - Rotterdam FCL 2500 USD"}}`
		docs, kind := Decode([]byte(line))
		if kind != "nested" {
			t.Fatalf("kind = %q, want nested", kind)
		}
		if len(docs) != 1 {
			t.Fatalf("got %d documents, want 1", len(docs))
		}
		if docs[0].Supplier != "Pacific Lines" {
			t.Errorf("Supplier = %s, want Pacific Lines", docs[0].Supplier)
		}
		if docs[0].ReceivedAt != "2025-11-02" {
			t.Errorf("ReceivedAt = %s, want 2025-11-02", docs[0].ReceivedAt)
		}
		if docs[0].Source != "imap" {
			t.Errorf("Source = %s, want imap", docs[0].Source)
		}
	})

	t.Run("nested attachments", func(t *testing.T) {
		line := `{"mail":{"from":{"company":"Pacific Lines"},"body":"rates attached","attachments":[{"name":"rates.xlsx","text":"SHA - MOW | 2500"},{"name":"logo.png"}]}}`
		docs, kind := Decode([]byte(line))
		if kind != "nested" {
			t.Fatalf("kind = %q, want nested", kind)
		}
		// Body first, then the one attachment that carries text.
		if len(docs) != 2 {
			t.Fatalf("got %d documents, want 2", len(docs))
		}
		if docs[0].Text != "rates attached" {
			t.Errorf("docs[0].Text = %q, want mail body", docs[0].Text)
		}
		if docs[1].FileName != "rates.xlsx" {
			t.Errorf("docs[1].FileName = %s, want rates.xlsx", docs[1].FileName)
		}
		if docs[1].Supplier != "Pacific Lines" {
			t.Errorf("docs[1].Supplier = %s, want Pacific Lines", docs[1].Supplier)
		}
	})

	t.Run("epoch timestamp", func(t *testing.T) {
		line := `{"mail":{"ts":1735689600,"body":"тариф 100 USD"}}`
		docs, kind := Decode([]byte(line))
		if kind != "nested" || len(docs) != 1 {
			t.Fatalf("kind = %q docs = %d, want nested/1", kind, len(docs))
		}
		if docs[0].ReceivedAt != "2025-01-01T00:00:00Z" {
			t.Errorf("ReceivedAt = %s, want 2025-01-01T00:00:00Z", docs[0].ReceivedAt)
		}
	})

	t.Run("no usable text", func(t *testing.T) {
		for _, line := range []string{
			`{"document":{"id":1,"text":"  "}}`,
			`{"text":"   "}`,
			`{}`,
			`not json`,
		} {
			docs, kind := Decode([]byte(line))
			if len(docs) != 0 || kind != "" {
				t.Errorf("Decode(%q) = %d docs kind %q, want none", line, len(docs), kind)
			}
		}
	})
}
