// Package document provides inbound tariff document types.
//
// A document is one unit of raw text to run extraction on: a pasted
// message, an email body, or the extracted text layer of an attachment.
// Upstream feeds wrap it differently (flat JSON, NATS envelope,
// mail-gateway exports), so the decoder here normalizes all of them
// into Document.
package document

import (
	"encoding/json"
	"strconv"
)

// FlexInt64 handles JSON fields that can be either string or number.
// Mail gateways disagree on whether document IDs are numeric.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	// Try as number first
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	// Try as string
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable IDs
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// Document represents one inbound text to extract tariffs from.
// This can be populated directly from flat JSON or extracted from NATSWrapper.
type Document struct {
	ID         FlexInt64 `json:"id"`
	Source     string    `json:"source"`
	ReceivedAt string    `json:"received_at"`
	Supplier   string    `json:"supplier"`
	Text       string    `json:"text"`

	// TransportHint pins the extraction strategy: auto|air|sea|rail|multimodal.
	// Empty means detect from the text.
	TransportHint string `json:"transport_hint,omitempty"`
	FileName      string `json:"file_name,omitempty"`

	// These may be present in the document itself (old format) or at wrapper level (NATS)
	Sender     *Sender     `json:"sender,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Sender identifies who mailed or uploaded the document.
type Sender struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

// Attachment describes the file the text layer was pulled from.
type Attachment struct {
	Name  string `json:"name,omitempty"`
	MIME  string `json:"mime,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Sheet string `json:"sheet,omitempty"` // spreadsheet tab, when the text came from one
	Pages int    `json:"pages,omitempty"`
}

// NATSWrapper represents the intake feed format where the document is
// nested inside a "document" field with metadata at the top level.
type NATSWrapper struct {
	Source     *NATSSource `json:"source,omitempty"`
	Sender     *Sender     `json:"sender,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Document   *NATSInner  `json:"document,omitempty"`
}

// NATSSource contains source metadata from the intake feed.
type NATSSource struct {
	Name        string `json:"name,omitempty"`
	Application string `json:"application,omitempty"`
}

// NATSInner is the inner document structure from the intake feed.
type NATSInner struct {
	ID            FlexInt64 `json:"id"`
	ReceivedAt    string    `json:"received_at"`
	Supplier      string    `json:"supplier,omitempty"`
	TransportHint string    `json:"transport_hint,omitempty"`
	Text          string    `json:"text"`
	FileName      string    `json:"file_name,omitempty"`
}

// ToDocument converts a NATSWrapper to a unified Document.
func (w *NATSWrapper) ToDocument() *Document {
	if w.Document == nil {
		return nil
	}

	doc := &Document{
		ID:            w.Document.ID,
		ReceivedAt:    w.Document.ReceivedAt,
		Supplier:      w.Document.Supplier,
		TransportHint: w.Document.TransportHint,
		Text:          w.Document.Text,
		FileName:      w.Document.FileName,
		Sender:        w.Sender,
		Attachment:    w.Attachment,
	}
	if w.Source != nil {
		doc.Source = w.Source.Name
	}

	// Use company from sender if the document carries no supplier
	if doc.Supplier == "" && w.Sender != nil {
		doc.Supplier = w.Sender.Company
	}
	if doc.FileName == "" && w.Attachment != nil {
		doc.FileName = w.Attachment.Name
	}

	return doc
}
