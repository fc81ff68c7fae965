package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"tariff_parser/internal/extractor"
	"tariff_parser/internal/storage"
)

func testEngine(t *testing.T) *extractor.Engine {
	t.Helper()
	e, err := extractor.New(extractor.Config{}, nil)
	if err != nil {
		t.Fatalf("extractor.New() error = %v", err)
	}
	return e
}

func testReviewDB(t *testing.T) *storage.ReviewDB {
	t.Helper()
	db, err := storage.OpenReview(filepath.Join(t.TempDir(), "review.db"))
	if err != nil {
		t.Fatalf("OpenReview() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(nil, nil, nil, Config{Port: 8081})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	server := NewServer(nil, nil, nil, Config{
		Port:        8081,
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})
	router := server.Router()

	tests := []struct {
		name       string
		apiKey     string
		bearer     string
		query      string
		wantStatus int
	}{
		{
			name:       "no key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			apiKey:     "wrong-key",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "valid header key",
			apiKey:     "test-key-123",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer key",
			bearer:     "another-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid query key",
			query:      "?api_key=test-key-123",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health"+tt.query, nil)
			if tt.apiKey != "" {
				req.Header.Set("X-API-Key", tt.apiKey)
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestExtractEndpoint(t *testing.T) {
	server := NewServer(testEngine(t), nil, nil, Config{Port: 8081})
	router := server.Router()

	body, _ := json.Marshal(ExtractRequest{
		Text:          "EXW Shenzhen/Guangzhou - Moscow - $9500 per truck",
		TransportHint: "auto",
		Supplier:      "ACME Logistics",
	})
	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ExtractResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Count != 2 || len(resp.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got count=%d len=%d", resp.Count, len(resp.Candidates))
	}
	if resp.Candidates[0].OriginCity != "Shenzhen" || resp.Candidates[1].OriginCity != "Guangzhou" {
		t.Errorf("origins = %s, %s, want Shenzhen, Guangzhou",
			resp.Candidates[0].OriginCity, resp.Candidates[1].OriginCity)
	}
	if resp.Candidates[0].Supplier != "ACME Logistics" {
		t.Errorf("supplier = %q, want ACME Logistics", resp.Candidates[0].Supplier)
	}
}

func TestExtractEndpointEmptyText(t *testing.T) {
	server := NewServer(testEngine(t), nil, nil, Config{Port: 8081})
	router := server.Router()

	body, _ := json.Marshal(ExtractRequest{Text: ""})
	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	// The engine contract is an empty list, not null and not an error.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(raw["candidates"]) != "[]" {
		t.Errorf("candidates = %s, want []", raw["candidates"])
	}
}

func TestExtractEndpointBadJSON(t *testing.T) {
	server := NewServer(testEngine(t), nil, nil, Config{Port: 8081})
	router := server.Router()

	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestDetectEndpoint(t *testing.T) {
	server := NewServer(testEngine(t), nil, nil, Config{Port: 8081})
	router := server.Router()

	body, _ := json.Marshal(DetectRequest{Text: "HKG-PEK D1357 8.90 5.50 4.85 4.57"})
	req := httptest.NewRequest(http.MethodPost, "/detect", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp DetectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Selected != "air_tariff" {
		t.Errorf("selected = %q, want air_tariff", resp.Selected)
	}
	if len(resp.Scores) != 5 {
		t.Errorf("got %d scores, want 5", len(resp.Scores))
	}
	var selected int
	for _, sc := range resp.Scores {
		if sc.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Errorf("%d scores marked selected, want 1", selected)
	}
}

func TestTariffEndpointsUnconfigured(t *testing.T) {
	server := NewServer(nil, nil, nil, Config{Port: 8081})
	router := server.Router()

	for _, path := range []string{"/tariffs", "/tariffs/stats", "/tariffs/1", "/tariffs/1/versions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, rec.Code)
		}
	}
}

func TestReviewQueueWorkflow(t *testing.T) {
	rq := testReviewDB(t)
	server := NewServer(nil, nil, rq, Config{Port: 8081})
	router := server.Router()

	id, err := rq.Enqueue(storage.EnqueueParams{
		DocumentID: 42,
		ReceivedAt: "2025-11-03T10:00:00Z",
		Supplier:   "ACME Logistics",
		Strategy:   "ftl_tariff",
		Transport:  "auto",
		OriginCity: "Shenzhen", DestinationCity: "Moscow",
		RawText:    "EXW Shenzhen - Moscow - $9500 per truck",
		Candidates: []map[string]any{{"origin_city": "Shenzhen"}},
		Confidence: 0.5,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// List pending items.
	req := httptest.NewRequest(http.MethodGet, "/review?status=pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /review = %d: %s", rec.Code, rec.Body.String())
	}
	var items []ReviewItemResponse
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Fatalf("got %d items, want the enqueued one", len(items))
	}
	if items[0].Strategy != "ftl_tariff" || items[0].Status != "pending" {
		t.Errorf("item = %+v, want ftl_tariff/pending", items[0])
	}

	// Full-text search through the FTS index.
	req = httptest.NewRequest(http.MethodGet, "/review?q=Shenzhen", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /review?q= = %d: %s", rec.Code, rec.Body.String())
	}
	items = nil
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("full-text search returned %d items, want 1", len(items))
	}

	// Approve the item.
	body, _ := json.Marshal(ReviewStatusRequest{Status: "approved", Reviewer: "ops", Note: "looks right"})
	req = httptest.NewRequest(http.MethodPost, "/review/1/status", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /review/1/status = %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/review/1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var item ReviewItemResponse
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if item.Status != "approved" || item.Reviewer != "ops" {
		t.Errorf("item after approval = %s/%s, want approved/ops", item.Status, item.Reviewer)
	}
}

func TestReviewStatusRejectsUnknown(t *testing.T) {
	rq := testReviewDB(t)
	server := NewServer(nil, nil, rq, Config{Port: 8081})
	router := server.Router()

	id, err := rq.Enqueue(storage.EnqueueParams{
		ReceivedAt: "2025-11-03T10:00:00Z",
		Strategy:   "universal",
		Transport:  "auto",
		RawText:    "some text",
		Candidates: []map[string]any{},
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	body, _ := json.Marshal(ReviewStatusRequest{Status: "maybe"})
	req := httptest.NewRequest(http.MethodPost, "/review/1/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status = %d, want 400", rec.Code)
	}

	// The item is untouched.
	it, err := rq.GetByID(id)
	if err != nil || it == nil {
		t.Fatalf("GetByID() = %v, %v", it, err)
	}
	if it.Status != storage.StatusPending {
		t.Errorf("status = %q, want pending", it.Status)
	}
}
