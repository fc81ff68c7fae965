// Package api provides the operational REST API: ad hoc extraction,
// stored tariff lookup with version history, and the review queue
// workflow.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"tariff_parser/internal/extractor"
	"tariff_parser/internal/storage"
	"tariff_parser/internal/tariff"
)

// maxExtractBody bounds the request body of POST /extract and /detect.
const maxExtractBody = 4 << 20

// Server serves the operational API. Any of the stores may be nil; the
// corresponding endpoints then report 503.
type Server struct {
	engine      *extractor.Engine
	pg          *storage.PostgresDB
	rq          *storage.ReviewDB
	port        int
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
}

// Config holds configuration for the API server.
type Config struct {
	Port        int
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
}

// NewServer creates an API server over the given engine and stores.
func NewServer(engine *extractor.Engine, pg *storage.PostgresDB, rq *storage.ReviewDB, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	return &Server{
		engine:      engine,
		pg:          pg,
		rq:          rq,
		port:        cfg.Port,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/", s.Router())
	})

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("Tariff API starting at http://localhost%s", addr)
	if s.authEnabled {
		log.Printf("Authentication: ENABLED (API key required)")
	} else {
		log.Printf("Authentication: DISABLED (open access)")
	}

	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Optional authentication.
	if s.authEnabled {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)

	r.Post("/extract", s.handleExtract)
	r.Post("/detect", s.handleDetect)

	r.Get("/tariffs", s.handleListTariffs)
	r.Get("/tariffs/stats", s.handleTariffStats)
	r.Get("/tariffs/{id}", s.handleGetTariff)
	r.Get("/tariffs/{id}/versions", s.handleTariffVersions)

	r.Get("/review", s.handleListReview)
	r.Get("/review/stats", s.handleReviewStats)
	r.Get("/review/{id}", s.handleGetReview)
	r.Post("/review/{id}/status", s.handleReviewStatus)

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ExtractRequest is the request body for POST /extract.
type ExtractRequest struct {
	Text          string `json:"text"`
	TransportHint string `json:"transport_hint,omitempty"`
	Supplier      string `json:"supplier,omitempty"`
}

// ExtractResponse is the response for POST /extract. Candidates is
// never null: an unreadable document yields an empty list, which is
// the "no tariff data recognized" signal for the caller.
type ExtractResponse struct {
	Count      int                `json:"count"`
	Candidates []tariff.Candidate `json:"candidates"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction engine not configured")
		return
	}

	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	candidates := s.engine.Extract(req.Text, extractor.Options{
		TransportHint: req.TransportHint,
		Supplier:      req.Supplier,
	})
	if candidates == nil {
		candidates = []tariff.Candidate{}
	}

	writeJSON(w, http.StatusOK, ExtractResponse{
		Count:      len(candidates),
		Candidates: candidates,
	})
}

// DetectRequest is the request body for POST /detect.
type DetectRequest struct {
	Text string `json:"text"`
}

// DetectScore is one strategy's detection outcome.
type DetectScore struct {
	Name       string  `json:"name"`
	Transport  string  `json:"transport"`
	Matched    int     `json:"matched"`
	Total      int     `json:"total"`
	Confidence float64 `json:"confidence"`
	Selected   bool    `json:"selected"`
}

// DetectResponse is the response for POST /detect.
type DetectResponse struct {
	Selected string        `json:"selected"`
	Scores   []DetectScore `json:"scores"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction engine not configured")
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExtractBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	best, traces := s.engine.Detect(req.Text)
	resp := DetectResponse{Selected: best.Name}
	for _, tr := range traces {
		resp.Scores = append(resp.Scores, DetectScore{
			Name:       tr.Name,
			Transport:  string(tr.Transport),
			Matched:    tr.Matched,
			Total:      tr.Total,
			Confidence: tr.Confidence,
			Selected:   tr.Selected,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// TariffResponse is the JSON shape of a stored tariff.
type TariffResponse struct {
	ID                 int64  `json:"id"`
	Supplier           string `json:"supplier,omitempty"`
	TransportType      string `json:"transport_type"`
	Basis              string `json:"basis"`
	OriginCity         string `json:"origin_city"`
	OriginCountry      string `json:"origin_country,omitempty"`
	DestinationCity    string `json:"destination_city"`
	DestinationCountry string `json:"destination_country,omitempty"`
	VehicleType        string `json:"vehicle_type,omitempty"`

	PriceUSD *float64 `json:"price_usd"`
	PriceRUB *float64 `json:"price_rub"`
	PriceCNY *float64 `json:"price_cny"`

	TransitTimeDays *int   `json:"transit_time_days,omitempty"`
	ValidityDate    string `json:"validity_date,omitempty"`

	Costs map[string]float64 `json:"costs,omitempty"`

	SourceStrategy string `json:"source_strategy,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	ArchivedAt     string `json:"archived_at,omitempty"`
}

func decToFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func tariffToResponse(t *storage.Tariff) TariffResponse {
	resp := TariffResponse{
		ID:                 t.ID,
		Supplier:           t.Supplier,
		TransportType:      t.TransportType,
		Basis:              t.Basis,
		OriginCity:         t.OriginCity,
		OriginCountry:      t.OriginCountry,
		DestinationCity:    t.DestinationCity,
		DestinationCountry: t.DestinationCountry,
		VehicleType:        t.VehicleType,
		PriceUSD:           decToFloat(t.PriceUSD),
		PriceRUB:           decToFloat(t.PriceRUB),
		PriceCNY:           decToFloat(t.PriceCNY),
		TransitTimeDays:    t.TransitTimeDays,
		ValidityDate:       t.ValidityDate,
		SourceStrategy:     t.SourceStrategy,
		CreatedAt:          t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          t.UpdatedAt.UTC().Format(time.RFC3339),
	}

	costs := make(map[string]float64)
	for key, d := range map[string]*decimal.Decimal{
		tariff.CostCBX:              t.CBXCost,
		tariff.CostTerminalHandling: t.TerminalHandlingCost,
		tariff.CostAutoPickup:       t.AutoPickupCost,
		tariff.CostSecurity:         t.SecurityCost,
		tariff.CostPrecarriage:      t.PrecarriageCost,
		tariff.CostCarParking:       t.CarParkingCost,
		tariff.CostHandling:         t.HandlingCost,
		tariff.CostDeclaration:      t.DeclarationCost,
		tariff.CostRegistration:     t.RegistrationCost,
	} {
		if d != nil {
			costs[key] = d.InexactFloat64()
		}
	}
	if len(costs) > 0 {
		resp.Costs = costs
	}

	return resp
}

func (s *Server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	if s.pg == nil {
		writeError(w, http.StatusServiceUnavailable, "tariff store not configured")
		return
	}

	q := r.URL.Query()
	filter := storage.TariffFilter{
		Supplier:        q.Get("supplier"),
		TransportType:   q.Get("transport"),
		OriginCity:      q.Get("origin"),
		DestinationCity: q.Get("destination"),
		Basis:           q.Get("basis"),
		Limit:           intParam(q.Get("limit")),
		Offset:          intParam(q.Get("offset")),
	}

	tariffs, err := s.pg.ListTariffs(context.Background(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]TariffResponse, 0, len(tariffs))
	for i := range tariffs {
		results = append(results, tariffToResponse(&tariffs[i]))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleTariffStats(w http.ResponseWriter, r *http.Request) {
	if s.pg == nil {
		writeError(w, http.StatusServiceUnavailable, "tariff store not configured")
		return
	}

	counts, err := s.pg.CountTariffsByTransport(context.Background())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":        total,
		"by_transport": counts,
	})
}

func (s *Server) handleGetTariff(w http.ResponseWriter, r *http.Request) {
	if s.pg == nil {
		writeError(w, http.StatusServiceUnavailable, "tariff store not configured")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tariff ID")
		return
	}

	t, err := s.pg.GetTariff(context.Background(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "Tariff not found")
		return
	}

	writeJSON(w, http.StatusOK, tariffToResponse(t))
}

func (s *Server) handleTariffVersions(w http.ResponseWriter, r *http.Request) {
	if s.pg == nil {
		writeError(w, http.StatusServiceUnavailable, "tariff store not configured")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid tariff ID")
		return
	}

	versions, err := s.pg.ArchivedVersions(context.Background(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]TariffResponse, 0, len(versions))
	for i := range versions {
		resp := tariffToResponse(&versions[i].Tariff)
		resp.ArchivedAt = versions[i].ArchivedAt.UTC().Format(time.RFC3339)
		results = append(results, resp)
	}
	writeJSON(w, http.StatusOK, results)
}

// ReviewItemResponse is the JSON shape of a review queue item. The
// candidate list is re-embedded as JSON rather than a string.
type ReviewItemResponse struct {
	ID              int64           `json:"id"`
	DocumentID      int64           `json:"document_id,omitempty"`
	ReceivedAt      string          `json:"received_at,omitempty"`
	Supplier        string          `json:"supplier,omitempty"`
	Strategy        string          `json:"strategy"`
	Transport       string          `json:"transport"`
	OriginCity      string          `json:"origin_city,omitempty"`
	DestinationCity string          `json:"destination_city,omitempty"`
	RawText         string          `json:"raw_text"`
	Candidates      json.RawMessage `json:"candidates"`
	Confidence      float64         `json:"confidence"`
	Status          string          `json:"status"`
	Reviewer        string          `json:"reviewer,omitempty"`
	Note            string          `json:"note,omitempty"`
}

func reviewToResponse(it *storage.ReviewItem) ReviewItemResponse {
	resp := ReviewItemResponse{
		ID:              it.ID,
		DocumentID:      it.DocumentID,
		Supplier:        it.Supplier,
		Strategy:        it.Strategy,
		Transport:       it.Transport,
		OriginCity:      it.OriginCity,
		DestinationCity: it.DestinationCity,
		RawText:         it.RawText,
		Confidence:      it.Confidence,
		Status:          it.Status,
		Reviewer:        it.Reviewer,
		Note:            it.Note,
	}
	if !it.ReceivedAt.IsZero() {
		resp.ReceivedAt = it.ReceivedAt.UTC().Format(time.RFC3339)
	}
	if json.Valid([]byte(it.CandidatesJSON)) {
		resp.Candidates = json.RawMessage(it.CandidatesJSON)
	} else {
		resp.Candidates = json.RawMessage("null")
	}
	return resp
}

func (s *Server) handleListReview(w http.ResponseWriter, r *http.Request) {
	if s.rq == nil {
		writeError(w, http.StatusServiceUnavailable, "review queue not configured")
		return
	}

	q := r.URL.Query()
	items, err := s.rq.Query(storage.ReviewQueryParams{
		Status:    q.Get("status"),
		Strategy:  q.Get("strategy"),
		Supplier:  q.Get("supplier"),
		FullText:  q.Get("q"),
		Limit:     intParam(q.Get("limit")),
		Offset:    intParam(q.Get("offset")),
		OrderBy:   q.Get("order_by"),
		OrderDesc: q.Get("order") == "desc",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]ReviewItemResponse, 0, len(items))
	for i := range items {
		results = append(results, reviewToResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	if s.rq == nil {
		writeError(w, http.StatusServiceUnavailable, "review queue not configured")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid review item ID")
		return
	}

	it, err := s.rq.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "Review item not found")
		return
	}

	writeJSON(w, http.StatusOK, reviewToResponse(it))
}

// ReviewStatusRequest is the body for POST /review/{id}/status.
type ReviewStatusRequest struct {
	Status   string `json:"status"`
	Reviewer string `json:"reviewer,omitempty"`
	Note     string `json:"note,omitempty"`
}

func (s *Server) handleReviewStatus(w http.ResponseWriter, r *http.Request) {
	if s.rq == nil {
		writeError(w, http.StatusServiceUnavailable, "review queue not configured")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid review item ID")
		return
	}

	var req ReviewStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	err = s.rq.SetStatus(id, req.Status, req.Reviewer, req.Note)
	switch {
	case errors.Is(err, storage.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (s *Server) handleReviewStats(w http.ResponseWriter, r *http.Request) {
	if s.rq == nil {
		writeError(w, http.StatusServiceUnavailable, "review queue not configured")
		return
	}

	stats, err := s.rq.GetReviewStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func intParam(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
