package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yuhis0727/sumaslo-analyzer/internal/aggregator"
	"github.com/yuhis0727/sumaslo-analyzer/internal/analyzer"
	"github.com/yuhis0727/sumaslo-analyzer/internal/cache"
	"github.com/yuhis0727/sumaslo-analyzer/internal/ingest"
	"github.com/yuhis0727/sumaslo-analyzer/internal/store"
	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	db       store.DB
	engine   *analyzer.Engine
	pipeline *aggregator.Pipeline
	ingest   *ingest.Service
	cache    *cache.RecommendationCache
}

// NewHandler creates a new handler. cache may be nil to serve every
// recommendation request from the engine directly.
func NewHandler(db store.DB, engine *analyzer.Engine, pipeline *aggregator.Pipeline, ingestSvc *ingest.Service, recCache *cache.RecommendationCache) *Handler {
	return &Handler{
		db:       db,
		engine:   engine,
		pipeline: pipeline,
		ingest:   ingestSvc,
		cache:    recCache,
	}
}

// Routes mounts all API routes on the router
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/data", h.IngestBatch)

		r.Route("/stores", func(r chi.Router) {
			r.Post("/", h.CreateStore)
			r.Get("/", h.ListStores)

			r.Route("/{storeID}", func(r chi.Router) {
				r.Get("/", h.GetStore)
				r.Post("/aggregate", h.RunAggregation)
				r.Get("/recommendations", h.GetRecommendations)
				r.Get("/machines/{machineNumber}", h.GetMachineDetail)
				r.Get("/ingest-logs", h.ListIngestLogs)
				r.Post("/analyze", h.AnalyzeSnapshot)
				r.Get("/predictions", h.ListPredictions)
			})
		})
	})
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "sumaslo-analyzer",
	})
}

// CreateStoreRequest is the body for POST /stores
type CreateStoreRequest struct {
	Name      string  `json:"name"`
	Area      *string `json:"area"`
	SourceURL *string `json:"source_url"`
}

// CreateStore registers a new store
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	var req CreateStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.db.CreateStore(r.Context(), req.Name, req.Area, req.SourceURL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("create store: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// ListStores returns registered stores
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	stores, err := h.db.ListStores(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("list stores: %v", err))
		return
	}

	if stores == nil {
		stores = []models.Store{}
	}
	respondJSON(w, http.StatusOK, stores)
}

// GetStore returns one store by ID
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	s, err := h.db.GetStore(r.Context(), storeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("get store: %v", err))
		return
	}
	if s == nil {
		respondError(w, http.StatusNotFound, "store not found")
		return
	}

	respondJSON(w, http.StatusOK, s)
}

// IngestRequest is the body for POST /data
type IngestRequest struct {
	StoreName string               `json:"store_name"`
	Area      *string              `json:"area"`
	SourceURL *string              `json:"source_url"`
	DataDate  string               `json:"data_date"`
	Machines  []ingest.MachineData `json:"machines"`
}

// IngestBatch accepts one store-day of machine telemetry, persists it, and
// triggers aggregation for that date
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	if req.StoreName == "" {
		respondError(w, http.StatusBadRequest, "store_name is required")
		return
	}

	date, err := time.Parse(models.DateFormat, req.DataDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "data_date must be YYYY-MM-DD")
		return
	}

	if len(req.Machines) == 0 {
		respondError(w, http.StatusBadRequest, "machines must not be empty")
		return
	}

	result, err := h.ingest.SaveBatch(r.Context(), &ingest.Batch{
		StoreName: req.StoreName,
		Area:      req.Area,
		SourceURL: req.SourceURL,
		DataDate:  date,
		Machines:  req.Machines,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), result.StoreID); err != nil {
			fmt.Printf("⚠️  Failed to invalidate recommendation cache for store %d: %v\n", result.StoreID, err)
		}
	}

	respondJSON(w, http.StatusCreated, result)
}

// RunAggregation recomputes the derived layers for one store/date
func (h *Handler) RunAggregation(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	s, err := h.db.GetStore(r.Context(), storeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("get store: %v", err))
		return
	}
	if s == nil {
		respondError(w, http.StatusNotFound, "store not found")
		return
	}

	date, err := queryDate(r, "date", time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	windowDays := queryInt(r, "window_days", 0)

	result, err := h.pipeline.RunAll(r.Context(), storeID, date, windowDays)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), storeID); err != nil {
			fmt.Printf("⚠️  Failed to invalidate recommendation cache for store %d: %v\n", storeID, err)
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// GetRecommendations returns the ranked machine recommendations for a store
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	windowDays := queryInt(r, "window_days", 0)
	topN := queryInt(r, "top_n", 0)

	targetDate, err := queryDate(r, "date", time.Time{})
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	cacheDate := targetDate.Format(models.DateFormat)
	if h.cache != nil {
		cached, err := h.cache.Get(r.Context(), storeID, cacheDate, windowDays, topN)
		if err != nil {
			fmt.Printf("⚠️  Recommendation cache read failed: %v\n", err)
		} else if cached != nil {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	report, err := h.engine.GetRecommendations(r.Context(), storeID, targetDate, windowDays, topN)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), storeID, cacheDate, windowDays, topN, report); err != nil {
			fmt.Printf("⚠️  Recommendation cache write failed: %v\n", err)
		}
	}

	respondJSON(w, http.StatusOK, report)
}

// GetMachineDetail returns the deep-dive report for one machine position
func (h *Handler) GetMachineDetail(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	machineNumber, err := strconv.Atoi(chi.URLParam(r, "machineNumber"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid machine number")
		return
	}

	windowDays := queryInt(r, "window_days", 0)

	report, err := h.engine.GetMachineDetail(r.Context(), storeID, machineNumber, windowDays)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// ListIngestLogs returns recent ingestion runs for a store
func (h *Handler) ListIngestLogs(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 20)

	logs, err := h.db.ListIngestLogs(r.Context(), storeID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("list ingest logs: %v", err))
		return
	}

	if logs == nil {
		logs = []models.IngestLog{}
	}
	respondJSON(w, http.StatusOK, logs)
}

// AnalyzeSnapshot runs the snapshot analysis for a store's latest data date
// and persists the result as a prediction
func (h *Handler) AnalyzeSnapshot(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	snap, err := h.engine.AnalyzeSnapshot(r.Context(), storeID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	machines, err := json.Marshal(snap.RecommendedMachines)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("marshal machines: %v", err))
		return
	}
	details, err := json.Marshal(snap.AnalysisDetails)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("marshal details: %v", err))
		return
	}

	date, err := time.Parse(models.DateFormat, snap.AnalysisDetails.AnalysisDate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("parse analysis date: %v", err))
		return
	}

	prediction := &models.Prediction{
		StoreID:                storeID,
		PredictionDate:         date,
		HighSettingProbability: snap.HighSettingProbability,
		ConfidenceScore:        snap.ConfidenceScore,
		RecommendedMachines:    string(machines),
		AnalysisDetails:        string(details),
	}

	if _, err := h.db.SavePrediction(r.Context(), prediction); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("save prediction: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// ListPredictions returns recent snapshot predictions for a store
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	storeID, ok := pathInt64(w, r, "storeID")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 20)

	predictions, err := h.db.ListPredictions(r.Context(), storeID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("list predictions: %v", err))
		return
	}

	if predictions == nil {
		predictions = []models.Prediction{}
	}
	respondJSON(w, http.StatusOK, predictions)
}

// respondDomainError maps typed domain errors to HTTP status codes
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidWindow):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, aggregator.ErrRunInProgress):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	value, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return value, true
}

func queryInt(r *http.Request, name string, defaultValue int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func queryDate(r *http.Request, name string, defaultValue time.Time) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	return time.Parse(models.DateFormat, value)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
