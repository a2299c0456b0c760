package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/onnwee/recordcache/internal/apierr"
	"github.com/onnwee/recordcache/internal/cache"
	"github.com/onnwee/recordcache/internal/logger"
	"github.com/onnwee/recordcache/internal/metrics"
	"github.com/onnwee/recordcache/internal/tracing"
)

// Handler serves the cache over HTTP.
type Handler struct {
	cache         *cache.Cache[Document]
	statsInterval time.Duration
}

// NewHandler creates a handler bound to one cache instance. statsInterval
// paces the websocket stats stream.
func NewHandler(c *cache.Cache[Document], statsInterval time.Duration) *Handler {
	if statsInterval <= 0 {
		statsInterval = 5 * time.Second
	}
	return &Handler{cache: c, statsInterval: statsInterval}
}

// atOverride parses the optional ?at= timestamp override (seconds since
// epoch) used to pin operation time, mostly by tests and replay tooling.
func atOverride(r *http.Request) ([]float64, *apierr.Error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return nil, nil
	}
	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, apierr.New(apierr.ErrValidationInvalidValue,
			"Query parameter 'at' must be seconds since epoch", http.StatusBadRequest)
	}
	return []float64{ts}, nil
}

// writeCacheError maps cache sentinel errors onto structured API errors.
func writeCacheError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cache.ErrInvalidKey):
		apierr.WriteErrorWithContext(w, r, apierr.KeyInvalid(err.Error()))
	case errors.Is(err, cache.ErrItemTooLarge):
		apierr.WriteErrorWithContext(w, r, apierr.ItemTooLarge(err.Error()))
	case errors.Is(err, cache.ErrClosed):
		apierr.WriteErrorWithContext(w, r,
			apierr.New(apierr.ErrCacheClosed, "Cache is shut down", http.StatusServiceUnavailable))
	default:
		logger.ErrorContext(r.Context(), "Cache operation failed", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.Internal(""))
	}
}

func observe(operation string, start time.Time, err error) {
	metrics.CacheOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CacheOperationErrors.WithLabelValues(operation).Inc()
	}
}

// PutDocument stores the request body under the key in the path.
// PUT /api/cache/{key}
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.put")
	defer span.End()

	key := mux.Vars(r)["key"]
	at, aerr := atOverride(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}

	var doc Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.InvalidJSON(""))
		return
	}

	start := time.Now()
	err := h.cache.Put(ctx, key, doc, at...)
	observe("put", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDocument returns the document stored under the key in the path.
// GET /api/cache/{key}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.get")
	defer span.End()

	key := mux.Vars(r)["key"]
	at, aerr := atOverride(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}

	start := time.Now()
	doc, found, err := h.cache.Get(ctx, key, at...)
	observe("get", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	if !found {
		apierr.WriteErrorWithContext(w, r, apierr.NotFound(key))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// HeadDocument probes for a key without touching timestamps or counters.
// HEAD /api/cache/{key}
func (h *Handler) HeadDocument(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.exists")
	defer span.End()

	key := mux.Vars(r)["key"]
	at, aerr := atOverride(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}

	start := time.Now()
	found, err := h.cache.Exists(ctx, key, at...)
	observe("exists", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteDocument removes the key in the path from both tiers.
// DELETE /api/cache/{key}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.delete")
	defer span.End()

	key := mux.Vars(r)["key"]

	start := time.Now()
	err := h.cache.Delete(ctx, key)
	observe("delete", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// batchPutRequest is the body of POST /api/cache.
type batchPutRequest struct {
	Items map[string]Document `json:"items"`
}

// PutBatch stores every item in one transaction; on any failure nothing is
// stored. POST /api/cache
func (h *Handler) PutBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.put_many")
	defer span.End()

	at, aerr := atOverride(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}

	var req batchPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.InvalidJSON(""))
		return
	}
	if len(req.Items) == 0 {
		apierr.WriteErrorWithContext(w, r,
			apierr.New(apierr.ErrValidationMissingField, "Body must carry a non-empty 'items' object", http.StatusBadRequest))
		return
	}

	start := time.Now()
	err := h.cache.PutMany(ctx, req.Items, at...)
	observe("put_many", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBatch returns the documents found for ?keys=a,b,c; missing keys are
// omitted. GET /api/cache
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.get_many")
	defer span.End()

	keys, aerr := keysParam(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}
	at, aerr := atOverride(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}

	start := time.Now()
	found, err := h.cache.GetMany(ctx, keys, at...)
	observe("get_many", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"items": found})
}

// DeleteBatch removes every key in ?keys=a,b,c. DELETE /api/cache
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.delete_many")
	defer span.End()

	keys, aerr := keysParam(r)
	if aerr != nil {
		apierr.WriteErrorWithContext(w, r, aerr)
		return
	}

	start := time.Now()
	err := h.cache.DeleteMany(ctx, keys)
	observe("delete_many", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func keysParam(r *http.Request) ([]string, *apierr.Error) {
	raw := r.URL.Query().Get("keys")
	if raw == "" {
		return nil, apierr.New(apierr.ErrValidationMissingField,
			"Query parameter 'keys' is required", http.StatusBadRequest)
	}
	keys := strings.Split(raw, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys, nil
}

// InvalidateCache clears all entries from both tiers.
// POST /api/admin/cache/invalidate
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "cache.clear")
	defer span.End()

	start := time.Now()
	err := h.cache.Clear(ctx)
	observe("clear", start, err)
	if err != nil {
		writeCacheError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"message": "Cache invalidated successfully",
	})
}

// GetCacheStats returns a ledger snapshot plus the current totals.
// GET /api/admin/cache/stats
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.Stats()

	response := map[string]any{"stats": stats}
	if total, err := h.cache.TotalSize(); err == nil {
		response["total_size_bytes"] = total
	}
	if count, err := h.cache.Count(); err == nil {
		response["count"] = count
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Health returns a simple JSON payload to indicate the daemon is alive.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
