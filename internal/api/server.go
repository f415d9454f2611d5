package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"image-pipeline/internal/models"
	"image-pipeline/internal/queue"
	"image-pipeline/internal/ratelimit"
	"image-pipeline/internal/store"
	"image-pipeline/internal/telemetry"
)

// TaskStore is the persistence contract the API needs.
type TaskStore interface {
	InsertBatch(ctx context.Context, urls []string, spec models.TransformSpec) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (models.Task, error)
	Summarize(ctx context.Context, from, to *time.Time) (store.Summary, error)
}

// Server wires HTTP handlers for intake and reporting.
type Server struct {
	store    TaskStore
	notifier *queue.Notifier
	limiter  *ratelimit.TokenBucket
}

// New constructs the API server. notifier and limiter may be nil.
func New(st TaskStore, notifier *queue.Notifier, limiter *ratelimit.TokenBucket) *Server {
	return &Server{store: st, notifier: notifier, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/process-images", s.handleProcessImages)
	r.Post("/summary", s.handleSummary)
	r.Get("/tasks/{id}", s.handleGetTask)
	return r
}

type processImagesRequest struct {
	ImageURLs    []string `json:"imageUrls"`
	ResizeWidth  *int     `json:"resizeWidth"`
	ResizeHeight *int     `json:"resizeHeight"`
	Grayscale    bool     `json:"grayscale"`
}

type processImagesResponse struct {
	Message string   `json:"message"`
	TaskIDs []string `json:"taskIds"`
}

func (s *Server) handleProcessImages(w http.ResponseWriter, r *http.Request) {
	var req processImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Provide an array of image URLs")
		return
	}
	if len(req.ImageURLs) == 0 {
		writeError(w, http.StatusBadRequest, "Provide an array of image URLs")
		return
	}
	if req.ResizeWidth != nil && *req.ResizeWidth <= 0 {
		writeError(w, http.StatusBadRequest, "resizeWidth must be a positive integer")
		return
	}
	if req.ResizeHeight != nil && *req.ResizeHeight <= 0 {
		writeError(w, http.StatusBadRequest, "resizeHeight must be a positive integer")
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), clientKey(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	spec := models.TransformSpec{
		ResizeWidth:  req.ResizeWidth,
		ResizeHeight: req.ResizeHeight,
		Grayscale:    req.Grayscale,
	}
	tasks, err := s.store.InsertBatch(r.Context(), req.ImageURLs, spec)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to add tasks",
			"details": err.Error(),
		})
		return
	}

	telemetry.TasksSubmitted.Add(float64(len(tasks)))
	if s.notifier != nil {
		// Fire-and-forget: the worker is nudged but the response does not
		// wait on processing, and a down Redis only delays pickup until the
		// next poll.
		if err := s.notifier.Wake(r.Context(), len(tasks)); err != nil {
			log.Printf("wake worker: %v", err)
		}
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	writeJSON(w, http.StatusOK, processImagesResponse{
		Message: "Tasks added and processing started",
		TaskIDs: ids,
	})
}

type summaryRequest struct {
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var from, to *time.Time
	if req.DateFrom != "" {
		t, err := parseDate(req.DateFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid dateFrom format")
			return
		}
		start := startOfDayUTC(t)
		from = &start
	}
	if req.DateTo != "" {
		t, err := parseDate(req.DateTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid dateTo format")
			return
		}
		end := endOfDayUTC(t)
		to = &end
	}

	sum, err := s.store.Summarize(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.store.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDayUTC(t time.Time) time.Time {
	return startOfDayUTC(t).Add(24*time.Hour - time.Millisecond)
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if i := strings.IndexByte(v, ','); i > 0 {
			return strings.TrimSpace(v[:i])
		}
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
