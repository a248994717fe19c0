package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pauljones0/skuwatch/internal/config"
	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/processor"
	"github.com/pauljones0/skuwatch/internal/validator"
)

// passRunner starts passes by name.
type passRunner interface {
	Trigger(name string) bool
}

// tracker is the subscriber facing side of the processor, used by the
// chat front end.
type tracker interface {
	Enroll(ctx context.Context, cfg *config.Config, req processor.EnrollRequest) (models.TrackedItem, error)
	Variants(ctx context.Context, cfg *config.Config, rawURL string) ([]models.Variant, error)
	Remove(ctx context.Context, subscriberID, itemID string) error
	Resume(ctx context.Context, sub models.Subscriber) error
	List(ctx context.Context, cfg *config.Config, subscriberID string) ([]string, error)
	StoreCounts(ctx context.Context) (map[models.StoreID]int, error)
}

type Server struct {
	holder    *config.Holder
	passes    passRunner
	tracker   tracker
	validator *validator.Validator
	metrics   http.Handler
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("POST /run/{pass}", s.RunPassHandler)
	mux.HandleFunc("POST /reload", s.ReloadHandler)

	mux.HandleFunc("GET /variants", s.VariantsHandler)
	mux.HandleFunc("POST /items", s.EnrollHandler)
	mux.HandleFunc("GET /subscribers/{sub}/items", s.ListHandler)
	mux.HandleFunc("DELETE /subscribers/{sub}/items/{item}", s.RemoveHandler)
	mux.HandleFunc("POST /subscribers/{sub}/resume", s.ResumeHandler)
	mux.HandleFunc("GET /stats", s.StatsHandler)
	return mux
}

// RunPassHandler starts a pass in the background so the response isn't
// blocked by store fetches and deliveries.
func (s *Server) RunPassHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("pass")
	if !s.passes.Trigger(name) {
		http.Error(w, "unknown pass "+name, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "Pass %s started.\n", name)
}

func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.holder.Reload()
	if err != nil {
		slog.Error("Failed to reload configuration", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activeStores": cfg.ActiveStoreList()})
}

func (s *Server) VariantsHandler(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	variants, err := s.tracker.Variants(r.Context(), s.holder.Current(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, variants)
}

func (s *Server) EnrollHandler(w http.ResponseWriter, r *http.Request) {
	var req processor.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item, err := s.tracker.Enroll(r.Context(), s.holder.Current(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) ListHandler(w http.ResponseWriter, r *http.Request) {
	lines, err := s.tracker.List(r.Context(), s.holder.Current(), r.PathValue("sub"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Remove(r.Context(), r.PathValue("sub"), r.PathValue("item")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	var sub models.Subscriber
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	sub.ID = r.PathValue("sub")
	if err := s.tracker.Resume(r.Context(), sub); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	counts, err := s.tracker.StoreCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownStore), errors.Is(err, models.ErrStoreInactive):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrVariantMissing):
		return http.StatusNotFound
	case errors.Is(err, models.ErrItemExists), errors.Is(err, models.ErrItemLimit):
		return http.StatusConflict
	case errors.Is(err, models.ErrFetchTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrParseFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}
