package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/shoko/internal/indexer"
	"github.com/hyperjump/shoko/internal/models"
)

// handleIndexStart launches a background indexing run. Starting while a run
// is active is not an error; the current status is returned either way.
func (s *Server) handleIndexStart(w http.ResponseWriter, r *http.Request) {
	err := s.orchestrator.Start()
	if err != nil && !errors.Is(err, indexer.ErrAlreadyRunning) {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, s.orchestrator.Status())
}

// handleIndexCancel requests cancellation of the active run. Cancelling an
// idle indexer is not an error.
func (s *Server) handleIndexCancel(w http.ResponseWriter, r *http.Request) {
	err := s.orchestrator.Cancel()
	if err != nil && !errors.Is(err, indexer.ErrNotRunning) {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.orchestrator.Status())
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.orchestrator.Status())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	resp := s.chat.Chat(r.Context(), req.Query, req.ItemIDs)
	s.respondJSON(w, http.StatusOK, resp)
}

// handleItems searches library items. Filters are comma-separated query
// parameters: authors, titles, dates.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	filter := models.ItemFilter{
		Authors: splitParam(r.URL.Query().Get("authors")),
		Titles:  splitParam(r.URL.Query().Get("titles")),
		Dates:   splitParam(r.URL.Query().Get("dates")),
	}
	items, err := s.source.SearchItems(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if s.books == nil {
		s.respondError(w, http.StatusNotImplemented, "book lookups not configured")
		return
	}
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	reviews, err := s.books.Search(ctx, query)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitParam splits a comma-separated query parameter, dropping empty parts.
func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
