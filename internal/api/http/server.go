package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"clipstream/searchservice/internal/domain"
	"clipstream/searchservice/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchResponse, error)
	Suggestions(ctx context.Context, query string) ([]string, error)
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type Server struct {
	search      SearchService
	logger      *slog.Logger
	development bool
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDevelopmentMode controls whether 500 responses carry the underlying
// error text. Production responses stay generic.
func WithDevelopmentMode(enabled bool) ServerOption {
	return func(s *Server) {
		s.development = enabled
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("/search/stream", s.handleSearchStream)
	mux.HandleFunc("/search/suggest", s.handleSearchSuggest)
	mux.HandleFunc("/search", s.handleSearch)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "video-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, s.development, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		s.writeServerError(w, errors.New("search service is not configured"))
		return
	}

	if !r.URL.Query().Has("q") {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	request := domain.SearchRequest{
		Query:           r.URL.Query().Get("q"),
		SuggestionCount: parseCountParam(r, "suggestionCount", domain.DefaultSuggestionCount),
		VideoCount:      parseCountParam(r, "videoCount", domain.DefaultVideoCount),
		NoCache:         parseOptionalBool(r.URL.Query().Get("nocache")),
	}

	response, err := s.search.Search(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrQueryRequired), errors.Is(err, search.ErrQueryTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("search request failed",
				slog.String("query", truncate(request.Query, 80)),
				slog.String("error", err.Error()),
			)
			s.writeServerError(w, err)
		}
		return
	}

	s.logger.Info("search completed",
		slog.String("query", truncate(response.Query, 80)),
		slog.Int("videos", len(response.Videos)),
		slog.Int64("elapsedMs", response.ElapsedMS),
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/stream" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		s.writeServerError(w, errors.New("search service is not configured"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeServerError(w, errors.New("streaming is not supported"))
		return
	}

	if !r.URL.Query().Has("q") {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	request := domain.SearchRequest{
		Query:           r.URL.Query().Get("q"),
		SuggestionCount: parseCountParam(r, "suggestionCount", domain.DefaultSuggestionCount),
		VideoCount:      parseCountParam(r, "videoCount", domain.DefaultVideoCount),
		NoCache:         parseOptionalBool(r.URL.Query().Get("nocache")),
	}

	ch, err := s.search.SearchStream(r.Context(), request)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrQueryRequired), errors.Is(err, search.ErrQueryTooShort):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeServerError(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSEEvent(w, flusher, "bootstrap", map[string]any{
		"phase":  "bootstrap",
		"final":  false,
		"query":  strings.TrimSpace(request.Query),
		"status": "started",
	}); err != nil {
		return // Client disconnected
	}

	for response := range ch {
		select {
		case <-r.Context().Done():
			return // Client disconnected
		default:
		}
		event := "update"
		if response.Final {
			event = "final"
		}
		if err := writeSSEEvent(w, flusher, event, response); err != nil {
			return // Client disconnected
		}
	}

	_ = writeSSEEvent(w, flusher, "done", map[string]any{"final": true})
}

func (s *Server) handleSearchSuggest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/suggest" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		s.writeServerError(w, errors.New("search service is not configured"))
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(query)) < domain.MinQueryLength {
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "suggestions": []string{}})
		return
	}

	suggestions, err := s.search.Suggestions(r.Context(), query)
	if err != nil {
		s.logger.Warn("suggest failed",
			slog.String("query", truncate(query, 60)),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, map[string]any{"query": query, "suggestions": []string{}})
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "suggestions": suggestions})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		s.writeServerError(w, errors.New("search service is not configured"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.search.ProviderDiagnostics(),
	})
}

func (s *Server) writeServerError(w http.ResponseWriter, err error) {
	message := "an unexpected error occurred"
	if s.development && err != nil {
		message = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "internal server error",
		"message": message,
	})
}

// parseCountParam returns the fallback for absent or unparsable values;
// range clamping happens in the search service.
func parseCountParam(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err // Client disconnected
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err // Client disconnected
	}
	flusher.Flush()
	return nil
}
