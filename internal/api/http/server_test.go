package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipstream/searchservice/internal/domain"
	"clipstream/searchservice/internal/search"
)

type stubService struct {
	lastRequest domain.SearchRequest
	response    domain.SearchResponse
	err         error
	suggestions []string
	suggestErr  error
	diagnostics []domain.ProviderDiagnostics
}

func (s *stubService) Search(_ context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	s.lastRequest = request
	if s.err != nil {
		return domain.SearchResponse{}, s.err
	}
	return s.response, nil
}

func (s *stubService) SearchStream(_ context.Context, request domain.SearchRequest) (<-chan domain.SearchResponse, error) {
	s.lastRequest = request
	ch := make(chan domain.SearchResponse, 2)
	if s.err != nil {
		close(ch)
		return ch, s.err
	}
	response := s.response
	response.Final = true
	ch <- response
	close(ch)
	return ch, nil
}

func (s *stubService) Suggestions(context.Context, string) ([]string, error) {
	if s.suggestErr != nil {
		return nil, s.suggestErr
	}
	return s.suggestions, nil
}

func (s *stubService) ProviderDiagnostics() []domain.ProviderDiagnostics {
	return s.diagnostics
}

func doRequest(t *testing.T, server *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", recorder.Body.String(), err)
	}
	return body
}

func TestSearchRequiresQueryParam(t *testing.T) {
	server := NewServer(&stubService{})
	recorder := doRequest(t, server, "/search")

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["error"] != "query is required" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestSearchValidationErrorsMapTo400(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "required", err: search.ErrQueryRequired},
		{name: "too short", err: search.ErrQueryTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := NewServer(&stubService{err: tc.err})
			recorder := doRequest(t, server, "/search?q=a")
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", recorder.Code)
			}
			body := decodeBody(t, recorder)
			if body["error"] != tc.err.Error() {
				t.Fatalf("expected error %q, got %v", tc.err.Error(), body)
			}
		})
	}
}

func TestSearchAppliesDefaults(t *testing.T) {
	stub := &stubService{}
	server := NewServer(stub)
	doRequest(t, server, "/search?q=cats")

	if stub.lastRequest.SuggestionCount != domain.DefaultSuggestionCount {
		t.Fatalf("expected default suggestionCount, got %d", stub.lastRequest.SuggestionCount)
	}
	if stub.lastRequest.VideoCount != domain.DefaultVideoCount {
		t.Fatalf("expected default videoCount, got %d", stub.lastRequest.VideoCount)
	}
}

func TestSearchPassesExplicitParams(t *testing.T) {
	stub := &stubService{}
	server := NewServer(stub)
	doRequest(t, server, "/search?q=cats&suggestionCount=7&videoCount=20&nocache=1")

	if stub.lastRequest.SuggestionCount != 7 || stub.lastRequest.VideoCount != 20 {
		t.Fatalf("unexpected counts: %+v", stub.lastRequest)
	}
	if !stub.lastRequest.NoCache {
		t.Fatal("expected nocache flag forwarded")
	}
}

func TestSearchUnparsableParamsFallBackToDefaults(t *testing.T) {
	stub := &stubService{}
	server := NewServer(stub)
	doRequest(t, server, "/search?q=cats&suggestionCount=abc&videoCount=")

	if stub.lastRequest.SuggestionCount != domain.DefaultSuggestionCount {
		t.Fatalf("expected default suggestionCount for junk input, got %d", stub.lastRequest.SuggestionCount)
	}
	if stub.lastRequest.VideoCount != domain.DefaultVideoCount {
		t.Fatalf("expected default videoCount for empty input, got %d", stub.lastRequest.VideoCount)
	}
}

func TestSearchSuccessShape(t *testing.T) {
	uploaded := "2024-01-01T00:00:00Z"
	stub := &stubService{response: domain.SearchResponse{
		Query: "cats",
		Videos: []domain.EnrichedVideo{{
			ID:         "a",
			Title:      "A video",
			URL:        domain.WatchURL("a"),
			Views:      100,
			UploadedAt: &uploaded,
			Comments:   []string{"a comment that is long enough"},
		}},
	}}
	server := NewServer(stub)
	recorder := doRequest(t, server, "/search?q=cats")

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("expected JSON content type, got %q", got)
	}
	body := decodeBody(t, recorder)
	if body["query"] != "cats" {
		t.Fatalf("unexpected query: %v", body["query"])
	}
	videos, ok := body["videos"].([]any)
	if !ok || len(videos) != 1 {
		t.Fatalf("unexpected videos: %v", body["videos"])
	}
	if _, present := body["totalVideos"]; present {
		t.Fatal("totalVideos must be omitted on the success shape")
	}
}

func TestSearchInternalErrorVerbosity(t *testing.T) {
	cause := errors.New("redis connection lost")

	prod := NewServer(&stubService{err: cause})
	recorder := doRequest(t, prod, "/search?q=cats")
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if strings.Contains(body["message"].(string), "redis") {
		t.Fatalf("production 500 leaked the cause: %v", body)
	}

	dev := NewServer(&stubService{err: cause}, WithDevelopmentMode(true))
	recorder = doRequest(t, dev, "/search?q=cats")
	body = decodeBody(t, recorder)
	if !strings.Contains(body["message"].(string), "redis") {
		t.Fatalf("development 500 should carry the cause: %v", body)
	}
}

func TestSearchMethodNotAllowed(t *testing.T) {
	server := NewServer(&stubService{})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/search?q=cats", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}

func TestSearchSuggestEndpoint(t *testing.T) {
	stub := &stubService{suggestions: []string{"cats funny", "cats 2024"}}
	server := NewServer(stub)
	recorder := doRequest(t, server, "/search/suggest?q=cats")

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	suggestions, ok := body["suggestions"].([]any)
	if !ok || len(suggestions) != 2 {
		t.Fatalf("unexpected suggestions: %v", body)
	}
}

func TestSearchSuggestDegradesOnFailure(t *testing.T) {
	stub := &stubService{suggestErr: errors.New("upstream down")}
	server := NewServer(stub)
	recorder := doRequest(t, server, "/search/suggest?q=cats")

	if recorder.Code != http.StatusOK {
		t.Fatalf("suggest failures must stay 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	suggestions, ok := body["suggestions"].([]any)
	if !ok || len(suggestions) != 0 {
		t.Fatalf("expected empty suggestions, got %v", body)
	}
}

func TestSearchSuggestShortQuery(t *testing.T) {
	server := NewServer(&stubService{suggestions: []string{"never"}})
	recorder := doRequest(t, server, "/search/suggest?q=a")
	body := decodeBody(t, recorder)
	suggestions, ok := body["suggestions"].([]any)
	if !ok || len(suggestions) != 0 {
		t.Fatalf("expected no suggestions for a short query, got %v", body)
	}
}

func TestProvidersHealthEndpoint(t *testing.T) {
	stub := &stubService{diagnostics: []domain.ProviderDiagnostics{{Name: "videos", ConsecutiveFailures: 2}}}
	server := NewServer(stub)
	recorder := doRequest(t, server, "/search/providers/health")

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("unexpected items: %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(&stubService{})
	recorder := doRequest(t, server, "/health")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestSearchStreamEmitsSSE(t *testing.T) {
	stub := &stubService{response: domain.SearchResponse{
		Query:  "cats",
		Videos: []domain.EnrichedVideo{{ID: "a", Comments: []string{}}},
	}}
	server := NewServer(stub)
	recorder := doRequest(t, server, "/search/stream?q=cats")

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("expected SSE content type, got %q", got)
	}
	body := recorder.Body.String()
	for _, marker := range []string{"event: bootstrap", "event: final", "event: done"} {
		if !strings.Contains(body, marker) {
			t.Fatalf("expected %q in stream body:\n%s", marker, body)
		}
	}
}

func TestSearchStreamRequiresQuery(t *testing.T) {
	server := NewServer(&stubService{})
	recorder := doRequest(t, server, "/search/stream")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestRecoveryMiddlewareCatchesPanics(t *testing.T) {
	server := NewServer(panickingService{})
	recorder := doRequest(t, server, "/search?q=cats")
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["error"] != "internal server error" {
		t.Fatalf("unexpected panic body: %v", body)
	}
}

type panickingService struct{}

func (panickingService) Search(context.Context, domain.SearchRequest) (domain.SearchResponse, error) {
	panic("handler exploded")
}

func (panickingService) SearchStream(context.Context, domain.SearchRequest) (<-chan domain.SearchResponse, error) {
	panic("handler exploded")
}

func (panickingService) Suggestions(context.Context, string) ([]string, error) {
	panic("handler exploded")
}

func (panickingService) ProviderDiagnostics() []domain.ProviderDiagnostics {
	panic("handler exploded")
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/search":                  "/search",
		"/search/stream":           "/search/stream",
		"/search/suggest":          "/search/suggest",
		"/search/providers/health": "/search/providers",
		"/health":                  "/health",
		"/whatever":                "/other",
	}
	for path, want := range cases {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/search", nil)
	request.RemoteAddr = "10.0.0.1:1234"
	request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	if got := clientIP(request); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}

	request.Header.Del("X-Forwarded-For")
	request.Header.Set("X-Real-IP", "203.0.113.8")
	if got := clientIP(request); got != "203.0.113.8" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	request.Header.Del("X-Real-IP")
	if got := clientIP(request); got != "10.0.0.1" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
}
