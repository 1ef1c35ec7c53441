// Package suggestapi adapts a YouTube-style completion endpoint to the
// SuggestionProvider contract. The endpoint answers
// `?client=firefox&ds=yt&q=...` with `["query", ["s1", "s2", ...]]` and,
// depending on the edge, may serve the body as ISO-8859-1.
package suggestapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	defaultEndpoint  = "https://suggestqueries.google.com/complete/search"
	defaultUserAgent = "clipstream-search/1.0"

	suggestClient  = "firefox"
	suggestDataset = "yt"
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
	}
}

func (p *Provider) Suggest(ctx context.Context, query string) ([]string, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("client", suggestClient)
	values.Set("ds", suggestDataset)
	values.Set("q", strings.TrimSpace(query))
	uri.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("suggest HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	return parseSuggestPayload(decodePayload(payload))
}

// decodePayload converts ISO-8859-1 bodies to UTF-8; already-valid UTF-8
// passes through untouched.
func decodePayload(payload []byte) []byte {
	if utf8.Valid(payload) {
		return payload
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
	if err != nil {
		return payload
	}
	return decoded
}

func parseSuggestPayload(payload []byte) ([]string, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("unexpected suggest payload: %w", err)
	}
	if len(envelope) < 2 {
		return nil, fmt.Errorf("unexpected suggest payload shape")
	}

	var raw []string
	if err := json.Unmarshal(envelope[1], &raw); err != nil {
		return nil, fmt.Errorf("unexpected suggest payload: %w", err)
	}

	suggestions := make([]string, 0, len(raw))
	for _, item := range raw {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		suggestions = append(suggestions, value)
	}
	return suggestions, nil
}
