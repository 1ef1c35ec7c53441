// Package invidious adapts an Invidious instance to the video search and
// comment provider contracts. It needs no API key, which makes it the
// default upstream.
package invidious

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clipstream/searchservice/internal/domain"
)

const (
	defaultEndpoint  = "https://inv.nadeko.net"
	defaultUserAgent = "clipstream-search/1.0"

	searchPath   = "/api/v1/search"
	commentsPath = "/api/v1/comments/"
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
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
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

type searchItem struct {
	Type      string `json:"type"`
	VideoID   string `json:"videoId"`
	Title     string `json:"title"`
	ViewCount *int64 `json:"viewCount"`
	Published *int64 `json:"published"`
}

func (p *Provider) Search(ctx context.Context, term string, opts domain.VideoSearchOptions) ([]domain.VideoSummary, error) {
	kind := opts.Kind
	if kind == "" {
		kind = domain.VideoKind
	}

	values := url.Values{}
	values.Set("q", strings.TrimSpace(term))
	values.Set("type", kind)
	values.Set("sort_by", "relevance")

	var items []searchItem
	if err := p.getJSON(ctx, p.endpoint+searchPath+"?"+values.Encode(), &items); err != nil {
		return nil, err
	}

	summaries := make([]domain.VideoSummary, 0, len(items))
	for _, item := range items {
		if item.Type != "" && item.Type != "video" {
			continue
		}
		id := strings.TrimSpace(item.VideoID)
		if id == "" {
			continue
		}
		summary := domain.VideoSummary{
			ID:    id,
			Title: strings.TrimSpace(item.Title),
			URL:   domain.WatchURL(id),
			Views: item.ViewCount,
		}
		if item.Published != nil {
			uploaded := time.Unix(*item.Published, 0).UTC().Format(time.RFC3339)
			summary.UploadedAt = &uploaded
		}
		summaries = append(summaries, summary)
		if opts.Limit > 0 && len(summaries) >= opts.Limit {
			break
		}
	}
	return summaries, nil
}

type commentsPage struct {
	Comments []struct {
		Content string `json:"content"`
	} `json:"comments"`
	Continuation string `json:"continuation"`
}

func (p *Provider) Comments(ctx context.Context, videoID string, sort domain.CommentSort) (domain.CommentIterator, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, fmt.Errorf("video id is required")
	}
	sortBy := string(sort)
	if sortBy == "" {
		sortBy = string(domain.CommentSortTop)
	}
	return &commentIterator{
		provider: p,
		videoID:  videoID,
		sortBy:   sortBy,
	}, nil
}

// commentIterator walks Invidious comment pages lazily, following the
// continuation token until the platform stops returning one.
type commentIterator struct {
	provider *Provider
	videoID  string
	sortBy   string

	buffer       []domain.Comment
	continuation string
	done         bool
}

func (it *commentIterator) Next(ctx context.Context) (domain.Comment, error) {
	for len(it.buffer) == 0 {
		if it.done {
			return domain.Comment{}, io.EOF
		}
		if err := it.fetchPage(ctx); err != nil {
			return domain.Comment{}, err
		}
	}
	comment := it.buffer[0]
	it.buffer = it.buffer[1:]
	return comment, nil
}

func (it *commentIterator) fetchPage(ctx context.Context) error {
	values := url.Values{}
	values.Set("sort_by", it.sortBy)
	if it.continuation != "" {
		values.Set("continuation", it.continuation)
	}

	var page commentsPage
	uri := it.provider.endpoint + commentsPath + url.PathEscape(it.videoID) + "?" + values.Encode()
	if err := it.provider.getJSON(ctx, uri, &page); err != nil {
		return err
	}

	for _, item := range page.Comments {
		text := strings.TrimSpace(item.Content)
		if text == "" {
			continue
		}
		it.buffer = append(it.buffer, domain.Comment{Text: text})
	}

	it.continuation = strings.TrimSpace(page.Continuation)
	if it.continuation == "" || len(page.Comments) == 0 {
		it.done = true
	}
	return nil
}

func (it *commentIterator) Close() error {
	it.buffer = nil
	it.done = true
	return nil
}

func (p *Provider) getJSON(ctx context.Context, uri string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("invidious HTTP %s: %s", strconv.Itoa(resp.StatusCode), strings.TrimSpace(string(body)))
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, 8<<20))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invidious payload: %w", err)
	}
	return nil
}
