// Package youtubeapi adapts the YouTube Data API v3 to the video search and
// comment provider contracts. Search hits come from search.list joined with
// videos.list for view counts; comments come from commentThreads.list ordered
// by relevance.
package youtubeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"clipstream/searchservice/internal/domain"
)

const (
	defaultEndpoint  = "https://www.googleapis.com/youtube/v3"
	defaultUserAgent = "clipstream-search/1.0"

	commentsPageSize = 50
)

type Config struct {
	APIKey    string
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	apiKey    string
	endpoint  string
	userAgent string
}

func NewProvider(cfg Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
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
		apiKey:    apiKey,
		endpoint:  endpoint,
		userAgent: userAgent,
	}, nil
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (p *Provider) Search(ctx context.Context, term string, opts domain.VideoSearchOptions) ([]domain.VideoSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = domain.PerTermResultLimit
	}
	kind := opts.Kind
	if kind == "" {
		kind = domain.VideoKind
	}

	values := url.Values{}
	values.Set("part", "snippet")
	values.Set("type", kind)
	values.Set("q", strings.TrimSpace(term))
	values.Set("maxResults", strconv.Itoa(limit))
	values.Set("key", p.apiKey)

	var searchResp searchListResponse
	if err := p.getJSON(ctx, p.endpoint+"/search?"+values.Encode(), &searchResp); err != nil {
		return nil, err
	}

	summaries := make([]domain.VideoSummary, 0, len(searchResp.Items))
	ids := make([]string, 0, len(searchResp.Items))
	for _, item := range searchResp.Items {
		id := strings.TrimSpace(item.ID.VideoID)
		if id == "" {
			continue
		}
		summary := domain.VideoSummary{
			ID:    id,
			Title: strings.TrimSpace(item.Snippet.Title),
			URL:   domain.WatchURL(id),
		}
		if publishedAt := strings.TrimSpace(item.Snippet.PublishedAt); publishedAt != "" {
			summary.UploadedAt = &publishedAt
		}
		summaries = append(summaries, summary)
		ids = append(ids, id)
		if len(summaries) >= limit {
			break
		}
	}
	if len(summaries) == 0 {
		return summaries, nil
	}

	views, err := p.fetchViewCounts(ctx, ids)
	if err != nil {
		// Search hits are still useful without statistics; they rank as zero views.
		return summaries, nil
	}
	for i := range summaries {
		if count, ok := views[summaries[i].ID]; ok {
			value := count
			summaries[i].Views = &value
		}
	}
	return summaries, nil
}

func (p *Provider) fetchViewCounts(ctx context.Context, ids []string) (map[string]int64, error) {
	values := url.Values{}
	values.Set("part", "statistics")
	values.Set("id", strings.Join(ids, ","))
	values.Set("key", p.apiKey)

	var videosResp videosListResponse
	if err := p.getJSON(ctx, p.endpoint+"/videos?"+values.Encode(), &videosResp); err != nil {
		return nil, err
	}

	views := make(map[string]int64, len(videosResp.Items))
	for _, item := range videosResp.Items {
		count, err := strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
		if err != nil {
			continue
		}
		views[item.ID] = count
	}
	return views, nil
}

type commentThreadsResponse struct {
	Items []struct {
		Snippet struct {
			TopLevelComment struct {
				Snippet struct {
					TextDisplay string `json:"textDisplay"`
				} `json:"snippet"`
			} `json:"topLevelComment"`
		} `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

func (p *Provider) Comments(ctx context.Context, videoID string, sort domain.CommentSort) (domain.CommentIterator, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, fmt.Errorf("video id is required")
	}
	order := "relevance"
	if sort != "" && sort != domain.CommentSortTop {
		order = "time"
	}
	return &commentIterator{
		provider: p,
		videoID:  videoID,
		order:    order,
	}, nil
}

type commentIterator struct {
	provider *Provider
	videoID  string
	order    string

	buffer    []domain.Comment
	pageToken string
	done      bool
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
	values.Set("part", "snippet")
	values.Set("videoId", it.videoID)
	values.Set("order", it.order)
	values.Set("maxResults", strconv.Itoa(commentsPageSize))
	values.Set("textFormat", "plainText")
	values.Set("key", it.provider.apiKey)
	if it.pageToken != "" {
		values.Set("pageToken", it.pageToken)
	}

	var page commentThreadsResponse
	uri := it.provider.endpoint + "/commentThreads?" + values.Encode()
	if err := it.provider.getJSON(ctx, uri, &page); err != nil {
		return err
	}

	for _, item := range page.Items {
		text := strings.TrimSpace(item.Snippet.TopLevelComment.Snippet.TextDisplay)
		if text == "" {
			continue
		}
		it.buffer = append(it.buffer, domain.Comment{Text: text})
	}

	it.pageToken = strings.TrimSpace(page.NextPageToken)
	if it.pageToken == "" || len(page.Items) == 0 {
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
		return fmt.Errorf("youtube api HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, 8<<20))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("youtube api payload: %w", err)
	}
	return nil
}
