package domain

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultSuggestionCount = 4
	MaxSuggestionCount     = 10
	DefaultVideoCount      = 15
	MinVideoCount          = 1
	MaxVideoCount          = 50
	MinQueryLength         = 2
	MaxQueryLength         = 100
	PerTermResultLimit     = 3
	CommentLimit           = 15
	CommentBatchSize       = 5
	// Comments with a rune count at or below this threshold are dropped.
	MinCommentLength      = 15
	DefaultCommentTimeout = 8 * time.Second

	DefaultVideoTitle = "Untitled"
	watchURLPrefix    = "https://www.youtube.com/watch?v="
)

// VideoSummary is what a video search provider returns for one hit.
// Views and UploadedAt are nil when the platform omitted them.
type VideoSummary struct {
	ID         string
	Title      string
	URL        string
	Views      *int64
	UploadedAt *string
}

// ViewCount treats a missing view count as zero for ranking purposes.
func (v VideoSummary) ViewCount() int64 {
	if v.Views == nil {
		return 0
	}
	return *v.Views
}

// EnrichedVideo is the terminal response unit: a ranked video summary with a
// bounded comment sample attached.
type EnrichedVideo struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Views      int64    `json:"views"`
	UploadedAt *string  `json:"uploadedAt"`
	Comments   []string `json:"comments"`
}

// Enrich fills provider gaps with defaults and attaches the comment sample.
// Comments is never nil in the wire shape.
func (v VideoSummary) Enrich(comments []string) EnrichedVideo {
	title := strings.TrimSpace(v.Title)
	if title == "" {
		title = DefaultVideoTitle
	}
	url := strings.TrimSpace(v.URL)
	if url == "" {
		url = WatchURL(v.ID)
	}
	if comments == nil {
		comments = []string{}
	}
	return EnrichedVideo{
		ID:         v.ID,
		Title:      title,
		URL:        url,
		Views:      v.ViewCount(),
		UploadedAt: v.UploadedAt,
		Comments:   comments,
	}
}

// WatchURL derives the canonical watch page URL for a video id.
func WatchURL(videoID string) string {
	return watchURLPrefix + videoID
}

type SearchRequest struct {
	Query           string
	SuggestionCount int
	VideoCount      int
	NoCache         bool
}

type SearchResponse struct {
	Query           string          `json:"query"`
	SuggestionCount *int            `json:"suggestionCount,omitempty"`
	VideoCount      *int            `json:"videoCount,omitempty"`
	TotalVideos     *int            `json:"totalVideos,omitempty"`
	Videos          []EnrichedVideo `json:"videos"`
	Message         string          `json:"message,omitempty"`
	Terms           []string        `json:"terms,omitempty"`
	ElapsedMS       int64           `json:"elapsedMs"`
	Phase           string          `json:"phase,omitempty"`
	Final           bool            `json:"final"`
}

type VideoSearchOptions struct {
	Limit int
	Kind  string
}

const VideoKind = "video"

type CommentSort string

const CommentSortTop CommentSort = "top"

type Comment struct {
	Text string
}

// CommentIterator yields comments lazily. Next returns io.EOF once the
// underlying stream is exhausted. Close releases provider resources and is
// safe to call more than once.
type CommentIterator interface {
	Next(ctx context.Context) (Comment, error)
	Close() error
}

// ProviderDiagnostics is a point-in-time health snapshot for one upstream
// collaborator (suggestions, videos, comments).
type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
