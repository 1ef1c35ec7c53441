package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clipstream/searchservice/internal/domain"
)

var (
	ErrQueryRequired = errors.New("query is required")
	ErrQueryTooShort = errors.New("query must be at least 2 characters")
)

// SuggestionProvider expands a query into related search phrases.
type SuggestionProvider interface {
	Suggest(ctx context.Context, query string) ([]string, error)
}

// VideoProvider searches a video platform for one term.
type VideoProvider interface {
	Search(ctx context.Context, term string, opts domain.VideoSearchOptions) ([]domain.VideoSummary, error)
}

// CommentProvider opens a lazy comment stream for one video, sorted by the
// provider's notion of popularity.
type CommentProvider interface {
	Comments(ctx context.Context, videoID string, sort domain.CommentSort) (domain.CommentIterator, error)
}

type Service struct {
	suggest  SuggestionProvider
	videos   VideoProvider
	comments CommentProvider

	commentTimeout time.Duration
	logger         *slog.Logger

	cacheDisabled bool
	cacheMu       sync.Mutex
	cache         map[string]*cachedSearchResponse
	popular       map[string]*popularQuery
	warmerCfg     searchWarmerConfig
	warmerRun     atomic.Bool
	redisCache    *RedisCacheBackend

	healthMu sync.Mutex
	health   map[string]*providerHealth
}

type ServiceOption func(*Service)

func WithCommentTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.commentTimeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.warmerCfg.cacheTTL = ttl
			s.warmerCfg.staleTTL = ttl * 3
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func NewService(suggest SuggestionProvider, videos VideoProvider, comments CommentProvider, opts ...ServiceOption) *Service {
	svc := &Service{
		suggest:        suggest,
		videos:         videos,
		comments:       comments,
		commentTimeout: domain.DefaultCommentTimeout,
		logger:         slog.Default(),
		cache:          make(map[string]*cachedSearchResponse),
		popular:        make(map[string]*popularQuery),
		warmerCfg:      defaultSearchWarmerConfig(),
		health:         make(map[string]*providerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// StartBackground launches the cache warmer. Safe to call once; subsequent
// calls are no-ops.
func (s *Service) StartBackground(ctx context.Context) {
	if s.warmerRun.CompareAndSwap(false, true) {
		go s.runWarmer(ctx)
	}
}

// Suggestions exposes raw suggestion expansion for the /search/suggest endpoint.
func (s *Service) Suggestions(ctx context.Context, query string) ([]string, error) {
	if s.suggest == nil {
		return nil, nil
	}
	startedAt := time.Now()
	var suggestions []string
	err := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
		var callErr error
		suggestions, callErr = s.suggest.Suggest(ctx, query)
		return callErr
	})
	s.recordProviderResult(providerSuggestions, err, time.Since(startedAt), time.Now())
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}
