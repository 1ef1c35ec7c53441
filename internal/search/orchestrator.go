package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"clipstream/searchservice/internal/domain"
)

const emptyResultMessage = "no videos found for this query"

type preparedSearch struct {
	query           string
	suggestionCount int
	videoCount      int
}

func (p preparedSearch) cacheRequest() domain.SearchRequest {
	return domain.SearchRequest{
		Query:           p.query,
		SuggestionCount: p.suggestionCount,
		VideoCount:      p.videoCount,
	}
}

// Search runs the full pipeline: suggestion expansion, per-term fan-out,
// merge/dedupe/rank, and batched comment enrichment.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	prepared, err := s.prepareSearch(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	if s.cacheDisabled || request.NoCache {
		return s.executePreparedSearch(ctx, prepared), nil
	}

	startedAt := time.Now()
	cacheKey := buildSearchCacheKey(prepared.cacheRequest())

	if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
		// Track popularity even on cache hits, so the warmer can keep hot queries fresh.
		s.markPopular(cacheKey, prepared.cacheRequest(), startedAt)
		if needsRefresh {
			s.refreshCacheAsync(cacheKey, prepared)
		}
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	response := s.executePreparedSearch(ctx, prepared)
	s.cacheStore(cacheKey, response, time.Now())
	s.markPopular(cacheKey, prepared.cacheRequest(), time.Now())
	return response, nil
}

func (s *Service) searchNoCache(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	prepared, err := s.prepareSearch(request)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	response := s.executePreparedSearch(ctx, prepared)
	s.cacheStore(buildSearchCacheKey(prepared.cacheRequest()), response, time.Now())
	return response, nil
}

func (s *Service) refreshCacheAsync(cacheKey string, prepared preparedSearch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshBudget(s.commentTimeout))
		defer cancel()
		response := s.executePreparedSearch(ctx, prepared)
		s.cacheStore(cacheKey, response, time.Now())
	}()
}

func refreshBudget(commentTimeout time.Duration) time.Duration {
	// Search fan-out plus one enrichment pass, with headroom.
	return 30*time.Second + commentTimeout
}

// prepareSearch sanitizes the query and clamps the counts.
func (s *Service) prepareSearch(request domain.SearchRequest) (preparedSearch, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return preparedSearch{}, ErrQueryRequired
	}
	if runes := []rune(query); len(runes) > domain.MaxQueryLength {
		query = strings.TrimSpace(string(runes[:domain.MaxQueryLength]))
	}
	if len([]rune(query)) < domain.MinQueryLength {
		return preparedSearch{}, ErrQueryTooShort
	}

	suggestionCount := request.SuggestionCount
	if suggestionCount < 0 {
		suggestionCount = 0
	}
	if suggestionCount > domain.MaxSuggestionCount {
		suggestionCount = domain.MaxSuggestionCount
	}

	videoCount := request.VideoCount
	if videoCount < domain.MinVideoCount {
		videoCount = domain.MinVideoCount
	}
	if videoCount > domain.MaxVideoCount {
		videoCount = domain.MaxVideoCount
	}

	return preparedSearch{
		query:           query,
		suggestionCount: suggestionCount,
		videoCount:      videoCount,
	}, nil
}

// executePreparedSearch never returns an error: every upstream failure is
// absorbed into a degraded but well-formed response.
func (s *Service) executePreparedSearch(ctx context.Context, prepared preparedSearch) domain.SearchResponse {
	startedAt := time.Now()

	terms := s.expandTerms(ctx, prepared)
	perTerm := s.searchTerms(ctx, terms)
	ranked := mergeAndRank(perTerm, prepared.videoCount)

	if len(ranked) == 0 {
		return s.emptyResponse(prepared, terms, startedAt)
	}

	outcomes := RunInBatches(ctx, ranked, domain.CommentBatchSize, s.enrichVideo)
	videos := make([]domain.EnrichedVideo, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Rejected() {
			s.logger.Warn("enrichment task rejected", slog.String("error", outcome.Err.Error()))
			continue
		}
		videos = append(videos, outcome.Value)
	}

	s.logger.Info("search completed",
		slog.String("query", prepared.query),
		slog.Int("terms", len(terms)),
		slog.Int("videos", len(videos)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	return domain.SearchResponse{
		Query:     prepared.query,
		Videos:    videos,
		Terms:     terms,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
	}
}

func (s *Service) emptyResponse(prepared preparedSearch, terms []string, startedAt time.Time) domain.SearchResponse {
	s.logger.Info("search returned no videos",
		slog.String("query", prepared.query),
		slog.Int("terms", len(terms)),
	)
	suggestionCount := prepared.suggestionCount
	videoCount := prepared.videoCount
	totalVideos := 0
	return domain.SearchResponse{
		Query:           prepared.query,
		SuggestionCount: &suggestionCount,
		VideoCount:      &videoCount,
		TotalVideos:     &totalVideos,
		Videos:          []domain.EnrichedVideo{},
		Message:         emptyResultMessage,
		Terms:           terms,
		ElapsedMS:       time.Since(startedAt).Milliseconds(),
	}
}

// expandTerms builds the term set: the sanitized query first, then up to
// suggestionCount suggestions in provider order. Suggestion failures degrade
// to zero suggestions, never to a failed request. Terms are not deduplicated;
// the downstream video dedupe makes duplicate terms harmless.
func (s *Service) expandTerms(ctx context.Context, prepared preparedSearch) []string {
	terms := make([]string, 0, prepared.suggestionCount+1)
	terms = append(terms, prepared.query)
	if s.suggest == nil || prepared.suggestionCount == 0 {
		return terms
	}

	if blocked, until, lastErr := s.isProviderBlocked(providerSuggestions, time.Now()); blocked {
		s.logger.Warn("suggestion provider blocked, searching original query only",
			slog.Time("until", until),
			slog.String("lastError", lastErr),
		)
		return terms
	}

	suggestions, err := s.Suggestions(ctx, prepared.query)
	if err != nil {
		s.logger.Warn("suggestion expansion failed, searching original query only",
			slog.String("query", prepared.query),
			slog.String("error", err.Error()),
		)
		return terms
	}

	for _, suggestion := range suggestions {
		if len(terms)-1 >= prepared.suggestionCount {
			break
		}
		if strings.TrimSpace(suggestion) == "" {
			continue
		}
		terms = append(terms, suggestion)
	}
	return terms
}

// searchTerms fans out one goroutine per term. The term count is bounded by
// MaxSuggestionCount+1, so no semaphore is needed here — unlike comment
// enrichment, which is capped. Results land in index-addressed slots; a
// failing term leaves its slot empty.
func (s *Service) searchTerms(ctx context.Context, terms []string) [][]domain.VideoSummary {
	slots := make([][]domain.VideoSummary, len(terms))
	if s.videos == nil {
		return slots
	}

	if blocked, until, lastErr := s.isProviderBlocked(providerVideos, time.Now()); blocked {
		s.logger.Warn("video provider blocked, skipping search pass",
			slog.Time("until", until),
			slog.String("lastError", lastErr),
		)
		return slots
	}

	var wg sync.WaitGroup
	for i, term := range terms {
		wg.Add(1)
		go func(index int, term string) {
			defer wg.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					s.logger.Warn("term search panicked",
						slog.String("term", term),
						slog.Any("error", recovered),
					)
				}
			}()

			termStartedAt := time.Now()
			var items []domain.VideoSummary
			searchErr := RetryWithBackoff(ctx, DefaultRetryConfig(), func() error {
				var err error
				items, err = s.videos.Search(ctx, term, domain.VideoSearchOptions{
					Limit: domain.PerTermResultLimit,
					Kind:  domain.VideoKind,
				})
				return err
			})
			s.recordProviderResult(providerVideos, searchErr, time.Since(termStartedAt), time.Now())

			if searchErr != nil {
				s.logger.Warn("term search failed",
					slog.String("term", term),
					slog.String("error", searchErr.Error()),
				)
				return
			}
			slots[index] = items
		}(i, term)
	}
	wg.Wait()
	return slots
}

// mergeAndRank concatenates per-term results in term order, drops entries
// without an id, keeps the first occurrence of each id, sorts by view count
// descending (missing counts rank as zero, ties broken by id for determinism)
// and truncates to videoCount.
func mergeAndRank(perTerm [][]domain.VideoSummary, videoCount int) []domain.VideoSummary {
	seen := make(map[string]struct{})
	merged := make([]domain.VideoSummary, 0)
	for _, items := range perTerm {
		for _, item := range items {
			id := strings.TrimSpace(item.ID)
			if id == "" {
				continue
			}
			if _, exists := seen[id]; exists {
				continue
			}
			seen[id] = struct{}{}
			item.ID = id
			merged = append(merged, item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		left, right := merged[i].ViewCount(), merged[j].ViewCount()
		if left != right {
			return left > right
		}
		return merged[i].ID < merged[j].ID
	})

	if len(merged) > videoCount {
		merged = merged[:videoCount]
	}
	return merged
}

// enrichVideo is the per-item function driven by the batch scheduler.
func (s *Service) enrichVideo(ctx context.Context, summary domain.VideoSummary) (domain.EnrichedVideo, error) {
	comments := s.fetchComments(ctx, summary.ID, domain.CommentLimit, s.commentTimeout)
	return summary.Enrich(comments), nil
}
