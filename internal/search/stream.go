package search

import (
	"context"
	"log/slog"
	"time"

	"clipstream/searchservice/internal/domain"
)

// SearchStream runs the same pipeline as Search but emits intermediate
// snapshots: one after ranking (comments still pending) and one after each
// enrichment batch settles. The final snapshot carries Final=true. A cached
// response short-circuits to a single final snapshot.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest) (<-chan domain.SearchResponse, error) {
	ch := make(chan domain.SearchResponse, 8)

	prepared, err := s.prepareSearch(request)
	if err != nil {
		close(ch)
		return ch, err
	}

	if !s.cacheDisabled && !request.NoCache {
		startedAt := time.Now()
		cacheKey := buildSearchCacheKey(prepared.cacheRequest())
		if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
			s.markPopular(cacheKey, prepared.cacheRequest(), startedAt)
			if needsRefresh {
				s.refreshCacheAsync(cacheKey, prepared)
			}
			cached.ElapsedMS = time.Since(startedAt).Milliseconds()
			cached.Final = true
			ch <- cached
			close(ch)
			return ch, nil
		}
	}

	go s.executeStreamSearch(ctx, prepared, ch)
	return ch, nil
}

func (s *Service) executeStreamSearch(ctx context.Context, prepared preparedSearch, ch chan<- domain.SearchResponse) {
	defer close(ch)

	startedAt := time.Now()
	terms := s.expandTerms(ctx, prepared)
	perTerm := s.searchTerms(ctx, terms)
	ranked := mergeAndRank(perTerm, prepared.videoCount)

	if len(ranked) == 0 {
		response := s.emptyResponse(prepared, terms, startedAt)
		response.Final = true
		sendSnapshot(ctx, ch, response)
		return
	}

	// Ranked snapshot: every video visible immediately, comments pending.
	pending := make([]domain.EnrichedVideo, 0, len(ranked))
	for _, summary := range ranked {
		pending = append(pending, summary.Enrich(nil))
	}
	sendSnapshot(ctx, ch, domain.SearchResponse{
		Query:     prepared.query,
		Videos:    pending,
		Terms:     terms,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
		Phase:     "ranked",
	})

	videos := make([]domain.EnrichedVideo, 0, len(ranked))
	for start := 0; start < len(ranked); start += domain.CommentBatchSize {
		end := start + domain.CommentBatchSize
		if end > len(ranked) {
			end = len(ranked)
		}
		outcomes := RunInBatches(ctx, ranked[start:end], domain.CommentBatchSize, s.enrichVideo)
		for _, outcome := range outcomes {
			if outcome.Rejected() {
				s.logger.Warn("enrichment task rejected", slog.String("error", outcome.Err.Error()))
				continue
			}
			videos = append(videos, outcome.Value)
		}

		if end < len(ranked) {
			snapshot := make([]domain.EnrichedVideo, len(videos), len(ranked))
			copy(snapshot, videos)
			for _, summary := range ranked[end:] {
				snapshot = append(snapshot, summary.Enrich(nil))
			}
			sendSnapshot(ctx, ch, domain.SearchResponse{
				Query:     prepared.query,
				Videos:    snapshot,
				Terms:     terms,
				ElapsedMS: time.Since(startedAt).Milliseconds(),
				Phase:     "enriching",
			})
		}
	}

	final := domain.SearchResponse{
		Query:     prepared.query,
		Videos:    videos,
		Terms:     terms,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
		Final:     true,
	}

	if !s.cacheDisabled {
		cacheKey := buildSearchCacheKey(prepared.cacheRequest())
		s.cacheStore(cacheKey, final, time.Now())
		s.markPopular(cacheKey, prepared.cacheRequest(), time.Now())
	}

	s.logger.Info("stream search completed",
		slog.String("query", prepared.query),
		slog.Int("videos", len(videos)),
		slog.Int64("elapsedMs", final.ElapsedMS),
	)
	sendSnapshot(ctx, ch, final)
}

func sendSnapshot(ctx context.Context, ch chan<- domain.SearchResponse, response domain.SearchResponse) {
	select {
	case ch <- response:
	case <-ctx.Done():
	}
}
