package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"clipstream/searchservice/internal/domain"
	"clipstream/searchservice/internal/metrics"
)

// fetchComments collects up to limit comments for one video, dropping any
// comment whose text is MinCommentLength runes or shorter. The whole operation
// (iterator open + pagination) races a timeout; on timeout, provider error or
// panic the result is an empty slice — comments are best-effort decoration and
// never fail the request. The losing fetch is left to drain in the background;
// its result lands in a buffered channel and is discarded.
func (s *Service) fetchComments(ctx context.Context, videoID string, limit int, timeout time.Duration) []string {
	if s.comments == nil || limit <= 0 || videoID == "" {
		return []string{}
	}
	if blocked, until, lastErr := s.isProviderBlocked(providerComments, time.Now()); blocked {
		s.logger.Debug("comment provider blocked, skipping fetch",
			slog.String("videoId", videoID),
			slog.Time("until", until),
			slog.String("lastError", lastErr),
		)
		metrics.CommentFetchesTotal.WithLabelValues("blocked").Inc()
		return []string{}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type fetchResult struct {
		comments []string
		err      error
	}
	// Buffered so an abandoned fetch can still settle and be reclaimed.
	resultCh := make(chan fetchResult, 1)
	startedAt := time.Now()

	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				resultCh <- fetchResult{err: fmt.Errorf("comment provider panic: %v", recovered)}
			}
		}()
		comments, err := collectComments(fetchCtx, s.comments, videoID, limit)
		resultCh <- fetchResult{comments: comments, err: err}
	}()

	select {
	case result := <-resultCh:
		s.recordProviderResult(providerComments, result.err, time.Since(startedAt), time.Now())
		if result.err != nil {
			metrics.CommentFetchesTotal.WithLabelValues("error").Inc()
			s.logger.Warn("comment fetch failed",
				slog.String("videoId", videoID),
				slog.String("error", result.err.Error()),
			)
			return []string{}
		}
		if len(result.comments) == 0 {
			metrics.CommentFetchesTotal.WithLabelValues("empty").Inc()
		} else {
			metrics.CommentFetchesTotal.WithLabelValues("ok").Inc()
		}
		metrics.CommentsFetched.Observe(float64(len(result.comments)))
		s.logger.Debug("comments fetched",
			slog.String("videoId", videoID),
			slog.Int("count", len(result.comments)),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
		)
		return result.comments
	case <-fetchCtx.Done():
		s.recordProviderResult(providerComments, fetchCtx.Err(), time.Since(startedAt), time.Now())
		metrics.CommentFetchesTotal.WithLabelValues("timeout").Inc()
		s.logger.Warn("comment fetch timed out",
			slog.String("videoId", videoID),
			slog.Duration("timeout", timeout),
		)
		return []string{}
	}
}

func collectComments(ctx context.Context, provider CommentProvider, videoID string, limit int) ([]string, error) {
	iterator, err := provider.Comments(ctx, videoID, domain.CommentSortTop)
	if err != nil {
		return nil, err
	}
	defer iterator.Close()

	comments := make([]string, 0, limit)
	for len(comments) < limit {
		comment, err := iterator.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(comment.Text) <= domain.MinCommentLength {
			continue
		}
		comments = append(comments, comment.Text)
	}
	return comments, nil
}
