package search

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"clipstream/searchservice/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 { return &v }

func video(id string, views int64) domain.VideoSummary {
	return domain.VideoSummary{
		ID:    id,
		Title: "Video " + id,
		URL:   domain.WatchURL(id),
		Views: int64Ptr(views),
	}
}

type fakeSuggest struct {
	mu          sync.Mutex
	suggestions []string
	err         error
	calls       int
	lastQuery   string
}

func (f *fakeSuggest) Suggest(_ context.Context, query string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.suggestions...), nil
}

func (f *fakeSuggest) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVideos struct {
	mu       sync.Mutex
	byTerm   map[string][]domain.VideoSummary
	err      error
	calls    int
	terms    []string
	lastOpts domain.VideoSearchOptions
}

func (f *fakeVideos) Search(_ context.Context, term string, opts domain.VideoSearchOptions) ([]domain.VideoSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.terms = append(f.terms, term)
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.VideoSummary(nil), f.byTerm[term]...), nil
}

func (f *fakeVideos) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeVideos) seenTerms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terms...)
}

type sliceIterator struct {
	comments []domain.Comment
	index    int
	delay    time.Duration
	closed   atomic.Bool
	onClose  func()
}

func (it *sliceIterator) Next(ctx context.Context) (domain.Comment, error) {
	if it.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Comment{}, ctx.Err()
		case <-time.After(it.delay):
		}
	}
	if it.index >= len(it.comments) {
		return domain.Comment{}, io.EOF
	}
	comment := it.comments[it.index]
	it.index++
	return comment, nil
}

func (it *sliceIterator) Close() error {
	if it.closed.CompareAndSwap(false, true) && it.onClose != nil {
		it.onClose()
	}
	return nil
}

type fakeComments struct {
	mu        sync.Mutex
	byVideo   map[string][]string
	err       error
	nextDelay time.Duration
	calls     int
	inFlight  atomic.Int64
	peak      atomic.Int64
}

// Comments counts one in-flight fetch from open until the iterator is closed,
// so tests can assert the enrichment concurrency cap.
func (f *fakeComments) Comments(_ context.Context, videoID string, _ domain.CommentSort) (domain.CommentIterator, error) {
	f.mu.Lock()
	f.calls++
	texts := f.byVideo[videoID]
	err := f.err
	delay := f.nextDelay
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	current := f.inFlight.Add(1)
	for {
		peak := f.peak.Load()
		if current <= peak || f.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	comments := make([]domain.Comment, 0, len(texts))
	for _, text := range texts {
		comments = append(comments, domain.Comment{Text: text})
	}
	return &sliceIterator{
		comments: comments,
		delay:    delay,
		onClose:  func() { f.inFlight.Add(-1) },
	}, nil
}

func (f *fakeComments) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
