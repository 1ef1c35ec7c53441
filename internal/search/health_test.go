package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipstream/searchservice/internal/domain"
)

func TestProviderBlocksAfterConsecutiveFailures(t *testing.T) {
	svc := NewService(nil, &fakeVideos{}, nil, WithLogger(discardLogger()))
	now := time.Now()
	failure := errors.New("upstream broken")

	for i := 0; i < providerFailureThreshold-1; i++ {
		svc.recordProviderResult(providerVideos, failure, 10*time.Millisecond, now)
		if blocked, _, _ := svc.isProviderBlocked(providerVideos, now); blocked {
			t.Fatalf("blocked too early after %d failures", i+1)
		}
	}

	svc.recordProviderResult(providerVideos, failure, 10*time.Millisecond, now)
	blocked, until, lastErr := svc.isProviderBlocked(providerVideos, now)
	if !blocked {
		t.Fatal("expected provider blocked at the failure threshold")
	}
	if until.Before(now) {
		t.Fatalf("blockedUntil %v is not in the future", until)
	}
	if lastErr != failure.Error() {
		t.Fatalf("expected last error preserved, got %q", lastErr)
	}
}

func TestProviderUnblocksAfterSuccess(t *testing.T) {
	svc := NewService(nil, &fakeVideos{}, nil, WithLogger(discardLogger()))
	now := time.Now()
	failure := errors.New("upstream broken")

	for i := 0; i < providerFailureThreshold; i++ {
		svc.recordProviderResult(providerVideos, failure, 0, now)
	}
	svc.recordProviderResult(providerVideos, nil, 5*time.Millisecond, now)

	if blocked, _, _ := svc.isProviderBlocked(providerVideos, now); blocked {
		t.Fatal("expected success to clear the block")
	}
}

func TestProviderBlockExpires(t *testing.T) {
	svc := NewService(nil, &fakeVideos{}, nil, WithLogger(discardLogger()))
	now := time.Now()
	failure := errors.New("upstream broken")

	for i := 0; i < providerFailureThreshold; i++ {
		svc.recordProviderResult(providerVideos, failure, 0, now)
	}
	if blocked, _, _ := svc.isProviderBlocked(providerVideos, now); !blocked {
		t.Fatal("expected provider blocked")
	}
	if blocked, _, _ := svc.isProviderBlocked(providerVideos, now.Add(time.Hour)); blocked {
		t.Fatal("expected block to expire")
	}
}

func TestExponentialBlockDurationDoublesAndCaps(t *testing.T) {
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{failures: providerFailureThreshold, want: providerBlockBase},
		{failures: providerFailureThreshold + 1, want: 2 * providerBlockBase},
		{failures: providerFailureThreshold + 2, want: 4 * providerBlockBase},
		{failures: providerFailureThreshold + 10, want: providerBlockMax},
	}
	for _, tc := range cases {
		if got := exponentialBlockDuration(tc.failures); got != tc.want {
			t.Errorf("failures=%d: expected %v, got %v", tc.failures, tc.want, got)
		}
	}
}

func TestIsTimeoutLikeError(t *testing.T) {
	if !isTimeoutLikeError(context.DeadlineExceeded) {
		t.Error("DeadlineExceeded should count as a timeout")
	}
	if !isTimeoutLikeError(errors.New("request timeout while waiting")) {
		t.Error("timeout text should count as a timeout")
	}
	if isTimeoutLikeError(errors.New("permission denied")) {
		t.Error("unrelated errors should not count as timeouts")
	}
	if isTimeoutLikeError(nil) {
		t.Error("nil is not a timeout")
	}
}

func TestProviderDiagnosticsListsConfiguredProviders(t *testing.T) {
	svc := NewService(&fakeSuggest{}, &fakeVideos{}, &fakeComments{}, WithLogger(discardLogger()))
	now := time.Now()
	svc.recordProviderResult(providerVideos, errors.New("boom"), 12*time.Millisecond, now)
	svc.recordProviderResult(providerSuggestions, nil, 3*time.Millisecond, now)

	items := svc.ProviderDiagnostics()
	if len(items) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(items))
	}

	byName := make(map[string]domain.ProviderDiagnostics, len(items))
	for _, item := range items {
		byName[item.Name] = item
	}
	if byName[providerVideos].ConsecutiveFailures != 1 {
		t.Fatalf("expected 1 failure recorded for videos, got %+v", byName[providerVideos])
	}
	if byName[providerVideos].LastError == "" {
		t.Fatal("expected last error surfaced in diagnostics")
	}
	if byName[providerSuggestions].LastSuccessAt == nil {
		t.Fatal("expected last success timestamp for suggestions")
	}
	if byName[providerComments].TotalRequests != 0 {
		t.Fatalf("expected untouched comments provider, got %+v", byName[providerComments])
	}
}

func TestDiagnosticsOmitMissingProviders(t *testing.T) {
	svc := NewService(nil, &fakeVideos{}, nil, WithLogger(discardLogger()))
	items := svc.ProviderDiagnostics()
	if len(items) != 1 || items[0].Name != providerVideos {
		t.Fatalf("expected only the videos provider, got %+v", items)
	}
}
