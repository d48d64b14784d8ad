package llmadapter

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowsExponentially(t *testing.T) {
	initial := 100 * time.Millisecond
	d0 := backoffDelay(0, initial)
	d3 := backoffDelay(3, initial)

	if d0 < initial || d0 >= 2*initial {
		t.Fatalf("attempt 0 delay %v out of expected [%v, %v)", d0, initial, 2*initial)
	}
	minD3 := initial * 8
	maxD3 := initial * 9
	if d3 < minD3 || d3 >= maxD3 {
		t.Fatalf("attempt 3 delay %v out of expected [%v, %v)", d3, minD3, maxD3)
	}
}

func TestBackoffDelayDefaultsWhenInitialNonPositive(t *testing.T) {
	d := backoffDelay(0, 0)
	if d < time.Second || d >= 2*time.Second {
		t.Fatalf("expected delay in [1s, 2s) when initial<=0, got %v", d)
	}
}

func TestProviderErrorClassification(t *testing.T) {
	if newRetryableErr("x").kind != errRetryable {
		t.Fatal("expected errRetryable")
	}
	if newRateLimitedErr("x", time.Second).kind != errRateLimited {
		t.Fatal("expected errRateLimited")
	}
	if newAbortErr("x").kind != errAbort {
		t.Fatal("expected errAbort")
	}
}
