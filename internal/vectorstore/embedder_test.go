package vectorstore

import (
	"math"
	"testing"
)

func TestL2Normalize(t *testing.T) {
	v := l2Normalize([]float32{3, 4})
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if math.Abs(sumSquares-1) > 1e-6 {
		t.Errorf("expected unit vector, got sum-of-squares %f", sumSquares)
	}
}

func TestL2NormalizeZeroVector(t *testing.T) {
	v := l2Normalize([]float32{0, 0, 0})
	for _, x := range v {
		if x != 0 {
			t.Errorf("expected zero vector to remain zero, got %v", v)
		}
	}
}

func TestQuoteFTSQuery(t *testing.T) {
	cases := map[string]string{
		"climate change": `"climate change"`,
		"reefs":          "reefs",
		"2026":           `"2026"`,
		"":               "",
	}
	for in, want := range cases {
		if got := quoteFTSQuery(in); got != want {
			t.Errorf("quoteFTSQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
