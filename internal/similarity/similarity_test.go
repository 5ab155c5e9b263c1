package similarity

import (
	"math"
	"testing"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{
			name:     "identical",
			a:        "buy cheap nitro now",
			b:        "buy cheap nitro now",
			expected: 1.0,
		},
		{
			name:     "case insensitive",
			a:        "Free Nitro",
			b:        "free nitro",
			expected: 1.0,
		},
		{
			name:     "disjoint",
			a:        "hello world",
			b:        "foo bar",
			expected: 0.0,
		},
		{
			name:     "half overlap",
			a:        "a b c",
			b:        "a b d",
			expected: 0.5,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: 1.0,
		},
		{
			name:     "one empty",
			a:        "hello",
			b:        "",
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{
			name:     "identical",
			a:        "raider123",
			b:        "raider123",
			expected: 1.0,
		},
		{
			name:     "one substitution",
			a:        "raider123",
			b:        "raider124",
			expected: 8.0 / 9.0,
		},
		{
			name:     "completely different same length",
			a:        "aaaa",
			b:        "bbbb",
			expected: 0.0,
		},
		{
			name:     "both empty",
			a:        "",
			b:        "",
			expected: 1.0,
		},
		{
			name:     "one empty",
			a:        "user",
			b:        "",
			expected: 0.0,
		},
		{
			name:     "prefix",
			a:        "user1234",
			b:        "user12",
			expected: 6.0 / 8.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Levenshtein(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Levenshtein(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"buy nitro free", "free nitro giveaway"},
		{"userA991", "userB991"},
		{"", "something"},
		{"x", "xyzzy"},
	}

	for _, p := range pairs {
		if j1, j2 := Jaccard(p[0], p[1]), Jaccard(p[1], p[0]); j1 != j2 {
			t.Errorf("Jaccard not symmetric for %q/%q: %v vs %v", p[0], p[1], j1, j2)
		}
		if l1, l2 := Levenshtein(p[0], p[1]), Levenshtein(p[1], p[0]); l1 != l2 {
			t.Errorf("Levenshtein not symmetric for %q/%q: %v vs %v", p[0], p[1], l1, l2)
		}
	}
}

func TestSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"a", "b"},
		{"abcdef", "abc"},
		{"hello world foo", "hello"},
	}

	for _, p := range pairs {
		for _, v := range []float64{Jaccard(p[0], p[1]), Levenshtein(p[0], p[1])} {
			if v < 0 || v > 1 {
				t.Errorf("similarity out of bounds for %q/%q: %v", p[0], p[1], v)
			}
		}
	}
}
