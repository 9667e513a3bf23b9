package facematch

import (
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        Descriptor
		b        Descriptor
		expected float64
	}{
		{"identical", Descriptor{1, 2, 3}, Descriptor{1, 2, 3}, 0},
		{"3-4-5 triangle", Descriptor{0, 0}, Descriptor{3, 4}, 5},
		{"unit apart", Descriptor{0, 0, 1}, Descriptor{0, 0, 0}, 1},
		{"different lengths", Descriptor{1, 2}, Descriptor{1, 2, 3}, math.Inf(1)},
		{"empty", Descriptor{}, Descriptor{}, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EuclideanDistance(tt.a, tt.b)
			if math.IsInf(tt.expected, 1) {
				if !math.IsInf(result, 1) {
					t.Errorf("EuclideanDistance(%v, %v) = %v, want +Inf", tt.a, tt.b, result)
				}
				return
			}
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        Descriptor
		b        Descriptor
		expected float64
	}{
		{"identical", Descriptor{1, 0}, Descriptor{1, 0}, 0},
		{"same direction", Descriptor{1, 1}, Descriptor{2, 2}, 0},
		{"orthogonal", Descriptor{1, 0}, Descriptor{0, 1}, 1},
		{"opposite", Descriptor{1, 0}, Descriptor{-1, 0}, 2},
		{"zero vector", Descriptor{0, 0}, Descriptor{1, 0}, math.Inf(1)},
		{"different lengths", Descriptor{1}, Descriptor{1, 0}, math.Inf(1)},
		{"empty", Descriptor{}, Descriptor{}, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineDistance(tt.a, tt.b)
			if math.IsInf(tt.expected, 1) {
				if !math.IsInf(result, 1) {
					t.Errorf("CosineDistance(%v, %v) = %v, want +Inf", tt.a, tt.b, result)
				}
				return
			}
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input    string
		expected Metric
		wantErr  bool
	}{
		{"euclidean", MetricEuclidean, false},
		{"", MetricEuclidean, false},
		{"Cosine", MetricCosine, false},
		{" cosine ", MetricCosine, false},
		{"manhattan", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ParseMetric(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMetric(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if m != tt.expected {
				t.Errorf("ParseMetric(%q) = %q, want %q", tt.input, m, tt.expected)
			}
		})
	}
}
