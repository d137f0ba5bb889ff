package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("norm after normalize: got %f, want 1", math.Sqrt(sum))
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("normalized values: %v", x)
	}
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	x := []float32{0, 0, 0}
	NormalizeL2(x)
	for i, v := range x {
		if v != 0 {
			t.Errorf("x[%d] = %f, want 0", i, v)
		}
	}
}
