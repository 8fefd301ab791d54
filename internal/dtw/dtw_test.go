package dtw

import (
	"errors"
	"testing"
)

func vec(v ...float32) []float32 { return v }

func TestIdenticalSequencesHaveZeroDistance(t *testing.T) {
	c := New(Config{MinFrames: 1})
	seq := [][]float32{vec(1, 2, 3), vec(4, 5, 6), vec(7, 8, 9)}

	d, err := c.Distance(seq, seq)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if d != 0 {
		t.Errorf("distance between identical sequences = %v, want 0", d)
	}
}

func TestEmptySequenceReturnsError(t *testing.T) {
	c := New(Config{MinFrames: 0})
	_, err := c.Distance(nil, [][]float32{vec(1)})
	if !errors.Is(err, ErrEmptySequence) {
		t.Errorf("got %v, want ErrEmptySequence", err)
	}
}

func TestShortSequenceReturnsNotReady(t *testing.T) {
	c := New(Config{MinFrames: 5})
	short := [][]float32{vec(1), vec(2)}
	long := make([][]float32, 10)
	for i := range long {
		long[i] = vec(float32(i))
	}

	_, err := c.Distance(short, long)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("got %v, want ErrNotReady", err)
	}
}

func TestDivergentSequenceHasHigherDistanceThanSelf(t *testing.T) {
	c := New(Config{MinFrames: 1})
	a := [][]float32{vec(1, 1), vec(1, 1), vec(1, 1), vec(1, 1)}
	b := [][]float32{vec(10, 10), vec(10, 10), vec(10, 10), vec(10, 10)}

	selfDist, err := c.Distance(a, a)
	if err != nil {
		t.Fatalf("Distance(a,a): %v", err)
	}
	crossDist, err := c.Distance(a, b)
	if err != nil {
		t.Fatalf("Distance(a,b): %v", err)
	}
	if crossDist <= selfDist {
		t.Errorf("cross distance %v should exceed self distance %v", crossDist, selfDist)
	}
}

func TestDifferentLengthSequencesReachTheCorner(t *testing.T) {
	c := New(Config{MinFrames: 1})
	short := [][]float32{vec(1, 1), vec(1, 1)}
	long := make([][]float32, 20)
	for i := range long {
		long[i] = vec(1, 1)
	}

	d, err := c.Distance(short, long)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if d != 0 {
		t.Errorf("distance = %v, want 0 for identical-content sequences of different length", d)
	}
}
