// Package dtw computes a Sakoe-Chiba-banded, path-normalized dynamic time
// warping distance between two MFCC frame sequences.
package dtw

import (
	"errors"
	"math"
)

// ErrEmptySequence is returned when either input sequence has zero frames.
var ErrEmptySequence = errors.New("dtw: empty sequence")

// ErrNotReady is returned when a sequence is shorter than MinFrames.
var ErrNotReady = errors.New("dtw: sequence shorter than minimum required frames")

// Config fixes the comparator's band width and minimum-length gate.
type Config struct {
	BandRatio float64 // Sakoe-Chiba band width as a fraction of the longer sequence, default 0.10
	MinFrames int     // sequences shorter than this on either side return ErrNotReady
}

// Comparator computes banded DTW distance between frame-vector sequences.
type Comparator struct {
	cfg Config
}

// New returns a Comparator, defaulting BandRatio to 0.10 if unset.
func New(cfg Config) *Comparator {
	if cfg.BandRatio <= 0 {
		cfg.BandRatio = 0.10
	}
	return &Comparator{cfg: cfg}
}

// Distance computes the path-normalized DTW distance between a and b, two
// sequences of equal-width frame vectors.
func (c *Comparator) Distance(a, b [][]float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptySequence
	}
	if len(a) < c.cfg.MinFrames || len(b) < c.cfg.MinFrames {
		return 0, ErrNotReady
	}

	n, m := len(a), len(b)
	longer := n
	if m > longer {
		longer = m
	}
	band := int(math.Ceil(c.cfg.BandRatio * float64(longer)))
	if band < 1 {
		band = 1
	}
	// The band must be wide enough that (n,m) remains reachable even when
	// the two sequences differ substantially in length.
	if diff := abs(n - m); diff > band {
		band = diff
	}

	const inf = math.MaxFloat64 / 2

	cost := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
		for j := range cost[i] {
			cost[i][j] = inf
		}
	}
	cost[0][0] = 0

	pathLen := make([][]int, n+1)
	for i := range pathLen {
		pathLen[i] = make([]int, m+1)
	}

	for i := 1; i <= n; i++ {
		loJ := i - band
		if loJ < 1 {
			loJ = 1
		}
		hiJ := i + band
		if hiJ > m {
			hiJ = m
		}
		for j := loJ; j <= hiJ; j++ {
			d := euclidean(a[i-1], b[j-1])

			best := cost[i-1][j-1]
			bestLen := pathLen[i-1][j-1]
			if cost[i-1][j] < best {
				best = cost[i-1][j]
				bestLen = pathLen[i-1][j]
			}
			if cost[i][j-1] < best {
				best = cost[i][j-1]
				bestLen = pathLen[i][j-1]
			}

			cost[i][j] = best + d
			pathLen[i][j] = bestLen + 1
		}
	}

	if cost[n][m] >= inf {
		// The band excluded every path to (n,m). The band is widened to
		// at least |n-m| above, so this cannot happen; it is reported as
		// an error rather than returning a meaningless distance.
		return 0, errors.New("dtw: banded path did not reach sequence end")
	}

	return cost[n][m] / float64(pathLen[n][m]), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func euclidean(x, y []float32) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(x[i]) - float64(y[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
