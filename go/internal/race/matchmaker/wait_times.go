package matchmaker

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultWaitWindow = 100
	DefaultWaitFloor  = 0.02
)

// WaitTracker keeps a moving average of matchmaking wait times, in seconds,
// over a fixed ring of recent samples.
type WaitTracker struct {
	mu      sync.Mutex
	samples []float64
	next    int
	count   int
	sum     float64
	floor   float64
}

func NewWaitTracker(window int, floor float64) *WaitTracker {
	if window <= 0 {
		window = DefaultWaitWindow
	}
	if floor <= 0 {
		floor = DefaultWaitFloor
	}
	return &WaitTracker{
		samples: make([]float64, window),
		floor:   floor,
	}
}

// Record adds one wait sample, evicting the oldest once the ring is full.
func (w *WaitTracker) Record(d time.Duration) {
	secs := math.Max(d.Seconds(), 0)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == len(w.samples) {
		w.sum -= w.samples[w.next]
	} else {
		w.count++
	}
	w.samples[w.next] = secs
	w.sum += secs
	w.next = (w.next + 1) % len(w.samples)
}

// Average returns the mean of the window rounded to two decimals, never below the floor.
func (w *WaitTracker) Average() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == 0 {
		return w.floor
	}
	avg := math.Max(w.floor, w.sum/float64(w.count))
	return math.Round(avg*100) / 100
}

// Len returns the number of samples in the window.
func (w *WaitTracker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}
