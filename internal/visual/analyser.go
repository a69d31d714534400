// Package visual turns rendered or captured audio into frequency bars and
// maps clicks on the bar surface back to playback positions.
package visual

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultBins      = 64
	DefaultSmoothing = 0.8
	DefaultMinDB     = -100.0
	DefaultMaxDB     = -30.0
)

// Analyser computes byte-scaled frequency magnitudes over the most recent
// window of samples, with Blackman windowing and exponential smoothing
// between frames.
type Analyser struct {
	bins      int
	size      int
	smoothing float64
	minDB     float64
	maxDB     float64

	mu       sync.Mutex
	ring     []float64
	head     int
	window   []float64
	fft      *fourier.FFT
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

// NewAnalyser returns an analyser producing bins values per frame. The
// transform size is twice the bin count.
func NewAnalyser(bins int) *Analyser {
	if bins <= 0 {
		bins = DefaultBins
	}
	size := bins * 2
	return &Analyser{
		bins:      bins,
		size:      size,
		smoothing: DefaultSmoothing,
		minDB:     DefaultMinDB,
		maxDB:     DefaultMaxDB,
		ring:      make([]float64, size),
		window:    blackman(size),
		fft:       fourier.NewFFT(size),
		frame:     make([]float64, size),
		smoothed:  make([]float64, bins),
	}
}

func (a *Analyser) Bins() int {
	return a.bins
}

// Write appends samples to the analysis window. Only the most recent
// window's worth is kept.
func (a *Analyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	for _, s := range samples {
		a.ring[a.head] = s
		a.head = (a.head + 1) % a.size
	}
}

// FrequencyData fills dst with one value per bin in [0, 255] and returns it.
// dst is reallocated when too short.
func (a *Analyser) FrequencyData(dst []byte) []byte {
	if len(dst) < a.bins {
		dst = make([]byte, a.bins)
	}
	dst = dst[:a.bins]

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < a.size; i++ {
		a.frame[i] = a.ring[(a.head+i)%a.size] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	scale := 255 / (a.maxDB - a.minDB)
	for k := 0; k < a.bins; k++ {
		c := a.coeffs[k]
		mag := math.Hypot(real(c), imag(c)) / float64(a.size)
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag

		db := a.minDB
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := scale * (db - a.minDB)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		dst[k] = byte(v)
	}
	return dst
}

// Reset clears the window and the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.head = 0
}

func blackman(n int) []float64 {
	const (
		a0 = 0.42
		a1 = 0.5
		a2 = 0.08
	)
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}
