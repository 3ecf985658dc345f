package fingerprint

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

const (
	hopSize          = 128
	powerSpectrumLen = 1025
	// spectralRingSize must be large enough that the peak detector's
	// lookback into raw spectra (46 passes) fits with headroom; 256
	// matches the spread ring so offsets computed against either ring
	// line up.
	spectralRingSize = 256

	minPower = 1e-10
)

// powerSpectrum is |X[k]|^2 for k = 0..1024, lower-clamped to minPower.
type powerSpectrum [powerSpectrumLen]float64

// hannWindow is precomputed once: H[n] = 0.5*(1 - cos(2*pi*n/2047)).
var hannWindow = buildHannWindow()

func buildHannWindow() [ringWindowCapacity]float64 {
	var h [ringWindowCapacity]float64
	for n := range h {
		h[n] = 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(ringWindowCapacity-1)))
	}
	return h
}

// spectralStage turns 128-sample hops into power spectra, keeping the last
// spectralRingSize raw spectra so the peak detector can look back 46
// passes into the *unspread* signal.
type spectralStage struct {
	window ringWindow
	ring   [spectralRingSize]powerSpectrum
	cursor int
	total  int
}

// processHop feeds one 128-sample hop through the ring window, Hann
// window, and real FFT, returning the resulting power spectrum. The
// spectrum is also retained in the internal ring for later lookback.
func (s *spectralStage) processHop(hop []float64) powerSpectrum {
	s.window.write(hop)
	timeOrdered := s.window.snapshotTimeOrdered()

	var windowed [ringWindowCapacity]float64
	for n := range windowed {
		windowed[n] = hannWindow[n] * timeOrdered[n]
	}

	coeffs := fft.FFTReal(windowed[:])

	var spectrum powerSpectrum
	for k := 0; k < powerSpectrumLen; k++ {
		re, im := real(coeffs[k]), imag(coeffs[k])
		p := re*re + im*im
		if p < minPower {
			p = minPower
		}
		spectrum[k] = p
	}

	s.ring[s.cursor] = spectrum
	s.cursor = (s.cursor + 1) % spectralRingSize
	s.total++

	return spectrum
}

// atOffset returns the offset-th most recently written power spectrum:
// atOffset(1) is the latest one, atOffset(2) the one before it (offset
// must be positive and within ring range).
func (s *spectralStage) atOffset(offset int) powerSpectrum {
	idx := ((s.cursor-offset)%spectralRingSize + spectralRingSize) % spectralRingSize
	return s.ring[idx]
}

// reset zeroes the stage for the next signature chunk.
func (s *spectralStage) reset() {
	*s = spectralStage{}
}
