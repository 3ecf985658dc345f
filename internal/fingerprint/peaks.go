package fingerprint

import "math"

const (
	// peakDetectorLookback is how far back in the raw spectral ring the
	// detector takes its candidate spectrum, and how many spread passes
	// must exist before detection starts. The detector's spread-ring
	// offsets reach further back (down to -91); until the ring holds that
	// many passes those offsets read zero-initialized slots.
	peakDetectorLookback = 46

	// minPeakPower is the raw threshold a candidate bin's power must
	// clear before any neighborhood comparison runs.
	minPeakPower = 1.0 / 64.0

	binLo = 10
	binHi = 1015

	minFrequencyHz = 250.0
	maxFrequencyHz = 5500.0

	magnitudeLogScale  = 1477.3
	magnitudeLogOffset = 6144.0

	// binToHz converts a corrected*64 frequency bin to Hz at 16kHz:
	// hz = bin * sampleRate / (2 * 1024 * 64).
	binFreqDivisor = 2 * 1024 * 64
)

// dominanceOffset is the spread-ring lookback used for both the
// threshold/local-dominance gate and the primary forward-frequency
// neighborhood (steps 1-3 of the detector).
const dominanceOffset = -49

// crossTimeNamedOffsets are the two additional named spread frames that,
// together with the four offsets below, contribute to the "neighborhood
// at other times" maximum (step 4). Values per spec §4.4/§9.
const (
	crossTimeOffsetA = -45
	crossTimeOffsetB = -53
)

// crossTimeSweepOffsets are the four further spread-ring offsets folded
// into the step-4 neighborhood maximum, equivalent to {+165, +201, +214,
// +250} mod 256.
var crossTimeSweepOffsets = [4]int{-91, -55, -42, -6}

// forwardFrequencyOffsets are the frequency-domain neighbor deltas probed
// at dominanceOffset when computing M1 (step 3).
var forwardFrequencyOffsets = [6]int{-10, -3, 1, 2, 5, 8}

// peakDetector inspects a delayed raw power spectrum against its
// spatiotemporal neighborhood in the spread ring and emits FrequencyPeaks.
type peakDetector struct {
	sampleRateHz int
}

func newPeakDetector(sampleRateHz int) *peakDetector {
	return &peakDetector{sampleRateHz: sampleRateHz}
}

// bandedPeak pairs a detected peak with the frequency band it falls into;
// FrequencyPeak itself stays exactly the four-field tuple from the data
// model, so band classification is carried alongside it here instead.
type bandedPeak struct {
	peak FrequencyPeak
	band FrequencyBand
}

// detect runs one peak-detection pass. spectral and spread must already
// reflect the just-pushed hop; it is the caller's responsibility to only
// call this once spread.total >= peakDetectorLookback.
func (d *peakDetector) detect(spectral *spectralStage, spread *spreadStage) []bandedPeak {
	p46 := spectral.atOffset(peakDetectorLookback)
	s49 := spread.atOffset(dominanceOffset)
	sA := spread.atOffset(crossTimeOffsetA)
	sB := spread.atOffset(crossTimeOffsetB)

	var sweep [len(crossTimeSweepOffsets)]powerSpectrum
	for i, off := range crossTimeSweepOffsets {
		sweep[i] = spread.atOffset(off)
	}

	fftPassNumber := spread.total - peakDetectorLookback

	var peaks []bandedPeak
	for k := binLo; k < binHi; k++ {
		if p46[k] < minPeakPower {
			continue
		}
		if p46[k] < s49[k-1] {
			continue
		}

		m1 := 0.0
		for _, delta := range forwardFrequencyOffsets {
			m1 = maxFloat(m1, s49[k+delta])
		}
		if p46[k] <= m1 {
			continue
		}

		m2 := maxFloat(m1, maxFloat(sA[k-1], sB[k-1]))
		for _, s := range sweep {
			m2 = maxFloat(m2, s[k-1])
		}
		if p46[k] <= m2 {
			continue
		}

		a := magnitude(p46[k-1])
		b := magnitude(p46[k])
		c := magnitude(p46[k+1])
		v1 := 2*b - a - c
		if v1 <= 0 {
			continue
		}
		v2 := 32 * (c - a) / v1
		correctedBin := float64(k*64) + v2

		frequencyHz := correctedBin * float64(d.sampleRateHz) / binFreqDivisor
		if frequencyHz < minFrequencyHz || frequencyHz > maxFrequencyHz {
			continue
		}
		peaks = append(peaks, bandedPeak{
			peak: FrequencyPeak{
				FFTPassNumber:             fftPassNumber,
				PeakMagnitude:             clampToUint16(int(math.Floor(b))),
				CorrectedPeakFrequencyBin: clampToUint16(int(math.Floor(correctedBin))),
				SampleRateHz:              d.sampleRateHz,
			},
			band: bandForFrequency(frequencyHz),
		})
	}
	return peaks
}

// magnitude is the log-domain magnitude used for sub-bin correction:
// ln(max(1/64, v)) * 1477.3 + 6144.
func magnitude(v float64) float64 {
	return math.Log(maxFloat(minPeakPower, v))*magnitudeLogScale + magnitudeLogOffset
}

func bandForFrequency(hz float64) FrequencyBand {
	switch {
	case hz < 520:
		return Band250To520
	case hz < 1450:
		return Band520To1450
	case hz < 3500:
		return Band1450To3500
	default:
		return Band3500To5500
	}
}

func clampToUint16(v int) int {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return v
}
