// Package fingerprint implements the acoustic signature pipeline: a
// streaming spectral analysis that turns 16-bit PCM audio into sparse
// time-frequency peak maps, and the binary/URI/JSON codec for those
// signatures.
package fingerprint

import "math"

// FrequencyBand buckets a peak's corrected frequency. Band -1 exists only
// so the enum mirrors the wire format's bandTag space; it is never
// populated by the detector since peaks below 250 Hz are dropped.
type FrequencyBand int

const (
	BandBelow250   FrequencyBand = -1
	Band250To520   FrequencyBand = 0
	Band520To1450  FrequencyBand = 1
	Band1450To3500 FrequencyBand = 2
	Band3500To5500 FrequencyBand = 3
)

// bandNames gives the snake-ish range names used by the JSON export and,
// indirectly, by the schema describing it.
var bandNames = map[FrequencyBand]string{
	BandBelow250:   "0_250",
	Band250To520:   "250_520",
	Band520To1450:  "520_1450",
	Band1450To3500: "1450_3500",
	Band3500To5500: "3500_5500",
}

// emittedBands lists the bands the detector ever produces, in their
// canonical iteration order for encoding and export.
var emittedBands = []FrequencyBand{Band250To520, Band520To1450, Band1450To3500, Band3500To5500}

// SampleRate is the on-wire sample rate enumeration. Only these six values
// may appear in a container header; anything else is UnsupportedSampleRate.
type SampleRate uint32

const (
	SampleRate8000  SampleRate = 1
	SampleRate11025 SampleRate = 2
	SampleRate16000 SampleRate = 3
	SampleRate32000 SampleRate = 4
	SampleRate44100 SampleRate = 5
	SampleRate48000 SampleRate = 6
)

var sampleRateToHz = map[SampleRate]int{
	SampleRate8000:  8000,
	SampleRate11025: 11025,
	SampleRate16000: 16000,
	SampleRate32000: 32000,
	SampleRate44100: 44100,
	SampleRate48000: 48000,
}

var hzToSampleRate = map[int]SampleRate{
	8000:  SampleRate8000,
	11025: SampleRate11025,
	16000: SampleRate16000,
	32000: SampleRate32000,
	44100: SampleRate44100,
	48000: SampleRate48000,
}

// sampleRateIDForHz returns the enum id for hz and whether it is known.
func sampleRateIDForHz(hz int) (SampleRate, bool) {
	id, ok := hzToSampleRate[hz]
	return id, ok
}

// hzForSampleRateID returns the sample rate in Hz for a wire enum id.
func hzForSampleRateID(id uint32) (int, bool) {
	hz, ok := sampleRateToHz[SampleRate(id)]
	return hz, ok
}

// SampleRateIDForHz is the exported form of sampleRateIDForHz, for callers
// outside this package (e.g. config validation) that need to check whether
// a sample rate is one of the six the wire format supports.
func SampleRateIDForHz(hz int) (SampleRate, bool) {
	return sampleRateIDForHz(hz)
}

// FrequencyPeak is a single detected spectral landmark.
type FrequencyPeak struct {
	FFTPassNumber             int
	PeakMagnitude             int
	CorrectedPeakFrequencyBin int
	SampleRateHz              int
}

// FrequencyHz converts the corrected bin back to Hz.
func (p FrequencyPeak) FrequencyHz() float64 {
	return float64(p.CorrectedPeakFrequencyBin) * (float64(p.SampleRateHz) / 2 / 1024 / 64)
}

// AmplitudePCM estimates the linear PCM amplitude that produced this peak's
// magnitude, inverting the log-domain magnitude formula used by the
// detector's sub-bin correction step.
func (p FrequencyPeak) AmplitudePCM() float64 {
	return math.Sqrt(math.Exp(float64(p.PeakMagnitude-6144)/1477.3)*(1<<17)/2) / 1024
}

// Seconds is this peak's position in the stream, relative to the start of
// the chunk it was emitted in.
func (p FrequencyPeak) Seconds() float64 {
	return float64(p.FFTPassNumber*128) / float64(p.SampleRateHz)
}

// Signature is one emitted chunk of the assembler: every peak detected
// across a bounded window of input, grouped by frequency band.
type Signature struct {
	SampleRateHz  int
	NumberSamples int
	BandToPeaks   map[FrequencyBand][]FrequencyPeak
}

// NewSignature returns an empty signature ready to accumulate peaks.
func NewSignature(sampleRateHz int) Signature {
	return Signature{
		SampleRateHz: sampleRateHz,
		BandToPeaks:  make(map[FrequencyBand][]FrequencyPeak),
	}
}

// TotalPeaks sums peaks across every band.
func (s Signature) TotalPeaks() int {
	total := 0
	for _, peaks := range s.BandToPeaks {
		total += len(peaks)
	}
	return total
}

// Seconds is the duration this signature spans, derived from NumberSamples.
func (s Signature) Seconds() float64 {
	if s.SampleRateHz == 0 {
		return 0
	}
	return float64(s.NumberSamples) / float64(s.SampleRateHz)
}
