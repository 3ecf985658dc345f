package fingerprint

import "github.com/finch-audio/audiosig/internal/metrics"

const (
	// DefaultMaxTimeSeconds bounds how much audio a single emitted
	// signature may span.
	DefaultMaxTimeSeconds = 3.1
	// DefaultMaxPeaks bounds how many peaks a single emitted signature
	// may carry across all bands.
	DefaultMaxPeaks = 255
)

// Assembler drives the spectral, spread, and peak-detection stages over a
// stream of PCM samples and emits bounded Signature chunks. One Assembler
// owns one stream; it is not safe for concurrent use by multiple
// goroutines, matching the single-threaded, synchronous core.
type Assembler struct {
	sampleRateHz    int
	maxTimeSeconds  float64
	maxPeaks        int
	metrics         *metrics.Metrics
	spectral        spectralStage
	spread          spreadStage
	detector        *peakDetector
	pending         []float64
	current         Signature
	streamOffsetSec float64
}

// NewAssembler constructs an Assembler for the given sample rate using the
// default duration/peak-count limits and no metrics.
func NewAssembler(sampleRateHz int) *Assembler {
	return NewAssemblerWithLimits(sampleRateHz, DefaultMaxTimeSeconds, DefaultMaxPeaks, nil)
}

// NewAssemblerWithMetrics constructs an Assembler for the given sample rate
// using the default duration/peak-count limits, recording emitted-signature
// observations against m. m may be nil.
func NewAssemblerWithMetrics(sampleRateHz int, m *metrics.Metrics) *Assembler {
	return NewAssemblerWithLimits(sampleRateHz, DefaultMaxTimeSeconds, DefaultMaxPeaks, m)
}

// NewAssemblerWithLimits constructs an Assembler with explicit emission
// limits and an optional Metrics instance, letting callers (e.g. Config)
// override the defaults. m may be nil.
func NewAssemblerWithLimits(sampleRateHz int, maxTimeSeconds float64, maxPeaks int, m *metrics.Metrics) *Assembler {
	a := &Assembler{
		sampleRateHz:   sampleRateHz,
		maxTimeSeconds: maxTimeSeconds,
		maxPeaks:       maxPeaks,
		metrics:        m,
		detector:       newPeakDetector(sampleRateHz),
	}
	a.current = NewSignature(sampleRateHz)
	return a
}

// FeedInput enqueues raw samples for processing. It may be called
// incrementally with any number of samples.
func (a *Assembler) FeedInput(samples []int16) {
	for _, s := range samples {
		a.pending = append(a.pending, float64(s))
	}
}

// TryTake drives the pipeline 128 samples at a time until the current
// chunk's duration or peak-count ceiling is reached, then detaches and
// returns it along with the stream offset (in seconds) at which the chunk
// began. It returns ok=false if fewer than 128 unprocessed samples remain,
// in which case no signature is emitted and pending samples are left
// queued for the next call.
func (a *Assembler) TryTake() (sig Signature, offsetSeconds float64, ok bool) {
	for len(a.pending) >= hopSize {
		hop := a.pending[:hopSize]
		a.pending = a.pending[hopSize:]

		power := a.spectral.processHop(hop)
		a.spread.push(power)
		a.current.NumberSamples += hopSize

		if a.spread.total >= peakDetectorLookback {
			for _, bp := range a.detector.detect(&a.spectral, &a.spread) {
				a.current.BandToPeaks[bp.band] = append(a.current.BandToPeaks[bp.band], bp.peak)
			}
		}

		if a.chunkComplete() {
			return a.detach()
		}
	}
	return Signature{}, 0, false
}

func (a *Assembler) chunkComplete() bool {
	if float64(a.current.NumberSamples)/float64(a.sampleRateHz) >= a.maxTimeSeconds {
		return true
	}
	return a.current.TotalPeaks() >= a.maxPeaks
}

// detach hands off the in-progress signature, advances the running stream
// offset, and resets every DSP ring for the next chunk.
func (a *Assembler) detach() (Signature, float64, bool) {
	emitted := a.current
	offset := a.streamOffsetSec

	a.metrics.ObserveSignature(emitted.TotalPeaks())

	a.streamOffsetSec += emitted.Seconds()
	a.spectral.reset()
	a.spread.reset()
	a.current = NewSignature(a.sampleRateHz)

	return emitted, offset, true
}
