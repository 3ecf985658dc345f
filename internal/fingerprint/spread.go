package fingerprint

// spreadRingSize is the depth of spread-spectrum history the peak
// detector reaches back into; the deepest offset it uses is -91.
const spreadRingSize = 256

// timeSpreadOffsets are the temporal deltas the spread stage chains a
// max-absorb across, applied closest-to-furthest. They widen a frequency
// peak's influence backward in time so later frames see a monotonically
// non-decreasing baseline along these offsets.
var timeSpreadOffsets = [3]int{1, 3, 6}

// spreadStage turns each new power spectrum into a "spread" spectrum: a
// local max over a small frequency-and-time footprint, used as the
// baseline candidate peaks must rise above.
type spreadStage struct {
	ring   [spreadRingSize]powerSpectrum
	cursor int
	total  int
}

// push runs the two-pass suppression described by the spec and appends
// the result to the ring.
func (s *spreadStage) push(p powerSpectrum) {
	q := p // arrays copy by value; q is independent of p from here on.

	// Frequency-domain spread: 3-tap forward max, single ascending pass.
	for k := 0; k < powerSpectrumLen-2; k++ {
		q[k] = max3(q[k], q[k+1], q[k+2])
	}

	// Time-domain spread: chained max-absorb across offsets -1, -3, -6.
	// Each step both reads the target cell's prior value and writes the
	// running max back into it, so the absorb carries forward across
	// offsets in order.
	for k := 0; k < powerSpectrumLen; k++ {
		running := q[k]
		for _, delta := range timeSpreadOffsets {
			idx := ((s.cursor-delta)%spreadRingSize + spreadRingSize) % spreadRingSize
			running = maxFloat(s.ring[idx][k], running)
			s.ring[idx][k] = running
		}
	}

	s.ring[s.cursor] = q
	s.cursor = (s.cursor + 1) % spreadRingSize
	s.total++
}

// atOffset returns the spread spectrum in slot cursor+offset, modulo the
// ring. The cursor is the next slot to be written, so atOffset(-1) is the
// most recently written spectrum and atOffset(-n) the n-th most recent; a
// positive offset names the same slot as offset-spreadRingSize.
func (s *spreadStage) atOffset(offset int) powerSpectrum {
	idx := ((s.cursor+offset)%spreadRingSize + spreadRingSize) % spreadRingSize
	return s.ring[idx]
}

func (s *spreadStage) reset() {
	*s = spreadStage{}
}

func max3(a, b, c float64) float64 {
	return maxFloat(maxFloat(a, b), c)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
