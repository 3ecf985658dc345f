package fingerprint

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/finch-audio/audiosig/internal/metrics"
)

func codecCounterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return 0
}

func sampleSignature() Signature {
	sig := NewSignature(16000)
	sig.NumberSamples = 49920
	sig.BandToPeaks[Band250To520] = []FrequencyPeak{
		{FFTPassNumber: 12, PeakMagnitude: 7000, CorrectedPeakFrequencyBin: 512, SampleRateHz: 16000},
	}
	sig.BandToPeaks[Band520To1450] = []FrequencyPeak{
		{FFTPassNumber: 40, PeakMagnitude: 6500, CorrectedPeakFrequencyBin: 20480, SampleRateHz: 16000},
		{FFTPassNumber: 90, PeakMagnitude: 6200, CorrectedPeakFrequencyBin: 30000, SampleRateHz: 16000},
	}
	return sig
}

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	sig := sampleSignature()

	bin, err := EncodeBinary(sig)
	require.NoError(t, err)

	decoded, err := DecodeBinary(bin)
	require.NoError(t, err)

	assert.Equal(t, sig.SampleRateHz, decoded.SampleRateHz)
	assert.Equal(t, sig.NumberSamples, decoded.NumberSamples)
	assert.Equal(t, sig.BandToPeaks, decoded.BandToPeaks)
}

func TestEncodeDecodeURIRoundTrip(t *testing.T) {
	sig := sampleSignature()

	uri, err := EncodeURI(sig)
	require.NoError(t, err)
	require.True(t, len(uri) > len(DataURIPrefix))
	assert.Equal(t, DataURIPrefix, uri[:len(DataURIPrefix)])

	decoded, err := DecodeURI(uri)
	require.NoError(t, err)
	assert.Equal(t, sig.BandToPeaks, decoded.BandToPeaks)
}

func TestSizeFieldConsistency(t *testing.T) {
	sig := sampleSignature()
	bin, err := EncodeBinary(sig)
	require.NoError(t, err)

	sizeMinusHeader := uint32(bin[8]) | uint32(bin[9])<<8 | uint32(bin[10])<<16 | uint32(bin[11])<<24
	assert.EqualValues(t, len(bin)-headerSize, sizeMinusHeader)
}

func TestBandRecordAlignment(t *testing.T) {
	sig := sampleSignature()
	bin, err := EncodeBinary(sig)
	require.NoError(t, err)

	body := bin[headerSize:]
	for len(body) > 0 {
		require.True(t, len(body) >= 8)
		length := uint32(body[4]) | uint32(body[5])<<8 | uint32(body[6])<<16 | uint32(body[7])<<24
		assert.EqualValues(t, 0, length%peakRecordSize, "payload length must be a multiple of 5")

		padded := int(length)
		if rem := padded % 4; rem != 0 {
			padded += 4 - rem
		}
		assert.EqualValues(t, 0, (8+padded)%4, "record must occupy a multiple of 4 bytes")

		body = body[8+padded:]
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	sig := sampleSignature()
	bin, err := EncodeBinary(sig)
	require.NoError(t, err)

	bin[0], bin[1], bin[2], bin[3] = 0xEF, 0xBE, 0xAD, 0xDE // little-endian 0xDEADBEEF

	_, err = DecodeBinary(bin)
	require.Error(t, err)
	var codecErr *Error
	require.ErrorAs(t, err, &codecErr)
	assert.Equal(t, "InvalidContainer", codecErr.Kind)
}

func TestCRCFlipDetected(t *testing.T) {
	sig := sampleSignature()
	bin, err := EncodeBinary(sig)
	require.NoError(t, err)
	require.True(t, len(bin) > headerSize)

	bin[headerSize+8] ^= 0xFF // flip a byte inside the first peak record

	_, err = DecodeBinary(bin)
	require.Error(t, err)
	var codecErr *Error
	require.ErrorAs(t, err, &codecErr)
	assert.Equal(t, "InvalidContainer", codecErr.Kind)
}

func TestDecodeURIRejectsBadPrefix(t *testing.T) {
	_, err := DecodeURI("data:text/plain,hello")
	require.Error(t, err)
	var codecErr *Error
	require.ErrorAs(t, err, &codecErr)
	assert.Equal(t, "InvalidUri", codecErr.Kind)
}

// genSignature builds arbitrary well-formed signatures for property tests:
// any sample rate from the enum, any number of samples, and a handful of
// peaks per emitted band with values that fit the u8/u16 wire fields. The
// pass delta range is wide enough that accumulated FFTPassNumber values
// routinely exceed 255, exercising the wire format's saturating clamp.
func genSignature(t *rapid.T) Signature {
	sampleRateHz := rapid.SampledFrom([]int{8000, 11025, 16000, 32000, 44100, 48000}).Draw(t, "sampleRateHz")
	sig := NewSignature(sampleRateHz)
	sig.NumberSamples = rapid.IntRange(0, 2_000_000).Draw(t, "numberSamples")

	for _, band := range emittedBands {
		n := rapid.IntRange(0, 6).Draw(t, "peakCount")
		pass := 0
		for i := 0; i < n; i++ {
			pass += rapid.IntRange(0, 100).Draw(t, "passDelta")
			peak := FrequencyPeak{
				FFTPassNumber:             pass,
				PeakMagnitude:             rapid.IntRange(0, 65535).Draw(t, "peakMagnitude"),
				CorrectedPeakFrequencyBin: rapid.IntRange(0, 65535).Draw(t, "correctedBin"),
				SampleRateHz:              sampleRateHz,
			}
			sig.BandToPeaks[band] = append(sig.BandToPeaks[band], peak)
		}
	}
	return sig
}

func TestPropertyCodecRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sig := genSignature(t)

		bin, err := EncodeBinary(sig)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		decoded, err := DecodeBinary(bin)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if decoded.SampleRateHz != sig.SampleRateHz {
			t.Fatalf("sample rate: got %d want %d", decoded.SampleRateHz, sig.SampleRateHz)
		}
		if decoded.NumberSamples != sig.NumberSamples {
			t.Fatalf("number samples: got %d want %d", decoded.NumberSamples, sig.NumberSamples)
		}
		for _, band := range emittedBands {
			want := sig.BandToPeaks[band]
			got := decoded.BandToPeaks[band]
			if len(want) != len(got) {
				t.Fatalf("band %v: peak count got %d want %d", band, len(got), len(want))
			}
			for i := range want {
				expected := want[i]
				expected.FFTPassNumber = clampToUint8(expected.FFTPassNumber)
				if got[i] != expected {
					t.Fatalf("band %v peak %d: got %+v want %+v (clamped from %+v)", band, i, got[i], expected, want[i])
				}
			}
		}
	})
}

func TestFFTPassNumberSaturatesAtEncode(t *testing.T) {
	sig := NewSignature(16000)
	sig.BandToPeaks[Band250To520] = []FrequencyPeak{
		{FFTPassNumber: 300, PeakMagnitude: 100, CorrectedPeakFrequencyBin: 200, SampleRateHz: 16000},
	}

	bin, err := EncodeBinary(sig)
	require.NoError(t, err)

	decoded, err := DecodeBinary(bin)
	require.NoError(t, err)

	require.Len(t, decoded.BandToPeaks[Band250To520], 1)
	assert.Equal(t, 255, decoded.BandToPeaks[Band250To520][0].FFTPassNumber)
}

func TestDecodeBinaryWithMetricsRecordsFailureKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sig := sampleSignature()
	bin, err := EncodeBinary(sig)
	require.NoError(t, err)

	_, err = DecodeBinaryWithMetrics(bin, m)
	require.NoError(t, err)
	assert.Equal(t, float64(0), codecCounterValue(t, m.DecodeFailures.WithLabelValues("InvalidContainer")))

	bin[0], bin[1], bin[2], bin[3] = 0xEF, 0xBE, 0xAD, 0xDE
	_, err = DecodeBinaryWithMetrics(bin, m)
	require.Error(t, err)
	assert.Equal(t, float64(1), codecCounterValue(t, m.DecodeFailures.WithLabelValues("InvalidContainer")))

	_, err = DecodeURIWithMetrics("data:text/plain,hello", m)
	require.Error(t, err)
	assert.Equal(t, float64(1), codecCounterValue(t, m.DecodeFailures.WithLabelValues("InvalidUri")))
}

func TestPropertySizeFieldAlwaysConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sig := genSignature(t)
		bin, err := EncodeBinary(sig)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		sizeMinusHeader := uint32(bin[8]) | uint32(bin[9])<<8 | uint32(bin[10])<<16 | uint32(bin[11])<<24
		if int(sizeMinusHeader) != len(bin)-headerSize {
			t.Fatalf("size field %d != %d", sizeMinusHeader, len(bin)-headerSize)
		}
	})
}
