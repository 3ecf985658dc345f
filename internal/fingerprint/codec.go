package fingerprint

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/finch-audio/audiosig/internal/metrics"
)

const (
	// DataURIPrefix is the required prefix of the data-URI container form.
	DataURIPrefix = "data:audio/vnd.shazam.sig;base64,"

	magic1 uint32 = 0xCAFE2580
	magic2 uint32 = 0x94119C00

	headerSize = 48

	sampleRateShift = 27

	bandTagBase uint32 = 0x60030040

	peakRecordSize = 5 // u8 fftPassNumber + u16 peakMagnitude + u16 correctedPeakFrequencyBin
)

// sampleRateBias is the on-wire obfuscation added to numberSamples: an
// opaque ⌊sampleRateHz * 0.24⌋ term that encoders must add and decoders
// must subtract.
func sampleRateBias(sampleRateHz int) uint32 {
	return uint32(math.Floor(float64(sampleRateHz) * 0.24))
}

// Error is returned by codec operations; Kind identifies the failure mode
// from §7 so callers can branch without parsing the message.
type Error struct {
	Kind string
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func invalidContainer(format string, args ...any) error {
	return &Error{Kind: "InvalidContainer", Msg: fmt.Sprintf(format, args...)}
}

func invalidURI(format string, args ...any) error {
	return &Error{Kind: "InvalidUri", Msg: fmt.Sprintf(format, args...)}
}

func unsupportedSampleRate(format string, args ...any) error {
	return &Error{Kind: "UnsupportedSampleRate", Msg: fmt.Sprintf(format, args...)}
}

// EncodeBinary serializes a Signature to the container's binary form. The
// 48-byte header is written exactly once; this deliberately does not
// reproduce the source's stray header-duplication bug (see DESIGN.md).
func EncodeBinary(sig Signature) ([]byte, error) {
	rateID, ok := sampleRateIDForHz(sig.SampleRateHz)
	if !ok {
		return nil, unsupportedSampleRate("sample rate %d Hz has no enum id", sig.SampleRateHz)
	}

	contents := new(bytes.Buffer)
	for _, band := range emittedBands {
		peaks := sig.BandToPeaks[band]
		if len(peaks) == 0 {
			continue
		}

		payload := make([]byte, 0, len(peaks)*peakRecordSize)
		for _, p := range peaks {
			payload = append(payload, byte(clampToUint8(p.FFTPassNumber)))
			payload = binary.LittleEndian.AppendUint16(payload, uint16(clampToUint16(p.PeakMagnitude)))
			payload = binary.LittleEndian.AppendUint16(payload, uint16(clampToUint16(p.CorrectedPeakFrequencyBin)))
		}

		var tag [4]byte
		binary.LittleEndian.PutUint32(tag[:], bandTagBase+uint32(int32(band)))
		contents.Write(tag[:])

		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		contents.Write(lenBuf[:])

		contents.Write(payload)
		if pad := (4 - len(payload)%4) % 4; pad > 0 {
			contents.Write(make([]byte, pad))
		}
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], magic1)
	// header[4:8] (CRC32) is filled in last.
	binary.LittleEndian.PutUint32(header[8:12], uint32(contents.Len()))
	binary.LittleEndian.PutUint32(header[12:16], magic2)
	// header[16:28] reserved, header[32:44] reserved: left zero.
	binary.LittleEndian.PutUint32(header[28:32], uint32(rateID)<<sampleRateShift)
	binary.LittleEndian.PutUint32(header[44:48], uint32(sig.NumberSamples)+sampleRateBias(sig.SampleRateHz))

	buf := make([]byte, 0, headerSize+contents.Len())
	buf = append(buf, header...)
	buf = append(buf, contents.Bytes()...)

	crc := crc32.ChecksumIEEE(buf[8:])
	binary.LittleEndian.PutUint32(buf[4:8], crc)

	return buf, nil
}

// DecodeBinary parses the container's binary form back into a Signature.
func DecodeBinary(data []byte) (Signature, error) {
	if len(data) < headerSize {
		return Signature{}, invalidContainer("container too short: %d bytes, need at least %d", len(data), headerSize)
	}

	if got := binary.LittleEndian.Uint32(data[0:4]); got != magic1 {
		return Signature{}, invalidContainer("bad magic1: got 0x%08X, want 0x%08X", got, magic1)
	}
	storedCRC := binary.LittleEndian.Uint32(data[4:8])
	if got := crc32.ChecksumIEEE(data[8:]); got != storedCRC {
		return Signature{}, invalidContainer("CRC mismatch: computed 0x%08X, stored 0x%08X", got, storedCRC)
	}
	sizeMinusHeader := binary.LittleEndian.Uint32(data[8:12])
	if want := uint32(len(data) - headerSize); sizeMinusHeader != want {
		return Signature{}, invalidContainer("size field %d does not match actual %d", sizeMinusHeader, want)
	}
	if got := binary.LittleEndian.Uint32(data[12:16]); got != magic2 {
		return Signature{}, invalidContainer("bad magic2: got 0x%08X, want 0x%08X", got, magic2)
	}

	rateID := binary.LittleEndian.Uint32(data[28:32]) >> sampleRateShift
	sampleRateHz, ok := hzForSampleRateID(rateID)
	if !ok {
		return Signature{}, unsupportedSampleRate("unknown sample rate id %d", rateID)
	}

	biased := binary.LittleEndian.Uint32(data[44:48])
	numberSamples := int(biased - sampleRateBias(sampleRateHz))

	sig := Signature{
		SampleRateHz:  sampleRateHz,
		NumberSamples: numberSamples,
		BandToPeaks:   make(map[FrequencyBand][]FrequencyPeak),
	}

	body := data[headerSize:]
	for len(body) > 0 {
		if len(body) < 8 {
			return Signature{}, invalidContainer("truncated band record header at offset %d", len(data)-len(body))
		}
		tag := binary.LittleEndian.Uint32(body[0:4])
		length := binary.LittleEndian.Uint32(body[4:8])
		body = body[8:]

		if length%peakRecordSize != 0 {
			return Signature{}, invalidContainer("band payload length %d not a multiple of %d", length, peakRecordSize)
		}
		padded := int(length)
		if rem := padded % 4; rem != 0 {
			padded += 4 - rem
		}
		if len(body) < padded {
			return Signature{}, invalidContainer("truncated band record payload: need %d bytes, have %d", padded, len(body))
		}

		bandID := int32(tag - bandTagBase)
		band := FrequencyBand(bandID)
		if _, known := bandNames[band]; !known {
			return Signature{}, invalidContainer("unknown band tag 0x%08X", tag)
		}

		payload := body[:length]
		for i := 0; i < len(payload); i += peakRecordSize {
			sig.BandToPeaks[band] = append(sig.BandToPeaks[band], FrequencyPeak{
				FFTPassNumber:             int(payload[i]),
				PeakMagnitude:             int(binary.LittleEndian.Uint16(payload[i+1 : i+3])),
				CorrectedPeakFrequencyBin: int(binary.LittleEndian.Uint16(payload[i+3 : i+5])),
				SampleRateHz:              sampleRateHz,
			})
		}

		body = body[padded:]
	}

	return sig, nil
}

// DecodeBinaryWithMetrics behaves exactly like DecodeBinary, additionally
// recording a DecodeFailures observation keyed by the Error's Kind when
// decoding fails. m may be nil.
func DecodeBinaryWithMetrics(data []byte, m *metrics.Metrics) (Signature, error) {
	sig, err := DecodeBinary(data)
	if err != nil {
		m.ObserveDecodeFailure(decodeFailureKind(err))
	}
	return sig, err
}

// DecodeURIWithMetrics behaves exactly like DecodeURI, additionally
// recording a DecodeFailures observation keyed by the failure kind when
// decoding fails. m may be nil.
func DecodeURIWithMetrics(uri string, m *metrics.Metrics) (Signature, error) {
	sig, err := DecodeURI(uri)
	if err != nil {
		m.ObserveDecodeFailure(decodeFailureKind(err))
	}
	return sig, err
}

func decodeFailureKind(err error) string {
	var codecErr *Error
	if errors.As(err, &codecErr) {
		return codecErr.Kind
	}
	return "Unknown"
}

// EncodeURI encodes the signature to its base64 data-URI form.
func EncodeURI(sig Signature) (string, error) {
	bin, err := EncodeBinary(sig)
	if err != nil {
		return "", err
	}
	return DataURIPrefix + base64.StdEncoding.EncodeToString(bin), nil
}

// DecodeURI decodes a data-URI container back into a Signature.
func DecodeURI(uri string) (Signature, error) {
	if len(uri) < len(DataURIPrefix) || uri[:len(DataURIPrefix)] != DataURIPrefix {
		return Signature{}, invalidURI("missing prefix %q", DataURIPrefix)
	}
	bin, err := base64.StdEncoding.DecodeString(uri[len(DataURIPrefix):])
	if err != nil {
		return Signature{}, invalidURI("invalid base64 payload: %v", err)
	}
	return DecodeBinary(bin)
}

func clampToUint8(v int) int {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint8 {
		return math.MaxUint8
	}
	return v
}
