package fingerprint

// ExportedPeak is the JSON shape of a single FrequencyPeak.
type ExportedPeak struct {
	FFTPassNumber             int     `json:"fft_pass_number"`
	PeakMagnitude             int     `json:"peak_magnitude"`
	CorrectedPeakFrequencyBin int     `json:"corrected_peak_frequency_bin"`
	FrequencyHz               float64 `json:"_frequency_hz"`
	AmplitudePCM              float64 `json:"_amplitude_pcm"`
	Seconds                   float64 `json:"_seconds"`
}

// ExportedSignature is the JSON shape of a Signature, keyed exactly as the
// distilled spec's toJson operation names them.
type ExportedSignature struct {
	SampleRateHz         int                       `json:"sample_rate_hz"`
	NumberSamples        int                       `json:"number_samples"`
	Seconds              float64                   `json:"_seconds"`
	FrequencyBandToPeaks map[string][]ExportedPeak `json:"frequency_band_to_peaks"`
}

// ToJSON converts a Signature into its exported JSON shape. It performs no
// schema validation; pair it with a SchemaValidator when that matters.
func ToJSON(sig Signature) ExportedSignature {
	out := ExportedSignature{
		SampleRateHz:         sig.SampleRateHz,
		NumberSamples:        sig.NumberSamples,
		Seconds:              sig.Seconds(),
		FrequencyBandToPeaks: make(map[string][]ExportedPeak),
	}

	for _, band := range emittedBands {
		peaks := sig.BandToPeaks[band]
		if len(peaks) == 0 {
			continue
		}
		name := bandNames[band]
		exported := make([]ExportedPeak, len(peaks))
		for i, p := range peaks {
			exported[i] = ExportedPeak{
				FFTPassNumber:             p.FFTPassNumber,
				PeakMagnitude:             p.PeakMagnitude,
				CorrectedPeakFrequencyBin: p.CorrectedPeakFrequencyBin,
				FrequencyHz:               p.FrequencyHz(),
				AmplitudePCM:              p.AmplitudePCM(),
				Seconds:                   p.Seconds(),
			}
		}
		out.FrequencyBandToPeaks[name] = exported
	}

	return out
}
