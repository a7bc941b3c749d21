package spectral

import "math"

// melConfig controls the mel filterbank and framing used to turn raw audio
// into a log-mel spectrogram.
type melConfig struct {
	SampleRate int
	NMels      int
	HopLength  int
	WinLength  int
	NFFT       int
}

// defaultMelConfig mirrors common speaker-embedding front ends (WeSpeaker,
// ECAPA-TDNN): 25ms windows, 10ms hop, 40 mel bins, 16kHz input.
func defaultMelConfig(sampleRate int) melConfig {
	return melConfig{
		SampleRate: sampleRate,
		NMels:      40,
		HopLength:  sampleRate / 100,
		WinLength:  sampleRate / 40,
		NFFT:       512,
	}
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range size {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}

// melFilterbank builds a triangular mel filterbank over the positive-frequency
// FFT bins, following the HTK mel scale used by torchaudio/librosa.
func melFilterbank(nfft, nmels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 { return 2595.0 * math.Log10(1.0+hz/700.0) }
	melToHz := func(mel float64) float64 { return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0) }

	numBins := nfft/2 + 1
	fMax := float64(sampleRate) / 2.0

	binFreqs := make([]float64, numBins)
	for i := range numBins {
		binFreqs[i] = float64(i) * fMax / float64(numBins-1)
	}

	mMin, mMax := hzToMel(0), hzToMel(fMax)
	points := make([]float64, nmels+2)
	for i := range points {
		points[i] = melToHz(mMin + float64(i)*(mMax-mMin)/float64(nmels+1))
	}
	gaps := make([]float64, nmels+1)
	for i := range gaps {
		gaps[i] = points[i+1] - points[i]
	}

	filters := make([][]float64, nmels)
	for m := range nmels {
		filters[m] = make([]float64, numBins)
		for k, freq := range binFreqs {
			lower := (freq - points[m]) / gaps[m]
			upper := (points[m+2] - freq) / gaps[m+1]
			v := math.Min(lower, upper)
			if v < 0 {
				v = 0
			}
			filters[m][k] = v
		}
	}
	return filters
}
