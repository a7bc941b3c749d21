// Package spectral implements speakerembed.Embedder with a log-mel
// filterbank front end and mean/variance statistics pooling, the classic
// i-vector-style summary used before neural speaker encoders. It is the
// stand-in speaker-embedding model for this pipeline: the teacher's and the
// rest of the example pack's only neural speaker encoder
// (askidmobile-AIWisper's ONNX-based SpeakerEncoder) depends on an ONNX
// runtime binding that was deliberately not added to this module's
// dependency graph (see SPEC_FULL.md's domain stack decisions), so the mel
// filterbank math is reused from that reference without the neural backend.
package spectral

import (
	"context"
	"fmt"
	"math"

	"github.com/chaffee-dev/chaffee-ingest/pkg/provider/speakerembed"
	"gonum.org/v1/gonum/dsp/fourier"
)

var _ speakerembed.Embedder = (*Encoder)(nil)

// Encoder computes a fixed-dimension embedding from mono audio samples by
// pooling a log-mel spectrogram into per-bin mean and standard deviation.
type Encoder struct {
	nmels int
	fft   *fourier.FFT
	win   []float64
	cfg   melConfig
}

// NewEncoder builds an Encoder tuned for sampleRate. The embedding dimension
// is 2*NMels (mean and stddev per mel bin).
func NewEncoder(sampleRate int) *Encoder {
	cfg := defaultMelConfig(sampleRate)
	return &Encoder{
		nmels: cfg.NMels,
		fft:   fourier.NewFFT(cfg.NFFT),
		win:   hannWindow(cfg.WinLength),
		cfg:   cfg,
	}
}

// Dimension returns the embedding length produced by Embed.
func (e *Encoder) Dimension() int {
	return e.nmels * 2
}

// Embed computes a log-mel spectrogram over samples and pools it into a
// single L2-normalized vector. sampleRate must match the rate the Encoder
// was constructed for.
func (e *Encoder) Embed(ctx context.Context, samples []float32, sampleRate int) ([]float32, error) {
	if sampleRate != e.cfg.SampleRate {
		return nil, fmt.Errorf("speakerembed/spectral: sample rate %d does not match encoder rate %d", sampleRate, e.cfg.SampleRate)
	}
	if len(samples) < e.cfg.WinLength {
		return nil, fmt.Errorf("speakerembed/spectral: audio too short for embedding (%d samples, need %d)", len(samples), e.cfg.WinLength)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filters := melFilterbank(e.cfg.NFFT, e.nmels, e.cfg.SampleRate)
	numFrames := (len(samples)-e.cfg.WinLength)/e.cfg.HopLength + 1

	sum := make([]float64, e.nmels)
	sumSq := make([]float64, e.nmels)

	frame := make([]float64, e.cfg.NFFT)
	for f := range numFrames {
		start := f * e.cfg.HopLength
		for i := range frame {
			frame[i] = 0
		}
		for i := range e.cfg.WinLength {
			idx := start + i
			if idx < len(samples) {
				frame[i] = float64(samples[idx]) * e.win[i]
			}
		}

		coeffs := e.fft.Coefficients(nil, frame)
		numBins := e.cfg.NFFT/2 + 1
		power := make([]float64, numBins)
		for i := range numBins {
			re, im := real(coeffs[i]), imag(coeffs[i])
			power[i] = re*re + im*im
		}

		for m := range e.nmels {
			var energy float64
			for k, p := range power {
				energy += p * filters[m][k]
			}
			if energy < 1e-9 {
				energy = 1e-9
			}
			logEnergy := math.Log(energy)
			sum[m] += logEnergy
			sumSq[m] += logEnergy * logEnergy
		}
	}

	emb := make([]float32, e.nmels*2)
	n := float64(numFrames)
	for m := range e.nmels {
		mean := sum[m] / n
		variance := sumSq[m]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		emb[m] = float32(mean)
		emb[e.nmels+m] = float32(math.Sqrt(variance))
	}
	return normalize(emb), nil
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-9 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
