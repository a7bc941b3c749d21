package whisper

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// LoadWAV decodes a PCM WAV file into mono float32 samples normalised to
// [-1.0, 1.0], down-mixing multi-channel audio by averaging channels per
// frame. github.com/go-audio/wav is already part of the whisper.cpp Go
// bindings' own dependency graph (it backs that module's example CLI for
// exactly this job), so decoding here reuses it rather than hand-rolling a
// RIFF chunk reader.
//
// Exported so other stages that need the same decoded samples the ASR
// provider transcribes from — the speaker-attribution stage's monologue
// probe and diarization pass — decode identically rather than each growing
// its own WAV reader.
func LoadWAV(path string) (samples []float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("whisper: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("whisper: decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, fmt.Errorf("whisper: %s has no usable channel format", path)
	}

	channels := buf.Format.NumChannels
	sampleRate = buf.Format.SampleRate
	full := float32(int(1) << uint(buf.SourceBitDepth-1))
	if full == 0 {
		full = 32768
	}

	if channels == 1 {
		samples = make([]float32, len(buf.Data))
		for i, v := range buf.Data {
			samples[i] = float32(v) / full
		}
		return samples, sampleRate, nil
	}

	frames := len(buf.Data) / channels
	samples = make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(buf.Data[i*channels+ch]) / full
		}
		samples[i] = sum / float32(channels)
	}
	return samples, sampleRate, nil
}
