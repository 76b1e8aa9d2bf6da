package audio

import (
	"github.com/faiface/beep"
)

const resampleQuality = 3

type sampleStreamer struct {
	data []float64
	pos  int
}

func (s *sampleStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		val := s.data[s.pos]
		samples[i][0] = val
		samples[i][1] = val // duplicate mono to stereo
		s.pos++
	}
	return len(samples), true
}

func (s *sampleStreamer) Err() error { return nil }

// Resample converts mono samples between rates.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	resampler := beep.Resample(resampleQuality, beep.SampleRate(fromRate), beep.SampleRate(toRate), &sampleStreamer{data: samples})

	out := make([]float64, 0, len(samples)*toRate/fromRate+1)
	buf := make([][2]float64, 1024)
	for {
		n, ok := resampler.Stream(buf)
		for i := 0; i < n; i++ {
			out = append(out, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}

	return out
}

// ResamplePCM converts 16 bit PCM between rates.
func ResamplePCM(pcm []byte, fromRate, toRate int) ([]byte, error) {
	samples, err := DecodePCM(pcm)
	if err != nil {
		return nil, err
	}
	return EncodePCM(Resample(samples, fromRate, toRate)), nil
}
