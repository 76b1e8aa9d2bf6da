package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"time"

	"github.com/faiface/beep"
)

const (
	InputSampleRate  = 16_000
	OutputSampleRate = 24_000

	bytesPerSample = 2
	pcmMimeType    = "audio/pcm"
)

// pcm16 is mono, signed, little endian, 16 bit.
var pcm16 = beep.Format{NumChannels: 1, Precision: bytesPerSample}

var ErrDecode = errors.New("audio: decode failed")

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDecode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDecode, e.Reason)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Blob is an encoded audio payload as it travels over the wire: base64 PCM16 plus
// a mime type carrying the sample rate, e.g. "audio/pcm;rate=16000".
type Blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

func NewBlob(pcm []byte, sampleRate int) Blob {
	return Blob{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MimeType: MimeType(sampleRate),
	}
}

func MimeType(sampleRate int) string {
	return fmt.Sprintf("%s;rate=%d", pcmMimeType, sampleRate)
}

// SampleRate returns the rate declared by the mime type, or 0 if absent.
func (b Blob) SampleRate() int {
	_, params, err := mime.ParseMediaType(b.MimeType)
	if err != nil {
		return 0
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil {
		return 0
	}
	return rate
}

// Chunk is a decoded, playable buffer of mono samples.
type Chunk struct {
	Samples    []float64
	SampleRate int
}

func (c Chunk) Len() int { return len(c.Samples) }

func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return beep.SampleRate(c.SampleRate).D(len(c.Samples))
}

// Seconds is the chunk duration in output clock units.
func (c Chunk) Seconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// EncodePCM clamps each sample to [-1,1] and writes it as 16 bit little endian.
func EncodePCM(frame []float64) []byte {
	out := make([]byte, len(frame)*bytesPerSample)
	for i, s := range frame {
		s = clamp(s)
		pcm16.EncodeSigned(out[i*bytesPerSample:], [2]float64{s, s})
	}
	return out
}

// DecodePCM is the inverse of EncodePCM. Odd length input is rejected.
func DecodePCM(pcm []byte) ([]float64, error) {
	if len(pcm)%bytesPerSample != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd length pcm buffer (%d bytes)", len(pcm))}
	}
	samples := make([]float64, len(pcm)/bytesPerSample)
	for i := range samples {
		s, _ := pcm16.DecodeSigned(pcm[i*bytesPerSample:])
		samples[i] = s[0]
	}
	return samples, nil
}

// Encode turns a captured frame into a wire blob tagged with the capture rate.
func Encode(frame []float64, sampleRate int) Blob {
	return NewBlob(EncodePCM(frame), sampleRate)
}

// Decode turns an inbound blob into a chunk playable at targetRate. Blobs that
// declare no rate are assumed to already be at targetRate.
func Decode(b Blob, targetRate int) (Chunk, error) {
	pcm, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return Chunk{}, &DecodeError{Reason: "invalid base64 payload", Err: err}
	}

	samples, err := DecodePCM(pcm)
	if err != nil {
		return Chunk{}, err
	}

	from := b.SampleRate()
	if from <= 0 {
		from = targetRate
	}
	if from != targetRate {
		samples = Resample(samples, from, targetRate)
	}

	return Chunk{Samples: samples, SampleRate: targetRate}, nil
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}
