package audio

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/faiface/beep"
)

var ErrOutputClosed = errors.New("audio: output closed")

// Clock is an audio clock measured in seconds since the output was opened.
type Clock interface {
	Now() float64
}

// Output is an audio output context: a clock plus a sink that plays chunks at
// given clock times.
type Output interface {
	Clock
	// Schedule plays chunk starting at clock time at.
	Schedule(chunk Chunk, at float64) error
	// DropPending discards scheduled chunks that have not started yet.
	DropPending()
	Close() error
}

// Speaker opens output contexts.
type Speaker interface {
	OpenOutput(sampleRate int) (Output, error)
}

type scheduledChunk struct {
	start   int
	samples []float64
}

func (s scheduledChunk) end() int { return s.start + len(s.samples) }

// Timeline is a software Output. Its clock advances only as samples are pulled
// through Stream, so the device callback that drains it defines audio time.
type Timeline struct {
	mu      sync.Mutex
	rate    beep.SampleRate
	pos     int
	pending []scheduledChunk
	closed  bool
}

var _ beep.Streamer = (*Timeline)(nil)
var _ Output = (*Timeline)(nil)

func NewTimeline(sampleRate int) *Timeline {
	return &Timeline{rate: beep.SampleRate(sampleRate)}
}

func (t *Timeline) SampleRate() int { return int(t.rate) }

func (t *Timeline) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.pos) / float64(t.rate)
}

func (t *Timeline) Schedule(chunk Chunk, at float64) error {
	samples := chunk.Samples
	if chunk.SampleRate > 0 && chunk.SampleRate != int(t.rate) {
		samples = Resample(samples, chunk.SampleRate, int(t.rate))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrOutputClosed
	}

	start := int(math.Round(at * float64(t.rate)))
	if start < t.pos {
		start = t.pos
	}

	t.pending = append(t.pending, scheduledChunk{start: start, samples: samples})
	sort.SliceStable(t.pending, func(i, j int) bool {
		return t.pending[i].start < t.pending[j].start
	})
	return nil
}

func (t *Timeline) DropPending() {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pending[:0]
	for _, c := range t.pending {
		if c.start < t.pos {
			kept = append(kept, c)
		}
	}
	t.pending = kept
}

// Pending returns the number of chunks that have not finished playing.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stream renders the next len(samples) frames, mixing any overlapping chunks
// and filling gaps with silence. It never drains: the clock keeps running until
// Close.
func (t *Timeline) Stream(samples [][2]float64) (n int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, false
	}

	for i := range samples {
		samples[i] = [2]float64{}
	}

	from, to := t.pos, t.pos+len(samples)
	kept := t.pending[:0]
	for _, c := range t.pending {
		if c.start < to {
			lo := max(c.start, from)
			hi := min(c.end(), to)
			for p := lo; p < hi; p++ {
				v := c.samples[p-c.start]
				samples[p-from][0] += v
				samples[p-from][1] += v
			}
		}
		if c.end() > to {
			kept = append(kept, c)
		}
	}
	t.pending = kept
	t.pos = to

	return len(samples), true
}

func (t *Timeline) Err() error { return nil }

func (t *Timeline) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
	return nil
}
