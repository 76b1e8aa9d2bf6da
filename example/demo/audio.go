package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/codewandler/concierge-go/audio"
	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 512

// paMicrophone captures mono PCM16 from the default input device.
type paMicrophone struct{}

func (paMicrophone) Open(_ context.Context, sampleRate int) (io.ReadCloser, error) {
	buf := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	}
	return &micStream{stream: stream, buf: buf}, nil
}

type micStream struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	pending []byte
	closed  bool
}

func (m *micStream) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.EOF
	}

	if len(m.pending) == 0 {
		if err := m.stream.Read(); err != nil {
			return 0, err
		}
		m.pending = make([]byte, len(m.buf)*2)
		for i, s := range m.buf {
			binary.LittleEndian.PutUint16(m.pending[i*2:], uint16(s))
		}
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *micStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	_ = m.stream.Stop()
	return m.stream.Close()
}

// paSpeaker plays a Timeline through the default output device.
type paSpeaker struct{}

func (paSpeaker) OpenOutput(sampleRate int) (audio.Output, error) {
	tl := audio.NewTimeline(sampleRate)
	var frames [][2]float64

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, func(out []float32) {
		if cap(frames) < len(out) {
			frames = make([][2]float64, len(out))
		}
		frames = frames[:len(out)]

		if _, ok := tl.Stream(frames); !ok {
			clear(out)
			return
		}
		for i := range out {
			out[i] = float32(frames[i][0])
		}
	})
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, err
	}

	return &speakerOutput{Timeline: tl, stream: stream}, nil
}

type speakerOutput struct {
	*audio.Timeline
	stream *portaudio.Stream
}

func (s *speakerOutput) Close() error {
	_ = s.Timeline.Close()
	_ = s.stream.Stop()
	return s.stream.Close()
}
