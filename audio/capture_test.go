package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeMic struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	opened atomic.Int32
	closed atomic.Int32
	err    error
}

func newPipeMic() *pipeMic {
	r, w := io.Pipe()
	return &pipeMic{r: r, w: w}
}

func (m *pipeMic) Open(_ context.Context, _ int) (io.ReadCloser, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.opened.Add(1)
	return m, nil
}

func (m *pipeMic) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *pipeMic) Close() error {
	m.closed.Add(1)
	return m.r.Close()
}

type frameSink struct {
	mu       sync.Mutex
	frames   [][]float64
	loudness []float64
	got      chan struct{}
}

func newFrameSink() *frameSink { return &frameSink{got: make(chan struct{}, 16)} }

func (s *frameSink) onFrame(frame []float64, loudness float64) {
	s.mu.Lock()
	s.frames = append(s.frames, append([]float64(nil), frame...))
	s.loudness = append(s.loudness, loudness)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitFrame(t *testing.T, s *frameSink) {
	t.Helper()
	select {
	case <-s.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
}

func TestCaptureDeliversFixedFrames(t *testing.T) {
	mic := newPipeMic()
	sink := newFrameSink()

	c, err := StartCapture(context.Background(), mic, CaptureConfig{FrameSize: 8}, sink.onFrame)
	require.NoError(t, err)
	defer c.Stop()

	frame := []float64{0.5, -0.5, 0.5, -0.5, 0.5, -0.5, 0.5, -0.5}
	pcm := EncodePCM(frame)

	// split writes across the frame boundary
	go func() {
		_, _ = mic.w.Write(pcm[:5])
		_, _ = mic.w.Write(append(pcm[5:], EncodePCM(make([]float64, 8))...))
	}()

	waitFrame(t, sink)
	waitFrame(t, sink)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, 2)
	for i := range frame {
		assert.InDelta(t, frame[i], sink.frames[0][i], 1.0/32767)
	}
	assert.InDelta(t, 0.5*DefaultLoudnessGain, sink.loudness[0], 1e-3)
	assert.Equal(t, 0.0, sink.loudness[1])
}

func TestCaptureStopIsIdempotent(t *testing.T) {
	mic := newPipeMic()
	sink := newFrameSink()

	c, err := StartCapture(context.Background(), mic, CaptureConfig{FrameSize: 4}, sink.onFrame)
	require.NoError(t, err)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	assert.True(t, c.Stopped())
	assert.Equal(t, int32(1), mic.closed.Load())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture goroutines did not exit")
	}

	_, err = mic.w.Write(EncodePCM(make([]float64, 4)))
	assert.Error(t, err)
	assert.Zero(t, sink.count())
}

func TestCaptureDropsTrailingPartialFrame(t *testing.T) {
	mic := newPipeMic()
	sink := newFrameSink()

	c, err := StartCapture(context.Background(), mic, CaptureConfig{FrameSize: 4}, sink.onFrame)
	require.NoError(t, err)
	defer c.Stop()

	go func() {
		_, _ = mic.w.Write(EncodePCM(make([]float64, 6)))
		_ = mic.w.Close()
	}()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture goroutines did not exit")
	}
	assert.Equal(t, 1, sink.count())
}

func TestCapturePermissionDenied(t *testing.T) {
	mic := newPipeMic()
	mic.err = ErrPermissionDenied

	c, err := StartCapture(context.Background(), mic, CaptureConfig{}, func([]float64, float64) {
		t.Fatal("no frames expected")
	})
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Zero(t, mic.opened.Load())
}

func TestCaptureStoppedBeforeStart(t *testing.T) {
	mic := newPipeMic()

	c, err := OpenCapture(context.Background(), mic, CaptureConfig{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), mic.opened.Load())

	require.NoError(t, c.Stop())
	c.Start(func([]float64, float64) {
		t.Fatal("no frames expected")
	})

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	assert.Equal(t, int32(1), mic.closed.Load())
	assert.True(t, c.Stopped())
}

func TestLoudness(t *testing.T) {
	assert.Equal(t, 0.0, Loudness(nil, 5))
	assert.InDelta(t, 5.0, Loudness([]float64{1, -1, 1, -1}, 5), 1e-9)
}

func TestFixedChunkReader(t *testing.T) {
	r := NewFixedChunkReader(io.MultiReader(
		readerOf([]byte{1, 2, 3}),
		readerOf([]byte{4, 5}),
	), 4)

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])

	n, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, buf[:n])

	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	_, err = r.Read(make([]byte, 2))
	assert.Error(t, err)
}

type sliceReader struct{ b []byte }

func readerOf(b []byte) io.Reader { return &sliceReader{b: b} }

func (s *sliceReader) Read(p []byte) (int, error) {
	if len(s.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.b)
	s.b = s.b[n:]
	return n, nil
}
