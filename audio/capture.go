package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"
)

const (
	DefaultFrameSize    = 4096
	DefaultLoudnessGain = 5.0

	// frames of slack between the device and the frame consumer
	captureBufferFrames = 4
)

var (
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	errCaptureStopped   = errors.New("audio: capture stopped")
)

// Microphone is an exclusive capture device.
type Microphone interface {
	// Open acquires the device at sampleRate. The returned reader yields mono
	// PCM16 little endian; closing it releases the device.
	Open(ctx context.Context, sampleRate int) (io.ReadCloser, error)
}

// FrameFunc receives every captured frame together with its loudness. The frame
// slice is only valid for the duration of the call.
type FrameFunc func(frame []float64, loudness float64)

type CaptureConfig struct {
	SampleRate   int
	FrameSize    int
	LoudnessGain float64
	Logger       *slog.Logger
}

func (c *CaptureConfig) withDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = InputSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.LoudnessGain == 0 {
		c.LoudnessGain = DefaultLoudnessGain
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Capture owns an acquired microphone. Once started, frames are pushed to the
// callback from a dedicated goroutine in capture order.
type Capture struct {
	cfg       CaptureConfig
	dev       io.ReadCloser
	buf       *ringbuffer.RingBuffer
	onFrame   FrameFunc
	startOnce sync.Once
	stopped   atomic.Bool
	stopOnce  sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
}

// OpenCapture acquires the microphone without delivering frames yet.
func OpenCapture(ctx context.Context, mic Microphone, cfg CaptureConfig) (*Capture, error) {
	cfg.withDefaults()

	dev, err := mic.Open(ctx, cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	return &Capture{
		cfg:  cfg,
		dev:  dev,
		buf:  ringbuffer.New(FrameBytes(cfg.FrameSize) * captureBufferFrames).SetBlocking(true),
		done: make(chan struct{}),
	}, nil
}

// StartCapture acquires the microphone and starts delivering frames.
func StartCapture(ctx context.Context, mic Microphone, cfg CaptureConfig, onFrame FrameFunc) (*Capture, error) {
	c, err := OpenCapture(ctx, mic, cfg)
	if err != nil {
		return nil, err
	}
	c.Start(onFrame)
	return c, nil
}

// Start begins frame delivery. Only the first call has an effect, and none
// after Stop.
func (c *Capture) Start(onFrame FrameFunc) {
	c.startOnce.Do(func() {
		if c.stopped.Load() {
			close(c.done)
			return
		}
		c.onFrame = onFrame
		c.wg.Add(2)
		go c.pump()
		go c.emit(FrameBytes(c.cfg.FrameSize))
		go func() {
			c.wg.Wait()
			close(c.done)
		}()
	})
}

// pump moves device bytes into the ring buffer.
func (c *Capture) pump() {
	defer c.wg.Done()

	tmp := make([]byte, FrameBytes(c.cfg.FrameSize)/2)
	for {
		n, err := c.dev.Read(tmp)
		if n > 0 {
			if _, werr := c.buf.Write(tmp[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.stopped.Load() {
				c.cfg.Logger.Error("microphone read failed", slog.Any("err", err))
			}
			c.buf.CloseWriter()
			return
		}
	}
}

func (c *Capture) emit(frameBytes int) {
	defer c.wg.Done()

	r := NewFixedChunkReader(c.buf, frameBytes)
	raw := make([]byte, frameBytes)
	for {
		n, err := r.Read(raw)
		if err != nil {
			return
		}
		if n < frameBytes {
			// trailing partial frame after the device went away
			return
		}

		frame, err := DecodePCM(raw[:n])
		if err != nil {
			c.cfg.Logger.Error("failed to decode captured frame", slog.Any("err", err))
			continue
		}

		if c.stopped.Load() {
			return
		}
		c.onFrame(frame, Loudness(frame, c.cfg.LoudnessGain))
	}
}

// Stop releases the device. Frames not yet delivered are discarded. It is safe
// to call more than once.
func (c *Capture) Stop() error {
	if c == nil {
		return nil
	}
	var err error
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		err = c.dev.Close()
		c.buf.CloseWithError(errCaptureStopped)
	})
	return err
}

// Stopped reports whether Stop has been called.
func (c *Capture) Stopped() bool { return c.stopped.Load() }

// Done is closed once both capture goroutines have exited. It never closes for
// a capture that was not started.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Loudness is the root mean square of the frame scaled by gain.
func Loudness(frame []float64, gain float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum/float64(len(frame))) * gain
}
