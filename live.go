package concierge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/codewandler/concierge-go/audio"
	"github.com/codewandler/concierge-go/events"
	"github.com/codewandler/concierge-go/tool"
	nanoid "github.com/matoous/go-nanoid/v2"
)

var errDisconnected = errors.New("disconnected")

type callState int

const (
	callPending callState = iota
	callCancelled
	callDone
)

// LiveSession is one connect/disconnect cycle of the voice channel. It owns the
// microphone, the audio output and the channel until teardown and is never
// reused.
type LiveSession struct {
	id     string
	cfg    *clientConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	status   atomic.Int32
	loudness atomic.Uint64

	mu        sync.Mutex
	closing   bool
	err       error
	out       audio.Output
	scheduler *audio.Scheduler
	capture   *audio.Capture
	ch        Channel
	openedAt  float64

	callsMu sync.Mutex
	calls   map[string]callState

	opened       chan struct{}
	closed       chan struct{}
	teardownOnce sync.Once

	onEvent      func(events.Event)
	onDisconnect func(err error)
}

func newLiveSession(cfg *clientConfig) *LiveSession {
	id, _ := nanoid.New()
	ctx, cancel := context.WithCancel(context.Background())

	return &LiveSession{
		id:     id,
		cfg:    cfg,
		logger: cfg.logger.With(slog.String("session", id)),
		ctx:    ctx,
		cancel: cancel,
		calls:  make(map[string]callState),
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (s *LiveSession) ID() string { return s.id }

func (s *LiveSession) Status() Status { return Status(s.status.Load()) }

// Err returns the failure that ended the session. It is nil for a requested or
// remote normal close.
func (s *LiveSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Opened is closed once the channel reported readiness.
func (s *LiveSession) Opened() <-chan struct{} { return s.opened }

// Closed is closed after teardown completed.
func (s *LiveSession) Closed() <-chan struct{} { return s.closed }

// Speaking reports whether model audio is currently audible.
func (s *LiveSession) Speaking() bool {
	if s.Status() != StatusOpen {
		return false
	}
	if sched := s.playback(); sched != nil {
		return sched.Speaking()
	}
	return false
}

// Loudness is the scaled RMS of the last captured frame, 0 when not open.
func (s *LiveSession) Loudness() float64 {
	if s.Status() != StatusOpen {
		return 0
	}
	return math.Float64frombits(s.loudness.Load())
}

// Cursor returns the playback time at which the next chunk would start.
func (s *LiveSession) Cursor() float64 {
	if sched := s.playback(); sched != nil {
		return sched.Cursor()
	}
	return 0
}

// OpenedAt is the output clock time at which the session became open.
func (s *LiveSession) OpenedAt() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openedAt
}

func (s *LiveSession) playback() *audio.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler
}

// hold stores acquired resources unless teardown already started.
func (s *LiveSession) hold(f func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	f()
	return true
}

func (s *LiveSession) setup() events.Setup {
	model := s.cfg.model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := events.Setup{
		Model: model,
		GenerationConfig: &events.GenerationConfig{
			ResponseModalities: []events.Modality{events.ModalityAudio},
			SpeechConfig:       events.Voice(s.cfg.voice),
			Temperature:        s.cfg.temperature,
		},
		SystemInstruction: events.TextContent(s.cfg.instruction),
		Tools:             s.cfg.dispatcher.Tools(),
	}
	if s.cfg.transcribe {
		setup.OutputAudioTranscription = &events.AudioTranscriptionConfig{}
	}
	return setup
}

func (s *LiveSession) start() {
	s.status.Store(int32(StatusConnecting))
	go s.run()
}

func (s *LiveSession) run() {
	ch, err := s.acquire()
	if err != nil {
		if !errors.Is(err, errDisconnected) {
			s.logger.Error("connect failed", slog.Any("err", err))
		}
		s.teardown(err)
		return
	}

	for {
		select {
		case <-s.closed:
			return
		case evt, ok := <-ch.Events():
			if !ok {
				s.teardown(s.channelErr(errors.New("event stream ended")))
				return
			}
			if !s.handle(ch, evt) {
				return
			}
		}
	}
}

// acquire runs the connecting phase: microphone, output, channel.
func (s *LiveSession) acquire() (Channel, error) {
	capture, err := audio.OpenCapture(s.ctx, s.cfg.mic, audio.CaptureConfig{
		SampleRate:   s.cfg.inputRate,
		FrameSize:    s.cfg.frameSize,
		LoudnessGain: s.cfg.loudnessGain,
		Logger:       s.logger,
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, errDisconnected
		}
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if !s.hold(func() { s.capture = capture }) {
		_ = capture.Stop()
		return nil, errDisconnected
	}

	out, err := s.cfg.speaker.OpenOutput(s.cfg.outputRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAudioOutput, err)
	}
	sched := audio.NewScheduler(out)
	sched.SetSpeakingEpsilon(s.cfg.speakingEpsilon)
	if !s.hold(func() { s.out, s.scheduler = out, sched }) {
		sched.Stop()
		_ = out.Close()
		return nil, errDisconnected
	}

	ch, err := s.cfg.channelDialer().Dial(s.ctx, s.setup())
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, errDisconnected
		}
		return nil, fmt.Errorf("%w: %w", ErrChannelOpen, err)
	}
	if !s.hold(func() { s.ch = ch }) {
		_ = ch.Close()
		return nil, errDisconnected
	}

	return ch, nil
}

// handle applies one inbound event. It returns false once the session ended.
func (s *LiveSession) handle(ch Channel, evt events.Event) bool {
	switch e := evt.(type) {
	case events.OpenedEvent:
		s.open(ch)

	case events.ContentEvent:
		sched := s.playback()
		for _, blob := range e.Audio {
			chunk, err := audio.Decode(blob, s.cfg.outputRate)
			if err != nil {
				s.logger.Warn("skipping undecodable audio chunk", slog.Any("err", err))
				continue
			}
			if _, err := sched.Enqueue(chunk); err != nil {
				s.logger.Debug("chunk not scheduled", slog.Any("err", err))
			}
		}

	case events.ToolCallEvent:
		for _, call := range e.Calls {
			s.dispatch(ch, call)
		}

	case events.ToolCallCancelledEvent:
		s.cancelCalls(e.IDs)

	case events.InterruptedEvent:
		s.playback().Interrupt()

	case events.GoAwayEvent:
		s.logger.Info("server is going away", slog.String("time_left", e.TimeLeft))
		s.notify(evt)
		s.teardown(nil)
		return false

	case events.ClosedEvent:
		s.logger.Info("live channel closed", slog.String("reason", e.Reason))
		s.notify(evt)
		if s.Status() == StatusConnecting {
			s.teardown(fmt.Errorf("%w: closed before setup completed", ErrChannelOpen))
		} else {
			s.teardown(nil)
		}
		return false

	case events.ErroredEvent:
		s.logger.Error("live channel failed", slog.Any("err", e.Err))
		s.notify(evt)
		s.teardown(s.channelErr(e.Err))
		return false
	}

	s.notify(evt)
	return true
}

func (s *LiveSession) channelErr(err error) error {
	if s.Status() == StatusConnecting {
		return fmt.Errorf("%w: %w", ErrChannelOpen, err)
	}
	return fmt.Errorf("%w: %w", ErrChannel, err)
}

func (s *LiveSession) notify(evt events.Event) {
	if s.onEvent != nil {
		s.onEvent(evt)
	}
}

func (s *LiveSession) open(ch Channel) {
	if !s.status.CompareAndSwap(int32(StatusConnecting), int32(StatusOpen)) {
		return
	}

	s.mu.Lock()
	capture := s.capture
	if s.out != nil {
		s.openedAt = s.out.Now()
	}
	s.mu.Unlock()

	s.logger.Info("live session open")
	close(s.opened)

	capture.Start(func(frame []float64, loudness float64) {
		s.sendFrame(ch, frame, loudness)
	})
}

// sendFrame is fire and forget; frames captured outside the open state are
// dropped.
func (s *LiveSession) sendFrame(ch Channel, frame []float64, loudness float64) {
	if s.Status() != StatusOpen {
		return
	}
	s.loudness.Store(math.Float64bits(loudness))

	if err := ch.Send(events.AudioInput(audio.Encode(frame, s.cfg.inputRate))); err != nil {
		s.logger.Debug("audio frame not sent", slog.Any("err", err))
	}
}

// dispatch runs a tool call at most once per id without blocking the event
// loop. The result is only sent while the session is open and the call was not
// cancelled.
func (s *LiveSession) dispatch(ch Channel, call tool.Call) {
	if call.ID != "" {
		s.callsMu.Lock()
		if _, seen := s.calls[call.ID]; seen {
			s.callsMu.Unlock()
			s.logger.Debug("duplicate tool call ignored", slog.String("id", call.ID))
			return
		}
		s.calls[call.ID] = callPending
		s.callsMu.Unlock()
	}

	go func() {
		res := s.cfg.dispatcher.Dispatch(context.Background(), call)

		if !s.complete(call.ID) {
			s.logger.Debug("dropping late tool result", slog.String("id", call.ID), slog.String("name", call.Name))
			return
		}
		if err := ch.Send(events.ToolResults(res)); err != nil {
			s.logger.Error("failed to send tool result", slog.String("id", call.ID), slog.Any("err", err))
		}
	}()
}

func (s *LiveSession) complete(id string) bool {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	if id != "" {
		state := s.calls[id]
		s.calls[id] = callDone
		if state != callPending {
			return false
		}
	}
	return s.Status() == StatusOpen
}

func (s *LiveSession) cancelCalls(ids []string) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	for _, id := range ids {
		if s.calls[id] == callPending {
			s.calls[id] = callCancelled
		}
	}
}

// Disconnect tears the session down. It is a no-op once the session closed.
func (s *LiveSession) Disconnect() {
	s.teardown(nil)
}

func (s *LiveSession) teardown(cause error) {
	s.teardownOnce.Do(func() {
		if cause != nil {
			s.status.Store(int32(StatusErrored))
		} else {
			s.status.Store(int32(StatusClosed))
		}
		s.cancel()

		s.mu.Lock()
		s.closing = true
		s.err = cause
		capture, sched, out, ch := s.capture, s.scheduler, s.out, s.ch
		s.mu.Unlock()

		if err := capture.Stop(); err != nil {
			s.logger.Warn("failed to release microphone", slog.Any("err", err))
		}
		if sched != nil {
			sched.Stop()
		}
		if out != nil {
			if err := out.Close(); err != nil {
				s.logger.Warn("failed to close audio output", slog.Any("err", err))
			}
		}
		if ch != nil {
			if err := ch.Close(); err != nil {
				s.logger.Warn("failed to close live channel", slog.Any("err", err))
			}
		}

		s.loudness.Store(0)
		s.status.Store(int32(StatusClosed))
		s.logger.Info("live session closed", slog.Any("err", cause))
		close(s.closed)

		if s.onDisconnect != nil {
			s.onDisconnect(cause)
		}
	})
}
