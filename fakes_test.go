package concierge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/codewandler/concierge-go/audio"
	"github.com/codewandler/concierge-go/events"
	"github.com/codewandler/concierge-go/tool"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu     sync.Mutex
	events chan events.Event
	sent   []any
	closes int
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan events.Event, 32)}
}

func (c *fakeChannel) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel closed")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Events() <-chan events.Event { return c.events }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.closed = true
	return nil
}

func (c *fakeChannel) emit(evts ...events.Event) {
	for _, e := range evts {
		c.events <- e
	}
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeChannel) audioInputs() []audio.Blob {
	c.mu.Lock()
	defer c.mu.Unlock()
	var blobs []audio.Blob
	for _, m := range c.sent {
		if in, ok := m.(events.RealtimeInputMessage); ok && in.RealtimeInput.Audio != nil {
			blobs = append(blobs, *in.RealtimeInput.Audio)
		}
	}
	return blobs
}

func (c *fakeChannel) toolResults() map[string]tool.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make(map[string]tool.Result)
	for _, m := range c.sent {
		if tr, ok := m.(events.ToolResponseMessage); ok {
			for _, r := range tr.ToolResponse.FunctionResponses {
				res[r.ID] = r
			}
		}
	}
	return res
}

type fakeDialer struct {
	mu    sync.Mutex
	ch    *fakeChannel
	err   error
	setup events.Setup
	dials int
}

func (d *fakeDialer) Dial(_ context.Context, setup events.Setup) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.setup = setup
	if d.err != nil {
		return nil, d.err
	}
	return d.ch, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeMic struct {
	mu     sync.Mutex
	err    error
	opens  int
	closes int
	w      *io.PipeWriter
}

type micDevice struct {
	*io.PipeReader
	mic *fakeMic
}

func (d *micDevice) Close() error {
	d.mic.mu.Lock()
	d.mic.closes++
	d.mic.mu.Unlock()
	return d.PipeReader.Close()
}

func (m *fakeMic) Open(_ context.Context, _ int) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.opens++
	r, w := io.Pipe()
	m.w = w
	return &micDevice{PipeReader: r, mic: m}, nil
}

func (m *fakeMic) speak(t *testing.T, frame []float64) {
	t.Helper()
	m.mu.Lock()
	w := m.w
	m.mu.Unlock()
	_, err := w.Write(audio.EncodePCM(frame))
	require.NoError(t, err)
}

func (m *fakeMic) counts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

type fakeSpeaker struct {
	mu      sync.Mutex
	err     error
	outputs []*audio.Timeline
}

func (s *fakeSpeaker) OpenOutput(sampleRate int) (audio.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	tl := audio.NewTimeline(sampleRate)
	s.outputs = append(s.outputs, tl)
	return tl, nil
}

func (s *fakeSpeaker) opened() []*audio.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audio.Timeline(nil), s.outputs...)
}

type harness struct {
	client      *Client
	ch          *fakeChannel
	dialer      *fakeDialer
	mic         *fakeMic
	speaker     *fakeSpeaker
	mu          sync.Mutex
	disconnects []error
	observed    []events.Event
}

const testFrameSize = 256

func newHarness(opts ...ClientOption) *harness {
	h := &harness{
		ch:      newFakeChannel(),
		mic:     &fakeMic{},
		speaker: &fakeSpeaker{},
	}
	h.dialer = &fakeDialer{ch: h.ch}

	h.client = New(
		WithDialer(h.dialer),
		WithMicrophone(h.mic),
		WithSpeaker(h.speaker),
		WithFrameSize(testFrameSize),
		WithTools(tool.NewInterestForm(&tool.SimulatedSender{})),
		WithOptions(opts...),
	)
	h.client.OnDisconnect(func(err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.disconnects = append(h.disconnects, err)
	})
	h.client.OnEvent(func(e events.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.observed = append(h.observed, e)
	})
	return h
}

// connect opens a session whose channel is immediately ready.
func (h *harness) connect(t *testing.T) *LiveSession {
	t.Helper()
	h.ch.emit(events.OpenedEvent{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.client.Connect(ctx))

	s := h.client.Session()
	require.NotNil(t, s)
	return s
}

func (h *harness) disconnectErrs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.disconnects...)
}

func (h *harness) sawEvent(match func(events.Event) bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.observed {
		if match(e) {
			return true
		}
	}
	return false
}

func pcmSeconds(d float64, rate int) audio.Blob {
	return audio.Encode(make([]float64, int(d*float64(rate)+0.5)), rate)
}

// blockingTool returns a tool that waits for release before answering.
func blockingTool(name string) (tool.Handler, chan struct{}, chan struct{}) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	h := tool.HandlerFunc(tool.Declaration{
		Name: name,
		Parameters: tool.Parameters{
			Type: tool.TypeObject,
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		started <- struct{}{}
		<-release
		return "done", nil
	})
	return h, started, release
}
