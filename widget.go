package concierge

import (
	"context"
	"sync"
)

type Mode int

const (
	ModeClosed Mode = iota
	ModeChat
	ModeVoice
)

func (m Mode) String() string {
	switch m {
	case ModeClosed:
		return "closed"
	case ModeChat:
		return "chat"
	case ModeVoice:
		return "voice"
	default:
		return "unknown"
	}
}

// Voice is the part of Client the widget drives.
type Voice interface {
	Connect(ctx context.Context) error
	Disconnect()
	OnDisconnect(h func(err error))
}

// Widget switches between the closed, chat and voice modes of the concierge.
// Any end of the voice session falls back to chat.
type Widget struct {
	mu     sync.Mutex
	mode   Mode
	voice  Voice
	onMode func(Mode)
}

func NewWidget(voice Voice) *Widget {
	w := &Widget{voice: voice}
	voice.OnDisconnect(func(error) {
		w.transition(ModeVoice, ModeChat)
	})
	return w
}

// OnModeChange is called after every mode change.
func (w *Widget) OnModeChange(h func(Mode)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMode = h
}

func (w *Widget) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// transition moves from one mode to another and reports whether it did.
func (w *Widget) transition(from, to Mode) bool {
	w.mu.Lock()
	if w.mode != from {
		w.mu.Unlock()
		return false
	}
	w.mode = to
	h := w.onMode
	w.mu.Unlock()

	if h != nil {
		h(to)
	}
	return true
}

func (w *Widget) set(to Mode) Mode {
	w.mu.Lock()
	prev := w.mode
	w.mode = to
	h := w.onMode
	w.mu.Unlock()

	if h != nil && prev != to {
		h(to)
	}
	return prev
}

// Open shows the chat.
func (w *Widget) Open() {
	w.transition(ModeClosed, ModeChat)
}

// Close hides the widget and ends a running voice session.
func (w *Widget) Close() {
	if w.set(ModeClosed) == ModeVoice {
		w.voice.Disconnect()
	}
}

// StartVoice enters voice mode and connects. On failure the widget is back in
// chat mode.
func (w *Widget) StartVoice(ctx context.Context) error {
	if w.set(ModeVoice) == ModeVoice {
		return nil
	}
	if err := w.voice.Connect(ctx); err != nil {
		w.transition(ModeVoice, ModeChat)
		return err
	}
	return nil
}

// StopVoice leaves voice mode.
func (w *Widget) StopVoice() {
	w.voice.Disconnect()
	w.transition(ModeVoice, ModeChat)
}
