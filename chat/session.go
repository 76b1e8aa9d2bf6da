package chat

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/codewandler/concierge-go/tool"
)

var ErrBusy = errors.New("chat: a message is already in flight")

// maxToolRounds bounds how often a single send may go back and forth with
// tool results.
const maxToolRounds = 4

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithTranscript(t *Transcript) Option {
	return func(s *Session) {
		s.transcript = t
	}
}

// Session is the text chat. It allows a single outstanding send and routes
// tool calls through the same dispatcher as the voice session.
type Session struct {
	conv       Conversation
	dispatcher *tool.Dispatcher
	transcript *Transcript
	logger     *slog.Logger
	inFlight   atomic.Bool
}

func NewSession(conv Conversation, dispatcher *tool.Dispatcher, opts ...Option) *Session {
	s := &Session{
		conv:       conv,
		dispatcher: dispatcher,
		transcript: NewTranscript(DefaultWelcome),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatcher == nil {
		s.dispatcher = tool.NewDispatcher(s.logger)
	}
	return s
}

func (s *Session) Transcript() *Transcript { return s.transcript }

// Busy reports whether a send is in flight.
func (s *Session) Busy() bool { return s.inFlight.Load() }

// Send posts a user message and returns the complete model reply. Blank
// messages are ignored. A failed send leaves a system message in the transcript
// and the session ready for the next one.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.inFlight.Store(false)

	s.transcript.Append(RoleUser, text)

	t := &turn{transcript: s.transcript}
	if err := s.run(ctx, t, text); err != nil {
		s.logger.Error("chat send failed", slog.Any("err", err))
		s.transcript.Append(RoleSystem, FailureMessage)
		return t.text.String(), err
	}
	return t.text.String(), nil
}

func (s *Session) run(ctx context.Context, t *turn, text string) error {
	calls, err := t.consume(s.conv.Send(ctx, text))
	if err != nil {
		return err
	}

	for round := 0; len(calls) > 0; round++ {
		if round == maxToolRounds {
			s.logger.Warn("tool round limit reached", slog.Int("pending_calls", len(calls)))
			return nil
		}

		results := s.dispatch(ctx, calls)
		if calls, err = t.consume(s.conv.SendToolResults(ctx, results)); err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs the calls concurrently and returns the results in call order.
func (s *Session) dispatch(ctx context.Context, calls []tool.Call) []tool.Result {
	results := make([]tool.Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.dispatcher.Dispatch(ctx, call)
		}()
	}
	wg.Wait()

	return results
}

// turn accumulates the reply of one send into a single model message.
type turn struct {
	transcript *Transcript
	replyID    string
	text       strings.Builder
}

func (t *turn) consume(stream iter.Seq2[Chunk, error]) ([]tool.Call, error) {
	var calls []tool.Call
	for chunk, err := range stream {
		if err != nil {
			return nil, err
		}
		if chunk.Text != "" {
			t.append(chunk.Text)
		}
		calls = append(calls, chunk.Calls...)
	}
	return calls, nil
}

func (t *turn) append(text string) {
	t.text.WriteString(text)
	if t.replyID == "" {
		t.replyID = t.transcript.Append(RoleModel, t.text.String()).ID
		return
	}
	t.transcript.Update(t.replyID, t.text.String())
}
