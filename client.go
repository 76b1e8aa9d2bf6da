package concierge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/concierge-go/events"
	"github.com/codewandler/concierge-go/tool"
)

// Client owns at most one LiveSession at a time. A new session is created for
// every Connect and released when it disconnects.
type Client struct {
	config       *clientConfig
	logger       *slog.Logger
	mu           sync.Mutex
	session      *LiveSession
	onEvent      func(e events.Event)
	onDisconnect func(err error)
}

func New(opts ...ClientOption) *Client {
	cfg := &clientConfig{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	if cfg.dispatcher == nil {
		cfg.dispatcher = tool.NewDispatcher(cfg.logger)
	}

	return &Client{
		config: cfg,
		logger: cfg.logger,
	}
}

// OnEvent observes every inbound event after the session handled it.
func (c *Client) OnEvent(h func(e events.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = h
}

// OnDisconnect is called exactly once per session, with the failure that ended
// it or nil.
func (c *Client) OnDisconnect(h func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = h
}

func (c *Client) Dispatcher() *tool.Dispatcher { return c.config.dispatcher }

// Connect starts a new session and blocks until it is open. A failed connect
// has already released everything it acquired.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrSessionActive
	}
	s := newLiveSession(c.config)
	s.onEvent = c.handleEvent
	s.onDisconnect = func(err error) { c.release(s, err) }
	c.session = s
	c.mu.Unlock()

	c.logger.Debug("connecting", slog.String("session", s.ID()))
	s.start()

	select {
	case <-s.Opened():
		return nil
	case <-s.Closed():
		if err := s.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrChannelOpen, errDisconnected)
	case <-ctx.Done():
		s.Disconnect()
		return ctx.Err()
	}
}

func (c *Client) handleEvent(e events.Event) {
	c.mu.Lock()
	h := c.onEvent
	c.mu.Unlock()
	if h != nil {
		h(e)
	}
}

func (c *Client) release(s *LiveSession, err error) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	h := c.onDisconnect
	c.mu.Unlock()

	if h != nil {
		h(err)
	}
}

// Disconnect ends the current session, if any.
func (c *Client) Disconnect() {
	if s := c.Session(); s != nil {
		s.Disconnect()
	}
}

// Session returns the current session or nil.
func (c *Client) Session() *LiveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) Connected() bool {
	s := c.Session()
	return s != nil && s.Status() == StatusOpen
}

func (c *Client) Speaking() bool {
	if s := c.Session(); s != nil {
		return s.Speaking()
	}
	return false
}

func (c *Client) Loudness() float64 {
	if s := c.Session(); s != nil {
		return s.Loudness()
	}
	return 0
}
