package concierge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/codewandler/concierge-go/events"
	"github.com/codewandler/concierge-go/internal/websocket"
)

// Channel is an open duplex connection to the live model. Events delivers
// inbound events in arrival order and is closed after a terminal ClosedEvent or
// ErroredEvent.
type Channel interface {
	Send(msg any) error
	Events() <-chan events.Event
	Close() error
}

// Dialer opens a Channel and sends setup as its first message.
type Dialer interface {
	Dial(ctx context.Context, setup events.Setup) (Channel, error)
}

// WebsocketDialer connects to the BidiGenerateContent websocket endpoint.
type WebsocketDialer struct {
	Endpoint     string
	APIKey       string
	DialTimeout  time.Duration
	CloseTimeout time.Duration
	Logger       *slog.Logger
}

func (d *WebsocketDialer) url() (string, error) {
	u, err := url.Parse(d.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if d.APIKey != "" {
		q := u.Query()
		q.Set("key", d.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (d *WebsocketDialer) Dial(ctx context.Context, setup events.Setup) (Channel, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	u, err := d.url()
	if err != nil {
		return nil, err
	}

	ch := &wsChannel{
		events:       make(chan events.Event, 64),
		stop:         make(chan struct{}),
		closeTimeout: d.CloseTimeout,
		logger:       logger,
	}
	if ch.closeTimeout == 0 {
		ch.closeTimeout = 2 * time.Second
	}

	onMessage := func(data []byte) error {
		evts, err := events.Decode(data)
		if err != nil {
			return err
		}
		for _, e := range evts {
			ch.push(e)
		}
		return nil
	}

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         u,
		DialTimeout: d.DialTimeout,
		Logger:      logger,
		OnText:      onMessage,
		// the live endpoint sends json in binary frames as well
		OnBinary: onMessage,
		OnClose: func(err error) {
			if err != nil {
				ch.push(events.ErroredEvent{Err: err})
			} else {
				ch.push(events.ClosedEvent{Reason: "remote closed"})
			}
			close(ch.events)
		},
	})
	if err != nil {
		return nil, err
	}
	ch.ws = ws

	if err := ch.Send(events.SetupMessage{Setup: setup}); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	return ch, nil
}

type wsChannel struct {
	ws           *websocket.Client
	events       chan events.Event
	stop         chan struct{}
	stopOnce     sync.Once
	closeTimeout time.Duration
	logger       *slog.Logger
}

func (c *wsChannel) push(e events.Event) {
	select {
	case c.events <- e:
	case <-c.stop:
	}
}

func (c *wsChannel) Events() <-chan events.Event { return c.events }

func (c *wsChannel) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.ws.WriteText(data)
}

// Close ends the channel. Events still queued are discarded.
func (c *wsChannel) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })

	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
	defer cancel()

	err := c.ws.Close(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("live channel did not acknowledge close")
		return nil
	}
	return err
}
