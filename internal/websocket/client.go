package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket: connection closed")

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}

		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	OnText      func(data []byte) error
	OnBinary    func(data []byte) error
	// OnClose is called exactly once after every received message has been
	// handled. err is nil for a normal close.
	OnClose func(err error)
	Logger  *slog.Logger
}

type Client struct {
	conn     net.Conn
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	closed   chan struct{}
	errMu    sync.Mutex
	err      error
	cancel   context.CancelFunc
	logger   *slog.Logger
}

func (c *Client) setDone(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}

// Done is closed when the connection stops reading.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) error {
	return c.Write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) error {
	return c.Write(ws.OpPing, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) error {
	return c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Write queues a frame. It never blocks once the connection is done.
func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close performs the closing handshake and releases the connection. It waits for
// the peer at most until ctx is done.
func (c *Client) Close(ctx context.Context) error {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()

	if err := c.SendClose(ws.StatusNormalClosure, "closing"); err != nil {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

// Closed is closed after OnClose returned.
func (c *Client) Closed() <-chan struct{} { return c.closed }

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	// handshake timeout only, the connection outlives ctx
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("handshake complete", slog.Any("protocol", hs.Protocol))

	var reader io.Reader = conn
	if buf != nil {
		if n := buf.Buffered(); n > 0 {
			// frames that arrived together with the handshake response
			reader = io.MultiReader(io.LimitReader(buf, int64(n)), conn)
		} else {
			ws.PutReader(buf)
		}
	}

	logger.Info("connected to websocket")

	loopCtx, loopCancel := context.WithCancel(context.Background())

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		conn:   conn,
		out:    output,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		cancel: loopCancel,
		logger: logger,
	}

	onTextFunc := config.OnText
	if onTextFunc == nil {
		onTextFunc = func(data []byte) error {
			return nil
		}
	}
	onBinaryFunc := config.OnBinary
	if onBinaryFunc == nil {
		onBinaryFunc = func(data []byte) error {
			return nil
		}
	}
	onCloseFunc := config.OnClose
	if onCloseFunc == nil {
		onCloseFunc = func(error) {}
	}

	// websocket -> input channel
	go func() {
		defer close(input)
		for {
			messages, err := wsutil.ReadServerMessage(reader, nil)
			if err != nil {
				var closed wsutil.ClosedError
				switch {
				case errors.Is(err, io.EOF), errors.As(err, &closed) && closed.Code == ws.StatusNormalClosure:
					client.setDone(nil)
				case loopCtx.Err() != nil:
					client.setDone(nil)
				default:
					logger.Error("ws read failed", slog.Any("err", err))
					client.setDone(err)
				}
				return
			}
			for _, msg := range messages {
				input <- msg
				if msg.OpCode == ws.OpClose {
					return
				}
			}
		}
	}()

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-client.done:
				return
			case msg := <-output:
				err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload)
				if err != nil {
					logger.Error("message write failed", slog.Any("err", err))
					client.setDone(err)
					return
				}
			}
		}
	}()

	// input channel processing; drains everything read before reporting close
	go func() {
		defer func() {
			onCloseFunc(client.Err())
			close(client.closed)
		}()

		for msg := range input {
			if msg.OpCode.IsControl() {
				logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode))

				switch msg.OpCode {
				case ws.OpPing:
					_ = client.Write(ws.OpPong, msg.Payload)
				case ws.OpClose:
					code, reason := ws.ParseCloseFrameData(msg.Payload)
					logger.Debug("rcv: close", slog.Int("code", int(code)), slog.String("reason", reason))
					var err error
					if code != ws.StatusNormalClosure && code != ws.StatusNoStatusRcvd && !code.Empty() {
						err = &CloseError{Code: int(code), Reason: reason}
					}
					client.setDone(err)
					// best effort reply
					_ = wsutil.WriteClientMessage(conn, ws.OpClose, ws.NewCloseFrameBody(code, ""))
				}

				continue
			}

			switch msg.OpCode {
			case ws.OpText:
				logger.Debug("rcv: text", slog.Int("len", len(msg.Payload)))
				if err := onTextFunc(msg.Payload); err != nil {
					logger.Error("text message handler failed", slog.Any("err", err))
				}

			case ws.OpBinary:
				logger.Debug("rcv: binary", slog.Int("len", len(msg.Payload)))
				if err := onBinaryFunc(msg.Payload); err != nil {
					logger.Error("binary message handler failed", slog.Any("err", err))
				}
			}
		}
	}()

	return client, nil
}

// CloseError is a close frame with an abnormal status.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed with status %d: %s", e.Code, e.Reason)
}
