package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer echoes text frames until the client sends "close", then closes
// with the given status.
func echoServer(t *testing.T, status ws.StatusCode) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			msg, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if string(msg) == "close" {
				_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(status, "bye")))
				return
			}
			if err := wsutil.WriteServerMessage(conn, op, msg); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientEchoAndNormalClose(t *testing.T) {
	srv := echoServer(t, ws.StatusNormalClosure)
	defer srv.Close()

	received := make(chan string, 4)
	closed := make(chan error, 1)

	client, err := Connect(context.Background(), ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: time.Second,
		Headers:     http.Header{"X-Token": []string{"secret"}},
		OnText: Json(func(x map[string]any) error {
			received <- x["hello"].(string)
			return nil
		}),
		OnClose: func(err error) { closed <- err },
	})
	require.NoError(t, err)

	require.NoError(t, client.WriteText([]byte(`{"hello":"world"}`)))

	select {
	case got := <-received:
		assert.Equal(t, "world", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}

	require.NoError(t, client.WriteText([]byte("close")))

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	<-client.Closed()
	assert.ErrorIs(t, client.WriteText([]byte("late")), ErrClosed)
}

func TestClientAbnormalClose(t *testing.T) {
	srv := echoServer(t, ws.StatusPolicyViolation)
	defer srv.Close()

	client, err := Connect(context.Background(), ClientConfig{
		URL:     wsURL(srv),
		Headers: http.Header{"X-Token": []string{"secret"}},
	})
	require.NoError(t, err)
	require.NoError(t, client.WriteText([]byte("close")))

	select {
	case <-client.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("not closed")
	}

	var ce *CloseError
	require.ErrorAs(t, client.Err(), &ce)
	assert.Equal(t, int(ws.StatusPolicyViolation), ce.Code)
	assert.Equal(t, "bye", ce.Reason)
}

func TestClientCloseFromClientSide(t *testing.T) {
	srv := echoServer(t, ws.StatusNormalClosure)
	defer srv.Close()

	client, err := Connect(context.Background(), ClientConfig{
		URL:     wsURL(srv),
		Headers: http.Header{"X-Token": []string{"secret"}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = client.Close(ctx)

	select {
	case <-client.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("not closed")
	}
	assert.ErrorIs(t, client.WriteText([]byte("late")), ErrClosed)
}

func TestConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Connect(context.Background(), ClientConfig{URL: wsURL(srv), DialTimeout: time.Second})
	assert.Error(t, err)
}
