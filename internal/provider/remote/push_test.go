package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushServer upgrades each connection, writes frames, then either holds the
// connection open or drops it.
func pushServer(t *testing.T, frames []string, hold bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/owners/U1/events" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		conns.Add(1)
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if hold {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func pushClient(t *testing.T, srv *httptest.Server, m *status.Machine) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:    srv.URL,
		Machine:    m,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func nextEvent(t *testing.T, ch <-chan provider.RawEvent) provider.RawEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for push event")
	}
	return provider.RawEvent{}
}

func waitState(t *testing.T, m *status.Machine, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.Current() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", m.Current(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeDeliversFrames(t *testing.T) {
	srv, _ := pushServer(t, []string{
		`{"kind":"newMessage","channelId":"c1","message":{"id":"m1","body":"hi","timestamp":10}}`,
		`not json`,
		`{"kind":"messageDeleted","channelId":"c1","message":{"id":"m1"}}`,
	}, true)
	m := status.NewMachine(bus.New())
	c := pushClient(t, srv, m)

	ch, cancel, err := c.Subscribe(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	first := nextEvent(t, ch)
	if first.Kind != provider.EventNewMessage || first.ChannelID != "c1" {
		t.Errorf("first = %+v", first)
	}
	second := nextEvent(t, ch)
	if second.Kind != provider.EventMessageDeleted {
		t.Errorf("second kind = %q, malformed frame should be skipped", second.Kind)
	}
	waitState(t, m, status.Ready)
}

func TestSubscribeReconnects(t *testing.T) {
	srv, conns := pushServer(t, []string{`{"kind":"newMessage","channelId":"c1","message":{"id":"m1"}}`}, false)
	c := pushClient(t, srv, status.NewMachine(bus.New()))

	ch, cancel, err := c.Subscribe(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	nextEvent(t, ch)
	nextEvent(t, ch)
	if conns.Load() < 2 {
		t.Errorf("connections = %d, want reconnect", conns.Load())
	}
}

func TestSubscribeUnauthorizedStops(t *testing.T) {
	srv, _ := pushServer(t, nil, true)
	m := status.NewMachine(bus.New())
	c := pushClient(t, srv, m)

	ch, cancel, err := c.Subscribe(context.Background(), provider.Session{OwnerID: "U1", Token: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after 401")
	}
	if m.Current() != status.AuthRequired {
		t.Errorf("state = %s, want %s", m.Current(), status.AuthRequired)
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	srv, _ := pushServer(t, nil, true)
	c := pushClient(t, srv, nil)

	ch, cancel, err := c.Subscribe(context.Background(), testSession)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestJitterBounds(t *testing.T) {
	for range 100 {
		d := jitter(100 * time.Millisecond)
		if d < 100*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jitter = %v, want within [100ms, 150ms]", d)
		}
	}
}
