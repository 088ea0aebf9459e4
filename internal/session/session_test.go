package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"codesync/internal/models"
)

type frameCapture struct {
	mu     sync.Mutex
	frames []models.WSFrame
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(frame models.WSFrame) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
}

func (c *frameCapture) list() []models.WSFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WSFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func capturedClient(id string) (*Client, *frameCapture) {
	c := NewClient(id, nil)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	return c, capture
}

func TestClientSendWithHook(t *testing.T) {
	client, capture := capturedClient("c1")

	client.Send(models.WSFrame{Type: "ping"})

	got := capture.list()
	if len(got) != 1 || got[0].Type != "ping" {
		t.Fatalf("expected frame captured, got %#v", got)
	}
}

func TestClientSendWithoutConnDoesNotPanic(t *testing.T) {
	client := NewClient("c1", nil)
	client.Send(models.WSFrame{Type: "noop"})
}

func TestClientSendWritesToConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan models.WSFrame, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err == nil {
			received <- frame
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	client := NewClient("c1", conn)
	go client.WritePump()
	defer client.Close()
	client.Send(models.WSFrame{Type: models.EventCodeChange, Data: models.CodeChanged{Text: "x"}})

	select {
	case frame := <-received:
		if frame.Type != models.EventCodeChange {
			t.Fatalf("unexpected frame: %#v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func dialEcho(t *testing.T, handle func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClientSendNeverBlocksOnSlowPeer(t *testing.T) {
	conn := dialEcho(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	// no write pump, so nothing drains the queue
	client := NewClient("slow", conn)
	finished := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+10; i++ {
			client.Send(models.WSFrame{Type: models.EventCodeChange})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
	select {
	case <-client.done:
	default:
		t.Fatal("expected overflowing client to be closed")
	}
	client.Send(models.WSFrame{Type: "after-close"})
}

func TestClientCloseStopsWritePump(t *testing.T) {
	closed := make(chan struct{})
	conn := dialEcho(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(closed)
				return
			}
		}
	})

	client := NewClient("c1", conn)
	pumpDone := make(chan struct{})
	go func() {
		client.WritePump()
		close(pumpDone)
	}()

	client.Close()
	client.Close()

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump kept running after Close")
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the connection close")
	}
}

// keepAliveServer serves one connection with a short pong deadline and
// reports the error that ended its read loop.
func keepAliveServer(t *testing.T) (*websocket.Conn, <-chan error) {
	t.Helper()
	readErr := make(chan error, 1)
	conn := dialEcho(t, func(conn *websocket.Conn) {
		client := NewClient("srv", conn)
		client.pongWait = 300 * time.Millisecond
		client.pingPeriod = 50 * time.Millisecond
		client.KeepAlive()
		go client.WritePump()
		defer client.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	})
	return conn, readErr
}

func TestKeepAliveHoldsRespondingPeer(t *testing.T) {
	conn, readErr := keepAliveServer(t)

	// reading lets the dialer answer pings with pongs
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case err := <-readErr:
		t.Fatalf("responsive peer was dropped: %v", err)
	case <-time.After(time.Second):
	}
}

func TestKeepAliveDropsSilentPeer(t *testing.T) {
	_, readErr := keepAliveServer(t)

	// the dialer never reads, so no pong ever comes back
	select {
	case err := <-readErr:
		if err == nil {
			t.Fatal("expected a read error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("silent peer was never dropped")
	}
}

func TestHubBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	a, capA := capturedClient("a")
	b, capB := capturedClient("b")
	other, capOther := capturedClient("o")
	hub.Subscribe("r1", a)
	hub.Subscribe("r1", b)
	hub.Subscribe("r2", other)

	hub.Broadcast("r1", models.WSFrame{Type: models.EventLanguageChange})

	if len(capA.list()) != 1 || len(capB.list()) != 1 {
		t.Fatalf("expected both subscribers to receive, got %d and %d", len(capA.list()), len(capB.list()))
	}
	if len(capOther.list()) != 0 {
		t.Fatal("expected other room to receive nothing")
	}
}

func TestHubBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub()
	a, capA := capturedClient("a")
	b, capB := capturedClient("b")
	hub.Subscribe("r1", a)
	hub.Subscribe("r1", b)

	hub.BroadcastExcept("r1", "a", models.WSFrame{Type: models.EventCodeChange})

	if len(capA.list()) != 0 {
		t.Fatal("expected sender to be skipped")
	}
	if len(capB.list()) != 1 {
		t.Fatal("expected peer to receive the frame")
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub()
	a, capA := capturedClient("a")
	b, _ := capturedClient("b")
	hub.Subscribe("r1", a)
	hub.Subscribe("r2", a)
	hub.Subscribe("r2", b)

	hub.Unsubscribe("r1", "a")
	if hub.SubscriberCount("r1") != 0 {
		t.Fatal("expected r1 to be empty")
	}

	hub.UnsubscribeAll("a")
	if hub.SubscriberCount("r2") != 1 {
		t.Fatalf("expected only b left in r2, got %d", hub.SubscriberCount("r2"))
	}

	hub.Broadcast("r2", models.WSFrame{Type: "x"})
	if len(capA.list()) != 0 {
		t.Fatal("unsubscribed client should not receive frames")
	}
}

func TestHubCloseRoom(t *testing.T) {
	hub := NewHub()
	a, capA := capturedClient("a")
	hub.Subscribe("r1", a)

	hub.CloseRoom("r1")
	hub.Broadcast("r1", models.WSFrame{Type: "x"})

	if len(capA.list()) != 0 || hub.SubscriberCount("r1") != 0 {
		t.Fatal("expected closed room to drop subscribers")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Add("c1")
	reg.Add("c2")

	if !reg.Has("c1") || reg.Count() != 2 {
		t.Fatal("expected registered connections")
	}
	reg.Remove("c1")
	if reg.Has("c1") || reg.Count() != 1 {
		t.Fatal("expected c1 removed")
	}
	reg.Remove("missing")
}
