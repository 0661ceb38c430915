package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/propdesk/agent-console/internal/category"
)

type socketServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()

	ss := &socketServer{}
	ss.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ss.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ss.mu.Lock()
		ss.conns = append(ss.conns, conn)
		ss.mu.Unlock()
	}))
	t.Cleanup(ss.close)
	return ss
}

func (ss *socketServer) url() string {
	return "ws" + strings.TrimPrefix(ss.server.URL, "http")
}

func (ss *socketServer) send(t *testing.T, frame Frame) {
	t.Helper()

	require.Eventually(t, func() bool {
		ss.mu.Lock()
		defer ss.mu.Unlock()
		return len(ss.conns) > 0
	}, 2*time.Second, 10*time.Millisecond, "no client connected")

	ss.mu.Lock()
	conn := ss.conns[len(ss.conns)-1]
	ss.mu.Unlock()
	require.NoError(t, conn.WriteJSON(frame))
}

func (ss *socketServer) close() {
	ss.mu.Lock()
	for _, conn := range ss.conns {
		_ = conn.Close()
	}
	ss.conns = nil
	ss.mu.Unlock()
	ss.server.Close()
}

type recordedEvent struct {
	descriptor category.Descriptor
	record     map[string]interface{}
}

func TestSocketDispatchesNewItemEvents(t *testing.T) {
	ss := newSocketServer(t)

	events := make(chan recordedEvent, 1)
	sock := NewSocket(SocketConfig{URL: ss.url(), Token: "tok"}, Handlers{
		OnNew: func(d category.Descriptor, record map[string]interface{}) {
			events <- recordedEvent{descriptor: d, record: record}
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sock.Run(ctx)
	defer sock.Close()

	ss.send(t, Frame{
		Event: "new_agent",
		Data: map[string]interface{}{
			"agent": map[string]interface{}{"_id": "a1", "FullName": "Jane"},
		},
	})

	select {
	case got := <-events:
		require.Equal(t, category.Agents, got.descriptor.Category)
		require.Equal(t, "a1", got.record["_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
	}
}

func TestSocketDispatchesAssignedByOther(t *testing.T) {
	ss := newSocketServer(t)

	type assigned struct {
		c  category.Category
		id string
	}
	events := make(chan assigned, 1)
	sock := NewSocket(SocketConfig{URL: ss.url()}, Handlers{
		OnAssigned: func(c category.Category, id string) {
			events <- assigned{c: c, id: id}
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sock.Run(ctx)
	defer sock.Close()

	ss.send(t, Frame{
		Event: category.EventAssignedByOther,
		Data:  map[string]interface{}{"type": "customer", "id": "c7"},
	})

	select {
	case got := <-events:
		require.Equal(t, category.Customers, got.c)
		require.Equal(t, "c7", got.id)
	case <-time.After(2 * time.Second):
		t.Fatal("no assignment dispatched")
	}
}

func TestSocketIgnoresUnknownEventsAndMalformedFrames(t *testing.T) {
	ss := newSocketServer(t)

	events := make(chan recordedEvent, 2)
	sock := NewSocket(SocketConfig{URL: ss.url()}, Handlers{
		OnNew: func(d category.Descriptor, record map[string]interface{}) {
			events <- recordedEvent{descriptor: d, record: record}
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sock.Run(ctx)
	defer sock.Close()

	ss.send(t, Frame{Event: "new_mystery", Data: map[string]interface{}{"x": 1}})
	// Payload field missing for the event.
	ss.send(t, Frame{Event: "new_investor", Data: map[string]interface{}{"agent": map[string]interface{}{"_id": "z"}}})
	// Well-formed frame arrives last and must still be dispatched.
	ss.send(t, Frame{
		Event: "new_investor",
		Data:  map[string]interface{}{"investor": map[string]interface{}{"_id": "i1"}},
	})

	select {
	case got := <-events:
		require.Equal(t, category.Investors, got.descriptor.Category)
		require.Equal(t, "i1", got.record["_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame was not dispatched")
	}
	require.Empty(t, events)
}

func TestSocketGivesUpAfterReconnectBudget(t *testing.T) {
	down := make(chan error, 1)
	sock := NewSocket(SocketConfig{
		URL:              "ws://127.0.0.1:1", // nothing listens here
		MaxReconnects:    3,
		ReconnectBackoff: 5 * time.Millisecond,
	}, Handlers{
		OnDown: func(err error) { down <- err },
	}, nil)

	finished := make(chan struct{})
	go func() {
		sock.Run(context.Background())
		close(finished)
	}()

	select {
	case err := <-down:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("socket never gave up")
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after giving up")
	}
}

func TestSocketCloseStopsRun(t *testing.T) {
	ss := newSocketServer(t)

	sock := NewSocket(SocketConfig{URL: ss.url()}, Handlers{}, nil)

	finished := make(chan struct{})
	go func() {
		sock.Run(context.Background())
		close(finished)
	}()

	require.Eventually(t, func() bool {
		ss.mu.Lock()
		defer ss.mu.Unlock()
		return len(ss.conns) > 0
	}, 2*time.Second, 10*time.Millisecond)

	sock.Close()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
