package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startHubServer(t *testing.T, hub *Hub, streams []string) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(streams, w, r)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, nil)

	conn := dial(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamNotifications) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(StreamNotifications, Message{Event: "notification.created", Data: map[string]int{"total": 1}})

	msg := readMessage(t, conn)
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, "notification.created", msg.Event)
}

func TestBroadcastReachesAllTabs(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, []string{StreamAlerts})

	first := dial(t, url)
	second := dial(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamAlerts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(StreamAlerts, Message{Event: "alert.looping"})

	require.Equal(t, "alert.looping", readMessage(t, first).Event)
	require.Equal(t, "alert.looping", readMessage(t, second).Event)
}

func TestBroadcastToUnsubscribedStreamIsDropped(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, []string{StreamPresence})

	conn := dial(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamPresence) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(StreamNotifications, Message{Event: "notification.created"})
	hub.Broadcast(StreamPresence, Message{Event: "presence.changed"})

	// Only the subscribed stream's message arrives.
	msg := readMessage(t, conn)
	require.Equal(t, "presence.changed", msg.Event)
}

func TestAttachObserverFiresPerConnection(t *testing.T) {
	hub := NewHub()

	var attaches atomic.Int64
	hub.SetAttachObserver(func() { attaches.Add(1) })

	url := startHubServer(t, hub, nil)
	dial(t, url)
	dial(t, url)

	require.Eventually(t, func() bool {
		return attaches.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnsubscribeControlMessage(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, nil)

	conn := dial(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamAlerts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamAlerts}}))

	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamAlerts) == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, hub.ClientCount(StreamNotifications))
}

func TestDisconnectUnregistersClient(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, nil)

	conn := dial(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamNotifications) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamNotifications) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastDropsStalledSubscriber(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, []string{StreamAlerts})

	// This tab never reads; its socket and send buffer fill up.
	dial(t, url)
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamAlerts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	padding := strings.Repeat("x", 4096)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			hub.Broadcast(StreamAlerts, Message{Event: "alert.play", Data: padding})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked on a subscriber that stopped reading")
	}

	// The stalled tab is dropped rather than wedging the hub.
	require.Eventually(t, func() bool {
		return hub.ClientCount(StreamAlerts) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
