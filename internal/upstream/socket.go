package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/propdesk/agent-console/internal/category"
	"github.com/propdesk/agent-console/pkg/metrics"
)

const (
	defaultMaxReconnects    = 5
	defaultReconnectBackoff = 2 * time.Second
	socketReadLimit         = 1 << 20 // 1 MiB
)

// Frame is the JSON envelope carried on the upstream socket.
type Frame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Handlers receive decoded upstream events. All callbacks are invoked from
// the socket's read goroutine.
type Handlers struct {
	// OnNew delivers one new-item record for a category.
	OnNew func(d category.Descriptor, record map[string]interface{})

	// OnAssigned reports an item claimed by another agent.
	OnAssigned func(c category.Category, id string)

	// OnDown fires once when the socket gives up reconnecting. Live updates
	// stop; the poller remains the only feed.
	OnDown func(err error)
}

// SocketConfig configures the upstream event socket.
type SocketConfig struct {
	// URL is the websocket endpoint, e.g. ws://crm.example.com/socket.
	URL string

	// Token is sent on the handshake request.
	Token string

	// MaxReconnects bounds consecutive failed connection attempts.
	MaxReconnects int

	// ReconnectBackoff is the base delay between attempts, grown linearly.
	ReconnectBackoff time.Duration
}

// Socket maintains the live event connection to the CRM backend. One socket
// is owned by one console instance; its lifecycle is explicit (Run/Close),
// never a package-level singleton.
type Socket struct {
	cfg      SocketConfig
	handlers Handlers
	log      *zap.Logger
	dialer   *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewSocket constructs a disconnected socket.
func NewSocket(cfg SocketConfig, handlers Handlers, log *zap.Logger) *Socket {
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultReconnectBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Socket{
		cfg:      cfg,
		handlers: handlers,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects and consumes events until the context is cancelled, Close is
// called, or the reconnect budget is exhausted. It blocks, so callers run it
// in a goroutine.
func (s *Socket) Run(ctx context.Context) {
	attempts := 0

	for {
		if ctx.Err() != nil || s.isClosed() {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			attempts++
			metrics.UpstreamReconnects.Inc()
			if attempts >= s.cfg.MaxReconnects {
				s.log.Warn("socket reconnect budget exhausted; live updates disabled",
					zap.Int("attempts", attempts), zap.Error(err))
				if s.handlers.OnDown != nil {
					s.handlers.OnDown(err)
				}
				return
			}
			s.log.Debug("socket dial failed; retrying",
				zap.Int("attempt", attempts), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempts) * s.cfg.ReconnectBackoff):
			}
			continue
		}

		attempts = 0
		s.log.Info("socket connected", zap.String("url", s.cfg.URL))
		s.readLoop(conn)
	}
}

// Close tears the connection down and stops reconnecting. Safe to call more
// than once.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("token", s.cfg.Token)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", s.cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	conn.SetReadLimit(socketReadLimit)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, fmt.Errorf("socket closed")
	}
	s.conn = conn
	s.mu.Unlock()

	return conn, nil
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !s.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("socket read failed", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.log.Warn("socket frame not decodable", zap.Error(err))
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Socket) dispatch(frame Frame) {
	if frame.Event == category.EventAssignedByOther {
		s.dispatchAssigned(frame.Data)
		return
	}

	d, ok := category.ByEvent(frame.Event)
	if !ok {
		s.log.Debug("ignoring unknown socket event", zap.String("event", frame.Event))
		return
	}

	record, ok := frame.Data[d.PayloadField].(map[string]interface{})
	if !ok {
		s.log.Warn("socket event missing payload field",
			zap.String("event", frame.Event), zap.String("field", d.PayloadField))
		return
	}

	if s.handlers.OnNew != nil {
		s.handlers.OnNew(d, record)
	}
}

func (s *Socket) dispatchAssigned(data map[string]interface{}) {
	typeToken, _ := data["type"].(string)
	id, _ := data["id"].(string)
	if id == "" {
		s.log.Warn("assigned_by_other event missing id")
		return
	}

	c, ok := category.Parse(typeToken)
	if !ok {
		s.log.Warn("assigned_by_other event with unknown type", zap.String("type", typeToken))
		return
	}

	if s.handlers.OnAssigned != nil {
		s.handlers.OnAssigned(c, id)
	}
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
