package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"fleettrack/internal/domain/user"
	"fleettrack/internal/general/contracts"
	"fleettrack/internal/general/jwt"
	"fleettrack/internal/general/logger"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadWindow   = 60 * time.Second
	pingInterval   = 30 * time.Second
	ctrlTimeout    = 5 * time.Second
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one dashboard subscriber. Outbound frames go through a
// buffered channel so a slow reader sheds its own updates instead of
// stalling the ingest path.
type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub fans live position updates out to websocket dashboard clients,
// partitioned by company so tenants never see each other's devices.
type Hub struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager

	mu      sync.RWMutex
	tenants map[string]map[*client]struct{}
}

// NewHub constructs an empty Hub.
func NewHub(log *logger.Logger, jwtMgr *jwt.Manager) *Hub {
	return &Hub{
		logger:  log,
		jwtMgr:  jwtMgr,
		tenants: make(map[string]map[*client]struct{}),
	}
}

// Broadcast queues an update for every subscriber of the company. A
// subscriber whose buffer is full is dropped from this round; its next
// frame will carry the latest position anyway.
func (h *Hub) Broadcast(companyID string, update contracts.LiveLocationUpdate) {
	payload, err := json.Marshal(map[string]any{
		"type": "location_update",
		"data": update,
	})
	if err != nil {
		h.logger.Error(context.Background(), "livefeed_marshal_failed", "Failed to marshal location update", err, nil)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.tenants[companyID] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// Subscribers reports the current subscriber count for a company.
func (h *Hub) Subscribers(companyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[companyID])
}

func (h *Hub) register(companyID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.tenants[companyID]
	if !ok {
		set = make(map[*client]struct{})
		h.tenants[companyID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(companyID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.tenants[companyID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.tenants, companyID)
	}
}

// ServeWS upgrades the request and streams the company's live feed. The
// token arrives in the Authorization header or a `token` query parameter
// since browsers cannot set headers on websocket dials.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token, err := jwt.FromAuthorization(r)
	if err != nil {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	_, claims, err := h.jwtMgr.ParseAndValidate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if err := jwt.RoleAllowed(claims, user.RoleOperator, user.RoleManager, user.RoleAdmin); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	companyID := claims.CompanyID
	if companyID == "" {
		// admins subscribe to an explicit company
		companyID = r.URL.Query().Get("company_id")
		if companyID == "" {
			http.Error(w, "company_id required", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(companyID, c)
	h.logger.Info(r.Context(), "ws_connected", "Live feed client connected",
		map[string]any{"company_id": companyID, "user_id": claims.Subject})

	go h.writeLoop(c)
	h.readLoop(r.Context(), companyID, c, claims.Subject)
}

// writeLoop owns every write on the connection: queued updates plus the
// keepalive pings. Exits when the send channel closes.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
					time.Now().Add(ctrlTimeout),
				)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames to keep pong handling alive. The feed is
// one-way, anything the client sends beyond control frames is ignored.
func (h *Hub) readLoop(ctx context.Context, companyID string, c *client, userID string) {
	defer func() {
		h.unregister(companyID, c)
		c.close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsReadWindow))
	c.conn.SetPongHandler(func(_ string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadWindow))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn(ctx, "ws_unexpected_close", "Live feed client closed unexpectedly",
					map[string]any{"company_id": companyID, "user_id": userID})
			} else {
				h.logger.Info(ctx, "ws_connection_closed", "Live feed client disconnected",
					map[string]any{"company_id": companyID, "user_id": userID})
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsReadWindow))
	}
}
