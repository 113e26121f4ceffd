package realtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// UserResolver authenticates a websocket request and returns the user the
// connection belongs to.
type UserResolver func(r *http.Request) (int64, error)

// RelayHandler upgrades HTTP requests to websockets and relays the user's
// session feed onto the socket. Clients that fall behind or disconnect are
// dropped and reconcile by re-reading the chat log after reconnecting.
type RelayHandler struct {
	broker           Broker
	resolveUser      UserResolver
	upgrader         websocket.Upgrader
	logger           Logger
	contextualLogger ContextualLogger
}

// RelayOption configures a RelayHandler during construction.
type RelayOption func(*RelayHandler)

// WithRelayLogger configures a logger for connection handling problems.
func WithRelayLogger(logger Logger) RelayOption {
	return func(h *RelayHandler) {
		h.logger = logger
	}
}

// WithRelayContextualLogger configures a context-aware logger for
// connection handling problems. It takes precedence over a plain Logger.
func WithRelayContextualLogger(logger ContextualLogger) RelayOption {
	return func(h *RelayHandler) {
		h.contextualLogger = logger
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(check func(r *http.Request) bool) RelayOption {
	return func(h *RelayHandler) {
		h.upgrader.CheckOrigin = check
	}
}

// NewRelayHandler creates the websocket relay for a broker. resolveUser
// must reject unauthenticated requests with an error.
func NewRelayHandler(broker Broker, resolveUser UserResolver, options ...RelayOption) (*RelayHandler, error) {
	if broker == nil {
		return nil, errors.New("broker must not be nil")
	}
	if resolveUser == nil {
		return nil, errors.New("user resolver must not be nil")
	}

	handler := &RelayHandler{
		broker:      broker,
		resolveUser: resolveUser,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	for _, option := range options {
		option(handler)
	}

	return handler, nil
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.resolveUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.warn(r, "websocket upgrade failed", "error", err.Error())
		return
	}

	session, err := NewSession(r.Context(), h.broker, userID)
	if err != nil {
		h.warn(r, "subscribing user failed", "user_id", userID, "error", err.Error())
		_ = conn.Close()
		return
	}

	go h.readLoop(conn, session)
	h.writeLoop(conn, session)
}

// readLoop discards inbound frames; it exists to notice the peer closing
// the connection and to answer pings.
func (h *RelayHandler) readLoop(conn *websocket.Conn, session *Session) {
	defer session.Close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *RelayHandler) writeLoop(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		session.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-session.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}

			payload, err := event.Encode()
			if err != nil {
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RelayHandler) warn(r *http.Request, msg string, args ...any) {
	if h.contextualLogger != nil {
		h.contextualLogger.WarnContext(r.Context(), msg, args...)
		return
	}

	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
