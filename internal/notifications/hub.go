package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fsoi/internal/logging"
)

// WebsocketChannelPrefix marks channel handles served by the Hub.
const WebsocketChannelPrefix = "ws:"

// ErrChannelClosed is returned when sending to a channel that is not connected.
var ErrChannelClosed = errors.New("websocket channel not connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub tracks live websocket subscribers by channel handle.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*hubClient
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub creates an empty hub. writeTimeout bounds each message write.
func NewHub(writeTimeout time.Duration, logger *slog.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*hubClient),
		writeTimeout: writeTimeout,
		logger:       logging.NewComponentLogger(logger, "websocket-hub"),
	}
}

// Accept upgrades the request and registers the connection under a new
// "ws:<uuid>" handle.
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request) (string, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return "", fmt.Errorf("upgrade websocket: %w", err)
	}
	channel := WebsocketChannelPrefix + uuid.NewString()

	h.mu.Lock()
	h.clients[channel] = &hubClient{conn: conn}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket subscriber connected",
		logging.String("channel", channel),
		logging.Int("connected", count),
	)
	return channel, nil
}

// Wait blocks reading from channel until the peer disconnects or ctx ends,
// then closes and unregisters it.
func (h *Hub) Wait(ctx context.Context, channel string) {
	client := h.lookup(channel)
	if client == nil {
		return
	}
	stop := context.AfterFunc(ctx, func() {
		_ = client.conn.Close()
	})
	defer stop()
	defer h.Remove(channel)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) && ctx.Err() == nil {
				logging.WarnWithContext(h.logger, "websocket read failed", "websocket_read_failed",
					logging.String("channel", channel),
					logging.Error(err),
					logging.String(logging.FieldImpact, "subscriber removed"),
				)
			}
			return
		}
	}
}

// Send writes text to the connection behind channel.
func (h *Hub) Send(_ context.Context, channel, text string) error {
	client := h.lookup(channel)
	if client == nil {
		return fmt.Errorf("%w: %s", ErrChannelClosed, channel)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := client.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

// Remove closes and unregisters channel. Unknown channels are ignored.
func (h *Hub) Remove(channel string) {
	h.mu.Lock()
	client, ok := h.clients[channel]
	delete(h.clients, channel)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	_ = client.conn.Close()
	h.logger.Debug("websocket subscriber disconnected",
		logging.String("channel", channel),
		logging.Int("connected", count),
	)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*hubClient)
	h.mu.Unlock()
	for _, client := range clients {
		_ = client.conn.Close()
	}
}

func (h *Hub) lookup(channel string) *hubClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[channel]
}
