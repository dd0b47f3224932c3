package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"cloudamp/internal/core"
)

const (
	writeWait      = 5 * time.Second
	pingPeriod     = 30 * time.Second
	clientBuffer   = 32
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The socket only serves the local UI process.
	CheckOrigin: func(*http.Request) bool { return true },
}

// pushMessage is the envelope every UI push uses.
type pushMessage struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data,omitempty"`
}

type audioStateData struct {
	LoadPercentage float64 `json:"loadPercentage"`
	Duration       float64 `json:"duration"`
	CurrentTime    float64 `json:"currentTime"`
	Phase          string  `json:"phase"`
}

type syncData struct {
	PlaylistID int64     `json:"playlistId"`
	Song       *songData `json:"song,omitempty"`
	IsPlaying  bool      `json:"playing"`
}

type songData struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Artists  string `json:"artists"`
	CoverURL string `json:"picUrl,omitempty"`
}

type songMarkedData struct {
	SongID int64  `json:"songId"`
	Op     string `json:"op"`
}

// Hub fans pushes out to every connected UI client. It implements
// core.Notifier; a slow client drops messages rather than stalling the
// orchestrator.
type Hub struct {
	logger    *zap.Logger
	connected prometheus.Gauge

	mutex   sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger, connected prometheus.Gauge) *Hub {
	return &Hub{
		logger:    logger,
		connected: connected,
		clients:   make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and keeps the client registered until the
// connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.connected.Set(float64(len(h.clients)))
	h.mutex.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// AudioState implements core.Notifier.
func (h *Hub) AudioState(state core.AudioPlaybackState) {
	h.broadcast(pushMessage{Action: "audioState", Data: audioStateData{
		LoadPercentage: state.LoadPercentage,
		Duration:       state.DurationSec,
		CurrentTime:    state.CurrentTimeSec,
		Phase:          state.Phase.String(),
	}})
}

// Sync implements core.Notifier.
func (h *Hub) Sync(payload core.SyncPayload) {
	data := syncData{
		PlaylistID: payload.PlaylistID,
		IsPlaying:  payload.IsPlaying,
	}
	if payload.Song != nil {
		data.Song = &songData{
			ID:       payload.Song.ID,
			Name:     payload.Song.Name,
			Artists:  payload.Song.Artists,
			CoverURL: payload.Song.CoverURL,
		}
	}
	h.broadcast(pushMessage{Action: "sync", Data: data})
}

// SongMarked implements core.Notifier.
func (h *Hub) SongMarked(songID int64, op core.SongOp) {
	h.broadcast(pushMessage{Action: "changeSongsMap", Data: songMarkedData{
		SongID: songID,
		Op:     string(op),
	}})
}

// Notice implements core.Notifier.
func (h *Hub) Notice(message string) {
	h.broadcast(pushMessage{Action: "message", Data: message})
}

// Error implements core.Notifier.
func (h *Hub) Error(message string) {
	h.broadcast(pushMessage{Action: "error", Data: message})
}

func (h *Hub) broadcast(msg pushMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode push message", zap.Error(err))
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Client is not keeping up; drop this message for it.
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.connected.Set(0)
}

func (h *Hub) remove(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
	h.connected.Set(float64(len(h.clients)))
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the socket is push-only. It exists to
// notice the peer going away.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
