package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mp4grab/internal/models"
	"mp4grab/internal/progress"
	"mp4grab/internal/utils"
)

const (
	DefaultInterval = 500 * time.Millisecond
	writeWait       = 10 * time.Second
	sendBuffer      = 8
)

type Hub struct {
	mu        sync.Mutex
	clients   map[*client]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
	mirror    *progress.Mirror
	interval  atomic.Int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressUpdate is the progress message pushed to the browser: the raw
// snapshot plus the labels the page renders as-is.
type ProgressUpdate struct {
	Type string `json:"type"`
	models.ProgressState
	PercentLabel    string `json:"percentLabel"`
	SpeedLabel      string `json:"speedLabel"`
	ETALabel        string `json:"etaLabel"`
	DownloadedLabel string `json:"downloadedLabel"`
	TotalLabel      string `json:"totalLabel"`
}

func NewProgressUpdate(st models.ProgressState) *ProgressUpdate {
	return &ProgressUpdate{
		Type:            "progress",
		ProgressState:   st,
		PercentLabel:    fmt.Sprintf("%.1f%%", st.Percentage),
		SpeedLabel:      utils.FormatSpeed(st.Speed),
		ETALabel:        utils.FormatTime(st.ETA),
		DownloadedLabel: utils.FormatBytes(float64(st.DownloadedBytes)),
		TotalLabel:      utils.FormatBytes(float64(st.TotalBytes)),
	}
}

func NewHub(mirror *progress.Mirror) *Hub {
	h := &Hub{
		clients:   make(map[*client]bool),
		broadcast: make(chan []byte, sendBuffer),
		mirror:    mirror,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.interval.Store(int64(DefaultInterval))
	return h
}

// SetInterval changes the heartbeat period of the display loops started
// afterwards. Non-positive values are ignored.
func (h *Hub) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.interval.Store(int64(d))
}

func (h *Hub) Interval() time.Duration {
	return time.Duration(h.interval.Load())
}

// Run fans broadcast messages out to every client until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slog.Debug("Dropping message for slow client", "remote_addr", c.conn.RemoteAddr().String())
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastUpdate tells clients to refetch session state (job, history).
func (h *Hub) BroadcastUpdate() {
	select {
	case h.broadcast <- []byte(`{"type": "update"}`):
	default:
		slog.Warn("Broadcast buffer full, update dropped")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) WsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("Client connected", "remote_addr", r.RemoteAddr)
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.displayLoop(ctx, c)
		// unblock the reader below when the writer gives up first
		conn.Close()
	}()

	defer func() {
		cancel()
		<-done
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
		slog.Info("Client disconnected", "remote_addr", r.RemoteAddr)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("WS read error", "error", err)
			}
			return
		}
	}
}

// displayLoop pushes the newest snapshot whenever the mirror publishes one,
// and re-sends the current snapshot on every heartbeat tick.
func (h *Hub) displayLoop(ctx context.Context, c *client) {
	sub := h.mirror.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(h.Interval())
	defer ticker.Stop()

	for {
		var msg []byte
		select {
		case <-ctx.Done():
			return
		case st := <-sub.C:
			msg = encodeProgress(st)
		case <-ticker.C:
			msg = encodeProgress(h.mirror.Snapshot())
		case m := <-c.send:
			msg = m
		}
		if msg == nil {
			continue
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("WS write failed", "error", err)
			return
		}
	}
}

func encodeProgress(st models.ProgressState) []byte {
	msg, err := json.Marshal(NewProgressUpdate(st))
	if err != nil {
		slog.Error("Failed to marshal progress update", "error", err)
		return nil
	}
	return msg
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
}
