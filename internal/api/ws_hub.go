package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/metrics"
	"github.com/slimefarm/ledger-engine/internal/model"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type     string   `json:"type"` // "commit"
	Op       string   `json:"op"`
	Caller   string   `json:"caller"`
	Outcome  string   `json:"outcome"`
	Version  uint64   `json:"version"`
	Block    uint64   `json:"block"`
	Accounts []string `json:"accounts"`
	EntryID  string   `json:"entry_id"`
}

// WSHub manages WebSocket connections and fans committed requests out to
// subscribers. A subscriber opened with ?account=X only receives entries
// that touched X.
type WSHub struct {
	subs       map[*websocket.Conn]account.Account // "" subscribes to everything
	broadcast  chan outbound
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

type subscription struct {
	conn    *websocket.Conn
	account account.Account
}

type outbound struct {
	data     []byte
	accounts []string
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHub{
		subs:       make(map[*websocket.Conn]account.Account),
		broadcast:  make(chan outbound, 256),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop until ctx is done. Must be called in a
// goroutine.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.subs {
				conn.Close()
			}
			clear(h.subs)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subs[sub.conn] = sub.account
			total := len(h.subs)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			h.logger.Info("ws client connected", "account", sub.account, "total", total)

		case conn := <-h.unregister:
			h.drop(conn)

		case out := <-h.broadcast:
			h.fanOut(out)
		}
	}
}

func (h *WSHub) fanOut(out outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, acct := range h.subs {
		if acct != "" && !slices.Contains(out.accounts, string(acct)) {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, out.data); err != nil {
			conn.Close()
			delete(h.subs, conn)
		}
	}
	metrics.WebSocketClients.Set(float64(len(h.subs)))
}

func (h *WSHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.subs[conn]; ok {
		delete(h.subs, conn)
		conn.Close()
	}
	total := len(h.subs)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
}

// Publish queues a committed journal entry for broadcast. It never blocks
// so it is safe to call from the engine's commit hook.
func (h *WSHub) Publish(e model.JournalEntry) {
	h.Broadcast(WSMessage{
		Type:     "commit",
		Op:       e.Op,
		Caller:   string(e.Caller),
		Outcome:  e.Outcome,
		Version:  e.Version,
		Block:    e.Block,
		Accounts: e.Accounts,
		EntryID:  e.ID,
	})
}

// Broadcast queues msg for every subscriber whose account it touches.
// When the buffer is full the message is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- outbound{data: data, accounts: msg.Accounts}:
	default:
		h.logger.Warn("ws broadcast buffer full, dropping message", "op", msg.Op, "version", msg.Version)
	}
}

// Clients returns the number of connected subscribers.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS handles GET /api/v1/ws[?account=X].
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var filter account.Account
	if q := r.URL.Query().Get("account"); q != "" {
		a, err := account.Parse(q)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = a
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- subscription{conn: conn, account: filter}:
	case <-h.done:
		conn.Close()
		return
	}

	go h.readPump(conn)
	go h.pingLoop(conn)
}

// readPump discards client frames and unregisters the connection once
// reads fail or the pong deadline passes.
func (h *WSHub) readPump(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		_, ok := h.subs[conn]
		h.mu.RUnlock()
		if !ok {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
			return
		}
	}
}
