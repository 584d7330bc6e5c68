package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/partyield/internal/api"
)

// Event names carried in Message.Event.
const (
	EventSnapshot = "snapshot" // first message after connecting
	EventUpdate   = "update"   // scenario results or alerts changed
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10 // below pongWait
	queueDepth   = 16
	maxInbound   = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are checked at the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is the JSON envelope pushed to subscribers.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Source produces the yield snapshot. *api.Handler satisfies it.
type Source interface {
	BuildSnapshot() api.SnapshotResponse
}

// Hub fans scenario results out to WebSocket subscribers. A tick only
// produces an update when some scenario result or alert changed since the
// previous tick.
type Hub struct {
	src      Source
	interval time.Duration

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	last []byte // scenarios+alerts of the previous tick, without the timestamp
}

// subscriber is one WebSocket connection. An empty scenarios set means
// every scenario.
type subscriber struct {
	conn      *websocket.Conn
	out       chan []byte
	scenarios map[string]bool
}

// New creates a Hub polling src every interval.
func New(src Source, interval time.Duration) *Hub {
	return &Hub{src: src, interval: interval, subs: make(map[*subscriber]struct{})}
}

// Run pushes updates until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return
		case <-t.C:
			h.tick()
		}
	}
}

// ServeHTTP upgrades the request and streams results until the client goes
// away. ?scenario=a,b limits the stream to those scenario ids.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader already replied
	}

	s := &subscriber{
		conn:      conn,
		out:       make(chan []byte, queueDepth),
		scenarios: parseFilter(r.URL.Query().Get("scenario")),
	}
	// Queued before registering so only the hub ever closes s.out.
	if msg, err := encode(EventSnapshot, s.filter(h.src.BuildSnapshot())); err == nil {
		s.out <- msg
	} else {
		slog.Warn("ws: encode snapshot", "err", err)
	}
	h.add(s)
	defer h.remove(s)

	go s.writeLoop()
	s.readLoop()
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: subscriber connected", "remote", s.conn.RemoteAddr().String(), "filter", len(s.scenarios))
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.out)
	}
	h.mu.Unlock()
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.out)
	}
}

func (h *Hub) tick() {
	snap := h.src.BuildSnapshot()
	key, err := json.Marshal([]any{snap.Scenarios, snap.Alerts})
	if err != nil {
		slog.Warn("ws: encode snapshot", "err", err)
		return
	}

	h.mu.Lock()
	changed := !bytes.Equal(key, h.last)
	h.last = key
	h.mu.Unlock()
	if !changed {
		return
	}

	var slow []*subscriber
	// Subscribers sharing the same filter get the same encoded message.
	cache := make(map[string][]byte)
	h.mu.RLock()
	for s := range h.subs {
		k := s.filterKey()
		msg, ok := cache[k]
		if !ok {
			if msg, err = encode(EventUpdate, s.filter(snap)); err != nil {
				slog.Warn("ws: encode update", "err", err)
				continue
			}
			cache[k] = msg
		}
		select {
		case s.out <- msg:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		slog.Debug("ws: subscriber too slow, disconnecting", "remote", s.conn.RemoteAddr().String())
		h.remove(s)
	}
}

func encode(event string, snap api.SnapshotResponse) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: snap})
}

func parseFilter(raw string) map[string]bool {
	ids := make(map[string]bool)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = true
		}
	}
	return ids
}

// filter keeps only the subscribed scenarios and their alerts.
func (s *subscriber) filter(snap api.SnapshotResponse) api.SnapshotResponse {
	if len(s.scenarios) == 0 {
		return snap
	}
	out := api.SnapshotResponse{GeneratedAt: snap.GeneratedAt}
	out.Scenarios = make([]api.ScenarioResponse, 0, len(s.scenarios))
	for _, sc := range snap.Scenarios {
		if s.scenarios[sc.ScenarioID] {
			out.Scenarios = append(out.Scenarios, sc)
		}
	}
	out.Alerts = snap.Alerts[:0:0]
	for _, a := range snap.Alerts {
		if s.scenarios[a.ScenarioID] {
			out.Alerts = append(out.Alerts, a)
		}
	}
	return out
}

func (s *subscriber) filterKey() string {
	ids := make([]string, 0, len(s.scenarios))
	for id := range s.scenarios {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return strings.Join(ids, ",")
}

func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop only services pongs and close frames; clients never send data.
func (s *subscriber) readLoop() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxInbound)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
