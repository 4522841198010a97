package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// Event types pushed over /api/events.
const (
	EventWallet = "wallet"
	EventVote   = "vote"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	subscriberQ  = 16
)

// Event is one message on the event stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans events out to websocket subscribers. Slow subscribers lose
// events rather than block publishers.
type Hub struct {
	log *logger.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{log: log, subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.WithField("type", ev.Type).Debug("dropping event for slow subscriber")
		}
	}
}

// Subscribers reports the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberQ)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// WatchSession publishes the wallet status whenever it changes, including
// disconnects the provider initiates on its own. It returns when ctx is done.
func (h *Hub) WatchSession(ctx context.Context, session wallet.Session, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := session.Status()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := session.Status()
			if st != last {
				last = st
				h.Publish(Event{Type: EventWallet, Data: newWalletView(st)})
			}
		}
	}
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// events upgrades to a websocket and streams hub events until either side
// closes. The current wallet status is sent first.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.hub.subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
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
	}()

	write := func(ev Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}
	if err := write(Event{Type: EventWallet, Data: h.statusView()}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			if err := write(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
