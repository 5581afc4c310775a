// Package feed streams the custody journal to WebSocket subscribers. Each
// connection gets its own journal subscription; a client can pass ?from=N
// to replay archived-in-memory events before going live.
package feed

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/observability"
)

// Config configures feed connection behavior.
type Config struct {
	// WriteTimeout is timeout for writing frames.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// SubscribeBuffer is the per-connection journal buffer. A consumer
	// that overruns it misses events; the seq field lets it detect the
	// gap and reconnect with ?from=.
	SubscribeBuffer int
}

// DefaultConfig returns default feed configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		PingInterval:    30 * time.Second,
		SubscribeBuffer: 1024,
	}
}

// wireEvent is the JSON frame sent to subscribers.
type wireEvent struct {
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"`
	Token     string `json:"token"`
	RefID     string `json:"ref_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Category  string `json:"category,omitempty"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func toWire(e domain.Event) wireEvent {
	return wireEvent{
		Seq:       e.Seq,
		Kind:      string(e.Kind),
		Token:     string(e.Token),
		RefID:     e.RefID,
		From:      string(e.From),
		To:        string(e.To),
		Amount:    e.Amount,
		Category:  e.Category,
		Before:    e.Before,
		After:     e.After,
		Timestamp: e.Timestamp,
	}
}

// Handler upgrades HTTP requests and streams journal events.
type Handler struct {
	journal  *events.Journal
	config   Config
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a feed handler over the journal.
func NewHandler(journal *events.Journal, config *Config, logger *log.Logger) *Handler {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		journal: journal,
		config:  cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid from parameter", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade writes its own error response.
		return
	}

	observability.DefaultMetrics.FeedSubscribers.Inc()
	defer observability.DefaultMetrics.FeedSubscribers.Dec()
	h.logger.Printf("[feed] subscriber connected from %s", r.RemoteAddr)
	defer h.logger.Printf("[feed] subscriber %s gone", r.RemoteAddr)
	defer conn.Close()

	// Without ?from the stream starts at connect time.
	var lastSent uint64
	replay := r.URL.Query().Has("from")
	if !replay {
		lastSent = uint64(h.journal.Len())
	}

	// Subscribe before replaying so nothing falls between the replay
	// snapshot and going live; overlap is deduplicated by lastSent.
	ch, cancel := h.journal.Subscribe(h.config.SubscribeBuffer)
	defer cancel()

	if replay {
		for _, e := range h.journal.After(from) {
			if err := h.write(conn, e); err != nil {
				return
			}
			lastSent = e.Seq
		}
	}

	// Reader goroutine: drains control frames and surfaces the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return

		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Seq <= lastSent {
				continue
			}
			if err := h.write(conn, e); err != nil {
				return
			}
			lastSent = e.Seq

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, e domain.Event) error {
	conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	return conn.WriteJSON(toWire(e))
}
