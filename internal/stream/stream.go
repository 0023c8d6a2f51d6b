package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quotes-api/internal/config"
	"quotes-api/internal/models"
)

// QuoteSource is the resolver surface the streamer needs.
type QuoteSource interface {
	GetQuotes(ctx context.Context, market models.Market, symbols []string) []models.Quote
}

// Streamer pushes quote refreshes over a WebSocket on a fixed interval. It
// replaces client-side polling: one connection per watchlist, one resolver
// pass per tick.
type Streamer struct {
	upgrader websocket.Upgrader
	source   QuoteSource
	interval time.Duration
	maxSyms  int
	log      *logrus.Entry
}

// New builds a streamer.
func New(cfg config.StreamConfig, source QuoteSource) *Streamer {
	interval := cfg.PushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxSyms := cfg.MaxSymbols
	if maxSyms <= 0 {
		maxSyms = 50
	}
	return &Streamer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		source:   source,
		interval: interval,
		maxSyms:  maxSyms,
		log:      logrus.WithField("component", "stream"),
	}
}

// push is one outbound frame.
type push struct {
	Market string         `json:"market"`
	Quotes []models.Quote `json:"quotes"`
	At     int64          `json:"at"`
}

// Serve upgrades the connection and pushes until the client goes away or the
// request context ends. Callers validate market/symbols before handing off.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, market models.Market, symbols []string) {
	if len(symbols) > s.maxSyms {
		symbols = symbols[:s.maxSyms]
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read pump: we accept no inbound messages, but reading is how the
	// close frame is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First frame immediately, then on the interval.
	if !s.send(ctx, conn, market, symbols) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.send(ctx, conn, market, symbols) {
				return
			}
		}
	}
}

func (s *Streamer) send(ctx context.Context, conn *websocket.Conn, market models.Market, symbols []string) bool {
	quotes := s.source.GetQuotes(ctx, market, symbols)
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(push{Market: string(market), Quotes: quotes, At: time.Now().Unix()}); err != nil {
		return false
	}
	return true
}
