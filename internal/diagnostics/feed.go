package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/automation"
	"github.com/watzon/gearbox/internal/metrics"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedPingInterval = 30 * time.Second
	feedBufferSize   = 64
)

// feedEvent is the wire form of one execution on the live feed.
type feedEvent struct {
	HookID     string    `json:"hook_id"`
	TemplateID string    `json:"template_id"`
	GuildID    string    `json:"guild_id"`
	UserID     string    `json:"user_id"`
	Success    bool      `json:"success"`
	Timestamp  time.Time `json:"timestamp"`
}

type feedClient struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

// Feed broadcasts hook executions to connected websocket clients. It
// implements automation.HistorySink so it can sit next to the durable
// history store.
type Feed struct {
	mu      sync.RWMutex
	clients map[string]*feedClient
	closed  bool
}

// NewFeed builds an empty feed.
func NewFeed() *Feed {
	return &Feed{clients: make(map[string]*feedClient)}
}

// Record broadcasts an execution to every connected client. Slow clients
// drop events rather than stalling the engine.
func (f *Feed) Record(rec *automation.ExecutionRecord) error {
	data, err := json.Marshal(feedEvent{
		HookID:     rec.HookID,
		TemplateID: rec.TemplateID,
		GuildID:    rec.GuildID,
		UserID:     rec.UserID,
		Success:    rec.Success,
		Timestamp:  rec.Timestamp,
	})
	if err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.clients {
		select {
		case c.sendCh <- data:
		case <-c.done:
		default:
			log.Warn().Str("client_id", c.id).Msg("Feed client buffer full, dropping event")
		}
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket and streams executions
// until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Feed websocket accept failed")
		return
	}

	client := &feedClient{
		id:     uuid.New().String(),
		conn:   conn,
		sendCh: make(chan []byte, feedBufferSize),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	f.clients[client.id] = client
	f.mu.Unlock()

	metrics.IncrementFeedClients()
	log.Debug().Str("client_id", client.id).Msg("feed client connected")

	defer func() {
		f.remove(client.id)
		metrics.DecrementFeedClients()
		conn.Close(websocket.StatusNormalClosure, "closing")
		log.Debug().Str("client_id", client.id).Msg("feed client disconnected")
	}()

	ctx := r.Context()
	go f.readPump(ctx, client)
	f.writePump(ctx, client)
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	clients := make([]*feedClient, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	f.clients = make(map[string]*feedClient)
	f.mu.Unlock()

	for _, c := range clients {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (f *Feed) remove(id string) {
	f.mu.Lock()
	if c, ok := f.clients[id]; ok {
		delete(f.clients, id)
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	f.mu.Unlock()
}

// readPump drains client frames so pongs are processed; the feed is one-way.
func (f *Feed) readPump(ctx context.Context, c *feedClient) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			f.remove(c.id)
			return
		}
	}
}

func (f *Feed) writePump(ctx context.Context, c *feedClient) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
