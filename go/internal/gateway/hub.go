// Package gateway streams engine events to websocket clients watching a league.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event is what a client receives
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	LeagueID  uuid.UUID       `json:"league_id"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub fans events out to the connections watching each league.
type Hub struct {
	mu       sync.RWMutex
	leagues  map[uuid.UUID]map[*conn]struct{}
	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan Event
}

// conn is one websocket client. A non-empty userID limits it to league-wide
// events and events about that user.
type conn struct {
	id          string
	leagueID    uuid.UUID
	userID      string
	ws          *websocket.Conn
	send        chan []byte
	hub         *Hub
	connectedAt time.Time
	closeOnce   sync.Once
}

func NewHub(config HubConfig) *Hub {
	return &Hub{
		leagues: make(map[uuid.UUID]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan Event, 1000),
	}
}

// Start delivers queued broadcasts until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("gateway hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case event := <-h.broadcastCh:
			h.deliver(event)
		}
	}
}

// Broadcast queues an event. Events are dropped when the queue is full.
func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcastCh <- event:
	default:
		log.Warn().Str("league_id", event.LeagueID.String()).Msg("broadcast channel full, dropping event")
	}
}

// Upgrade turns the request into a websocket subscribed to leagueID.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, leagueID uuid.UUID, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &conn{
		id:          uuid.New().String(),
		leagueID:    leagueID,
		userID:      userID,
		ws:          ws,
		send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		connectedAt: time.Now(),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.id).
		Str("league_id", leagueID.String()).
		Str("user_id", userID).
		Msg("websocket connection established")
	return nil
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.leagues[c.leagueID] == nil {
		h.leagues[c.leagueID] = make(map[*conn]struct{})
	}
	h.leagues[c.leagueID][c] = struct{}{}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.leagues[c.leagueID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.leagues, c.leagueID)
	}
	log.Info().
		Str("connection_id", c.id).
		Str("league_id", c.leagueID.String()).
		Dur("connected_for", time.Since(c.connectedAt)).
		Msg("websocket connection closed")
}

func (h *Hub) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// send under the read lock so unregister cannot close a channel mid-send
	var sent int
	var slow []*conn
	h.mu.RLock()
	for c := range h.leagues[event.LeagueID] {
		if c.userID != "" && event.UserID != "" && c.userID != event.UserID {
			continue
		}
		select {
		case c.send <- data:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("connection_id", c.id).Msg("connection send buffer full, closing connection")
		h.unregister(c)
		c.close()
	}

	log.Debug().
		Str("event_type", event.Type).
		Str("league_id", event.LeagueID.String()).
		Int("connections", sent).
		Msg("event broadcasted")
}

// Stats reports the number of open connections per league.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveLeagues    int            `json:"active_leagues"`
	Leagues          map[string]int `json:"leagues"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{Leagues: make(map[string]int, len(h.leagues))}
	for id, conns := range h.leagues {
		s.TotalConnections += len(conns)
		s.Leagues[id.String()] = len(conns)
	}
	s.ActiveLeagues = len(h.leagues)
	return s
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.ws.Close()
	})
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write message to websocket")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only keeps the read deadline fresh; clients do not send commands.
func (c *conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
