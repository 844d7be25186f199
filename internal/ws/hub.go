package ws

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"ecoquote/internal/pubsub"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	replayLimit = 100
)

// Replayer returns recorded events of a channel after a sequence number
type Replayer interface {
	ReplayEvents(ctx context.Context, channel string, sinceSeq, limit int64) ([]pubsub.StreamEvent, error)
}

// ClientMessage is what a websocket client sends
type ClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Since   int64  `json:"since,omitempty"`
}

// ServerMessage is what the hub sends to a client
type ServerMessage struct {
	Type    string                 `json:"type"`
	Ack     string                 `json:"ack,omitempty"`
	Channel string                 `json:"channel,omitempty"`
	Seq     int64                  `json:"seq,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// AllowedChannel reports whether staff clients may follow a channel
func AllowedChannel(channel string) bool {
	if channel == pubsub.StaffChannel {
		return true
	}
	return strings.HasPrefix(channel, pubsub.QuotationPrefix) && len(channel) > len(pubsub.QuotationPrefix)
}

// Hub manages WebSocket connections and channel subscriptions
type Hub struct {
	mu       sync.RWMutex
	conns    map[*Conn]bool
	subs     map[string]map[*Conn]bool // channel -> connections
	publish  chan event
	log      *zap.Logger
	replayer Replayer
	once     sync.Once
}

// Conn is one staff websocket connection
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	hub     *Hub
	staffID string
	subs    map[string]bool
}

type event struct {
	channel string
	message map[string]interface{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns:   make(map[*Conn]bool),
		subs:    make(map[string]map[*Conn]bool),
		publish: make(chan event, 256),
		log:     log,
	}
}

// SetReplayer enables "resume" messages
func (h *Hub) SetReplayer(r Replayer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replayer = r
}

// Run fans published events out to subscribers until Close is called
func (h *Hub) Run() {
	for ev := range h.publish {
		h.mu.RLock()
		targets := make([]*Conn, 0, len(h.subs[ev.channel]))
		for conn := range h.subs[ev.channel] {
			targets = append(targets, conn)
		}
		h.mu.RUnlock()
		if len(targets) == 0 {
			continue
		}

		msg := ServerMessage{Type: "event", Channel: ev.channel, Data: ev.message}
		if seq, ok := ev.message["seq"].(int64); ok {
			msg.Seq = seq
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.log.Error("Failed to encode event", zap.String("channel", ev.channel), zap.Error(err))
			continue
		}
		for _, conn := range targets {
			select {
			case conn.send <- data:
			default:
				h.log.Warn("Dropping slow websocket client", zap.String("staff_id", conn.staffID))
				h.unregister(conn)
			}
		}
	}
}

// Close stops Run
func (h *Hub) Close() {
	h.once.Do(func() { close(h.publish) })
}

// Publish queues an event for every subscriber of a channel
func (h *Hub) Publish(channel string, message map[string]interface{}) {
	select {
	case h.publish <- event{channel: channel, message: message}:
	default:
		h.log.Warn("Hub publish channel full, dropping event", zap.String("channel", channel))
	}
}

func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	close(conn.send)
	for channel := range conn.subs {
		if subs := h.subs[channel]; subs != nil {
			delete(subs, conn)
			if len(subs) == 0 {
				delete(h.subs, channel)
			}
		}
	}
}

func (h *Hub) subscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; !ok {
		return
	}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Conn]bool)
	}
	h.subs[channel][conn] = true
	conn.subs[channel] = true
}

func (h *Hub) unsubscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.subs[channel]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, channel)
		}
	}
	delete(conn.subs, channel)
}

// Subscribers returns how many connections follow a channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func NewConn(ws *websocket.Conn, hub *Hub, staffID string) *Conn {
	return &Conn{
		ws:      ws,
		send:    make(chan []byte, 256),
		hub:     hub,
		staffID: staffID,
		subs:    make(map[string]bool),
	}
}

// ReadPump handles client messages until the connection drops
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(4096)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(ServerMessage{Type: "error", Error: "invalid message"})
			continue
		}
		c.handleMessage(msg)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case "subscribe", "unsubscribe", "resume":
		if !AllowedChannel(msg.Channel) {
			c.reply(ServerMessage{Type: "error", Channel: msg.Channel, Error: "channel not allowed"})
			return
		}
	}

	switch msg.Type {
	case "subscribe":
		c.hub.subscribe(c, msg.Channel)
		c.reply(ServerMessage{Type: "ack", Ack: "subscribed", Channel: msg.Channel})
	case "unsubscribe":
		c.hub.unsubscribe(c, msg.Channel)
		c.reply(ServerMessage{Type: "ack", Ack: "unsubscribed", Channel: msg.Channel})
	case "resume":
		c.resume(msg.Channel, msg.Since)
	case "ping":
		c.reply(ServerMessage{Type: "ack", Ack: "pong"})
	default:
		c.reply(ServerMessage{Type: "error", Error: "unknown message type"})
	}
}

// resume replays recorded events after since, then subscribes
func (c *Conn) resume(channel string, since int64) {
	c.hub.mu.RLock()
	replayer := c.hub.replayer
	c.hub.mu.RUnlock()

	if replayer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		events, err := replayer.ReplayEvents(ctx, channel, since, replayLimit)
		cancel()
		if err != nil {
			c.hub.log.Error("Failed to replay events", zap.String("channel", channel), zap.Int64("since", since), zap.Error(err))
			c.reply(ServerMessage{Type: "error", Channel: channel, Error: "replay failed"})
			return
		}
		for _, ev := range events {
			c.reply(ServerMessage{Type: "event", Channel: ev.Channel, Seq: ev.Sequence, Data: ev.Event})
		}
	}

	c.hub.subscribe(c, channel)
	c.reply(ServerMessage{Type: "ack", Ack: "resumed", Channel: channel})
}

func (c *Conn) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.conns[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
