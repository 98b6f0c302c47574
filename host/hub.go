package host

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/playback"
	"github.com/samber/lo"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
	maxMessage = 1 << 20
)

// client is one connected web UI.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub keeps the connected web UIs and fans notifications out to them.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a hub. allowedOrigins lists the origins that may connect in addition
// to the host itself; "*" allows any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[string]*client)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return h
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || lo.Contains(allowed, "*") || lo.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	}
}

// Clients returns the number of connected web UIs.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends n to every connected web UI. Clients that cannot keep up miss it.
func (h *Hub) Broadcast(n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Errorf("encode %s notification: %v", n.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warnf("ui client %s is not keeping up, dropping %s", c.id, n.Type)
		}
	}
}

func (h *Hub) reply(c *client, n Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Errorf("encode %s notification: %v", n.Type, err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

// serve upgrades the request and runs the connection until it closes. Every decoded
// command is passed to handle; a non-nil error is answered with a rejected notification.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, handle func(Command) error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	log.Infof("ui client %s connected (%d total)", c.id, total)

	go h.writeLoop(c)
	h.readLoop(c, handle)

	h.mu.Lock()
	delete(h.clients, c.id)
	total = len(h.clients)
	h.mu.Unlock()
	c.close()
	log.Infof("ui client %s disconnected (%d total)", c.id, total)
}

func (h *Hub) readLoop(c *client, handle func(Command) error) {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("ui client %s: %v", c.id, err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(c, Notification{Type: NoteRejected, Reason: "malformed command: " + err.Error()})
			continue
		}

		log.Debugf("ui client %s: %s", c.id, cmd.Type)
		if err := handle(cmd); err != nil {
			h.reply(c, Notification{Type: NoteRejected, MediaType: cmd.MediaType, Reason: err.Error()})
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debugf("ui client %s: write: %v", c.id, err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// Shutdown disconnects every web UI.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.close()
	}
}

// Notifier returns a playback notifier that broadcasts under mediaType.
func (h *Hub) Notifier(mediaType string) playback.Notifier {
	return &notifier{hub: h, mediaType: mediaType}
}

type notifier struct {
	hub       *Hub
	mediaType string
}

func (n *notifier) send(note Notification) {
	note.MediaType = n.mediaType
	n.hub.Broadcast(note)
}

func (n *notifier) Playing() {
	n.send(Notification{Type: NotePlaying})
}

func (n *notifier) Pause() {
	n.send(Notification{Type: NotePause})
}

func (n *notifier) Unpause() {
	n.send(Notification{Type: NoteUnpause})
}

func (n *notifier) Waiting() {
	n.send(Notification{Type: NoteWaiting})
}

func (n *notifier) Stopped(info playback.StopInfo) {
	n.send(Notification{Type: NoteStopped, URL: info.URL, ItemID: info.ItemID, PositionMs: &info.PositionMs})
}

func (n *notifier) TimeUpdate(ms int64) {
	n.send(Notification{Type: NoteTimeUpdate, PositionMs: &ms})
}

func (n *notifier) Error(err *playback.DecodeError) {
	n.send(Notification{Type: NoteError, URL: err.URL, ErrorKind: err.Kind(), Reason: err.Reason})
}
