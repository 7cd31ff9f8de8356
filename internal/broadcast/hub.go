// Package broadcast fans room state out to connected clients.
//
// Every connection keeps only the newest state of each room it watches plus
// a small queue of direct messages. A slow connection therefore skips
// intermediate states but always ends up with the latest one, and states of
// one room are never delivered out of order.
package broadcast

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"gamerooms/internal/room"
)

// Message is the JSON envelope for every frame sent to a client.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode builds an envelope frame.
func Encode(msgType string, payload any) []byte {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(Message{Type: msgType, Payload: p})
	return msg
}

// StatePayload is the payload of a "state" frame.
type StatePayload struct {
	State *room.State `json:"state"`
	Event *room.Event `json:"event,omitempty"`
}

const directBuffer = 64

type snapshot struct {
	version int64
	frame   []byte
}

// Conn is one client connection's view of the hub.
type Conn struct {
	ID string

	notify chan struct{}
	direct chan []byte

	mu     sync.Mutex
	rooms  map[string]struct{}
	latest map[string]snapshot
	sent   map[string]int64
}

// Notify fires when at least one new room state is waiting in Pending.
func (c *Conn) Notify() <-chan struct{} { return c.notify }

// Direct carries messages addressed to this connection only.
func (c *Conn) Direct() <-chan []byte { return c.direct }

// Pending returns the newest undelivered state frame of each room and
// marks them delivered.
func (c *Conn) Pending() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.latest))
	for id := range c.latest {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		s := c.latest[id]
		out = append(out, s.frame)
		c.sent[id] = s.version
		delete(c.latest, id)
	}
	return out
}

// Rooms lists the rooms this connection watches.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (c *Conn) offer(roomID string, s snapshot) {
	c.mu.Lock()
	sent, seen := c.sent[roomID]
	if _, ok := c.rooms[roomID]; !ok || (seen && s.version <= sent) {
		c.mu.Unlock()
		return
	}
	if cur, ok := c.latest[roomID]; ok && cur.version >= s.version {
		c.mu.Unlock()
		return
	}
	c.latest[roomID] = s
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Conn) send(frame []byte) bool {
	select {
	case c.direct <- frame:
		return true
	default:
		return false
	}
}

// Hub tracks which connections watch which rooms.
type Hub struct {
	log   zerolog.Logger
	conns *xsync.MapOf[string, *Conn]

	mu      sync.RWMutex
	members map[string]map[*Conn]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "broadcast").Logger(),
		conns:   xsync.NewMapOf[string, *Conn](),
		members: make(map[string]map[*Conn]struct{}),
	}
}

// Register creates the hub side of a new connection.
func (h *Hub) Register(connID string) *Conn {
	c := &Conn{
		ID:     connID,
		notify: make(chan struct{}, 1),
		direct: make(chan []byte, directBuffer),
		rooms:  make(map[string]struct{}),
		latest: make(map[string]snapshot),
		sent:   make(map[string]int64),
	}
	h.conns.Store(connID, c)
	return c
}

// Unregister removes a connection from every room it watches.
func (h *Hub) Unregister(c *Conn) {
	h.conns.Delete(c.ID)
	for _, id := range c.Rooms() {
		h.Leave(c, id)
	}
}

// Join subscribes c to roomID.
func (h *Hub) Join(c *Conn, roomID string) {
	h.mu.Lock()
	set, ok := h.members[roomID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.members[roomID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

// Leave unsubscribes c from roomID.
func (h *Hub) Leave(c *Conn, roomID string) {
	h.mu.Lock()
	if set, ok := h.members[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.members, roomID)
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, roomID)
	delete(c.latest, roomID)
	delete(c.sent, roomID)
	c.mu.Unlock()
}

// Subscribers counts the connections watching roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[roomID])
}

func (h *Hub) snapshotMembers(roomID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.members[roomID]))
	for c := range h.members[roomID] {
		out = append(out, c)
	}
	return out
}

// Publish offers st to every connection watching its room. States older
// than one a connection already has are ignored.
func (h *Hub) Publish(st *room.State, ev *room.Event) {
	frame := Encode("state", StatePayload{State: st, Event: ev})
	s := snapshot{version: st.Version, frame: frame}
	for _, c := range h.snapshotMembers(st.RoomID) {
		c.offer(st.RoomID, s)
	}
}

// Deliver offers st to c alone, as the first state of a new subscription.
func (h *Hub) Deliver(c *Conn, st *room.State) {
	c.offer(st.RoomID, snapshot{version: st.Version, frame: Encode("state", StatePayload{State: st})})
}

// SendTo queues a frame for one connection. It reports false when the
// connection is unknown or its queue is full.
func (h *Hub) SendTo(connID string, frame []byte) bool {
	c, ok := h.conns.Load(connID)
	if !ok {
		return false
	}
	if !c.send(frame) {
		h.log.Warn().Str("conn", connID).Msg("direct queue full, dropping message")
		return false
	}
	return true
}

// CloseRoom tells every watcher that roomID is gone and drops the
// subscriptions.
func (h *Hub) CloseRoom(roomID string) {
	frame := Encode("room_deleted", map[string]string{"roomId": roomID})
	for _, c := range h.snapshotMembers(roomID) {
		c.send(frame)
		h.Leave(c, roomID)
	}
}
