package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumahub/luma-bridge/internal/metrics"
)

// Event types the hub emits and accepts.
const (
	EventPresenceSync     = "presence_sync"
	EventPresenceJoin     = "presence_join"
	EventPresenceUpdate   = "presence_update"
	EventPresenceLeave    = "presence_leave"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventNotification     = "notification"
	EventActivity         = "activity"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
)

// sendBuffer is the per-session outbound queue depth. A session that cannot
// drain its queue gets dropped rather than blocking the hub.
const sendBuffer = 32

// User is one presence record: the live collaboration state shared for a
// joined user. Cursor, selection, currentView, and currentFile are opaque
// client-defined values and pass through unchanged.
type User struct {
	ID          string      `json:"userId"`
	Name        string      `json:"name,omitempty"`
	Email       string      `json:"email,omitempty"`
	Color       string      `json:"color,omitempty"`
	Status      string      `json:"status,omitempty"`
	CurrentView interface{} `json:"currentView,omitempty"`
	CurrentFile interface{} `json:"currentFile,omitempty"`
	Cursor      interface{} `json:"cursor,omitempty"`
	Selection   interface{} `json:"selection,omitempty"`
	Activity    string      `json:"activity,omitempty"`
	IsTyping    bool        `json:"isTyping,omitempty"`
	TypingIn    string      `json:"typingIn,omitempty"`
	LastSeen    string      `json:"lastSeen,omitempty"`
}

// merge overwrites only the fields present in data and refreshes lastSeen.
// Absent keys leave the record untouched.
func (u *User) merge(data map[string]interface{}) {
	if v, ok := data["name"].(string); ok {
		u.Name = v
	}
	if v, ok := data["email"].(string); ok {
		u.Email = v
	}
	if v, ok := data["color"].(string); ok {
		u.Color = v
	}
	if v, ok := data["status"].(string); ok {
		u.Status = v
	}
	if v, ok := data["currentView"]; ok {
		u.CurrentView = v
	}
	if v, ok := data["currentFile"]; ok {
		u.CurrentFile = v
	}
	if v, ok := data["cursor"]; ok {
		u.Cursor = v
	}
	if v, ok := data["selection"]; ok {
		u.Selection = v
	}
	if v, ok := data["activity"].(string); ok {
		u.Activity = v
	}
	if v, ok := data["isTyping"].(bool); ok {
		u.IsTyping = v
	}
	if v, ok := data["typingIn"].(string); ok {
		u.TypingIn = v
	}
	u.LastSeen = time.Now().UTC().Format(time.RFC3339)
}

// Event is the wire envelope for hub traffic in both directions. ID and
// Timestamp are assigned by the server on outbound events.
type Event struct {
	Type      string                 `json:"type"`
	ID        string                 `json:"id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventRelay mirrors hub events onto a stream for other services.
type EventRelay interface {
	PublishEvent(ctx context.Context, eventType string, data map[string]interface{})
}

// Hub is the realtime presence and notification fanout. Every live
// connection is a session and receives broadcasts; binding a userId to a
// session via presence_join is optional, and at most one session owns a
// user's presence record at a time (last writer wins).
type Hub struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}
	byUser   map[string]*session
	users    map[string]*User

	upgrader websocket.Upgrader
	relay    EventRelay
	logger   *slog.Logger
}

// New creates a presence hub
func New(relay EventRelay, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[*session]struct{}),
		byUser:   make(map[string]*session),
		users:    make(map[string]*User),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		relay:  relay,
		logger: logger,
	}
}

type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan Event
	once   sync.Once
	done   chan struct{}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// deliver queues an event for the session, dropping it when the session is
// gone or its queue is full.
func (s *session) deliver(ev Event) {
	select {
	case <-s.done:
	case s.send <- ev:
	default:
	}
}

func (s *session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.send:
			if err := s.conn.WriteJSON(ev); err != nil {
				s.close()
				return
			}
		}
	}
}

// HandleWS upgrades the request, registers the connection, sends it the
// current presence snapshot, announces the new connection count, and runs
// the session read loop until the client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Event, sendBuffer),
		done: make(chan struct{}),
	}
	go sess.writePump()

	h.mu.Lock()
	h.sessions[sess] = struct{}{}
	roster := h.snapshotLocked()
	count := len(h.sessions)
	h.mu.Unlock()

	sess.deliver(stamp(EventPresenceSync, map[string]interface{}{"users": roster}))
	h.fanout(stamp(EventUserConnected, map[string]interface{}{"sessionId": sess.id, "count": count}))

	metrics.HubConnections.Inc()
	defer func() {
		metrics.HubConnections.Dec()
		h.disconnect(sess)
		sess.close()
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		h.handleEvent(sess, ev)
	}
}

func (h *Hub) handleEvent(sess *session, ev Event) {
	metrics.HubEvents.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case EventPresenceJoin:
		h.join(sess, ev.Data)
	case EventPresenceUpdate:
		h.update(sess, ev.Data)
	case EventPresenceLeave:
		h.leave(sess, ev.Data)
	case EventNotification:
		toUserID, _ := ev.Data["toUserId"].(string)
		h.Notify(toUserID, ev.Data)
	case EventActivity:
		h.Broadcast(EventActivity, ev.Data)
	case EventTypingStart, EventTypingStop:
		h.fanoutExcept(sess, stamp(ev.Type, ev.Data))
	default:
		h.logger.Debug("ignoring unknown event", "type", ev.Type)
	}
}

// join binds the user id to the session and upserts the presence record. A
// prior session bound to the same id loses the binding but stays connected;
// the updated record is broadcast to everyone as a presence_update.
func (h *Hub) join(sess *session, data map[string]interface{}) {
	userID, _ := data["userId"].(string)
	if userID == "" {
		return
	}

	user := &User{
		ID:     userID,
		Name:   "Anonymous",
		Color:  "#d9a07a",
		Status: "online",
	}
	user.merge(data)

	h.mu.Lock()
	if prev, ok := h.byUser[userID]; ok && prev != sess {
		prev.userID = ""
	}
	sess.userID = userID
	h.byUser[userID] = sess
	h.users[userID] = user
	payload := recordData(user)
	h.mu.Unlock()

	h.fanout(stamp(EventPresenceUpdate, payload))
	h.mirror(EventPresenceUpdate, payload)
	h.logger.Info("user joined", "user_id", userID)
}

// update merges supplied fields into an existing presence record. Updates
// for unknown users are dropped, they never create records.
func (h *Hub) update(sess *session, data map[string]interface{}) {
	h.mu.Lock()
	userID := sess.userID
	if v, ok := data["userId"].(string); ok && v != "" {
		userID = v
	}
	user, ok := h.users[userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	user.merge(data)
	payload := recordData(user)
	h.mu.Unlock()

	h.fanoutExcept(sess, stamp(EventPresenceUpdate, payload))
}

// leave removes the user's presence record and announces it. The session
// stays connected and keeps receiving broadcasts.
func (h *Hub) leave(sess *session, data map[string]interface{}) {
	h.mu.Lock()
	userID, _ := data["userId"].(string)
	if userID == "" {
		userID = sess.userID
	}
	if _, ok := h.users[userID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.users, userID)
	if owner, ok := h.byUser[userID]; ok {
		owner.userID = ""
		delete(h.byUser, userID)
	}
	h.mu.Unlock()

	h.fanout(stamp(EventPresenceLeave, map[string]interface{}{"userId": userID}))
	h.mirror(EventPresenceLeave, map[string]interface{}{"userId": userID})
}

// disconnect removes the session and, when it owns a presence record,
// removes that too. A binding already stolen by a newer session for the
// same user leaves the roster alone.
func (h *Hub) disconnect(sess *session) {
	h.mu.Lock()
	if _, ok := h.sessions[sess]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sess)
	leftUser := ""
	if sess.userID != "" && h.byUser[sess.userID] == sess {
		delete(h.byUser, sess.userID)
		delete(h.users, sess.userID)
		leftUser = sess.userID
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if leftUser != "" {
		h.fanout(stamp(EventPresenceLeave, map[string]interface{}{"userId": leftUser}))
		h.logger.Info("user disconnected", "user_id", leftUser)
	}
	h.fanout(stamp(EventUserDisconnected, map[string]interface{}{"sessionId": sess.id, "count": count}))
}

// Notify delivers a notification. With a target user it goes to the session
// currently bound to that userId and is dropped when none is; without a
// target it is broadcast. Returns whether anything was delivered.
func (h *Hub) Notify(toUserID string, data map[string]interface{}) bool {
	if toUserID == "" {
		h.Broadcast(EventNotification, data)
		return true
	}

	h.mu.RLock()
	sess, ok := h.byUser[toUserID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("dropping notification for offline user", "user_id", toUserID)
		return false
	}
	sess.deliver(stamp(EventNotification, data))
	h.mirror(EventNotification, data)
	return true
}

// Broadcast stamps and fans an event out to every connected session.
func (h *Hub) Broadcast(eventType string, data map[string]interface{}) {
	h.fanout(stamp(eventType, data))
	h.mirror(eventType, data)
}

func (h *Hub) fanout(ev Event) {
	h.mu.RLock()
	for sess := range h.sessions {
		sess.deliver(ev)
	}
	h.mu.RUnlock()
}

func (h *Hub) fanoutExcept(except *session, ev Event) {
	h.mu.RLock()
	for sess := range h.sessions {
		if sess == except {
			continue
		}
		sess.deliver(ev)
	}
	h.mu.RUnlock()
}

// Snapshot returns the current roster sorted by user id.
func (h *Hub) Snapshot() []User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() []User {
	users := make([]User, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// ConnectedCount reports the number of live connections, joined or not.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Online reports whether a user currently has a bound session.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.byUser[userID]
	return ok
}

func (h *Hub) mirror(eventType string, data map[string]interface{}) {
	if h.relay == nil {
		return
	}
	h.relay.PublishEvent(context.Background(), eventType, data)
}

func stamp(eventType string, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

func recordData(u *User) map[string]interface{} {
	data := map[string]interface{}{"userId": u.ID}
	if u.Name != "" {
		data["name"] = u.Name
	}
	if u.Email != "" {
		data["email"] = u.Email
	}
	if u.Color != "" {
		data["color"] = u.Color
	}
	if u.Status != "" {
		data["status"] = u.Status
	}
	if u.CurrentView != nil {
		data["currentView"] = u.CurrentView
	}
	if u.CurrentFile != nil {
		data["currentFile"] = u.CurrentFile
	}
	if u.Cursor != nil {
		data["cursor"] = u.Cursor
	}
	if u.Selection != nil {
		data["selection"] = u.Selection
	}
	if u.Activity != "" {
		data["activity"] = u.Activity
	}
	if u.IsTyping {
		data["isTyping"] = true
	}
	if u.TypingIn != "" {
		data["typingIn"] = u.TypingIn
	}
	if u.LastSeen != "" {
		data["lastSeen"] = u.LastSeen
	}
	return data
}
