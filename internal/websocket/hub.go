package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/metrics"
	"github.com/thereayou/taskrooms/internal/notify"
	"github.com/thereayou/taskrooms/internal/services"
)

// MessageType определяет типы сообщений
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// Присутствие в комнате
	TypeRoomJoin  MessageType = "room_join"
	TypeRoomLeave MessageType = "room_leave"
	TypeRoomUsers MessageType = "room_users"
	TypeTyping    MessageType = "typing"
)

// Message is the frame exchanged with clients. Domain events reuse it with
// Type set to the event name and Data set to the event payload.
type Message struct {
	Type      MessageType     `json:"type"`
	RoomID    *uuid.UUID      `json:"room_id,omitempty"`
	UserID    uuid.UUID       `json:"user_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const eventBuffer = 256

// Hub tracks live connections and delivers events to them. It is a
// notify.Sink for single-process setups and a notify.Deliverer behind the
// Redis relay.
type Hub struct {
	clients map[uuid.UUID]*Client

	// Клиенты по UserID (один пользователь может иметь несколько соединений)
	userClients map[uuid.UUID]map[uuid.UUID]*Client

	// Клиенты, открывшие комнату
	rooms map[uuid.UUID]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	events     chan notify.Envelope

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[uuid.UUID]map[uuid.UUID]*Client),
		rooms:       make(map[uuid.UUID]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		events:      make(chan notify.Envelope, eventBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.events:
			h.deliver(env)

		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, id)
		metrics.SocketClosed()
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Emit implements notify.Sink.
func (h *Hub) Emit(event string, payload any, target *uuid.UUID) {
	env, err := notify.NewEnvelope(event, payload, target)
	if err != nil {
		metrics.NotificationFailed("hub")
		log.Printf("hub: encode %s: %v", event, err)
		return
	}
	h.Deliver(env)
}

// Deliver implements notify.Deliverer. It never blocks: events are dropped
// once the hub stops or while its queue is full.
func (h *Hub) Deliver(env notify.Envelope) {
	if h.ctx.Err() != nil {
		return
	}
	select {
	case h.events <- env:
	default:
		metrics.NotificationFailed("hub")
		log.Printf("hub: queue full, dropping %s", env.Event)
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client
	metrics.SocketOpened()

	log.Printf("Client registered: %s (User: %s)", client.ID, client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	for _, roomID := range client.GetRooms() {
		h.removeFromRoomUnsafe(client, roomID)
	}

	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
		}
	}

	delete(h.clients, client.ID)
	close(client.Send)
	metrics.SocketClosed()

	log.Printf("Client unregistered: %s (User: %s)", client.ID, client.UserID)
}

// JoinRoom subscribes the client to presence updates of the room. Callers
// check membership first.
func (h *Hub) JoinRoom(client *Client, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[uuid.UUID]*Client)
	}

	h.rooms[roomID][client.ID] = client
	client.openRoom(roomID)

	// Уведомляем других участников о присоединении
	h.broadcastToRoomExcept(roomID, NewFrame(TypeRoomJoin, &roomID, client.UserID, nil), client.ID)

	h.sendRoomUsers(client, roomID)
}

func (h *Hub) LeaveRoom(client *Client, roomID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomUnsafe(client, roomID)
}

func (h *Hub) removeFromRoomUnsafe(client *Client, roomID uuid.UUID) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := room[client.ID]; !ok {
		return
	}

	delete(room, client.ID)
	client.closeRoom(roomID)

	if len(room) == 0 {
		delete(h.rooms, roomID)
		return
	}
	h.broadcastToRoomExcept(roomID, NewFrame(TypeRoomLeave, &roomID, client.UserID, nil), client.ID)
}

// SendToUser отправляет сообщение всем соединениям пользователя
func (h *Hub) SendToUser(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.sendToUserUnsafe(userID, message)
}

// SendToRoom отправляет сообщение всем, кто открыл комнату
func (h *Hub) SendToRoom(roomID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoomExcept(roomID, message, uuid.Nil)
}

func (h *Hub) SendToRoomExcept(roomID uuid.UUID, message []byte, excludeID uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoomExcept(roomID, message, excludeID)
}

type roomRef struct {
	RoomID uuid.UUID `json:"room_id"`
	UserID uuid.UUID `json:"user_id"`
}

// deliver writes the event to its target's connections, or to every
// connection when the event has no target. Membership changes also drop the
// affected presence subscriptions.
func (h *Hub) deliver(env notify.Envelope) {
	data, err := json.Marshal(Message{
		Type:      MessageType(env.Event),
		Data:      env.Payload,
		Timestamp: env.EmittedAt,
	})
	if err != nil {
		metrics.NotificationFailed("hub")
		log.Printf("hub: encode %s: %v", env.Event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if env.Target != nil {
		h.dropPresence(env)
		h.sendToUserUnsafe(*env.Target, data)
	} else {
		for _, client := range h.clients {
			h.send(client, data)
		}
	}
	metrics.NotificationSent("hub")
}

func (h *Hub) dropPresence(env notify.Envelope) {
	if env.Event != services.EventRoomDeleted && env.Event != services.EventRoomMemberRemoved {
		return
	}
	var ref roomRef
	if err := json.Unmarshal(env.Payload, &ref); err != nil {
		return
	}

	// room:deleted goes to every former member, member_removed names the one who left.
	user := *env.Target
	if env.Event == services.EventRoomMemberRemoved && ref.UserID != user {
		return
	}
	for _, client := range h.userClients[user] {
		h.removeFromRoomUnsafe(client, ref.RoomID)
	}
}

func (h *Hub) sendToUserUnsafe(userID uuid.UUID, message []byte) {
	for _, client := range h.userClients[userID] {
		h.send(client, message)
	}
}

func (h *Hub) broadcastToRoomExcept(roomID uuid.UUID, message []byte, excludeID uuid.UUID) {
	for _, client := range h.rooms[roomID] {
		if client.ID != excludeID {
			h.send(client, message)
		}
	}
}

func (h *Hub) send(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		log.Printf("Client %s send channel full", client.ID)
	}
}

func (h *Hub) sendRoomUsers(client *Client, roomID uuid.UUID) {
	users, err := json.Marshal(h.roomUsersUnsafe(roomID))
	if err != nil {
		return
	}
	h.send(client, NewFrame(TypeRoomUsers, &roomID, client.UserID, users))
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data := NewFrame(TypePing, nil, uuid.Nil, nil)
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.userClients[userID]) > 0
}

// GetRoomUsers возвращает пользователей, открывших комнату
func (h *Hub) GetRoomUsers(roomID uuid.UUID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.roomUsersUnsafe(roomID)
}

func (h *Hub) roomUsersUnsafe(roomID uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	users := make([]uuid.UUID, 0)
	for _, client := range h.rooms[roomID] {
		if !seen[client.UserID] {
			seen[client.UserID] = true
			users = append(users, client.UserID)
		}
	}
	return users
}

// NewFrame encodes a hub message stamped with the current time.
func NewFrame(t MessageType, roomID *uuid.UUID, userID uuid.UUID, data json.RawMessage) []byte {
	out, err := json.Marshal(Message{
		Type:      t,
		RoomID:    roomID,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("hub: encode %s: %v", t, err)
	}
	return out
}
