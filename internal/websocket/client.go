package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Клиент только управляет подпиской, большие кадры не нужны
	maxMessageSize = 16 * 1024

	sendBuffer = 256
)

// ClientMessageHandler handles every client frame except pongs.
type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
}

// Client is one socket of a user. A user may hold several at once.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	mu    sync.RWMutex
	rooms map[uuid.UUID]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		Hub:    hub,
		rooms:  make(map[uuid.UUID]struct{}),
	}
}

// ReadPump читает кадры клиента до разрыва соединения
func (c *Client) ReadPump(handler ClientMessageHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws client %s: %v", c.ID, err)
			}
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			c.SendError(err)
			continue
		}
		msg.UserID = c.UserID
		if msg.Type == TypePong || handler == nil {
			continue
		}

		if err := handler.HandleMessage(c, msg); err != nil {
			c.SendError(err)
		}
	}
}

// decodeMessage rejects frames that are not JSON objects with a type.
func decodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}

// WritePump пишет в сокет очередь Send и пинги
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				// Hub закрыл канал
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
			for queued := len(c.Send); queued > 0; queued-- {
				if err := c.write(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

// SendMessage queues a frame for this socket only.
func (c *Client) SendMessage(msgType MessageType, roomID *uuid.UUID, data any) error {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = encoded
	}

	select {
	case c.Send <- NewFrame(msgType, roomID, c.UserID, raw):
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendError(err error) {
	body := map[string]string{"error": err.Error()}
	var code codedError
	if errors.As(err, &code) {
		body["code"] = code.Code()
	}
	if err := c.SendMessage(TypeError, nil, body); err != nil {
		log.Printf("ws client %s: %v", c.ID, err)
	}
}

func (c *Client) IsInRoom(roomID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *Client) GetRooms() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (c *Client) openRoom(roomID uuid.UUID) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) closeRoom(roomID uuid.UUID) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}
