package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/taskrooms/internal/handlers/dto"
	"github.com/thereayou/taskrooms/internal/websocket"
)

const membershipCheckTimeout = 5 * time.Second

// MembershipChecker reports whether a user belongs to a room.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// MessageHandler обрабатывает кадры от WebSocket клиентов: подписку на
// комнаты и индикатор набора текста
type MessageHandler struct {
	rooms MembershipChecker
	hub   *websocket.Hub
}

func NewMessageHandler(rooms MembershipChecker, hub *websocket.Hub) *MessageHandler {
	return &MessageHandler{rooms: rooms, hub: hub}
}

func (h *MessageHandler) HandleMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeRoomJoin:
		return h.handleJoin(client, msg)

	case websocket.TypeRoomLeave:
		if msg.RoomID == nil {
			return websocket.ErrInvalidMessage
		}
		h.hub.LeaveRoom(client, *msg.RoomID)
		return nil

	case websocket.TypeTyping:
		return h.handleTyping(client, msg)

	default:
		return websocket.ErrUnknownType
	}
}

// handleJoin подписывает клиента на комнату, только если он её участник
func (h *MessageHandler) handleJoin(client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == nil {
		return websocket.ErrInvalidMessage
	}

	ctx, cancel := context.WithTimeout(context.Background(), membershipCheckTimeout)
	defer cancel()

	member, err := h.rooms.IsMember(ctx, *msg.RoomID, client.UserID)
	if err != nil {
		log.Printf("ws join %s: %v", *msg.RoomID, err)
		return websocket.ErrInternal
	}
	if !member {
		return websocket.ErrNotRoomMember
	}

	h.hub.JoinRoom(client, *msg.RoomID)
	return nil
}

func (h *MessageHandler) handleTyping(client *websocket.Client, msg *websocket.Message) error {
	if msg.RoomID == nil {
		return websocket.ErrInvalidMessage
	}
	if !client.IsInRoom(*msg.RoomID) {
		return websocket.ErrUserNotInRoom
	}

	payload := dto.TypingPayload{Typing: true}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return websocket.ErrInvalidMessage
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame := websocket.NewFrame(websocket.TypeTyping, msg.RoomID, client.UserID, data)
	h.hub.SendToRoomExcept(*msg.RoomID, frame, client.ID)
	return nil
}
