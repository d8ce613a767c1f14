package websocket

// frameError is a protocol error reported back to the socket as an error
// frame with a stable code.
type frameError struct {
	code    string
	message string
}

func (e *frameError) Error() string { return e.message }
func (e *frameError) Code() string  { return e.code }

type codedError interface {
	error
	Code() string
}

var (
	ErrClientQueueFull = &frameError{"QUEUE_FULL", "client message queue is full"}
	ErrInvalidMessage  = &frameError{"INVALID_MESSAGE", "invalid message format"}
	ErrUnknownType     = &frameError{"UNKNOWN_TYPE", "unknown message type"}
	ErrUserNotInRoom   = &frameError{"NOT_IN_ROOM", "room is not open on this connection"}
	ErrNotRoomMember   = &frameError{"NOT_ROOM_MEMBER", "you are not a member of this room"}
	ErrInternal        = &frameError{"INTERNAL", "internal server error"}
)
