package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tags every message on the wire.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindChatMessage  Kind = "chatMessage"
	KindNotification Kind = "notification"
	KindInfo         Kind = "info"
	KindError        Kind = "error"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKind = errors.New("unknown message type")
)

// AuthRequest binds the sending connection to the token's user. UserID is
// optional and must match the token when present.
type AuthRequest struct {
	UserID int64  `json:"userId"`
	Token  string `json:"token"`
}

// ChatRequest asks to send Text to ReceiverID. SenderID defaults to the
// bound user.
type ChatRequest struct {
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Text       string `json:"text"`
}

// Inbound is a decoded client message. Exactly one of Auth and Chat is set,
// matching Kind.
type Inbound struct {
	Kind Kind
	Auth *AuthRequest
	Chat *ChatRequest
}

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	in := Inbound{Kind: env.Type}
	switch env.Type {
	case KindAuth:
		in.Auth = &AuthRequest{}
		if err := json.Unmarshal(data, in.Auth); err != nil {
			return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	case KindChatMessage:
		in.Chat = &ChatRequest{}
		if err := json.Unmarshal(data, in.Chat); err != nil {
			return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	return in, nil
}

// ChatPayload is pushed identically to both participants of a message.
type ChatPayload struct {
	Type       Kind      `json:"type"`
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessagePayload carries a human-readable message: notifications, info and
// errors.
type MessagePayload struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func Notification(msg string) MessagePayload {
	return MessagePayload{Type: KindNotification, Message: msg}
}

func Info(msg string) MessagePayload {
	return MessagePayload{Type: KindInfo, Message: msg}
}

func Error(msg string) MessagePayload {
	return MessagePayload{Type: KindError, Message: msg}
}
