package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

const unknownSender = "Unknown"

// Delivery reports which participants had a live channel when a message
// was pushed. The message is durable either way.
type Delivery struct {
	Message           store.Message        `json:"message"`
	Payload           realtime.ChatPayload `json:"payload"`
	ReceiverDelivered bool                 `json:"receiver_delivered"`
	SenderDelivered   bool                 `json:"sender_delivered"`
}

// ChatEntry is one history row with the sender's display name.
type ChatEntry struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	SenderName string    `json:"senderName"`
}

// SendMessage persists the message and then pushes the same payload to the
// receiver and the sender. Push failures never undo the write.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID int64, text string) (Delivery, error) {
	if senderID <= 0 || receiverID <= 0 || strings.TrimSpace(text) == "" {
		return Delivery{}, invalid("Sender, receiver and text are required.")
	}

	msg, err := s.store.AppendMessage(ctx, store.Message{SenderID: senderID, ReceiverID: receiverID, Text: text})
	if err != nil {
		return Delivery{}, notFound(fmt.Errorf("append message: %w", err), "Recipient not found.")
	}
	s.metrics.MessagesPersisted.Inc()

	payload := realtime.ChatPayload{
		Type:       realtime.KindChatMessage,
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		SenderName: s.senderName(ctx, senderID),
		Text:       msg.Text,
		Timestamp:  msg.SentAt,
	}

	kind := string(realtime.KindChatMessage)
	d := Delivery{Message: msg, Payload: payload}
	d.ReceiverDelivered = s.notifier.push(ctx, receiverID, kind, payload)
	if senderID != receiverID {
		d.SenderDelivered = s.notifier.push(ctx, senderID, kind, payload)
	} else {
		d.SenderDelivered = d.ReceiverDelivered
	}
	return d, nil
}

// senderName falls back to "Unknown" instead of failing a send whose
// message is already stored.
func (s *Service) senderName(ctx context.Context, userID int64) string {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn(ctx, "resolve sender name", "user_id", userID, "error", err)
		}
		return unknownSender
	}
	return u.Username
}

// History returns every message between user1 and user2 in either direction,
// oldest first.
func (s *Service) History(ctx context.Context, user1, user2 int64) ([]ChatEntry, error) {
	if user1 <= 0 || user2 <= 0 {
		return nil, invalid("Both user IDs are required.")
	}
	msgs, err := s.store.Conversation(ctx, user1, user2)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	names := map[int64]string{}
	for _, id := range []int64{user1, user2} {
		if _, ok := names[id]; !ok {
			names[id] = s.senderName(ctx, id)
		}
	}

	out := make([]ChatEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatEntry{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Text:       m.Text,
			Timestamp:  m.SentAt,
			SenderName: names[m.SenderID],
		})
	}
	return out, nil
}
