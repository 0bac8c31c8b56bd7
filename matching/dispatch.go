package matching

import (
	"context"
	"errors"
	"fmt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/auth"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
)

// Dispatch handles one decoded inbound message on session.
func (s *Service) Dispatch(ctx context.Context, session *realtime.Session, in realtime.Inbound) error {
	switch in.Kind {
	case realtime.KindAuth:
		if in.Auth == nil {
			return invalid("Missing auth payload.")
		}
		return s.authenticateChannel(ctx, session, *in.Auth)
	case realtime.KindChatMessage:
		if in.Chat == nil {
			return invalid("Missing chat payload.")
		}
		return s.chatFromChannel(ctx, session, *in.Chat)
	default:
		return invalid(fmt.Sprintf("Unsupported message type %q.", in.Kind))
	}
}

func (s *Service) authenticateChannel(ctx context.Context, session *realtime.Session, req realtime.AuthRequest) error {
	userID, err := s.tokens.Verify(req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			return newError(ErrUnauthorized, "Invalid or expired token.")
		}
		return err
	}
	if req.UserID != 0 && req.UserID != userID {
		return newError(ErrForbidden, "Token does not belong to this user.")
	}

	ch := session.Channel()
	if prev := session.Bind(userID); prev != 0 && prev != userID {
		s.registry.Release(prev, ch)
	}
	if replaced := s.registry.Bind(userID, ch); replaced != nil {
		s.log.Info(ctx, "channel superseded", "user_id", userID, "old_channel", replaced.ID(), "channel", ch.ID())
	}
	s.log.Info(ctx, "user authenticated via websocket", "user_id", userID, "channel", ch.ID())

	if err := ch.Send(realtime.Info("Authenticated.")); err != nil {
		s.log.Debug(ctx, "auth ack not sent", "user_id", userID, "error", err)
	}
	return nil
}

func (s *Service) chatFromChannel(ctx context.Context, session *realtime.Session, req realtime.ChatRequest) error {
	userID, ok := session.UserID()
	if !ok {
		return newError(ErrUnauthorized, "Authenticate before sending messages.")
	}
	if req.SenderID != 0 && req.SenderID != userID {
		return newError(ErrForbidden, "Cannot send messages on behalf of another user.")
	}
	_, err := s.SendMessage(ctx, userID, req.ReceiverID, req.Text)
	return err
}

// Disconnect drops the session's registry entry unless a newer channel
// already replaced it.
func (s *Service) Disconnect(ctx context.Context, session *realtime.Session) {
	userID, ok := session.UserID()
	if !ok {
		s.log.Debug(ctx, "unauthenticated client disconnected", "channel", session.Channel().ID())
		return
	}
	if s.registry.Release(userID, session.Channel()) {
		s.log.Info(ctx, "user disconnected", "user_id", userID)
	}
}
