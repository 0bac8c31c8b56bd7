package main

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
)

// GET /ws
//
// A token in the Authorization header or the token query parameter binds
// the channel right away. Without one the client must send an auth message
// before chatting.
func wsHandler(base context.Context, svc *matching.Service, upgrader websocket.Upgrader, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token != "" {
			if _, err := svc.Tokens().Verify(token); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token.")
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error
			log.Debug(r.Context(), "websocket upgrade failed", "error", err)
			return
		}

		// the connection outlives Shutdown, so tie it to the app context too
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		stop := context.AfterFunc(base, cancel)
		defer stop()

		ch := realtime.NewWSChannel(conn, log)
		session := realtime.NewSession(ch)
		ctx = logging.WithFields(ctx, "channel", ch.ID())
		log.Debug(ctx, "client connected to websocket")

		if token != "" {
			in := realtime.Inbound{Kind: realtime.KindAuth, Auth: &realtime.AuthRequest{Token: token}}
			reply(ctx, ch, log, svc.Dispatch(ctx, session, in))
		} else {
			_ = ch.Send(realtime.Info("Connected. Send an auth message to start chatting."))
		}

		ch.Serve(ctx, func(ctx context.Context, data []byte) {
			in, err := realtime.DecodeInbound(data)
			if err != nil {
				_ = ch.Send(realtime.Error("Invalid message format."))
				return
			}
			reply(ctx, ch, log, svc.Dispatch(ctx, session, in))
		})
		svc.Disconnect(ctx, session)
	}
}

// reply reports a failed inbound message back on the channel it came from.
func reply(ctx context.Context, ch realtime.Channel, log logging.Logger, err error) {
	if err == nil {
		return
	}
	msg := matching.Message(err)
	if msg == "" {
		log.Error(ctx, "websocket message failed", "channel", ch.ID(), "error", err)
		msg = "Server error."
	}
	_ = ch.Send(realtime.Error(msg))
}

// GET /api/chat/history/{peerId}
func chatHistoryHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peerID, ok := pathID(w, r, "peerId")
		if !ok {
			return
		}
		writeHistory(w, r, svc, log, currentUser(r), peerID)
	}
}

// GET /api/chat/history?user1Id=1&user2Id=2
func chatHistoryQueryHandler(svc *matching.Service, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u1, ok := queryID(w, r, "user1Id")
		if !ok {
			return
		}
		u2, ok := queryID(w, r, "user2Id")
		if !ok {
			return
		}

		me := currentUser(r)
		var peer int64
		switch me {
		case u1:
			peer = u2
		case u2:
			peer = u1
		default:
			writeError(w, http.StatusForbidden, "forbidden", "You can only read your own conversations.")
			return
		}
		writeHistory(w, r, svc, log, me, peer)
	}
}

func writeHistory(w http.ResponseWriter, r *http.Request, svc *matching.Service, log logging.Logger, me, peer int64) {
	entries, err := svc.History(r.Context(), me, peer)
	if err != nil {
		writeServiceError(r.Context(), w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
