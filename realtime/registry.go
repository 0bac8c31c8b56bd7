package realtime

import (
	"context"
	"sync"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
)

// Registry maps a user to at most one live channel. It is owned by the
// application and shared by every handler.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]Channel
	log    logging.Logger
}

func NewRegistry(log logging.Logger) *Registry {
	return &Registry{
		byUser: make(map[int64]Channel),
		log:    log,
	}
}

// Bind makes ch the channel of userID and returns the channel it replaced,
// if any. The replaced channel is left open; the caller decides its fate.
func (r *Registry) Bind(userID int64, ch Channel) Channel {
	r.mu.Lock()
	prev := r.byUser[userID]
	r.byUser[userID] = ch
	r.mu.Unlock()

	if prev != nil && prev.ID() != ch.ID() {
		r.log.Debug(context.Background(), "channel replaced", "user_id", userID, "old", prev.ID(), "new", ch.ID())
		return prev
	}
	return nil
}

// Release drops the binding of userID only if it still points at ch, so a
// stale connection closing late cannot evict its replacement.
func (r *Registry) Release(userID int64, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byUser[userID]
	if !ok || cur.ID() != ch.ID() {
		return false
	}
	delete(r.byUser, userID)
	return true
}

// Lookup returns the open channel of userID.
func (r *Registry) Lookup(userID int64) (Channel, bool) {
	r.mu.RLock()
	ch, ok := r.byUser[userID]
	r.mu.RUnlock()

	if !ok || !ch.IsOpen() {
		return nil, false
	}
	return ch, true
}

// Push sends payload to userID's channel. It reports false with a nil error
// when the user has no open channel.
func (r *Registry) Push(userID int64, payload any) (bool, error) {
	ch, ok := r.Lookup(userID)
	if !ok {
		return false, nil
	}
	if err := ch.Send(payload); err != nil {
		return false, err
	}
	return true, nil
}

// Len is the number of bound users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
