package store

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"
)

type pairKey struct {
	userID    int64
	purposeID int64
}

type matchKey struct {
	purposeID        int64
	interestedUserID int64
}

// Memory is a mutex-guarded in-process Store. It backs the "memory" backend
// for local runs and the service tests.
type Memory struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID    int64
	nextPurposeID int64
	nextMessageID int64

	users      map[int64]User
	usernames  map[string]int64
	profiles   map[int64]Profile
	purposes   map[int64]Purpose
	purposeIDs []int64
	interests  map[pairKey]Interest
	seen       map[pairKey]SeenMarker
	matches    map[matchKey]Match
	matchOrder []matchKey
	messages   []Message
}

// NewMemory returns an empty store using time.Now as its clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an empty store stamping records with now().
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		now:       now,
		users:     make(map[int64]User),
		usernames: make(map[string]int64),
		profiles:  make(map[int64]Profile),
		purposes:  make(map[int64]Purpose),
		interests: make(map[pairKey]Interest),
		seen:      make(map[pairKey]SeenMarker),
		matches:   make(map[matchKey]Match),
	}
}

func (m *Memory) CreateUser(_ context.Context, username, passwordHash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usernames[username]; taken {
		return User{}, ErrConflict
	}
	m.nextUserID++
	u := User{ID: m.nextUserID, Username: username, PasswordHash: passwordHash, CreatedAt: m.now()}
	m.users[u.ID] = u
	m.usernames[username] = u.ID
	return u, nil
}

func (m *Memory) UserByID(_ context.Context, id int64) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernames[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) RenameUser(_ context.Context, id int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if u.Username == username {
		return nil
	}
	if _, taken := m.usernames[username]; taken {
		return ErrConflict
	}
	delete(m.usernames, u.Username)
	u.Username = username
	m.users[id] = u
	m.usernames[username] = id
	return nil
}

func (m *Memory) UpsertProfile(_ context.Context, p Profile) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[p.UserID]; !ok {
		return Profile{}, ErrNotFound
	}
	p.UpdatedAt = m.now()
	m.profiles[p.UserID] = p
	return p, nil
}

func (m *Memory) ProfileByUserID(_ context.Context, userID int64) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Participants(_ context.Context, ids []int64) (map[int64]Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64]Participant, len(ids))
	for _, id := range ids {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		p := m.profiles[id]
		out[id] = Participant{UserID: id, Username: u.Username, Bio: p.Bio, ImageURL: p.ImageURL}
	}
	return out, nil
}

func (m *Memory) CreatePurpose(_ context.Context, p Purpose) (Purpose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.users[p.OwnerID]
	if !ok {
		return Purpose{}, ErrNotFound
	}
	m.nextPurposeID++
	p.ID = m.nextPurposeID
	p.OwnerName = owner.Username
	p.CreatedAt = m.now()
	m.purposes[p.ID] = p
	m.purposeIDs = append(m.purposeIDs, p.ID)
	return p, nil
}

func (m *Memory) PurposeByID(_ context.Context, id int64) (Purpose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.purposes[id]
	if !ok {
		return Purpose{}, ErrNotFound
	}
	p.OwnerName = m.users[p.OwnerID].Username
	return p, nil
}

func (m *Memory) Feed(ctx context.Context, userID int64) iter.Seq2[Purpose, error] {
	return func(yield func(Purpose, error) bool) {
		for _, p := range m.feedSnapshot(userID) {
			if err := ctx.Err(); err != nil {
				yield(Purpose{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (m *Memory) feedSnapshot(userID int64) []Purpose {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Purpose
	for _, id := range m.purposeIDs {
		p := m.purposes[id]
		if p.OwnerID == userID {
			continue
		}
		k := pairKey{userID: userID, purposeID: id}
		if _, ok := m.interests[k]; ok {
			continue
		}
		if _, ok := m.seen[k]; ok {
			continue
		}
		p.OwnerName = m.users[p.OwnerID].Username
		out = append(out, p)
	}
	return out
}

func (m *Memory) RecordInterest(_ context.Context, userID, purposeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkSwipeRefs(userID, purposeID); err != nil {
		return false, err
	}
	k := pairKey{userID: userID, purposeID: purposeID}
	if _, ok := m.interests[k]; ok {
		return false, nil
	}
	m.interests[k] = Interest{UserID: userID, PurposeID: purposeID, CreatedAt: m.now()}
	return true, nil
}

func (m *Memory) RecordSeen(_ context.Context, userID, purposeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkSwipeRefs(userID, purposeID); err != nil {
		return false, err
	}
	k := pairKey{userID: userID, purposeID: purposeID}
	if _, ok := m.seen[k]; ok {
		return false, nil
	}
	m.seen[k] = SeenMarker{UserID: userID, PurposeID: purposeID, CreatedAt: m.now()}
	return true, nil
}

// checkSwipeRefs mirrors the foreign keys of the SQL schema. Callers hold mu.
func (m *Memory) checkSwipeRefs(userID, purposeID int64) error {
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.purposes[purposeID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) HasInterest(_ context.Context, userID, purposeID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.interests[pairKey{userID: userID, purposeID: purposeID}]
	return ok, nil
}

func (m *Memory) InterestsForPoster(_ context.Context, posterID int64) ([]InterestView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []InterestView
	for k, in := range m.interests {
		p := m.purposes[k.purposeID]
		if p.OwnerID != posterID {
			continue
		}
		if _, acted := m.matches[matchKey{purposeID: k.purposeID, interestedUserID: k.userID}]; acted {
			continue
		}
		p.OwnerName = m.users[p.OwnerID].Username
		out = append(out, InterestView{Purpose: p, InterestedUserID: k.userID, CreatedAt: in.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].Purpose.ID != out[j].Purpose.ID {
			return out[i].Purpose.ID < out[j].Purpose.ID
		}
		return out[i].InterestedUserID < out[j].InterestedUserID
	})
	return out, nil
}

func (m *Memory) CreateMatch(_ context.Context, mt Match) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.purposes[mt.PurposeID]; !ok {
		return false, ErrNotFound
	}
	k := matchKey{purposeID: mt.PurposeID, interestedUserID: mt.InterestedUserID}
	if _, ok := m.matches[k]; ok {
		return false, nil
	}
	mt.AcceptedByInterestedUser = false
	mt.CreatedAt = m.now()
	m.matches[k] = mt
	m.matchOrder = append(m.matchOrder, k)
	return true, nil
}

func (m *Memory) AcceptMatch(_ context.Context, purposeID, interestedUserID int64) (Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := matchKey{purposeID: purposeID, interestedUserID: interestedUserID}
	mt, ok := m.matches[k]
	if !ok || mt.AcceptedByInterestedUser {
		return Match{}, ErrNotFound
	}
	mt.AcceptedByInterestedUser = true
	m.matches[k] = mt
	return mt, nil
}

func (m *Memory) PendingMatchesFor(_ context.Context, interestedUserID int64) ([]MatchView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collectMatches(func(mt Match) bool {
		return mt.InterestedUserID == interestedUserID && !mt.AcceptedByInterestedUser
	}), nil
}

func (m *Memory) MutualMatchesFor(_ context.Context, userID int64) ([]MatchView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collectMatches(func(mt Match) bool {
		return mt.AcceptedByInterestedUser && (mt.PosterID == userID || mt.InterestedUserID == userID)
	}), nil
}

func (m *Memory) collectMatches(keep func(Match) bool) []MatchView {
	var out []MatchView
	for _, k := range m.matchOrder {
		mt := m.matches[k]
		if !keep(mt) {
			continue
		}
		p := m.purposes[mt.PurposeID]
		p.OwnerName = m.users[p.OwnerID].Username
		out = append(out, MatchView{Match: mt, Purpose: p})
	}
	return out
}

func (m *Memory) AppendMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[msg.SenderID]; !ok {
		return Message{}, ErrNotFound
	}
	if _, ok := m.users[msg.ReceiverID]; !ok {
		return Message{}, ErrNotFound
	}
	m.nextMessageID++
	msg.ID = m.nextMessageID
	msg.SentAt = m.now()
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *Memory) Conversation(_ context.Context, a, b int64) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo, hi := conversationKey(a, b)
	var out []Message
	for _, msg := range m.messages {
		x, y := conversationKey(msg.SenderID, msg.ReceiverID)
		if x == lo && y == hi {
			out = append(out, msg)
		}
	}
	sortMessages(out)
	return out, nil
}

func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.Before(msgs[j].SentAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
