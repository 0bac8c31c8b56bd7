package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/auth"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/metrics"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

type testEnv struct {
	svc      *Service
	store    *store.Memory
	registry *realtime.Registry
	metrics  *metrics.Metrics
	tokens   *auth.Tokens
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	reg := realtime.NewRegistry(logging.Nop())
	m := metrics.New()
	tokens := auth.NewTokens("test-secret", time.Hour)
	svc := New(st, reg, tokens, logging.Nop(), m).WithHashCost(bcrypt.MinCost)
	return &testEnv{svc: svc, store: st, registry: reg, metrics: m, tokens: tokens}
}

func (e *testEnv) user(t *testing.T, name string) store.User {
	t.Helper()
	u, err := e.svc.Register(context.Background(), name, "pw-"+name)
	require.NoError(t, err)
	return u
}

func (e *testEnv) purpose(t *testing.T, owner store.User, title string) store.Purpose {
	t.Helper()
	p, err := e.svc.CreatePurpose(context.Background(), owner.ID, title, title+" description")
	require.NoError(t, err)
	return p
}

// connect binds a recording channel for u through the auth message path.
func (e *testEnv) connect(t *testing.T, u store.User) (*recordingChannel, *realtime.Session) {
	t.Helper()
	ch := newRecordingChannel(u.Username + "-" + uuid.NewString())
	session := realtime.NewSession(ch)
	token, _, err := e.tokens.Issue(u.ID)
	require.NoError(t, err)
	require.NoError(t, e.svc.Dispatch(context.Background(), session, realtime.Inbound{
		Kind: realtime.KindAuth,
		Auth: &realtime.AuthRequest{UserID: u.ID, Token: token},
	}))
	ch.reset()
	return ch, session
}

type recordingChannel struct {
	id string

	mu     sync.Mutex
	closed bool
	sent   []any
}

func newRecordingChannel(id string) *recordingChannel {
	return &recordingChannel{id: id}
}

func (c *recordingChannel) ID() string { return c.id }

func (c *recordingChannel) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return realtime.ErrChannelClosed
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *recordingChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *recordingChannel) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *recordingChannel) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

func (c *recordingChannel) payloads() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

// countingStore counts batch participant reads.
type countingStore struct {
	store.Store

	mu    sync.Mutex
	calls [][]int64
}

func (s *countingStore) Participants(ctx context.Context, ids []int64) (map[int64]store.Participant, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]int64(nil), ids...))
	s.mu.Unlock()
	return s.Store.Participants(ctx, ids)
}

// namelessStore loses every user on lookup by id.
type namelessStore struct {
	store.Store
}

func (namelessStore) UserByID(context.Context, int64) (store.User, error) {
	return store.User{}, store.ErrNotFound
}
