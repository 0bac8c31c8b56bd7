package realtime

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
)

type fakeChannel struct {
	id string

	mu      sync.Mutex
	closed  bool
	sendErr error
	sent    []any
}

func newFakeChannel(id string) *fakeChannel { return &fakeChannel{id: id} }

func (f *fakeChannel) ID() string { return f.id }

func (f *fakeChannel) Send(payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeChannel) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeChannel) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func TestRegistryBindReplaces(t *testing.T) {
	r := NewRegistry(logging.Nop())
	a := newFakeChannel("a")
	b := newFakeChannel("b")

	assert.Nil(t, r.Bind(1, a))
	assert.Equal(t, a, r.Bind(1, b))
	assert.True(t, a.IsOpen(), "replaced channel is not closed by the registry")
	assert.Nil(t, r.Bind(1, b), "rebinding the same channel replaces nothing")

	got, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "b", got.ID())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReleaseOnlyOwnChannel(t *testing.T) {
	r := NewRegistry(logging.Nop())
	a := newFakeChannel("a")
	b := newFakeChannel("b")
	r.Bind(1, a)
	r.Bind(1, b)

	// the orphaned channel closes late
	assert.False(t, r.Release(1, a))
	_, ok := r.Lookup(1)
	assert.True(t, ok)

	assert.True(t, r.Release(1, b))
	_, ok = r.Lookup(1)
	assert.False(t, ok)
	assert.False(t, r.Release(1, b))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryLookupSkipsClosedChannels(t *testing.T) {
	r := NewRegistry(logging.Nop())
	a := newFakeChannel("a")
	r.Bind(1, a)
	a.close()

	_, ok := r.Lookup(1)
	assert.False(t, ok)

	delivered, err := r.Push(1, Info("hello"))
	assert.NoError(t, err)
	assert.False(t, delivered)
}

func TestRegistryPush(t *testing.T) {
	r := NewRegistry(logging.Nop())
	a := newFakeChannel("a")
	r.Bind(1, a)

	delivered, err := r.Push(1, Notification("hi"))
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Equal(t, []any{Notification("hi")}, a.sent)

	delivered, err = r.Push(2, Notification("hi"))
	require.NoError(t, err)
	assert.False(t, delivered)

	a.sendErr = ErrBufferFull
	delivered, err = r.Push(1, Notification("again"))
	assert.True(t, errors.Is(err, ErrBufferFull))
	assert.False(t, delivered)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(logging.Nop())
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := newFakeChannel(string(rune('a' + i%26)))
			uid := int64(i % 5)
			r.Bind(uid, ch)
			_, _ = r.Push(uid, Info("x"))
			r.Release(uid, ch)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 5)
}
