package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a clock that advances by one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func collectFeed(t *testing.T, s Store, userID int64) []int64 {
	t.Helper()
	var ids []int64
	for p, err := range s.Feed(context.Background(), userID) {
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}

// runStoreContract exercises the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		s := newStore(t)
		alice, err := s.CreateUser(ctx, "alice", "hash-a")
		require.NoError(t, err)
		bob, err := s.CreateUser(ctx, "bob", "hash-b")
		require.NoError(t, err)
		assert.NotEqual(t, alice.ID, bob.ID)

		_, err = s.CreateUser(ctx, "alice", "other")
		assert.ErrorIs(t, err, ErrConflict)

		got, err := s.UserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "hash-a", got.PasswordHash)

		_, err = s.UserByID(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.UserByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rename", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateUser(ctx, "alice", "h")
		require.NoError(t, err)
		bob, err := s.CreateUser(ctx, "bob", "h")
		require.NoError(t, err)

		assert.ErrorIs(t, s.RenameUser(ctx, bob.ID, "alice"), ErrConflict)
		assert.NoError(t, s.RenameUser(ctx, bob.ID, "bob"))
		require.NoError(t, s.RenameUser(ctx, bob.ID, "bobby"))

		got, err := s.UserByUsername(ctx, "bobby")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
		_, err = s.UserByUsername(ctx, "bob")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.RenameUser(ctx, 9999, "ghost"), ErrNotFound)
	})

	t.Run("profiles and participants", func(t *testing.T) {
		s := newStore(t)
		alice, _ := s.CreateUser(ctx, "alice", "h")
		bob, _ := s.CreateUser(ctx, "bob", "h")

		_, err := s.ProfileByUserID(ctx, alice.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.UpsertProfile(ctx, Profile{UserID: alice.ID, Bio: "first"})
		require.NoError(t, err)
		_, err = s.UpsertProfile(ctx, Profile{UserID: alice.ID, Bio: "second", ImageURL: "profiles/a.png"})
		require.NoError(t, err)

		p, err := s.ProfileByUserID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", p.Bio)
		assert.Equal(t, "profiles/a.png", p.ImageURL)

		_, err = s.UpsertProfile(ctx, Profile{UserID: 9999})
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.Participants(ctx, []int64{alice.ID, bob.ID, 9999})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, Participant{UserID: alice.ID, Username: "alice", Bio: "second", ImageURL: "profiles/a.png"}, got[alice.ID])
		assert.Equal(t, Participant{UserID: bob.ID, Username: "bob"}, got[bob.ID])
	})

	t.Run("feed excludes own and swiped purposes", func(t *testing.T) {
		s := newStore(t)
		alice, _ := s.CreateUser(ctx, "alice", "h")
		bob, _ := s.CreateUser(ctx, "bob", "h")

		p1, err := s.CreatePurpose(ctx, Purpose{OwnerID: alice.ID, Title: "Climb", Description: "Weekend bouldering"})
		require.NoError(t, err)
		assert.Equal(t, "alice", p1.OwnerName)
		p2, _ := s.CreatePurpose(ctx, Purpose{OwnerID: alice.ID, Title: "Chess", Description: "Blitz"})
		p3, _ := s.CreatePurpose(ctx, Purpose{OwnerID: bob.ID, Title: "Run", Description: "5k"})

		_, err = s.CreatePurpose(ctx, Purpose{OwnerID: 9999, Title: "x", Description: "y"})
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.PurposeByID(ctx, p3.ID)
		require.NoError(t, err)
		assert.Equal(t, "bob", got.OwnerName)

		assert.ElementsMatch(t, []int64{p1.ID, p2.ID}, collectFeed(t, s, bob.ID))
		assert.ElementsMatch(t, []int64{p3.ID}, collectFeed(t, s, alice.ID))

		created, err := s.RecordInterest(ctx, bob.ID, p1.ID)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = s.RecordInterest(ctx, bob.ID, p1.ID)
		require.NoError(t, err)
		assert.False(t, created)

		created, err = s.RecordSeen(ctx, bob.ID, p2.ID)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = s.RecordSeen(ctx, bob.ID, p2.ID)
		require.NoError(t, err)
		assert.False(t, created)

		assert.Empty(t, collectFeed(t, s, bob.ID))

		has, err := s.HasInterest(ctx, bob.ID, p1.ID)
		require.NoError(t, err)
		assert.True(t, has)
		has, err = s.HasInterest(ctx, bob.ID, p2.ID)
		require.NoError(t, err)
		assert.False(t, has)

		_, err = s.RecordInterest(ctx, bob.ID, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("match lifecycle", func(t *testing.T) {
		s := newStore(t)
		alice, _ := s.CreateUser(ctx, "alice", "h")
		bob, _ := s.CreateUser(ctx, "bob", "h")
		p, _ := s.CreatePurpose(ctx, Purpose{OwnerID: alice.ID, Title: "Climb", Description: "Bouldering"})

		_, err := s.RecordInterest(ctx, bob.ID, p.ID)
		require.NoError(t, err)

		interests, err := s.InterestsForPoster(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, interests, 1)
		assert.Equal(t, bob.ID, interests[0].InterestedUserID)
		assert.Equal(t, p.ID, interests[0].Purpose.ID)
		assert.Equal(t, "alice", interests[0].Purpose.OwnerName)

		_, err = s.AcceptMatch(ctx, p.ID, bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		m := Match{PurposeID: p.ID, PosterID: alice.ID, InterestedUserID: bob.ID}
		created, err := s.CreateMatch(ctx, m)
		require.NoError(t, err)
		assert.True(t, created)
		created, err = s.CreateMatch(ctx, m)
		require.NoError(t, err)
		assert.False(t, created)

		interests, err = s.InterestsForPoster(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, interests)

		pending, err := s.PendingMatchesFor(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.False(t, pending[0].Match.AcceptedByInterestedUser)
		assert.Equal(t, alice.ID, pending[0].Match.PosterID)

		mutual, err := s.MutualMatchesFor(ctx, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, mutual)

		accepted, err := s.AcceptMatch(ctx, p.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, accepted.AcceptedByInterestedUser)
		assert.Equal(t, alice.ID, accepted.PosterID)

		_, err = s.AcceptMatch(ctx, p.ID, bob.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		pending, err = s.PendingMatchesFor(ctx, bob.ID)
		require.NoError(t, err)
		assert.Empty(t, pending)

		for _, id := range []int64{alice.ID, bob.ID} {
			mutual, err = s.MutualMatchesFor(ctx, id)
			require.NoError(t, err)
			require.Len(t, mutual, 1)
			assert.Equal(t, p.ID, mutual[0].Purpose.ID)
			assert.True(t, mutual[0].Match.AcceptedByInterestedUser)
		}
	})

	t.Run("conversation", func(t *testing.T) {
		s := newStore(t)
		alice, _ := s.CreateUser(ctx, "alice", "h")
		bob, _ := s.CreateUser(ctx, "bob", "h")
		carol, _ := s.CreateUser(ctx, "carol", "h")

		texts := []string{"hi", "hey", "climb saturday?", "yes"}
		for i, text := range texts {
			from, to := alice.ID, bob.ID
			if i%2 == 1 {
				from, to = to, from
			}
			m, err := s.AppendMessage(ctx, Message{SenderID: from, ReceiverID: to, Text: text})
			require.NoError(t, err)
			assert.NotZero(t, m.ID)
			assert.False(t, m.SentAt.IsZero())
		}
		_, err := s.AppendMessage(ctx, Message{SenderID: alice.ID, ReceiverID: carol.ID, Text: "other thread"})
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, Message{SenderID: alice.ID, ReceiverID: 9999, Text: "lost"})
		assert.ErrorIs(t, err, ErrNotFound)

		ab, err := s.Conversation(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		ba, err := s.Conversation(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)

		require.Len(t, ab, len(texts))
		for i := range ab {
			assert.Equal(t, texts[i], ab[i].Text)
			if i > 0 {
				assert.False(t, ab[i].SentAt.Before(ab[i-1].SentAt))
			}
		}
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryWithClock(steppingClock())
	})
}

func TestDynamoStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		d := NewDynamo(nil, "test_")
		d.client = newFakeDynamo(d)
		d.now = steppingClock()
		return d
	})
}

func TestDynamoStoreContractPaged(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		d := NewDynamo(nil, "paged_")
		f := newFakeDynamo(d)
		f.pageSize = 1
		d.client = f
		d.now = steppingClock()
		return d
	})
}
