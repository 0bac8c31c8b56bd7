// Package store is the persistence layer: users, profiles, purposes, swipes,
// matches and chat messages. Store is implemented by an in-memory map store,
// a SQL store (PostgreSQL via lib/pq or pgx) and a DynamoDB document store;
// callers cannot tell them apart.
package store

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist, or when
	// a conditional transition finds no row in the expected state.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// Store is the full persistence contract used by the matching service.
//
// Record* and CreateMatch are upsert-or-noop primitives: they report
// created=false instead of failing when the row already exists.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	RenameUser(ctx context.Context, id int64, username string) error

	UpsertProfile(ctx context.Context, p Profile) (Profile, error)
	ProfileByUserID(ctx context.Context, userID int64) (Profile, error)
	// Participants returns display data for every existing user in ids.
	// Unknown ids are left out of the map.
	Participants(ctx context.Context, ids []int64) (map[int64]Participant, error)

	CreatePurpose(ctx context.Context, p Purpose) (Purpose, error)
	PurposeByID(ctx context.Context, id int64) (Purpose, error)
	// Feed yields purposes not owned by userID that userID has not swiped.
	// The query runs when the sequence is ranged over, so every range
	// reflects the swipes recorded so far.
	Feed(ctx context.Context, userID int64) iter.Seq2[Purpose, error]

	RecordInterest(ctx context.Context, userID, purposeID int64) (bool, error)
	RecordSeen(ctx context.Context, userID, purposeID int64) (bool, error)
	HasInterest(ctx context.Context, userID, purposeID int64) (bool, error)

	// InterestsForPoster lists interests on purposes owned by posterID for
	// which no Match row exists yet.
	InterestsForPoster(ctx context.Context, posterID int64) ([]InterestView, error)
	CreateMatch(ctx context.Context, m Match) (bool, error)
	// AcceptMatch flips the flag of the pending match for the pair. It
	// returns ErrNotFound if no row with a false flag exists.
	AcceptMatch(ctx context.Context, purposeID, interestedUserID int64) (Match, error)
	PendingMatchesFor(ctx context.Context, interestedUserID int64) ([]MatchView, error)
	MutualMatchesFor(ctx context.Context, userID int64) ([]MatchView, error)

	AppendMessage(ctx context.Context, m Message) (Message, error)
	// Conversation returns every message exchanged between a and b in either
	// direction, ascending by SentAt then ID.
	Conversation(ctx context.Context, a, b int64) ([]Message, error)
}
