package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDynamo(t *testing.T) (*Dynamo, *fakeDynamo) {
	t.Helper()
	d := NewDynamo(nil, "pm_")
	f := newFakeDynamo(d)
	d.client = f
	d.now = steppingClock()
	return d, f
}

func TestDynamoEnsureTables(t *testing.T) {
	d, f := newTestDynamo(t)
	ctx := context.Background()

	require.NoError(t, d.EnsureTables(ctx))
	assert.Len(t, f.created, 9)
	assert.True(t, f.created["pm_final_matches"])

	// second run hits ResourceInUseException for every table
	require.NoError(t, d.EnsureTables(ctx))
	assert.Equal(t, 18, f.calls["CreateTable"])
}

func TestDynamoTableDefinitions(t *testing.T) {
	d, _ := newTestDynamo(t)

	byName := map[string]int{}
	for i, def := range d.tableDefinitions() {
		byName[aws.ToString(def.TableName)] = i
	}
	matches := d.tableDefinitions()[byName["pm_final_matches"]]
	require.Len(t, matches.KeySchema, 2)
	assert.Equal(t, "purpose_id", aws.ToString(matches.KeySchema[0].AttributeName))
	assert.Equal(t, "interested_user_id", aws.ToString(matches.KeySchema[1].AttributeName))
	require.Len(t, matches.GlobalSecondaryIndexes, 2)
	assert.Equal(t, indexMatchesByInterested, aws.ToString(matches.GlobalSecondaryIndexes[0].IndexName))
	assert.Equal(t, indexMatchesByPoster, aws.ToString(matches.GlobalSecondaryIndexes[1].IndexName))
	// purpose_id, interested_user_id, poster_id; each defined once
	assert.Len(t, matches.AttributeDefinitions, 3)
}

func TestDynamoCounterAllocatesSequentialIDs(t *testing.T) {
	d, _ := newTestDynamo(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := d.nextID(ctx, counterMessages)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := d.nextID(ctx, counterUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestDynamoWrapsClientErrors(t *testing.T) {
	d, f := newTestDynamo(t)
	ctx := context.Background()
	boom := errors.New("throttled")

	f.errs["GetItem"] = boom
	_, err := d.UserByID(ctx, 1)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	f.errs["GetItem"] = nil
	f.errs["UpdateItem"] = boom
	_, err = d.CreateUser(ctx, "alice", "h")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pm_counters")
}

func TestDynamoCancelledTransactionConflicts(t *testing.T) {
	cancelled := func(codes ...string) error {
		reasons := make([]types.CancellationReason, len(codes))
		for i, c := range codes {
			reasons[i].Code = aws.String(c)
		}
		return &types.TransactionCanceledException{Message: aws.String("Transaction cancelled"), CancellationReasons: reasons}
	}

	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"Condition Failed", cancelled("ConditionalCheckFailed", "None"), true},
		{"Second Item Condition", cancelled("None", "ConditionalCheckFailed"), true},
		{"Transaction Conflict", cancelled("TransactionConflict", "None"), false},
		{"Throttled", cancelled("None", "ThrottlingError"), false},
		{"No Reasons", cancelled(), false},
		{"Plain Condition", &types.ConditionalCheckFailedException{Message: aws.String("nope")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, f := newTestDynamo(t)
			ctx := context.Background()
			alice, err := d.CreateUser(ctx, "alice", "h")
			require.NoError(t, err)

			f.errs["TransactWriteItems"] = tt.err
			_, err = d.CreateUser(ctx, "bob", "h")
			require.Error(t, err)
			renameErr := d.RenameUser(ctx, alice.ID, "carol")
			require.Error(t, renameErr)

			if tt.conflict {
				assert.ErrorIs(t, err, ErrConflict)
				assert.ErrorIs(t, renameErr, ErrConflict)
				return
			}
			assert.NotErrorIs(t, err, ErrConflict)
			assert.NotErrorIs(t, renameErr, ErrConflict)
			assert.ErrorIs(t, err, tt.err, "storage failures keep their cause")
			assert.Contains(t, renameErr.Error(), "pm_users")
		})
	}
}

func TestDynamoDuplicateUsernameConflicts(t *testing.T) {
	d, _ := newTestDynamo(t)
	ctx := context.Background()

	_, err := d.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)
	bob, err := d.CreateUser(ctx, "bob", "h")
	require.NoError(t, err)

	_, err = d.CreateUser(ctx, "alice", "h")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, d.RenameUser(ctx, bob.ID, "alice"), ErrConflict)
}

func TestDynamoFeedStopsEarly(t *testing.T) {
	d, f := newTestDynamo(t)
	ctx := context.Background()
	f.pageSize = 1

	alice, err := d.CreateUser(ctx, "alice", "h")
	require.NoError(t, err)
	bob, err := d.CreateUser(ctx, "bob", "h")
	require.NoError(t, err)
	for _, title := range []string{"a", "b", "c"} {
		_, err := d.CreatePurpose(ctx, Purpose{OwnerID: alice.ID, Title: title, Description: title})
		require.NoError(t, err)
	}

	scansBefore := f.calls["Scan"]
	for _, err := range d.Feed(ctx, bob.ID) {
		require.NoError(t, err)
		break
	}
	assert.Equal(t, 1, f.calls["Scan"]-scansBefore)
}

func TestDynamoFeedSurfacesScanError(t *testing.T) {
	d, f := newTestDynamo(t)
	boom := errors.New("scan failed")
	f.errs["Scan"] = boom

	var got error
	for _, err := range d.Feed(context.Background(), 1) {
		got = err
	}
	assert.ErrorIs(t, got, boom)
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, "3#7", conversationID(7, 3))
	assert.Equal(t, conversationID(3, 7), conversationID(7, 3))
}

func TestDynamoParticipantsUseBatchGet(t *testing.T) {
	d, f := newTestDynamo(t)
	ctx := context.Background()

	var ids []int64
	for i := range 120 {
		u, err := d.CreateUser(ctx, fmt.Sprintf("user%03d", i), "h")
		require.NoError(t, err)
		ids = append(ids, u.ID)
		if i%2 == 0 {
			_, err = d.UpsertProfile(ctx, Profile{UserID: u.ID, Bio: "bio " + u.Username})
			require.NoError(t, err)
		}
	}

	getsBefore := f.calls["GetItem"]
	got, err := d.Participants(ctx, append(ids, ids[0], 9999))
	require.NoError(t, err)

	assert.Len(t, got, 120)
	assert.Equal(t, Participant{UserID: ids[0], Username: "user000", Bio: "bio user000"}, got[ids[0]])
	assert.Equal(t, Participant{UserID: ids[1], Username: "user001"}, got[ids[1]])
	assert.NotContains(t, got, int64(9999))

	assert.Equal(t, getsBefore, f.calls["GetItem"], "no per-id reads")
	// 121 distinct ids, two keys each, at most 100 keys per request
	assert.Equal(t, 3, f.calls["BatchGetItem"])
}

func TestDynamoParticipantsFollowUnprocessedKeys(t *testing.T) {
	d, f := newTestDynamo(t)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"alice", "bob", "carol"} {
		u, err := d.CreateUser(ctx, name, "h")
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	f.unprocessed = 2
	got, err := d.Participants(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, f.calls["BatchGetItem"])

	f.unprocessed = 100
	_, err = d.Participants(ctx, ids)
	assert.ErrorIs(t, err, errUnprocessedKeys)
}

func TestDynamoParticipantsSurfaceBatchError(t *testing.T) {
	d, f := newTestDynamo(t)
	boom := errors.New("throttled")
	f.errs["BatchGetItem"] = boom

	_, err := d.Participants(context.Background(), []int64{1, 2})
	assert.ErrorIs(t, err, boom)

	got, err := d.Participants(context.Background(), nil)
	assert.NoError(t, err, "no ids means no request")
	assert.Empty(t, got)
}
