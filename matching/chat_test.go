package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/purpose-match/backend/metrics"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
)

func TestSendMessagePushesToBothParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chA, _ := env.connect(t, alice)
	chB, _ := env.connect(t, bob)

	d, err := env.svc.SendMessage(ctx, alice.ID, bob.ID, "climb saturday?")
	require.NoError(t, err)
	assert.True(t, d.ReceiverDelivered)
	assert.True(t, d.SenderDelivered)
	assert.Equal(t, d.Message.SentAt, d.Payload.Timestamp)

	want := realtime.ChatPayload{
		Type:       realtime.KindChatMessage,
		ID:         d.Message.ID,
		SenderID:   alice.ID,
		ReceiverID: bob.ID,
		SenderName: "alice",
		Text:       "climb saturday?",
		Timestamp:  d.Message.SentAt,
	}
	assert.Equal(t, []any{want}, chA.payloads())
	assert.Equal(t, []any{want}, chB.payloads())

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.MessagesPersisted))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Deliveries.WithLabelValues(string(realtime.KindChatMessage), metrics.Delivered)))
}

func TestSendMessageIsDurableWithoutChannels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chB, _ := env.connect(t, bob)
	chB.close()

	d, err := env.svc.SendMessage(ctx, alice.ID, bob.ID, "anyone there?")
	require.NoError(t, err)
	assert.False(t, d.ReceiverDelivered)
	assert.False(t, d.SenderDelivered)
	assert.Empty(t, chB.payloads())

	history, err := env.svc.History(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "anyone there?", history[0].Text)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	for _, tc := range []struct {
		name     string
		from, to int64
		text     string
	}{
		{"no sender", 0, bob.ID, "hi"},
		{"no receiver", alice.ID, 0, "hi"},
		{"empty text", alice.ID, bob.ID, ""},
		{"blank text", alice.ID, bob.ID, "  \n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SendMessage(ctx, tc.from, tc.to, tc.text)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := env.svc.SendMessage(ctx, alice.ID, 9999, "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := env.svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = env.svc.History(ctx, alice.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHistoryIsOrderedAndComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")
	env.connect(t, bob)

	var want []string
	for i := range 10 {
		from, to := alice.ID, bob.ID
		if i%3 == 0 {
			from, to = to, from
		}
		text := fmt.Sprintf("message %d", i)
		want = append(want, text)
		_, err := env.svc.SendMessage(ctx, from, to, text)
		require.NoError(t, err)
	}
	_, err := env.svc.SendMessage(ctx, alice.ID, carol.ID, "elsewhere")
	require.NoError(t, err)

	history, err := env.svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, history, len(want))
	for i, entry := range history {
		assert.Equal(t, want[i], entry.Text)
		if i > 0 {
			assert.False(t, entry.Timestamp.Before(history[i-1].Timestamp))
		}
		wantName := "alice"
		if entry.SenderID == bob.ID {
			wantName = "bob"
		}
		assert.Equal(t, wantName, entry.SenderName)
	}
}

func TestSenderNameFallsBackToUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	chB, _ := env.connect(t, bob)
	env.svc.store = namelessStore{Store: env.store}

	d, err := env.svc.SendMessage(ctx, alice.ID, bob.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, unknownSender, d.Payload.SenderName)
	require.Len(t, chB.payloads(), 1)
}
