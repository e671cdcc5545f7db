package slack_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/slack"
	"github.com/nhle/orgpulse/internal/store"
	"github.com/nhle/orgpulse/internal/testutil"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func linkSlack(t *testing.T, env *testutil.Env, email, userID string) *model.Identity {
	t.Helper()
	ctx := context.Background()
	ident, err := env.Identities.FindOrCreate(ctx, email, "", "org-1")
	require.NoError(t, err)
	_, ok, err := env.Identities.LinkAccount(ctx, email,
		model.Account{Source: model.SourceSlack, ID: userID, TeamID: "T1"})
	require.NoError(t, err)
	require.True(t, ok)
	return ident
}

func TestTransform_MessageWithMentions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	linkSlack(t, env, "bob@example.com", "U0BOB")

	testutil.PutRaw(t, env.Store, model.SourceSlack, "Ev1", t0, slack.RawEvent{
		EventID:       "Ev1",
		ChannelID:     "C123",
		UserID:        "U0ALICE",
		UserEmail:     strPtr("Alice@Example.com"),
		Text:          "ping <@U0BOB> and <@U0NOBODY|ghost>",
		TS:            "1714982400.000100",
		ThreadTS:      "1714982000.000000",
		MentionEmails: []string{"carol@example.com", "BOB@example.com"},
	})

	res, err := slack.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 1}, res)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceSlack, "slack:Ev1")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityMessage, a.Type)
	assert.Equal(t, "alice@example.com", a.Actor.Email)
	assert.True(t, a.Actor.IsResolved())
	assert.Equal(t, "c123", a.Project.Alias)
	assert.Equal(t, "C123", a.MetaString(model.MetaChannelID))
	assert.Equal(t, "1714982000.000000", a.MetaString(model.MetaThreadTS))
	assert.Equal(t, []string{"carol@example.com", "bob@example.com"}, a.MetaStrings(model.MetaMentions))
	assert.True(t, a.Timestamp.Equal(time.Unix(1714982400, 100000)))
}

func TestTransform_RerunCreatesNothing(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	testutil.PutRaw(t, env.Store, model.SourceSlack, "Ev1", t0, slack.RawEvent{
		EventID:   "Ev1",
		ChannelID: "C123",
		UserEmail: strPtr("alice@example.com"),
		Text:      "standup notes",
		TS:        "1714982400.000100",
	})

	tr := slack.NewTransformer(env.Deps())
	res, err := tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 1}, res)

	res, err = tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Skipped: 1}, res)

	all, err := env.Store.ListActivities(ctx, store.ActivityFilter{Sources: []model.Source{model.SourceSlack}})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTransform_ActorFromLinkedUser(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	bob := linkSlack(t, env, "bob@example.com", "U0BOB")

	testutil.PutRaw(t, env.Store, model.SourceSlack, "Ev2", t0, slack.RawEvent{
		EventID:   "Ev2",
		ChannelID: "C123",
		UserID:    "U0BOB",
		Text:      "hello",
		TS:        "1714982400.000100",
	})
	testutil.PutRaw(t, env.Store, model.SourceSlack, "Ev3", t0, slack.RawEvent{
		EventID:   "Ev3",
		ChannelID: "C123",
		UserID:    "U0UNKNOWN",
		Text:      "who am I",
	})

	res, err := slack.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 2, Created: 1, Skipped: 1}, res)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceSlack, "slack:Ev2")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, a.Actor.ID)
	assert.Nil(t, a.MetaStrings(model.MetaMentions))
}

func TestTransform_MissingEventIDIsError(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	testutil.PutRaw(t, env.Store, model.SourceSlack, "bad", t0, slack.RawEvent{ChannelID: "C1", UserEmail: strPtr("a@example.com")})

	res, err := slack.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Errors: 1}, res)
}

func TestEventTime(t *testing.T) {
	ev := slack.RawEvent{TS: "1714982400.5"}
	got, ok := ev.EventTime()
	require.True(t, ok)
	assert.True(t, got.Equal(time.Unix(1714982400, 500_000_000)))

	explicit := t0
	ev.Timestamp = &explicit
	got, ok = ev.EventTime()
	require.True(t, ok)
	assert.True(t, got.Equal(t0))

	_, ok = slack.RawEvent{TS: "garbage"}.EventTime()
	assert.False(t, ok)
}

func TestRawEventFromCallback(t *testing.T) {
	body := []byte(`{"type":"event_callback","team_id":"T1","event_id":"Ev9",
		"event":{"type":"message","user":"U1","text":"hi","channel":"C9","ts":"1714982400.000100"}}`)

	ev, err := slack.RawEventFromCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "Ev9", ev.EventID)
	assert.Equal(t, "C9", ev.ChannelID)
	assert.Equal(t, "U1", ev.UserID)
	assert.Equal(t, "T1", ev.TeamID)

	bot := []byte(`{"type":"event_callback","event_id":"Ev10",
		"event":{"type":"message","subtype":"bot_message","text":"beep","channel":"C9"}}`)
	_, err = slack.RawEventFromCallback(bot)
	assert.ErrorIs(t, err, slack.ErrNotMessage)
}
