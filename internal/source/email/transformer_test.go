package email_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/email"
	"github.com/nhle/orgpulse/internal/store"
	"github.com/nhle/orgpulse/internal/testutil"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func TestProjectAliasFromSubject(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"[Alpha] weekly sync", "alpha"},
		{"Re: [Alpha] weekly sync", "alpha"},
		{"beta: release notes", "beta"},
		{"RE: Fwd: beta: release notes", "beta"},
		{"Gamma - kickoff", "gamma"},
		{"Re: Gamma - kickoff", "gamma"},
		{"Re: lunch?", "general"},
		{"Fwd: see below", "general"},
		{"hello there", "general"},
		{"", "general"},
		{"[ ] empty tag", "general"},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, email.ProjectAliasFromSubject(tt.subject))
		})
	}
}

func TestTransform_Message(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	testutil.PutRaw(t, env.Store, model.SourceEmail, "m1@example.com", t0, email.RawMessage{
		MessageID: "<m1@example.com>",
		ThreadID:  "root@example.com",
		From:      "Alice <Alice@Example.com>",
		To:        []string{"bob@example.com", "Carol <carol@example.com>"},
		Cc:        []string{"BOB@example.com"},
		Subject:   "[Alpha] weekly sync",
		Date:      t0,
	})

	tr := email.NewTransformer(env.Deps())
	res, err := tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 1}, res)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceEmail, "email:m1@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityMessage, a.Type)
	assert.Equal(t, "alice@example.com", a.Actor.Email)
	assert.True(t, a.Actor.IsResolved())
	assert.Equal(t, "alpha", a.Project.Alias)
	assert.True(t, a.Project.IsResolved())
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, a.MetaStrings(model.MetaRecipients))
	assert.Equal(t, "root@example.com", a.MetaString(model.MetaThreadID))
	assert.True(t, a.Timestamp.Equal(t0))

	res, err = tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Skipped: 1}, res)
}

func TestTransform_SharedProjectAcrossThread(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	for i, subject := range []string{"beta: plan", "Re: beta: plan", "Fwd: beta: plan"} {
		id := []string{"a@x", "b@x", "c@x"}[i]
		testutil.PutRaw(t, env.Store, model.SourceEmail, id, t0.Add(time.Duration(i)*time.Minute), email.RawMessage{
			MessageID: id,
			From:      "dev@example.com",
			Subject:   subject,
			Date:      t0.Add(time.Duration(i) * time.Minute),
		})
	}

	res, err := email.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)

	all, err := env.Store.ListActivities(ctx, store.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, a := range all {
		assert.Equal(t, all[0].Project.ID, a.Project.ID)
	}

	projects, err := env.Projects.List(ctx, "org-1", true)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestTransform_MissingMessageIDAndSender(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	testutil.PutRaw(t, env.Store, model.SourceEmail, "no-id", t0, email.RawMessage{
		From:    "dev@example.com",
		Subject: "hello",
	})
	testutil.PutRaw(t, env.Store, model.SourceEmail, "no-from", t0, email.RawMessage{
		MessageID: "no-from@x",
		Subject:   "hello",
	})

	res, err := email.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 2, Skipped: 1, Errors: 1}, res)
}

func TestTransform_SinceWatermark(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	testutil.PutRaw(t, env.Store, model.SourceEmail, "old@x", t0, email.RawMessage{
		MessageID: "old@x", From: "dev@example.com", Subject: "old",
	})
	testutil.PutRaw(t, env.Store, model.SourceEmail, "new@x", t0.Add(time.Hour), email.RawMessage{
		MessageID: "new@x", From: "dev@example.com", Subject: "new",
	})

	since := t0.Add(30 * time.Minute)
	res, err := email.NewTransformer(env.Deps()).Transform(ctx, &since)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 1}, res)

	// Without a date the activity falls back to the record's receive time.
	a, err := env.Store.GetActivityByRef(ctx, model.SourceEmail, "email:new@x")
	require.NoError(t, err)
	assert.True(t, a.Timestamp.Equal(t0.Add(time.Hour)))
}

const sampleEML = "From: Alice <alice@example.com>\r\n" +
	"To: Bob <bob@example.com>, carol@example.com\r\n" +
	"Cc: dave@example.com\r\n" +
	"Subject: [Alpha] release plan\r\n" +
	"Date: Mon, 06 May 2024 10:00:00 +0200\r\n" +
	"Message-ID: <reply-1@example.com>\r\n" +
	"In-Reply-To: <root-1@example.com>\r\n" +
	"References: <root-1@example.com> <mid-1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Shipping   on Friday.\r\nThanks\r\n"

func TestParseEML(t *testing.T) {
	msg, err := email.ParseEML(strings.NewReader(sampleEML))
	require.NoError(t, err)

	assert.Equal(t, "reply-1@example.com", msg.MessageID)
	assert.Equal(t, "root-1@example.com", msg.ThreadID)
	assert.Equal(t, "alice@example.com", msg.From)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, msg.To)
	assert.Equal(t, []string{"dave@example.com"}, msg.Cc)
	assert.Equal(t, "[Alpha] release plan", msg.Subject)
	assert.True(t, msg.Date.Equal(t0))
	assert.Equal(t, "Shipping on Friday. Thanks", msg.Snippet)
}

func TestImportEML_StoresRawRecord(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	msg, err := email.ImportEML(ctx, st, "org-1", strings.NewReader(sampleEML))
	require.NoError(t, err)
	assert.Equal(t, "reply-1@example.com", msg.MessageID)

	records, err := st.ListRawRecords(ctx, model.SourceEmail, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "reply-1@example.com", records[0].Ref)
	assert.Equal(t, "org-1", records[0].OrgID)
}

type fakeFetcher struct {
	messages []email.RawMessage
	since    time.Time
}

func (f *fakeFetcher) FetchSince(_ context.Context, _ string, since time.Time) ([]email.RawMessage, error) {
	f.since = since
	return f.messages, nil
}

func TestCollector_Collect(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	fetcher := &fakeFetcher{messages: []email.RawMessage{
		{MessageID: "<a@x>", From: "a@example.com", Subject: "one", Date: t0},
		{MessageID: "<b@x>", From: "b@example.com", Subject: "two", Date: t0},
	}}
	c := email.NewCollector(fetcher, st, "org-1", "INBOX", zerolog.Nop())

	n, err := c.Collect(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, fetcher.since.Equal(t0))

	records, err := st.ListRawRecords(ctx, model.SourceEmail, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
