package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
	"github.com/nhle/orgpulse/internal/testutil"
)

var t0 = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func newActivity(ref string, ts time.Time) *model.Activity {
	return &model.Activity{
		OrgID:       "org-1",
		Source:      model.SourceJira,
		Type:        model.ActivityTicketCreated,
		Actor:       model.UnresolvedActor("Alice@Example.com "),
		Project:     model.UnresolvedProject("PROJ"),
		Timestamp:   ts,
		Metadata:    map[string]any{model.MetaTicketID: "PROJ-1", model.MetaJiraKeys: []string{"PROJ-1"}},
		SourceRefID: ref,
	}
}

func TestInsertActivity_DedupBySourceRef(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	created, err := s.InsertActivity(ctx, newActivity("jira:PROJ-1:created", t0))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.InsertActivity(ctx, newActivity("jira:PROJ-1:created", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, created)

	// Same ref under another source is a different activity.
	other := newActivity("jira:PROJ-1:created", t0)
	other.Source = model.SourceGitHub
	created, err = s.InsertActivity(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)

	all, err := s.ListActivities(ctx, store.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetActivityByRef_RoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.InsertActivity(ctx, newActivity("jira:PROJ-1:created", t0))
	require.NoError(t, err)

	got, err := s.GetActivityByRef(ctx, model.SourceJira, "jira:PROJ-1:created")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Actor.Email)
	assert.False(t, got.Actor.IsResolved())
	assert.Equal(t, "proj", got.Project.Alias)
	assert.True(t, got.Timestamp.Equal(t0))
	assert.Equal(t, "PROJ-1", got.MetaString(model.MetaTicketID))
	assert.Equal(t, []string{"PROJ-1"}, got.MetaStrings(model.MetaJiraKeys))

	_, err = s.GetActivityByRef(ctx, model.SourceJira, "jira:NOPE-1:created")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestActivityTimestamp_KeepsMicroseconds(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	ts := t0.Add(100 * time.Microsecond)

	_, err := s.InsertActivity(ctx, newActivity("slack:Ev1", ts))
	require.NoError(t, err)

	got, err := s.GetActivityByRef(ctx, model.SourceJira, "slack:Ev1")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts), "got %s", got.Timestamp)

	from, err := s.ListActivities(ctx, store.ActivityFilter{Start: &ts})
	require.NoError(t, err)
	assert.Len(t, from, 1)

	before, err := s.ListActivities(ctx, store.ActivityFilter{End: &ts})
	require.NoError(t, err)
	assert.Empty(t, before)
}

func TestListActivities_Filters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	a1 := newActivity("a1", t0)
	a2 := newActivity("a2", t0.Add(24*time.Hour))
	a2.Project = model.UnresolvedProject("other").Resolve("proj-x")
	a3 := newActivity("a3", t0.Add(48*time.Hour))
	a3.Actor = model.UnresolvedActor("bob@example.com")
	a3.Type = model.ActivityStatusChange
	for _, a := range []*model.Activity{a1, a2, a3} {
		_, err := s.InsertActivity(ctx, a)
		require.NoError(t, err)
	}

	start, end := t0, t0.Add(48*time.Hour)
	got, err := s.ListActivities(ctx, store.ActivityFilter{
		ActorEmail: "ALICE@example.com",
		Start:      &start,
		End:        &end,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].SourceRefID)
	assert.Equal(t, "a2", got[1].SourceRefID)

	got, err = s.ListActivities(ctx, store.ActivityFilter{
		Project: &store.ProjectMatch{ID: "proj-x", Aliases: []string{"PROJ"}},
		Types:   []model.ActivityType{model.ActivityTicketCreated},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListActivities(ctx, store.ActivityFilter{Sources: []model.Source{model.SourceSlack}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCountOrphansAndReset(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	resolved := newActivity("r1", t0)
	resolved.Actor = resolved.Actor.Resolve("id-1")
	resolved.Project = resolved.Project.Resolve("proj")
	for _, a := range []*model.Activity{resolved, newActivity("r2", t0)} {
		_, err := s.InsertActivity(ctx, a)
		require.NoError(t, err)
	}

	counts, err := s.CountOrphans(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, store.OrphanCount{
		Source: model.SourceJira, Total: 2, UnresolvedActor: 1, UnresolvedProject: 1,
	}, counts[0])

	src := model.SourceJira
	n, err := s.ResetActivities(ctx, &src)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIdentity_CreateFindAndAlternates(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	alice := &model.Identity{OrgID: "org-1", PrimaryEmail: " Alice@Example.com", DisplayName: "Alice"}
	created, err := s.CreateIdentity(ctx, alice)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &model.Identity{OrgID: "org-1", PrimaryEmail: "alice@example.com"}
	created, err = s.CreateIdentity(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.AddIdentityEmail(ctx, alice.ID, "a.smith@corp.io"))
	require.NoError(t, s.AddIdentityEmail(ctx, alice.ID, "a.smith@corp.io"))

	got, err := s.FindIdentityByEmail(ctx, "A.Smith@corp.io")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, []string{"a.smith@corp.io"}, got.AlternateEmails)

	_, err = s.FindIdentityByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.AddIdentityEmail(ctx, "missing", "x@y.z"), store.ErrNotFound)
}

func TestIdentity_SharedAlternateOldestWins(t *testing.T) {
	s := testutil.NewTestStore(t)
	clock := testutil.NewClock(t0)
	s.SetClock(clock.Now)
	ctx := context.Background()

	older := &model.Identity{PrimaryEmail: "old@example.com"}
	_, err := s.CreateIdentity(ctx, older)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	newer := &model.Identity{PrimaryEmail: "new@example.com"}
	_, err = s.CreateIdentity(ctx, newer)
	require.NoError(t, err)

	require.NoError(t, s.AddIdentityEmail(ctx, newer.ID, "shared@example.com"))
	require.NoError(t, s.AddIdentityEmail(ctx, older.ID, "shared@example.com"))

	got, err := s.FindIdentityByEmail(ctx, "shared@example.com")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
}

func TestIdentity_FindByAccount(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	id := &model.Identity{PrimaryEmail: "dev@example.com"}
	_, err := s.CreateIdentity(ctx, id)
	require.NoError(t, err)

	id.GitHubLogin = "DevCat"
	id.GitHubID = "42"
	id.SlackUserID = "U123"
	id.JiraAccountID = "acc-9"
	require.NoError(t, s.UpdateIdentityAccounts(ctx, id))

	for _, tc := range []struct {
		source model.Source
		id     string
	}{
		{model.SourceGitHub, "devcat"},
		{model.SourceGitHub, "42"},
		{model.SourceSlack, "U123"},
		{model.SourceJira, "acc-9"},
		{model.SourceEmail, "DEV@example.com"},
	} {
		got, err := s.FindIdentityByAccount(ctx, tc.source, tc.id)
		require.NoError(t, err, "%s %s", tc.source, tc.id)
		assert.Equal(t, id.ID, got.ID)
	}

	_, err = s.FindIdentityByAccount(ctx, model.SourceSlack, "U999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProject_AliasesAreUniquePerSource(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	p := &model.Project{
		ID:      "alpha",
		Name:    "Alpha",
		Aliases: map[model.Source][]string{model.SourceJira: {"ALPHA"}},
	}
	require.NoError(t, s.CreateProject(ctx, p))

	jira := model.SourceJira
	got, err := s.FindProjectByAlias(ctx, " alpha ", &jira)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.ID)
	assert.Equal(t, []string{"alpha"}, got.Aliases[model.SourceJira])

	slack := model.SourceSlack
	_, err = s.FindProjectByAlias(ctx, "alpha", &slack)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.FindProjectByAlias(ctx, "alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.ID)

	beta := &model.Project{
		ID:      "beta",
		Name:    "Beta",
		Aliases: map[model.Source][]string{model.SourceJira: {"alpha"}},
	}
	err = s.CreateProject(ctx, beta)
	assert.ErrorIs(t, err, store.ErrAliasTaken)
	_, err = s.GetProject(ctx, "beta")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Re-adding an owned alias is a no-op; the same alias under another
	// source is allowed.
	require.NoError(t, s.AddProjectAlias(ctx, "alpha", model.SourceJira, "ALPHA"))
	require.NoError(t, s.AddProjectAlias(ctx, "alpha", model.SourceSlack, "c01alpha"))
	require.NoError(t, s.RemoveProjectAlias(ctx, "alpha", model.SourceSlack, "C01ALPHA"))
	require.NoError(t, s.RemoveProjectAlias(ctx, "alpha", model.SourceSlack, "C01ALPHA"))

	got, err = s.GetProject(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, got.Aliases[model.SourceSlack])
}

func TestProject_DeactivateKeepsAliasLookup(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProject(ctx, &model.Project{
		ID: "gamma", OrgID: "org-1", Name: "Gamma",
		Aliases: map[model.Source][]string{model.SourceGitHub: {"acme/gamma"}},
	}))
	require.NoError(t, s.SetProjectActive(ctx, "gamma", false))

	active, err := s.ListProjects(ctx, "org-1", false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListProjects(ctx, "org-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	got, err := s.FindProjectByAlias(ctx, "acme/gamma", nil)
	require.NoError(t, err)
	assert.Equal(t, "gamma", got.ID)

	assert.ErrorIs(t, s.SetProjectActive(ctx, "missing", false), store.ErrNotFound)
}

func TestTransformState_SingleFlightLease(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	lease := 30 * time.Minute

	ok, err := s.TryStartRun(ctx, model.SourceSlack, t0, t0.Add(-lease))
	require.NoError(t, err)
	assert.True(t, ok)

	later := t0.Add(5 * time.Minute)
	ok, err = s.TryStartRun(ctx, model.SourceSlack, later, later.Add(-lease))
	require.NoError(t, err)
	assert.False(t, ok, "second run must be refused while the lease is live")

	ok, err = s.TryStartRun(ctx, model.SourceJira, later, later.Add(-lease))
	require.NoError(t, err)
	assert.True(t, ok, "other sources are independent")

	stale := t0.Add(31 * time.Minute)
	ok, err = s.TryStartRun(ctx, model.SourceSlack, stale, stale.Add(-lease))
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease is reclaimed")

	// The run that held the stale lease finishes late and must not touch
	// the row of the run that reclaimed it.
	err = s.FinishRun(ctx, model.SourceSlack, store.RunOutcome{
		StartedAt: t0, FinishedAt: stale, Success: true, SuccessAt: t0, Created: 9,
	})
	assert.ErrorIs(t, err, store.ErrLeaseLost)
	st, err := s.GetTransformState(ctx, model.SourceSlack)
	require.NoError(t, err)
	assert.True(t, st.IsRunning)
	assert.Nil(t, st.LastSuccessAt)
	assert.Zero(t, st.LastCreated)

	ok, err = s.TryStartRun(ctx, model.SourceSlack, stale.Add(time.Minute), stale.Add(time.Minute-lease))
	require.NoError(t, err)
	assert.False(t, ok, "the reclaimed lease is still held")

	require.NoError(t, s.FinishRun(ctx, model.SourceSlack, store.RunOutcome{
		StartedAt: stale, FinishedAt: stale.Add(time.Minute), Success: true, SuccessAt: stale,
		Processed: 3, Created: 2, Skipped: 1,
	}))

	st, err = s.GetTransformState(ctx, model.SourceSlack)
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	require.NotNil(t, st.LastSuccessAt)
	assert.True(t, st.LastSuccessAt.Equal(stale))
	assert.Equal(t, 2, st.LastCreated)

	require.NoError(t, s.FinishRun(ctx, model.SourceJira, store.RunOutcome{StartedAt: later, Error: "boom"}))
	st, err = s.GetTransformState(ctx, model.SourceJira)
	require.NoError(t, err)
	assert.Nil(t, st.LastSuccessAt)
	assert.Equal(t, "boom", st.LastError)

	states, err := s.ListTransformStates(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 2)

	st, err = s.GetTransformState(ctx, model.SourceEmail)
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	assert.Nil(t, st.LastRunAt)
}

func TestRawRecords_UpsertAndSince(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutRawRecord(ctx, model.RawRecord{
		Source: model.SourceJira, Ref: "PROJ-1", Payload: []byte(`{"v":1}`), ReceivedAt: t0,
	}))
	require.NoError(t, s.PutRawRecord(ctx, model.RawRecord{
		Source: model.SourceJira, Ref: "PROJ-2", Payload: []byte(`{}`), ReceivedAt: t0.Add(time.Hour),
	}))

	since := t0.Add(30 * time.Minute)
	got, err := s.ListRawRecords(ctx, model.SourceJira, &since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PROJ-2", got[0].Ref)

	require.NoError(t, s.PutRawRecord(ctx, model.RawRecord{
		Source: model.SourceJira, Ref: "PROJ-1", Payload: []byte(`{"v":2}`), ReceivedAt: t0.Add(2 * time.Hour),
	}))
	got, err = s.ListRawRecords(ctx, model.SourceJira, &since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "PROJ-1", got[1].Ref)
	assert.JSONEq(t, `{"v":2}`, string(got[1].Payload))

	got, err = s.ListRawRecords(ctx, model.SourceSlack, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
