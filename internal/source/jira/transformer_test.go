package jira_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/jira"
	"github.com/nhle/orgpulse/internal/store"
	"github.com/nhle/orgpulse/internal/testutil"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func sampleIssue() jira.RawIssue {
	return jira.RawIssue{
		Ticket:     "PROJ-7",
		ProjectKey: "PROJ",
		Summary:    "Login page",
		IssueType:  strPtr("Story"),
		Priority:   strPtr("High"),
		Created:    jira.Time{Time: t0},
		Reporter:   &jira.RawUser{Email: "pm@example.com"},
		StatusChanges: []jira.RawStatusChange{
			{FromString: "To Do", ToString: "In Progress", Author: &jira.RawUser{Email: "dev@example.com"}, Created: jira.Time{Time: t0.Add(2 * time.Hour)}},
			{FromString: "In Progress", ToString: "Done", Author: &jira.RawUser{Email: "dev@example.com"}, Created: jira.Time{Time: t0.Add(30 * time.Hour)}},
		},
		Worklogs: []jira.RawWorklog{
			{Author: &jira.RawUser{Email: "dev@example.com"}, Started: jira.Time{Time: t0.Add(3 * time.Hour)}, TimeSpentSeconds: 3600},
		},
	}
}

func TestTransform_FansOutIssue(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.PutRaw(t, env.Store, model.SourceJira, "PROJ-7", t0, sampleIssue())

	tr := jira.NewTransformer(env.Deps())
	res, err := tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 4}, res)

	all, err := env.Store.ListActivities(ctx, store.ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	refs := make([]string, len(all))
	for i, a := range all {
		refs[i] = a.SourceRefID
	}
	assert.ElementsMatch(t, []string{
		"jira:PROJ-7:created",
		"jira:PROJ-7:status:0",
		"jira:PROJ-7:status:1",
		"jira:PROJ-7:worklog:0",
	}, refs)

	created, err := env.Store.GetActivityByRef(ctx, model.SourceJira, "jira:PROJ-7:created")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityTicketCreated, created.Type)
	assert.Equal(t, "pm@example.com", created.Actor.Email)
	assert.True(t, created.Actor.IsResolved())
	assert.Equal(t, "proj", created.Project.Alias)
	assert.True(t, created.Project.IsResolved())
	assert.Equal(t, "Story", created.MetaString(model.MetaIssueType))
	assert.Equal(t, "High", created.MetaString(model.MetaPriority))

	done, err := env.Store.GetActivityByRef(ctx, model.SourceJira, "jira:PROJ-7:status:1")
	require.NoError(t, err)
	assert.Equal(t, "Done", done.MetaString(model.MetaToStatus))
	assert.Equal(t, "PROJ-7", done.MetaString(model.MetaTicketID))
	assert.True(t, done.Timestamp.Equal(t0.Add(30*time.Hour)))
}

func TestTransform_Idempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.PutRaw(t, env.Store, model.SourceJira, "PROJ-7", t0, sampleIssue())

	tr := jira.NewTransformer(env.Deps())
	_, err := tr.Transform(ctx, nil)
	require.NoError(t, err)

	res, err := tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 4, res.Skipped)

	all, err := env.Store.ListActivities(ctx, store.ActivityFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestTransform_NewTransitionOnUpdatedIssue(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	issue := sampleIssue()
	issue.StatusChanges = issue.StatusChanges[:1]
	testutil.PutRaw(t, env.Store, model.SourceJira, "PROJ-7", t0, issue)

	tr := jira.NewTransformer(env.Deps())
	res, err := tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)

	testutil.PutRaw(t, env.Store, model.SourceJira, "PROJ-7", t0.Add(time.Hour), sampleIssue())
	res, err = tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 3, res.Skipped)
}

func TestTransform_MissingEmails(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	dev, err := env.Identities.FindOrCreate(ctx, "dev@example.com", "", "org-1")
	require.NoError(t, err)
	_, _, err = env.Identities.LinkAccount(ctx, dev.PrimaryEmail,
		model.Account{Source: model.SourceJira, ID: "acc-dev"})
	require.NoError(t, err)

	issue := sampleIssue()
	issue.Reporter = nil
	issue.StatusChanges[0].Author = &jira.RawUser{AccountID: "acc-dev"}
	issue.StatusChanges[1].Author = &jira.RawUser{AccountID: "acc-unknown"}
	issue.Worklogs[0].Author = nil
	testutil.PutRaw(t, env.Store, model.SourceJira, "PROJ-7", t0, issue)

	res, err := jira.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 1, Skipped: 3}, res)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceJira, "jira:PROJ-7:status:0")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", a.Actor.Email)
	assert.Equal(t, dev.ID, a.Actor.ID)
}

func TestTransform_BadPayloadCountsError(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	testutil.PutRaw(t, env.Store, model.SourceJira, "broken", t0, map[string]any{"summary": "no key"})
	testutil.PutRaw(t, env.Store, model.SourceJira, "PROJ-7", t0, sampleIssue())

	res, err := jira.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 4, res.Created)
}

func TestToRawIssue_FlattensChangelog(t *testing.T) {
	issue := jira.Issue{
		Key: "OPS-3",
		Fields: jira.IssueFields{
			Summary:   "Rotate keys",
			IssueType: &jira.Named{Name: "Task"},
			Reporter:  &jira.User{AccountID: "a1", EmailAddress: "ops@example.com"},
			Project:   jira.ProjectRef{Key: "OPS"},
			Created:   "2024-05-06T08:00:00.000+0000",
		},
		Changelog: &jira.Changelog{Histories: []jira.History{
			{Created: "2024-05-07T08:00:00.000+0000", Author: &jira.User{AccountID: "a2"}, Items: []jira.ChangeItem{
				{Field: "status", FromString: "In Progress", ToString: "Done"},
			}},
			{Created: "2024-05-06T09:00:00.000+0000", Author: &jira.User{AccountID: "a2"}, Items: []jira.ChangeItem{
				{Field: "assignee", ToString: "someone"},
				{Field: "status", FromString: "To Do", ToString: "In Progress"},
			}},
		}},
	}

	raw := jira.ToRawIssue(issue, []jira.Worklog{{Author: &jira.User{AccountID: "a2"}, Started: "2024-05-06T10:00:00.000+0000", TimeSpentSeconds: 60}})
	assert.Equal(t, "OPS-3", raw.Ticket)
	assert.Equal(t, "OPS", raw.ProjectKey)
	assert.Nil(t, raw.Priority)
	require.Len(t, raw.StatusChanges, 2)
	assert.Equal(t, "In Progress", raw.StatusChanges[0].ToString)
	assert.Equal(t, "Done", raw.StatusChanges[1].ToString)
	assert.True(t, raw.Created.Equal(t0))
	require.Len(t, raw.Worklogs, 1)
	assert.Equal(t, "a2", raw.Worklogs[0].Author.AccountID)
}
