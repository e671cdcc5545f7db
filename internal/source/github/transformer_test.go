package github_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/github"
	"github.com/nhle/orgpulse/internal/testutil"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func put(t *testing.T, env *testutil.Env, ev github.RawEvent) {
	t.Helper()
	testutil.PutRaw(t, env.Store, model.SourceGitHub, ev.EventType+":"+ev.ID, t0, ev)
}

func repo() *github.Repository {
	return &github.Repository{ID: 1, FullName: "Acme/API"}
}

func TestActivityTypeFor(t *testing.T) {
	tests := []struct {
		event, action string
		want          model.ActivityType
		ok            bool
	}{
		{"push", "", model.ActivityCommit, true},
		{"pull_request", "opened", model.ActivityPullRequest, true},
		{"pull_request", "closed", model.ActivityPullRequest, true},
		{"pull_request", "synchronize", "", false},
		{"pull_request_review", "submitted", model.ActivityReview, true},
		{"deployment", "created", model.ActivityDeployment, true},
		{"deployment_status", "created", model.ActivityDeployment, true},
		{"issues", "opened", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.event+"/"+tt.action, func(t *testing.T) {
			got, ok := github.ActivityTypeFor(tt.event, tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransform_PullRequestMerged(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	body := "Implements PROJ-12 and fixes proj-13"
	put(t, env, github.RawEvent{
		ID:        "d-1",
		EventType: "pull_request",
		Payload: github.Payload{
			Action:     "closed",
			Repository: repo(),
			Sender:     &github.User{ID: 9, Login: "DevCat"},
			PullRequest: &github.PullRequest{
				Number:    42,
				Title:     "Add login",
				Body:      &body,
				State:     "closed",
				Merged:    true,
				Head:      &github.Branch{Ref: "feature/PROJ-12-login"},
				Additions: 120,
				Deletions: 30,
				CreatedAt: tp(t0),
				MergedAt:  tp(t0.Add(26 * time.Hour)),
			},
		},
	})

	res, err := github.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Created: 1}, res)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceGitHub, "github:pull_request:d-1")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityPullRequest, a.Type)
	assert.Equal(t, "merged", a.MetaString(model.MetaPRState))
	assert.True(t, a.MetaBool(model.MetaMerged))
	assert.Equal(t, "acme/api", a.Project.Alias)
	assert.True(t, a.Project.IsResolved())
	assert.Equal(t, "devcat@"+github.NoReplyDomain, a.Actor.Email)
	assert.True(t, a.Timestamp.Equal(t0.Add(26*time.Hour)))
	assert.ElementsMatch(t, []string{"PROJ-12", "PROJ-13"}, a.MetaStrings(model.MetaJiraKeys))
}

func TestTransform_LinkedLoginWinsOverPlaceholder(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	dev, err := env.Identities.FindOrCreate(ctx, "dev@example.com", "", "org-1")
	require.NoError(t, err)
	_, _, err = env.Identities.LinkAccount(ctx, dev.PrimaryEmail,
		model.Account{Source: model.SourceGitHub, ID: "9", Login: "devcat"})
	require.NoError(t, err)

	put(t, env, github.RawEvent{
		ID:        "d-2",
		EventType: "push",
		Payload: github.Payload{
			Repository: repo(),
			Sender:     &github.User{ID: 9, Login: "DevCat"},
			Pusher:     &github.Person{Name: "devcat", Email: "other@example.com"},
			Ref:        "refs/heads/main",
			HeadCommit: &github.Commit{ID: "abc", Message: "PROJ-1 fix", Timestamp: tp(t0)},
			Commits:    []github.Commit{{ID: "abc", Message: "PROJ-1 fix"}},
		},
	})

	_, err = github.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceGitHub, "github:push:d-2")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityCommit, a.Type)
	assert.Equal(t, "dev@example.com", a.Actor.Email)
	assert.Equal(t, dev.ID, a.Actor.ID)
	assert.Equal(t, "main", a.MetaString(model.MetaHeadRef))
	assert.Equal(t, []string{"PROJ-1"}, a.MetaStrings(model.MetaJiraKeys))
}

func TestTransform_SkipsUnmappedEvents(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	put(t, env, github.RawEvent{
		ID:        "d-3",
		EventType: "issues",
		Payload:   github.Payload{Action: "opened", Repository: repo(), Sender: &github.User{Login: "devcat"}},
	})
	put(t, env, github.RawEvent{
		ID:        "d-4",
		EventType: "pull_request",
		Payload: github.Payload{
			Action:      "synchronize",
			Repository:  repo(),
			Sender:      &github.User{Login: "devcat"},
			PullRequest: &github.PullRequest{Number: 1, State: "open"},
		},
	})

	res, err := github.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 2, Skipped: 2}, res)

	exists, err := env.Store.ActivityExists(ctx, model.SourceGitHub, "github:issues:d-3")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTransform_Deployments(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	put(t, env, github.RawEvent{
		ID:        "d-5",
		EventType: "deployment_status",
		Payload: github.Payload{
			Action:           "created",
			Repository:       repo(),
			Sender:           &github.User{Login: "deploybot"},
			Deployment:       &github.Deployment{ID: 7, SHA: "abc", Environment: "production"},
			DeploymentStatus: &github.DeploymentStatus{ID: 70, State: "FAILURE", CreatedAt: tp(t0)},
		},
	})

	tr := github.NewTransformer(env.Deps())
	res, err := tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceGitHub, "github:deployment_status:d-5")
	require.NoError(t, err)
	assert.Equal(t, model.ActivityDeployment, a.Type)
	assert.Equal(t, "failure", a.MetaString(model.MetaDeploymentState))
	assert.Equal(t, "production", a.MetaString(model.MetaEnvironment))

	res, err = tr.Transform(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, source.Result{Processed: 1, Skipped: 1}, res)
}

func TestTransform_ReceivedAtFallback(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	received := t0.Add(5 * time.Minute)
	put(t, env, github.RawEvent{
		ID:         "d-6",
		EventType:  "pull_request_review",
		ReceivedAt: &received,
		Payload: github.Payload{
			Action:      "submitted",
			Repository:  repo(),
			Review:      &github.Review{ID: 3, State: "APPROVED", User: &github.User{Login: "reviewer"}},
			PullRequest: &github.PullRequest{Number: 42, Title: "Add login"},
		},
	})

	_, err := github.NewTransformer(env.Deps()).Transform(ctx, nil)
	require.NoError(t, err)

	a, err := env.Store.GetActivityByRef(ctx, model.SourceGitHub, "github:pull_request_review:d-6")
	require.NoError(t, err)
	assert.Equal(t, "approved", a.MetaString(model.MetaReviewState))
	assert.True(t, a.Timestamp.Equal(received))
	assert.Equal(t, "reviewer@"+github.NoReplyDomain, a.Actor.Email)
}

func TestNewRawEvent(t *testing.T) {
	body := []byte(`{"action":"opened","repository":{"id":1,"full_name":"acme/api"},
		"pull_request":{"number":5,"title":"x","state":"open","merged":false}}`)

	ev, err := github.NewRawEvent("pull_request", "abc-123", body, t0)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", ev.ID)
	assert.Equal(t, "opened", ev.Payload.Action)
	require.NotNil(t, ev.Payload.PullRequest)
	assert.Equal(t, 5, ev.Payload.PullRequest.Number)

	_, err = github.NewRawEvent("push", "x", []byte("not json"), t0)
	assert.Error(t, err)
}
