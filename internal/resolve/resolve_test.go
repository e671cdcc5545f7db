package resolve_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/identity"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/project"
	"github.com/nhle/orgpulse/internal/resolve"
	"github.com/nhle/orgpulse/internal/testutil"
)

func newResolver(t *testing.T, opts resolve.Options) (*resolve.Resolver, *identity.Service, *project.Service) {
	t.Helper()
	st := testutil.NewTestStore(t)
	ids := identity.New(st, zerolog.Nop())
	projects := project.New(st, zerolog.Nop())
	return resolve.New(ids, projects, opts, zerolog.Nop()), ids, projects
}

func TestResolver_AutoCreate(t *testing.T) {
	r, ids, projects := newResolver(t, resolve.Options{AutoCreateIdentities: true, AutoCreateProjects: true})
	ctx := context.Background()

	actor := r.Actor(ctx, " Dev@Example.com", "org-1")
	assert.Equal(t, "dev@example.com", actor.Email)
	require.True(t, actor.IsResolved())

	got, err := ids.Get(ctx, actor.ID)
	require.NoError(t, err)
	assert.Equal(t, "org-1", got.OrgID)

	proj := r.Project(ctx, "PROJ", model.SourceJira, "org-1")
	assert.Equal(t, "proj", proj.Alias)
	require.True(t, proj.IsResolved())

	again := r.Project(ctx, "proj", model.SourceJira, "org-1")
	assert.Equal(t, proj.ID, again.ID)

	all, err := projects.List(ctx, "org-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolver_LookupOnly(t *testing.T) {
	r, ids, projects := newResolver(t, resolve.Options{})
	ctx := context.Background()

	actor := r.Actor(ctx, "dev@example.com", "org-1")
	assert.Equal(t, model.IdentityRef{Email: "dev@example.com"}, actor)

	proj := r.Project(ctx, "alpha", model.SourceEmail, "org-1")
	assert.Equal(t, model.ProjectRef{Alias: "alpha"}, proj)

	dev, err := ids.FindOrCreate(ctx, "dev@example.com", "", "org-1")
	require.NoError(t, err)
	p, err := projects.FindOrCreate(ctx, "alpha", model.SourceEmail, "org-1")
	require.NoError(t, err)

	assert.Equal(t, dev.ID, r.Actor(ctx, "DEV@example.com", "org-1").ID)
	assert.Equal(t, p.ID, r.Project(ctx, "Alpha", model.SourceEmail, "org-1").ID)
	assert.False(t, r.Project(ctx, "alpha", model.SourceSlack, "org-1").IsResolved())
}

func TestResolver_EmptyValuesStayUnresolved(t *testing.T) {
	r, _, _ := newResolver(t, resolve.Options{AutoCreateIdentities: true, AutoCreateProjects: true})
	ctx := context.Background()

	assert.Equal(t, model.IdentityRef{}, r.Actor(ctx, "  ", "org-1"))
	assert.Equal(t, model.ProjectRef{}, r.Project(ctx, "", model.SourceSlack, "org-1"))

	_, ok := r.EmailForAccount(ctx, model.SourceSlack, "U404")
	assert.False(t, ok)
}

func TestResolver_EmailForAccount(t *testing.T) {
	r, ids, _ := newResolver(t, resolve.Options{})
	ctx := context.Background()

	_, err := ids.FindOrCreate(ctx, "dev@example.com", "", "org-1")
	require.NoError(t, err)
	_, _, err = ids.LinkAccount(ctx, "dev@example.com", model.Account{Source: model.SourceSlack, ID: "U1"})
	require.NoError(t, err)

	email, ok := r.EmailForAccount(ctx, model.SourceSlack, "U1")
	require.True(t, ok)
	assert.Equal(t, "dev@example.com", email)
}
