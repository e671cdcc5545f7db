package identity_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/orgpulse/internal/identity"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/testutil"
)

func newService(t *testing.T) *identity.Service {
	t.Helper()
	return identity.New(testutil.NewTestStore(t), zerolog.Nop())
}

func TestResolve_NormalizesAndNeverCreates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, ok, err := svc.Resolve(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all, "resolve must not create identities")

	created, err := svc.FindOrCreate(ctx, "alice@example.com", "", "org-1")
	require.NoError(t, err)

	id, ok, err := svc.Resolve(ctx, "  ALICE@Example.COM ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.ID, id)
}

func TestFindOrCreate_DefaultsAndReuse(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.FindOrCreate(ctx, "Bob.Builder@Example.com", "", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "bob.builder@example.com", first.PrimaryEmail)
	assert.Equal(t, "bob.builder", first.DisplayName)
	assert.Empty(t, first.AlternateEmails)

	second, err := svc.FindOrCreate(ctx, "bob.builder@example.com", "Robert", "org-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "bob.builder", second.DisplayName)

	_, err = svc.FindOrCreate(ctx, "  ", "", "org-1")
	assert.Error(t, err)
}

func TestAlternateEmails(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	alice, err := svc.FindOrCreate(ctx, "alice@example.com", "Alice", "org-1")
	require.NoError(t, err)
	_, err = svc.FindOrCreate(ctx, "bob@example.com", "Bob", "org-1")
	require.NoError(t, err)

	require.NoError(t, svc.AddAlternateEmail(ctx, "alice@example.com", "Alice@Personal.dev"))
	require.NoError(t, svc.AddAlternateEmail(ctx, "alice@example.com", "alice@personal.dev"))
	require.NoError(t, svc.AddAlternateEmail(ctx, "alice@example.com", "alice@example.com"))

	got, err := svc.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@personal.dev"}, got.AlternateEmails)

	id, ok, err := svc.Resolve(ctx, "alice@personal.dev")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, alice.ID, id)

	err = svc.AddAlternateEmail(ctx, "alice@example.com", "bob@example.com")
	assert.ErrorIs(t, err, identity.ErrEmailConflict)
}

func TestLinkAccount(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, ok, err := svc.LinkAccount(ctx, "ghost@example.com", model.Account{Source: model.SourceSlack, ID: "U1"})
	require.NoError(t, err)
	assert.False(t, ok, "linking never creates an identity")

	dev, err := svc.FindOrCreate(ctx, "dev@example.com", "", "org-1")
	require.NoError(t, err)

	linked, ok, err := svc.LinkAccount(ctx, "dev@example.com",
		model.Account{Source: model.SourceGitHub, ID: "1001", Login: "DevCat"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "devcat", linked.GitHubLogin)

	_, _, err = svc.LinkAccount(ctx, "dev@example.com",
		model.Account{Source: model.SourceSlack, ID: "U42", TeamID: "T1"})
	require.NoError(t, err)
	_, _, err = svc.LinkAccount(ctx, "dev@example.com",
		model.Account{Source: model.SourceJira, ID: "5b10a2844c20165700ede21g"})
	require.NoError(t, err)

	for _, acct := range []model.Account{
		{Source: model.SourceGitHub, ID: "devcat"},
		{Source: model.SourceSlack, ID: "U42"},
		{Source: model.SourceJira, ID: "5b10a2844c20165700ede21g"},
	} {
		found, ok, err := svc.FindByAccount(ctx, acct.Source, acct.ID)
		require.NoError(t, err)
		require.True(t, ok, acct.Source)
		assert.Equal(t, dev.ID, found.ID)
	}

	got, err := svc.Get(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1", got.SlackTeamID)
	assert.Equal(t, "1001", got.GitHubID)
}
