package resolve

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/identity"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/project"
)

// Options toggles lazy creation of canonical records during transforms.
type Options struct {
	AutoCreateIdentities bool
	AutoCreateProjects   bool
}

// Resolver binds raw actor emails and project aliases opportunistically.
// Every failure degrades to an unresolved reference.
type Resolver struct {
	identities *identity.Service
	projects   *project.Service
	opts       Options
	log        zerolog.Logger
}

func New(identities *identity.Service, projects *project.Service, opts Options, log zerolog.Logger) *Resolver {
	return &Resolver{
		identities: identities,
		projects:   projects,
		opts:       opts,
		log:        log.With().Str("component", "resolve").Logger(),
	}
}

// Actor returns a reference to the identity owning email, creating one
// when auto-creation is on.
func (r *Resolver) Actor(ctx context.Context, email, orgID string) model.IdentityRef {
	ref := model.UnresolvedActor(email)
	if ref.Email == "" {
		return ref
	}

	if r.opts.AutoCreateIdentities {
		ident, err := r.identities.FindOrCreate(ctx, ref.Email, "", orgID)
		if err != nil {
			r.log.Warn().Err(err).Str("email", ref.Email).Msg("identity resolution failed")
			return ref
		}
		return ref.Resolve(ident.ID)
	}

	id, ok, err := r.identities.Resolve(ctx, ref.Email)
	if err != nil {
		r.log.Warn().Err(err).Str("email", ref.Email).Msg("identity resolution failed")
	}
	if !ok {
		return ref
	}
	return ref.Resolve(id)
}

// Project returns a reference to the project owning alias under src,
// creating one when auto-creation is on.
func (r *Resolver) Project(ctx context.Context, alias string, src model.Source, orgID string) model.ProjectRef {
	ref := model.UnresolvedProject(alias)
	if ref.Alias == "" {
		return ref
	}

	if r.opts.AutoCreateProjects {
		p, err := r.projects.FindOrCreate(ctx, ref.Alias, src, orgID)
		if err != nil {
			r.log.Warn().Err(err).Str("alias", ref.Alias).Msg("project resolution failed")
			return ref
		}
		return ref.Resolve(p.ID)
	}

	p, ok, err := r.projects.FindByAlias(ctx, ref.Alias, &src)
	if err != nil {
		r.log.Warn().Err(err).Str("alias", ref.Alias).Msg("project resolution failed")
	}
	if !ok {
		return ref
	}
	return ref.Resolve(p.ID)
}

// EmailForAccount returns the primary email of the identity linked to a
// source account.
func (r *Resolver) EmailForAccount(ctx context.Context, src model.Source, accountID string) (string, bool) {
	ident, ok, err := r.identities.FindByAccount(ctx, src, accountID)
	if err != nil {
		r.log.Warn().Err(err).Str("account", accountID).Msg("account lookup failed")
		return "", false
	}
	if !ok {
		return "", false
	}
	return ident.PrimaryEmail, true
}
