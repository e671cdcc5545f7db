package testutil

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/identity"
	"github.com/nhle/orgpulse/internal/project"
	"github.com/nhle/orgpulse/internal/resolve"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/store"
)

// Env bundles an in-memory store with the services built on it.
type Env struct {
	Store      *store.SQLStore
	Identities *identity.Service
	Projects   *project.Service
	Resolver   *resolve.Resolver
}

// NewEnv builds a test store plus identity, project and resolve services
// with auto-creation enabled.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	st := NewTestStore(t)
	log := zerolog.Nop()
	ids := identity.New(st, log)
	projects := project.New(st, log)
	return &Env{
		Store:      st,
		Identities: ids,
		Projects:   projects,
		Resolver: resolve.New(ids, projects, resolve.Options{
			AutoCreateIdentities: true,
			AutoCreateProjects:   true,
		}, log),
	}
}

// Deps returns pipeline dependencies backed by the environment.
func (e *Env) Deps() source.Deps {
	return source.Deps{
		Raw:        e.Store,
		Activities: e.Store,
		Resolver:   e.Resolver,
		Logger:     zerolog.Nop(),
	}
}
