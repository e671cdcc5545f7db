// Package project resolves per-source project identifiers (repositories,
// channels, Jira keys, email subject tokens) to canonical projects.
package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// Service resolves and maintains projects.
type Service struct {
	store store.ProjectStore
	log   zerolog.Logger
}

func New(st store.ProjectStore, log zerolog.Logger) *Service {
	return &Service{store: st, log: log.With().Str("component", "project").Logger()}
}

// FindByAlias matches alias under source, or under any source when source
// is nil. A miss returns ok=false.
func (s *Service) FindByAlias(ctx context.Context, alias string, source *model.Source) (*model.Project, bool, error) {
	p, err := s.store.FindProjectByAlias(ctx, alias, source)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("finding project %q: %w", alias, err)
	}
	return p, true, nil
}

// Find accepts either a canonical project id or an alias of any source.
func (s *Service) Find(ctx context.Context, idOrAlias string) (*model.Project, bool, error) {
	p, err := s.store.GetProject(ctx, idOrAlias)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	return s.FindByAlias(ctx, idOrAlias, nil)
}

// FindOrCreate returns the project owning alias under source, creating one
// with that single alias on a miss.
func (s *Service) FindOrCreate(ctx context.Context, alias string, source model.Source, orgID string) (*model.Project, error) {
	alias = model.NormalizeAlias(alias)
	if alias == "" {
		return nil, errors.New("alias must not be empty")
	}

	p, ok, err := s.FindByAlias(ctx, alias, &source)
	if err != nil || ok {
		return p, err
	}

	id, err := s.newID(ctx, alias)
	if err != nil {
		return nil, err
	}
	p = &model.Project{
		ID:      id,
		OrgID:   orgID,
		Name:    model.ProjectNameFromAlias(alias),
		Aliases: map[model.Source][]string{source: {alias}},
	}
	err = s.store.CreateProject(ctx, p)
	if errors.Is(err, store.ErrAliasTaken) {
		// Lost a race: another creator claimed the alias first.
		return s.store.FindProjectByAlias(ctx, alias, &source)
	}
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("alias", alias).Str("source", string(source)).Str("id", id).Msg("project created")
	return p, nil
}

// newID derives the project id from alias, adding a short suffix when the
// slug is already used.
func (s *Service) newID(ctx context.Context, alias string) (string, error) {
	base := model.ProjectIDFromAlias(alias)
	if base == "" {
		base = "project"
	}
	id := base
	for i := 0; i < 5; i++ {
		_, err := s.store.GetProject(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking project id %s: %w", id, err)
		}
		id = base + "-" + uuid.New().String()[:8]
	}
	return "", fmt.Errorf("no free project id for %q", alias)
}

// AddAlias adds alias under source. It fails with store.ErrAliasTaken when
// another project owns the alias.
func (s *Service) AddAlias(ctx context.Context, projectID string, source model.Source, alias string) error {
	if model.NormalizeAlias(alias) == "" {
		return errors.New("alias must not be empty")
	}
	return s.store.AddProjectAlias(ctx, projectID, source, alias)
}

func (s *Service) RemoveAlias(ctx context.Context, projectID string, source model.Source, alias string) error {
	return s.store.RemoveProjectAlias(ctx, projectID, source, alias)
}

// Deactivate soft-deletes a project. Its aliases keep resolving.
func (s *Service) Deactivate(ctx context.Context, projectID string) error {
	return s.store.SetProjectActive(ctx, projectID, false)
}

func (s *Service) Get(ctx context.Context, id string) (*model.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *Service) List(ctx context.Context, orgID string, includeInactive bool) ([]model.Project, error) {
	return s.store.ListProjects(ctx, orgID, includeInactive)
}
