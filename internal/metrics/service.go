package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// ProjectFinder resolves a project id or alias.
type ProjectFinder interface {
	Find(ctx context.Context, idOrAlias string) (*model.Project, bool, error)
}

// IdentityResolver maps an email to an identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, email string) (string, bool, error)
	Get(ctx context.Context, id string) (*model.Identity, error)
}

// Service loads activities from the store and runs the engines.
type Service struct {
	activities store.ActivityStore
	projects   ProjectFinder
	identities IdentityResolver
	log        zerolog.Logger
}

func NewService(activities store.ActivityStore, projects ProjectFinder, identities IdentityResolver, log zerolog.Logger) *Service {
	return &Service{
		activities: activities,
		projects:   projects,
		identities: identities,
		log:        log.With().Str("component", "metrics").Logger(),
	}
}

// Space computes SPACE metrics for email. Activities of the identity
// owning email count too, whichever of its emails they carry.
func (s *Service) Space(ctx context.Context, orgID, email string, w Window) (SpaceMetrics, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return SpaceMetrics{}, errors.New("email must not be empty")
	}

	f := s.filter(orgID, w)
	f.ActorEmail = email
	var own []string
	if s.identities != nil {
		id, ok, err := s.identities.Resolve(ctx, email)
		if err != nil {
			return SpaceMetrics{}, err
		}
		if ok {
			f.ActorID = id
			ident, err := s.identities.Get(ctx, id)
			if err != nil {
				return SpaceMetrics{}, fmt.Errorf("loading identity %s: %w", id, err)
			}
			own = append([]string{ident.PrimaryEmail}, ident.AlternateEmails...)
		}
	}

	activities, err := s.activities.ListActivities(ctx, f)
	if err != nil {
		return SpaceMetrics{}, fmt.Errorf("loading activities for %s: %w", email, err)
	}
	return Space(email, w, activities, own...), nil
}

// Flow computes FLOW metrics for the project named by id or alias.
func (s *Service) Flow(ctx context.Context, orgID, project string, w Window) (FlowMetrics, error) {
	activities, err := s.projectActivities(ctx, orgID, project, model.SourceJira, w)
	if err != nil {
		return FlowMetrics{}, err
	}
	return Flow(project, w, activities), nil
}

// Dora computes DORA metrics for the project named by id or alias.
func (s *Service) Dora(ctx context.Context, orgID, project string, w Window) (DoraMetrics, error) {
	activities, err := s.projectActivities(ctx, orgID, project, model.SourceGitHub, w)
	if err != nil {
		return DoraMetrics{}, err
	}
	return Dora(project, w, activities), nil
}

// projectActivities matches activities by the resolved project id or by
// any alias of the project. An unknown project still matches its raw alias.
func (s *Service) projectActivities(ctx context.Context, orgID, project string, src model.Source, w Window) ([]model.Activity, error) {
	if model.NormalizeAlias(project) == "" {
		return nil, errors.New("project must not be empty")
	}

	match := &store.ProjectMatch{Aliases: []string{project}}
	if s.projects != nil {
		p, ok, err := s.projects.Find(ctx, project)
		if err != nil {
			return nil, err
		}
		if ok {
			match.ID = p.ID
			match.Aliases = append(match.Aliases, p.Aliases[src]...)
		}
	}

	f := s.filter(orgID, w)
	f.Sources = []model.Source{src}
	f.Project = match

	activities, err := s.activities.ListActivities(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("loading %s activities for %s: %w", src, project, err)
	}
	s.log.Debug().Str("project", project).Str("source", string(src)).Int("activities", len(activities)).Msg("activities loaded")
	return activities, nil
}

func (s *Service) filter(orgID string, w Window) store.ActivityFilter {
	start, end := w.Start, w.End
	return store.ActivityFilter{OrgID: orgID, Start: &start, End: &end}
}
