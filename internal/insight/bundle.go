// Package insight assembles the aggregates handed to a text-generation
// service and asks it for a summary.
package insight

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/metrics"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// defaultActivityLimit caps the raw activities included in a bundle.
const defaultActivityLimit = 200

// Bundle is the serializable input of the insight layer.
type Bundle struct {
	OrgID      string                 `json:"orgId"`
	Window     metrics.Window         `json:"window"`
	Space      []metrics.SpaceMetrics `json:"space"`
	Flow       []metrics.FlowMetrics  `json:"flow"`
	Dora       []metrics.DoraMetrics  `json:"dora"`
	Activities []model.Activity       `json:"activities"`
}

// MetricsCalculator is the part of metrics.Service a Builder uses.
type MetricsCalculator interface {
	Space(ctx context.Context, orgID, email string, w metrics.Window) (metrics.SpaceMetrics, error)
	Flow(ctx context.Context, orgID, project string, w metrics.Window) (metrics.FlowMetrics, error)
	Dora(ctx context.Context, orgID, project string, w metrics.Window) (metrics.DoraMetrics, error)
}

// Builder collects a Bundle for every identity and active project of an
// organization.
type Builder struct {
	metrics    MetricsCalculator
	identities store.IdentityStore
	projects   store.ProjectStore
	activities store.ActivityStore

	// ActivityLimit caps Bundle.Activities; zero uses the default.
	ActivityLimit int

	log zerolog.Logger
}

func NewBuilder(calc MetricsCalculator, identities store.IdentityStore, projects store.ProjectStore,
	activities store.ActivityStore, log zerolog.Logger) *Builder {
	return &Builder{
		metrics:    calc,
		identities: identities,
		projects:   projects,
		activities: activities,
		log:        log.With().Str("component", "insight").Logger(),
	}
}

// Build computes SPACE per identity and FLOW and DORA per active project.
func (b *Builder) Build(ctx context.Context, orgID string, w metrics.Window) (*Bundle, error) {
	bundle := &Bundle{
		OrgID:      orgID,
		Window:     w,
		Space:      []metrics.SpaceMetrics{},
		Flow:       []metrics.FlowMetrics{},
		Dora:       []metrics.DoraMetrics{},
		Activities: []model.Activity{},
	}

	people, err := b.identities.ListIdentities(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	for _, p := range people {
		m, err := b.metrics.Space(ctx, orgID, p.PrimaryEmail, w)
		if err != nil {
			return nil, fmt.Errorf("space metrics for %s: %w", p.PrimaryEmail, err)
		}
		if m.TotalActivities > 0 {
			bundle.Space = append(bundle.Space, m)
		}
	}

	projects, err := b.projects.ListProjects(ctx, orgID, false)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	for _, p := range projects {
		if len(p.Aliases[model.SourceJira]) > 0 {
			fm, err := b.metrics.Flow(ctx, orgID, p.ID, w)
			if err != nil {
				return nil, fmt.Errorf("flow metrics for %s: %w", p.ID, err)
			}
			bundle.Flow = append(bundle.Flow, fm)
		}
		if len(p.Aliases[model.SourceGitHub]) > 0 {
			dm, err := b.metrics.Dora(ctx, orgID, p.ID, w)
			if err != nil {
				return nil, fmt.Errorf("dora metrics for %s: %w", p.ID, err)
			}
			bundle.Dora = append(bundle.Dora, dm)
		}
	}

	limit := b.ActivityLimit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	start, end := w.Start, w.End
	acts, err := b.activities.ListActivities(ctx, store.ActivityFilter{
		OrgID: orgID,
		Start: &start,
		End:   &end,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	bundle.Activities = append(bundle.Activities, acts...)

	b.log.Debug().
		Int("people", len(bundle.Space)).
		Int("flow", len(bundle.Flow)).
		Int("dora", len(bundle.Dora)).
		Int("activities", len(bundle.Activities)).
		Msg("insight bundle built")
	return bundle, nil
}

const systemPrompt = "You summarize engineering activity metrics for team leads. " +
	"The user message is a JSON bundle of SPACE, FLOW and DORA metrics. " +
	"Point out notable trends and risks in a few short paragraphs."

// Summarize sends the marshaled bundle to completer and returns its text.
func Summarize(ctx context.Context, completer Completer, bundle *Bundle) (string, error) {
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshaling insight bundle: %w", err)
	}
	return completer.GenerateCompletion(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: string(data)},
	}, Options{})
}
