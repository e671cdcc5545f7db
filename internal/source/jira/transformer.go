package jira

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/orgpulse/internal/crossref"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
)

// Mapper fans one raw issue out into a ticket_created activity, one
// status_change per transition and one ticket_updated per worklog.
type Mapper struct {
	resolver source.Resolver
}

// NewTransformer wires the Jira mapper into the shared pipeline.
func NewTransformer(deps source.Deps) *source.Pipeline {
	return source.NewPipeline(&Mapper{resolver: deps.Resolver}, deps)
}

func (m *Mapper) Source() model.Source {
	return model.SourceJira
}

func (m *Mapper) Map(ctx context.Context, rec model.RawRecord) ([]source.Candidate, error) {
	var issue RawIssue
	if err := source.Decode(rec, &issue); err != nil {
		return nil, err
	}
	if issue.Ticket == "" {
		return nil, &source.DecodeError{Ref: rec.Ref, Err: errors.New("issue has no ticket key")}
	}

	alias := issue.ProjectKey
	if alias == "" {
		alias = crossref.ProjectKey(issue.Ticket)
	}
	project := model.UnresolvedProject(alias)

	base := func(ref string, typ model.ActivityType, email string, ts time.Time) model.Activity {
		if ts.IsZero() {
			ts = issue.Created.Time
		}
		if ts.IsZero() {
			ts = rec.ReceivedAt
		}
		return model.Activity{
			OrgID:       rec.OrgID,
			Type:        typ,
			Actor:       model.UnresolvedActor(email),
			Project:     project,
			Timestamp:   ts,
			SourceRefID: ref,
			Metadata:    map[string]any{model.MetaTicketID: issue.Ticket},
		}
	}

	var out []source.Candidate

	created := base(fmt.Sprintf("jira:%s:created", issue.Ticket),
		model.ActivityTicketCreated, m.email(ctx, issue.Reporter), issue.Created.Time)
	created.Metadata[model.MetaSummary] = issue.Summary
	if issue.IssueType != nil {
		created.Metadata[model.MetaIssueType] = *issue.IssueType
	}
	if issue.Priority != nil {
		created.Metadata[model.MetaPriority] = *issue.Priority
	}
	out = append(out, source.SkipMissingActor(created))

	for i, sc := range issue.StatusChanges {
		a := base(fmt.Sprintf("jira:%s:status:%d", issue.Ticket, i),
			model.ActivityStatusChange, m.email(ctx, sc.Author), sc.Created.Time)
		a.Metadata[model.MetaFromStatus] = sc.FromString
		a.Metadata[model.MetaToStatus] = sc.ToString
		out = append(out, source.SkipMissingActor(a))
	}

	for i, w := range issue.Worklogs {
		a := base(fmt.Sprintf("jira:%s:worklog:%d", issue.Ticket, i),
			model.ActivityTicketUpdated, m.email(ctx, w.Author), w.Started.Time)
		a.Metadata[model.MetaTimeSpentSeconds] = w.TimeSpentSeconds
		out = append(out, source.SkipMissingActor(a))
	}

	return out, nil
}

// email returns the user's email, falling back to the identity linked to
// the Jira account id.
func (m *Mapper) email(ctx context.Context, u *RawUser) string {
	if u == nil {
		return ""
	}
	if u.Email != "" {
		return u.Email
	}
	if u.AccountID != "" && m.resolver != nil {
		if email, ok := m.resolver.EmailForAccount(ctx, model.SourceJira, u.AccountID); ok {
			return email
		}
	}
	return ""
}
