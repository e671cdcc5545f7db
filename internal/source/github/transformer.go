package github

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/orgpulse/internal/crossref"
	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
)

// NoReplyDomain is used to build placeholder emails for unknown logins.
const NoReplyDomain = "users.noreply.github.com"

var eventTypes = map[string]model.ActivityType{
	"push":                model.ActivityCommit,
	"pull_request":        model.ActivityPullRequest,
	"pull_request_review": model.ActivityReview,
	"deployment":          model.ActivityDeployment,
	"deployment_status":   model.ActivityDeployment,
}

var pullRequestActions = map[string]bool{
	"opened":   true,
	"closed":   true,
	"merged":   true,
	"reopened": true,
}

// Mapper turns webhook deliveries into commit, pull_request, review and
// deployment activities. It caches login to email lookups for one run.
type Mapper struct {
	resolver source.Resolver
	logins   map[string]string
}

func NewMapper(resolver source.Resolver) *Mapper {
	return &Mapper{resolver: resolver, logins: map[string]string{}}
}

// NewTransformer wires the GitHub mapper into the shared pipeline.
func NewTransformer(deps source.Deps) *source.Pipeline {
	return source.NewPipeline(NewMapper(deps.Resolver), deps)
}

func (m *Mapper) Source() model.Source {
	return model.SourceGitHub
}

// Reset drops the login cache.
func (m *Mapper) Reset() {
	m.logins = map[string]string{}
}

// ActivityTypeFor returns the activity type for an event/action pair.
func ActivityTypeFor(eventType, action string) (model.ActivityType, bool) {
	typ, ok := eventTypes[eventType]
	if !ok {
		return "", false
	}
	if eventType == "pull_request" && !pullRequestActions[action] {
		return "", false
	}
	return typ, true
}

func (m *Mapper) Map(ctx context.Context, rec model.RawRecord) ([]source.Candidate, error) {
	var ev RawEvent
	if err := source.Decode(rec, &ev); err != nil {
		return nil, err
	}
	if ev.ID == "" || ev.EventType == "" {
		return nil, &source.DecodeError{Ref: rec.Ref, Err: errors.New("event has no id or type")}
	}

	ref := fmt.Sprintf("github:%s:%s", ev.EventType, ev.ID)
	p := ev.Payload

	typ, ok := ActivityTypeFor(ev.EventType, p.Action)
	if !ok {
		return []source.Candidate{{
			Activity: model.Activity{SourceRefID: ref},
			Skip:     fmt.Sprintf("unmapped event %s/%s", ev.EventType, p.Action),
		}}, nil
	}

	a := model.Activity{
		OrgID:       rec.OrgID,
		Type:        typ,
		SourceRefID: ref,
		Metadata:    map[string]any{},
	}
	if p.Repository != nil {
		a.Project = model.UnresolvedProject(p.Repository.FullName)
	}
	if p.Action != "" {
		a.Metadata[model.MetaEventAction] = p.Action
	}

	var (
		actor        *User
		payloadEmail string
		ts           *time.Time
	)

	switch ev.EventType {
	case "push":
		actor = p.Sender
		if p.Pusher != nil {
			payloadEmail = p.Pusher.Email
		}
		messages := []string{p.Ref}
		if p.HeadCommit != nil {
			ts = p.HeadCommit.Timestamp
			a.Metadata[model.MetaCommitSHA] = p.HeadCommit.ID
			if payloadEmail == "" && p.HeadCommit.Author != nil {
				payloadEmail = p.HeadCommit.Author.Email
			}
		}
		for _, c := range p.Commits {
			messages = append(messages, c.Message)
		}
		if p.HeadCommit != nil && len(p.Commits) == 0 {
			messages = append(messages, p.HeadCommit.Message)
		}
		a.Metadata[model.MetaHeadRef] = strings.TrimPrefix(p.Ref, "refs/heads/")
		a.Metadata[model.MetaCommitCount] = len(p.Commits)
		setJiraKeys(a.Metadata, messages...)

	case "pull_request":
		pr := p.PullRequest
		if pr == nil {
			return nil, &source.DecodeError{Ref: rec.Ref, Err: errors.New("pull_request event without pull_request")}
		}
		actor = firstUser(p.Sender, pr.User)
		ts = pullRequestTime(p.Action, pr)
		state := pr.State
		if pr.Merged || p.Action == "merged" {
			state = "merged"
		}
		a.Metadata[model.MetaPRNumber] = pr.Number
		a.Metadata[model.MetaPRTitle] = pr.Title
		a.Metadata[model.MetaPRState] = state
		a.Metadata[model.MetaMerged] = pr.Merged
		a.Metadata[model.MetaAdditions] = pr.Additions
		a.Metadata[model.MetaDeletions] = pr.Deletions
		a.Metadata[model.MetaCommitCount] = pr.Commits
		texts := []string{pr.Title}
		if pr.Head != nil {
			a.Metadata[model.MetaHeadRef] = pr.Head.Ref
			texts = append(texts, pr.Head.Ref)
		}
		if pr.Body != nil {
			texts = append(texts, *pr.Body)
		}
		setJiraKeys(a.Metadata, texts...)

	case "pull_request_review":
		rv := p.Review
		if rv != nil {
			actor = firstUser(rv.User, p.Sender)
			ts = rv.SubmittedAt
			a.Metadata[model.MetaReviewState] = strings.ToLower(rv.State)
		} else {
			actor = p.Sender
		}
		if p.PullRequest != nil {
			a.Metadata[model.MetaPRNumber] = p.PullRequest.Number
			a.Metadata[model.MetaPRTitle] = p.PullRequest.Title
		}

	case "deployment":
		d := p.Deployment
		a.Metadata[model.MetaDeploymentState] = "pending"
		if d != nil {
			actor = firstUser(d.Creator, p.Sender)
			ts = d.CreatedAt
			a.Metadata[model.MetaEnvironment] = d.Environment
			a.Metadata[model.MetaCommitSHA] = d.SHA
		} else {
			actor = p.Sender
		}

	case "deployment_status":
		st := p.DeploymentStatus
		if st == nil {
			return nil, &source.DecodeError{Ref: rec.Ref, Err: errors.New("deployment_status event without status")}
		}
		actor = firstUser(st.Creator, p.Sender)
		ts = st.CreatedAt
		a.Metadata[model.MetaDeploymentState] = strings.ToLower(st.State)
		env := st.Environment
		if p.Deployment != nil {
			if env == "" {
				env = p.Deployment.Environment
			}
			a.Metadata[model.MetaCommitSHA] = p.Deployment.SHA
		}
		a.Metadata[model.MetaEnvironment] = env
	}

	if actor != nil {
		a.Metadata[model.MetaLogin] = actor.Login
		if payloadEmail == "" && actor.Email != nil {
			payloadEmail = *actor.Email
		}
	}
	a.Actor = model.UnresolvedActor(m.actorEmail(ctx, actor, payloadEmail))

	switch {
	case ts != nil && !ts.IsZero():
		a.Timestamp = *ts
	case ev.ReceivedAt != nil:
		a.Timestamp = *ev.ReceivedAt
	default:
		a.Timestamp = rec.ReceivedAt
	}

	return []source.Candidate{source.SkipMissingActor(a)}, nil
}

// actorEmail resolves a login to an email: run cache, then linked
// identity, then the payload email, then a no-reply placeholder.
func (m *Mapper) actorEmail(ctx context.Context, actor *User, payloadEmail string) string {
	if actor == nil || actor.Login == "" {
		return payloadEmail
	}
	login := strings.ToLower(actor.Login)
	if email, ok := m.logins[login]; ok {
		return email
	}

	email := ""
	if m.resolver != nil {
		if found, ok := m.resolver.EmailForAccount(ctx, model.SourceGitHub, login); ok {
			email = found
		}
	}
	if email == "" {
		email = payloadEmail
	}
	if email == "" {
		email = login + "@" + NoReplyDomain
	}

	m.logins[login] = email
	return email
}

func pullRequestTime(action string, pr *PullRequest) *time.Time {
	switch {
	case pr.Merged && pr.MergedAt != nil:
		return pr.MergedAt
	case action == "closed" && pr.ClosedAt != nil:
		return pr.ClosedAt
	case action == "opened" && pr.CreatedAt != nil:
		return pr.CreatedAt
	case pr.UpdatedAt != nil:
		return pr.UpdatedAt
	default:
		return pr.CreatedAt
	}
}

func firstUser(users ...*User) *User {
	for _, u := range users {
		if u != nil && u.Login != "" {
			return u
		}
	}
	return nil
}

func setJiraKeys(meta map[string]any, texts ...string) {
	if keys := crossref.KeysIn(texts...); len(keys) > 0 {
		meta[model.MetaJiraKeys] = keys
	}
}
