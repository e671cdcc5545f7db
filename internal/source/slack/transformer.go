package slack

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
)

// mentionPattern matches user mentions such as <@U024BE7LH> or
// <@U024BE7LH|bob>.
var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// Mapper turns each Slack message event into one message activity.
type Mapper struct {
	resolver source.Resolver
}

// NewTransformer wires the Slack mapper into the shared pipeline.
func NewTransformer(deps source.Deps) *source.Pipeline {
	return source.NewPipeline(&Mapper{resolver: deps.Resolver}, deps)
}

func (m *Mapper) Source() model.Source {
	return model.SourceSlack
}

func (m *Mapper) Map(ctx context.Context, rec model.RawRecord) ([]source.Candidate, error) {
	var ev RawEvent
	if err := source.Decode(rec, &ev); err != nil {
		return nil, err
	}
	if ev.EventID == "" {
		return nil, &source.DecodeError{Ref: rec.Ref, Err: errors.New("event has no id")}
	}

	ts, ok := ev.EventTime()
	if !ok {
		ts = rec.ReceivedAt
	}

	email := ""
	if ev.UserEmail != nil {
		email = *ev.UserEmail
	}
	if email == "" && ev.UserID != "" {
		email = m.lookup(ctx, ev.UserID)
	}

	a := model.Activity{
		OrgID:       rec.OrgID,
		Type:        model.ActivityMessage,
		Actor:       model.UnresolvedActor(email),
		Project:     model.UnresolvedProject(ev.ChannelID),
		Timestamp:   ts,
		SourceRefID: fmt.Sprintf("slack:%s", ev.EventID),
		Metadata: map[string]any{
			model.MetaChannelID: ev.ChannelID,
			model.MetaText:      ev.Text,
		},
	}
	if ev.ThreadTS != "" {
		a.Metadata[model.MetaThreadTS] = ev.ThreadTS
	}
	if mentions := m.mentions(ctx, ev); len(mentions) > 0 {
		a.Metadata[model.MetaMentions] = mentions
	}

	return []source.Candidate{source.SkipMissingActor(a)}, nil
}

// mentions unions the provided mention emails with the emails of mentioned
// users that are linked to an identity.
func (m *Mapper) mentions(ctx context.Context, ev RawEvent) []string {
	seen := map[string]bool{}
	var out []string
	add := func(email string) {
		email = model.NormalizeEmail(email)
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		out = append(out, email)
	}

	for _, e := range ev.MentionEmails {
		add(e)
	}
	for _, match := range mentionPattern.FindAllStringSubmatch(ev.Text, -1) {
		add(m.lookup(ctx, match[1]))
	}
	return out
}

func (m *Mapper) lookup(ctx context.Context, userID string) string {
	if m.resolver == nil {
		return ""
	}
	email, _ := m.resolver.EmailForAccount(ctx, model.SourceSlack, userID)
	return email
}
