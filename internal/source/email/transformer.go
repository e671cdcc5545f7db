package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
)

// Mapper turns each email into one message activity.
type Mapper struct{}

// NewTransformer wires the email mapper into the shared pipeline.
func NewTransformer(deps source.Deps) *source.Pipeline {
	return source.NewPipeline(Mapper{}, deps)
}

func (Mapper) Source() model.Source {
	return model.SourceEmail
}

func (Mapper) Map(_ context.Context, rec model.RawRecord) ([]source.Candidate, error) {
	var msg RawMessage
	if err := source.Decode(rec, &msg); err != nil {
		return nil, err
	}
	messageID := strings.Trim(strings.TrimSpace(msg.MessageID), "<>")
	if messageID == "" {
		return nil, &source.DecodeError{Ref: rec.Ref, Err: errors.New("message has no message id")}
	}

	ts := msg.Date
	if ts.IsZero() {
		ts = rec.ReceivedAt
	}

	a := model.Activity{
		OrgID:       rec.OrgID,
		Type:        model.ActivityMessage,
		Actor:       model.UnresolvedActor(addressOf(msg.From)),
		Project:     model.UnresolvedProject(ProjectAliasFromSubject(msg.Subject)),
		Timestamp:   ts,
		SourceRefID: fmt.Sprintf("email:%s", messageID),
		Metadata: map[string]any{
			model.MetaSubject: msg.Subject,
		},
	}
	if msg.ThreadID != "" {
		a.Metadata[model.MetaThreadID] = msg.ThreadID
	}

	var recipients []string
	seen := map[string]bool{}
	for _, r := range msg.Receivers() {
		addr := model.NormalizeEmail(addressOf(r))
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		recipients = append(recipients, addr)
	}
	if len(recipients) > 0 {
		a.Metadata[model.MetaRecipients] = recipients
	}

	return []source.Candidate{source.SkipMissingActor(a)}, nil
}

// addressOf extracts the bare address from "Name <addr>" forms. Values that
// do not parse are returned trimmed.
func addressOf(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		return addr.Address
	}
	return s
}
