package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// Fetcher lists messages of a mailbox received since a point in time.
type Fetcher interface {
	FetchSince(ctx context.Context, mailbox string, since time.Time) ([]RawMessage, error)
}

// Collector copies mailbox envelopes into raw records.
type Collector struct {
	fetcher Fetcher
	raw     store.RawStore
	orgID   string
	mailbox string
	log     zerolog.Logger
}

func NewCollector(fetcher Fetcher, raw store.RawStore, orgID, mailbox string, log zerolog.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		raw:     raw,
		orgID:   orgID,
		mailbox: mailbox,
		log:     log.With().Str("collector", "email").Logger(),
	}
}

// Collect stores every message received since since and returns how many
// were stored.
func (c *Collector) Collect(ctx context.Context, since time.Time) (int, error) {
	messages, err := c.fetcher.FetchSince(ctx, c.mailbox, since)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", c.mailbox, err)
	}

	stored := 0
	for _, msg := range messages {
		if err := Store(ctx, c.raw, c.orgID, msg); err != nil {
			return stored, err
		}
		stored++
	}

	c.log.Info().Int("messages", stored).Str("mailbox", c.mailbox).Msg("email collection finished")
	return stored, nil
}

// Store writes msg as a raw email record keyed by its message id.
func Store(ctx context.Context, raw store.RawStore, orgID string, msg RawMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message %s: %w", msg.MessageID, err)
	}
	return raw.PutRawRecord(ctx, model.RawRecord{
		Source:  model.SourceEmail,
		Ref:     strings.Trim(msg.MessageID, "<>"),
		OrgID:   orgID,
		Payload: payload,
	})
}

// ImportEML parses an .eml stream and stores it as a raw record.
func ImportEML(ctx context.Context, raw store.RawStore, orgID string, r io.Reader) (RawMessage, error) {
	msg, err := ParseEML(r)
	if err != nil {
		return RawMessage{}, err
	}
	if msg.MessageID == "" {
		return RawMessage{}, fmt.Errorf("message has no Message-ID")
	}
	return msg, Store(ctx, raw, orgID, msg)
}
