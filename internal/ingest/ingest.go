// Package ingest stores raw source payloads delivered by webhooks or
// imported from files. Each payload is keyed by the natural id of its
// source so redelivery replaces rather than duplicates.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
	"github.com/nhle/orgpulse/internal/source/email"
	"github.com/nhle/orgpulse/internal/source/github"
	"github.com/nhle/orgpulse/internal/source/jira"
	"github.com/nhle/orgpulse/internal/source/slack"
	"github.com/nhle/orgpulse/internal/store"
)

// ErrMissingRef is returned for payloads without their source's id field.
var ErrMissingRef = errors.New("payload has no record id")

// Ref extracts the raw record key of payload for src.
func Ref(src model.Source, payload []byte) (string, error) {
	var ref string
	switch src {
	case model.SourceJira:
		var v jira.RawIssue
		if err := json.Unmarshal(payload, &v); err != nil {
			return "", err
		}
		ref = v.Ticket
	case model.SourceGitHub:
		var v github.RawEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return "", err
		}
		ref = v.ID
	case model.SourceSlack:
		var v slack.RawEvent
		if err := json.Unmarshal(payload, &v); err != nil {
			return "", err
		}
		ref = v.EventID
	case model.SourceEmail:
		var v email.RawMessage
		if err := json.Unmarshal(payload, &v); err != nil {
			return "", err
		}
		ref = strings.Trim(v.MessageID, "<>")
	default:
		return "", fmt.Errorf("%w: %s", source.ErrUnknownSource, src)
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%s: %w", src, ErrMissingRef)
	}
	return ref, nil
}

// Ingester writes raw records for one organization.
type Ingester struct {
	raw   store.RawStore
	orgID string
	now   func() time.Time
	log   zerolog.Logger
}

func New(raw store.RawStore, orgID string, log zerolog.Logger) *Ingester {
	return &Ingester{
		raw:   raw,
		orgID: orgID,
		now:   time.Now,
		log:   log.With().Str("component", "ingest").Logger(),
	}
}

// Put stores one payload and returns its ref.
func (i *Ingester) Put(ctx context.Context, src model.Source, payload []byte) (string, error) {
	ref, err := Ref(src, payload)
	if err != nil {
		return "", err
	}
	err = i.raw.PutRawRecord(ctx, model.RawRecord{
		Source:     src,
		Ref:        ref,
		OrgID:      i.orgID,
		Payload:    payload,
		ReceivedAt: i.now(),
	})
	if err != nil {
		return "", err
	}
	i.log.Debug().Str("source", string(src)).Str("ref", ref).Msg("raw record stored")
	return ref, nil
}

// PutValue marshals v and stores it.
func (i *Ingester) PutValue(ctx context.Context, src model.Source, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling %s payload: %w", src, err)
	}
	return i.Put(ctx, src, payload)
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Stored int `json:"stored"`
	Failed int `json:"failed"`
}

// Import reads a JSON array or newline-delimited JSON objects from r and
// stores each element. Invalid elements are counted and skipped; a
// malformed stream stops the import.
func (i *Ingester) Import(ctx context.Context, src model.Source, r io.Reader) (ImportResult, error) {
	var res ImportResult

	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return res, fmt.Errorf("reading import array: %w", err)
		}
	}

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return res, fmt.Errorf("reading import element %d: %w", res.Stored+res.Failed, err)
		}
		if _, err := i.Put(ctx, src, bytes.TrimSpace(raw)); err != nil {
			if errors.Is(err, ErrMissingRef) || isSyntaxError(err) {
				res.Failed++
				i.log.Warn().Err(err).Str("source", string(src)).Msg("skipping import element")
				continue
			}
			return res, err
		}
		res.Stored++
	}

	i.log.Info().Str("source", string(src)).Int("stored", res.Stored).Int("failed", res.Failed).Msg("import finished")
	return res, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func isSyntaxError(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ)
}
