package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// ErrUnknownSource is returned when no transformer is registered for a source.
var ErrUnknownSource = errors.New("unknown source")

// AuthError indicates that authentication has failed or expired for a
// collector. It is returned by source clients when a 401 response is received.
type AuthError struct {
	Source  model.Source
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Source, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Result counts what a transform run did.
type Result struct {
	// Processed is the number of raw records read.
	Processed int `json:"processed"`
	Created   int `json:"created"`

	// Skipped counts activities already present plus candidates dropped for
	// missing data or an unmapped event type.
	Skipped int `json:"skipped"`

	// Errors counts records that failed to decode or persist.
	Errors int `json:"errors"`
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.Processed += other.Processed
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.Errors += other.Errors
}

// Transformer converts the raw records of one source into activities.
type Transformer interface {
	Source() model.Source
	Transform(ctx context.Context, since *time.Time) (Result, error)
}

// Resolver binds raw actor emails and project aliases to canonical records.
// A miss yields an unresolved reference, never an error.
type Resolver interface {
	Actor(ctx context.Context, email, orgID string) model.IdentityRef
	Project(ctx context.Context, alias string, src model.Source, orgID string) model.ProjectRef

	// EmailForAccount returns the primary email of the identity linked to a
	// source account (Slack user id, Jira account id, GitHub login).
	EmailForAccount(ctx context.Context, src model.Source, accountID string) (string, bool)
}

// Candidate is an activity a mapper wants written. Actor.Email and
// Project.Alias carry the raw values; resolution happens in the pipeline.
type Candidate struct {
	Activity model.Activity

	// Skip, when set, names why the candidate must not be written.
	Skip string
}

// Mapper turns one raw record into candidate activities.
type Mapper interface {
	Source() model.Source
	Map(ctx context.Context, rec model.RawRecord) ([]Candidate, error)
}

// RunScoped is implemented by mappers holding per-run state, such as a
// lookup cache. Reset is called at the start of every run.
type RunScoped interface {
	Reset()
}

// DecodeError marks a record whose payload could not be decoded.
type DecodeError struct {
	Ref string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding record %s: %v", e.Ref, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode unmarshals a raw payload into v, wrapping failures in DecodeError.
func Decode(rec model.RawRecord, v any) error {
	if err := json.Unmarshal(rec.Payload, v); err != nil {
		return &DecodeError{Ref: rec.Ref, Err: err}
	}
	return nil
}

// Pipeline is the shared transform loop: list raw records since the
// watermark, map them, skip already-written refs, resolve references and
// insert. Records are handled one at a time.
type Pipeline struct {
	mapper     Mapper
	raw        store.RawStore
	activities store.ActivityStore
	resolver   Resolver
	log        zerolog.Logger
}

// Deps are the collaborators every pipeline needs.
type Deps struct {
	Raw        store.RawStore
	Activities store.ActivityStore
	Resolver   Resolver
	Logger     zerolog.Logger
}

// NewPipeline builds the transform loop around mapper.
func NewPipeline(mapper Mapper, deps Deps) *Pipeline {
	return &Pipeline{
		mapper:     mapper,
		raw:        deps.Raw,
		activities: deps.Activities,
		resolver:   deps.Resolver,
		log:        deps.Logger.With().Str("source", string(mapper.Source())).Logger(),
	}
}

// Source returns the source this pipeline transforms.
func (p *Pipeline) Source() model.Source {
	return p.mapper.Source()
}

// Transform processes raw records received at or after since (all when
// nil). Record-level failures are counted; only a failure to list records
// or a cancelled context aborts the run, with the partial result.
func (p *Pipeline) Transform(ctx context.Context, since *time.Time) (Result, error) {
	var res Result

	if rs, ok := p.mapper.(RunScoped); ok {
		rs.Reset()
	}

	records, err := p.raw.ListRawRecords(ctx, p.Source(), since)
	if err != nil {
		return res, fmt.Errorf("listing raw %s records: %w", p.Source(), err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++

		candidates, err := p.mapper.Map(ctx, rec)
		if err != nil {
			res.Errors++
			p.log.Warn().Err(err).Str("ref", rec.Ref).Msg("mapping raw record failed")
			continue
		}

		for _, c := range candidates {
			created, err := p.write(ctx, rec, c)
			switch {
			case err != nil:
				res.Errors++
				p.log.Warn().Err(err).Str("ref", c.Activity.SourceRefID).Msg("writing activity failed")
			case created:
				res.Created++
			default:
				res.Skipped++
			}
		}
	}

	p.log.Info().
		Int("processed", res.Processed).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Msg("transform finished")

	return res, nil
}

func (p *Pipeline) write(ctx context.Context, rec model.RawRecord, c Candidate) (bool, error) {
	a := c.Activity
	if c.Skip != "" {
		p.log.Debug().Str("ref", a.SourceRefID).Str("reason", c.Skip).Msg("candidate skipped")
		return false, nil
	}

	a.Source = p.Source()
	if a.OrgID == "" {
		a.OrgID = rec.OrgID
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}

	exists, err := p.activities.ActivityExists(ctx, a.Source, a.SourceRefID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if p.resolver != nil {
		a.Actor = p.resolver.Actor(ctx, a.Actor.Email, a.OrgID)
		a.Project = p.resolver.Project(ctx, a.Project.Alias, a.Source, a.OrgID)
	} else {
		a.Actor = model.UnresolvedActor(a.Actor.Email)
		a.Project = model.UnresolvedProject(a.Project.Alias)
	}

	created, err := p.activities.InsertActivity(ctx, &a)
	if err != nil {
		return false, err
	}
	if !created {
		p.log.Debug().Str("ref", a.SourceRefID).Msg("duplicate activity deduped")
	}
	return created, nil
}

// SkipMissingActor returns a candidate marked as skipped when email is empty.
func SkipMissingActor(a model.Activity) Candidate {
	if a.Actor.Email == "" {
		return Candidate{Activity: a, Skip: "missing actor email"}
	}
	return Candidate{Activity: a}
}

// Registry maps each source to its transformer.
type Registry map[model.Source]Transformer

// NewRegistry indexes transformers by their source.
func NewRegistry(ts ...Transformer) Registry {
	r := make(Registry, len(ts))
	for _, t := range ts {
		r[t.Source()] = t
	}
	return r
}

// Get returns the transformer for src.
func (r Registry) Get(src model.Source) (Transformer, error) {
	t, ok := r[src]
	if !ok {
		return nil, fmt.Errorf("%s: %w", src, ErrUnknownSource)
	}
	return t, nil
}
