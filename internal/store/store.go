package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/orgpulse/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrAliasTaken is returned when an alias is already owned by another
	// project under the same source.
	ErrAliasTaken = errors.New("alias already assigned to another project")

	// ErrLeaseLost is returned by FinishRun when another run reclaimed the
	// lease after it went stale.
	ErrLeaseLost = errors.New("run lease lost")
)

// ProjectMatch selects activities belonging to a project: either the
// resolved project id or any of the raw aliases.
type ProjectMatch struct {
	ID      string
	Aliases []string
}

// ActivityFilter controls activity queries. Zero values mean "no filter".
type ActivityFilter struct {
	OrgID   string
	Sources []model.Source
	Types   []model.ActivityType

	// ActorEmail matches the raw actor email; ActorID the resolved identity.
	// When both are set either may match.
	ActorEmail string
	ActorID    string

	Project *ProjectMatch

	// Start is inclusive, End exclusive.
	Start *time.Time
	End   *time.Time

	Limit int
}

// OrphanCount reports activities lacking a resolved reference.
type OrphanCount struct {
	Source            model.Source `json:"source"`
	Total             int          `json:"total"`
	UnresolvedActor   int          `json:"unresolvedActor"`
	UnresolvedProject int          `json:"unresolvedProject"`
}

// RunOutcome is recorded when a transform run finishes.
type RunOutcome struct {
	// StartedAt is the lease the run acquired with TryStartRun.
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool

	// SuccessAt becomes LastSuccessAt when Success is set.
	SuccessAt time.Time
	Error     string

	Processed int
	Created   int
	Skipped   int
	Errors    int
}

// ActivityStore persists the canonical, append-only activity log.
type ActivityStore interface {
	// InsertActivity writes a if no activity with the same
	// (source, source_ref_id) exists and reports whether a row was created.
	InsertActivity(ctx context.Context, a *model.Activity) (bool, error)
	ActivityExists(ctx context.Context, source model.Source, refID string) (bool, error)
	GetActivityByRef(ctx context.Context, source model.Source, refID string) (*model.Activity, error)
	ListActivities(ctx context.Context, f ActivityFilter) ([]model.Activity, error)
	CountOrphans(ctx context.Context, orgID string) ([]OrphanCount, error)

	// ResetActivities deletes activities of one source, or all when nil.
	ResetActivities(ctx context.Context, source *model.Source) (int64, error)
}

// IdentityStore persists canonical identities and their alternate emails.
type IdentityStore interface {
	// CreateIdentity inserts id unless its primary email exists already and
	// reports whether a row was created.
	CreateIdentity(ctx context.Context, id *model.Identity) (bool, error)
	GetIdentity(ctx context.Context, id string) (*model.Identity, error)

	// FindIdentityByEmail looks at primary emails first, then alternates.
	FindIdentityByEmail(ctx context.Context, email string) (*model.Identity, error)
	FindIdentityByPrimaryEmail(ctx context.Context, email string) (*model.Identity, error)
	FindIdentityByAccount(ctx context.Context, source model.Source, accountID string) (*model.Identity, error)
	UpdateIdentityAccounts(ctx context.Context, id *model.Identity) error
	AddIdentityEmail(ctx context.Context, identityID, email string) error
	ListIdentities(ctx context.Context, orgID string) ([]model.Identity, error)
}

// ProjectStore persists canonical projects and their per-source aliases.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	FindProjectByAlias(ctx context.Context, alias string, source *model.Source) (*model.Project, error)
	AddProjectAlias(ctx context.Context, projectID string, source model.Source, alias string) error
	RemoveProjectAlias(ctx context.Context, projectID string, source model.Source, alias string) error
	SetProjectActive(ctx context.Context, id string, active bool) error
	ListProjects(ctx context.Context, orgID string, includeInactive bool) ([]model.Project, error)
}

// StateStore persists per-source transform orchestration state.
type StateStore interface {
	// TryStartRun claims the run for source when nothing is running or the
	// current run started before staleBefore.
	TryStartRun(ctx context.Context, source model.Source, now, staleBefore time.Time) (bool, error)
	FinishRun(ctx context.Context, source model.Source, out RunOutcome) error
	ClearRun(ctx context.Context, source model.Source) error
	GetTransformState(ctx context.Context, source model.Source) (*model.TransformState, error)
	ListTransformStates(ctx context.Context) ([]model.TransformState, error)
}

// RawStore holds unprocessed source payloads.
type RawStore interface {
	// PutRawRecord upserts by (source, ref); an update bumps received_at.
	PutRawRecord(ctx context.Context, r model.RawRecord) error
	ListRawRecords(ctx context.Context, source model.Source, since *time.Time) ([]model.RawRecord, error)
}

// Store aggregates every persistence concern.
type Store interface {
	ActivityStore
	IdentityStore
	ProjectStore
	StateStore
	RawStore
	Close() error
}
