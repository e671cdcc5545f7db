package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/orgpulse/internal/model"
)

type activityRow struct {
	ID           string `db:"id"`
	OrgID        string `db:"org_id"`
	Source       string `db:"source"`
	Type         string `db:"activity_type"`
	ActorEmail   string `db:"actor_email"`
	ActorID      string `db:"actor_id"`
	ProjectAlias string `db:"project_alias"`
	ProjectID    string `db:"project_id"`
	TS           int64  `db:"ts"`
	Metadata     string `db:"metadata"`
	SourceRefID  string `db:"source_ref_id"`
	CreatedAt    int64  `db:"created_at"`
}

func (r activityRow) toModel() (model.Activity, error) {
	a := model.Activity{
		ID:          r.ID,
		OrgID:       r.OrgID,
		Source:      model.Source(r.Source),
		Type:        model.ActivityType(r.Type),
		Actor:       model.IdentityRef{Email: r.ActorEmail, ID: r.ActorID},
		Project:     model.ProjectRef{Alias: r.ProjectAlias, ID: r.ProjectID},
		Timestamp:   fromMicros(r.TS),
		SourceRefID: r.SourceRefID,
		CreatedAt:   fromMillis(r.CreatedAt),
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &a.Metadata); err != nil {
			return model.Activity{}, fmt.Errorf("unmarshaling metadata of %s: %w", r.SourceRefID, err)
		}
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	return a, nil
}

const activityColumns = `id, org_id, source, activity_type, actor_email, actor_id,
	project_alias, project_id, ts, metadata, source_ref_id, created_at`

// InsertActivity writes a unless (source, source_ref_id) already exists.
// Missing ID and CreatedAt are filled in on a.
func (s *SQLStore) InsertActivity(ctx context.Context, a *model.Activity) (bool, error) {
	if a.SourceRefID == "" {
		return false, fmt.Errorf("activity has no source ref id")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	a.Timestamp = a.Timestamp.UTC()

	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return false, fmt.Errorf("marshaling metadata for %s: %w", a.SourceRefID, err)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO activities (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, source_ref_id) DO NOTHING`),
		a.ID, a.OrgID, string(a.Source), string(a.Type),
		a.Actor.Email, a.Actor.ID, a.Project.Alias, a.Project.ID,
		toMicros(a.Timestamp), string(metaJSON), a.SourceRefID, toMillis(a.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting activity %s: %w", a.SourceRefID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting activity %s: %w", a.SourceRefID, err)
	}
	return n == 1, nil
}

// ActivityExists reports whether (source, refID) has been written.
func (s *SQLStore) ActivityExists(ctx context.Context, source model.Source, refID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(
		"SELECT COUNT(*) FROM activities WHERE source = ? AND source_ref_id = ?"),
		string(source), refID,
	)
	if err != nil {
		return false, fmt.Errorf("checking activity %s: %w", refID, err)
	}
	return n > 0, nil
}

// GetActivityByRef returns the activity with the given dedup key.
func (s *SQLStore) GetActivityByRef(ctx context.Context, source model.Source, refID string) (*model.Activity, error) {
	var row activityRow
	err := s.db.GetContext(ctx, &row, s.q(
		"SELECT "+activityColumns+" FROM activities WHERE source = ? AND source_ref_id = ?"),
		string(source), refID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting activity %s: %w", refID, err)
	}
	a, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActivities returns activities matching f ordered by timestamp.
func (s *SQLStore) ListActivities(ctx context.Context, f ActivityFilter) ([]model.Activity, error) {
	var conditions []string
	var args []interface{}

	if f.OrgID != "" {
		conditions = append(conditions, "org_id = ?")
		args = append(args, f.OrgID)
	}
	if len(f.Sources) > 0 {
		conditions = append(conditions, "source IN (?)")
		args = append(args, sourceStrings(f.Sources))
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, "activity_type IN (?)")
		args = append(args, types)
	}
	switch {
	case f.ActorEmail != "" && f.ActorID != "":
		conditions = append(conditions, "(actor_email = ? OR actor_id = ?)")
		args = append(args, model.NormalizeEmail(f.ActorEmail), f.ActorID)
	case f.ActorEmail != "":
		conditions = append(conditions, "actor_email = ?")
		args = append(args, model.NormalizeEmail(f.ActorEmail))
	case f.ActorID != "":
		conditions = append(conditions, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.Project != nil {
		var parts []string
		if f.Project.ID != "" {
			parts = append(parts, "project_id = ?")
			args = append(args, f.Project.ID)
		}
		if len(f.Project.Aliases) > 0 {
			aliases := make([]string, len(f.Project.Aliases))
			for i, a := range f.Project.Aliases {
				aliases[i] = model.NormalizeAlias(a)
			}
			parts = append(parts, "project_alias IN (?)")
			args = append(args, aliases)
		}
		if len(parts) == 0 {
			return nil, nil
		}
		conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
	}
	if f.Start != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, toMicros(*f.Start))
	}
	if f.End != nil {
		conditions = append(conditions, "ts < ?")
		args = append(args, toMicros(*f.End))
	}

	query := "SELECT " + activityColumns + " FROM activities"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts, source_ref_id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expanding activity query: %w", err)
	}

	var rows []activityRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}

	activities := make([]model.Activity, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, nil
}

// CountOrphans reports, per source, activities whose actor or project
// reference never resolved.
func (s *SQLStore) CountOrphans(ctx context.Context, orgID string) ([]OrphanCount, error) {
	query := `
		SELECT source,
			COUNT(*) AS total,
			SUM(CASE WHEN actor_id = '' THEN 1 ELSE 0 END) AS unresolved_actor,
			SUM(CASE WHEN project_id = '' THEN 1 ELSE 0 END) AS unresolved_project
		FROM activities`
	var args []interface{}
	if orgID != "" {
		query += " WHERE org_id = ?"
		args = append(args, orgID)
	}
	query += " GROUP BY source ORDER BY source"

	rows, err := s.db.QueryxContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("counting orphans: %w", err)
	}
	defer rows.Close()

	var counts []OrphanCount
	for rows.Next() {
		var (
			c      OrphanCount
			source string
		)
		if err := rows.Scan(&source, &c.Total, &c.UnresolvedActor, &c.UnresolvedProject); err != nil {
			return nil, fmt.Errorf("scanning orphan row: %w", err)
		}
		c.Source = model.Source(source)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// ResetActivities deletes the activities of source, or every activity when
// source is nil, and returns the number removed.
func (s *SQLStore) ResetActivities(ctx context.Context, source *model.Source) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if source == nil {
		res, err = s.db.ExecContext(ctx, "DELETE FROM activities")
	} else {
		res, err = s.db.ExecContext(ctx, s.q("DELETE FROM activities WHERE source = ?"), string(*source))
	}
	if err != nil {
		return 0, fmt.Errorf("resetting activities: %w", err)
	}
	return res.RowsAffected()
}

func sourceStrings(sources []model.Source) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = string(src)
	}
	return out
}
