package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/orgpulse/internal/model"
)

type projectRow struct {
	ID        string `db:"id"`
	OrgID     string `db:"org_id"`
	Name      string `db:"name"`
	IsActive  int    `db:"is_active"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r projectRow) toModel() model.Project {
	return model.Project{
		ID:        r.ID,
		OrgID:     r.OrgID,
		Name:      r.Name,
		IsActive:  r.IsActive != 0,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
		Aliases:   map[model.Source][]string{},
	}
}

// CreateProject inserts a project together with its aliases. It fails with
// ErrAliasTaken, leaving nothing behind, when any alias is already owned.
func (s *SQLStore) CreateProject(ctx context.Context, p *model.Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("project id must not be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name must not be empty")
	}
	now := s.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.IsActive = true

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO projects (id, org_id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		p.ID, p.OrgID, p.Name, boolToInt(p.IsActive), toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating project %s: %w", p.ID, err)
	}

	for source, aliases := range p.Aliases {
		for i, alias := range aliases {
			alias = model.NormalizeAlias(alias)
			aliases[i] = alias
			if err := s.insertAlias(ctx, tx, p.ID, source, alias); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing project %s: %w", p.ID, err)
	}
	return nil
}

// insertAlias claims (source, alias) for projectID. Re-adding an alias the
// project already owns is a no-op.
func (s *SQLStore) insertAlias(ctx context.Context, tx *sqlx.Tx, projectID string, source model.Source, alias string) error {
	if alias == "" {
		return fmt.Errorf("alias must not be empty")
	}
	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO project_aliases (project_id, source, alias) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`), projectID, string(source), alias)
	if err != nil {
		return fmt.Errorf("adding alias %s:%s: %w", source, alias, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var owner string
	err = tx.GetContext(ctx, &owner, s.q(
		"SELECT project_id FROM project_aliases WHERE source = ? AND alias = ?"),
		string(source), alias)
	if err != nil {
		return fmt.Errorf("checking alias %s:%s owner: %w", source, alias, err)
	}
	if owner != projectID {
		return fmt.Errorf("%s:%s owned by %s: %w", source, alias, owner, ErrAliasTaken)
	}
	return nil
}

// GetProject retrieves a project with its aliases.
func (s *SQLStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.getProject(ctx,
		"SELECT id, org_id, name, is_active, created_at, updated_at FROM projects WHERE id = ?", id)
}

// FindProjectByAlias matches alias within source, or within every source
// when source is nil. Inactive projects still match.
func (s *SQLStore) FindProjectByAlias(ctx context.Context, alias string, source *model.Source) (*model.Project, error) {
	alias = model.NormalizeAlias(alias)
	if alias == "" {
		return nil, ErrNotFound
	}

	query := `
		SELECT p.id, p.org_id, p.name, p.is_active, p.created_at, p.updated_at
		FROM projects p
		JOIN project_aliases a ON a.project_id = p.id
		WHERE a.alias = ?`
	args := []interface{}{alias}
	if source != nil {
		query += " AND a.source = ?"
		args = append(args, string(*source))
	}
	query += " ORDER BY p.created_at, p.id LIMIT 1"

	return s.getProject(ctx, query, args...)
}

// AddProjectAlias adds alias under source to the project.
func (s *SQLStore) AddProjectAlias(ctx context.Context, projectID string, source model.Source, alias string) error {
	alias = model.NormalizeAlias(alias)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.touchProject(ctx, tx, projectID); err != nil {
		return err
	}
	if err := s.insertAlias(ctx, tx, projectID, source, alias); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveProjectAlias removes alias under source from the project. Removing
// an absent alias is a no-op.
func (s *SQLStore) RemoveProjectAlias(ctx context.Context, projectID string, source model.Source, alias string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.touchProject(ctx, tx, projectID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.q(
		"DELETE FROM project_aliases WHERE project_id = ? AND source = ? AND alias = ?"),
		projectID, string(source), model.NormalizeAlias(alias))
	if err != nil {
		return fmt.Errorf("removing alias %s:%s: %w", source, alias, err)
	}
	return tx.Commit()
}

// SetProjectActive flips the soft-delete flag.
func (s *SQLStore) SetProjectActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.q(
		"UPDATE projects SET is_active = ?, updated_at = ? WHERE id = ?"),
		boolToInt(active), toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("updating project %s: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProjects returns projects of orgID (all when empty) ordered by name.
func (s *SQLStore) ListProjects(ctx context.Context, orgID string, includeInactive bool) ([]model.Project, error) {
	var conditions []string
	var args []interface{}
	if orgID != "" {
		conditions = append(conditions, "org_id = ?")
		args = append(args, orgID)
	}
	if !includeInactive {
		conditions = append(conditions, "is_active = 1")
	}

	query := "SELECT id, org_id, name, is_active, created_at, updated_at FROM projects"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name, id"

	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	aliases, err := s.projectAliases(ctx, ids)
	if err != nil {
		return nil, err
	}

	projects := make([]model.Project, len(rows))
	for i, r := range rows {
		projects[i] = r.toModel()
		if a := aliases[r.ID]; a != nil {
			projects[i].Aliases = a
		}
	}
	return projects, nil
}

func (s *SQLStore) getProject(ctx context.Context, query string, args ...interface{}) (*model.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, s.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}

	p := row.toModel()
	aliases, err := s.projectAliases(ctx, []string{row.ID})
	if err != nil {
		return nil, err
	}
	if a := aliases[row.ID]; a != nil {
		p.Aliases = a
	}
	return &p, nil
}

func (s *SQLStore) touchProject(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, s.q("UPDATE projects SET updated_at = ? WHERE id = ?"),
		toMillis(s.now()), id)
	if err != nil {
		return fmt.Errorf("touching project %s: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) projectAliases(ctx context.Context, projectIDs []string) (map[string]map[model.Source][]string, error) {
	query, args, err := sqlx.In(`
		SELECT project_id, source, alias FROM project_aliases
		WHERE project_id IN (?) ORDER BY source, alias`, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("expanding alias query: %w", err)
	}

	var rows []struct {
		ProjectID string `db:"project_id"`
		Source    string `db:"source"`
		Alias     string `db:"alias"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying project aliases: %w", err)
	}

	out := make(map[string]map[model.Source][]string)
	for _, r := range rows {
		if out[r.ProjectID] == nil {
			out[r.ProjectID] = map[model.Source][]string{}
		}
		src := model.Source(r.Source)
		out[r.ProjectID][src] = append(out[r.ProjectID][src], r.Alias)
	}
	return out, nil
}
