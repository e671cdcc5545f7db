package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/orgpulse/internal/model"
)

type identityRow struct {
	ID               string `db:"id"`
	OrgID            string `db:"org_id"`
	PrimaryEmail     string `db:"primary_email"`
	GitHubLogin      string `db:"github_login"`
	GitHubID         string `db:"github_id"`
	SlackUserID      string `db:"slack_user_id"`
	SlackTeamID      string `db:"slack_team_id"`
	JiraAccountID    string `db:"jira_account_id"`
	DisplayName      string `db:"display_name"`
	DefaultProjectID string `db:"default_project_id"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r identityRow) toModel() model.Identity {
	return model.Identity{
		ID:               r.ID,
		OrgID:            r.OrgID,
		PrimaryEmail:     r.PrimaryEmail,
		AlternateEmails:  []string{},
		GitHubLogin:      r.GitHubLogin,
		GitHubID:         r.GitHubID,
		SlackUserID:      r.SlackUserID,
		SlackTeamID:      r.SlackTeamID,
		JiraAccountID:    r.JiraAccountID,
		DisplayName:      r.DisplayName,
		DefaultProjectID: r.DefaultProjectID,
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
}

const identityColumns = `id, org_id, primary_email, github_login, github_id,
	slack_user_id, slack_team_id, jira_account_id, display_name,
	default_project_id, created_at, updated_at`

// CreateIdentity inserts id unless its primary email is taken. Alternate
// emails on id are written alongside.
func (s *SQLStore) CreateIdentity(ctx context.Context, id *model.Identity) (bool, error) {
	id.PrimaryEmail = model.NormalizeEmail(id.PrimaryEmail)
	if id.PrimaryEmail == "" {
		return false, fmt.Errorf("identity primary email must not be empty")
	}
	if id.ID == "" {
		id.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if id.CreatedAt.IsZero() {
		id.CreatedAt = now
	}
	id.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO identities (`+identityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (primary_email) DO NOTHING`),
		id.ID, id.OrgID, id.PrimaryEmail, strings.ToLower(id.GitHubLogin), id.GitHubID,
		id.SlackUserID, id.SlackTeamID, id.JiraAccountID, id.DisplayName,
		id.DefaultProjectID, toMillis(id.CreatedAt), toMillis(id.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("creating identity %s: %w", id.PrimaryEmail, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("creating identity %s: %w", id.PrimaryEmail, err)
	}
	if n == 0 {
		return false, nil
	}

	for _, alt := range id.AlternateEmails {
		alt = model.NormalizeEmail(alt)
		if alt == "" || alt == id.PrimaryEmail {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO identity_emails (identity_id, email) VALUES (?, ?)
			ON CONFLICT (identity_id, email) DO NOTHING`), id.ID, alt); err != nil {
			return false, fmt.Errorf("adding alternate email %s: %w", alt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing identity %s: %w", id.PrimaryEmail, err)
	}
	return true, nil
}

// GetIdentity retrieves an identity by id.
func (s *SQLStore) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	return s.getIdentity(ctx, "SELECT "+identityColumns+" FROM identities WHERE id = ?", id)
}

// FindIdentityByPrimaryEmail matches primary emails only.
func (s *SQLStore) FindIdentityByPrimaryEmail(ctx context.Context, email string) (*model.Identity, error) {
	return s.getIdentity(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE primary_email = ?",
		model.NormalizeEmail(email),
	)
}

// FindIdentityByEmail matches primary emails first, then alternates. When
// several identities list the same alternate the oldest one wins.
func (s *SQLStore) FindIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	email = model.NormalizeEmail(email)
	ident, err := s.FindIdentityByPrimaryEmail(ctx, email)
	if !errors.Is(err, ErrNotFound) {
		return ident, err
	}

	return s.getIdentity(ctx, `
		SELECT i.id, i.org_id, i.primary_email, i.github_login, i.github_id,
			i.slack_user_id, i.slack_team_id, i.jira_account_id, i.display_name,
			i.default_project_id, i.created_at, i.updated_at
		FROM identities i
		JOIN identity_emails e ON e.identity_id = i.id
		WHERE e.email = ?
		ORDER BY i.created_at, i.id
		LIMIT 1`, email)
}

// FindIdentityByAccount looks up a per-source account: GitHub login or
// numeric id, Slack user id, Jira account id, or email.
func (s *SQLStore) FindIdentityByAccount(ctx context.Context, source model.Source, accountID string) (*model.Identity, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, ErrNotFound
	}

	base := "SELECT " + identityColumns + " FROM identities WHERE "
	order := " ORDER BY created_at, id LIMIT 1"

	switch source {
	case model.SourceGitHub:
		return s.getIdentity(ctx, base+"(github_login = ? OR github_id = ?)"+order,
			strings.ToLower(accountID), accountID)
	case model.SourceSlack:
		return s.getIdentity(ctx, base+"slack_user_id = ?"+order, accountID)
	case model.SourceJira:
		return s.getIdentity(ctx, base+"jira_account_id = ?"+order, accountID)
	case model.SourceEmail:
		return s.FindIdentityByEmail(ctx, accountID)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

// UpdateIdentityAccounts persists the account links and display fields.
func (s *SQLStore) UpdateIdentityAccounts(ctx context.Context, id *model.Identity) error {
	id.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE identities SET
			github_login = ?, github_id = ?, slack_user_id = ?, slack_team_id = ?,
			jira_account_id = ?, display_name = ?, default_project_id = ?, updated_at = ?
		WHERE id = ?`),
		strings.ToLower(id.GitHubLogin), id.GitHubID, id.SlackUserID, id.SlackTeamID,
		id.JiraAccountID, id.DisplayName, id.DefaultProjectID, toMillis(id.UpdatedAt),
		id.ID,
	)
	if err != nil {
		return fmt.Errorf("updating identity %s: %w", id.ID, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddIdentityEmail adds email to the identity's alternate set. Adding an
// existing alternate is a no-op.
func (s *SQLStore) AddIdentityEmail(ctx context.Context, identityID, email string) error {
	email = model.NormalizeEmail(email)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q("UPDATE identities SET updated_at = ? WHERE id = ?"),
		toMillis(s.now()), identityID)
	if err != nil {
		return fmt.Errorf("touching identity %s: %w", identityID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO identity_emails (identity_id, email) VALUES (?, ?)
		ON CONFLICT (identity_id, email) DO NOTHING`), identityID, email); err != nil {
		return fmt.Errorf("adding email %s to identity %s: %w", email, identityID, err)
	}

	return tx.Commit()
}

// ListIdentities returns identities of orgID (all when empty) ordered by
// primary email.
func (s *SQLStore) ListIdentities(ctx context.Context, orgID string) ([]model.Identity, error) {
	query := "SELECT " + identityColumns + " FROM identities"
	var args []interface{}
	if orgID != "" {
		query += " WHERE org_id = ?"
		args = append(args, orgID)
	}
	query += " ORDER BY primary_email"

	var rows []identityRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	emails, err := s.alternateEmails(ctx, ids)
	if err != nil {
		return nil, err
	}

	identities := make([]model.Identity, len(rows))
	for i, r := range rows {
		identities[i] = r.toModel()
		if alts := emails[r.ID]; alts != nil {
			identities[i].AlternateEmails = alts
		}
	}
	return identities, nil
}

func (s *SQLStore) getIdentity(ctx context.Context, query string, args ...interface{}) (*model.Identity, error) {
	var row identityRow
	err := s.db.GetContext(ctx, &row, s.q(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting identity: %w", err)
	}

	ident := row.toModel()
	emails, err := s.alternateEmails(ctx, []string{row.ID})
	if err != nil {
		return nil, err
	}
	if alts := emails[row.ID]; alts != nil {
		ident.AlternateEmails = alts
	}
	return &ident, nil
}

func (s *SQLStore) alternateEmails(ctx context.Context, identityIDs []string) (map[string][]string, error) {
	query, args, err := sqlx.In(
		"SELECT identity_id, email FROM identity_emails WHERE identity_id IN (?) ORDER BY email",
		identityIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("expanding email query: %w", err)
	}

	var rows []struct {
		IdentityID string `db:"identity_id"`
		Email      string `db:"email"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("querying alternate emails: %w", err)
	}

	out := make(map[string][]string)
	for _, r := range rows {
		out[r.IdentityID] = append(out[r.IdentityID], r.Email)
	}
	return out, nil
}
