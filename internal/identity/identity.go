// Package identity resolves per-source actor identifiers to canonical
// person identities.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

// ErrEmailConflict is returned when an alternate email is already another
// identity's primary email.
var ErrEmailConflict = errors.New("email is the primary email of another identity")

// Service resolves and maintains identities.
type Service struct {
	store store.IdentityStore
	log   zerolog.Logger
}

func New(st store.IdentityStore, log zerolog.Logger) *Service {
	return &Service{store: st, log: log.With().Str("component", "identity").Logger()}
}

// Resolve returns the id of the identity owning email as primary or
// alternate. It never creates.
func (s *Service) Resolve(ctx context.Context, email string) (string, bool, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return "", false, nil
	}
	ident, err := s.store.FindIdentityByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolving %s: %w", email, err)
	}
	return ident.ID, true, nil
}

// FindOrCreate returns the identity for email, creating it with email as
// primary on a miss. An empty displayName defaults to the local part.
func (s *Service) FindOrCreate(ctx context.Context, email, displayName, orgID string) (*model.Identity, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email must not be empty")
	}

	ident, err := s.store.FindIdentityByEmail(ctx, email)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("finding identity %s: %w", email, err)
	}

	if strings.TrimSpace(displayName) == "" {
		displayName = localPart(email)
	}
	ident = &model.Identity{
		OrgID:        orgID,
		PrimaryEmail: email,
		DisplayName:  displayName,
	}
	created, err := s.store.CreateIdentity(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("creating identity %s: %w", email, err)
	}
	if !created {
		// Lost a race with a concurrent creator.
		return s.store.FindIdentityByPrimaryEmail(ctx, email)
	}

	s.log.Debug().Str("email", email).Str("id", ident.ID).Msg("identity created")
	return ident, nil
}

// LinkAccount attaches a source account to the identity owning email.
// It returns ok=false, and creates nothing, when no identity matches.
func (s *Service) LinkAccount(ctx context.Context, email string, acct model.Account) (*model.Identity, bool, error) {
	ident, err := s.store.FindIdentityByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("finding identity %s: %w", email, err)
	}

	switch acct.Source {
	case model.SourceGitHub:
		if acct.Login != "" {
			ident.GitHubLogin = strings.ToLower(acct.Login)
		}
		if acct.ID != "" {
			ident.GitHubID = acct.ID
		}
	case model.SourceSlack:
		ident.SlackUserID = acct.ID
		if acct.TeamID != "" {
			ident.SlackTeamID = acct.TeamID
		}
	case model.SourceJira:
		ident.JiraAccountID = acct.ID
	default:
		return nil, false, fmt.Errorf("cannot link %q accounts", acct.Source)
	}

	if err := s.store.UpdateIdentityAccounts(ctx, ident); err != nil {
		return nil, false, fmt.Errorf("linking %s account to %s: %w", acct.Source, ident.PrimaryEmail, err)
	}
	return ident, true, nil
}

// AddAlternateEmail adds alternate to the identity whose primary email is
// primary. Adding the identity's own primary or an existing alternate is a
// no-op.
func (s *Service) AddAlternateEmail(ctx context.Context, primary, alternate string) error {
	primary = model.NormalizeEmail(primary)
	alternate = model.NormalizeEmail(alternate)
	if alternate == "" {
		return errors.New("alternate email must not be empty")
	}

	ident, err := s.store.FindIdentityByPrimaryEmail(ctx, primary)
	if err != nil {
		return fmt.Errorf("finding identity %s: %w", primary, err)
	}
	if alternate == ident.PrimaryEmail || ident.HasEmail(alternate) {
		return nil
	}

	other, err := s.store.FindIdentityByPrimaryEmail(ctx, alternate)
	switch {
	case err == nil && other.ID != ident.ID:
		return fmt.Errorf("%s: %w", alternate, ErrEmailConflict)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("checking %s: %w", alternate, err)
	}

	return s.store.AddIdentityEmail(ctx, ident.ID, alternate)
}

// FindByAccount returns the identity linked to a source account.
func (s *Service) FindByAccount(ctx context.Context, src model.Source, accountID string) (*model.Identity, bool, error) {
	ident, err := s.store.FindIdentityByAccount(ctx, src, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ident, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Identity, error) {
	return s.store.GetIdentity(ctx, id)
}

func (s *Service) List(ctx context.Context, orgID string) ([]model.Identity, error) {
	return s.store.ListIdentities(ctx, orgID)
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
