package model

import "time"

// Identity is the canonical person record unifying accounts across tools.
type Identity struct {
	ID    string `json:"id" db:"id"`
	OrgID string `json:"orgId" db:"org_id"`

	// PrimaryEmail is unique across the system and always normalized.
	PrimaryEmail string `json:"primaryEmail" db:"primary_email"`

	// AlternateEmails is a set; populated from the identity_emails table.
	AlternateEmails []string `json:"alternateEmails" db:"-"`

	GitHubLogin   string `json:"githubLogin,omitempty" db:"github_login"`
	GitHubID      string `json:"githubId,omitempty" db:"github_id"`
	SlackUserID   string `json:"slackUserId,omitempty" db:"slack_user_id"`
	SlackTeamID   string `json:"slackTeamId,omitempty" db:"slack_team_id"`
	JiraAccountID string `json:"jiraAccountId,omitempty" db:"jira_account_id"`

	DisplayName      string `json:"displayName" db:"display_name"`
	DefaultProjectID string `json:"defaultProjectId,omitempty" db:"default_project_id"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// HasEmail reports whether email is the primary or one of the alternates.
func (i Identity) HasEmail(email string) bool {
	email = NormalizeEmail(email)
	if i.PrimaryEmail == email {
		return true
	}
	for _, alt := range i.AlternateEmails {
		if alt == email {
			return true
		}
	}
	return false
}

// Account identifies a per-source account to link onto an identity.
// Login is used for GitHub; TeamID for Slack.
type Account struct {
	Source Source `json:"source"`
	ID     string `json:"id"`
	Login  string `json:"login,omitempty"`
	TeamID string `json:"teamId,omitempty"`
}
