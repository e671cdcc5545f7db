package model

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies the external system that produced a raw record.
type Source string

const (
	SourceEmail  Source = "email"
	SourceSlack  Source = "slack"
	SourceGitHub Source = "github"
	SourceJira   Source = "jira"
)

// AllSources lists the sources in the order the orchestrator runs them.
var AllSources = []Source{SourceEmail, SourceSlack, SourceGitHub, SourceJira}

// ParseSource validates a source name, ignoring case and surrounding space.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSources {
		if src == known {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// ActivityType classifies a canonical activity.
type ActivityType string

const (
	ActivityMessage       ActivityType = "message"
	ActivityCommit        ActivityType = "commit"
	ActivityPullRequest   ActivityType = "pull_request"
	ActivityReview        ActivityType = "review"
	ActivityTicketCreated ActivityType = "ticket_created"
	ActivityStatusChange  ActivityType = "status_change"
	ActivityTicketUpdated ActivityType = "ticket_updated"
	ActivityDeployment    ActivityType = "deployment"
)

// Metadata keys written by the transformers and read by the metrics engines.
const (
	MetaTicketID         = "ticketId"
	MetaIssueType        = "issueType"
	MetaPriority         = "priority"
	MetaSummary          = "summary"
	MetaFromStatus       = "fromStatus"
	MetaToStatus         = "toStatus"
	MetaTimeSpentSeconds = "timeSpentSeconds"
	MetaEventAction      = "eventAction"
	MetaPRNumber         = "prNumber"
	MetaPRTitle          = "prTitle"
	MetaPRState          = "prState"
	MetaMerged           = "merged"
	MetaAdditions        = "additions"
	MetaDeletions        = "deletions"
	MetaHeadRef          = "headRef"
	MetaCommitCount      = "commitCount"
	MetaCommitSHA        = "commitSha"
	MetaDeploymentState  = "deploymentState"
	MetaEnvironment      = "environment"
	MetaReviewState      = "reviewState"
	MetaChannelID        = "channelId"
	MetaThreadTS         = "threadTs"
	MetaMentions         = "mentions"
	MetaRecipients       = "recipients"
	MetaSubject          = "subject"
	MetaThreadID         = "threadId"
	MetaJiraKeys         = "jiraKeys"
	MetaText             = "text"
	MetaLogin            = "login"
)

// IdentityRef points at the person behind an activity. The raw email is
// always kept; ID is set only when resolution found a canonical identity.
type IdentityRef struct {
	Email string `json:"actorEmail"`
	ID    string `json:"actorId,omitempty"`
}

// UnresolvedActor builds a reference carrying only the normalized email.
func UnresolvedActor(email string) IdentityRef {
	return IdentityRef{Email: NormalizeEmail(email)}
}

// Resolve returns a copy of the reference bound to the given identity id.
func (r IdentityRef) Resolve(id string) IdentityRef {
	r.ID = id
	return r
}

// IsResolved reports whether the reference points at a canonical identity.
func (r IdentityRef) IsResolved() bool {
	return r.ID != ""
}

// ProjectRef points at the project an activity belongs to. The raw alias is
// always kept; ID is set only when resolution found a canonical project.
type ProjectRef struct {
	Alias string `json:"projectAlias"`
	ID    string `json:"projectId,omitempty"`
}

// UnresolvedProject builds a reference carrying only the normalized alias.
func UnresolvedProject(alias string) ProjectRef {
	return ProjectRef{Alias: NormalizeAlias(alias)}
}

// Resolve returns a copy of the reference bound to the given project id.
func (r ProjectRef) Resolve(id string) ProjectRef {
	r.ID = id
	return r
}

// IsResolved reports whether the reference points at a canonical project.
func (r ProjectRef) IsResolved() bool {
	return r.ID != ""
}

// Activity is one canonical, immutable event derived from a raw source record.
type Activity struct {
	// ID is the internal unique identifier for this activity.
	ID string `json:"id"`

	// OrgID is the opaque partition key of the owning organization.
	OrgID string `json:"orgId"`

	// Source identifies which system produced the raw record.
	Source Source `json:"source"`

	// Type classifies the activity.
	Type ActivityType `json:"activityType"`

	Actor   IdentityRef `json:"actor"`
	Project ProjectRef  `json:"project"`

	// Timestamp is the event time in the source system, not ingestion time.
	Timestamp time.Time `json:"timestamp"`

	// Metadata holds source-specific details (see the Meta* keys).
	Metadata map[string]any `json:"metadata"`

	// SourceRefID is the deterministic dedup key; unique per source.
	SourceRefID string `json:"sourceRefId"`

	// CreatedAt is when the activity row was written.
	CreatedAt time.Time `json:"createdAt"`
}

// MetaString returns a string metadata value, or "" when absent.
func (a Activity) MetaString(key string) string {
	switch v := a.Metadata[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// MetaBool returns a boolean metadata value; only a true bool counts.
func (a Activity) MetaBool(key string) bool {
	v, ok := a.Metadata[key].(bool)
	return ok && v
}

// MetaStrings returns a string-list metadata value. Values decoded from JSON
// arrive as []any and are converted.
func (a Activity) MetaStrings(key string) []string {
	switch v := a.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeAlias lowercases and trims a project alias.
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
