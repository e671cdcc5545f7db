package jira

import (
	"encoding/json"
	"strings"
	"time"
)

// RawIssue is the stored raw record for one Jira issue with its history.
// The collector builds it from the REST API; imports may supply it directly.
type RawIssue struct {
	Ticket        string            `json:"ticket"`
	ProjectKey    string            `json:"projectKey,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	IssueType     *string           `json:"issueType,omitempty"`
	Priority      *string           `json:"priority,omitempty"`
	Status        string            `json:"status,omitempty"`
	Created       Time              `json:"created"`
	Reporter      *RawUser          `json:"reporter,omitempty"`
	StatusChanges []RawStatusChange `json:"statusChanges,omitempty"`
	Worklogs      []RawWorklog      `json:"worklogs,omitempty"`
}

// RawUser identifies a Jira user. Email is often hidden by Jira Cloud
// privacy settings, in which case only AccountID is known.
type RawUser struct {
	AccountID   string `json:"accountId,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type RawStatusChange struct {
	FromString string   `json:"fromString,omitempty"`
	ToString   string   `json:"toString"`
	Author     *RawUser `json:"author,omitempty"`
	Created    Time     `json:"created"`
}

type RawWorklog struct {
	Author           *RawUser `json:"author,omitempty"`
	Started          Time     `json:"started"`
	TimeSpentSeconds int      `json:"timeSpentSeconds"`
	Comment          string   `json:"comment,omitempty"`
}

// Time accepts the timestamp layouts Jira emits as well as RFC 3339.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t.Time = parseJiraTime(s)
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// parseJiraTime parses a Jira timestamp string. Jira uses the format
// 2006-01-02T15:04:05.000-0700; unknown layouts yield the zero time.
func parseJiraTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	layouts := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		time.RFC3339Nano,
		time.RFC3339,
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// SearchResponse is the response from POST /rest/api/2/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue represents a single Jira issue from the REST API, requested with
// expand=changelog.
type Issue struct {
	ID        string      `json:"id"`
	Key       string      `json:"key"`
	Fields    IssueFields `json:"fields"`
	Changelog *Changelog  `json:"changelog,omitempty"`
}

// IssueFields contains the standard fields of a Jira issue.
type IssueFields struct {
	Summary   string     `json:"summary"`
	Status    Named      `json:"status"`
	Priority  *Named     `json:"priority"`
	IssueType *Named     `json:"issuetype"`
	Reporter  *User      `json:"reporter"`
	Project   ProjectRef `json:"project"`
	Created   string     `json:"created"`
	Updated   string     `json:"updated"`
}

// Named is the common {id, name} shape of status, priority and type.
type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User represents a Jira user.
type User struct {
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// ProjectRef represents the project an issue belongs to.
type ProjectRef struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Changelog holds the issue history.
type Changelog struct {
	Histories []History `json:"histories"`
}

type History struct {
	ID      string       `json:"id"`
	Author  *User        `json:"author"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

type ChangeItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// WorklogPage is the response from GET /rest/api/2/issue/{key}/worklog.
type WorklogPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Worklogs   []Worklog `json:"worklogs"`
}

type Worklog struct {
	ID               string `json:"id"`
	Author           *User  `json:"author"`
	Started          string `json:"started"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
	Comment          string `json:"comment"`
}

// Myself is the response from GET /rest/api/2/myself.
type Myself struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
