package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/store"
)

const searchPageSize = 50

// Collector pulls issues from the Jira REST API and stores them as raw
// records for the transformer.
type Collector struct {
	client *Client
	raw    store.RawStore
	orgID  string
	jql    string
	log    zerolog.Logger
}

func NewCollector(client *Client, raw store.RawStore, orgID, jql string, log zerolog.Logger) *Collector {
	return &Collector{
		client: client,
		raw:    raw,
		orgID:  orgID,
		jql:    jql,
		log:    log.With().Str("collector", "jira").Logger(),
	}
}

// ValidateConnection verifies credentials and returns the account name.
func (c *Collector) ValidateConnection(ctx context.Context) (string, error) {
	var me Myself
	if err := c.client.Get(ctx, "/rest/api/2/myself", &me); err != nil {
		return "", fmt.Errorf("validating jira connection: %w", err)
	}
	return fmt.Sprintf("connected as %s", me.DisplayName), nil
}

// Collect pages through the JQL search and stores one raw record per issue.
// It returns the number of issues stored.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	stored := 0
	for startAt := 0; ; {
		var page SearchResponse
		err := c.client.Post(ctx, "/rest/api/2/search", map[string]interface{}{
			"jql":        c.jql,
			"startAt":    startAt,
			"maxResults": searchPageSize,
			"expand":     []string{"changelog"},
			"fields": []string{
				"summary", "status", "priority", "issuetype",
				"reporter", "project", "created", "updated",
			},
		}, &page)
		if err != nil {
			return stored, fmt.Errorf("searching jira issues: %w", err)
		}

		for _, issue := range page.Issues {
			worklogs, err := c.worklogs(ctx, issue.Key)
			if err != nil {
				c.log.Warn().Err(err).Str("ref", issue.Key).Msg("fetching worklogs failed")
			}

			payload, err := json.Marshal(ToRawIssue(issue, worklogs))
			if err != nil {
				return stored, fmt.Errorf("marshaling issue %s: %w", issue.Key, err)
			}
			if err := c.raw.PutRawRecord(ctx, model.RawRecord{
				Source:  model.SourceJira,
				Ref:     issue.Key,
				OrgID:   c.orgID,
				Payload: payload,
			}); err != nil {
				return stored, err
			}
			stored++
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	c.log.Info().Int("issues", stored).Msg("jira collection finished")
	return stored, nil
}

func (c *Collector) worklogs(ctx context.Context, key string) ([]Worklog, error) {
	var page WorklogPage
	path := fmt.Sprintf("/rest/api/2/issue/%s/worklog", url.PathEscape(key))
	if err := c.client.Get(ctx, path, &page); err != nil {
		return nil, err
	}
	return page.Worklogs, nil
}

// ToRawIssue flattens an API issue, its status history and worklogs into
// the stored raw shape. Status changes are ordered oldest first so their
// indexes stay stable between collections.
func ToRawIssue(issue Issue, worklogs []Worklog) RawIssue {
	raw := RawIssue{
		Ticket:     issue.Key,
		ProjectKey: issue.Fields.Project.Key,
		Summary:    issue.Fields.Summary,
		Status:     issue.Fields.Status.Name,
		Created:    Time{parseJiraTime(issue.Fields.Created)},
		Reporter:   toRawUser(issue.Fields.Reporter),
	}
	if issue.Fields.IssueType != nil {
		name := issue.Fields.IssueType.Name
		raw.IssueType = &name
	}
	if issue.Fields.Priority != nil {
		name := issue.Fields.Priority.Name
		raw.Priority = &name
	}

	if issue.Changelog != nil {
		histories := append([]History(nil), issue.Changelog.Histories...)
		sort.SliceStable(histories, func(i, j int) bool {
			return parseJiraTime(histories[i].Created).Before(parseJiraTime(histories[j].Created))
		})
		for _, h := range histories {
			for _, item := range h.Items {
				if !strings.EqualFold(item.Field, "status") {
					continue
				}
				raw.StatusChanges = append(raw.StatusChanges, RawStatusChange{
					FromString: item.FromString,
					ToString:   item.ToString,
					Author:     toRawUser(h.Author),
					Created:    Time{parseJiraTime(h.Created)},
				})
			}
		}
	}

	for _, w := range worklogs {
		raw.Worklogs = append(raw.Worklogs, RawWorklog{
			Author:           toRawUser(w.Author),
			Started:          Time{parseJiraTime(w.Started)},
			TimeSpentSeconds: w.TimeSpentSeconds,
			Comment:          w.Comment,
		})
	}
	return raw
}

func toRawUser(u *User) *RawUser {
	if u == nil {
		return nil
	}
	return &RawUser{
		AccountID:   u.AccountID,
		Email:       u.EmailAddress,
		DisplayName: u.DisplayName,
	}
}
