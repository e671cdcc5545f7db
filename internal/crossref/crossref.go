package crossref

import (
	"regexp"
	"strings"
)

// jiraKeyPattern matches Jira issue keys (e.g., PROJ-123, ABC-1).
var jiraKeyPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

// ExtractJiraKeys extracts all Jira issue key matches from text.
// Returns a deduplicated list preserving the order of first occurrence.
func ExtractJiraKeys(text string) []string {
	matches := jiraKeyPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var result []string
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		result = append(result, m)
	}
	return result
}

// KeysIn extracts Jira keys from several texts at once, such as a branch
// name, PR title and commit messages. Branch names are often lower case
// ("feature/proj-12-login") so matching is done on the upper-cased text.
func KeysIn(texts ...string) []string {
	return ExtractJiraKeys(strings.ToUpper(strings.Join(texts, " ")))
}

// ProjectKey returns the project part of an issue key ("PROJ-12" -> "PROJ").
func ProjectKey(issueKey string) string {
	i := strings.LastIndexByte(issueKey, '-')
	if i <= 0 {
		return ""
	}
	return issueKey[:i]
}

// FilterKnown keeps only keys present in known; a nil or empty set keeps
// every key.
func FilterKnown(keys []string, known map[string]bool) []string {
	if len(known) == 0 {
		return keys
	}

	var filtered []string
	for _, key := range keys {
		if known[key] {
			filtered = append(filtered, key)
		}
	}
	return filtered
}
