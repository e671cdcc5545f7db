package email

import (
	"regexp"
	"strings"
)

// GeneralAlias is the project alias for subjects without a project token.
const GeneralAlias = "general"

var (
	bracketPattern = regexp.MustCompile(`\[([^\]]+)\]`)
	prefixPattern  = regexp.MustCompile(`(?i)^(?:(?:re|fwd?)\s*:\s*)*([A-Za-z0-9_-]+)\s*:`)
	dashPattern    = regexp.MustCompile(`(?i)^(?:(?:re|fwd?)\s*:\s*)?([A-Za-z0-9_]+)\s+-`)
)

var replyPrefixes = map[string]bool{"re": true, "fw": true, "fwd": true}

// ProjectAliasFromSubject derives a project alias from a subject line:
// a bracketed tag "[X]", else a leading "TOKEN:" (reply and forward
// prefixes do not count), else "TOKEN - ...", else "general".
func ProjectAliasFromSubject(subject string) string {
	subject = strings.TrimSpace(subject)

	if m := bracketPattern.FindStringSubmatch(subject); m != nil {
		if alias := strings.ToLower(strings.TrimSpace(m[1])); alias != "" {
			return alias
		}
	}

	if m := prefixPattern.FindStringSubmatch(subject); m != nil {
		if token := strings.ToLower(m[1]); !replyPrefixes[token] {
			return token
		}
	}

	if m := dashPattern.FindStringSubmatch(subject); m != nil {
		return strings.ToLower(m[1])
	}

	return GeneralAlias
}
