package model

import (
	"strings"
	"time"
	"unicode"
)

// Project is the canonical project record unifying per-source aliases.
type Project struct {
	ID        string    `json:"projectId" db:"id"`
	OrgID     string    `json:"orgId" db:"org_id"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// Aliases maps each source to its alias set (repo full names, channel
	// ids, Jira project keys, email subject tokens).
	Aliases map[Source][]string `json:"aliases" db:"-"`
}

// HasAlias reports whether alias is registered under source.
func (p Project) HasAlias(source Source, alias string) bool {
	alias = NormalizeAlias(alias)
	for _, a := range p.Aliases[source] {
		if a == alias {
			return true
		}
	}
	return false
}

// ProjectNameFromAlias synthesizes a human name: separators become spaces
// and each word gets an upper-case first letter ("data_platform-api" ->
// "Data Platform Api").
func ProjectNameFromAlias(alias string) string {
	replaced := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(alias))
	words := strings.Fields(replaced)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// ProjectIDFromAlias derives a slug usable as a canonical project id.
func ProjectIDFromAlias(alias string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range NormalizeAlias(alias) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
