package validation

import (
	"regexp"
	"strings"
)

// Keywords that modify data or schema. A statement containing any of these as
// a standalone word is rejected before it can reach the executor.
var mutationKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE",
	"ALTER", "CREATE", "REPLACE", "MERGE", "GRANT",
	"REVOKE", "ATTACH", "DETACH", "VACUUM", "PRAGMA",
	"EXEC", "EXECUTE",
}

var mutationPattern *regexp.Regexp

func init() {
	mutationPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(mutationKeywords, "|") + `)\b`)
}

// IsReadOnlyQuery reports whether a statement is a plain read. The statement
// must start with SELECT or WITH (any casing/whitespace) and must not contain
// any mutation keyword anywhere, including inside subqueries.
func IsReadOnlyQuery(statement string) bool {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return false
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return false
	}

	// Strip string literals so table data like 'DROPPED_PASSES' cannot
	// trigger a false positive.
	stripped := stripStringLiterals(trimmed)
	return !mutationPattern.MatchString(stripped)
}

// DisallowedKeyword returns the first mutation keyword found in a statement,
// or "" when the statement is clean. Used to build the rejection message.
func DisallowedKeyword(statement string) string {
	stripped := stripStringLiterals(statement)
	match := mutationPattern.FindString(stripped)
	return strings.ToUpper(match)
}

// destructiveRequestPattern is deliberately narrower than mutationPattern:
// "create a chart" is a fine request, "delete all games" is not.
var destructiveRequestPattern = regexp.MustCompile(`(?i)\b(delete|drop|truncate|erase|wipe)\b`)

// MentionsMutation reports whether free-form user text asks for a data
// modification (e.g. "delete all games"). Checked before any SQL is
// generated, so unfulfillable requests never consume an executor call.
func MentionsMutation(userText string) bool {
	return destructiveRequestPattern.MatchString(userText)
}

func stripStringLiterals(s string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			inString = !inString
			b.WriteByte(' ')
			continue
		}
		if inString {
			b.WriteByte(' ')
		} else {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsValidPrompt checks that a user message is worth sending to the model:
// non-empty, not absurdly long, and not a single repeated character.
func IsValidPrompt(prompt string) bool {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < 2 {
		return false
	}
	if len(trimmed) > 10000 {
		return false
	}
	return !isRepeatedCharacters(trimmed)
}

// isRepeatedCharacters checks if a string is just repeated characters
func isRepeatedCharacters(s string) bool {
	if len(s) < 3 {
		return false
	}
	firstChar := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] != firstChar {
			return false
		}
	}
	return true
}
