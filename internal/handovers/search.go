package handovers

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// normalizeSearch folds compatibility forms and case so that full-width
// digits or ligatures typed by users match stored text.
func normalizeSearch(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	return folder.String(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns a search term into an ILIKE pattern that matches it literally.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(normalizeSearch(term)) + "%"
}
