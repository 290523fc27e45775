package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

const maxSanitizePasses = 4

// cleanText strips markup from free text typed by untrusted callers. Entities are
// decoded before every pass so encoded tags are stripped too, and passes repeat
// until the text no longer changes.
func cleanText(raw string) string {
	s := strings.TrimSpace(raw)
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(plainText.Sanitize(html.UnescapeString(s)))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	// nao estabilizou: nenhum delimitador de tag sobrevive
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
}
