package chatpipeline

import (
	"regexp"
	"strings"
)

// sectionKeywords lists the bare (undecorated, lowercased) section labels the
// upstream model sometimes injects as a heading line — Spanish and English —
// that the gateway strips before the content reaches the client.
var sectionKeywords = map[string]struct{}{
	"resumen":          {},
	"respuesta":        {},
	"desarrollo":       {},
	"supuestos":        {},
	"suposiciones":     {},
	"consideraciones":  {},
	"fuentes":          {},
	"referencias":      {},
	"siguientes pasos": {},
	"próximos pasos":   {},
	"pasos siguientes": {},
	"summary":          {},
	"response":         {},
	"answer":           {},
	"development":      {},
	"assumptions":      {},
	"considerations":   {},
	"sources":          {},
	"references":       {},
	"next steps":       {},
}

var (
	markdownHeaderPrefix  = regexp.MustCompile(`^#{1,6}\s*`)
	boldWithTrailingColon = regexp.MustCompile(`^\*\*(.*?)\*\*:?`)
	boldColonInside       = regexp.MustCompile(`^\*\*(.*?):?\*\*`)
)

// isSectionHeading reports whether line, once stripped of markdown header
// marks, bold decoration, and a trailing colon, normalizes to one of
// sectionKeywords. Recognizes "**Resumen:**", "**Resumen**:", "Resumen:",
// "## Resumen", "## Resumen:", "**Summary:**", "Summary:", and so on.
func isSectionHeading(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}

	working := markdownHeaderPrefix.ReplaceAllString(stripped, "")
	working = boldWithTrailingColon.ReplaceAllString(working, "$1")
	working = boldColonInside.ReplaceAllString(working, "$1")
	working = strings.TrimRight(working, ":")
	working = strings.TrimSpace(working)

	normalized := strings.ToLower(strings.TrimSpace(working))
	_, ok := sectionKeywords[normalized]
	return ok
}

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// Sanitize strips section-heading lines (by keyword, across all their
// decoration forms) and collapses runs of three or more blank lines down to
// two, per §4.5 step 3.
func Sanitize(content string) string {
	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if isSectionHeading(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}

	out := strings.Join(cleaned, "\n")
	out = blankRunPattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
