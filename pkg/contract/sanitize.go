package contract

import (
	"regexp"
	"strings"
)

var (
	urlRe      = regexp.MustCompile(`https?://[^\s)\]]+`)
	bareWWWRe  = regexp.MustCompile(`\bwww\.[^\s)\]]+`)
	filenameRe = regexp.MustCompile(`(?i)\b[\w./-]*(?:/upload[s]?/[\w./-]+|IMG_\d+|DSC\d+|[\w-]+\.(?:jpe?g|png|gif|webp|heic))\b`)
	mapLabelRe = regexp.MustCompile(`(?m)^\s*(?:※\s*)?(?:지도|약도|오시는\s*길|Map)\s*[::].*$`)

	boldRe    = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	italicRe  = regexp.MustCompile(`\*([^*]*)\*`)
	underRe   = regexp.MustCompile(`__([^_]*)__`)
	codeRe    = regexp.MustCompile("`([^`]*)`")
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// stripForbidden removes everything the model was told not to emit but
// might anyway: raw URLs, map-label lines, filenames and upload paths,
// markdown emphasis and quote-emphasis. The server appends its own
// link/map lines afterwards.
func stripForbidden(text string) string {
	text = mapLabelRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = bareWWWRe.ReplaceAllString(text, "")
	text = filenameRe.ReplaceAllString(text, "")

	text = boldRe.ReplaceAllString(text, "$1")
	text = underRe.ReplaceAllString(text, "$1")
	text = codeRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")

	// Quote-emphasis lines keep their prose, lose the decoration.
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		for strings.HasPrefix(trimmed, ">") {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// containsForbidden reports whether text still carries a raw URL,
// upload path or filename pattern. Used by the validator.
func containsForbidden(text string) bool {
	return urlRe.MatchString(text) || bareWWWRe.MatchString(text) || filenameRe.MatchString(text)
}

// normalizeQuotes replaces curly quotes with straight ones and
// collapses runs of spaces and tabs.
func normalizeQuotes(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		" ", " ",
	)
	s = replacer.Replace(s)
	var b strings.Builder
	spaceRun := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !spaceRun {
				b.WriteRune(' ')
			}
			spaceRun = true
			continue
		}
		spaceRun = false
		b.WriteRune(r)
	}
	return b.String()
}
