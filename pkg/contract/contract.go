// Package contract defines the structural rules a generated artifact
// must satisfy, and the deterministic repair that makes model output
// satisfy them. The model's text is treated as raw prose material; the
// repairer is the actual author of contract compliance.
package contract

import (
	"fmt"
	"regexp"
	"strings"

	"ghostwriter/pkg/model"
)

// Body length band for manuscripts, in runes. The repairer aims for
// the middle of the band so repaired output always validates.
const (
	BodyMin    = 1500
	BodyMax    = 2300
	BodyTarget = 1900
)

// Title line band, in runes.
const (
	TitleMin = 25
	TitleMax = 40
)

// Hashtag line bounds.
const (
	HashtagMin = 1
	HashtagMax = 5
)

// MarkerFor returns the paragraph marker line for the 1-based photo index.
func MarkerFor(index int) string {
	return fmt.Sprintf("[사진%d]", index)
}

var markerRe = regexp.MustCompile(`^\[사진(\d+)\]$`)

// parseMarker returns the photo index if line is a marker line.
func parseMarker(line string) (int, bool) {
	m := markerRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	var idx int
	fmt.Sscanf(m[1], "%d", &idx)
	return idx, true
}

// Result reports the outcome of a contract validation.
type Result struct {
	OK       bool
	Failures []string
}

func (r *Result) fail(format string, args ...any) {
	r.OK = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// ManuscriptInput carries everything the manuscript contract depends on.
type ManuscriptInput struct {
	PlaceName        string
	Address          string
	Captions         []model.CaptionItem // one per photo, in photo order
	RequiredKeywords []string
	EmphasisKeywords []string
	Hashtags         []string
	IncludeLink      bool
	IncludeMap       bool
	LinkURL          string
}

// PhotoCount returns the number of photos the artifact must cover.
func (in *ManuscriptInput) PhotoCount() int {
	return len(in.Captions)
}

// runeLen counts runes; all contract lengths are rune lengths so that
// multi-byte Korean text and emoji are never miscounted or split.
func runeLen(s string) int {
	return len([]rune(s))
}

// truncRunes cuts s to at most n runes.
func truncRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// containsFold reports a case-insensitive substring match.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// countOccurrences counts non-overlapping occurrences of needle.
func countOccurrences(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	return strings.Count(haystack, needle)
}

// sanitizeTag normalizes a caption tag for matching: trimmed, without
// a leading hash, lowercased for comparison.
func sanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "#")
	return tag
}

// tagsPresent counts how many of the photo's tags appear in the segment.
func tagsPresent(segment string, tags []string) int {
	n := 0
	for _, t := range tags {
		t = sanitizeTag(t)
		if t == "" {
			continue
		}
		if containsFold(segment, t) {
			n++
		}
	}
	return n
}
