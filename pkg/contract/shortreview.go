package contract

import (
	"strings"

	"ghostwriter/pkg/model"
)

// DefaultKeywordMax bounds how often a required keyword may appear in
// a short review unless the order overrides it.
const DefaultKeywordMax = 2

// softEmojiCap applies when the order allows emoji at all.
const softEmojiCap = 2

// ShortReviewInput carries the order facts a short review is checked
// and enforced against.
type ShortReviewInput struct {
	PlaceName        string
	MenuName         string
	RequiredKeywords []string
	Mode             model.LengthMode
	TargetLength     int
	MaxLength        int
	AllowEmoji       bool
	MaxKeywordUses   int
}

func (in *ShortReviewInput) keywordMax() int {
	if in.MaxKeywordUses > 0 {
		return in.MaxKeywordUses
	}
	return DefaultKeywordMax
}

// ValidateShortReview runs the hard short-review checks: length
// (exact in fixed mode, strictly under the cap in range mode), the
// menu mention, and per-keyword occurrence bounds. Unlike manuscript
// validation these failures terminate the job, so every failure
// message names the measured value.
func ValidateShortReview(text string, in *ShortReviewInput) Result {
	r := Result{OK: true}
	length := runeLen(text)

	switch in.Mode {
	case model.LengthFixed:
		if length != in.TargetLength {
			r.fail("length %d, need exactly %d", length, in.TargetLength)
		}
	case model.LengthRange:
		if length >= in.MaxLength {
			r.fail("length %d, need under %d", length, in.MaxLength)
		}
		if length == 0 {
			r.fail("empty review")
		}
	default:
		r.fail("unknown length mode %q", in.Mode)
	}

	maxUses := in.keywordMax()
	if in.MenuName != "" {
		switch c := countOccurrences(text, in.MenuName); {
		case c == 0:
			r.fail("menu %q not mentioned", in.MenuName)
		case c > maxUses:
			r.fail("menu %q mentioned %d times, max %d", in.MenuName, c, maxUses)
		}
	}
	for _, kw := range in.RequiredKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		switch c := countOccurrences(text, kw); {
		case c == 0:
			r.fail("keyword %q missing", kw)
		case c > maxUses:
			r.fail("keyword %q used %d times, max %d", kw, c, maxUses)
		}
	}
	return r
}

var reviewPads = []string{
	"또 방문하고 싶어요.",
	"기분 좋게 다녀왔습니다.",
	"전반적으로 만족스러웠어요.",
	"주변에도 추천할 만한 곳입니다.",
}

// EnforceShortReview deterministically rewrites a candidate review to
// satisfy the hard checks: quotes and markup normalized, emoji
// stripped or capped per policy, one sentence per line, missing
// keyword and menu mentions injected, and the length fitted. In fixed
// mode the result always has exactly TargetLength runes; in range
// mode it is cut at a line boundary to stay under the cap. Text that
// already validates is returned unchanged.
func EnforceShortReview(raw string, in *ShortReviewInput) string {
	if ValidateShortReview(raw, in).OK {
		return raw
	}

	text := normalizeQuotes(stripForbidden(raw))
	if in.AllowEmoji {
		text = capEmoji(text, softEmojiCap)
	} else {
		text = capEmoji(text, 0)
	}

	lines := splitSentences(text)

	// Mentions are prepended so a tail cut in the length pass cannot
	// remove them.
	var lead []string
	if in.MenuName != "" && countOccurrences(text, in.MenuName) == 0 {
		lead = append(lead, in.MenuName+" 정말 좋았어요.")
	}
	for _, kw := range in.RequiredKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if countOccurrences(text, kw) == 0 {
			lead = append(lead, kw+" 면에서 만족스러웠습니다.")
		}
	}
	lines = append(lead, lines...)
	if len(lines) == 0 {
		lines = []string{in.PlaceName + " 잘 다녀왔습니다."}
	}

	switch in.Mode {
	case model.LengthFixed:
		return fitExact(strings.Join(lines, "\n"), in.TargetLength)
	case model.LengthRange:
		return fitUnder(lines, in.MaxLength)
	default:
		return strings.Join(lines, "\n")
	}
}

// fitExact pads with rotating filler clauses, then cuts on a rune
// boundary to exactly target runes.
func fitExact(text string, target int) string {
	pad := 0
	for runeLen(text) < target {
		text += "\n" + reviewPads[pad%len(reviewPads)]
		pad++
	}
	out := truncRunes(text, target)
	// A cut landing on whitespace would shrink on the next pass.
	if trimmed := strings.TrimRight(out, " \n"); trimmed != out {
		out = trimmed
		for runeLen(out) < target {
			out += "."
		}
	}
	return out
}

// fitUnder keeps whole lines while they fit strictly under the cap.
func fitUnder(lines []string, limit int) string {
	var kept []string
	total := 0
	for _, line := range lines {
		l := runeLen(line)
		if len(kept) > 0 {
			l++ // joining newline
		}
		if total+l >= limit {
			break
		}
		kept = append(kept, line)
		total += l
	}
	if len(kept) == 0 && len(lines) > 0 {
		kept = []string{truncRunes(lines[0], limit-1)}
	}
	return strings.Join(kept, "\n")
}

// capEmoji keeps the first max emoji runes and drops the rest, along
// with their joiners and variation selectors.
func capEmoji(s string, max int) string {
	var sb strings.Builder
	kept := 0
	for _, r := range s {
		if r == 0xFE0F || r == 0x200D {
			continue
		}
		if isEmoji(r) {
			if kept >= max {
				continue
			}
			kept++
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x1F000 && r <= 0x1F0FF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2190 && r <= 0x21FF:
		return true
	}
	return false
}
