package contract

import (
	"strings"
)

// ValidateManuscript checks a candidate manuscript against the full
// structural contract. Failures are ordered and human-readable; they
// feed the correction prompt verbatim.
func ValidateManuscript(text string, in *ManuscriptInput) Result {
	r := Result{OK: true}
	n := in.PhotoCount()

	text = strings.TrimRight(text, "\n ")
	if strings.TrimSpace(text) == "" {
		r.fail("artifact is empty")
		return r
	}

	if strings.Contains(text, "\n\n\n") {
		r.fail("blocks must be separated by exactly one blank line")
	}

	blocks := strings.Split(text, "\n\n")
	for i := range blocks {
		blocks[i] = strings.TrimRight(blocks[i], "\n")
	}

	// Layout: title, N photo paragraphs, hashtag line, optional appendix.
	want := 2 + n
	hasAppendix := len(blocks) == want+1
	if len(blocks) != want && !hasAppendix {
		r.fail("expected %d blocks (title, %d photo paragraphs, hashtags), got %d", want, n, len(blocks))
		return r
	}

	validateTitle(&r, blocks[0], in.PlaceName)

	for i := 1; i <= n; i++ {
		if i >= len(blocks) {
			break
		}
		validateParagraph(&r, blocks[i], i, in)
	}

	bodyBlocks := blocks[1 : n+1]
	body := strings.Join(bodyBlocks, "\n\n")
	if l := runeLen(body); l < BodyMin || l > BodyMax {
		r.fail("body length %d outside [%d, %d]", l, BodyMin, BodyMax)
	}

	validateHashtagLine(&r, blocks[n+1])

	// Required and emphasis keywords must appear literally somewhere.
	for _, kw := range in.RequiredKeywords {
		if kw != "" && !strings.Contains(text, kw) {
			r.fail("required keyword %q missing from artifact", kw)
		}
	}
	for _, kw := range in.EmphasisKeywords {
		if kw != "" && !strings.Contains(text, kw) {
			r.fail("emphasis keyword %q missing from artifact", kw)
		}
	}

	// The appendix is the only place links may live.
	core := strings.Join(blocks[:n+2], "\n\n")
	if containsForbidden(core) {
		r.fail("raw URL, upload path or filename found in artifact text")
	}

	if hasAppendix {
		validateAppendix(&r, blocks[want], in)
	} else if in.IncludeLink || in.IncludeMap {
		r.fail("link/map appendix requested but missing")
	}

	return r
}

func validateTitle(r *Result, title, placeName string) {
	if strings.Contains(title, "\n") {
		r.fail("title must be a single line")
		return
	}
	if l := runeLen(title); l < TitleMin || l > TitleMax {
		r.fail("title length %d outside [%d, %d]", l, TitleMin, TitleMax)
	}
	if placeName != "" && !strings.Contains(title, placeName) {
		r.fail("title does not contain place name %q", placeName)
	}
	if _, isMarker := parseMarker(title); isMarker {
		r.fail("title line is a photo marker")
	}
}

func validateParagraph(r *Result, block string, index int, in *ManuscriptInput) {
	lines := strings.Split(block, "\n")
	idx, ok := parseMarker(lines[0])
	if !ok {
		r.fail("paragraph %d does not start with marker %s", index, MarkerFor(index))
		return
	}
	if idx != index {
		r.fail("paragraph marker out of order: found %s, expected %s", MarkerFor(idx), MarkerFor(index))
		return
	}
	if len(lines) < 2 || strings.TrimSpace(strings.Join(lines[1:], "")) == "" {
		r.fail("paragraph %d has no prose after its marker", index)
		return
	}

	caption := in.Captions[index-1]
	prose := strings.Join(lines[1:], "\n")
	if len(caption.Tags) > 0 {
		need := 2
		if len(caption.Tags) < 2 {
			need = len(caption.Tags)
		}
		if got := tagsPresent(prose, caption.Tags); got < need {
			r.fail("paragraph %d mentions %d of its photo tags, need at least %d", index, got, need)
		}
	}
}

func validateHashtagLine(r *Result, block string) {
	if strings.Contains(block, "\n") {
		r.fail("hashtag block must be a single line")
		return
	}
	fields := strings.Fields(block)
	if len(fields) < HashtagMin || len(fields) > HashtagMax {
		r.fail("hashtag line has %d tags, want %d to %d", len(fields), HashtagMin, HashtagMax)
	}
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") || runeLen(f) < 2 {
			r.fail("invalid hashtag %q", f)
		}
	}
}

// validateAppendix enforces the exclusive-or rule: a map-only address
// line, a link-only bare URL line, or a single combined line. Never
// more than one form.
func validateAppendix(r *Result, block string, in *ManuscriptInput) {
	if !in.IncludeLink && !in.IncludeMap {
		r.fail("appendix present but neither link nor map was requested")
		return
	}
	if strings.Contains(block, "\n") {
		r.fail("appendix must be a single line")
		return
	}

	want := AppendixLine(in)
	if block != want {
		r.fail("appendix line %q does not match required form %q", block, want)
	}
}

// AppendixLine returns the exact server-controlled link/map line for
// the input, or "" when neither is requested.
func AppendixLine(in *ManuscriptInput) string {
	switch {
	case in.IncludeLink && in.IncludeMap:
		return "※ 지도: " + in.Address + " | " + in.LinkURL
	case in.IncludeMap:
		return "※ 지도: " + in.Address
	case in.IncludeLink:
		return in.LinkURL
	}
	return ""
}
