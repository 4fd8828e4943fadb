package contract

import (
	"strings"

	"ghostwriter/pkg/model"
)

// fillers are generic bridging sentences used to grow an undersized
// body. They are appended round-robin across photo paragraphs so no
// single paragraph turns into filler soup.
var fillers = []string{
	"사진으로 다시 봐도 그날의 분위기가 그대로 전해지는 공간이었어요.",
	"머무는 내내 편안해서 시간이 금방 지나갔던 기억이 납니다.",
	"직접 가보니 사진보다 실물이 더 좋다는 말이 어울리는 곳이었어요.",
	"소소한 부분까지 신경 쓴 흔적이 곳곳에서 느껴졌습니다.",
	"다음에 또 방문하고 싶다는 생각이 자연스럽게 들었어요.",
	"함께 간 일행도 만족스러워해서 더 기억에 남는 시간이었습니다.",
	"계절이 바뀔 때 다시 찾아와도 좋겠다는 생각이 들었어요.",
	"처음 방문이었는데도 낯설지 않게 머물다 올 수 있었습니다.",
}

// perPhotoCap is the last-resort paragraph prose budget, in runes,
// when 1-sentence shrinking still leaves the body over the band.
const perPhotoCap = 200

// RepairManuscript deterministically rebuilds a candidate into a
// contract-satisfying manuscript. Model text is only raw material:
// forbidden content is stripped, prose is re-segmented per photo,
// missing segments are synthesized from captions, the length is
// normalized into the body band, and the title, hashtag and link/map
// lines are re-derived server-side. Idempotent: repairing repaired
// output yields the same artifact.
func RepairManuscript(raw string, in *ManuscriptInput) string {
	n := in.PhotoCount()
	if n == 0 {
		return ""
	}

	cleaned := normalizeQuotes(stripForbidden(raw))
	segments := splitSegments(cleaned, n)

	paragraphs := make([][]string, n)
	for i := 0; i < n; i++ {
		sentences := splitSentences(segments[i])
		if len(sentences) == 0 {
			sentences = synthesizeSegment(in.Captions[i])
		}
		paragraphs[i] = sentences
	}

	paragraphs = fitLength(paragraphs, in)

	var sb strings.Builder
	sb.WriteString(buildTitle(in.PlaceName))
	sb.WriteString("\n\n")
	sb.WriteString(renderBody(paragraphs))
	sb.WriteString("\n\n")
	sb.WriteString(buildHashtagLine(in))
	if appendix := AppendixLine(in); appendix != "" {
		sb.WriteString("\n\n")
		sb.WriteString(appendix)
	}
	return sb.String()
}

// splitSegments distributes prose across the n photo slots. Marker
// lines are authoritative boundaries; without any markers, blank-line
// paragraphs are assigned in photo order. A leading title-like line
// and hashtag lines are dropped; both get rebuilt.
func splitSegments(text string, n int) []string {
	lines := strings.Split(text, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) {
		if _, isMarker := parseMarker(lines[start]); !isMarker && !looksLikeProse(lines[start]) {
			start++
		}
	}
	lines = lines[start:]

	hasMarkers := false
	for _, line := range lines {
		if _, ok := parseMarker(line); ok {
			hasMarkers = true
			break
		}
	}

	segments := make([]string, n)
	if hasMarkers {
		slots := make(map[int][]string)
		current := 0 // 0 = preamble before the first marker
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if idx, ok := parseMarker(trimmed); ok {
				current = idx
				continue
			}
			if trimmed == "" || isHashtagLine(trimmed) {
				continue
			}
			slots[current] = append(slots[current], trimmed)
		}
		// Preamble prose belongs to the first photo; overflow slots
		// beyond the photo count merge into the last.
		for i := 1; i <= n; i++ {
			var parts []string
			if i == 1 {
				parts = append(parts, slots[0]...)
			}
			parts = append(parts, slots[i]...)
			if i == n {
				for j := n + 1; ; j++ {
					extra, ok := slots[j]
					if !ok {
						break
					}
					parts = append(parts, extra...)
				}
			}
			segments[i-1] = strings.Join(parts, "\n")
		}
		return segments
	}

	// Marker-less fallback: blank-line paragraphs in photo order.
	var paras []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			paras = append(paras, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if isHashtagLine(trimmed) {
			continue
		}
		cur = append(cur, trimmed)
	}
	flush()

	for i, p := range paras {
		if i < n {
			segments[i] = p
		} else {
			segments[n-1] = segments[n-1] + "\n" + p
		}
	}
	return segments
}

// looksLikeProse reports whether a leading line reads like body text
// rather than a title: titles are short single lines without sentence
// enders.
func looksLikeProse(line string) bool {
	t := strings.TrimSpace(line)
	return strings.ContainsAny(t, ".!?…") || runeLen(t) > TitleMax+20
}

func isHashtagLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") {
			return false
		}
	}
	return true
}

// splitSentences breaks prose into one sentence per element. Already
// line-per-sentence text passes through unchanged.
func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var cur strings.Builder
		for _, r := range line {
			cur.WriteRune(r)
			if r == '.' || r == '!' || r == '?' || r == '…' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					out = append(out, s)
				}
				cur.Reset()
			}
		}
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// synthesizeSegment builds paragraph prose from the caption alone,
// used when the model produced nothing usable for a photo.
func synthesizeSegment(caption model.CaptionItem) []string {
	var out []string
	if c := strings.TrimSpace(caption.Caption); c != "" {
		if !strings.HasSuffix(c, ".") && !strings.HasSuffix(c, "!") && !strings.HasSuffix(c, "?") {
			c += "."
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		out = append(out, "사진에 담긴 순간이 인상 깊었던 장면이에요.")
	}
	return out
}

// ensureTags guarantees the paragraph mentions at least two of its
// photo's tags (or all of them when fewer exist), appending one short
// bridging sentence listing the missing tags.
func ensureTags(sentences []string, tags []string) []string {
	need := 2
	if len(tags) < need {
		need = len(tags)
	}
	if need == 0 {
		return sentences
	}

	prose := strings.Join(sentences, "\n")
	var missing []string
	present := 0
	for _, t := range tags {
		st := sanitizeTag(t)
		if st == "" {
			continue
		}
		if containsFold(prose, st) {
			present++
		} else {
			missing = append(missing, st)
		}
	}
	if present >= need {
		return sentences
	}

	take := need - present
	if take > len(missing) {
		take = len(missing)
	}
	if take == 0 {
		return sentences
	}
	bridge := strings.Join(missing[:take], ", ") + " 모두 기억에 남는 포인트였어요."
	return append(sentences, bridge)
}

// fitLength normalizes total body length into [BodyMin, BodyMax].
// Tag and keyword guarantee sentences are appended after shrinking and
// pinned; when an append pushes the body back over the cap, only the
// surrounding prose shrinks further, so the band and the guarantees
// hold together. Undersized bodies then grow with round-robin filler
// sentences until the floor is reached.
func fitLength(paragraphs [][]string, in *ManuscriptInput) [][]string {
	guard := make([]int, len(paragraphs))
	for {
		paragraphs = shrinkToBand(paragraphs, guard)
		var appended bool
		paragraphs, appended = pinGuarantees(paragraphs, guard, in)
		if !appended {
			break
		}
	}

	fill := 0
	for bodyLen(paragraphs) < BodyMin {
		i := fill % len(paragraphs)
		sentence := fillers[fill%len(fillers)]
		paragraphs[i] = append(paragraphs[i], sentence)
		fill++
	}
	return paragraphs
}

// shrinkToBand drops prose until the body fits under BodyMax: trailing
// sentences beyond 2 per paragraph, then beyond 1, then a fixed
// per-photo rune cap; never a whole paragraph. The last guard[i]
// sentences of each paragraph are pinned and survive every stage.
func shrinkToBand(paragraphs [][]string, guard []int) [][]string {
	if bodyLen(paragraphs) <= BodyMax {
		return paragraphs
	}
	paragraphs = shrinkTo(paragraphs, guard, 2)
	if bodyLen(paragraphs) > BodyMax {
		paragraphs = shrinkTo(paragraphs, guard, 1)
	}
	if bodyLen(paragraphs) > BodyMax {
		out := make([][]string, len(paragraphs))
		for i, p := range paragraphs {
			prose, pinned := splitPinned(p, guard[i])
			out[i] = append(capParagraph(prose, perPhotoCap), pinned...)
		}
		paragraphs = out
	}
	return paragraphs
}

// pinGuarantees appends the tag and keyword guarantee sentences and
// records them in guard. Reports whether anything was appended; a
// pinned mention never drops out again, so a shrink-then-pin loop
// terminates.
func pinGuarantees(paragraphs [][]string, guard []int, in *ManuscriptInput) ([][]string, bool) {
	appended := false
	for i := range paragraphs {
		n := len(paragraphs[i])
		paragraphs[i] = ensureTags(paragraphs[i], in.Captions[i].Tags)
		if added := len(paragraphs[i]) - n; added > 0 {
			guard[i] += added
			appended = true
		}
	}
	last := len(paragraphs) - 1
	n := len(paragraphs[last])
	paragraphs = ensureKeywords(paragraphs, in)
	if added := len(paragraphs[last]) - n; added > 0 {
		guard[last] += added
		appended = true
	}
	return paragraphs, appended
}

func splitPinned(p []string, pinned int) (prose, tail []string) {
	if pinned > len(p) {
		pinned = len(p)
	}
	cut := len(p) - pinned
	return p[:cut], p[cut:]
}

// ensureKeywords appends one closing sentence mentioning every
// required or emphasis keyword the body does not yet contain.
func ensureKeywords(paragraphs [][]string, in *ManuscriptInput) [][]string {
	body := renderBody(paragraphs)
	seen := make(map[string]bool)
	var missing []string
	for _, kw := range append(append([]string{}, in.RequiredKeywords...), in.EmphasisKeywords...) {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] || strings.Contains(body, kw) {
			continue
		}
		seen[kw] = true
		missing = append(missing, kw)
	}
	if len(missing) == 0 {
		return paragraphs
	}
	last := len(paragraphs) - 1
	sentence := strings.Join(missing, ", ") + " 면에서도 만족스러웠던 방문이었습니다."
	paragraphs[last] = append(paragraphs[last], sentence)
	return paragraphs
}

func shrinkTo(paragraphs [][]string, guard []int, maxSentences int) [][]string {
	out := make([][]string, len(paragraphs))
	for i, p := range paragraphs {
		prose, pinned := splitPinned(p, guard[i])
		if len(prose) > maxSentences {
			prose = prose[:maxSentences]
		}
		out[i] = append(append([]string(nil), prose...), pinned...)
	}
	return out
}

// capParagraph trims prose to at most cap runes, cutting at a sentence
// boundary when one fits, but always keeping at least one (possibly
// truncated) sentence.
func capParagraph(sentences []string, limit int) []string {
	var kept []string
	total := 0
	for _, s := range sentences {
		l := runeLen(s)
		if total+l > limit {
			break
		}
		kept = append(kept, s)
		total += l
	}
	if len(kept) == 0 && len(sentences) > 0 {
		kept = []string{truncRunes(sentences[0], limit)}
	}
	return kept
}

func bodyLen(paragraphs [][]string) int {
	return runeLen(renderBody(paragraphs))
}

// renderBody renders the marker-headed photo paragraphs, one sentence
// per line, separated by exactly one blank line.
func renderBody(paragraphs [][]string) string {
	blocks := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		blocks[i] = MarkerFor(i+1) + "\n" + strings.Join(p, "\n")
	}
	return strings.Join(blocks, "\n\n")
}

// buildTitle derives the title line deterministically from the place
// name, inside the [TitleMin, TitleMax] rune band.
func buildTitle(placeName string) string {
	suffixes := []string{
		" 다녀와서 하나하나 남겨보는 방문 후기",
		" 솔직하게 적어보는 방문 후기",
		" 다녀온 솔직 방문 후기",
		" 방문 후기",
	}
	for _, sfx := range suffixes {
		t := placeName + sfx
		if l := runeLen(t); l >= TitleMin && l <= TitleMax {
			return t
		}
	}
	// Very short or very long place names: pad, then clamp.
	t := placeName + suffixes[0]
	for runeLen(t) < TitleMin {
		t += " 기록"
	}
	return truncRunes(t, TitleMax)
}

// buildHashtagLine renders the hashtag line: caller-supplied hashtags
// first, then tags auto-derived from captions, deduplicated
// case-insensitively and clamped to the 1..5 band.
func buildHashtagLine(in *ManuscriptInput) string {
	seen := make(map[string]bool)
	var tags []string
	add := func(t string) {
		t = sanitizeTag(t)
		if t == "" {
			return
		}
		key := strings.ToLower(t)
		if seen[key] {
			return
		}
		seen[key] = true
		if len(tags) < HashtagMax {
			tags = append(tags, t)
		}
	}

	for _, t := range in.Hashtags {
		add(t)
	}
	for _, c := range in.Captions {
		for _, t := range c.Tags {
			add(t)
		}
	}
	if len(tags) == 0 {
		add(strings.ReplaceAll(in.PlaceName, " ", ""))
	}
	if len(tags) == 0 {
		add("후기")
	}

	for i, t := range tags {
		tags[i] = "#" + t
	}
	return strings.Join(tags, " ")
}
