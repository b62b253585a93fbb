package filter

import (
	"github.com/dlclark/regexp2"

	"github.com/sunil55999/Zorox/internal/models"
)

// Mention token grammar: @handle with 3-32 word characters. The negative
// lookbehind keeps email-like occurrences (letter/digit/period directly
// before the @) intact; RE2 has no lookbehind, hence regexp2 here.
var (
	mentionRe = regexp2.MustCompile(`(?<![A-Za-z0-9.])@[A-Za-z0-9_]{3,32}\b`, 0)

	// parenthesised form, removed with its parentheses
	mentionParenRe = regexp2.MustCompile(`\([ \t]*@[A-Za-z0-9_]{3,32}[ \t]*\)`, 0)

	// comma-flanked form, removed with the leading comma
	mentionCommaRe = regexp2.MustCompile(`,[ \t]*@[A-Za-z0-9_]{3,32}(?=[ \t]*,)`, 0)

	// bare form; preceding spaces are consumed so no gap is left behind
	mentionBareRe = regexp2.MustCompile(`[ \t]*(?<![A-Za-z0-9.])@[A-Za-z0-9_]{3,32}\b`, 0)
)

// stripMentions removes or replaces mention tokens. With a non-empty
// placeholder the token alone is substituted; otherwise the token goes away
// together with its connective punctuation.
func stripMentions(text string, entities []models.Entity, placeholder string) (string, []models.Entity, int) {
	if text == "" {
		return text, entities, 0
	}

	count := 0
	if placeholder != "" {
		text, entities, count = rewriteMatches(text, entities, mentionRe, placeholder)
		return text, entities, count
	}

	for _, re := range []*regexp2.Regexp{mentionParenRe, mentionCommaRe, mentionBareRe} {
		var n int
		text, entities, n = rewriteMatches(text, entities, re, "")
		count += n
	}
	return text, entities, count
}

// rewriteMatches applies one regexp2 pattern over the whole text, replacing
// every match with repl. regexp2 reports rune offsets; they are translated
// to byte offsets before the entity-aware rewrite.
func rewriteMatches(text string, entities []models.Entity, re *regexp2.Regexp, repl string) (string, []models.Entity, int) {
	m, err := re.FindStringMatch(text)
	if err != nil || m == nil {
		return text, entities, 0
	}

	offsets := runeToByte(text)
	var edits []edit
	var repls []string
	count := 0
	for m != nil {
		start := offsets[m.Index]
		end := offsets[m.Index+m.Length]
		edits = append(edits, edit{start: start, end: end, repl: len(repl)})
		repls = append(repls, repl)
		count++
		m, err = re.FindNextMatch(m)
		if err != nil {
			break
		}
	}
	out, ents := applyEdits(text, entities, edits, repls)
	return out, ents, count
}

// runeToByte builds the rune-index→byte-offset table, with one extra slot
// for the end of the string.
func runeToByte(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))
	return offsets
}
