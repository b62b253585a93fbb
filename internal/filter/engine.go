// Package filter implements the message filter and transform engine: word
// blocking, media gating, header/footer stripping, mention removal and
// length bounds.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

// DropReason identifies why a message was rejected.
type DropReason string

// DropReason constants.
const (
	DropGlobalWord DropReason = "global_word"
	DropPairWord   DropReason = "pair_word"
	DropMediaType  DropReason = "media_type"
	DropLength     DropReason = "length"
	DropAge        DropReason = "age"
)

// Result is the outcome of applying the engine to one message for one pair.
type Result struct {
	Drop   bool
	Reason DropReason
	// Word carries the blocked term on word drops.
	Word string

	Text     string
	Entities []models.Entity

	HeaderRemoved   bool
	FooterRemoved   bool
	MentionsRemoved int
}

// WordSource supplies the blocked-word sets. Implemented by the store.
type WordSource interface {
	BlockedWordsFor(pairID int64) (global, pair []string)
}

// Engine applies the per-pair filter policy. It is safe for concurrent use;
// compiled patterns are cached.
type Engine struct {
	words WordSource
	log   *logger.Logger

	// pattern string → *regexp.Regexp or compileError
	cache sync.Map
}

type compileError struct{ err error }

// New creates a filter engine backed by the given word source.
func New(words WordSource, log *logger.Logger) *Engine {
	return &Engine{words: words, log: log}
}

// Apply runs the fixed filter sequence for one message under one pair's
// policy: global words, pair words, media gate, header strip, footer strip,
// mention removal, length gate. The input message is not mutated.
func (e *Engine) Apply(msg *models.Message, pair *models.Pair) Result {
	policy := &pair.Filters
	global, pairWords := e.words.BlockedWordsFor(pair.ID)

	// 1. global word block against the original text
	if w := e.findBlockedWord(msg.Text, global); w != "" {
		return Result{Drop: true, Reason: DropGlobalWord, Word: w}
	}

	// 2. pair word block: policy-carried terms plus admin-managed ones
	if w := e.findBlockedWord(msg.Text, policy.BlockedWords); w != "" {
		return Result{Drop: true, Reason: DropPairWord, Word: w}
	}
	if w := e.findBlockedWord(msg.Text, pairWords); w != "" {
		return Result{Drop: true, Reason: DropPairWord, Word: w}
	}

	// 3. media-type gate
	if !policy.AllowsMedia(msg.MediaTagOf()) {
		return Result{Drop: true, Reason: DropMediaType}
	}

	text := msg.Text
	entities := msg.Entities
	res := Result{}

	// 4./5. header and footer strip
	if policy.HeaderPattern != "" {
		if re := e.compiled(policy.HeaderPattern); re != nil {
			text, entities, res.HeaderRemoved = stripEdge(text, entities, re, false)
		}
	}
	if policy.FooterPattern != "" {
		if re := e.compiled(policy.FooterPattern); re != nil {
			text, entities, res.FooterRemoved = stripEdge(text, entities, re, true)
		}
	}

	// 6. mention removal
	if policy.RemoveMentions {
		text, entities, res.MentionsRemoved = stripMentions(text, entities, policy.MentionPlaceholder)
		if res.MentionsRemoved > 0 {
			text, entities = collapseSpaces(text, entities)
		}
	}

	// 7. length gate on the final text
	n := utf8.RuneCountInString(text)
	if policy.MinLength > 0 && n < policy.MinLength {
		return Result{Drop: true, Reason: DropLength}
	}
	if policy.MaxLength > 0 && n > policy.MaxLength {
		return Result{Drop: true, Reason: DropLength}
	}

	// message-age gate
	if policy.MaxAgeMinutes > 0 && !msg.Timestamp.IsZero() {
		if time.Since(msg.Timestamp) > time.Duration(policy.MaxAgeMinutes)*time.Minute {
			return Result{Drop: true, Reason: DropAge}
		}
	}

	res.Text = text
	res.Entities = entities
	return res
}

// findBlockedWord returns the first term matching the text on a word
// boundary, case-insensitively. Substring hits do not trigger.
func (e *Engine) findBlockedWord(text string, words []string) string {
	if text == "" || len(words) == 0 {
		return ""
	}
	for _, w := range words {
		if w == "" {
			continue
		}
		re := e.compiledWord(w)
		if re != nil && re.MatchString(text) {
			return w
		}
	}
	return ""
}

func (e *Engine) compiledWord(w string) *regexp.Regexp {
	key := "word:" + w
	if v, ok := e.cache.Load(key); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(w)) + `\b`)
	if err != nil {
		// quoted terms always compile; guard anyway
		e.cache.Store(key, compileError{err})
		return nil
	}
	e.cache.Store(key, re)
	return re
}

// compiled returns the case-insensitive compile of a user pattern. Compile
// errors disable the individual pattern, never the pair.
func (e *Engine) compiled(pattern string) *regexp.Regexp {
	if v, ok := e.cache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		e.log.Warn().Str("pattern", pattern).Err(err).Msg("filter: invalid pattern disabled")
		e.cache.Store(pattern, compileError{err})
		return nil
	}
	e.cache.Store(pattern, re)
	return re
}

// CheckPattern reports whether a user pattern compiles.
func CheckPattern(pattern string) error {
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	return nil
}

// stripEdge removes the contiguous run of pattern-matching lines at the top
// (footer=false) or bottom (footer=true) of the text. Scanning stops at the
// first non-matching line. Empty lines left behind solely by the removal are
// dropped with it.
func stripEdge(text string, entities []models.Entity, re *regexp.Regexp, footer bool) (string, []models.Entity, bool) {
	if text == "" {
		return text, entities, false
	}
	lines := strings.Split(text, "\n")

	matches := func(line string) bool {
		loc := re.FindStringIndex(line)
		return loc != nil && loc[0] == 0
	}

	removed := 0
	if !footer {
		for removed < len(lines) && matches(lines[removed]) {
			removed++
		}
		if removed == 0 {
			return text, entities, false
		}
		// absorb blank lines exposed by the removal
		for removed < len(lines) && strings.TrimSpace(lines[removed]) == "" {
			removed++
		}
		cut := 0
		for i := 0; i < removed; i++ {
			cut += len(lines[i]) + 1
		}
		if cut > len(text) {
			cut = len(text)
		}
		out, ents := applyEdits(text, entities, []edit{{start: 0, end: cut}}, nil)
		return out, ents, true
	}

	last := len(lines)
	for last > 0 && matches(lines[last-1]) {
		last--
		removed++
	}
	if removed == 0 {
		return text, entities, false
	}
	for last > 0 && strings.TrimSpace(lines[last-1]) == "" {
		last--
	}
	keep := 0
	for i := 0; i < last; i++ {
		keep += len(lines[i]) + 1
	}
	if keep > 0 {
		keep-- // drop the newline preceding the removed block
	}
	out, ents := applyEdits(text, entities, []edit{{start: keep, end: len(text)}}, nil)
	return out, ents, true
}

// collapseSpaces merges runs of spaces and tabs within each line. Line
// breaks are never collapsed, so multi-line structure survives verbatim.
func collapseSpaces(text string, entities []models.Entity) (string, []models.Entity) {
	var edits []edit
	var repls []string
	i := 0
	for i < len(text) {
		if text[i] == ' ' || text[i] == '\t' {
			j := i
			for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
				j++
			}
			if j-i > 1 {
				edits = append(edits, edit{start: i, end: j, repl: 1})
				repls = append(repls, " ")
			}
			i = j
			continue
		}
		i++
	}
	// spaces touching a line edge vanish entirely
	out, ents := applyEdits(text, entities, edits, repls)
	return trimLineEdges(out, ents)
}

// trimLineEdges drops leading and trailing spaces of every line, leaving
// line breaks alone.
func trimLineEdges(text string, entities []models.Entity) (string, []models.Entity) {
	var edits []edit
	lineStart := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			j := lineStart
			for j < i && (text[j] == ' ' || text[j] == '\t') {
				j++
			}
			if j > lineStart {
				edits = append(edits, edit{start: lineStart, end: j})
			}
			k := i
			for k > j && (text[k-1] == ' ' || text[k-1] == '\t') {
				k--
			}
			if k < i {
				edits = append(edits, edit{start: k, end: i})
			}
			lineStart = i + 1
		}
	}
	if len(edits) == 0 {
		return text, entities
	}
	return applyEdits(text, entities, edits, nil)
}
