package filter

import (
	"sort"
	"strings"

	"github.com/sunil55999/Zorox/internal/models"
)

// edit describes one text rewrite: [start,end) replaced by repl bytes.
type edit struct {
	start, end int
	repl       int
}

// applyEdits rewrites text with the given replacement strings and remaps the
// entity ranges. Edits must be non-overlapping; they are sorted here.
// An entity fully inside a removed region is dropped; one straddling a
// removal is clipped to its surviving portion.
func applyEdits(text string, entities []models.Entity, edits []edit, repls []string) (string, []models.Entity) {
	if len(edits) == 0 {
		return text, entities
	}

	idx := make([]int, len(edits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return edits[idx[a]].start < edits[idx[b]].start })

	var b strings.Builder
	prev := 0
	for _, i := range idx {
		e := edits[i]
		b.WriteString(text[prev:e.start])
		if repls != nil && repls[i] != "" {
			b.WriteString(repls[i])
		}
		prev = e.end
	}
	b.WriteString(text[prev:])

	out := make([]models.Entity, 0, len(entities))
	for _, ent := range entities {
		ns := remapPos(ent.Start, edits, idx, false)
		ne := remapPos(ent.End, edits, idx, true)
		if ne <= ns {
			continue
		}
		ent.Start, ent.End = ns, ne
		out = append(out, ent)
	}
	return b.String(), out
}

// remapPos maps a byte offset through the edit list. Positions inside a
// rewritten region collapse to the region's boundary: starts move past the
// replacement, ends move before it.
func remapPos(p int, edits []edit, idx []int, isEnd bool) int {
	shift := 0
	for _, i := range idx {
		e := edits[i]
		switch {
		case p <= e.start:
			return p + shift
		case p >= e.end:
			shift += e.repl - (e.end - e.start)
		default:
			if isEnd {
				return e.start + shift
			}
			return e.start + e.repl + shift
		}
	}
	return p + shift
}
