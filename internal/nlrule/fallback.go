package nlrule

import (
	"fmt"
	"sort"
)

// FallbackMatcher is the last-resort recognizer: any sentence naming two
// known fields and an operator phrase compiles to a comparison between the
// first two fields mentioned.
//
// The operator may sit anywhere in the sentence, even before the first field.
type FallbackMatcher struct {
	syn SynonymTable
}

type fieldHit struct {
	alias      FieldAlias
	start, end int
}

// Match compiles sentence, which must already be normalized. original is
// kept verbatim as the error message.
func (f FallbackMatcher) Match(reg *AliasRegistry, sentence, original string) (CompiledRule, bool) {
	folded := fold(sentence)
	hits := f.locate(reg, folded)
	if len(hits) < 2 {
		return CompiledRule{}, false
	}
	om, ok := f.syn.findOperator(folded, Operator.Binary)
	if !ok {
		return CompiledRule{}, false
	}

	a, b := hits[0].alias.ID, hits[1].alias.ID
	expr := fmt.Sprintf("%s %s %s", a, om.Op, b)
	if containsWord(folded, "now") {
		expr = fmt.Sprintf("%s %s now ? %s %s %s : true", a, om.Op, b, om.Op, a)
	}
	return newRule(expr, original, []string{a, b}), true
}

// locate finds the first mention of every alias, ordered by position. Longer
// labels claim their span first, so "Admission Date" inside "Expected
// Admission Date" is not reported as a second field. A field whose label is
// absent is looked up by id.
func (f FallbackMatcher) locate(reg *AliasRegistry, folded string) []fieldHit {
	aliases := reg.Aliases()
	sort.SliceStable(aliases, func(i, j int) bool {
		return len(foldKey(aliases[i].Label)) > len(foldKey(aliases[j].Label))
	})

	var hits []fieldHit
	for _, a := range aliases {
		for _, key := range []string{foldKey(a.Label), foldKey(a.ID)} {
			if h, ok := firstUnclaimed(folded, key, hits); ok {
				h.alias = a
				hits = append(hits, h)
				break
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

func firstUnclaimed(text, key string, claimed []fieldHit) (fieldHit, bool) {
	for from := 0; from <= len(text); {
		i := indexWord(text, key, from)
		if i < 0 {
			break
		}
		h := fieldHit{start: i, end: i + len(key)}
		free := true
		for _, c := range claimed {
			if h.start < c.end && c.start < h.end {
				free = false
				break
			}
		}
		if free {
			return h, true
		}
		from = i + 1
	}
	return fieldHit{}, false
}
