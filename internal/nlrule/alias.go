package nlrule

import (
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"

	"rulecompiler/internal/metadata"
)

// FieldAlias binds a display label to the field id used inside expressions.
type FieldAlias struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// BuildAliases flattens a template into aliases in declaration order.
// Fields without an id or a usable label are dropped; a repeated id keeps
// its first declaration.
func BuildAliases(tpl *metadata.Template) []FieldAlias {
	var aliases []FieldAlias
	seen := make(map[string]bool)
	for _, f := range tpl.AllFields() {
		if f.MalformedLabel() {
			continue
		}
		id := strings.TrimSpace(f.ID)
		label := f.DisplayLabel()
		if id == "" || label == "" || seen[id] {
			continue
		}
		seen[id] = true
		aliases = append(aliases, FieldAlias{ID: id, Label: label})
	}
	return aliases
}

// AliasRegistry answers label and id lookups for one template.
// Refresh swaps the whole alias set under a lock, so readers never see a
// partially built registry.
type AliasRegistry struct {
	mu      sync.RWMutex
	aliases []FieldAlias
	byKey   map[string]int // folded label or id -> index into aliases
	byID    map[string]int
}

func NewAliasRegistry() *AliasRegistry {
	return &AliasRegistry{
		byKey: make(map[string]int),
		byID:  make(map[string]int),
	}
}

// NewAliasRegistryFor returns a registry already refreshed from tpl.
func NewAliasRegistryFor(tpl *metadata.Template) *AliasRegistry {
	r := NewAliasRegistry()
	r.Refresh(tpl)
	return r
}

// Refresh rebuilds the registry from tpl. A nil template empties it.
func (r *AliasRegistry) Refresh(tpl *metadata.Template) {
	aliases := BuildAliases(tpl)
	byKey := make(map[string]int, 2*len(aliases))
	byID := make(map[string]int, len(aliases))
	// Labels are indexed before ids so a label never loses to another field's id.
	for i, a := range aliases {
		byID[a.ID] = i
		if k := foldKey(a.Label); k != "" {
			if _, taken := byKey[k]; !taken {
				byKey[k] = i
			}
		}
	}
	for i, a := range aliases {
		if k := foldKey(a.ID); k != "" {
			if _, taken := byKey[k]; !taken {
				byKey[k] = i
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = aliases
	r.byKey = byKey
	r.byID = byID
}

// Aliases returns a copy of the current alias list.
func (r *AliasRegistry) Aliases() []FieldAlias {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]FieldAlias(nil), r.aliases...)
}

// Len returns the number of registered aliases.
func (r *AliasRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aliases)
}

// LookupByText resolves candidate text to an alias by exact, case-insensitive
// label or id match.
func (r *AliasRegistry) LookupByText(text string) (FieldAlias, bool) {
	k := foldKey(cleanCapture(text))
	if k == "" {
		return FieldAlias{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byKey[k]
	if !ok {
		return FieldAlias{}, false
	}
	return r.aliases[i], true
}

// Has reports whether id is a registered field id.
func (r *AliasRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// LabelOf returns the display label for id, or id itself when unregistered.
func (r *AliasRegistry) LabelOf(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.byID[id]; ok {
		return r.aliases[i].Label
	}
	return id
}

// Suggest returns up to limit labels that fuzzily match words of text, best
// first. It is meant for "did you mean" hints next to an unparseable rule.
func (r *AliasRegistry) Suggest(text string, limit int) []string {
	aliases := r.Aliases()
	if limit <= 0 || len(aliases) == 0 {
		return nil
	}
	labels := make([]string, len(aliases))
	for i, a := range aliases {
		labels[i] = fold(a.Label)
	}

	best := make(map[int]int) // alias index -> best score
	for _, word := range strings.Fields(fold(text)) {
		word = strings.Trim(word, ".,;:!?\"'")
		if len([]rune(word)) < 4 || isNumeric(word) {
			continue
		}
		for _, m := range fuzzy.Find(word, labels) {
			if s, ok := best[m.Index]; !ok || m.Score > s {
				best[m.Index] = m.Score
			}
		}
	}

	idx := make([]int, 0, len(best))
	for i := range best {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool {
		if best[idx[a]] != best[idx[b]] {
			return best[idx[a]] > best[idx[b]]
		}
		return aliases[idx[a]].Label < aliases[idx[b]].Label
	})
	if len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = aliases[j].Label
	}
	return out
}
