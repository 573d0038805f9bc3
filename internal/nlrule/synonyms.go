package nlrule

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Operator is the expression symbol a comparison phrase maps to.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpWithin       Operator = "within"
)

var binaryOperators = []Operator{OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual, OpGreater, OpLess}

// Valid reports whether o is one of the known operator symbols.
func (o Operator) Valid() bool {
	return o == OpWithin || o.Binary()
}

// Binary reports whether o compares exactly two operands.
func (o Operator) Binary() bool {
	for _, b := range binaryOperators {
		if o == b {
			return true
		}
	}
	return false
}

// clause is the prose form used when restating a condition ("A is greater than B").
func (o Operator) clause() string {
	switch o {
	case OpGreater:
		return "is greater than"
	case OpLess:
		return "is less than"
	case OpEqual:
		return "equals"
	case OpNotEqual:
		return "does not equal"
	case OpGreaterEqual:
		return "is at least"
	case OpLessEqual:
		return "is at most"
	}
	return string(o)
}

// requirement is the prose form used in error messages ("A must be greater than B").
func (o Operator) requirement() string {
	switch o {
	case OpGreater:
		return "must be greater than"
	case OpLess:
		return "must be less than"
	case OpEqual:
		return "must be equal to"
	case OpNotEqual:
		return "must not be equal to"
	case OpGreaterEqual:
		return "must be at least"
	case OpLessEqual:
		return "must be at most"
	}
	return "must satisfy " + string(o)
}

// SynonymTable maps natural-language phrases to operators and sentence roles.
// It is plain data: compilers take a copy at construction and never mutate it.
type SynonymTable struct {
	Operators         map[string]Operator `yaml:"operators" json:"operators"`
	Logical           map[string]string   `yaml:"logical" json:"logical"`
	Conditions        []string            `yaml:"conditions" json:"conditions"`
	NegatedConditions []string            `yaml:"negated_conditions" json:"negated_conditions"`
	Then              []string            `yaml:"then" json:"then"`
	Else              []string            `yaml:"else" json:"else"`
}

// DefaultSynonyms returns a fresh copy of the built-in vocabulary.
func DefaultSynonyms() SynonymTable {
	return SynonymTable{
		Operators: map[string]Operator{
			"greater than": OpGreater,
			"more than":    OpGreater,
			"after":        OpGreater,
			"later than":   OpGreater,
			"exceeds":      OpGreater,
			"above":        OpGreater,

			"less than":    OpLess,
			"fewer than":   OpLess,
			"before":       OpLess,
			"earlier than": OpLess,
			"below":        OpLess,

			"equals":      OpEqual,
			"equal to":    OpEqual,
			"same as":     OpEqual,
			"the same as": OpEqual,

			"not equal to":   OpNotEqual,
			"does not equal": OpNotEqual,
			"different from": OpNotEqual,

			"at least":                 OpGreaterEqual,
			"greater than or equal to": OpGreaterEqual,
			"no less than":             OpGreaterEqual,
			"no earlier than":          OpGreaterEqual,
			"on or after":              OpGreaterEqual,

			"at most":               OpLessEqual,
			"less than or equal to": OpLessEqual,
			"no more than":          OpLessEqual,
			"no later than":         OpLessEqual,
			"on or before":          OpLessEqual,
			"cannot exceed":         OpLessEqual,

			"within":  OpWithin,
			"between": OpWithin,
		},
		Logical: map[string]string{
			"and": "&&",
			"or":  "||",
		},
		Conditions:        []string{"if", "when"},
		NegatedConditions: []string{"unless"},
		Then:              []string{"then"},
		Else:              []string{"else", "otherwise"},
	}
}

// Clone returns a deep copy.
func (t SynonymTable) Clone() SynonymTable {
	c := SynonymTable{
		Operators:         make(map[string]Operator, len(t.Operators)),
		Logical:           make(map[string]string, len(t.Logical)),
		Conditions:        append([]string(nil), t.Conditions...),
		NegatedConditions: append([]string(nil), t.NegatedConditions...),
		Then:              append([]string(nil), t.Then...),
		Else:              append([]string(nil), t.Else...),
	}
	for k, v := range t.Operators {
		c.Operators[k] = v
	}
	for k, v := range t.Logical {
		c.Logical[k] = v
	}
	return c
}

// Validate checks that every phrase maps to a known symbol and that the
// sentence-role lists needed by the conditional patterns are present.
func (t SynonymTable) Validate() error {
	if len(t.Operators) == 0 {
		return fmt.Errorf("vocabulary defines no operators")
	}
	for phrase, op := range t.Operators {
		if strings.TrimSpace(phrase) == "" {
			return fmt.Errorf("empty operator phrase")
		}
		if !op.Valid() {
			return fmt.Errorf("operator phrase %q: unknown symbol %q", phrase, op)
		}
	}
	for word, sym := range t.Logical {
		if sym != "&&" && sym != "||" {
			return fmt.Errorf("logical word %q: unknown symbol %q", word, sym)
		}
	}
	if len(t.Conditions) == 0 {
		return fmt.Errorf("vocabulary defines no condition markers")
	}
	if len(t.Then) == 0 {
		return fmt.Errorf("vocabulary defines no then markers")
	}
	return nil
}

// normalized returns a copy whose phrases are case-folded and whitespace-collapsed.
func (t SynonymTable) normalized() SynonymTable {
	c := SynonymTable{
		Operators:         make(map[string]Operator, len(t.Operators)),
		Logical:           make(map[string]string, len(t.Logical)),
		Conditions:        foldAll(t.Conditions),
		NegatedConditions: foldAll(t.NegatedConditions),
		Then:              foldAll(t.Then),
		Else:              foldAll(t.Else),
	}
	for k, v := range t.Operators {
		c.Operators[foldKey(k)] = v
	}
	for k, v := range t.Logical {
		c.Logical[foldKey(k)] = v
	}
	return c
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		k := foldKey(w)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// OperatorFor maps a phrase or symbol to its operator. When the phrase is not
// in the table verbatim, the longest table phrase it contains wins, so
// "is greater than or equal to" resolves to >= rather than >.
func (t SynonymTable) OperatorFor(phrase string) (Operator, bool) {
	key := foldKey(phrase)
	if key == "" {
		return "", false
	}
	if op := Operator(key); op.Binary() {
		return op, true
	}
	if op, ok := t.Operators[key]; ok {
		return op, true
	}
	best := ""
	for p := range t.Operators {
		if len(p) > len(best) && containsWord(key, p) {
			best = p
		}
	}
	if best == "" {
		return "", false
	}
	return t.Operators[best], true
}

// OperatorMatch is an operator phrase located in a sentence.
type OperatorMatch struct {
	Op     Operator
	Phrase string
	Index  int
}

// FindOperator returns the earliest operator phrase in text; on equal start
// positions the longest phrase wins.
func (t SynonymTable) FindOperator(text string) (OperatorMatch, bool) {
	return t.findOperator(fold(text), func(Operator) bool { return true })
}

func (t SynonymTable) findOperator(folded string, accept func(Operator) bool) (OperatorMatch, bool) {
	best := OperatorMatch{Index: -1}
	for phrase, op := range t.Operators {
		if !accept(op) {
			continue
		}
		i := indexWord(folded, foldKey(phrase), 0)
		if i < 0 {
			continue
		}
		if best.Index < 0 || i < best.Index || (i == best.Index && len(phrase) > len(best.Phrase)) ||
			(i == best.Index && len(phrase) == len(best.Phrase) && phrase < best.Phrase) {
			best = OperatorMatch{Op: op, Phrase: phrase, Index: i}
		}
	}
	return best, best.Index >= 0
}

// LogicalFor maps a connective word to && or ||.
func (t SynonymTable) LogicalFor(word string) (string, bool) {
	sym, ok := t.Logical[foldKey(word)]
	return sym, ok
}

func (t SynonymTable) IsCondition(word string) bool {
	return containsKey(t.Conditions, word) || t.IsNegatedCondition(word)
}

func (t SynonymTable) IsNegatedCondition(word string) bool {
	return containsKey(t.NegatedConditions, word)
}

func (t SynonymTable) IsThen(word string) bool { return containsKey(t.Then, word) }
func (t SynonymTable) IsElse(word string) bool { return containsKey(t.Else, word) }

// IsMarker reports whether word is a sentence-structure word (condition,
// then, else, or a logical connective) that can never name a field.
func (t SynonymTable) IsMarker(word string) bool {
	if t.IsCondition(word) || t.IsThen(word) || t.IsElse(word) {
		return true
	}
	_, ok := t.LogicalFor(word)
	return ok
}

func containsKey(list []string, word string) bool {
	k := foldKey(word)
	for _, w := range list {
		if foldKey(w) == k {
			return true
		}
	}
	return false
}

// phrasesFor returns the phrases accepted by keep, longest first.
func (t SynonymTable) phrasesFor(keep func(Operator) bool) []string {
	var out []string
	for p, op := range t.Operators {
		if keep(op) {
			out = append(out, p)
		}
	}
	sortLongestFirst(out)
	return out
}

func sortLongestFirst(words []string) {
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
}

// vocabularyFile is the on-disk form of a synonym table.
type vocabularyFile struct {
	ExtendsDefault bool `yaml:"extends_default"`
	SynonymTable   `yaml:",inline"`
}

// LoadSynonyms reads a YAML vocabulary. With extends_default set, its entries
// are merged onto DefaultSynonyms; otherwise the file is the whole table.
func LoadSynonyms(r io.Reader) (SynonymTable, error) {
	var f vocabularyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return SynonymTable{}, fmt.Errorf("decode vocabulary: %w", err)
	}

	table := f.SynonymTable
	if f.ExtendsDefault {
		table = mergeSynonyms(DefaultSynonyms(), f.SynonymTable)
	}
	if err := table.Validate(); err != nil {
		return SynonymTable{}, fmt.Errorf("invalid vocabulary: %w", err)
	}
	return table.normalized(), nil
}

// LoadSynonymsFile is LoadSynonyms over a file path.
func LoadSynonymsFile(path string) (SynonymTable, error) {
	fh, err := os.Open(path)
	if err != nil {
		return SynonymTable{}, fmt.Errorf("open vocabulary: %w", err)
	}
	defer fh.Close()
	return LoadSynonyms(fh)
}

// WriteSynonyms encodes t as a vocabulary file. The CLI uses it to seed custom vocabularies.
func WriteSynonyms(w io.Writer, t SynonymTable) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(vocabularyFile{SynonymTable: t}); err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	return enc.Close()
}

func mergeSynonyms(base, extra SynonymTable) SynonymTable {
	out := base.Clone()
	for k, v := range extra.Operators {
		out.Operators[k] = v
	}
	for k, v := range extra.Logical {
		out.Logical[k] = v
	}
	out.Conditions = append(out.Conditions, extra.Conditions...)
	out.NegatedConditions = append(out.NegatedConditions, extra.NegatedConditions...)
	out.Then = append(out.Then, extra.Then...)
	out.Else = append(out.Else, extra.Else...)
	return out
}
