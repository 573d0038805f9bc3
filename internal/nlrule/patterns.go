package nlrule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Pattern priorities; lower runs first.
//
// Multi-clause shapes must stay ahead of the single comparison: the
// comparison recognizer also matches inside a conditional sentence ("if A
// greater than B and ...") and would otherwise emit a truncated rule.
// Likewise the compound conditional must run before the single conditional,
// and the numeric ceiling/floor shapes before the generic comparison whose
// vocabulary also contains "cannot exceed" and "at least".
const (
	PriorityCompoundConditional = 10
	PriorityConditional         = 20
	PriorityConditionalNoElse   = 25
	PriorityRequiredIf          = 30
	PriorityRange               = 40
	PriorityCeiling             = 50
	PriorityFloor               = 60
	PriorityComparison          = 100
)

type slotKind int

const (
	fieldSlot        slotKind = iota // must name a known field
	fieldOrValueSlot                 // known field, number, now or string literal
	valueSlot                        // literal assigned by a then/else branch
	numberSlot                       // numeric literal
	operatorSlot                     // binary comparison phrase or symbol
	logicalSlot                      // and / or
	markerSlot                       // condition word opening the sentence
)

type slot struct {
	kind     slotKind
	optional bool
}

// binding is one capture group after resolution.
type binding struct {
	text    string
	present bool
	alias   *FieldAlias
	lit     string
	op      Operator
	logic   string
	negated bool
}

// ref is the expression text for an operand: the field id or the literal.
func (b binding) ref() string {
	if b.alias != nil {
		return b.alias.ID
	}
	return b.lit
}

// label is the message text for an operand: the display label or the words as written.
func (b binding) label() string {
	if b.alias != nil {
		return b.alias.Label
	}
	return b.text
}

type match []binding

// fieldIDs lists referenced field ids in slot order without repeats.
func (m match) fieldIDs() []string {
	ids := []string{}
	seen := make(map[string]bool)
	for _, b := range m {
		if b.alias == nil || seen[b.alias.ID] {
			continue
		}
		seen[b.alias.ID] = true
		ids = append(ids, b.alias.ID)
	}
	return ids
}

// fieldRefs counts slots that resolved to a field, repeats included.
func (m match) fieldRefs() int {
	n := 0
	for _, b := range m {
		if b.alias != nil {
			n++
		}
	}
	return n
}

// Pattern pairs a recognizer for one grammatical shape with the generator
// that turns its resolved capture groups into a rule.
type Pattern struct {
	Name      string
	Priority  int
	MinFields int

	re       *regexp.Regexp
	rest     *regexp.Regexp // everything after the subject group, anchored
	subject  int            // index of the subject group
	slots    []slot
	generate func(m match) CompiledRule
}

// Recognize returns the capture groups when sentence has the pattern's shape.
func (p Pattern) Recognize(sentence string) ([]string, bool) {
	groups := p.re.FindStringSubmatch(sentence)
	if groups == nil {
		return nil, false
	}
	return groups[1:], true
}

// splits returns every reading of sentence, the shortest subject first.
// A label may itself contain an operator word ("Follow Up After Discharge"),
// so the subject boundary is moved right word by word and the remainder
// matched again.
func (p Pattern) splits(sentence string) [][]string {
	loc := p.re.FindStringSubmatchIndex(sentence)
	if loc == nil {
		return nil
	}
	first := make([]string, 0, len(p.slots))
	for g := 1; g <= p.re.NumSubexp(); g++ {
		if loc[2*g] < 0 {
			first = append(first, "")
			continue
		}
		first = append(first, sentence[loc[2*g]:loc[2*g+1]])
	}
	out := [][]string{first}

	start, end := loc[2*(p.subject+1)], loc[2*(p.subject+1)+1]
	for i := end + 1; i < len(sentence); i++ {
		if sentence[i] != ' ' || sentence[i-1] == ' ' {
			continue
		}
		rest := p.rest.FindStringSubmatch(sentence[i:])
		if rest == nil {
			continue
		}
		groups := make([]string, 0, len(first))
		groups = append(groups, first[:p.subject]...)
		groups = append(groups, sentence[start:i])
		groups = append(groups, rest[1:]...)
		out = append(out, groups)
	}
	return out
}

// bind resolves every capture group. A group that cannot fill its slot, or
// too few field references overall, rejects the pattern.
func (p Pattern) bind(groups []string, res resolver) (match, bool) {
	m := make(match, len(groups))
	for i, g := range groups {
		b, ok := res.resolve(p.slots[i], g)
		if !ok {
			return nil, false
		}
		m[i] = b
	}
	if m.fieldRefs() < p.MinFields {
		return nil, false
	}
	return m, true
}

// resolver fills slots against one alias registry and vocabulary.
type resolver struct {
	syn SynonymTable
	reg *AliasRegistry
}

func (r resolver) resolve(s slot, raw string) (binding, bool) {
	text := cleanCapture(raw)
	b := binding{text: text, present: text != ""}
	if !b.present {
		return b, s.optional
	}

	switch s.kind {
	case fieldSlot:
		if isNumeric(text) || r.syn.IsMarker(text) {
			return b, false
		}
		a, ok := r.reg.LookupByText(text)
		if !ok {
			return b, false
		}
		b.alias = &a

	case fieldOrValueSlot:
		if isNumeric(text) {
			b.lit = literal(text)
			return b, true
		}
		if r.syn.IsMarker(text) {
			return b, false
		}
		if a, ok := r.reg.LookupByText(text); ok {
			b.alias = &a
			return b, true
		}
		if foldKey(text) == "now" {
			b.lit = "now"
			return b, true
		}
		if r.hasMarkerWord(text) {
			return b, false
		}
		if _, ok := r.syn.FindOperator(text); ok {
			return b, false
		}
		b.lit = literal(text)

	case valueSlot:
		if r.hasMarkerWord(text) {
			return b, false
		}
		b.lit = literal(text)

	case numberSlot:
		if !isNumeric(text) {
			return b, false
		}
		b.lit = literal(text)

	case operatorSlot:
		if op, ok := copulaOperators[foldKey(text)]; ok {
			b.op = op
			return b, true
		}
		op, ok := r.syn.OperatorFor(text)
		if !ok || !op.Binary() {
			return b, false
		}
		b.op = op

	case logicalSlot:
		sym, ok := r.syn.LogicalFor(text)
		if !ok {
			return b, false
		}
		b.logic = sym

	case markerSlot:
		if !r.syn.IsCondition(text) {
			return b, false
		}
		b.negated = r.syn.IsNegatedCondition(text)
	}
	return b, true
}

// hasMarkerWord catches a capture that swallowed part of the sentence structure.
func (r resolver) hasMarkerWord(text string) bool {
	for _, w := range strings.Fields(text) {
		if r.syn.IsMarker(w) {
			return true
		}
	}
	return false
}

// copula absorbs the verb phrase between a subject and its operator.
const copula = `(?:(?:is|are|must\s+be|should\s+be|shall\s+be|has\s+to\s+be|needs\s+to\s+be|must|should|shall|be)\s+)?`

const numberExpr = `(-?\d+(?:\.\d+)?)`

var binarySymbols = []string{">=", "<=", "==", "!=", ">", "<"}

// copulaOperators read a bare verb as equality inside a condition clause
// ("if status is active"). They are kept out of the vocabulary so the
// fallback matcher never mistakes the copula of "is after" for an operator.
var copulaOperators = map[string]Operator{
	"is":     OpEqual,
	"is not": OpNotEqual,
}

// buildPatterns compiles the pattern set for a vocabulary, sorted by priority.
func buildPatterns(syn SynonymTable) []Pattern {
	var (
		op           = alt(append(syn.phrasesFor(Operator.Binary), binarySymbols...))
		condOp       = alt(append(append(syn.phrasesFor(Operator.Binary), binarySymbols...), "is not", "is"))
		cond         = alt(append(append([]string(nil), syn.Conditions...), syn.NegatedConditions...))
		positiveCond = alt(syn.Conditions)
		then         = alt(syn.Then)
		els          = alt(syn.Else)
		logic        = alt(syn.logicalWords(""))
		conj         = alt(syn.logicalWords("&&"))
		within       = alt(syn.phrasesFor(func(o Operator) bool { return o == OpWithin }))
	)

	assign := `\s+(.+?)\s*=\s*(.+?)`
	elseClause := ""
	if els != "" {
		elseClause = `(?:\s*,?\s+` + els + assign + `)?`
	}

	// Every shape is head + subject + rest. The rest is kept on its own so
	// the subject boundary can be retried when the first reading fails.
	var patterns []Pattern
	add := func(p Pattern, head, rest string, parts ...string) {
		for _, part := range parts {
			if part == "" {
				return // vocabulary lacks a word class this shape needs
			}
		}
		p.re = regexp.MustCompile(`(?i)^` + head + `(.+?)` + rest + `$`)
		p.rest = regexp.MustCompile(`(?i)^` + rest + `$`)
		p.subject = regexp.MustCompile(head).NumSubexp()
		if p.re.NumSubexp() != len(p.slots) {
			panic(fmt.Sprintf("nlrule: pattern %s has %d groups for %d slots", p.Name, p.re.NumSubexp(), len(p.slots)))
		}
		patterns = append(patterns, p)
	}

	condHead := `(` + cond + `)\s+`
	condRest := `\s+` + copula + `(` + condOp + `)\s+(.+?)`

	add(Pattern{
		Name:      "compound-conditional",
		Priority:  PriorityCompoundConditional,
		MinFields: 3,
		slots: []slot{
			{kind: markerSlot}, {kind: fieldSlot}, {kind: operatorSlot}, {kind: fieldOrValueSlot},
			{kind: logicalSlot},
			{kind: fieldSlot}, {kind: operatorSlot}, {kind: fieldOrValueSlot},
			{kind: fieldSlot}, {kind: valueSlot},
			{kind: fieldSlot, optional: true}, {kind: valueSlot, optional: true},
		},
		generate: generateCompoundConditional,
	}, condHead, condRest+`\s+(`+logic+`)\s+(.+?)\s+`+copula+`(`+condOp+`)\s+(.+?)\s*,?\s+`+then+assign+elseClause,
		cond, logic, then, els)

	add(Pattern{
		Name:      "conditional",
		Priority:  PriorityConditional,
		MinFields: 3,
		slots: []slot{
			{kind: markerSlot}, {kind: fieldSlot}, {kind: operatorSlot}, {kind: fieldOrValueSlot},
			{kind: fieldSlot}, {kind: valueSlot},
			{kind: fieldSlot}, {kind: valueSlot},
		},
		generate: generateConditional,
	}, condHead, condRest+`\s*,?\s+`+then+assign+`\s*,?\s+`+els+assign,
		cond, then, els)

	add(Pattern{
		Name:      "conditional-no-else",
		Priority:  PriorityConditionalNoElse,
		MinFields: 2,
		slots: []slot{
			{kind: markerSlot}, {kind: fieldSlot}, {kind: operatorSlot}, {kind: fieldOrValueSlot},
			{kind: fieldSlot}, {kind: valueSlot},
		},
		generate: generateConditional,
	}, condHead, condRest+`\s*,?\s+`+then+assign,
		cond, then)

	add(Pattern{
		Name:      "required-if",
		Priority:  PriorityRequiredIf,
		MinFields: 1,
		slots:     []slot{{kind: fieldSlot}, {kind: fieldSlot}},
		generate:  generateRequiredIf,
	}, "", `\s+(?:is\s+|are\s+)?(?:required|mandatory)\s+`+positiveCond+
		`\s+(.+?)\s+(?:is\s+|are\s+|has\s+been\s+)?(?:set|present|provided|filled\s+in|filled|entered|populated|specified)`,
		positiveCond)

	add(Pattern{
		Name:      "range",
		Priority:  PriorityRange,
		MinFields: 1,
		slots:     []slot{{kind: fieldSlot}, {kind: fieldOrValueSlot}, {kind: fieldOrValueSlot}},
		generate:  generateRange,
	}, "", `\s+`+copula+within+`\s+(.+?)\s+`+conj+`\s+(.+?)`,
		within, conj)

	add(Pattern{
		Name:      "ceiling",
		Priority:  PriorityCeiling,
		MinFields: 1,
		slots:     []slot{{kind: fieldSlot}, {kind: numberSlot}},
		generate:  generateCeiling,
	}, "", `\s+(?:cannot|can\s+not|can[’']t|must\s+not|should\s+not|may\s+not|shall\s+not|will\s+not|does\s+not)\s+exceed\s+`+numberExpr)

	add(Pattern{
		Name:      "floor",
		Priority:  PriorityFloor,
		MinFields: 1,
		slots:     []slot{{kind: fieldSlot}, {kind: numberSlot}},
		generate:  generateFloor,
	}, "", `\s+`+copula+`at\s+least\s+`+numberExpr)

	add(Pattern{
		Name:      "comparison",
		Priority:  PriorityComparison,
		MinFields: 1,
		slots:     []slot{{kind: fieldSlot}, {kind: operatorSlot}, {kind: fieldOrValueSlot}},
		generate:  generateComparison,
	}, "", `\s+`+copula+`(`+op+`)\s+(.+?)`)

	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Priority < patterns[j].Priority })
	return patterns
}

// alt builds a non-capturing alternation, longest phrase first so that
// "greater than or equal to" is preferred over "greater than".
// It returns "" for an empty word list.
func alt(words []string) string {
	ws := append([]string(nil), words...)
	sortLongestFirst(ws)
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		fields := strings.Fields(regexp.QuoteMeta(w))
		if len(fields) == 0 {
			continue
		}
		parts = append(parts, strings.Join(fields, `\s+`))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(?:" + strings.Join(parts, "|") + ")"
}

// logicalWords returns connective words mapping to sym, or all of them when sym is empty.
func (t SynonymTable) logicalWords(sym string) []string {
	var out []string
	for w, s := range t.Logical {
		if sym == "" || s == sym {
			out = append(out, w)
		}
	}
	return out
}

// --- generators ---

func generateComparison(m match) CompiledRule {
	a, op, b := m[0], m[1].op, m[2]
	return newRule(
		fmt.Sprintf("%s %s %s", a.ref(), op, b.ref()),
		fmt.Sprintf("%s %s %s.", a.label(), op.requirement(), b.label()),
		m.fieldIDs(),
	)
}

func generateRange(m match) CompiledRule {
	a, lo, hi := m[0], m[1], m[2]
	return newRule(
		fmt.Sprintf("%s >= %s && %s <= %s", a.ref(), lo.ref(), a.ref(), hi.ref()),
		fmt.Sprintf("%s must be between %s and %s.", a.label(), lo.label(), hi.label()),
		m.fieldIDs(),
	)
}

func generateRequiredIf(m match) CompiledRule {
	a, b := m[0], m[1]
	return newRule(
		fmt.Sprintf("%s ? !!%s : true", b.ref(), a.ref()),
		fmt.Sprintf("%s is required when %s is set.", a.label(), b.label()),
		m.fieldIDs(),
	)
}

func generateCeiling(m match) CompiledRule {
	a, n := m[0], m[1]
	return newRule(
		fmt.Sprintf("%s <= %s", a.ref(), n.lit),
		fmt.Sprintf("%s must not be greater than %s.", a.label(), n.text),
		m.fieldIDs(),
	)
}

func generateFloor(m match) CompiledRule {
	a, n := m[0], m[1]
	return newRule(
		fmt.Sprintf("%s >= %s", a.ref(), n.lit),
		fmt.Sprintf("%s must not be less than %s.", a.label(), n.text),
		m.fieldIDs(),
	)
}

// generateConditional serves both the with-else and the no-else shapes; the
// latter has six groups and leaves the else branch as "true".
func generateConditional(m match) CompiledRule {
	marker, a, op, b := m[0], m[1], m[2].op, m[3]
	target, value := m[4], m[5]

	cond := fmt.Sprintf("%s %s %s", a.ref(), op, b.ref())
	prose := fmt.Sprintf("%s %s %s %s", sentenceCase(marker.text), a.label(), op.clause(), b.label())
	if marker.negated {
		cond = "!(" + cond + ")"
	}

	elseExpr := "true"
	elseProse := ""
	if len(m) == 8 && m[6].present {
		elseExpr = fmt.Sprintf("(%s = %s)", m[6].ref(), m[7].lit)
		elseProse = fmt.Sprintf("; otherwise %s is set to %s", m[6].label(), m[7].text)
	}

	return newRule(
		fmt.Sprintf("%s ? (%s = %s) : %s", cond, target.ref(), value.lit, elseExpr),
		fmt.Sprintf("%s, then %s is set to %s%s.", prose, target.label(), value.text, elseProse),
		m.fieldIDs(),
	)
}

func generateCompoundConditional(m match) CompiledRule {
	marker := m[0]
	a, op1, b := m[1], m[2].op, m[3]
	logic := m[4]
	c, op2, d := m[5], m[6].op, m[7]
	target, value := m[8], m[9]

	cond := fmt.Sprintf("(%s %s %s) %s (%s %s %s)", a.ref(), op1, b.ref(), logic.logic, c.ref(), op2, d.ref())
	if marker.negated {
		cond = "!(" + cond + ")"
	}
	prose := fmt.Sprintf("%s %s %s %s %s %s %s %s",
		sentenceCase(marker.text), a.label(), op1.clause(), b.label(),
		fold(logic.text), c.label(), op2.clause(), d.label())

	elseExpr := "true"
	elseProse := ""
	if m[10].present {
		elseExpr = fmt.Sprintf("(%s = %s)", m[10].ref(), m[11].lit)
		elseProse = fmt.Sprintf("; otherwise %s is set to %s", m[10].label(), m[11].text)
	}

	return newRule(
		fmt.Sprintf("%s ? (%s = %s) : %s", cond, target.ref(), value.lit, elseExpr),
		fmt.Sprintf("%s, then %s is set to %s%s.", prose, target.label(), value.text, elseProse),
		m.fieldIDs(),
	)
}

func sentenceCase(word string) string {
	return cases.Title(language.English).String(fold(word))
}
