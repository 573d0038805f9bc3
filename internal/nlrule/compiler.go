package nlrule

import (
	"strings"

	"rulecompiler/internal/metadata"
)

// ShapeFallback names rules produced by the fallback matcher in Explain.
const ShapeFallback = "fallback"

// Compiler turns sentences into rules. It holds only immutable data built at
// construction, so one Compiler may serve any number of goroutines.
type Compiler struct {
	synonyms SynonymTable
	patterns []Pattern
	fallback FallbackMatcher
}

type Option func(*Compiler)

// WithSynonyms replaces the built-in vocabulary.
func WithSynonyms(t SynonymTable) Option {
	return func(c *Compiler) {
		c.synonyms = t.normalized()
	}
}

func New(opts ...Option) *Compiler {
	c := &Compiler{synonyms: DefaultSynonyms().normalized()}
	for _, opt := range opts {
		opt(c)
	}
	c.patterns = buildPatterns(c.synonyms)
	c.fallback = FallbackMatcher{syn: c.synonyms}
	return c
}

var defaultCompiler = New()

// CompileExpressionFromText compiles sentence against tpl's fields with the
// built-in vocabulary.
func CompileExpressionFromText(tpl *metadata.Template, sentence string) CompiledRule {
	return defaultCompiler.Compile(tpl, sentence)
}

// Compile builds a private alias registry from tpl and compiles sentence.
func (c *Compiler) Compile(tpl *metadata.Template, sentence string) CompiledRule {
	return c.CompileWith(NewAliasRegistryFor(tpl), sentence)
}

// CompileValue accepts an untyped payload value; anything but a string is
// rejected as invalid input.
func (c *Compiler) CompileValue(tpl *metadata.Template, v any) CompiledRule {
	s, ok := v.(string)
	if !ok {
		return failure(MsgInvalidInput)
	}
	return c.Compile(tpl, s)
}

// CompileWith compiles sentence against an existing registry.
func (c *Compiler) CompileWith(reg *AliasRegistry, sentence string) CompiledRule {
	rule, _ := c.Explain(reg, sentence)
	return rule
}

// Explain is CompileWith that also names the shape that produced the rule:
// a pattern name, ShapeFallback, or "" for a failure.
func (c *Compiler) Explain(reg *AliasRegistry, sentence string) (CompiledRule, string) {
	if reg == nil {
		reg = NewAliasRegistry()
	}
	if strings.TrimSpace(sentence) == "" {
		return failure(MsgEmptyInput), ""
	}
	text := normalizeSentence(sentence)
	if text == "" {
		return failure(MsgEmptyInput), ""
	}

	res := resolver{syn: c.synonyms, reg: reg}
	for _, p := range c.patterns {
		for _, groups := range p.splits(text) {
			m, ok := p.bind(groups, res)
			if !ok {
				continue
			}
			return p.generate(m), p.Name
		}
	}

	if rule, ok := c.fallback.Match(reg, text, sentence); ok {
		return rule, ShapeFallback
	}
	return failure(MsgUnparseable), ""
}

// Patterns returns the pattern set in the order it is tried.
func (c *Compiler) Patterns() []Pattern {
	return append([]Pattern(nil), c.patterns...)
}

// Synonyms returns a copy of the compiler's vocabulary.
func (c *Compiler) Synonyms() SynonymTable {
	return c.synonyms.Clone()
}
