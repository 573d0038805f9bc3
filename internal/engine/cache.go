package engine

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"rulecompiler/internal/nlrule"
)

type cacheKey struct {
	version    uint64
	templateID string
	text       string
}

// compileResult is everything the compile endpoint derives from one
// (template, sentence) pair.
type compileResult struct {
	Rule        nlrule.CompiledRule
	Shape       string
	Suggestions []string
	Lint        []string
}

// CompileCache memoizes compile results for registry templates. Keys carry the
// registry version, so a reload makes older entries unreachable; Purge
// reclaims them eagerly. A cache built with size <= 0 stores nothing.
type CompileCache struct {
	lru *lru.Cache[cacheKey, compileResult]
}

func NewCompileCache(size int) (*CompileCache, error) {
	if size <= 0 {
		return &CompileCache{}, nil
	}
	c, err := lru.New[cacheKey, compileResult](size)
	if err != nil {
		return nil, err
	}
	return &CompileCache{lru: c}, nil
}

func (c *CompileCache) get(version uint64, templateID, text string) (compileResult, bool) {
	if c == nil || c.lru == nil {
		return compileResult{}, false
	}
	res, ok := c.lru.Get(cacheKey{version, templateID, text})
	if !ok {
		return compileResult{}, false
	}
	res.Rule.DependsOn = append([]string{}, res.Rule.DependsOn...)
	return res, true
}

func (c *CompileCache) add(version uint64, templateID, text string, res compileResult) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(cacheKey{version, templateID, text}, res)
}

// Purge drops every entry.
func (c *CompileCache) Purge() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}

// Len returns the number of cached results.
func (c *CompileCache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
