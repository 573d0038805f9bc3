package nlrule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// assignRE finds the "(field = value)" branches of conditional rules, which
// the expression grammar only knows as comparisons.
var assignRE = regexp.MustCompile(`\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*=([^=])`)

// Lint checks a rule's internal consistency: a disabled rule has no
// expression, an enabled one parses and its dependsOn lists exactly the
// identifiers it uses. With a registry, dependencies must also be known
// fields. It returns nil for a sound rule.
func Lint(rule CompiledRule, reg *AliasRegistry) []string {
	if !rule.Enabled {
		if rule.Expression != "" {
			return []string{"disabled rule carries an expression"}
		}
		return nil
	}
	if strings.TrimSpace(rule.Expression) == "" {
		return []string{"enabled rule has an empty expression"}
	}

	used, err := Identifiers(rule.Expression)
	if err != nil {
		return []string{fmt.Sprintf("expression does not parse: %v", err)}
	}

	var problems []string
	declared := make(map[string]bool, len(rule.DependsOn))
	for _, dep := range rule.DependsOn {
		declared[dep] = true
		if !used[dep] {
			problems = append(problems, fmt.Sprintf("dependency %q is not used by the expression", dep))
		}
		if reg != nil && !reg.Has(dep) {
			problems = append(problems, fmt.Sprintf("dependency %q is not a field of the template", dep))
		}
	}

	ids := make([]string, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !declared[id] {
			problems = append(problems, fmt.Sprintf("identifier %q is missing from dependsOn", id))
		}
	}
	return problems
}

// Identifiers returns the field identifiers an expression reads. The
// reserved word now is not a field.
func Identifiers(expression string) (map[string]bool, error) {
	tree, err := parser.Parse(assignRE.ReplaceAllString(expression, "($1 ==$2"))
	if err != nil {
		return nil, err
	}
	v := &identVisitor{ids: make(map[string]bool)}
	ast.Walk(&tree.Node, v)
	delete(v.ids, "now")
	return v.ids, nil
}

type identVisitor struct {
	ids map[string]bool
}

func (v *identVisitor) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		v.ids[n.Value] = true
	}
}
