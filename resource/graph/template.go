package graph

import (
	"github.com/hashicorp/hcl2/hcl"
	"github.com/hashicorp/hcl2/hcl/hclsyntax"
	"github.com/pkg/errors"
)

// Template parses a string that may contain placeholder tokens referring to
// outputs of other resources:
//
//   ${users-table.arn}/index/EmailIndex
//
// Each token must have the form ${name.output}. Text outside of tokens is kept
// as literal string parts.
func Template(str string) (Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(str), "", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, diags
	}
	out, err := fromHCL(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", str)
	}
	if len(out) == 0 {
		return String(""), nil
	}
	return out, nil
}

// MustTemplate is like Template but panics if the string cannot be parsed. It
// should only be used with static strings.
func MustTemplate(str string) Expression {
	expr, err := Template(str)
	if err != nil {
		panic(err)
	}
	return expr
}

func fromHCL(expr hclsyntax.Expression) (Expression, error) {
	switch e := expr.(type) {
	case *hclsyntax.TemplateWrapExpr:
		return fromHCL(e.Wrapped)
	case *hclsyntax.TemplateExpr:
		var out Expression
		for _, p := range e.Parts {
			part, err := fromHCL(p)
			if err != nil {
				return nil, err
			}
			out = append(out, part...)
		}
		return out.MergeLiterals(), nil
	case *hclsyntax.LiteralValueExpr:
		return Literal(e.Val), nil
	case *hclsyntax.ScopeTraversalExpr:
		return fromTraversal(e.Traversal)
	default:
		return nil, errors.Errorf("unsupported expression %T, only ${name.output} references are allowed", expr)
	}
}

func fromTraversal(t hcl.Traversal) (Expression, error) {
	if len(t) != 2 {
		return nil, errors.Errorf("invalid reference, a reference must have the form ${name.output}")
	}
	attr, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return nil, errors.Errorf("invalid reference, output must be an attribute name")
	}
	return Ref(t.RootName(), attr.Name), nil
}
