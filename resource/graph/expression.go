package graph

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/diversitus/infra/resource"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// An Expression describes a value for an input.
//
// The Expression may consist of any combination of literals, references, lists
// and maps. The exprPart interface is closed, only ExprLiteral, ExprReference,
// ExprList and ExprMap are allowed.
type Expression []exprPart

// exprPart is a part in an Expression. The interface is closed, only parts
// declared in this package are allowed.
type exprPart interface{ isExpr() }

// ExprLiteral is a literal value in an expression.
type ExprLiteral struct {
	Value cty.Value
}

func (e ExprLiteral) isExpr() {}

// ExprReference is a part in an expression that refers to an output of
// another resource. The output is only known after the referenced resource
// has been reconciled.
type ExprReference struct {
	Resource string
	Output   string
}

func (e ExprReference) isExpr() {}

func (e ExprReference) String() string { return fmt.Sprintf("${%s.%s}", e.Resource, e.Output) }

// ExprList is a list of expressions. It evaluates to a tuple containing the
// value of each item.
type ExprList struct {
	Items []Expression
}

func (e ExprList) isExpr() {}

// ExprMap is a map of expressions. It evaluates to an object containing the
// value of each item.
type ExprMap struct {
	Items map[string]Expression
}

func (e ExprMap) isExpr() {}

// Literal creates an expression with a single literal value.
func Literal(v cty.Value) Expression { return Expression{ExprLiteral{Value: v}} }

// String creates an expression with a literal string.
func String(s string) Expression { return Literal(cty.StringVal(s)) }

// Number creates an expression with a literal integer.
func Number(n int64) Expression { return Literal(cty.NumberIntVal(n)) }

// Bool creates an expression with a literal boolean.
func Bool(b bool) Expression { return Literal(cty.BoolVal(b)) }

// Strings creates an expression with a literal list of strings.
func Strings(ss ...string) Expression { return Literal(resource.StringList(ss)) }

// StringMap creates an expression with a literal map of strings.
func StringMap(m map[string]string) Expression { return Literal(resource.StringMapVal(m)) }

// Ref creates an expression that refers to an output of another resource.
func Ref(res, output string) Expression {
	return Expression{ExprReference{Resource: res, Output: output}}
}

// List creates a list expression.
func List(items ...Expression) Expression { return Expression{ExprList{Items: items}} }

// Map creates a map expression.
func Map(items map[string]Expression) Expression { return Expression{ExprMap{Items: items}} }

// Concat joins expressions into a single expression. The result evaluates to
// a string.
func Concat(exprs ...Expression) Expression {
	var out Expression
	for _, e := range exprs {
		out = append(out, e...)
	}
	return out.MergeLiterals()
}

// References returns all references found in the expression, including
// references within lists and maps. Map references are returned in key order.
//
// If the returned slice is empty, the expression contains no dynamic
// references. Such an expression can be evaluated with expr.Value(nil).
func (expr Expression) References() []ExprReference {
	var refs []ExprReference
	for _, e := range expr {
		switch p := e.(type) {
		case ExprReference:
			refs = append(refs, p)
		case ExprList:
			for _, item := range p.Items {
				refs = append(refs, item.References()...)
			}
		case ExprMap:
			keys := make([]string, 0, len(p.Items))
			for k := range p.Items {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				refs = append(refs, p.Items[k].References()...)
			}
		}
	}
	return refs
}

// An EvalContext provides context for evaluating an expression.
type EvalContext struct {
	// Outputs of resolved resources, keyed by resource name.
	Outputs map[string]resource.Attrs
}

// A MissingValueError is returned when evaluating an expression that refers
// to an output that is not available in the EvalContext.
type MissingValueError struct {
	Ref ExprReference
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("no value for %s", e.Ref)
}

// Value evaluates the expression.
//
// The following rules apply:
//
//   - If the expression contains a single part, its value is returned.
//   - If the expression contains multiple parts, they are concatenated to a
//     string value. Every value must be convertible to string.
//   - If an unknown value is encountered in a concatenation, an unknown string
//     is returned.
//
// If the expression contains a reference to an output that is not set in ctx,
// a *MissingValueError is returned.
//
// A nil ctx is equivalent to an EvalContext with no outputs, meaning only
// expressions with static literals can be evaluated.
func (expr Expression) Value(ctx *EvalContext) (cty.Value, error) {
	if ctx == nil {
		ctx = &EvalContext{}
	}
	vals := make([]cty.Value, len(expr))
	for i, e := range expr {
		v, err := partValue(e, ctx)
		if err != nil {
			return cty.NilVal, err
		}
		vals[i] = v
	}
	if len(vals) == 0 {
		return cty.NilVal, nil
	}
	if len(vals) == 1 {
		return vals[0], nil
	}
	var buf bytes.Buffer
	for i, v := range vals {
		if !v.IsWhollyKnown() {
			return cty.UnknownVal(cty.String), nil
		}
		str, err := convert.Convert(v, cty.String)
		if err != nil {
			return cty.NilVal, errors.Wrapf(err, "convert part %d", i)
		}
		buf.WriteString(str.AsString())
	}
	return cty.StringVal(buf.String()), nil
}

func partValue(e exprPart, ctx *EvalContext) (cty.Value, error) {
	switch p := e.(type) {
	case ExprLiteral:
		return p.Value, nil
	case ExprReference:
		v, ok := ctx.Outputs[p.Resource][p.Output]
		if !ok {
			return cty.NilVal, &MissingValueError{Ref: p}
		}
		return v, nil
	case ExprList:
		if len(p.Items) == 0 {
			return cty.EmptyTupleVal, nil
		}
		items := make([]cty.Value, len(p.Items))
		for i, item := range p.Items {
			v, err := item.Value(ctx)
			if err != nil {
				return cty.NilVal, err
			}
			items[i] = v
		}
		return cty.TupleVal(items), nil
	case ExprMap:
		if len(p.Items) == 0 {
			return cty.EmptyObjectVal, nil
		}
		items := make(map[string]cty.Value, len(p.Items))
		for k, item := range p.Items {
			v, err := item.Value(ctx)
			if err != nil {
				return cty.NilVal, err
			}
			items[k] = v
		}
		return cty.ObjectVal(items), nil
	default:
		// Only happens if a new exprPart is added without support here.
		panic(fmt.Sprintf("Not supported: %T", p))
	}
}

// MergeLiterals merges consecutive literal values into a single literal. Parts
// of the expression that are not literals are returned in place as-is.
func (expr Expression) MergeLiterals() Expression {
	if len(expr) <= 1 {
		return expr
	}

	join := func(expr Expression) Expression {
		if len(expr) == 0 {
			return nil
		}
		val, err := expr.Value(nil)
		if err != nil {
			// Only literals, which always resolve without outputs.
			panic(err)
		}
		return Literal(val)
	}

	var out Expression // nolint: prealloc
	var pending Expression
	for _, e := range expr {
		if lit, ok := e.(ExprLiteral); ok {
			pending = append(pending, lit)
			continue
		}
		out = append(out, join(pending)...)
		pending = pending[:0]
		out = append(out, e)
	}
	out = append(out, join(pending)...)
	return out
}

// Equals returns true if the expression is equivalent to the other expression.
func (expr Expression) Equals(other Expression) bool {
	opts := []cmp.Option{
		cmp.Transformer("GoString", func(v cty.Value) string { return v.GoString() }),
	}
	return cmp.Equal(expr, other, opts...)
}

// Inputs are the named input expressions of a resource.
type Inputs map[string]Expression

// Names returns the input names in lexicographic order.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in))
	for n := range in {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Eval evaluates every input.
func (in Inputs) Eval(ctx *EvalContext) (resource.Attrs, error) {
	out := make(resource.Attrs, len(in))
	for _, name := range in.Names() {
		v, err := in[name].Value(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", name)
		}
		out[name] = v
	}
	return out, nil
}
