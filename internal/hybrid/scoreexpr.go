package hybrid

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
)

// evalScoreExpr evaluates a user-supplied post-merge scoring expression
// such as "_score * log(likes+1)" against a result's fused score and its
// field values. There is no expression-evaluator library in the dependency
// set this system draws from, so the expression is parsed as a Go
// expression with the standard library's own parser and walked by hand;
// only arithmetic (+, -, *, /) and a small allow-listed function set are
// supported. Comparison and logical operators are rejected.
func evalScoreExpr(expr string, score float64, fields map[string]any) (float64, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("invalid score expression: %w", err)
	}
	return evalNode(node, score, fields)
}

func evalNode(n ast.Expr, score float64, fields map[string]any) (float64, error) {
	switch e := n.(type) {
	case *ast.ParenExpr:
		return evalNode(e.X, score, fields)
	case *ast.BasicLit:
		if e.Kind != token.FLOAT && e.Kind != token.INT {
			return 0, fmt.Errorf("unsupported literal kind %s", e.Kind)
		}
		var v float64
		_, err := fmt.Sscanf(e.Value, "%g", &v)
		return v, err
	case *ast.Ident:
		if e.Name == "_score" {
			return score, nil
		}
		v, ok := fields[e.Name]
		if !ok {
			return 0, fmt.Errorf("unknown identifier %q in score expression", e.Name)
		}
		return toFloat(v)
	case *ast.UnaryExpr:
		x, err := evalNode(e.X, score, fields)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unsupported unary operator %s", e.Op)
	case *ast.BinaryExpr:
		x, err := evalNode(e.X, score, fields)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(e.Y, score, fields)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, nil
			}
			return x / y, nil
		}
		return 0, fmt.Errorf("unsupported binary operator %s", e.Op)
	case *ast.CallExpr:
		fn, ok := e.Fun.(*ast.Ident)
		if !ok || len(e.Args) != 1 {
			return 0, fmt.Errorf("unsupported function call in score expression")
		}
		arg, err := evalNode(e.Args[0], score, fields)
		if err != nil {
			return 0, err
		}
		switch fn.Name {
		case "log":
			return math.Log(arg), nil
		case "sqrt":
			return math.Sqrt(arg), nil
		case "abs":
			return math.Abs(arg), nil
		}
		return 0, fmt.Errorf("unknown function %q in score expression", fn.Name)
	default:
		return 0, fmt.Errorf("unsupported expression node %T", n)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("field value %v is not numeric", v)
	}
}
