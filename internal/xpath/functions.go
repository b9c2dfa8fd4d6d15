package xpath

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// function implements one library function. Arguments arrive unevaluated.
type function func(name string, args []Expr, ctx Context) (Value, error)

var library map[string]function

func init() {
	library = map[string]function{
		// node-set
		"last":     fnLast,
		"position": fnPosition,
		"count":    fnCount,
		"local-name": func(name string, args []Expr, ctx Context) (Value, error) {
			n, err := optionalNode(name, args, ctx)
			if err != nil || n == nil {
				return String(""), err
			}
			return String(LocalName(n.NodeName())), nil
		},
		"name": func(name string, args []Expr, ctx Context) (Value, error) {
			n, err := optionalNode(name, args, ctx)
			if err != nil || n == nil {
				return String(""), err
			}
			return String(n.NodeName()), nil
		},
		"current":  fnCurrent,
		"instance": fnInstance,

		// string
		"string":           fnString,
		"concat":           fnConcat,
		"starts-with":      stringPredicate(strings.HasPrefix),
		"ends-with":        stringPredicate(strings.HasSuffix),
		"contains":         stringPredicate(strings.Contains),
		"substring":        fnSubstring,
		"substring-before": fnSubstringBefore,
		"substring-after":  fnSubstringAfter,
		"string-length":    fnStringLength,
		"normalize-space":  fnNormalizeSpace,
		"translate":        fnTranslate,
		"selected":         fnSelected,
		"count-selected":   fnCountSelected,
		"coalesce":         fnCoalesce,
		"jr:itext":         fnItext,

		// boolean
		"boolean": fnBoolean,
		"not":     fnNot,
		"true":    constant(Boolean(true)),
		"false":   constant(Boolean(false)),
		"if":      fnIf,
		"regex":   fnRegex,

		// number
		"number":  fnNumber,
		"sum":     fnSum,
		"floor":   numeric(math.Floor),
		"ceiling": numeric(math.Ceil),
		"round":   numeric(roundHalfUp),
		"int":     numeric(math.Trunc),
		"abs":     numeric(math.Abs),
		"pow":     fnPow,
		"max":     aggregate(math.Max),
		"min":     aggregate(math.Min),
	}
}

// IsFunction reports whether name is in the function library.
func IsFunction(name string) bool {
	_, ok := library[name]
	return ok
}

func callFunction(c *Call, ctx Context) (Value, error) {
	fn, ok := library[c.Name]
	if !ok {
		return nil, &EvalError{Code: ErrCodeUnknownFunction, Function: c.Name, Message: "unknown function"}
	}
	return fn(c.Name, c.Args, ctx)
}

func arity(name string, args []Expr, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		switch {
		case max < 0:
			return arityError(name, len(args), "at least "+itoa(min))
		case min == max:
			return arityError(name, len(args), itoa(min))
		default:
			return arityError(name, len(args), itoa(min)+"-"+itoa(max))
		}
	}
	return nil
}

func evalNodeSet(name string, arg Expr, ctx Context) (NodeSet, error) {
	v, err := eval(arg, ctx)
	if err != nil {
		return nil, err
	}
	set, ok := v.(NodeSet)
	if !ok {
		return nil, typeError(name, "argument must be a node-set")
	}
	return set, nil
}

func evalStrings(args []Expr, ctx Context) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		v, err := eval(a, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = ToString(v)
	}
	return out, nil
}

// stringArgs checks arity and evaluates every argument as a string. With
// no arguments and min 0 the context node's string-value is used.
func stringArgs(name string, args []Expr, ctx Context, min, max int) ([]string, error) {
	if err := arity(name, args, min, max); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return []string{ctx.Node.StringValue()}, nil
	}
	return evalStrings(args, ctx)
}

func optionalNode(name string, args []Expr, ctx Context) (Node, error) {
	if err := arity(name, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.Node, nil
	}
	set, err := evalNodeSet(name, args[0], ctx)
	if err != nil || len(set) == 0 {
		return nil, err
	}
	return sortDocumentOrder(set)[0], nil
}

func constant(v Value) function {
	return func(name string, args []Expr, ctx Context) (Value, error) {
		if err := arity(name, args, 0, 0); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func fnLast(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 0, 0); err != nil {
		return nil, err
	}
	return Number(ctx.Size), nil
}

// fnPosition returns the context position, or with an argument the 1-based
// position of the node among its same-named siblings.
func fnPosition(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Number(ctx.Position), nil
	}
	set, err := evalNodeSet(name, args[0], ctx)
	if err != nil {
		return nil, err
	}
	if len(set) != 1 {
		return nil, typeError(name, "argument must select exactly one node")
	}
	n := set[0]
	p := n.ParentNode()
	if p == nil {
		return Number(1), nil
	}
	pos := 0
	for _, s := range p.ChildNodes() {
		if s.NodeName() == n.NodeName() {
			pos++
		}
		if s == n {
			break
		}
	}
	return Number(pos), nil
}

func fnCount(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	set, err := evalNodeSet(name, args[0], ctx)
	if err != nil {
		return nil, err
	}
	return Number(len(set)), nil
}

func fnCurrent(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 0, 0); err != nil {
		return nil, err
	}
	return NodeSet{ctx.Current}, nil
}

func fnInstance(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	ids, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Instances == nil {
		return nil, &EvalError{Code: ErrCodeUnknownInstance, Function: name, Message: "no secondary instances available: " + ids[0]}
	}
	doc, ok := ctx.Instances.ResolveInstance(ids[0])
	if !ok {
		return nil, &EvalError{Code: ErrCodeUnknownInstance, Function: name, Message: "unknown instance " + ids[0]}
	}
	return NodeSet{doc}, nil
}

func fnString(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return String(ctx.Node.StringValue()), nil
	}
	v, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	return String(ToString(v)), nil
}

func fnConcat(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, -1); err != nil {
		return nil, err
	}
	parts, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	return String(strings.Join(parts, "")), nil
}

func stringPredicate(pred func(s, sub string) bool) function {
	return func(name string, args []Expr, ctx Context) (Value, error) {
		if err := arity(name, args, 2, 2); err != nil {
			return nil, err
		}
		s, err := evalStrings(args, ctx)
		if err != nil {
			return nil, err
		}
		return Boolean(pred(s[0], s[1])), nil
	}
}

// fnSubstring follows XPath rounding: characters at 1-based position p are
// kept when round(start) <= p < round(start) + round(length).
func fnSubstring(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 3); err != nil {
		return nil, err
	}
	v, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	s := []rune(ToString(v))
	startV, err := eval(args[1], ctx)
	if err != nil {
		return nil, err
	}
	start := roundHalfUp(ToNumber(startV))
	end := math.Inf(1)
	if len(args) == 3 {
		lenV, err := eval(args[2], ctx)
		if err != nil {
			return nil, err
		}
		end = start + roundHalfUp(ToNumber(lenV))
	}
	var b strings.Builder
	for i, r := range s {
		p := float64(i + 1)
		if p >= start && p < end {
			b.WriteRune(r)
		}
	}
	return String(b.String()), nil
}

func fnSubstringBefore(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	before, _, found := strings.Cut(s[0], s[1])
	if !found {
		return String(""), nil
	}
	return String(before), nil
}

func fnSubstringAfter(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	_, after, found := strings.Cut(s[0], s[1])
	if !found {
		return String(""), nil
	}
	return String(after), nil
}

func fnStringLength(name string, args []Expr, ctx Context) (Value, error) {
	s, err := stringArgs(name, args, ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	return Number(utf8.RuneCountInString(s[0])), nil
}

func fnNormalizeSpace(name string, args []Expr, ctx Context) (Value, error) {
	s, err := stringArgs(name, args, ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	return String(strings.Join(strings.Fields(s[0]), " ")), nil
}

func fnTranslate(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 3, 3); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	from, to := []rune(s[1]), []rune(s[2])
	var b strings.Builder
	for _, r := range s[0] {
		idx := -1
		for i, f := range from {
			if f == r {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			b.WriteRune(r)
		case idx < len(to):
			b.WriteRune(to[idx])
		}
	}
	return String(b.String()), nil
}

// fnSelected reports whether a space-separated answer list contains value.
func fnSelected(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(s[1])
	for _, item := range strings.Fields(s[0]) {
		if item == want {
			return Boolean(true), nil
		}
	}
	return Boolean(false), nil
}

func fnCountSelected(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	return Number(len(strings.Fields(s[0]))), nil
}

// fnCoalesce returns the first non-empty argument; later arguments are
// only evaluated when needed.
func fnCoalesce(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return nil, err
	}
	for _, a := range args {
		v, err := eval(a, ctx)
		if err != nil {
			return nil, err
		}
		if s := ToString(v); s != "" {
			return String(s), nil
		}
	}
	return String(""), nil
}

func fnItext(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Texts == nil {
		return String(""), nil
	}
	text, _ := ctx.Texts.ResolveText(s[0])
	return String(text), nil
}

func fnBoolean(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	v, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	return Boolean(ToBoolean(v)), nil
}

func fnNot(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	v, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	return Boolean(!ToBoolean(v)), nil
}

// fnIf evaluates only the selected branch.
func fnIf(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 3, 3); err != nil {
		return nil, err
	}
	cond, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	if ToBoolean(cond) {
		return eval(args[1], ctx)
	}
	return eval(args[2], ctx)
}

func fnRegex(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return nil, err
	}
	s, err := evalStrings(args, ctx)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(s[1])
	if err != nil {
		return nil, typeError(name, "invalid pattern: "+err.Error())
	}
	return Boolean(re.MatchString(s[0])), nil
}

func fnNumber(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return Number(StringToNumber(ctx.Node.StringValue())), nil
	}
	v, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	return Number(ToNumber(v)), nil
}

func fnSum(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	set, err := evalNodeSet(name, args[0], ctx)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range set {
		total += StringToNumber(n.StringValue())
	}
	return Number(total), nil
}

func numeric(op func(float64) float64) function {
	return func(name string, args []Expr, ctx Context) (Value, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		v, err := eval(args[0], ctx)
		if err != nil {
			return nil, err
		}
		return Number(op(ToNumber(v))), nil
	}
}

func fnPow(name string, args []Expr, ctx Context) (Value, error) {
	if err := arity(name, args, 2, 2); err != nil {
		return nil, err
	}
	base, err := eval(args[0], ctx)
	if err != nil {
		return nil, err
	}
	exp, err := eval(args[1], ctx)
	if err != nil {
		return nil, err
	}
	return Number(math.Pow(ToNumber(base), ToNumber(exp))), nil
}

// aggregate builds max/min. Every node of a node-set argument counts as
// one number; other arguments count once. No numbers, or any NaN among
// them, yields NaN.
func aggregate(pick func(a, b float64) float64) function {
	return func(name string, args []Expr, ctx Context) (Value, error) {
		if err := arity(name, args, 1, -1); err != nil {
			return nil, err
		}
		var nums []float64
		for _, a := range args {
			v, err := eval(a, ctx)
			if err != nil {
				return nil, err
			}
			if set, ok := v.(NodeSet); ok {
				for _, n := range set {
					nums = append(nums, StringToNumber(n.StringValue()))
				}
				continue
			}
			nums = append(nums, ToNumber(v))
		}
		if len(nums) == 0 {
			return Number(math.NaN()), nil
		}
		result := nums[0]
		for _, f := range nums {
			if math.IsNaN(f) {
				return Number(math.NaN()), nil
			}
			result = pick(result, f)
		}
		return Number(result), nil
	}
}

// roundHalfUp is XPath round(): the closest integer, ties toward positive
// infinity. NaN and infinities are returned unchanged.
func roundHalfUp(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return math.Floor(f + 0.5)
}
