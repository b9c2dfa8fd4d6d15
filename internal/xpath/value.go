package xpath

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Value is the result of evaluating an expression: one of NodeSet, Number,
// String or Boolean.
type Value interface {
	value()
}

// NodeSet is an ordered set of nodes, in document order once normalized.
type NodeSet []Node

// Number is an IEEE double; NaN is a valid value.
type Number float64

// String is a string value.
type String string

// Boolean is a boolean value.
type Boolean bool

func (NodeSet) value() {}
func (Number) value()  {}
func (String) value()  {}
func (Boolean) value() {}

var numberSyntax = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)

// StringToNumber converts using XPath rules: surrounding whitespace is
// ignored and anything that is not a plain decimal number is NaN.
func StringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if !numberSyntax.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// FormatNumber renders a number using XPath rules: NaN, Infinity and
// -Infinity by name, integers without a decimal point, no exponents.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString converts a value using XPath string() rules.
func ToString(v Value) string {
	switch val := v.(type) {
	case NodeSet:
		if len(val) == 0 {
			return ""
		}
		return val[0].StringValue()
	case Number:
		return FormatNumber(float64(val))
	case String:
		return string(val)
	case Boolean:
		if val {
			return "true"
		}
		return "false"
	}
	return ""
}

// ToNumber converts a value using XPath number() rules.
func ToNumber(v Value) float64 {
	switch val := v.(type) {
	case NodeSet:
		if len(val) == 0 {
			return math.NaN()
		}
		return StringToNumber(val[0].StringValue())
	case Number:
		return float64(val)
	case String:
		return StringToNumber(string(val))
	case Boolean:
		if val {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// ToBoolean converts a value using XPath boolean() rules.
func ToBoolean(v Value) bool {
	switch val := v.(type) {
	case NodeSet:
		return len(val) > 0
	case Number:
		f := float64(val)
		return f != 0 && !math.IsNaN(f)
	case String:
		return len(val) > 0
	case Boolean:
		return bool(val)
	}
	return false
}

// compareValues implements the XPath 1.0 comparison rules for =, !=, <,
// <=, > and >=, including the existential semantics over node-sets.
func compareValues(op Op, a, b Value) bool {
	an, aIsSet := a.(NodeSet)
	bn, bIsSet := b.(NodeSet)

	switch {
	case aIsSet && bIsSet:
		for _, x := range an {
			xs := x.StringValue()
			for _, y := range bn {
				if compareAtoms(op, String(xs), String(y.StringValue())) {
					return true
				}
			}
		}
		return false
	case aIsSet:
		return compareSetToAtom(op, an, b, false)
	case bIsSet:
		return compareSetToAtom(op, bn, a, true)
	}
	return compareAtoms(op, a, b)
}

// compareSetToAtom compares each node against a non-set value. With
// swapped the set is the right-hand operand.
func compareSetToAtom(op Op, set NodeSet, atom Value, swapped bool) bool {
	if ab, ok := atom.(Boolean); ok {
		sb := Boolean(len(set) > 0)
		if swapped {
			return compareAtoms(op, ab, sb)
		}
		return compareAtoms(op, sb, ab)
	}
	for _, n := range set {
		var nv Value = String(n.StringValue())
		if _, isNum := atom.(Number); isNum {
			nv = Number(StringToNumber(n.StringValue()))
		}
		var ok bool
		if swapped {
			ok = compareAtoms(op, atom, nv)
		} else {
			ok = compareAtoms(op, nv, atom)
		}
		if ok {
			return true
		}
	}
	return false
}

func compareAtoms(op Op, a, b Value) bool {
	if op == OpEq || op == OpNeq {
		var eq bool
		_, aBool := a.(Boolean)
		_, bBool := b.(Boolean)
		_, aNum := a.(Number)
		_, bNum := b.(Number)
		switch {
		case aBool || bBool:
			eq = ToBoolean(a) == ToBoolean(b)
		case aNum || bNum:
			eq = ToNumber(a) == ToNumber(b)
		default:
			eq = ToString(a) == ToString(b)
		}
		if op == OpEq {
			return eq
		}
		return !eq
	}

	x, y := ToNumber(a), ToNumber(b)
	switch op {
	case OpLt:
		return x < y
	case OpLte:
		return x <= y
	case OpGt:
		return x > y
	case OpGte:
		return x >= y
	}
	return false
}
