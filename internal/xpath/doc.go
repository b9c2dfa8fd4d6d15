// Package xpath implements the expression language used by form binds.
//
// The language is XPath 1.0 restricted to element and attribute nodes, plus
// the XForms/ODK function extensions forms rely on (instance, current,
// selected, if, coalesce, jr:itext, ...).
//
// Parsing is pure and reports the offending source position:
//
//	expr, err := xpath.Parse("/data/a * 3")
//
// Evaluation is synchronous and side-effect free. Documents are reached only
// through the Node interface, so any tree can be queried:
//
//	v, err := xpath.Evaluate(expr, xpath.Context{Node: n, Position: 1, Size: 1})
//
// Analyze reports the document locations an expression reads, which is what
// the bind scheduler uses to build its dependency graph.
package xpath
