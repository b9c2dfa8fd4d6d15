// Package instance implements the document model a form session edits.
//
// A Document is an ownership tree built top-down from the form template:
// root, groups, repeat ranges with their instances, value leaves and fixed
// attributes. Parents are non-owning back pointers and references are derived
// from the parent chain on demand, so renumbering after a repeat insert or
// remove needs no bookkeeping.
//
// Every Node also implements xpath.Node. In that view repeat ranges are
// transparent: instances appear as sibling elements of the range's parent,
// exactly as in the XML instance the form describes.
//
// Documents are not safe for concurrent use. The engine serializes every
// mutation through one session.
package instance
