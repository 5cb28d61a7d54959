// Package queryir provides the portable filter and update intermediate
// representation consumed by every backend.
//
// ARCHITECTURE:
//
// The IR sits between callers (Repository options, option documents) and
// the backend translators:
//
//	[options / documents] → [queryir] → [translate.Translator[F]] → SQL fragment
//	                                                             → bson.D
//
// FILTER NODES:
//
// Filter is a sealed interface with four node kinds:
//   - Leaf{Field, Value}: equality, a nil Value means IS NULL
//   - Cond{Field, Op, Operand}: one FindOperator applied to a field
//   - Combinator{Kind, Children}: AND / OR of sub-filters
//   - Scope{Field, Filter}: a sub-document or relation filter rooted at Field
//
// There is no reserved key inside a field map. A field literally named
// "AND" is just a Leaf with Field "AND".
//
// Field names are dotted paths ("profile.address.city"). A Scope prefixes
// the paths of its children, so Nested("profile", Eq("age", 3)) and
// Eq("profile.age", 3) are equivalent.
//
// EMPTY FILTERS:
//
// A nil Filter matches everything. And() with no children is true,
// Or() with no children is false.
//
// UPDATES:
//
// Update carries plain assignments (Set) and an ordered list of arithmetic
// Deltas. Backends apply Set first, then each delta in order. Two deltas on
// the same field chain rather than fold: INC 5 then MUL 2 yields (x+5)*2.
package queryir
