// Package schema synthesizes the served GraphQL schema from the host
// platform's route table and the tenant's live attribute metadata. Builders
// produce structural fragments (plain data, JSON-serializable); attach turns a
// fragment into executable graphql-go fields by binding fresh resolvers.
package schema

// TypeRefKind discriminates TypeRef nodes.
type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// TypeRef is a serializable reference to a GraphQL type: a named type,
// possibly wrapped in List and Non-Null layers. Fragments store TypeRefs
// instead of engine type instances so they survive the cache round trip.
type TypeRef struct {
	Kind   TypeRefKind `json:"kind"`
	Named  string      `json:"named,omitempty"`
	OfType *TypeRef    `json:"ofType,omitempty"`
}

// Named returns a reference to the named type.
func Named(name string) *TypeRef { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }

// List wraps t in a list type.
func List(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindList, OfType: t} }

// NonNull wraps t in a non-null type.
func NonNull(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }

// NamedType returns the innermost named type of t.
func (t *TypeRef) NamedType() string {
	for cur := t; cur != nil; cur = cur.OfType {
		if cur.Named != "" {
			return cur.Named
		}
	}
	return ""
}

// IsNonNull reports whether t's outermost wrapper is Non-Null.
func (t *TypeRef) IsNonNull() bool { return t != nil && t.Kind == TypeRefKindNonNull }

// Unwrap removes one layer of List or Non-Null wrapping.
func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindList || t.Kind == TypeRefKindNonNull {
		return t.OfType
	}
	return t
}
