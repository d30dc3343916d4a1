package schema

import (
	"fmt"

	"github.com/graphbridge/graphbridge/internal/bridge"
)

// ArgSpec is the structural description of one field argument.
type ArgSpec struct {
	Type        *TypeRef `json:"type"`
	Default     any      `json:"default,omitempty"`
	Description string   `json:"description,omitempty"`
}

// FieldSpec is the structural description of one root field: everything needed
// to reconstruct the executable field except the resolver function itself,
// which is rebuilt from Binding on every attach.
type FieldSpec struct {
	Type        *TypeRef            `json:"type"`
	Description string              `json:"description,omitempty"`
	Args        map[string]*ArgSpec `json:"args,omitempty"`
	Binding     bridge.Binding      `json:"binding"`

	// List marks list-shaped fields; Weight is their declared complexity
	// weight. Estimated cost is Weight times the requested limit filter.
	List   bool `json:"list,omitempty"`
	Weight int  `json:"weight,omitempty"`
}

// ObjectSpec is the structural description of a tenant collection's document
// type. API-side model types are not serialized: they are re-resolved from the
// static model table at attach time.
type ObjectSpec struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Fields      map[string]*TypeRef `json:"fields"`
}

// Fragment is one independently cached slice of the served schema.
type Fragment struct {
	// Version is the API version token the fragment was built for. Only set
	// on the API fragment.
	Version string `json:"version,omitempty"`

	// Objects holds collection document types declared by this fragment.
	Objects map[string]*ObjectSpec `json:"objects,omitempty"`

	Query    map[string]*FieldSpec `json:"query,omitempty"`
	Mutation map[string]*FieldSpec `json:"mutation,omitempty"`
}

// NewFragment returns an empty fragment with allocated maps.
func NewFragment() *Fragment {
	return &Fragment{
		Objects:  map[string]*ObjectSpec{},
		Query:    map[string]*FieldSpec{},
		Mutation: map[string]*FieldSpec{},
	}
}

// Merge composes fragments into one. A field or object name appearing in more
// than one fragment is a build-time configuration error.
func Merge(fragments ...*Fragment) (*Fragment, error) {
	out := NewFragment()
	for _, frag := range fragments {
		if frag == nil {
			continue
		}
		for name, obj := range frag.Objects {
			if _, dup := out.Objects[name]; dup {
				return nil, fmt.Errorf("schema merge: duplicate object type %q", name)
			}
			out.Objects[name] = obj
		}
		for name, field := range frag.Query {
			if _, dup := out.Query[name]; dup {
				return nil, fmt.Errorf("schema merge: duplicate query field %q", name)
			}
			out.Query[name] = field
		}
		for name, field := range frag.Mutation {
			if _, dup := out.Mutation[name]; dup {
				return nil, fmt.Errorf("schema merge: duplicate mutation field %q", name)
			}
			out.Mutation[name] = field
		}
	}
	return out, nil
}
