// Package sdl renders a structural schema fragment as GraphQL SDL, for the
// schema endpoint and the render-sdl command. Rendering works on fragment
// data, not engine types, so it needs no resolver binding.
package sdl

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/registry"
	"github.com/graphbridge/graphbridge/internal/schema"
)

// Render formats the fragment as SDL. Output is deterministic: types and
// fields are emitted in sorted order.
func Render(frag *schema.Fragment, models []model.Model) (string, error) {
	r := &renderer{
		models:  make(map[string]model.Model, len(models)),
		emitted: map[string]bool{},
	}
	for _, m := range models {
		r.models[m.Name] = m
	}

	doc := &ast.SchemaDocument{}
	schemaDef := &ast.SchemaDefinition{
		OperationTypes: []*ast.OperationTypeDefinition{
			{Operation: ast.Query, Type: "Query"},
		},
	}
	doc.Definitions = append(doc.Definitions,
		&ast.Definition{Kind: ast.Scalar, Name: "Json", Description: "Arbitrary JSON value."})

	query, err := r.rootDefinition("Query", frag.Query)
	if err != nil {
		return "", err
	}
	doc.Definitions = append(doc.Definitions, query)
	if len(frag.Mutation) > 0 {
		mutation, err := r.rootDefinition("Mutation", frag.Mutation)
		if err != nil {
			return "", err
		}
		doc.Definitions = append(doc.Definitions, mutation)
		schemaDef.OperationTypes = append(schemaDef.OperationTypes,
			&ast.OperationTypeDefinition{Operation: ast.Mutation, Type: "Mutation"})
	}
	doc.Schema = ast.SchemaDefinitionList{schemaDef}

	for _, name := range sortedKeys(frag.Objects) {
		r.emitObjectSpec(doc, frag.Objects[name])
	}
	r.emitPending(doc)

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String(), nil
}

type renderer struct {
	models  map[string]model.Model
	emitted map[string]bool
	pending []string // model names referenced but not yet emitted
}

func (r *renderer) rootDefinition(name string, fields map[string]*schema.FieldSpec) (*ast.Definition, error) {
	def := &ast.Definition{Kind: ast.Object, Name: name}
	for _, fname := range sortedKeys(fields) {
		spec := fields[fname]
		fd := &ast.FieldDefinition{
			Name:        fname,
			Description: spec.Description,
			Type:        r.astType(spec.Type),
		}
		for _, aname := range sortedKeys(spec.Args) {
			arg := spec.Args[aname]
			ad := &ast.ArgumentDefinition{
				Name:        aname,
				Description: arg.Description,
				Type:        r.astType(arg.Type),
			}
			if arg.Default != nil {
				ad.DefaultValue = astValue(arg.Default)
			}
			fd.Arguments = append(fd.Arguments, ad)
		}
		def.Fields = append(def.Fields, fd)
	}
	return def, nil
}

func (r *renderer) emitObjectSpec(doc *ast.SchemaDocument, spec *schema.ObjectSpec) {
	if r.emitted[spec.Name] {
		return
	}
	r.emitted[spec.Name] = true
	def := &ast.Definition{Kind: ast.Object, Name: spec.Name, Description: spec.Description}
	for _, fname := range sortedKeys(spec.Fields) {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: fname,
			Type: r.astType(spec.Fields[fname]),
		})
	}
	doc.Definitions = append(doc.Definitions, def)
}

// emitPending drains model types referenced by rendered fields, which may
// reference further models in turn.
func (r *renderer) emitPending(doc *ast.SchemaDocument) {
	for len(r.pending) > 0 {
		sort.Strings(r.pending)
		name := r.pending[0]
		r.pending = r.pending[1:]
		if r.emitted[name] {
			continue
		}
		r.emitted[name] = true
		m, ok := r.models[name]
		if !ok {
			continue
		}
		doc.Definitions = append(doc.Definitions, r.modelDefinition(m))
	}
}

func (r *renderer) modelDefinition(m model.Model) *ast.Definition {
	def := &ast.Definition{
		Kind:        ast.Object,
		Name:        registry.TypeName(m.Name),
		Description: m.Description,
	}
	if m.Any {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        "data",
			Description: "Serialized payload.",
			Type:        ast.NamedType("String", nil),
		})
		return def
	}
	for _, rule := range m.Rules {
		t := r.ruleType(rule)
		if t == nil {
			continue
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        bridge.SafeKey(rule.Name),
			Description: rule.Description,
			Type:        t,
		})
	}
	return def
}

func (r *renderer) ruleType(rule model.Rule) *ast.Type {
	for _, tag := range rule.Types {
		var t *ast.Type
		if prim, ok := registry.PrimitiveName(tag); ok {
			t = ast.NamedType(prim, nil)
		} else if _, ok := r.models[tag]; ok {
			t = ast.NamedType(registry.TypeName(tag), nil)
			r.reference(tag)
		} else {
			continue
		}
		if rule.Array {
			t = ast.ListType(t, nil)
		}
		return t
	}
	return nil
}

func (r *renderer) astType(ref *schema.TypeRef) *ast.Type {
	switch ref.Kind {
	case schema.TypeRefKindNamed:
		if prim, ok := registry.PrimitiveName(ref.Named); ok {
			return ast.NamedType(prim, nil)
		}
		switch ref.Named {
		case "String", "Int", "Float", "Boolean", "Json":
			return ast.NamedType(ref.Named, nil)
		}
		r.reference(ref.Named)
		return ast.NamedType(registry.TypeName(ref.Named), nil)
	case schema.TypeRefKindList:
		return ast.ListType(r.astType(ref.OfType), nil)
	case schema.TypeRefKindNonNull:
		t := r.astType(ref.OfType)
		t.NonNull = true
		return t
	}
	return ast.NamedType("Json", nil)
}

// reference queues a model name for emission unless it names a collection
// type already emitted by the fragment.
func (r *renderer) reference(name string) {
	if !r.emitted[name] {
		r.pending = append(r.pending, name)
	}
}

func astValue(v any) *ast.Value {
	switch val := v.(type) {
	case string:
		return &ast.Value{Raw: val, Kind: ast.StringValue}
	case bool:
		return &ast.Value{Raw: fmt.Sprint(val), Kind: ast.BooleanValue}
	case int, int32, int64:
		return &ast.Value{Raw: fmt.Sprint(val), Kind: ast.IntValue}
	case float32, float64:
		return &ast.Value{Raw: fmt.Sprint(val), Kind: ast.FloatValue}
	case []any:
		out := &ast.Value{Kind: ast.ListValue}
		for _, item := range val {
			if child := astValue(item); child != nil {
				out.Children = append(out.Children, &ast.ChildValue{Value: child})
			}
		}
		return out
	default:
		return nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
