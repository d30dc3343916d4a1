// Package registry maps model and attribute type tags onto graphql-go type
// nodes. A Registry is created per schema-attach request and passed by
// reference to the builders; it is not safe for concurrent use and holds no
// process-wide state.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/model"
)

// Registry interns graph types so each named model maps to exactly one type
// instance within a schema build.
type Registry struct {
	log    *zap.Logger
	models map[string]model.Model
	types  map[string]graphql.Type
	json   *graphql.Scalar
}

// New creates a registry seeded with the primitive type mappings and the
// given response model table.
func New(models []model.Model, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{log: log}
	r.Reset(models)
	return r
}

// Reset drops every interned type and re-seeds primitives and models.
func (r *Registry) Reset(models []model.Model) {
	r.models = make(map[string]model.Model, len(models))
	for _, m := range models {
		r.models[m.Name] = m
	}
	r.json = newJSONScalar()
	r.types = map[string]graphql.Type{
		"String":  graphql.String,
		"Int":     graphql.Int,
		"Float":   graphql.Float,
		"Boolean": graphql.Boolean,
		"Json":    r.json,
	}
}

// primitiveTags maps model rule type tags to interned primitive names.
// Datetimes are served as strings; any/none/json/payload are opaque JSON.
var primitiveTags = map[string]string{
	"string":   "String",
	"integer":  "Int",
	"double":   "Float",
	"float":    "Float",
	"boolean":  "Boolean",
	"datetime": "String",
	"json":     "Json",
	"payload":  "Json",
	"any":      "Json",
	"none":     "Json",
}

// Intern registers t under name. Interning the same name twice is a
// configuration error.
func (r *Registry) Intern(name string, t graphql.Type) error {
	if _, dup := r.types[name]; dup {
		return fmt.Errorf("type %q already interned", name)
	}
	r.types[name] = t
	return nil
}

// Lookup returns the interned type for name, if any.
func (r *Registry) Lookup(name string) (graphql.Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Resolve returns the graph type for a primitive tag or named response model,
// interning object types on first use. A reference to an unknown model is a
// configuration error for the caller to surface; the registry never aborts a
// whole build on its own.
func (r *Registry) Resolve(name string) (graphql.Output, error) {
	if t, ok := r.types[name]; ok {
		return t, nil
	}
	if prim, ok := primitiveTags[name]; ok {
		return r.types[prim].(graphql.Output), nil
	}
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", name)
	}
	obj := r.buildModelObject(m)
	// Interned before the field thunk runs, so models referencing
	// themselves (directly or mutually) terminate.
	r.types[name] = obj
	return obj, nil
}

func (r *Registry) buildModelObject(m model.Model) *graphql.Object {
	if m.Any {
		return graphql.NewObject(graphql.ObjectConfig{
			Name:        typeName(m.Name),
			Description: m.Description,
			Fields: graphql.Fields{
				"data": &graphql.Field{
					Type:        graphql.String,
					Description: "Serialized payload.",
					Resolve: func(p graphql.ResolveParams) (any, error) {
						raw, err := json.Marshal(p.Source)
						if err != nil {
							return nil, err
						}
						return string(raw), nil
					},
				},
			},
		})
	}
	rules := m.Rules
	modelName := m.Name
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        typeName(modelName),
		Description: m.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, rule := range rules {
				t, err := r.ruleType(rule)
				if err != nil {
					r.log.Warn("skipping model field",
						zap.String("model", modelName),
						zap.String("field", rule.Name),
						zap.Error(err))
					continue
				}
				fields[bridge.SafeKey(rule.Name)] = &graphql.Field{
					Type:        t,
					Description: rule.Description,
				}
			}
			return fields
		}),
	})
}

// ruleType resolves a field rule's union-like type tags: the first resolvable
// tag wins.
func (r *Registry) ruleType(rule model.Rule) (graphql.Output, error) {
	var lastErr error
	for _, tag := range rule.Types {
		t, err := r.Resolve(tag)
		if err != nil {
			lastErr = err
			continue
		}
		if rule.Array {
			return graphql.NewList(t), nil
		}
		return t, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("rule %q declares no types", rule.Name)
	}
	return nil, lastErr
}

// ScalarForAttribute maps a storage attribute scalar kind to the interned
// primitive name used in type references.
func (r *Registry) ScalarForAttribute(kind string) (string, error) {
	switch kind {
	case model.AttributeTypeString, model.AttributeTypeDatetime,
		model.AttributeTypeEmail, model.AttributeTypeURL,
		model.AttributeTypeIP, model.AttributeTypeEnum:
		return "String", nil
	case model.AttributeTypeInteger:
		return "Int", nil
	case model.AttributeTypeFloat:
		return "Float", nil
	case model.AttributeTypeBoolean:
		return "Boolean", nil
	}
	return "", fmt.Errorf("unknown attribute type %q", kind)
}

// ScalarForValidator maps a route parameter validator tag to the primitive
// name of its argument type, and whether the argument is list-shaped.
func (r *Registry) ScalarForValidator(tag string) (name string, list bool) {
	switch tag {
	case "integer", "range":
		return "Int", false
	case "float", "numeric":
		return "Float", false
	case "boolean":
		return "Boolean", false
	case "json", "document", "payload":
		return "Json", false
	case "array", "queries":
		return "String", true
	default:
		// Text-like validators (text, uid, email, url, ip, host, ...)
		// and anything unrecognized coerce to String.
		return "String", false
	}
}

// PrimitiveName maps a model rule type tag to its interned primitive type
// name, if the tag is primitive.
func PrimitiveName(tag string) (string, bool) {
	name, ok := primitiveTags[tag]
	return name, ok
}

// TypeName sanitizes a model name into a valid GraphQL type name.
func TypeName(name string) string { return typeName(name) }

// typeName sanitizes a model name into a valid GraphQL type name.
func typeName(name string) string {
	out := make([]rune, 0, len(name))
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_':
			out = append(out, c)
		case c >= '0' && c <= '9':
			if i == 0 {
				out = append(out, '_')
			}
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
