package schema

import (
	"fmt"
	"sort"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/registry"
)

// AttachOptions tunes resolver binding.
type AttachOptions struct {
	// MaxComplexity caps the estimated cost of list-shaped fields.
	// Zero disables the cap.
	MaxComplexity int
}

// Attach turns a structural fragment into an executable schema: collection
// object types are interned into the registry, every field's type reference
// is resolved, and a fresh resolver is bound from the field's binding
// descriptor and the live dispatcher. Cached fragments pass through here on
// every load, since resolvers never survive serialization.
func Attach(frag *Fragment, reg *registry.Registry, d bridge.Dispatcher, opts AttachOptions, log *zap.Logger) (graphql.Schema, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := internObjects(frag, reg); err != nil {
		return graphql.Schema{}, err
	}

	query, err := rootObject("Query", frag.Query, reg, d, opts, log)
	if err != nil {
		return graphql.Schema{}, err
	}
	if query == nil {
		return graphql.Schema{}, fmt.Errorf("attach: schema has no query fields")
	}
	cfg := graphql.SchemaConfig{Query: query}
	mutation, err := rootObject("Mutation", frag.Mutation, reg, d, opts, log)
	if err != nil {
		return graphql.Schema{}, err
	}
	if mutation != nil {
		cfg.Mutation = mutation
	}
	return graphql.NewSchema(cfg)
}

// internObjects registers every collection document type before any field
// thunk runs, so fields may reference collection types freely.
func internObjects(frag *Fragment, reg *registry.Registry) error {
	names := make([]string, 0, len(frag.Objects))
	for name := range frag.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := frag.Objects[name]
		fields := spec.Fields
		obj := graphql.NewObject(graphql.ObjectConfig{
			Name:        spec.Name,
			Description: spec.Description,
			Fields: graphql.FieldsThunk(func() graphql.Fields {
				out := graphql.Fields{}
				for fname, ref := range fields {
					t, err := resolveOutput(ref, reg)
					if err != nil {
						continue
					}
					out[fname] = &graphql.Field{Type: t}
				}
				return out
			}),
		})
		if err := reg.Intern(spec.Name, obj); err != nil {
			return fmt.Errorf("attach: %w", err)
		}
	}
	return nil
}

func rootObject(name string, specs map[string]*FieldSpec, reg *registry.Registry, d bridge.Dispatcher, opts AttachOptions, log *zap.Logger) (*graphql.Object, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(specs))
	for fname := range specs {
		names = append(names, fname)
	}
	sort.Strings(names)

	fields := graphql.Fields{}
	for _, fname := range names {
		spec := specs[fname]
		field, err := attachField(spec, reg, d, opts)
		if err != nil {
			// Unknown model references skip the offending field only,
			// never the whole build.
			log.Warn("skipping field",
				zap.String("root", name),
				zap.String("field", fname),
				zap.Error(err))
			continue
		}
		fields[fname] = field
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("attach: every %s field failed to resolve", name)
	}
	return graphql.NewObject(graphql.ObjectConfig{Name: name, Fields: fields}), nil
}

func attachField(spec *FieldSpec, reg *registry.Registry, d bridge.Dispatcher, opts AttachOptions) (*graphql.Field, error) {
	t, err := resolveOutput(spec.Type, reg)
	if err != nil {
		return nil, err
	}
	args := graphql.FieldConfigArgument{}
	for aname, arg := range spec.Args {
		at, err := resolveOutput(arg.Type, reg)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", aname, err)
		}
		in, ok := at.(graphql.Input)
		if !ok {
			return nil, fmt.Errorf("argument %q: type %s is not an input type", aname, at.Name())
		}
		args[aname] = &graphql.ArgumentConfig{
			Type:         in,
			DefaultValue: arg.Default,
			Description:  arg.Description,
		}
	}
	resolverOpts := bridge.ResolverOptions{}
	if spec.List {
		resolverOpts.Weight = spec.Weight
		resolverOpts.MaxComplexity = opts.MaxComplexity
	}
	return &graphql.Field{
		Type:        t,
		Description: spec.Description,
		Args:        args,
		Resolve:     bridge.NewResolver(spec.Binding, d, resolverOpts),
	}, nil
}

// resolveOutput walks a type reference down to its named type and rebuilds
// the engine wrappers.
func resolveOutput(ref *TypeRef, reg *registry.Registry) (graphql.Output, error) {
	switch ref.Kind {
	case TypeRefKindNamed:
		return reg.Resolve(ref.Named)
	case TypeRefKindList:
		inner, err := resolveOutput(ref.OfType, reg)
		if err != nil {
			return nil, err
		}
		return graphql.NewList(inner), nil
	case TypeRefKindNonNull:
		inner, err := resolveOutput(ref.OfType, reg)
		if err != nil {
			return nil, err
		}
		return graphql.NewNonNull(inner), nil
	}
	return nil, fmt.Errorf("invalid type reference")
}
