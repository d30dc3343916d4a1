package schema

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/registry"
)

// ListFilterParam is the canonical route parameter that marks a field as
// list-shaped and carries its page-size filters.
const ListFilterParam = "queries"

// BuildAPI derives the API fragment from the platform's static route table.
// The fragment is structural only; resolvers are bound at attach time.
func BuildAPI(routes []model.Route, version string, reg *registry.Registry, log *zap.Logger) (*Fragment, error) {
	if log == nil {
		log = zap.NewNop()
	}
	frag := NewFragment()
	frag.Version = version

	for _, route := range routes {
		if route.Internal {
			continue
		}
		bucket, err := bucketFor(route.Method)
		if err != nil {
			return nil, err
		}
		base := fieldName(route.Namespace, route.MethodName)
		args, isList := buildArgs(route, reg)

		// A route declaring several response models fans out into one
		// field per model, sharing arguments but typed per model.
		for _, modelName := range route.ResponseModels {
			name := base
			if len(route.ResponseModels) > 1 {
				name += upperFirst(modelName)
			}
			spec := &FieldSpec{
				Type:        Named(modelName),
				Description: route.Description,
				Args:        args,
				Binding: bridge.Binding{
					Kind:   bridge.KindRoute,
					Method: route.Method,
					Path:   route.Path,
				},
			}
			if isList {
				spec.List = true
				spec.Weight = route.Weight
			}
			target := frag.Query
			if bucket == bucketMutation {
				target = frag.Mutation
			}
			if _, dup := target[name]; dup {
				return nil, fmt.Errorf("api schema: duplicate field %q (route %s %s)", name, route.Method, route.Path)
			}
			target[name] = spec
		}
	}
	return frag, nil
}

type bucket int

const (
	bucketQuery bucket = iota
	bucketMutation
)

func bucketFor(method string) (bucket, error) {
	switch method {
	case http.MethodGet:
		return bucketQuery, nil
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return bucketMutation, nil
	}
	return 0, fmt.Errorf("api schema: unsupported HTTP method %q", method)
}

func buildArgs(route model.Route, reg *registry.Registry) (map[string]*ArgSpec, bool) {
	args := make(map[string]*ArgSpec, len(route.Params))
	isList := false
	for _, p := range route.Params {
		scalar, list := reg.ScalarForValidator(p.Validator)
		ref := Named(scalar)
		if list {
			ref = List(NonNull(ref))
		}
		if p.Required {
			ref = NonNull(ref)
		}
		args[p.Name] = &ArgSpec{
			Type:        ref,
			Default:     p.Default,
			Description: p.Description,
		}
		if p.Name == ListFilterParam {
			isList = true
		}
	}
	return args, isList
}

// fieldName derives the GraphQL field name from a route's namespace and
// method label: accounts + get -> accountsGet; an empty namespace yields the
// bare upper-cased method label.
func fieldName(namespace, method string) string {
	return sanitizeName(namespace + upperFirst(method))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// sanitizeName coerces a label into a valid GraphQL name.
func sanitizeName(name string) string {
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
