package schema

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/registry"
)

// attributePageSize is the offset-pagination page size for attribute
// enumeration.
const attributePageSize = 1000

// AttributeSource enumerates a tenant's attribute metadata. Implementations
// read with elevated authorization: schema introspection must see every
// attribute regardless of caller permissions.
type AttributeSource interface {
	ListAttributes(ctx context.Context, limit, offset int) ([]model.Attribute, error)
}

// BuildTenant derives the tenant fragment from live attribute metadata.
//
// Pages are fetched until one comes back empty. Each page is grouped into
// per-collection records by its own goroutine (fan-out); a single consumer
// merges records into the collection map (fan-in), so no accumulator is ever
// written concurrently. The WaitGroup join barrier guarantees every page's
// records land before the fragment is composed.
func BuildTenant(ctx context.Context, src AttributeSource, reg *registry.Registry, log *zap.Logger) (*Fragment, error) {
	if log == nil {
		log = zap.NewNop()
	}

	type record struct {
		key   model.CollectionKey
		attrs []model.Attribute
	}
	records := make(chan record)
	merged := make(map[model.CollectionKey][]model.Attribute)
	mergeDone := make(chan struct{})
	go func() {
		defer close(mergeDone)
		for rec := range records {
			merged[rec.key] = append(merged[rec.key], rec.attrs...)
		}
	}()

	var wg sync.WaitGroup
	var fetchErr error
	for offset := 0; ; offset += attributePageSize {
		page, err := src.ListAttributes(ctx, attributePageSize, offset)
		if err != nil {
			fetchErr = fmt.Errorf("list attributes at offset %d: %w", offset, err)
			break
		}
		if len(page) == 0 {
			break
		}
		wg.Add(1)
		go func(page []model.Attribute) {
			defer wg.Done()
			groups := make(map[model.CollectionKey][]model.Attribute)
			for _, a := range page {
				if a.Status != model.AttributeStatusAvailable {
					continue
				}
				key := model.CollectionKey{DatabaseID: a.DatabaseID, CollectionID: a.CollectionID}
				groups[key] = append(groups[key], a)
			}
			for key, attrs := range groups {
				select {
				case records <- record{key: key, attrs: attrs}:
				case <-ctx.Done():
					return
				}
			}
		}(page)
	}
	wg.Wait()
	close(records)
	<-mergeDone
	if fetchErr != nil {
		return nil, fetchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]model.CollectionKey, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DatabaseID != keys[j].DatabaseID {
			return keys[i].DatabaseID < keys[j].DatabaseID
		}
		return keys[i].CollectionID < keys[j].CollectionID
	})

	frag := NewFragment()
	ambiguous := ambiguousCollections(keys)
	for _, key := range keys {
		name := sanitizeName(key.CollectionID)
		if ambiguous[key.CollectionID] {
			// Same collection id under several databases: qualify
			// with the database id to keep field names unique.
			name = sanitizeName(key.DatabaseID + "_" + key.CollectionID)
		}
		if err := addCollection(frag, name, key, merged[key], reg, log); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

func ambiguousCollections(keys []model.CollectionKey) map[string]bool {
	seen := make(map[string]string, len(keys))
	dup := make(map[string]bool)
	for _, key := range keys {
		if db, ok := seen[key.CollectionID]; ok && db != key.DatabaseID {
			dup[key.CollectionID] = true
		}
		seen[key.CollectionID] = key.DatabaseID
	}
	return dup
}

// addCollection emits the collection's document type and its five CRUD
// fields into the fragment.
func addCollection(frag *Fragment, name string, key model.CollectionKey, attrs []model.Attribute, reg *registry.Registry, log *zap.Logger) error {
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })

	obj := &ObjectSpec{
		Name:        name,
		Description: fmt.Sprintf("Documents of collection %s.", key.CollectionID),
		Fields: map[string]*TypeRef{
			"_id":           NonNull(Named("String")),
			"_collectionId": NonNull(Named("String")),
			"_databaseId":   NonNull(Named("String")),
			"_createdAt":    NonNull(Named("String")),
			"_updatedAt":    NonNull(Named("String")),
			"_permissions":  NonNull(List(NonNull(Named("String")))),
		},
	}
	createArgs := map[string]*ArgSpec{
		"id":          {Type: Named("String"), Description: "Document id. Generated when omitted."},
		"permissions": {Type: List(NonNull(Named("String"))), Default: []any{}},
	}
	updateArgs := map[string]*ArgSpec{
		"id":          {Type: NonNull(Named("String"))},
		"permissions": {Type: List(NonNull(Named("String"))), Default: []any{}},
	}
	for _, a := range attrs {
		scalar, err := reg.ScalarForAttribute(a.Type)
		if err != nil {
			log.Warn("skipping attribute",
				zap.String("collection", key.CollectionID),
				zap.String("key", a.Key),
				zap.Error(err))
			continue
		}
		ref := Named(scalar)
		if a.Array {
			ref = List(NonNull(ref))
		}
		field := bridge.SafeKey(a.Key)
		if a.Required {
			obj.Fields[field] = NonNull(ref)
		} else {
			obj.Fields[field] = ref
		}
		createRef := ref
		if a.Required {
			createRef = NonNull(ref)
		}
		createArgs[field] = &ArgSpec{Type: createRef, Default: a.Default}
		// Update arguments are always nullable so partial updates work.
		updateArgs[field] = &ArgSpec{Type: ref}
	}
	if _, dup := frag.Objects[name]; dup {
		return fmt.Errorf("tenant schema: duplicate collection type %q", name)
	}
	frag.Objects[name] = obj

	docs := fmt.Sprintf("/v1/databases/%s/collections/%s/documents",
		url.PathEscape(key.DatabaseID), url.PathEscape(key.CollectionID))

	frag.Query[name+"Get"] = &FieldSpec{
		Type:        Named(name),
		Description: fmt.Sprintf("Get a %s document by id.", key.CollectionID),
		Args: map[string]*ArgSpec{
			"id": {Type: NonNull(Named("String"))},
		},
		Binding: bridge.Binding{Kind: bridge.KindDocumentGet, Method: "GET", Path: docs + "/{id}"},
	}
	frag.Query[name+"List"] = &FieldSpec{
		Type:        List(Named(name)),
		Description: fmt.Sprintf("List %s documents.", key.CollectionID),
		Args: map[string]*ArgSpec{
			ListFilterParam: {Type: List(NonNull(Named("String"))), Default: []any{}},
		},
		Binding: bridge.Binding{Kind: bridge.KindDocumentList, Method: "GET", Path: docs, Unwrap: "documents"},
		List:    true,
		Weight:  1,
	}
	frag.Mutation[name+"Create"] = &FieldSpec{
		Type:        Named(name),
		Description: fmt.Sprintf("Create a %s document.", key.CollectionID),
		Args:        createArgs,
		Binding:     bridge.Binding{Kind: bridge.KindDocumentCreate, Method: "POST", Path: docs},
	}
	frag.Mutation[name+"Update"] = &FieldSpec{
		Type:        Named(name),
		Description: fmt.Sprintf("Update a %s document.", key.CollectionID),
		Args:        updateArgs,
		Binding:     bridge.Binding{Kind: bridge.KindDocumentUpdate, Method: "PATCH", Path: docs + "/{id}"},
	}
	frag.Mutation[name+"Delete"] = &FieldSpec{
		Type:        Named("none"),
		Description: fmt.Sprintf("Delete a %s document.", key.CollectionID),
		Args: map[string]*ArgSpec{
			"id": {Type: NonNull(Named("String"))},
		},
		Binding: bridge.Binding{Kind: bridge.KindDocumentDelete, Method: "DELETE", Path: docs + "/{id}"},
	}
	return nil
}
