package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/bridge"
	"github.com/graphbridge/graphbridge/internal/eventbus"
	"github.com/graphbridge/graphbridge/internal/events"
	"github.com/graphbridge/graphbridge/internal/model"
	"github.com/graphbridge/graphbridge/internal/registry"
	"github.com/graphbridge/graphbridge/internal/schema"
)

const (
	apiKey          = "schema.api"
	tenantKeyPrefix = "schema.tenant."
	dirtySuffix     = ".dirty"
)

// Config assembles a Coordinator.
type Config struct {
	Store      Store
	Dispatcher bridge.Dispatcher
	Routes     []model.Route
	Models     []model.Model
	// Source yields the attribute source for a tenant. Nil disables the
	// tenant fragment entirely.
	Source func(tenant string) schema.AttributeSource
	// Version is the running API version token. A cached API fragment
	// built for a different token is stale.
	Version       string
	MaxComplexity int
	Logger        *zap.Logger
}

// Coordinator owns fragment lifecycles: it checks freshness, triggers
// rebuilds, stores structural fragments, and composes them into one
// executable schema per request. Builds are idempotent and safe to race:
// concurrent rebuilds duplicate work at worst, and the whole-value cache
// replace keeps every observed fragment internally consistent.
type Coordinator struct {
	store      Store
	dispatcher bridge.Dispatcher
	routes     []model.Route
	models     []model.Model
	source     func(tenant string) schema.AttributeSource
	version    string
	maxCost    int
	log        *zap.Logger
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		routes:     cfg.Routes,
		models:     cfg.Models,
		source:     cfg.Source,
		version:    cfg.Version,
		maxCost:    cfg.MaxComplexity,
		log:        log,
	}
}

// Schema returns the executable schema served to the tenant, rebuilding
// stale fragments first. Resolvers are bound fresh on every call; only the
// structural fragment survives the cache.
func (c *Coordinator) Schema(ctx context.Context, tenant string) (graphql.Schema, error) {
	reg := registry.New(c.models, c.log)
	api, err := c.apiFragment(ctx, reg)
	if err != nil {
		return graphql.Schema{}, err
	}
	ten, err := c.tenantFragment(ctx, tenant, reg)
	if err != nil {
		return graphql.Schema{}, err
	}
	merged, err := schema.Merge(api, ten)
	if err != nil {
		return graphql.Schema{}, err
	}
	return schema.Attach(merged, reg, c.dispatcher, schema.AttachOptions{MaxComplexity: c.maxCost}, c.log)
}

// Fragment returns the merged structural fragment served to the tenant,
// for SDL rendering and diagnostics.
func (c *Coordinator) Fragment(ctx context.Context, tenant string) (*schema.Fragment, error) {
	reg := registry.New(c.models, c.log)
	api, err := c.apiFragment(ctx, reg)
	if err != nil {
		return nil, err
	}
	ten, err := c.tenantFragment(ctx, tenant, reg)
	if err != nil {
		return nil, err
	}
	return schema.Merge(api, ten)
}

// Models returns the response model table the coordinator was built with.
func (c *Coordinator) Models() []model.Model { return c.models }

// InvalidateTenant flags the tenant's metadata as changed; the next Schema
// call rebuilds its fragment.
func (c *Coordinator) InvalidateTenant(ctx context.Context, tenant string) error {
	return c.store.Set(ctx, tenantKeyPrefix+tenant+dirtySuffix, []byte("1"))
}

func (c *Coordinator) apiFragment(ctx context.Context, reg *registry.Registry) (*schema.Fragment, error) {
	if frag := c.load(ctx, apiKey); frag != nil && frag.Version == c.version {
		return frag, nil
	}

	start := time.Now()
	eventbus.Publish(ctx, events.SchemaBuildStart{Fragment: events.FragmentAPI})
	frag, err := schema.BuildAPI(c.routes, c.version, reg, c.log)
	eventbus.Publish(ctx, events.SchemaBuildFinish{
		Fragment: events.FragmentAPI,
		Fields:   fieldCount(frag),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	c.save(ctx, apiKey, frag)
	return frag, nil
}

func (c *Coordinator) tenantFragment(ctx context.Context, tenant string, reg *registry.Registry) (*schema.Fragment, error) {
	if c.source == nil || tenant == "" {
		return nil, nil
	}
	dirtyKey := tenantKeyPrefix + tenant + dirtySuffix
	dirty, err := c.store.Exists(ctx, dirtyKey)
	if err != nil {
		// Staleness is never an error; an unreadable flag means rebuild.
		c.log.Warn("dirty flag read failed", zap.String("tenant", tenant), zap.Error(err))
		dirty = true
	}
	cacheKey := tenantKeyPrefix + tenant
	if !dirty {
		if frag := c.load(ctx, cacheKey); frag != nil {
			return frag, nil
		}
	}

	start := time.Now()
	eventbus.Publish(ctx, events.SchemaBuildStart{Fragment: events.FragmentTenant, Tenant: tenant})
	frag, err := schema.BuildTenant(ctx, c.source(tenant), reg, c.log)
	eventbus.Publish(ctx, events.SchemaBuildFinish{
		Fragment: events.FragmentTenant,
		Tenant:   tenant,
		Fields:   fieldCount(frag),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	c.save(ctx, cacheKey, frag)
	if err := c.store.Delete(ctx, dirtyKey); err != nil {
		c.log.Warn("dirty flag clear failed", zap.String("tenant", tenant), zap.Error(err))
	}
	return frag, nil
}

// load returns the cached fragment or nil; cache problems degrade to a
// rebuild, never to a failed request.
func (c *Coordinator) load(ctx context.Context, key string) *schema.Fragment {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("fragment read failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var frag schema.Fragment
	if err := json.Unmarshal(raw, &frag); err != nil {
		c.log.Warn("fragment decode failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	return &frag
}

func (c *Coordinator) save(ctx context.Context, key string, frag *schema.Fragment) {
	raw, err := json.Marshal(frag)
	if err != nil {
		c.log.Warn("fragment encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw); err != nil {
		c.log.Warn("fragment write failed", zap.String("key", key), zap.Error(err))
	}
}

func fieldCount(frag *schema.Fragment) int {
	if frag == nil {
		return 0
	}
	return len(frag.Query) + len(frag.Mutation)
}
