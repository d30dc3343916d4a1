// Package store provides attribute metadata sources for the tenant schema
// builder: a pgx-backed Postgres source for production and an in-memory
// source for tests and single-node development.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graphbridge/graphbridge/internal/model"
)

// Attribute enumeration runs with the pool's own credentials, not the
// caller's: schema introspection must see every tenant attribute, so the
// configured role needs unrestricted read access to the attributes table.
const listAttributesSQL = `
SELECT database_id, collection_id, key, type, is_array, required, default_value, status
FROM attributes
WHERE tenant_id = $1
ORDER BY database_id, collection_id, key
LIMIT $2 OFFSET $3`

// Postgres reads attribute metadata from the platform's metadata database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect metadata database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping metadata database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() { p.pool.Close() }

// Tenant returns the attribute source for one tenant.
func (p *Postgres) Tenant(id string) *TenantSource {
	return &TenantSource{pool: p.pool, tenant: id}
}

// TenantSource enumerates one tenant's attributes with offset pagination.
type TenantSource struct {
	pool   *pgxpool.Pool
	tenant string
}

// ListAttributes implements schema.AttributeSource.
func (s *TenantSource) ListAttributes(ctx context.Context, limit, offset int) ([]model.Attribute, error) {
	rows, err := s.pool.Query(ctx, listAttributesSQL, s.tenant, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	var out []model.Attribute
	for rows.Next() {
		var a model.Attribute
		var defaultValue []byte
		if err := rows.Scan(&a.DatabaseID, &a.CollectionID, &a.Key, &a.Type,
			&a.Array, &a.Required, &defaultValue, &a.Status); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if len(defaultValue) > 0 {
			if err := json.Unmarshal(defaultValue, &a.Default); err != nil {
				return nil, fmt.Errorf("decode default for %s.%s: %w", a.CollectionID, a.Key, err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return out, nil
}
