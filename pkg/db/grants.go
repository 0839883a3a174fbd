package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const grantsLogPrefix = "db:grants"

// Grant is one persisted permission entry: the state for a (chain, method)
// pair, set explicitly by the embedding application.
type Grant struct {
	ChainID   string
	Method    string
	State     string
	UpdatedBy string
	Modified  time.Time
}

// GrantsRepository provides database access for permission grants.
type GrantsRepository struct {
	pool *pgxpool.Pool
}

// NewGrantsRepository creates a new GrantsRepository with the given connection pool.
func NewGrantsRepository(pool *pgxpool.Pool) *GrantsRepository {
	return &GrantsRepository{pool: pool}
}

// LoadAll returns every persisted grant, for seeding the in-memory store at boot.
func (r *GrantsRepository) LoadAll(ctx context.Context) ([]Grant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT chain_id, method, state, updated_by, modified
		 FROM permission_grants
		 ORDER BY chain_id, method`)
	if err != nil {
		return nil, fmt.Errorf("%s - query grants: %w", grantsLogPrefix, err)
	}
	defer rows.Close()

	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ChainID, &g.Method, &g.State, &g.UpdatedBy, &g.Modified); err != nil {
			return nil, fmt.Errorf("%s - scan grant: %w", grantsLogPrefix, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - iterate grants: %w", grantsLogPrefix, err)
	}

	slog.Debug(fmt.Sprintf("%s - loaded %d grants", grantsLogPrefix, len(out)))
	return out, nil
}

// Upsert creates or updates the grant for (chainID, method).
func (r *GrantsRepository) Upsert(ctx context.Context, g Grant) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO permission_grants (chain_id, method, state, updated_by, created, modified)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (chain_id, method) DO UPDATE SET
		   state = $3,
		   updated_by = $4,
		   modified = $5`,
		g.ChainID, g.Method, g.State, g.UpdatedBy, now)
	if err != nil {
		return fmt.Errorf("%s - upsert grant %s/%s: %w", grantsLogPrefix, g.ChainID, g.Method, err)
	}
	slog.Info(fmt.Sprintf("%s - upserted grant chain=%s method=%s state=%s", grantsLogPrefix, g.ChainID, g.Method, g.State))
	return nil
}

// Delete removes the grant for (chainID, method), reporting whether one existed.
func (r *GrantsRepository) Delete(ctx context.Context, chainID, method string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM permission_grants WHERE chain_id = $1 AND method = $2`,
		chainID, method)
	if err != nil {
		return false, fmt.Errorf("%s - delete grant %s/%s: %w", grantsLogPrefix, chainID, method, err)
	}
	return tag.RowsAffected() > 0, nil
}
