// Package db provides grant data clearing.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearGrants truncates the permission_grants table. Schema is preserved;
// only data is removed.
func ClearGrants(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing permission grants", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE permission_grants RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Grants cleared", clearLogPrefix))
	return nil
}
