// Package cmd wires shared infrastructure for the binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flowpatch/flowpatch/pkg/persistence"
	"github.com/flowpatch/flowpatch/pkg/persistence/file"
	"github.com/flowpatch/flowpatch/pkg/persistence/postgresql"
	"github.com/flowpatch/flowpatch/pkg/persistence/redis"
)

// NewPersistence selects the version store backend from the database URL
// scheme. Anything that is not postgres or redis is treated as a file
// path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch persistenceProvider(databaseURL) {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis":
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func persistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis":
		return "redis"
	default:
		return "file"
	}
}
