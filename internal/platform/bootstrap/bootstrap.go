// Package bootstrap builds config-selected infrastructure shared by the
// binaries, so cmd/server and cmd/sweeper wire identical backends.
package bootstrap

import (
	"context"

	"certflow/internal/artifact"
	"certflow/internal/platform/config"
	"certflow/internal/platform/postgres"
	platformredis "certflow/internal/platform/redis"
)

// ArtifactStore builds the artifact store the configuration selects. It
// trusts a validated config: unknown backends have been rejected by
// Config.Validate, so anything but redis or postgres falls through to the
// in-memory store. The returned cleanup is always non-nil.
func ArtifactStore(ctx context.Context, cfg *config.Config) (artifact.Store, func(), error) {
	switch cfg.ArtifactBackend {
	case "redis":
		client, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return artifact.NewRedisStore(client.Client), func() { client.Close() }, nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store := artifact.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	default:
		return artifact.NewInMemoryStore(), func() {}, nil
	}
}
