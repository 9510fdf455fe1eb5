package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/domain/preference"
	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
	"github.com/danghamo/tourguide/pkg/redisx"
)

// stores are the persistence backends chosen from config
type stores struct {
	redis    *redisx.Client
	remote   route.Repository
	cache    route.Repository
	bolt     *route.BoltRepository
	provider *route.SyncProvider
	prefs    preference.Store
}

// openStores connects Redis when enabled and opens the offline route cache.
// Without either, routes and preferences live in memory.
func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	st := &stores{}

	if cfg.Redis.Enabled {
		client, err := redisx.NewClientFromConfig(ctx, &cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		st.redis = client
		st.remote = route.NewRedisRepository(client)
		st.prefs = preference.NewRedisStore(client.Client, cfg.Guide.AudioGuideDefault)
	} else {
		st.prefs = preference.NewMemoryStore(cfg.Guide.AudioGuideDefault)
	}

	if path := cfg.Cache.BoltPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create route cache dir: %w", err)
		}
		bolt, err := route.OpenBoltRepository(path)
		if err != nil {
			log.Warn("Offline route cache unavailable, using memory", zap.String("path", path), zap.Error(err))
		} else {
			st.bolt = bolt
			st.cache = bolt
		}
	}
	if st.cache == nil {
		st.cache = route.NewMemoryRepository()
	}

	st.provider = route.NewSyncProvider(st.remote, st.cache, log)
	return st, nil
}

// seed writes a seed file into every configured route store
func (st *stores) seed(ctx context.Context, path string) error {
	seed, err := route.LoadSeedFile(path)
	if err != nil {
		return err
	}
	repos := []route.Repository{st.cache}
	if st.remote != nil {
		repos = append(repos, st.remote)
	}
	return seed.Apply(ctx, repos...)
}

// Close releases the cache file and the Redis connection
func (st *stores) Close() {
	if st.bolt != nil {
		_ = st.bolt.Close()
	}
	if st.redis != nil {
		_ = st.redis.Close()
	}
}
