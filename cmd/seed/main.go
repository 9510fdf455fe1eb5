// Command seed loads bundled route data into Redis and the offline cache.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/domain/route"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/redisx"
)

func main() {
	file := flag.StringP("file", "f", "routes.yaml", "route seed file")
	skipCache := flag.Bool("skip-cache", false, "do not write the offline bolt cache")
	flag.Parse()

	cfg, log, err := config.Initialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	seed, err := route.LoadSeedFile(*file)
	if err != nil {
		log.Fatal("Failed to load seed", zap.String("file", *file), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var repos []route.Repository
	var targets []string

	if cfg.Redis.Enabled {
		client, err := redisx.NewClientFromConfig(ctx, &cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		repos = append(repos, route.NewRedisRepository(client))
		targets = append(targets, "redis")
	}

	if path := cfg.Cache.BoltPath; path != "" && !*skipCache {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatal("Failed to create cache dir", zap.Error(err))
		}
		cache, err := route.OpenBoltRepository(path)
		if err != nil {
			log.Fatal("Failed to open route cache", zap.Error(err))
		}
		defer cache.Close()
		repos = append(repos, cache)
		targets = append(targets, path)
	}

	if len(repos) == 0 {
		log.Fatal("Nothing to seed: enable redis or set cache.bolt_path")
	}

	if err := seed.Apply(ctx, repos...); err != nil {
		log.Fatal("Failed to apply seed", zap.Error(err))
	}

	attractions := 0
	for _, r := range seed.Routes {
		attractions += len(r.Attractions)
	}
	log.Info("Routes seeded",
		zap.Int("routes", len(seed.Routes)),
		zap.Int("attractions", attractions),
		zap.Strings("targets", targets),
	)
}
