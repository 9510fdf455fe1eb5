package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api"
	"github.com/danghamo/tourguide/internal/app/location"
	"github.com/danghamo/tourguide/internal/domain/media"
	"github.com/danghamo/tourguide/pkg/audio"
	"github.com/danghamo/tourguide/pkg/config"
)

const version = "0.1.0"

func main() {
	replayPath := flag.String("replay", "", "replay a recorded YAML track instead of device locations")
	routeID := flag.String("route", "", "open a guide session on this route at startup")
	seedPath := flag.String("seed", "", "load routes from a YAML seed into the stores before serving")
	flag.Parse()

	// Initialize configuration and logger
	cfg, log, err := config.Initialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Ensure logger is flushed on exit
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting tour guide server",
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open stores", zap.Error(err))
	}
	defer st.Close()

	if *seedPath != "" {
		if err := st.seed(ctx, *seedPath); err != nil {
			log.Fatal("Failed to load route seed", zap.Error(err))
		}
	}

	engines, err := audio.NewFactory(cfg.Audio.Engine, cfg.Audio.PlayerPath, log)
	if err != nil {
		log.Fatal("Failed to configure audio engine", zap.Error(err))
	}

	deps := api.Deps{
		Redis:   st.redis,
		Routes:  st.provider,
		Syncer:  st.provider,
		Prefs:   st.prefs,
		Engines: engines,
		Resolver: media.NewResolver(media.Config{
			BaseURL:    cfg.Storage.BaseURL,
			ImagesPath: cfg.Storage.ImagesPath,
			AudioPath:  cfg.Storage.AudioPath,
			CloudFirst: cfg.Storage.CloudFirst,
			AssetsDir:  cfg.Storage.AssetsDir,
		}),
		Version: version,
	}

	if *replayPath != "" {
		track, err := location.LoadTrackFile(*replayPath)
		if err != nil {
			log.Fatal("Failed to load replay track", zap.Error(err))
		}
		replay := location.NewReplaySource(track, log)
		deps.Sources = func(string) location.Source { return replay }
		log.Info("Replaying recorded track",
			zap.String("track", track.Name),
			zap.Int("fixes", len(track.Fixes)),
			zap.Bool("loop", track.Loop),
		)
	}

	apiServer, err := api.NewServer(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if *routeID != "" {
		if _, err := apiServer.Manager().Open(ctx, cfg.Auth.DeviceUserID, *routeID); err != nil {
			log.Fatal("Failed to open guide session", zap.String("route_id", *routeID), zap.Error(err))
		}
		log.Info("Guide session opened",
			zap.String("route_id", *routeID),
			zap.String("user_id", cfg.Auth.DeviceUserID),
		)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		cancel()
	}()

	log.Info("Listening", zap.String("addr", apiServer.GetAddr()))
	if err := apiServer.Start(ctx); err != nil {
		log.Error("Server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Server gracefully stopped")
}
