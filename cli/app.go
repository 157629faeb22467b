package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/metaphotor/metaphotor/core/resolver"
	"github.com/metaphotor/metaphotor/internal/catalog"
	"github.com/metaphotor/metaphotor/internal/scan"
	"github.com/metaphotor/metaphotor/pkg/config"
	"github.com/metaphotor/metaphotor/pkg/db"
	"github.com/metaphotor/metaphotor/pkg/geocode"
	"github.com/metaphotor/metaphotor/pkg/logger"
	"github.com/metaphotor/metaphotor/pkg/metrics"
)

// app holds what every command shares once settings are loaded.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	geocoder *geocode.Client
	resolver *resolver.Resolver
}

func newApp(service string) (*app, error) {
	bootLog := logger.New(logger.Options{ServiceName: service, Output: os.Stderr})
	if err := godotenv.Load(); err != nil {
		bootLog.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		Output:      os.Stderr,
	})

	geo := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocoder.BaseURL),
		geocode.WithUserAgent(cfg.Geocoder.UserAgent),
		geocode.WithTimeout(cfg.Geocoder.Timeout),
		geocode.WithRate(cfg.Geocoder.Rate),
		geocode.WithCacheTTL(cfg.Geocoder.CacheTTL),
	)

	res := resolver.New(resolver.Options{
		AllowedExtensions: cfg.Media.AllowedExtensions,
		FFmpegPath:        cfg.Tools.FFmpegPath,
		FFprobePath:       cfg.Tools.FFprobePath,
		ToolTimeout:       cfg.Tools.Timeout,
		TranscodeOptions:  cfg.Tools.TranscodeOptions,
		Geocoder:          geo,
		GeocodeTimeout:    cfg.Geocoder.Timeout,
		Logger:            log,
	})

	return &app{cfg: cfg, log: log, geocoder: geo, resolver: res}, nil
}

// openCatalog connects to the database and makes sure the tables exist.
func (a *app) openCatalog(ctx context.Context) (*db.Client, *catalog.Repository, error) {
	client, err := db.New(ctx, a.cfg.DB, a.log)
	if err != nil {
		return nil, nil, err
	}
	repo := catalog.NewRepository(client.DB())
	if err := repo.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("migrating catalog: %w", err)
	}
	return client, repo, nil
}

func (a *app) newScanner(repo *catalog.Repository, m *metrics.ScanMetrics) (*scan.Scanner, error) {
	if a.cfg.Media.Folder == "" {
		return nil, fmt.Errorf("%s is required to scan", config.EnvMediaFolder)
	}
	return scan.NewScanner(scan.ScannerParams{
		Options: scan.Options{
			MediaFolder: a.cfg.Media.Folder,
			WatchFolder: a.cfg.Media.WatchFolder,
			Collect: scan.CollectOptions{
				AllowedExtensions: a.cfg.Media.AllowedExtensions,
				MinSize:           a.cfg.Media.MinFileSize,
				MaxSize:           a.cfg.Media.MaxFileSize,
			},
			Workers:      a.cfg.Scan.Workers,
			ProgressFile: a.cfg.Scan.ProgressFile,
			ErrorLog:     a.cfg.Scan.ErrorLog,
		},
		Detector: a.resolver,
		Store:    repo,
		Geocoder: a.geocoder,
		Metrics:  m,
		Logger:   a.log,
	}), nil
}
