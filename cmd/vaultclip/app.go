package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"vaultclip/internal/clipper"
	"vaultclip/internal/config"
	"vaultclip/internal/fetch"
	"vaultclip/internal/images"
	"vaultclip/internal/messaging"
	"vaultclip/internal/note"
	"vaultclip/internal/scraper"
	"vaultclip/internal/storage"
	"vaultclip/internal/vault"
)

const purgeInterval = time.Hour

// app is the wired set of components shared by every command.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	bus     *messaging.Bus
	scraper *scraper.RodScraper
	cache   *storage.BadgerImageCache
	vault   *vault.Client
	service *clipper.Service
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// loadApp reads the configuration and wires the background and page contexts
// onto a bus that lives as long as ctx.
func loadApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	log := newLogger(cfg.Log.Level)
	log.WithFields(logrus.Fields{
		"api_url":       cfg.Vault.APIURL,
		"target_folder": cfg.Vault.TargetFolder,
		"badgerdb_path": cfg.Storage.BadgerDBPath,
	}).Info("Configuration loaded successfully")

	a := &app{cfg: cfg, log: log, bus: messaging.NewBus(log)}

	a.scraper = scraper.NewRodScraper(scraper.Options{
		Bin:         cfg.Browser.Bin,
		Headless:    cfg.Browser.Headless,
		PageTimeout: cfg.Browser.PageTimeout,
	}, log)

	vaultFetch := fetch.NewClient(vault.NewHTTPClient(cfg.Vault.SkipVerify()), log)
	a.vault = vault.NewClient(vaultFetch, log)

	cookies := images.NewCookieResolver(scraper.NewBrowserCookies(a.scraper.Cookies), log)
	pipeline := images.NewPipeline(fetch.NewClient(nil, log), a.vault, cookies, cfg.Images.Concurrency, log)

	deps := clipper.Deps{
		Bus:       a.bus,
		Vault:     a.vault,
		Images:    pipeline,
		Converter: note.NewConverter(),
		Settings:  cfg.Vault.Settings,
	}

	// The cache is single-writer; a second process keeps working without it.
	cache, err := storage.NewBadgerImageCache(cfg.Storage.BadgerDBPath, log)
	if err != nil {
		log.WithError(err).Warn("Image cache unavailable, continuing without it")
	} else {
		a.cache = cache
		deps.Cache = cache
	}

	a.service = clipper.NewService(deps, log)
	a.service.Register(ctx)
	clipper.RegisterPage(ctx, a.bus, a.scraper, log)

	return a, nil
}

// requireCache fails commands that only make sense with the image cache.
func (a *app) requireCache() error {
	if a.cache == nil {
		return fmt.Errorf("image cache at %s could not be opened", a.cfg.Storage.BadgerDBPath)
	}
	return nil
}

// purgeLoop drops stale cached images until ctx is cancelled.
func (a *app) purgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.cache.PurgeOlderThan(ctx, storage.DefaultMaxAge)
			if err != nil {
				a.log.WithError(err).Warn("Image cache purge failed")
				continue
			}
			if n > 0 {
				a.log.WithField("deleted", n).Info("Purged stale cached images")
			}
		}
	}
}

func (a *app) Close() {
	if err := a.scraper.Close(); err != nil {
		a.log.WithError(err).Error("Error closing browser")
	}
	if a.cache != nil {
		a.log.Info("Closing database...")
		if err := a.cache.Close(); err != nil {
			a.log.WithError(err).Error("Error closing database")
		}
	}
}
