package main

import (
	"context"
	"log/slog"

	"github.com/jonathan/job-alert/internal/config"
	"github.com/jonathan/job-alert/internal/keywords"
	"github.com/jonathan/job-alert/internal/logging"
	"github.com/jonathan/job-alert/internal/notify"
	"github.com/jonathan/job-alert/internal/pipeline"
	"github.com/jonathan/job-alert/internal/scrape"
	"github.com/jonathan/job-alert/internal/session"
	"github.com/jonathan/job-alert/internal/store"
)

// app bundles the wired-up collaborators shared by the run-like commands.
type app struct {
	settings *config.Settings
	sites    []config.SiteDefinition
	scrapers []scrape.Scraper
	filter   *keywords.Filter
	store    *store.Store
	notifier *notify.Slack
	log      *slog.Logger
}

// loadSettings reads and validates settings from the environment.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// newApp wires every collaborator a pipeline run needs. openStore is false
// for commands that must not touch the database.
func newApp(ctx context.Context, openStore bool) (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	log := logging.New(settings.LogLevel, settings.LogFormat)

	filter, err := settings.KeywordFilter()
	if err != nil {
		return nil, err
	}

	// A stale or malformed saved session is non-fatal; the browser scraper
	// falls back to a credential login.
	if _, err := session.Ensure(settings.HojubadaStorageStateB64, settings.HojubadaStoragePath); err != nil {
		log.Warn("failed to materialize saved session, falling back to credential login", "error", err)
	}

	sites, err := config.LoadSites(settings.SitesConfigPath)
	if err != nil {
		return nil, err
	}
	scrapers, err := scrape.ForSites(sites, settings)
	if err != nil {
		return nil, err
	}

	a := &app{
		settings: settings,
		sites:    sites,
		scrapers: scrapers,
		filter:   filter,
		notifier: notify.NewSlack(settings.SlackWebhookURL, settings.RequestTimeout),
		log:      log,
	}
	if openStore {
		if a.store, err = store.Open(ctx, settings.DatabaseURL); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) newPipeline() *pipeline.Pipeline {
	return pipeline.New(
		pipeline.Config{
			RetryAttempts:  a.settings.SiteRetryAttempts,
			RetryDelay:     a.settings.SiteRetryDelay,
			AlertThreshold: a.settings.ErrorAlertThreshold,
			TZ:             a.settings.TZ,
		},
		a.scrapers, a.store, a.notifier, a.filter, a.log,
	)
}

func (a *app) sources() []string {
	names := make([]string, len(a.sites))
	for i, site := range a.sites {
		names[i] = site.Name
	}
	return names
}
