package scrape

import (
	"context"
	"fmt"

	"github.com/jonathan/job-alert/internal/config"
	"github.com/jonathan/job-alert/internal/fetch"
	"github.com/jonathan/job-alert/internal/types"
)

// Scraper produces the current postings of one site. Implementations return
// either postings (possibly none) or an error, never both; the pipeline's
// retry wrapper and failure accounting sit on top of this boundary.
type Scraper interface {
	Source() string
	Scrape(ctx context.Context) ([]types.Posting, error)
}

// ForSites builds one scraper per site definition.
func ForSites(defs []config.SiteDefinition, settings *config.Settings) ([]Scraper, error) {
	fetchOpts := &fetch.Options{
		Timeout:   settings.RequestTimeout,
		UserAgent: settings.UserAgent,
	}

	scrapers := make([]Scraper, 0, len(defs))
	for _, def := range defs {
		switch def.Auth {
		case "none":
			scrapers = append(scrapers, NewBoardScraper(def, fetchOpts))
		case "browser":
			scrapers = append(scrapers, NewBrowserScraper(def, settings))
		default:
			return nil, fmt.Errorf("site %s: unsupported auth mode %q", def.Name, def.Auth)
		}
	}
	return scrapers, nil
}
