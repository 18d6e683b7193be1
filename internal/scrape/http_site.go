package scrape

import (
	"context"
	"time"

	"github.com/jonathan/job-alert/internal/config"
	"github.com/jonathan/job-alert/internal/fetch"
	"github.com/jonathan/job-alert/internal/types"
)

// BoardScraper scrapes a public board over plain HTTP. Every configured
// board URL must fetch and parse; a failure on any page fails the whole
// scrape so the retry wrapper can take another run at it.
type BoardScraper struct {
	def  config.SiteDefinition
	opts *fetch.Options
}

// NewBoardScraper builds a scraper for an unauthenticated board.
func NewBoardScraper(def config.SiteDefinition, opts *fetch.Options) *BoardScraper {
	return &BoardScraper{def: def, opts: opts}
}

// Source returns the site identifier.
func (b *BoardScraper) Source() string {
	return b.def.Name
}

// Scrape fetches and parses all board pages for this site.
func (b *BoardScraper) Scrape(ctx context.Context) ([]types.Posting, error) {
	client := fetch.NewClient(b.opts)
	fetchedAt := time.Now().UTC()

	var posts []types.Posting
	for _, boardURL := range b.def.BoardURLs {
		result, err := client.Get(ctx, boardURL)
		if err != nil {
			return nil, err
		}
		pagePosts, err := ParseBoard(result.HTML, BoardOptions{
			BaseURL:     boardURL,
			Source:      b.def.Name,
			AllowTokens: b.def.AllowTokens,
			FetchedAt:   fetchedAt,
		})
		if err != nil {
			return nil, err
		}
		posts = append(posts, pagePosts...)
	}
	return types.DedupePostings(posts), nil
}
