// Package types defines the shared data structures for the job-alert pipeline.
package types

import "time"

// Posting is a single scraped job listing. Postings are created fresh on each
// scrape and never mutated; a posting is persisted only once it has been
// included in a sent notification.
type Posting struct {
	Source         string    `json:"source"`
	SourcePostID   string    `json:"source_post_id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	PostedAtRaw    string    `json:"posted_at_raw,omitempty"` // site-local format, not normalized
	ContentSnippet string    `json:"content_snippet"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// PostKey is the stable identity of a posting across runs. It is the dedupe
// key for the notified-set.
type PostKey struct {
	Source       string
	SourcePostID string
}

// Key returns the posting's dedupe key.
func (p Posting) Key() PostKey {
	return PostKey{Source: p.Source, SourcePostID: p.SourcePostID}
}

// DedupePostings drops postings whose key was already seen earlier in the
// slice, preserving the order of first occurrence.
func DedupePostings(postings []Posting) []Posting {
	seen := make(map[PostKey]struct{}, len(postings))
	out := make([]Posting, 0, len(postings))
	for _, p := range postings {
		key := p.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
