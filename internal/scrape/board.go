// Package scrape extracts job postings from community job boards.
package scrape

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/job-alert/internal/types"
)

// DefaultPostLimit caps how many postings one board page can contribute.
const DefaultPostLimit = 80

// postQueryKeys are the query parameters community board engines use for the
// post identifier, in priority order.
var postQueryKeys = []string{"wr_id", "document_srl", "no", "idx", "article_no", "uid"}

// navLinkTexts are anchor texts that are navigation, not postings.
var navLinkTexts = map[string]struct{}{
	"login":    {},
	"logout":   {},
	"register": {},
	"회원가입":     {},
	"로그인":      {},
	"공지":       {},
	"목록":       {},
	"이전":       {},
	"다음":       {},
}

var trailingNumberPath = regexp.MustCompile(`/(\d{3,})/?$`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// BoardOptions configures one board-page parse.
type BoardOptions struct {
	BaseURL     string
	Source      string
	AllowTokens []string
	Limit       int
	FetchedAt   time.Time
}

// InferPostID derives a stable post identifier from a post URL: a known query
// parameter when present, a trailing numeric path segment otherwise, and a
// truncated URL hash as the last resort.
func InferPostID(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		for _, key := range postQueryKeys {
			if v := strings.TrimSpace(query.Get(key)); v != "" {
				return key + ":" + v
			}
		}
		if m := trailingNumberPath.FindStringSubmatch(parsed.Path); m != nil {
			return "path:" + m[1]
		}
	}
	digest := sha1.Sum([]byte(rawURL))
	return "hash:" + hex.EncodeToString(digest[:])[:16]
}

// ParseBoard extracts postings from one board listing page by walking its
// anchors. Navigation links, board-index links, and URLs missing every allow
// token are skipped; duplicates within the page are collapsed.
func ParseBoard(html string, opts BoardOptions) ([]types.Posting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse board HTML: %w", err)
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid board base URL %s: %w", opts.BaseURL, err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPostLimit
	}
	fetchedAt := opts.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	var posts []types.Posting
	seenKeys := make(map[types.PostKey]struct{})
	seenURLs := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		title := cleanSpaces(anchor.Text())
		if len([]rune(title)) < 2 {
			return true
		}
		if _, nav := navLinkTexts[strings.ToLower(title)]; nav {
			return true
		}

		rawHref, _ := anchor.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(rawHref))
		if err != nil {
			return true
		}
		href := base.ResolveReference(ref).String()
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return true
		}
		if len(opts.AllowTokens) > 0 && !containsAny(href, opts.AllowTokens) {
			return true
		}
		if isProbableIndexLink(href) {
			return true
		}
		if _, dup := seenURLs[href]; dup {
			return true
		}

		key := types.PostKey{Source: opts.Source, SourcePostID: InferPostID(href)}
		if _, dup := seenKeys[key]; dup {
			return true
		}

		snippet := extractSnippet(anchor)
		if snippet == title {
			snippet = ""
		}

		posts = append(posts, types.Posting{
			Source:         opts.Source,
			SourcePostID:   key.SourcePostID,
			Title:          title,
			URL:            href,
			ContentSnippet: snippet,
			FetchedAt:      fetchedAt,
		})
		seenKeys[key] = struct{}{}
		seenURLs[href] = struct{}{}

		return len(posts) < limit
	})

	return posts, nil
}

// isProbableIndexLink filters links that point at board listing pages rather
// than individual posts.
func isProbableIndexLink(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	query := parsed.Query()
	for _, key := range postQueryKeys {
		if query.Has(key) {
			return false
		}
	}
	if query.Has("page") || query.Has("findex") {
		return true
	}
	return strings.HasSuffix(parsed.Path, "/")
}

// extractSnippet pulls surrounding row text as a short content preview.
func extractSnippet(anchor *goquery.Selection) string {
	container := anchor.Closest("tr, li, div, article")
	if container.Length() == 0 {
		return ""
	}
	text := cleanSpaces(container.Text())
	runes := []rune(text)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return text
}

func cleanSpaces(value string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(value, " "))
}

func containsAny(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}
