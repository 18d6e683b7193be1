package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/job-alert/internal/config"
	"github.com/jonathan/job-alert/internal/session"
	"github.com/jonathan/job-alert/internal/types"
)

// browserBudget bounds one full browser scrape including a login attempt.
const browserBudget = 2 * time.Minute

// ErrAuthRequired indicates the board stayed behind a login wall after the
// automatic login attempt.
var ErrAuthRequired = errors.New("authentication required; verify site credentials or refresh the saved session")

// Selector fallbacks for the Kakao login flow. Each is tried in order; text
// expressions use XPath since the login markup shifts between deployments.
var (
	kakaoTriggerSelectors = []string{
		`a[href*='kakao']`,
		`//a[contains(., '카카오')]`,
		`//button[contains(., '카카오')]`,
		`//a[contains(., 'Kakao')]`,
		`//button[contains(., 'Kakao')]`,
	}
	kakaoIDSelectors = []string{
		`input[name='loginId']`,
		`input#loginId--1`,
		`input[name='email']`,
		`input[type='email']`,
		`input[name='id']`,
	}
	kakaoPWSelectors = []string{
		`input[name='password']`,
		`input[type='password']`,
	}
	kakaoSubmitSelectors = []string{
		`button[type='submit']`,
		`//button[contains(., '로그인')]`,
		`//button[contains(., 'Login')]`,
		`input[type='submit']`,
	}
)

// BrowserScraper renders a login-walled board in a headless browser. It
// reuses a saved session state when one exists and falls back to an
// automatic credential login, refreshing the saved state after each scrape.
type BrowserScraper struct {
	def         config.SiteDefinition
	id          string
	pw          string
	storagePath string
	userAgent   string
}

// NewBrowserScraper builds a scraper for a browser-authenticated board.
func NewBrowserScraper(def config.SiteDefinition, settings *config.Settings) *BrowserScraper {
	return &BrowserScraper{
		def:         def,
		id:          settings.HojubadaID,
		pw:          settings.HojubadaPW,
		storagePath: settings.HojubadaStoragePath,
		userAgent:   settings.UserAgent,
	}
}

// Source returns the site identifier.
func (b *BrowserScraper) Source() string {
	return b.def.Name
}

// Scrape renders the board, logging in first when the page demands it.
func (b *BrowserScraper) Scrape(ctx context.Context) ([]types.Posting, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(b.userAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, browserBudget)
	defer cancel()

	if state, err := session.Load(b.storagePath); err == nil {
		if err := seedCookies(browserCtx, state); err != nil {
			return nil, err
		}
	}

	boardURL := b.def.BoardURLs[0]
	html, currentURL, err := b.loadBoard(browserCtx, boardURL)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	posts, err := b.parse(html, boardURL, fetchedAt)
	if err != nil {
		return nil, err
	}

	if needsAuthentication(currentURL, html, len(posts)) {
		if err := b.login(browserCtx); err != nil {
			return nil, err
		}
		if html, currentURL, err = b.loadBoard(browserCtx, boardURL); err != nil {
			return nil, err
		}
		if posts, err = b.parse(html, boardURL, fetchedAt); err != nil {
			return nil, err
		}
	}

	// Refresh the saved session so the next run skips the login.
	if state, err := session.CaptureCookies(browserCtx); err == nil {
		_ = state.Save(b.storagePath)
	}

	if needsAuthentication(currentURL, html, len(posts)) {
		return nil, ErrAuthRequired
	}
	return types.DedupePostings(posts), nil
}

func (b *BrowserScraper) parse(html, boardURL string, fetchedAt time.Time) ([]types.Posting, error) {
	return ParseBoard(html, BoardOptions{
		BaseURL:     boardURL,
		Source:      b.def.Name,
		AllowTokens: b.def.AllowTokens,
		FetchedAt:   fetchedAt,
	})
}

func (b *BrowserScraper) loadBoard(browserCtx context.Context, boardURL string) (html, currentURL string, err error) {
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(boardURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&currentURL),
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to load board %s: %w", boardURL, err)
	}
	return html, currentURL, nil
}

// login drives the Kakao OAuth login: trigger the Kakao button from the
// site's login page, fill credentials, and submit.
func (b *BrowserScraper) login(browserCtx context.Context) error {
	var currentURL string
	if err := chromedp.Run(browserCtx, chromedp.Location(&currentURL)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if !strings.Contains(strings.ToLower(currentURL), "accounts.kakao.com") {
		if !tryClick(browserCtx, kakaoTriggerSelectors) {
			if err := chromedp.Run(browserCtx,
				chromedp.Navigate(b.def.LoginURL),
				chromedp.WaitReady("body"),
			); err != nil {
				return fmt.Errorf("failed to open login page: %w", err)
			}
			if !tryClick(browserCtx, kakaoTriggerSelectors) {
				return errors.New("kakao login button/link not found")
			}
		}
		if err := chromedp.Run(browserCtx, chromedp.Sleep(2*time.Second)); err != nil {
			return err
		}
	}

	if !tryFill(browserCtx, kakaoIDSelectors, b.id) {
		return errors.New("kakao id input not found")
	}
	if !tryFill(browserCtx, kakaoPWSelectors, b.pw) {
		return errors.New("kakao password input not found")
	}
	if !tryClick(browserCtx, kakaoSubmitSelectors) {
		return errors.New("kakao submit button not found")
	}

	if err := chromedp.Run(browserCtx, chromedp.Sleep(3*time.Second), chromedp.Location(&currentURL)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if strings.Contains(strings.ToLower(currentURL), "accounts.kakao.com") {
		return errors.New("kakao login did not complete (extra verification may be required)")
	}
	return nil
}

// seedCookies installs saved session cookies into the browser context.
func seedCookies(browserCtx context.Context, state *session.StorageState) error {
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range state.Cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to seed session cookies: %w", err)
	}
	return nil
}

// needsAuthentication decides whether the rendered page is a login wall. A
// page that yielded postings is always considered authenticated.
func needsAuthentication(currentURL, html string, postCount int) bool {
	if postCount > 0 {
		return false
	}
	urlLower := strings.ToLower(currentURL)
	htmlLower := strings.ToLower(html)
	return strings.Contains(urlLower, "accounts.kakao.com") ||
		strings.Contains(urlLower, "login") ||
		strings.Contains(htmlLower, "카카오") ||
		strings.Contains(htmlLower, "로그인")
}

func tryClick(browserCtx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		cctx, cancel := context.WithTimeout(browserCtx, 3*time.Second)
		err := chromedp.Run(cctx, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible))
		cancel()
		if err == nil {
			return true
		}
	}
	return false
}

func tryFill(browserCtx context.Context, selectors []string, value string) bool {
	for _, sel := range selectors {
		cctx, cancel := context.WithTimeout(browserCtx, 3*time.Second)
		err := chromedp.Run(cctx, chromedp.SetValue(sel, value, chromedp.BySearch))
		cancel()
		if err == nil {
			return true
		}
	}
	return false
}
