package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Bootstrap opens a real browser at loginURL so the operator can complete the
// site's login flow by hand (including any second factor), then captures the
// resulting cookies into a storage state file at outPath. waitForLogin blocks
// until the operator confirms the login finished.
func Bootstrap(ctx context.Context, loginURL, outPath string, waitForLogin func()) error {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", false),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	waitForLogin()

	state, err := CaptureCookies(browserCtx)
	if err != nil {
		return err
	}
	return state.Save(outPath)
}

// CaptureCookies reads all cookies from a live chromedp browser context.
func CaptureCookies(browserCtx context.Context) (*StorageState, error) {
	captureCtx, cancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer cancel()

	var state *StorageState
	err := chromedp.Run(captureCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		state = FromNetworkCookies(cookies)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture session cookies: %w", err)
	}
	return state, nil
}
