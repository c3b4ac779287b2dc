package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher retrieves the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (string, error)
}

// BrowserFetcher renders the page with headless Chrome so script-driven
// content (rate tables and the like) is present in the HTML.
type BrowserFetcher struct {
	Timeout time.Duration
}

func (f BrowserFetcher) Fetch(ctx context.Context, link string) (string, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("browser fetch %s: %w", link, err)
	}
	return html, nil
}

// HTTPFetcher is the plain-GET fallback when the browser path fails.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, link string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: %s", link, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", link, err)
	}
	return string(body), nil
}

// FallbackFetcher tries the primary fetcher and falls back to the
// secondary on any failure; it fails only when both do.
type FallbackFetcher struct {
	Primary   Fetcher
	Secondary Fetcher
}

func (f FallbackFetcher) Fetch(ctx context.Context, link string) (string, error) {
	html, err := f.Primary.Fetch(ctx, link)
	if err == nil {
		return html, nil
	}
	html, err2 := f.Secondary.Fetch(ctx, link)
	if err2 != nil {
		return "", fmt.Errorf("both fetchers failed for %s: %v; fallback: %w", link, err, err2)
	}
	return html, nil
}
