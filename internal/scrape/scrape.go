package scrape

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/ragstack/ragserve/provider"
)

// Scraper turns a link set into one combined, summarized text blob.
// Results are cached by link-set fingerprint so repeating a request with
// an unchanged link set never re-fetches or re-summarizes.
type Scraper struct {
	Fetcher      Fetcher
	Provider     provider.Provider
	SummaryModel string
	Cache        *Cache
	DumpDir      string
	MaxChars     int
	Logger       *log.Logger
}

// Run scrapes and summarizes every link, serving from cache when the
// fingerprint matches. A single failing link contributes an error block
// to the combined text rather than failing the whole set; the cache is
// written all-or-nothing after every link has been processed.
func (s *Scraper) Run(ctx context.Context, links []string) (string, error) {
	if len(links) == 0 {
		return "", nil
	}
	fp := Fingerprint(links)
	if s.Cache != nil {
		if text, ok, err := s.Cache.Lookup(fp); err != nil {
			return "", err
		} else if ok {
			s.logf("link set unchanged, serving %d link(s) from cache", len(links))
			return text, nil
		}
	}

	parts := make([]string, 0, len(links))
	for _, link := range links {
		block, err := s.scrapeOne(ctx, link)
		if err != nil {
			s.logf("scrape failed for %s: %v", link, err)
			block = fmt.Sprintf("\n\n--- Scraped Content from: %s ---\nError: %v\n", link, err)
		}
		parts = append(parts, block)
	}
	combined := strings.Join(parts, "\n")

	if s.Cache != nil {
		if err := s.Cache.Store(fp, combined); err != nil {
			return "", err
		}
	}
	return combined, nil
}

func (s *Scraper) scrapeOne(ctx context.Context, link string) (string, error) {
	s.logf("scraping %s", link)
	html, err := s.Fetcher.Fetch(ctx, link)
	if err != nil {
		return "", err
	}
	s.dump(link, html)

	pageURL, err := url.Parse(link)
	if err != nil {
		pageURL = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", link, err)
	}
	content := strings.TrimSpace(article.TextContent)
	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = 20000
	}
	if len(content) > maxChars {
		content = content[:maxChars]
	}

	tables, err := s.Provider.ChatCompletion(ctx, s.SummaryModel, []provider.Message{
		{Role: provider.RoleUser, Content: tablePrompt(content)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize tables for %s: %w", link, err)
	}
	faqs, err := s.Provider.ChatCompletion(ctx, s.SummaryModel, []provider.Message{
		{Role: provider.RoleUser, Content: faqPrompt(content)},
	})
	if err != nil {
		return "", fmt.Errorf("summarize faqs for %s: %w", link, err)
	}

	preview := content
	if len(preview) > 1000 {
		preview = preview[:1000]
	}
	return fmt.Sprintf(
		"\n\n--- Scraped Content from: %s ---\n"+
			"\nContent Preview (first 1000 chars):\n%s...\n"+
			"\nDetailed Table Breakdown:\n%s\n"+
			"\nFAQs:\n%s\n"+
			"\n--- END OF PAGE ---\n",
		link, preview, tables, faqs,
	), nil
}

// dump writes the raw fetched HTML to the dump directory, keyed by the
// link hash, for debugging. Failures here are non-fatal.
func (s *Scraper) dump(link, html string) {
	if s.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(s.DumpDir, 0o755); err != nil {
		s.logf("dump dir: %v", err)
		return
	}
	sum := md5.Sum([]byte(link))
	name := filepath.Join(s.DumpDir, "structured_"+hex.EncodeToString(sum[:])+".html")
	if err := os.WriteFile(name, []byte(html), 0o644); err != nil {
		s.logf("dump %s: %v", link, err)
	}
}

func (s *Scraper) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func tablePrompt(content string) string {
	return "You are analyzing a web page that may contain one or more data tables. " +
		"For EACH table in the content below:\n" +
		"- Mention the table's heading/title or any label that identifies it\n" +
		"- Interpret all rows and columns precisely and explain what each column means\n" +
		"- For each row, summarize the figures with a concrete sentence\n" +
		"- Highlight the most notable value in the table and its corresponding row\n" +
		"- Do NOT compare across tables; explain each independently\n" +
		"- If applicable, explain eligibility or conditions mentioned near the table\n\n" +
		"Here is the content:\n\n" + content
}

func faqPrompt(content string) string {
	return "From the content below, extract up to 20 Frequently Asked Questions (FAQs). " +
		"Include both questions found in the content and logical questions a user might ask. Format:\n" +
		"Q: <question>\nA: <answer>\n\n" +
		"Content:\n\n" + content
}
