package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// SearchUserAgent identifies search requests.
	SearchUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

	// PageContentLimit caps extracted full-page text per result.
	PageContentLimit = 4000
)

// SearchBaseURL is the DuckDuckGo HTML endpoint (a variable so tests can
// point it at a mock server).
var SearchBaseURL = "https://html.duckduckgo.com/html/"

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"`
}

// FetchSearchContext runs a web search for the query and formats the
// results into a single context string suitable for prompt inclusion. The
// first few results also get their full page content extracted. The engine
// itself never calls this; it is handed the resulting string.
func FetchSearchContext(ctx context.Context, query string) (string, error) {
	results, err := SearchDuckDuckGo(ctx, query, SearchResultLimit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	for i := range results {
		if i >= SearchContentResults {
			break
		}
		content, err := FetchPageText(ctx, results[i].URL)
		if err != nil {
			log.Printf("Failed to fetch content for %s: %v", results[i].URL, err)
			continue
		}
		results[i].Content = content
	}

	var b strings.Builder
	for i, result := range results {
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n", i+1, result.Title, result.URL, result.Snippet)
		if result.Content != "" {
			fmt.Fprintf(&b, "Content:\n%s\n", result.Content)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// SearchDuckDuckGo fetches and parses the DuckDuckGo HTML results page.
func SearchDuckDuckGo(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	endpoint := SearchBaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", SearchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	client := &http.Client{Timeout: SearchFetchTimeout}

	// One retry on transient failure, like the page fetcher.
	var resp *http.Response
	maxRetries := 2
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = client.Do(req)
		if err == nil {
			break
		}
		if attempt < maxRetries-1 {
			log.Printf("Search attempt %d failed, retrying in 2s: %v", attempt+1, err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("search request failed after %d attempts: %w", maxRetries, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search HTML: %w", err)
	}

	return ParseSearchResults(doc, maxResults), nil
}

// ParseSearchResults extracts result entries from a DuckDuckGo HTML page.
func ParseSearchResults(doc *goquery.Document, maxResults int) []SearchResult {
	var results []SearchResult

	doc.Find(".result").Each(func(i int, s *goquery.Selection) {
		if len(results) >= maxResults {
			return
		}

		titleLink := s.Find(".result__a").First()
		if titleLink.Length() == 0 {
			return
		}
		title := strings.TrimSpace(titleLink.Text())
		href, _ := titleLink.Attr("href")
		resultURL := resolveRedirectURL(href)
		if title == "" || resultURL == "" {
			return
		}

		snippet := strings.TrimSpace(s.Find(".result__snippet").First().Text())

		results = append(results, SearchResult{
			Title:   title,
			URL:     resultURL,
			Snippet: snippet,
		})
	})

	return results
}

// resolveRedirectURL unwraps DuckDuckGo's redirect links, which carry the
// real destination in a uddg query parameter.
func resolveRedirectURL(href string) string {
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	if parsed.Scheme == "" {
		return "https:" + href
	}
	return href
}

// FetchPageText fetches a page and extracts its readable text: paragraph
// content with scripts, styles and navigation stripped, capped at
// PageContentLimit characters.
func FetchPageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", SearchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	client := &http.Client{Timeout: SearchFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	doc.Find("script, style, nav, header, footer, aside").Remove()

	var b strings.Builder
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	})

	text := b.String()
	if text == "" {
		// Pages without paragraph markup: fall back to body text.
		text = strings.TrimSpace(doc.Find("body").Text())
	}
	if len(text) > PageContentLimit {
		text = text[:PageContentLimit]
	}
	return text, nil
}
