package main

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const searchFixtureHTML = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=abc">Go Documentation</a>
  <div class="result__snippet">Official Go documentation and guides.</div>
</div>
<div class="result">
  <a class="result__a" href="https://go.dev/blog/">The Go Blog</a>
  <div class="result__snippet">News from the Go team.</div>
</div>
<div class="result">
  <a class="result__a" href=""></a>
  <div class="result__snippet">Broken entry without title or link.</div>
</div>
<div class="result">
  <a class="result__a" href="//pkg.go.dev/std">Standard library</a>
  <div class="result__snippet">Package listing.</div>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchFixtureHTML))
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}

	results := ParseSearchResults(doc, 10)
	if len(results) != 3 {
		t.Fatalf("Parsed %d results, want 3 (broken entry skipped)", len(results))
	}

	if results[0].Title != "Go Documentation" {
		t.Errorf("Title = %q", results[0].Title)
	}
	if results[0].URL != "https://go.dev/doc/" {
		t.Errorf("Redirect not unwrapped: %q", results[0].URL)
	}
	if results[0].Snippet != "Official Go documentation and guides." {
		t.Errorf("Snippet = %q", results[0].Snippet)
	}
	if results[1].URL != "https://go.dev/blog/" {
		t.Errorf("Direct URL mangled: %q", results[1].URL)
	}
	if results[2].URL != "https://pkg.go.dev/std" {
		t.Errorf("Scheme-less URL not fixed: %q", results[2].URL)
	}
}

func TestParseSearchResultsLimit(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchFixtureHTML))
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}

	results := ParseSearchResults(doc, 2)
	if len(results) != 2 {
		t.Errorf("Parsed %d results, want limit of 2", len(results))
	}
}

func TestResolveRedirectURL(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{"uddg redirect", "//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F", "https://go.dev/"},
		{"direct url", "https://example.com/page", "https://example.com/page"},
		{"scheme-less", "//example.com/page", "https://example.com/page"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveRedirectURL(tt.href); got != tt.want {
				t.Errorf("resolveRedirectURL(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}

func TestSearchDuckDuckGo(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang testing" {
			t.Errorf("Query = %q, want golang testing", got)
		}
		if ua := r.Header.Get("User-Agent"); ua != SearchUserAgent {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(searchFixtureHTML))
	})

	origBase := SearchBaseURL
	SearchBaseURL = server.URL + "/"
	t.Cleanup(func() { SearchBaseURL = origBase })

	results, err := SearchDuckDuckGo(context.Background(), "golang testing", 5)
	if err != nil {
		t.Fatalf("SearchDuckDuckGo failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Got %d results, want 3", len(results))
	}
}

func TestFetchPageText(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><script>var x = 1;</script><style>p{}</style></head>
<body><nav>Menu</nav><header>Masthead</header>
<p>First paragraph.</p>
<p>Second paragraph.</p>
<footer>Footer text</footer></body></html>`))
	})

	text, err := FetchPageText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchPageText failed: %v", err)
	}

	if text != "First paragraph.\nSecond paragraph." {
		t.Errorf("Text = %q", text)
	}
	for _, stripped := range []string{"var x", "Menu", "Masthead", "Footer text"} {
		if strings.Contains(text, stripped) {
			t.Errorf("Non-content %q survived extraction", stripped)
		}
	}
}

func TestFetchPageTextBodyFallbackAndCap(t *testing.T) {
	long := strings.Repeat("x", PageContentLimit+500)
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><div>" + long + "</div></body></html>"))
	})

	text, err := FetchPageText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchPageText failed: %v", err)
	}
	if len(text) != PageContentLimit {
		t.Errorf("Text length = %d, want cap %d", len(text), PageContentLimit)
	}
}

func TestFetchPageTextErrorStatus(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := FetchPageText(context.Background(), server.URL); err == nil {
		t.Error("Expected error for non-200 page")
	}
}

func TestFetchSearchContextFormatting(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/" {
			// Search results page pointing back at this server for content.
			w.Write([]byte(`<html><body>
<div class="result">
  <a class="result__a" href="` + "http://" + r.Host + `/page">Result One</a>
  <div class="result__snippet">Snippet one.</div>
</div>
</body></html>`))
			return
		}
		w.Write([]byte(`<html><body><p>Page body text.</p></body></html>`))
	})

	origBase := SearchBaseURL
	SearchBaseURL = server.URL + "/"
	t.Cleanup(func() { SearchBaseURL = origBase })

	contextText, err := FetchSearchContext(context.Background(), "anything")
	if err != nil {
		t.Fatalf("FetchSearchContext failed: %v", err)
	}

	for _, fragment := range []string{"[1] Result One", "Snippet one.", "Content:\nPage body text."} {
		if !strings.Contains(contextText, fragment) {
			t.Errorf("Context missing %q:\n%s", fragment, contextText)
		}
	}
}
