package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"articlereview/internal/logging"
	"articlereview/internal/types"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.6 Safari/605.1.15"
	maxBodyBytes     = 20 << 20
	minLineRunes     = 3
)

var (
	// Elements that never carry article text.
	droppedTags = "script, style, noscript, svg, canvas, iframe"
	// Class or id fragments of page chrome.
	chromeMarkers = []string{"nav", "menu", "footer", "header", "sidebar"}
	// Lines mentioning these are site boilerplate.
	boilerplate = regexp.MustCompile(`cookie|consent|privacy|terms|subscribe|sign in|newsletter`)
)

// URLIngestor downloads a web page or a remote PDF.
type URLIngestor struct {
	client    *http.Client
	userAgent string
}

// NewURLIngestor creates an ingestor. A nil client gets a 30s timeout.
func NewURLIngestor(client *http.Client) *URLIngestor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &URLIngestor{client: client, userAgent: defaultUserAgent}
}

func (u *URLIngestor) Kind() types.InputKind { return types.InputURL }

func (u *URLIngestor) Ingest(ctx context.Context, e Entry) (*types.Document, error) {
	if err := checkKind(e, types.InputURL); err != nil {
		return nil, err
	}
	text, err := u.FetchText(ctx, e.Source.URL)
	if err != nil {
		return nil, err
	}
	doc := newDocument(e, types.InputURL, e.Source.URL, text)
	doc.IngestStats["n_chars"] = utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" {
		doc.Warn("URL content is empty.")
	}
	return doc, nil
}

// FetchText downloads rawURL and returns its readable text. PDF responses
// go through the PDF extractor; anything else is parsed as HTML.
func (u *URLIngestor) FetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", u.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: HTTP %s", rawURL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if looksLikePDF(contentType, rawURL) {
		logging.Get(logging.CategoryIngest).Debug("treating %s as PDF (%s)", rawURL, contentType)
		text, err := ExtractPDFText(body)
		if err != nil {
			return "", err
		}
		return collapseWhitespace(text), nil
	}

	decoded, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", rawURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return ExtractHTMLText(doc), nil
}

func looksLikePDF(contentType, rawURL string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	path, _, _ := strings.Cut(rawURL, "?")
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}

// ExtractHTMLText returns the visible text of doc, one text node per line.
// The <main> or <article> element is preferred over the whole body; page
// chrome, very short lines and boilerplate lines are dropped.
func ExtractHTMLText(doc *goquery.Document) string {
	doc.Find(droppedTags).Remove()

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("article").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		marker := strings.ToLower(s.AttrOr("class", "") + " " + s.AttrOr("id", ""))
		for _, m := range chromeMarkers {
			if strings.Contains(marker, m) {
				s.Remove()
				return
			}
		}
	})

	var lines []string
	for _, n := range root.Nodes {
		collectText(n, func(text string) {
			for _, line := range strings.Split(text, "\n") {
				line = strings.TrimSpace(line)
				if utf8.RuneCountInString(line) < minLineRunes {
					continue
				}
				if boilerplate.MatchString(strings.ToLower(line)) {
					continue
				}
				lines = append(lines, line)
			}
		})
	}
	return collapseWhitespace(strings.Join(lines, "\n"))
}

func collectText(n *html.Node, emit func(string)) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			emit(t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, emit)
	}
}
