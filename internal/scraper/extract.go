package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/domain"
)

const (
	// MinContentLength is the text length a content container needs before
	// it is preferred over the whole body.
	MinContentLength = 200
	// MaxTextLength caps the plain-text fallback.
	MaxTextLength = 10000
	// MinSelectionLength is the text length a selection needs to count.
	MinSelectionLength = 10

	readabilityCharThreshold = 100
	selectionExcerptLength   = 200
	maxAuthorLength          = 100
)

var (
	contentSelectors = []string{
		"article",
		`[role="main"]`,
		"main",
		".post-content",
		".article-content",
		".entry-content",
		".content",
		"#content",
	}

	unwantedSelectors = strings.Join([]string{
		"script", "style", "noscript", "iframe",
		"nav", "header", "footer", "aside",
		".sidebar", ".navigation", ".nav", ".menu",
		".header", ".footer", ".ads", ".ad",
		".advertisement", ".social-share", ".comments",
		".related-posts", ".recommended", ".popup",
		`[role="navigation"]`, `[role="banner"]`,
		`[role="complementary"]`, `[role="contentinfo"]`,
	}, ", ")

	authorMetaSelectors = []string{`meta[name="author"]`, `meta[property="article:author"]`}
	authorElements      = `.author, .byline, [rel="author"], .post-author`

	timeSelectors = []string{
		`meta[property="article:published_time"]`,
		`meta[name="publishdate"]`,
		`meta[name="date"]`,
		`time[datetime]`,
	}

	timeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC1123,
		time.RFC1123Z,
	}

	leadingBy = regexp.MustCompile(`(?i)^by\s+`)
)

// ParseArticle extracts readable content from a full page. Readability is
// tried first; when it finds nothing the best content container (or the
// cleaned body) is used instead.
func ParseArticle(html string, pageURL *url.URL, now time.Time) (domain.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.PageContent{}, apperrors.Wrap(apperrors.KindExtractionUnsupported, apperrors.MsgExtractionFailed, err)
	}

	page := domain.PageContent{
		URL:           pageURL.String(),
		PublishedTime: publishedTime(doc),
		ExtractedAt:   now.UTC(),
	}

	parser := readability.NewParser()
	parser.CharThresholds = readabilityCharThreshold
	parser.KeepClasses = true
	article, err := parser.Parse(strings.NewReader(html), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		page.Title = firstNonEmpty(article.Title, documentTitle(doc))
		page.Content = article.Content
		page.TextContent = article.TextContent
		page.Excerpt = firstNonEmpty(article.Excerpt, metaDescription(doc))
		page.Byline = firstNonEmpty(article.Byline, author(doc))
		page.SiteName = firstNonEmpty(article.SiteName, siteName(doc, pageURL))
	} else {
		page.Title = documentTitle(doc)
		page.Content = mainContent(doc)
		page.TextContent = cleanText(doc)
		page.Excerpt = metaDescription(doc)
		page.Byline = author(doc)
		page.SiteName = siteName(doc, pageURL)
	}
	page.Images = ExtractImageRefs(page.Content)
	return page, nil
}

// ParseSelection extracts the elements matched by selector. Selections with
// fewer than MinSelectionLength characters of text are rejected.
func ParseSelection(html string, pageURL *url.URL, selector string, now time.Time) (domain.PageContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.PageContent{}, apperrors.Wrap(apperrors.KindExtractionUnsupported, apperrors.MsgExtractionFailed, err)
	}

	sel := doc.Find(selector)
	sel.Find(unwantedSelectors).Remove()

	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, h)
		}
	})
	text := strings.TrimSpace(sel.Text())
	if utf8.RuneCountInString(text) < MinSelectionLength {
		return domain.PageContent{}, apperrors.New(apperrors.KindInvalidInput, "No text selected")
	}

	content := strings.Join(parts, "\n")
	return domain.PageContent{
		Title:         documentTitle(doc),
		URL:           pageURL.String(),
		Content:       content,
		TextContent:   text,
		Excerpt:       truncate(text, selectionExcerptLength),
		Byline:        author(doc),
		SiteName:      siteName(doc, pageURL),
		PublishedTime: publishedTime(doc),
		ExtractedAt:   now.UTC(),
		IsSelection:   true,
		Images:        ExtractImageRefs(content),
	}, nil
}

// HasSelection reports whether selector matches more than MinSelectionLength
// characters of text.
func HasSelection(html, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	text := strings.TrimSpace(doc.Find(selector).Text())
	return utf8.RuneCountInString(text) > MinSelectionLength
}

// ExtractImageRefs lists the remote images of an HTML fragment in document
// order. Inline data: images and non-http sources are skipped.
func ExtractImageRefs(html string) []domain.ImageRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var refs []domain.ImageRef
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if !strings.HasPrefix(src, "http") {
			return
		}
		refs = append(refs, domain.ImageRef{
			OriginalURL: src,
			Index:       len(refs),
			Alt:         s.AttrOr("alt", ""),
		})
	})
	return refs
}

func documentTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func metaDescription(doc *goquery.Document) string {
	return firstNonEmpty(
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[property="og:description"]`),
	)
}

func author(doc *goquery.Document) string {
	for _, sel := range authorMetaSelectors {
		if v := metaContent(doc, sel); v != "" {
			return v
		}
	}
	text := strings.TrimSpace(doc.Find(authorElements).First().Text())
	if text != "" && utf8.RuneCountInString(text) < maxAuthorLength {
		return leadingBy.ReplaceAllString(text, "")
	}
	return ""
}

func siteName(doc *goquery.Document, pageURL *url.URL) string {
	if v := metaContent(doc, `meta[property="og:site_name"]`); v != "" {
		return v
	}
	if v := metaContent(doc, `meta[name="application-name"]`); v != "" {
		return v
	}
	return strings.TrimPrefix(pageURL.Hostname(), "www.")
}

func publishedTime(doc *goquery.Document) string {
	for _, sel := range timeSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		v := strings.TrimSpace(firstNonEmpty(el.AttrOr("content", ""), el.AttrOr("datetime", "")))
		if isDate(v) {
			return v
		}
	}
	return ""
}

func isDate(v string) bool {
	if v == "" {
		return false
	}
	for _, layout := range timeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func mainContent(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 || utf8.RuneCountInString(strings.TrimSpace(el.Text())) <= MinContentLength {
			continue
		}
		el = el.Clone()
		el.Find(unwantedSelectors).Remove()
		if h, err := el.Html(); err == nil {
			return h
		}
	}
	body := doc.Find("body").Clone()
	body.Find(unwantedSelectors).Remove()
	h, _ := body.Html()
	return h
}

func cleanText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find(unwantedSelectors).Remove()
	return truncate(strings.TrimSpace(body.Text()), MaxTextLength)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
