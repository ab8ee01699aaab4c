package domain

import "time"

// PageContent is the readable content extracted from a single page.
type PageContent struct {
	// Title is the article title, possibly overridden by the user before save.
	Title string `json:"title"`

	// URL of the page the content was extracted from.
	URL string `json:"url"`

	// Content is the cleaned article HTML.
	Content string `json:"content"`

	// TextContent is the plain-text rendition of Content.
	TextContent string `json:"textContent"`

	Excerpt       string `json:"excerpt,omitempty"`
	Byline        string `json:"byline,omitempty"`
	SiteName      string `json:"siteName,omitempty"`
	PublishedTime string `json:"publishedTime,omitempty"`

	// ExtractedAt is when the extraction ran.
	ExtractedAt time.Time `json:"extractedAt"`

	// IsSelection marks content limited to a selected fragment of the page.
	IsSelection bool `json:"isSelection,omitempty"`

	// Images lists the remote images found in Content, in document order.
	Images []ImageRef `json:"images,omitempty"`

	// ImageKey identifies the batch of encoded images cached for this page.
	ImageKey string `json:"imageKey,omitempty"`
}

// WithTitle returns a copy of p carrying a user-supplied title.
// A blank title keeps the extracted one.
func (p PageContent) WithTitle(title string) PageContent {
	if title != "" {
		p.Title = title
	}
	return p
}

// ImageRef references an image discovered during extraction.
type ImageRef struct {
	OriginalURL string `json:"originalSrc"`
	Index       int    `json:"index"`
	Alt         string `json:"alt,omitempty"`

	// Inline holds already-downloaded image bytes, if any.
	Inline     []byte `json:"inline,omitempty"`
	InlineType string `json:"inlineType,omitempty"`
}

func (r ImageRef) HasInline() bool { return len(r.Inline) > 0 }

// Document is a rendered note ready to be persisted.
type Document struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}
