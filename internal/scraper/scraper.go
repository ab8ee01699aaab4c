package scraper

import (
	"context"

	"vaultclip/internal/domain"
)

// Extractor loads a page and returns its readable content.
type Extractor interface {
	// ExtractContent returns the main article of the page.
	ExtractContent(ctx context.Context, pageURL string) (domain.PageContent, error)

	// ExtractSelection returns only the elements matched by the CSS selector.
	ExtractSelection(ctx context.Context, pageURL, selector string) (domain.PageContent, error)

	// CheckSelection reports whether selector matches enough text to clip.
	CheckSelection(ctx context.Context, pageURL, selector string) (bool, error)

	// Close releases the browser, if one was started.
	Close() error
}
