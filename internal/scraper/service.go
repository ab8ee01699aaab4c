package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/domain"
)

// DefaultPageTimeout bounds loading a single page.
const DefaultPageTimeout = 30 * time.Second

// Options configure the headless browser.
type Options struct {
	// Bin is the browser executable. Empty means auto-detect.
	Bin         string
	Headless    bool
	PageTimeout time.Duration
}

// RodScraper implements Extractor with a persistent headless browser that is
// launched on first use.
type RodScraper struct {
	log  logrus.FieldLogger
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodScraper creates a new scraper service instance.
func NewRodScraper(opts Options, logger logrus.FieldLogger) *RodScraper {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	return &RodScraper{
		log:  logger.WithField("component", "scraper"),
		opts: opts,
		now:  time.Now,
	}
}

// connect returns the shared browser, launching it if needed.
func (s *RodScraper) connect() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return s.browser, nil
	}

	path := s.opts.Bin
	if path == "" {
		var exists bool
		path, exists = launcher.LookPath()
		if !exists {
			s.log.Error("Cannot find browser executable for rod")
			return nil, errors.New("rod browser dependency not found")
		}
	}
	u, err := launcher.New().Bin(path).Headless(s.opts.Headless).Launch()
	if err != nil {
		s.log.WithError(err).Error("Failed to launch browser")
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		s.log.WithError(err).Error("Failed to connect to rod browser")
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	s.log.Info("Persistent rod browser instance created")
	s.browser = browser
	return browser, nil
}

// Close shuts the browser down.
func (s *RodScraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	s.log.Info("Closing persistent rod browser instance")
	err := s.browser.Close()
	s.browser = nil
	return err
}

// loadHTML navigates to pageURL and returns the rendered document.
func (s *RodScraper) loadHTML(ctx context.Context, pageURL string) (string, error) {
	log := s.log.WithField("url", pageURL)

	browser, err := s.connect()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindExtractionUnsupported, apperrors.MsgExtractionFailed, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod page")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, s.opts.PageTimeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Page load timed out")
			return "", apperrors.Wrap(apperrors.KindTransportTimeout, apperrors.MsgTimeout, pageCtx.Err())
		}
		log.WithError(err).Error("Failed to wait for page load")
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	log.WithField("bytes", len(html)).Debug("Page loaded")
	return html, nil
}

// parsePageURL accepts only http(s) pages; browser-internal pages cannot be
// clipped.
func parsePageURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperrors.New(apperrors.KindExtractionUnsupported, apperrors.MsgPageNotSupported)
	}
	return u, nil
}

func (s *RodScraper) ExtractContent(ctx context.Context, pageURL string) (domain.PageContent, error) {
	u, err := parsePageURL(pageURL)
	if err != nil {
		return domain.PageContent{}, err
	}
	html, err := s.loadHTML(ctx, u.String())
	if err != nil {
		return domain.PageContent{}, err
	}
	page, err := ParseArticle(html, u, s.now())
	if err != nil {
		return domain.PageContent{}, err
	}
	s.log.WithFields(logrus.Fields{
		"url":    pageURL,
		"title":  page.Title,
		"images": len(page.Images),
	}).Info("Content extracted")
	return page, nil
}

func (s *RodScraper) ExtractSelection(ctx context.Context, pageURL, selector string) (domain.PageContent, error) {
	u, err := parsePageURL(pageURL)
	if err != nil {
		return domain.PageContent{}, err
	}
	html, err := s.loadHTML(ctx, u.String())
	if err != nil {
		return domain.PageContent{}, err
	}
	return ParseSelection(html, u, selector, s.now())
}

func (s *RodScraper) CheckSelection(ctx context.Context, pageURL, selector string) (bool, error) {
	u, err := parsePageURL(pageURL)
	if err != nil {
		return false, err
	}
	html, err := s.loadHTML(ctx, u.String())
	if err != nil {
		return false, err
	}
	return HasSelection(html, selector), nil
}

// Cookies returns every cookie in the browser's jar.
func (s *RodScraper) Cookies(_ context.Context) ([]*proto.NetworkCookie, error) {
	browser, err := s.connect()
	if err != nil {
		return nil, err
	}
	return browser.GetCookies()
}
