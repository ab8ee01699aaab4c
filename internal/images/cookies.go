package images

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Cookie is a browser cookie as seen by the cookie jar.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	HTTPOnly bool
}

// CookieSource enumerates cookies held by a browser profile.
type CookieSource interface {
	ByDomain(ctx context.Context, domain string) ([]Cookie, error)
	ByURL(ctx context.Context, rawURL string) ([]Cookie, error)
}

// LookupStrategy fetches one group of candidate cookies for an image request.
// page is nil when the referring page is unknown.
type LookupStrategy func(ctx context.Context, src CookieSource, image, page *url.URL) ([]Cookie, error)

// DefaultStrategies are evaluated in order; later groups override earlier
// ones for the same cookie name.
var DefaultStrategies = []LookupStrategy{
	ImageDomain,
	PageDomain,
	ParentDomain,
	PageURL,
}

func ImageDomain(ctx context.Context, src CookieSource, image, _ *url.URL) ([]Cookie, error) {
	return src.ByDomain(ctx, image.Hostname())
}

func PageDomain(ctx context.Context, src CookieSource, image, page *url.URL) ([]Cookie, error) {
	if page == nil || page.Hostname() == "" || page.Hostname() == image.Hostname() {
		return nil, nil
	}
	return src.ByDomain(ctx, page.Hostname())
}

// ParentDomain looks up ".example.com" for "cdn.example.com".
func ParentDomain(ctx context.Context, src CookieSource, image, _ *url.URL) ([]Cookie, error) {
	parent, ok := parentDomain(image.Hostname())
	if !ok {
		return nil, nil
	}
	return src.ByDomain(ctx, parent)
}

func PageURL(ctx context.Context, src CookieSource, _, page *url.URL) ([]Cookie, error) {
	if page == nil {
		return nil, nil
	}
	return src.ByURL(ctx, page.String())
}

func parentDomain(host string) (string, bool) {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return "", false
	}
	return "." + strings.Join(labels[len(labels)-2:], "."), true
}

// CookieResolver rebuilds a Cookie header for cross-origin image downloads.
type CookieResolver struct {
	src        CookieSource
	strategies []LookupStrategy
	log        logrus.FieldLogger
}

// NewCookieResolver uses DefaultStrategies when none are given. A nil source
// yields empty headers.
func NewCookieResolver(src CookieSource, logger logrus.FieldLogger, strategies ...LookupStrategy) *CookieResolver {
	if src == nil {
		src = StaticCookies{}
	}
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &CookieResolver{
		src:        src,
		strategies: strategies,
		log:        logger.WithField("component", "cookie_resolver"),
	}
}

// Header returns "name=value; name2=value2" for imageURL. Lookup failures are
// logged and skipped; HttpOnly cookies are never included.
func (r *CookieResolver) Header(ctx context.Context, imageURL, pageURL string) string {
	image, err := url.Parse(imageURL)
	if err != nil || image.Hostname() == "" {
		return ""
	}
	var page *url.URL
	if p, err := url.Parse(pageURL); err == nil && p.Hostname() != "" {
		page = p
	}

	var order []string
	values := map[string]string{}
	for _, lookup := range r.strategies {
		cookies, err := lookup(ctx, r.src, image, page)
		if err != nil {
			r.log.WithError(err).WithField("image_url", imageURL).Debug("Cookie lookup failed")
			continue
		}
		for _, c := range cookies {
			if c.HTTPOnly || c.Name == "" {
				continue
			}
			if _, seen := values[c.Name]; !seen {
				order = append(order, c.Name)
			}
			values[c.Name] = c.Value
		}
	}

	pairs := make([]string, 0, len(order))
	for _, name := range order {
		pairs = append(pairs, name+"="+values[name])
	}
	return strings.Join(pairs, "; ")
}

// StaticCookies is a fixed cookie jar keyed by domain or URL.
type StaticCookies struct {
	Domains map[string][]Cookie
	URLs    map[string][]Cookie
}

func (s StaticCookies) ByDomain(_ context.Context, domain string) ([]Cookie, error) {
	return s.Domains[domain], nil
}

func (s StaticCookies) ByURL(_ context.Context, rawURL string) ([]Cookie, error) {
	return s.URLs[rawURL], nil
}
