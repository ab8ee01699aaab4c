package scraper

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"vaultclip/internal/images"
)

// CookieJar lists every cookie held by a browser.
type CookieJar func(ctx context.Context) ([]*proto.NetworkCookie, error)

// BrowserCookies exposes a browser's cookie jar as an images.CookieSource.
// Unlike page scripts, the jar sees the HttpOnly flag.
type BrowserCookies struct {
	jar CookieJar
}

func NewBrowserCookies(jar CookieJar) *BrowserCookies {
	return &BrowserCookies{jar: jar}
}

// ByDomain returns cookies set on domain or any of its subdomains.
func (b *BrowserCookies) ByDomain(ctx context.Context, domain string) ([]images.Cookie, error) {
	all, err := b.jar(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.TrimPrefix(strings.ToLower(domain), ".")
	var out []images.Cookie
	for _, c := range all {
		if withinDomain(c.Domain, want) {
			out = append(out, toCookie(c))
		}
	}
	return out, nil
}

// ByURL returns cookies that a request to rawURL would carry.
func (b *BrowserCookies) ByURL(ctx context.Context, rawURL string) ([]images.Cookie, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	all, err := b.jar(ctx)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(u.Hostname())
	var out []images.Cookie
	for _, c := range all {
		if !appliesTo(c, host, u.EscapedPath()) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		out = append(out, toCookie(c))
	}
	return out, nil
}

// withinDomain reports whether cookieDomain is domain or one of its
// subdomains.
func withinDomain(cookieDomain, domain string) bool {
	cd := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	return cd == domain || strings.HasSuffix(cd, "."+domain)
}

func appliesTo(c *proto.NetworkCookie, host, path string) bool {
	cd := strings.ToLower(c.Domain)
	hostOnly := !strings.HasPrefix(cd, ".")
	cd = strings.TrimPrefix(cd, ".")
	switch {
	case host == cd:
	case !hostOnly && strings.HasSuffix(host, "."+cd):
	default:
		return false
	}
	if path == "" {
		path = "/"
	}
	return c.Path == "" || strings.HasPrefix(path, c.Path)
}

func toCookie(c *proto.NetworkCookie) images.Cookie {
	return images.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		HTTPOnly: c.HTTPOnly,
	}
}
