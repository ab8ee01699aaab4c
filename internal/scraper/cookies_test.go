package scraper

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultclip/internal/images"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func staticJar(cookies ...*proto.NetworkCookie) CookieJar {
	return func(context.Context) ([]*proto.NetworkCookie, error) { return cookies, nil }
}

func TestBrowserCookies_ByDomain(t *testing.T) {
	src := NewBrowserCookies(staticJar(
		&proto.NetworkCookie{Name: "a", Value: "1", Domain: ".example.com"},
		&proto.NetworkCookie{Name: "b", Value: "2", Domain: "cdn.example.com", HTTPOnly: true},
		&proto.NetworkCookie{Name: "c", Value: "3", Domain: "other.org"},
	))

	got, err := src.ByDomain(context.Background(), ".example.com")
	require.NoError(t, err)
	assert.Equal(t, []images.Cookie{
		{Name: "a", Value: "1", Domain: ".example.com"},
		{Name: "b", Value: "2", Domain: "cdn.example.com", HTTPOnly: true},
	}, got)

	got, err = src.ByDomain(context.Background(), "cdn.example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
}

func TestBrowserCookies_ByURL(t *testing.T) {
	src := NewBrowserCookies(staticJar(
		&proto.NetworkCookie{Name: "parent", Value: "1", Domain: ".example.com", Path: "/"},
		&proto.NetworkCookie{Name: "hostonly", Value: "2", Domain: "example.com", Path: "/"},
		&proto.NetworkCookie{Name: "scoped", Value: "3", Domain: "blog.example.com", Path: "/admin"},
		&proto.NetworkCookie{Name: "secure", Value: "4", Domain: "blog.example.com", Path: "/", Secure: true},
	))

	got, err := src.ByURL(context.Background(), "http://blog.example.com/posts/1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "parent", got[0].Name)

	got, err = src.ByURL(context.Background(), "https://blog.example.com/admin/x")
	require.NoError(t, err)
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"parent", "scoped", "secure"}, names)
}

func TestBrowserCookies_JarError(t *testing.T) {
	src := NewBrowserCookies(func(context.Context) ([]*proto.NetworkCookie, error) {
		return nil, errors.New("browser gone")
	})
	_, err := src.ByDomain(context.Background(), "example.com")
	assert.Error(t, err)

	resolver := images.NewCookieResolver(src, testLogger())
	assert.Empty(t, resolver.Header(context.Background(), "https://cdn.example.com/a.png", ""))
}
