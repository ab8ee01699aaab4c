package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/fetch"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeFetcher struct {
	mu       sync.Mutex
	handler  func(req fetch.Request) (*fetch.Response, error)
	requests []fetch.Request
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeFetcher) Do(_ context.Context, req fetch.Request, _ fetch.Options) (*fetch.Response, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handler(req)
}

func imageResponse(contentType string, body []byte) *fetch.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &fetch.Response{StatusCode: http.StatusOK, Header: h, Body: body}
}

type upload struct {
	path     string
	mimeType string
	size     int
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []upload
	err     error
}

func (u *fakeUploader) PutBinary(_ context.Context, _ config.Settings, path string, data []byte, mimeType string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.uploads = append(u.uploads, upload{path: path, mimeType: mimeType, size: len(data)})
	return path, nil
}

func testJob() Job {
	return Job{
		Settings:     config.DefaultSettings(),
		NoteFilename: "My Article",
		PageURL:      "https://blog.example.com/post",
	}
}

func TestAcquireOne_Download(t *testing.T) {
	f := &fakeFetcher{handler: func(req fetch.Request) (*fetch.Response, error) {
		return imageResponse("image/jpeg; charset=binary", []byte("jpeg-bytes")), nil
	}}
	up := &fakeUploader{}
	cookies := NewCookieResolver(StaticCookies{Domains: map[string][]Cookie{
		"cdn.example.com": {{Name: "sid", Value: "1"}},
	}}, testLogger())
	p := NewPipeline(f, up, cookies, 0, testLogger())

	out := p.AcquireOne(context.Background(), domain.ImageRef{OriginalURL: "https://cdn.example.com/a.jpg", Index: 2}, testJob())

	require.True(t, out.Success, out.Error)
	assert.Equal(t, "Clippings/attachments/My Article_2.jpg", out.LocalPath)
	assert.Equal(t, "attachments/My Article_2.jpg", out.RelativePath)
	require.Len(t, up.uploads, 1)
	assert.Equal(t, "image/jpeg", up.uploads[0].mimeType)

	require.Len(t, f.requests, 1)
	h := f.requests[0].Header
	assert.Equal(t, "sid=1", h.Get("Cookie"))
	assert.Equal(t, "https://blog.example.com/post", h.Get("Referer"))
	assert.Equal(t, "https://blog.example.com", h.Get("Origin"))
	assert.Contains(t, h.Get("Accept"), "image/webp")
	assert.NotEmpty(t, h.Get("User-Agent"))
}

func TestAcquireOne_InlineSkipsNetwork(t *testing.T) {
	f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
		t.Fatal("inline images must not be downloaded")
		return nil, nil
	}}
	up := &fakeUploader{}
	p := NewPipeline(f, up, nil, 0, testLogger())

	out := p.AcquireOne(context.Background(), domain.ImageRef{
		OriginalURL: "data:image/png;base64,AAA",
		Index:       0,
		Inline:      pngBytes,
	}, testJob())

	require.True(t, out.Success, out.Error)
	assert.Equal(t, "attachments/My Article_0.png", out.RelativePath)
	require.Len(t, up.uploads, 1)
	assert.Equal(t, "image/png", up.uploads[0].mimeType, "inline type is sniffed when absent")
}

func TestAcquireOne_OctetStreamRejectedAndNeverUploaded(t *testing.T) {
	f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
		return imageResponse("application/octet-stream", pngBytes), nil
	}}
	up := &fakeUploader{}
	p := NewPipeline(f, up, nil, 0, testLogger())

	out := p.AcquireOne(context.Background(), domain.ImageRef{OriginalURL: "https://cdn.example.com/x"}, testJob())

	assert.False(t, out.Success)
	assert.Equal(t, "Unsupported image type: application/octet-stream", out.Error)
	assert.Empty(t, out.LocalPath)
	assert.Empty(t, up.uploads)
}

func TestAcquireOne_TooLarge(t *testing.T) {
	f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
		resp := imageResponse("image/png", pngBytes)
		resp.Truncated = true
		return resp, nil
	}}
	up := &fakeUploader{}
	p := NewPipeline(f, up, nil, 0, testLogger())

	out := p.AcquireOne(context.Background(), domain.ImageRef{OriginalURL: "https://cdn.example.com/big.png"}, testJob())
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "Image too large")
	assert.Empty(t, up.uploads)
}

func TestAcquireOne_AnonymousFallback(t *testing.T) {
	var calls int
	f := &fakeFetcher{handler: func(req fetch.Request) (*fetch.Response, error) {
		calls++
		if calls == 1 {
			return &fetch.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}, nil
		}
		return imageResponse("", pngBytes), nil
	}}
	up := &fakeUploader{}
	cookies := NewCookieResolver(StaticCookies{Domains: map[string][]Cookie{
		"cdn.example.com": {{Name: "sid", Value: "1"}},
	}}, testLogger())
	p := NewPipeline(f, up, cookies, 0, testLogger())

	out := p.AcquireOne(context.Background(), domain.ImageRef{OriginalURL: "https://cdn.example.com/a"}, testJob())

	require.True(t, out.Success, out.Error)
	require.Len(t, f.requests, 2)
	fallback := f.requests[1].Header
	assert.Empty(t, fallback.Get("Cookie"))
	assert.Empty(t, fallback.Get("Origin"))
	assert.Equal(t, "https://blog.example.com/post", fallback.Get("Referer"))
	assert.Equal(t, "image/png", up.uploads[0].mimeType)
}

func TestAcquireOne_DownloadFailure(t *testing.T) {
	f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
		return nil, apperrors.New(apperrors.KindTransportUnreachable, "network error: refused")
	}}
	up := &fakeUploader{}
	p := NewPipeline(f, up, nil, 0, testLogger())

	out := p.AcquireOne(context.Background(), domain.ImageRef{OriginalURL: "https://cdn.example.com/a.png"}, testJob())
	assert.False(t, out.Success)
	assert.Equal(t, "network error: refused", out.Error)
	assert.Len(t, f.requests, 2, "primary plus anonymous fallback")
}

func TestAcquireBatch_OrderedOutcomesAndBoundedConcurrency(t *testing.T) {
	f := &fakeFetcher{
		delay: 5 * time.Millisecond,
		handler: func(req fetch.Request) (*fetch.Response, error) {
			if strings.HasSuffix(req.URL, "bad.png") {
				return imageResponse("text/html", []byte("<html>")), nil
			}
			return imageResponse("image/png", pngBytes), nil
		},
	}
	up := &fakeUploader{}
	p := NewPipeline(f, up, nil, 3, testLogger())

	var refs []domain.ImageRef
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("img%d.png", i)
		if i == 4 {
			name = "bad.png"
		}
		refs = append(refs, domain.ImageRef{OriginalURL: "https://cdn.example.com/" + name, Index: i})
	}

	outcomes := p.AcquireBatch(context.Background(), refs, testJob())

	require.Len(t, outcomes, len(refs))
	for i, out := range outcomes {
		assert.Equal(t, refs[i].OriginalURL, out.OriginalURL, "outcome %d out of order", i)
		if i == 4 {
			assert.False(t, out.Success)
			continue
		}
		assert.True(t, out.Success, out.Error)
		assert.Equal(t, fmt.Sprintf("attachments/My Article_%d.png", i), out.RelativePath)
	}
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
}

func TestAcquireBatch_StopsWhenVaultUnreachable(t *testing.T) {
	f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
		return imageResponse("image/png", pngBytes), nil
	}}
	up := &fakeUploader{err: apperrors.Wrap(apperrors.KindTransportUnreachable, apperrors.MsgConnectionFailed, errors.New("refused"))}
	p := NewPipeline(f, up, nil, 2, testLogger())

	refs := make([]domain.ImageRef, 5)
	for i := range refs {
		refs[i] = domain.ImageRef{OriginalURL: fmt.Sprintf("https://cdn.example.com/%d.png", i), Index: i}
	}

	outcomes := p.AcquireBatch(context.Background(), refs, testJob())

	require.Len(t, outcomes, 5)
	for i, out := range outcomes {
		assert.Equal(t, refs[i].OriginalURL, out.OriginalURL)
		assert.False(t, out.Success)
		assert.Equal(t, apperrors.MsgConnectionFailed, out.Error)
	}
	assert.Len(t, f.requests, 2, "only the first chunk is downloaded")
}

func TestAcquireBatch_Empty(t *testing.T) {
	p := NewPipeline(&fakeFetcher{}, &fakeUploader{}, nil, 0, testLogger())
	assert.Empty(t, p.AcquireBatch(context.Background(), nil, testJob()))
}

func TestEncodeImages(t *testing.T) {
	f := &fakeFetcher{handler: func(req fetch.Request) (*fetch.Response, error) {
		if strings.HasSuffix(req.URL, ".html") {
			return imageResponse("text/html", []byte("<html>")), nil
		}
		return imageResponse("image/gif", []byte("GIF89a")), nil
	}}
	p := NewPipeline(f, &fakeUploader{}, nil, 0, testLogger())

	results := p.EncodeImages(context.Background(), []string{
		"https://cdn.example.com/a.gif",
		"https://cdn.example.com/page.html",
	}, "https://blog.example.com/")

	require.Len(t, results, 2)
	assert.Equal(t, "data:image/gif;base64,R0lGODlh", results[0].DataURL)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "Not an image: text/html", results[1].Error)
	assert.Empty(t, results[1].DataURL)
}

func TestFetchWithCredentials(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
			return imageResponse("image/png", pngBytes), nil
		}}
		p := NewPipeline(f, &fakeUploader{}, nil, 0, testLogger())
		dataURL, err := p.FetchWithCredentials(context.Background(), "https://cdn.example.com/a.png", "")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
		assert.Equal(t, "https://cdn.example.com/", f.requests[0].Header.Get("Referer"))
	})

	t.Run("non-2xx", func(t *testing.T) {
		f := &fakeFetcher{handler: func(fetch.Request) (*fetch.Response, error) {
			return &fetch.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}, nil
		}}
		p := NewPipeline(f, &fakeUploader{}, nil, 0, testLogger())
		_, err := p.FetchWithCredentials(context.Background(), "https://cdn.example.com/a.png", "")
		require.Error(t, err)
		assert.Equal(t, "HTTP 403", err.Error())
		assert.Len(t, f.requests, 1, "no anonymous fallback for credentialed fetches")
	})

	t.Run("invalid url", func(t *testing.T) {
		p := NewPipeline(&fakeFetcher{}, &fakeUploader{}, nil, 0, testLogger())
		_, err := p.FetchWithCredentials(context.Background(), "not a url", "")
		assert.True(t, apperrors.Is(err, apperrors.KindInvalidInput))
	})
}
