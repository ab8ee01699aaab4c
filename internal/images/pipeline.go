package images

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/fetch"
	"vaultclip/internal/note"
)

const (
	// DownloadTimeout bounds each image download attempt.
	DownloadTimeout = 15 * time.Second
	// DefaultConcurrency is the number of images in flight per chunk.
	DefaultConcurrency = 3

	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptImages   = "image/avif,image/webp,image/apng,image/svg+xml,image/png,image/jpeg,image/gif,*/*"
	acceptLanguage = "en-US,en;q=0.9"
)

// Fetcher performs HTTP calls with timeout and retry.
type Fetcher interface {
	Do(ctx context.Context, req fetch.Request, opts fetch.Options) (*fetch.Response, error)
}

// Uploader writes binary attachments into the vault.
type Uploader interface {
	PutBinary(ctx context.Context, s config.Settings, path string, data []byte, mimeType string) (string, error)
}

// Job is the context shared by every image of one note.
type Job struct {
	Settings     config.Settings
	NoteFilename string
	PageURL      string
}

// EncodedImage is a downloaded image rendered as a data URL.
type EncodedImage struct {
	URL     string `json:"url"`
	DataURL string `json:"base64,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Pipeline downloads images and writes them into the vault's attachments
// folder.
type Pipeline struct {
	fetch       Fetcher
	vault       Uploader
	cookies     *CookieResolver
	concurrency int
	log         logrus.FieldLogger
}

func NewPipeline(f Fetcher, up Uploader, cookies *CookieResolver, concurrency int, logger logrus.FieldLogger) *Pipeline {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if cookies == nil {
		cookies = NewCookieResolver(nil, logger)
	}
	return &Pipeline{
		fetch:       f,
		vault:       up,
		cookies:     cookies,
		concurrency: concurrency,
		log:         logger.WithField("component", "images"),
	}
}

// AcquireOne localizes a single image. Failures are reported in the outcome.
func (p *Pipeline) AcquireOne(ctx context.Context, ref domain.ImageRef, job Job) domain.ImageOutcome {
	out, _ := p.acquire(ctx, ref, job)
	return out
}

// AcquireBatch localizes refs in chunks of the configured concurrency and
// returns one outcome per ref, in input order. When the vault becomes
// unreachable the remaining chunks are skipped and reported as failed.
func (p *Pipeline) AcquireBatch(ctx context.Context, refs []domain.ImageRef, job Job) []domain.ImageOutcome {
	log := p.log.WithFields(logrus.Fields{"count": len(refs), "note": job.NoteFilename})
	outcomes := make([]domain.ImageOutcome, len(refs))

	for start := 0; start < len(refs); start += p.concurrency {
		end := min(start+p.concurrency, len(refs))

		var vaultDown atomic.Bool
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out, uploadErr := p.acquire(ctx, refs[i], job)
				outcomes[i] = out
				if apperrors.Is(uploadErr, apperrors.KindTransportUnreachable) {
					vaultDown.Store(true)
				}
				return nil
			})
		}
		_ = g.Wait()

		if vaultDown.Load() {
			log.WithField("skipped", len(refs)-end).Warn("Vault unreachable, skipping remaining images")
			for i := end; i < len(refs); i++ {
				outcomes[i] = domain.Failed(refs[i].OriginalURL, apperrors.MsgConnectionFailed)
			}
			break
		}
	}

	ok, failed := domain.CountOutcomes(outcomes)
	log.WithFields(logrus.Fields{"succeeded": ok, "failed": failed}).Info("Image batch finished")
	return outcomes
}

// acquire returns the outcome plus the upload error, if the upload was
// attempted and failed.
func (p *Pipeline) acquire(ctx context.Context, ref domain.ImageRef, job Job) (domain.ImageOutcome, error) {
	log := p.log.WithFields(logrus.Fields{"image_url": ref.OriginalURL, "index": ref.Index})

	var (
		data        []byte
		contentType string
		err         error
	)
	if ref.HasInline() {
		data, contentType = ref.Inline, NormalizeMIME(ref.InlineType)
		if contentType == "" {
			contentType = Sniff(data)
		}
	} else {
		data, contentType, err = p.download(ctx, ref.OriginalURL, job.PageURL)
		if err != nil {
			log.WithError(err).Warn("Image download failed")
			return domain.Failed(ref.OriginalURL, err.Error()), nil
		}
	}

	if err := Validate(data, contentType); err != nil {
		log.WithError(err).Warn("Image rejected")
		return domain.Failed(ref.OriginalURL, err.Error()), nil
	}

	filename := fmt.Sprintf("%s_%d%s", note.AttachmentPrefix(job.NoteFilename), ref.Index, ExtensionForMIME(contentType))
	localPath := job.Settings.AttachmentsFolder() + "/" + filename
	relativePath := config.AttachmentsDir + "/" + filename

	if _, err := p.vault.PutBinary(ctx, job.Settings, localPath, data, contentType); err != nil {
		log.WithError(err).Warn("Image upload failed")
		return domain.Failed(ref.OriginalURL, err.Error()), err
	}
	return domain.Succeeded(ref.OriginalURL, localPath, relativePath), nil
}

// download tries a credentialed request first and falls back to one
// anonymous request whose status is not inspected.
func (p *Pipeline) download(ctx context.Context, imageURL, pageURL string) ([]byte, string, error) {
	resp, err := p.fetchPrimary(ctx, imageURL, pageURL)
	if err == nil && resp.OK() {
		return bodyOf(resp)
	}
	if err == nil {
		err = fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	p.log.WithError(err).WithField("image_url", imageURL).Debug("Primary image request failed, trying anonymous fallback")

	h := http.Header{}
	h.Set("Referer", referer(imageURL, pageURL))
	h.Set("User-Agent", userAgent)
	resp, err = p.fetch.Do(ctx, fetch.Request{Method: http.MethodGet, URL: imageURL, Header: h},
		fetch.Options{Timeout: DownloadTimeout, Attempts: 1})
	if err != nil {
		return nil, "", err
	}
	return bodyOf(resp)
}

func (p *Pipeline) fetchPrimary(ctx context.Context, imageURL, pageURL string) (*fetch.Response, error) {
	h := http.Header{}
	if cookie := p.cookies.Header(ctx, imageURL, pageURL); cookie != "" {
		h.Set("Cookie", cookie)
	}
	h.Set("Referer", referer(imageURL, pageURL))
	h.Set("Origin", "https://"+sourceHost(imageURL, pageURL))
	h.Set("User-Agent", userAgent)
	h.Set("Accept", acceptImages)
	h.Set("Accept-Language", acceptLanguage)

	return p.fetch.Do(ctx, fetch.Request{Method: http.MethodGet, URL: imageURL, Header: h},
		fetch.Options{Timeout: DownloadTimeout, Attempts: 1})
}

func bodyOf(resp *fetch.Response) ([]byte, string, error) {
	if resp.Truncated {
		return nil, "", apperrors.Newf(apperrors.KindValidationFailed, "Image too large: more than %dMB", MaxImageBytes/(1024*1024))
	}
	contentType := resp.ContentType()
	if contentType == "" {
		contentType = Sniff(resp.Body)
	}
	return resp.Body, contentType, nil
}

func sourceHost(imageURL, pageURL string) string {
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if u, err := url.Parse(imageURL); err == nil {
		return u.Hostname()
	}
	return ""
}

func referer(imageURL, pageURL string) string {
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		return pageURL
	}
	return "https://" + sourceHost(imageURL, pageURL) + "/"
}

// EncodeImages downloads each URL in turn and returns it as a data URL.
// Non-image responses are reported per URL.
func (p *Pipeline) EncodeImages(ctx context.Context, urls []string, sourceURL string) []EncodedImage {
	results := make([]EncodedImage, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			results = append(results, EncodedImage{URL: u, Error: err.Error()})
			continue
		}
		data, contentType, err := p.download(ctx, u, sourceURL)
		if err != nil {
			results = append(results, EncodedImage{URL: u, Error: err.Error()})
			continue
		}
		if !IsAllowed(contentType) {
			results = append(results, EncodedImage{URL: u, Error: "Not an image: " + contentType})
			continue
		}
		results = append(results, EncodedImage{URL: u, DataURL: EncodeDataURL(data, contentType)})
	}
	p.log.WithField("count", len(urls)).Info("Encoded images")
	return results
}

// FetchWithCredentials downloads a single image with the page's cookies and
// returns it as a data URL. Non-2xx responses are errors.
func (p *Pipeline) FetchWithCredentials(ctx context.Context, imageURL, pageURL string) (string, error) {
	if u, err := url.Parse(imageURL); err != nil || u.Hostname() == "" {
		return "", apperrors.Newf(apperrors.KindInvalidInput, "Invalid image URL: %q", imageURL)
	}
	resp, err := p.fetchPrimary(ctx, imageURL, pageURL)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", apperrors.Newf(apperrors.KindRequestFailed, "HTTP %d", resp.StatusCode)
	}
	data, contentType, err := bodyOf(resp)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(data, contentType), nil
}
