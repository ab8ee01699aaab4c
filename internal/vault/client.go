package vault

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/fetch"
)

const (
	// APITimeout bounds note saves and connection tests.
	APITimeout = 10 * time.Second
	// UploadTimeout bounds binary attachment uploads.
	UploadTimeout = 15 * time.Second

	textAttempts   = 3
	binaryAttempts = 1
)

// Doer is the subset of the fetch client the vault client needs.
type Doer interface {
	Do(ctx context.Context, req fetch.Request, opts fetch.Options) (*fetch.Response, error)
}

// Client writes notes and attachments through the Obsidian Local REST API.
type Client struct {
	fetch Doer
	log   logrus.FieldLogger
}

func NewClient(f Doer, logger logrus.FieldLogger) *Client {
	return &Client{
		fetch: f,
		log:   logger.WithField("component", "vault"),
	}
}

// NewHTTPClient returns an *http.Client for the Local REST API, which serves a
// self-signed certificate on loopback.
func NewHTTPClient(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local self-signed API
	}
	return &http.Client{Transport: transport}
}

// EncodePath percent-encodes every segment of a vault path independently,
// keeping "/" as the directory separator.
func EncodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// NotePath builds the vault path of a note: "{folder}/{filename}.md".
func NotePath(folder, filename string) string {
	if folder == "" {
		return filename + ".md"
	}
	return folder + "/" + filename + ".md"
}

func vaultURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/vault/" + EncodePath(path)
}

func authHeader(h http.Header, apiKey string) {
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
}

// SaveNote persists doc under the settings' target folder and returns the
// stored path.
func (c *Client) SaveNote(ctx context.Context, s config.Settings, doc domain.Document) (string, error) {
	return c.PutText(ctx, s, NotePath(s.TargetFolder, doc.Filename), doc.Content)
}

// PutText writes a Markdown file, retrying transport failures.
func (c *Client) PutText(ctx context.Context, s config.Settings, path, content string) (string, error) {
	h := http.Header{}
	h.Set("Content-Type", "text/markdown")
	authHeader(h, s.APIKey)

	return c.put(ctx, path, fetch.Request{
		Method: http.MethodPut,
		URL:    vaultURL(s.APIURL, path),
		Header: h,
		Body:   []byte(content),
	}, fetch.Options{Timeout: APITimeout, Attempts: textAttempts})
}

// PutBinary uploads an attachment in a single attempt.
func (c *Client) PutBinary(ctx context.Context, s config.Settings, path string, data []byte, mimeType string) (string, error) {
	h := http.Header{}
	h.Set("Content-Type", mimeType)
	authHeader(h, s.APIKey)

	return c.put(ctx, path, fetch.Request{
		Method: http.MethodPut,
		URL:    vaultURL(s.APIURL, path),
		Header: h,
		Body:   data,
	}, fetch.Options{Timeout: UploadTimeout, Attempts: binaryAttempts})
}

func (c *Client) put(ctx context.Context, path string, req fetch.Request, opts fetch.Options) (string, error) {
	log := c.log.WithField("path", path)

	resp, err := c.fetch.Do(ctx, req, opts)
	if err != nil {
		log.WithError(err).Error("Vault request failed")
		return "", transportError(err)
	}
	if err := statusError(resp.StatusCode); err != nil {
		log.WithField("status", resp.StatusCode).Warn("Vault rejected write")
		return "", err
	}

	log.WithField("bytes", len(req.Body)).Info("Saved to vault")
	return path, nil
}

// statusError classifies a non-2xx vault response. 2xx yields nil.
func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.KindPathNotFound, apperrors.MsgPathNotFound)
	case status == http.StatusUnauthorized:
		return apperrors.New(apperrors.KindAuthenticationFailed, apperrors.MsgAuthFailed)
	case status >= 500:
		return apperrors.New(apperrors.KindRemoteServerError, apperrors.MsgServerError)
	default:
		return apperrors.Newf(apperrors.KindRequestFailed, "Failed to save (HTTP %d)", status)
	}
}

// transportError swaps the fetch wrapper's message for a user-facing one.
func transportError(err error) error {
	switch apperrors.KindOf(err) {
	case apperrors.KindTransportTimeout:
		return apperrors.Wrap(apperrors.KindTransportTimeout, apperrors.MsgTimeout, err)
	case apperrors.KindTransportUnreachable:
		return apperrors.Wrap(apperrors.KindTransportUnreachable, apperrors.MsgConnectionFailed, err)
	default:
		return err
	}
}

// ConnectionStatus is the body of a successful GET on the API root.
type ConnectionStatus struct {
	Authenticated bool   `json:"authenticated"`
	Service       string `json:"service"`
}

// TestConnection probes the API root. 401 is reported as an authentication
// failure; other failures keep their transport classification.
func (c *Client) TestConnection(ctx context.Context, baseURL, apiKey string) (ConnectionStatus, error) {
	h := http.Header{}
	h.Set("Accept", "application/json")
	authHeader(h, apiKey)

	resp, err := c.fetch.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    strings.TrimRight(baseURL, "/") + "/",
		Header: h,
	}, fetch.Options{Timeout: APITimeout, Attempts: 1})
	if err != nil {
		if apperrors.Is(err, apperrors.KindTransportTimeout) {
			return ConnectionStatus{}, apperrors.Wrap(apperrors.KindTransportTimeout, apperrors.MsgConnectionTimeout, err)
		}
		return ConnectionStatus{}, apperrors.Wrap(apperrors.KindTransportUnreachable, apperrors.MsgConnectionFailed, err)
	}

	switch {
	case resp.OK():
	case resp.StatusCode == http.StatusUnauthorized:
		return ConnectionStatus{}, apperrors.New(apperrors.KindAuthenticationFailed, apperrors.MsgAuthFailed)
	default:
		return ConnectionStatus{}, apperrors.Newf(apperrors.KindRequestFailed, "HTTP %d", resp.StatusCode)
	}

	var status ConnectionStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return ConnectionStatus{}, apperrors.Wrap(apperrors.KindRequestFailed, "Unexpected response from Obsidian API", err)
	}
	if status.Service == "" {
		return ConnectionStatus{}, apperrors.New(apperrors.KindRequestFailed, "Unexpected response from Obsidian API")
	}

	c.log.WithFields(logrus.Fields{
		"service":       status.Service,
		"authenticated": status.Authenticated,
	}).Info("Connection test succeeded")
	return status, nil
}
