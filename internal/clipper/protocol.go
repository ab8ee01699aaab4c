package clipper

import (
	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/images"
)

// Request payloads. Settings is optional everywhere; when absent the
// service's configured settings are used.

type SaveRequest struct {
	Note     domain.Document  `json:"note"`
	Settings *config.Settings `json:"settings,omitempty"`
}

type TestConnectionRequest struct {
	Settings *config.Settings `json:"settings,omitempty"`
}

// ImagePayload is an image reference as sent by callers. Base64 holds an
// already-encoded data URL, if the caller has one.
type ImagePayload struct {
	OriginalSrc string `json:"originalSrc"`
	Index       int    `json:"index"`
	Alt         string `json:"alt,omitempty"`
	Base64      string `json:"base64,omitempty"`
}

type DownloadSingleImageRequest struct {
	Image        ImagePayload     `json:"image"`
	Settings     *config.Settings `json:"settings,omitempty"`
	NoteFilename string           `json:"noteFilename"`
	PageURL      string           `json:"pageUrl,omitempty"`
}

type DownloadImagesRequest struct {
	Images       []ImagePayload   `json:"images"`
	Settings     *config.Settings `json:"settings,omitempty"`
	NoteFilename string           `json:"noteFilename"`
	PageURL      string           `json:"pageUrl,omitempty"`
}

type ConvertImagesRequest struct {
	ImageURLs []string `json:"imageUrls"`
	SourceURL string   `json:"sourceUrl"`
}

type FetchImageRequest struct {
	ImageURL string `json:"imageUrl"`
	PageURL  string `json:"pageUrl,omitempty"`
}

type StoredImage struct {
	URL    string `json:"url"`
	Base64 string `json:"base64"`
}

type StoreImagesRequest struct {
	Images   []StoredImage `json:"images"`
	ImageKey string        `json:"imageKey,omitempty"`
}

// ClipRequest runs a full clip. When Page is set the extraction step is
// skipped; otherwise URL is loaded in the page context, limited to Selector
// when one is given.
type ClipRequest struct {
	URL      string              `json:"url"`
	Selector string              `json:"selector,omitempty"`
	Title    string              `json:"title,omitempty"`
	Tags     []string            `json:"tags,omitempty"`
	Notes    string              `json:"notes,omitempty"`
	Quick    bool                `json:"quick,omitempty"`
	Page     *domain.PageContent `json:"page,omitempty"`
	Settings *config.Settings    `json:"settings,omitempty"`
}

// Page-context payloads.

type ExtractRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
}

type ExtractResponse struct {
	Success bool               `json:"success"`
	Data    domain.PageContent `json:"data"`
	Error   string             `json:"error,omitempty"`
}

type CheckSelectionResponse struct {
	HasSelection bool `json:"hasSelection"`
}

// Responses.

type SaveResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ConnectionResult struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated,omitempty"`
	Service       string `json:"service,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ImagesResult struct {
	Success bool                  `json:"success"`
	Results []domain.ImageOutcome `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type EncodedImagesResult struct {
	Success bool                  `json:"success"`
	Results []images.EncodedImage `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type FetchImageResult struct {
	Success bool   `json:"success"`
	Base64  string `json:"base64,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StoreImagesResult struct {
	Success  bool   `json:"success"`
	ImageKey string `json:"imageKey,omitempty"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

type GetImagesResult struct {
	Success bool              `json:"success"`
	Images  map[string]string `json:"images,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type ClearImagesResult struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deletedCount"`
	Error        string `json:"error,omitempty"`
}

type ClipResult struct {
	Success       bool                  `json:"success"`
	Path          string                `json:"path,omitempty"`
	Title         string                `json:"title,omitempty"`
	ImagesSaved   int                   `json:"imagesSaved"`
	ImagesFailed  int                   `json:"imagesFailed"`
	ImageOutcomes []domain.ImageOutcome `json:"imageOutcomes,omitempty"`
	Error         string                `json:"error,omitempty"`
}
