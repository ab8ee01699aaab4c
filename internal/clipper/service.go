package clipper

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/images"
	"vaultclip/internal/messaging"
	"vaultclip/internal/note"
	"vaultclip/internal/storage"
	"vaultclip/internal/vault"
)

// Vault persists notes and checks the API.
type Vault interface {
	SaveNote(ctx context.Context, s config.Settings, doc domain.Document) (string, error)
	TestConnection(ctx context.Context, baseURL, apiKey string) (vault.ConnectionStatus, error)
}

// ImagePipeline localizes and encodes images.
type ImagePipeline interface {
	AcquireOne(ctx context.Context, ref domain.ImageRef, job images.Job) domain.ImageOutcome
	AcquireBatch(ctx context.Context, refs []domain.ImageRef, job images.Job) []domain.ImageOutcome
	EncodeImages(ctx context.Context, urls []string, sourceURL string) []images.EncodedImage
	FetchWithCredentials(ctx context.Context, imageURL, pageURL string) (string, error)
}

var errNoCache = errors.New("image cache is not available")

// Service is the background context: it owns the vault client, the image
// pipeline and the image cache, and answers messages from every front end.
type Service struct {
	bus       *messaging.Bus
	vault     Vault
	images    ImagePipeline
	cache     storage.ImageCache
	converter note.Converter
	settings  config.Settings
	newKey    func() string
	log       logrus.FieldLogger
}

// Deps are the collaborators of a Service. Cache may be nil.
type Deps struct {
	Bus       *messaging.Bus
	Vault     Vault
	Images    ImagePipeline
	Cache     storage.ImageCache
	Converter note.Converter
	Settings  config.Settings
}

func NewService(deps Deps, logger logrus.FieldLogger) *Service {
	conv := deps.Converter
	if conv == nil {
		conv = note.NewConverter()
	}
	return &Service{
		bus:       deps.Bus,
		vault:     deps.Vault,
		images:    deps.Images,
		cache:     deps.Cache,
		converter: conv,
		settings:  deps.Settings.Normalize(),
		newKey:    func() string { return "img_" + uuid.NewString() },
		log:       logger.WithField("component", "clipper"),
	}
}

// Register serves the background actions on the bus until ctx is done.
func (s *Service) Register(ctx context.Context) {
	s.bus.Register(ctx, messaging.ContextBackground, map[string]messaging.Handler{
		messaging.ActionSaveToObsidian:            s.handleSave,
		messaging.ActionTestConnection:            s.handleTestConnection,
		messaging.ActionDownloadSingleImage:       s.handleDownloadSingleImage,
		messaging.ActionDownloadAndSaveImages:     s.handleDownloadImages,
		messaging.ActionConvertImagesInBackground: s.handleConvertImages,
		messaging.ActionFetchImageWithCookies:     s.handleFetchImage,
		messaging.ActionStoreImages:               s.handleStoreImages,
		messaging.ActionGetImages:                 s.handleGetImages,
		messaging.ActionClearImages:               s.handleClearImages,
		messaging.ActionClip:                      s.handleClip,
	})
}

// snapshot returns the settings for one operation: the caller's, when given,
// or the configured ones.
func (s *Service) snapshot(override *config.Settings) (config.Settings, error) {
	if override == nil {
		return s.settings, nil
	}
	st := override.Normalize()
	if err := st.Validate(); err != nil {
		return config.Settings{}, err
	}
	return st, nil
}

func (s *Service) handleSave(ctx context.Context, msg messaging.Message) (any, error) {
	var req SaveRequest
	if err := msg.Decode(&req); err != nil {
		return SaveResult{Error: err.Error()}, nil
	}
	st, err := s.snapshot(req.Settings)
	if err != nil {
		return SaveResult{Error: err.Error()}, nil
	}
	req.Note.Filename = note.SanitizeFilename(req.Note.Filename)
	path, err := s.vault.SaveNote(ctx, st, req.Note)
	if err != nil {
		return SaveResult{Error: err.Error()}, nil
	}
	return SaveResult{Success: true, Path: path}, nil
}

func (s *Service) handleTestConnection(ctx context.Context, msg messaging.Message) (any, error) {
	var req TestConnectionRequest
	if err := msg.Decode(&req); err != nil {
		return ConnectionResult{Error: err.Error()}, nil
	}
	st, err := s.snapshot(req.Settings)
	if err != nil {
		return ConnectionResult{Error: err.Error()}, nil
	}
	status, err := s.vault.TestConnection(ctx, st.APIURL, st.APIKey)
	if err != nil {
		return ConnectionResult{Error: err.Error()}, nil
	}
	return ConnectionResult{Success: true, Authenticated: status.Authenticated, Service: status.Service}, nil
}

// toRef converts a caller's image payload, decoding any inline data URL.
func toRef(p ImagePayload) domain.ImageRef {
	ref := domain.ImageRef{OriginalURL: p.OriginalSrc, Index: p.Index, Alt: p.Alt}
	if p.Base64 != "" {
		if data, contentType, err := images.DecodeDataURL(p.Base64); err == nil {
			ref.Inline, ref.InlineType = data, contentType
		}
	}
	return ref
}

func (s *Service) handleDownloadSingleImage(ctx context.Context, msg messaging.Message) (any, error) {
	var req DownloadSingleImageRequest
	if err := msg.Decode(&req); err != nil {
		return domain.Failed("", err.Error()), nil
	}
	st, err := s.snapshot(req.Settings)
	if err != nil {
		return domain.Failed(req.Image.OriginalSrc, err.Error()), nil
	}
	job := images.Job{Settings: st, NoteFilename: req.NoteFilename, PageURL: req.PageURL}
	return s.images.AcquireOne(ctx, toRef(req.Image), job), nil
}

func (s *Service) handleDownloadImages(ctx context.Context, msg messaging.Message) (any, error) {
	var req DownloadImagesRequest
	if err := msg.Decode(&req); err != nil {
		return ImagesResult{Error: err.Error()}, nil
	}
	st, err := s.snapshot(req.Settings)
	if err != nil {
		return ImagesResult{Error: err.Error()}, nil
	}
	refs := make([]domain.ImageRef, len(req.Images))
	for i, p := range req.Images {
		refs[i] = toRef(p)
	}
	job := images.Job{Settings: st, NoteFilename: req.NoteFilename, PageURL: req.PageURL}
	return ImagesResult{Success: true, Results: s.images.AcquireBatch(ctx, refs, job)}, nil
}

func (s *Service) handleConvertImages(ctx context.Context, msg messaging.Message) (any, error) {
	var req ConvertImagesRequest
	if err := msg.Decode(&req); err != nil {
		return EncodedImagesResult{Error: err.Error()}, nil
	}
	return EncodedImagesResult{Success: true, Results: s.images.EncodeImages(ctx, req.ImageURLs, req.SourceURL)}, nil
}

func (s *Service) handleFetchImage(ctx context.Context, msg messaging.Message) (any, error) {
	var req FetchImageRequest
	if err := msg.Decode(&req); err != nil {
		return FetchImageResult{Error: err.Error()}, nil
	}
	dataURL, err := s.images.FetchWithCredentials(ctx, req.ImageURL, req.PageURL)
	if err != nil {
		return FetchImageResult{Error: err.Error()}, nil
	}
	return FetchImageResult{Success: true, Base64: dataURL}, nil
}

func (s *Service) handleStoreImages(ctx context.Context, msg messaging.Message) (any, error) {
	var req StoreImagesRequest
	if err := msg.Decode(&req); err != nil {
		return StoreImagesResult{Error: err.Error()}, nil
	}
	if s.cache == nil {
		return StoreImagesResult{Error: errNoCache.Error()}, nil
	}
	key := req.ImageKey
	if key == "" {
		key = s.newKey()
	}
	batch := make([]domain.CachedImage, 0, len(req.Images))
	for _, img := range req.Images {
		batch = append(batch, domain.CachedImage{URL: img.URL, DataURL: img.Base64})
	}
	n, err := s.cache.StoreImages(ctx, key, batch)
	if err != nil {
		return StoreImagesResult{Error: err.Error()}, nil
	}
	return StoreImagesResult{Success: true, ImageKey: key, Count: n}, nil
}

func (s *Service) handleGetImages(ctx context.Context, _ messaging.Message) (any, error) {
	if s.cache == nil {
		return GetImagesResult{Error: errNoCache.Error()}, nil
	}
	imgs, err := s.cache.GetImages(ctx)
	if err != nil {
		return GetImagesResult{Error: err.Error()}, nil
	}
	return GetImagesResult{Success: true, Images: imgs}, nil
}

func (s *Service) handleClearImages(ctx context.Context, _ messaging.Message) (any, error) {
	if s.cache == nil {
		return ClearImagesResult{Error: errNoCache.Error()}, nil
	}
	n, err := s.cache.PurgeOlderThan(ctx, storage.DefaultMaxAge)
	if err != nil {
		return ClearImagesResult{Error: err.Error()}, nil
	}
	return ClearImagesResult{Success: true, DeletedCount: n}, nil
}

func (s *Service) handleClip(ctx context.Context, msg messaging.Message) (any, error) {
	var req ClipRequest
	if err := msg.Decode(&req); err != nil {
		return ClipResult{Error: err.Error()}, nil
	}
	return s.Clip(ctx, req), nil
}
