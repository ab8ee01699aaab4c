package clipper

import (
	"context"

	"github.com/sirupsen/logrus"

	"vaultclip/internal/apperrors"
	"vaultclip/internal/config"
	"vaultclip/internal/domain"
	"vaultclip/internal/images"
	"vaultclip/internal/messaging"
	"vaultclip/internal/note"
)

// Clip runs extraction, note assembly, image localization, link rewriting
// and the vault write. Image failures are reported but never block the save.
func (s *Service) Clip(ctx context.Context, req ClipRequest) ClipResult {
	log := s.log.WithFields(logrus.Fields{"url": req.URL, "quick": req.Quick})

	st, err := s.snapshot(req.Settings)
	if err != nil {
		return ClipResult{Error: err.Error()}
	}

	var page domain.PageContent
	if req.Page != nil {
		page = *req.Page
	} else {
		page, err = s.extract(ctx, req.URL, req.Selector)
		if err != nil {
			log.WithError(err).Warn("Extraction failed")
			return ClipResult{Error: err.Error()}
		}
	}
	page = page.WithTitle(req.Title)

	var doc domain.Document
	if req.Quick {
		doc, err = note.AssembleQuick(page, st, s.converter)
	} else {
		doc, err = note.Assemble(note.Input{Page: page, Settings: st, Tags: req.Tags, Notes: req.Notes}, s.converter)
	}
	if err != nil {
		log.WithError(err).Error("Note assembly failed")
		return ClipResult{Error: err.Error()}
	}

	result := ClipResult{Title: page.Title}
	if st.LocalizeImages && !req.Quick && len(page.Images) > 0 {
		refs := s.withCachedImages(ctx, page)
		outcomes := s.images.AcquireBatch(ctx, refs, images.Job{
			Settings:     st,
			NoteFilename: doc.Filename,
			PageURL:      page.URL,
		})
		doc.Content = note.RewriteImageLinks(doc.Content, outcomes)
		result.ImageOutcomes = outcomes
		result.ImagesSaved, result.ImagesFailed = domain.CountOutcomes(outcomes)
	}

	path, err := s.vault.SaveNote(ctx, st, doc)
	if err != nil {
		log.WithError(err).Error("Save failed")
		result.Error = err.Error()
		return result
	}

	log.WithFields(logrus.Fields{
		"path":          path,
		"images_saved":  result.ImagesSaved,
		"images_failed": result.ImagesFailed,
	}).Info("Clip saved")
	result.Success = true
	result.Path = path
	return result
}

// QuickClip saves a page without tags, notes or image localization.
func (s *Service) QuickClip(ctx context.Context, pageURL string) ClipResult {
	return s.Clip(ctx, ClipRequest{URL: pageURL, Quick: true})
}

// extract asks the page context for the page's content.
func (s *Service) extract(ctx context.Context, pageURL, selector string) (domain.PageContent, error) {
	if !config.IsValidURL(pageURL) {
		return domain.PageContent{}, apperrors.New(apperrors.KindExtractionUnsupported, apperrors.MsgPageNotSupported)
	}
	action := messaging.ActionExtractContent
	if selector != "" {
		action = messaging.ActionExtractSelection
	}
	msg, err := messaging.NewMessage(action, ExtractRequest{URL: pageURL, Selector: selector})
	if err != nil {
		return domain.PageContent{}, err
	}

	var resp ExtractResponse
	if err := s.bus.Call(ctx, messaging.ContextPage, msg, 0, &resp); err != nil {
		return domain.PageContent{}, err
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = apperrors.MsgExtractionFailed
		}
		return domain.PageContent{}, apperrors.New(apperrors.KindExtractionUnsupported, resp.Error)
	}
	return resp.Data, nil
}

// withCachedImages attaches image bytes cached under the page's image key so
// those images are not downloaded again.
func (s *Service) withCachedImages(ctx context.Context, page domain.PageContent) []domain.ImageRef {
	refs := append([]domain.ImageRef(nil), page.Images...)
	if page.ImageKey == "" || s.cache == nil {
		return refs
	}
	cached, err := s.cache.GetBatch(ctx, page.ImageKey)
	if err != nil {
		s.log.WithError(err).WithField("image_key", page.ImageKey).Warn("Cached images unavailable")
		return refs
	}
	for i, ref := range refs {
		if ref.HasInline() {
			continue
		}
		dataURL, ok := cached[ref.OriginalURL]
		if !ok {
			continue
		}
		data, contentType, err := images.DecodeDataURL(dataURL)
		if err != nil {
			continue
		}
		refs[i].Inline, refs[i].InlineType = data, contentType
	}
	return refs
}
