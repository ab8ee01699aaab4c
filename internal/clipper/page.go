package clipper

import (
	"context"

	"github.com/sirupsen/logrus"

	"vaultclip/internal/messaging"
	"vaultclip/internal/scraper"
)

// RegisterPage serves the page-context actions with ext until ctx is done.
func RegisterPage(ctx context.Context, bus *messaging.Bus, ext scraper.Extractor, logger logrus.FieldLogger) {
	log := logger.WithField("component", "page_context")

	extract := func(ctx context.Context, msg messaging.Message) (any, error) {
		var req ExtractRequest
		if err := msg.Decode(&req); err != nil {
			return ExtractResponse{Error: err.Error()}, nil
		}
		log := log.WithFields(logrus.Fields{"action": msg.Action, "url": req.URL})

		var err error
		var resp ExtractResponse
		if msg.Action == messaging.ActionExtractSelection {
			resp.Data, err = ext.ExtractSelection(ctx, req.URL, req.Selector)
		} else {
			resp.Data, err = ext.ExtractContent(ctx, req.URL)
		}
		if err != nil {
			log.WithError(err).Warn("Extraction failed")
			return ExtractResponse{Error: err.Error()}, nil
		}
		resp.Success = true
		return resp, nil
	}

	bus.Register(ctx, messaging.ContextPage, map[string]messaging.Handler{
		messaging.ActionExtractContent:   extract,
		messaging.ActionExtractSelection: extract,
		messaging.ActionCheckSelection: func(ctx context.Context, msg messaging.Message) (any, error) {
			var req ExtractRequest
			if err := msg.Decode(&req); err != nil {
				return nil, err
			}
			ok, err := ext.CheckSelection(ctx, req.URL, req.Selector)
			if err != nil {
				log.WithError(err).Debug("Selection check failed")
				return CheckSelectionResponse{}, nil
			}
			return CheckSelectionResponse{HasSelection: ok}, nil
		},
	})
}
