package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"vaultclip/internal/clipper"
)

const welcomeMessage = "Welcome to vaultclip! Send me a link and I'll save the page to your Obsidian vault."

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// QuickClipper saves a page without further input.
type QuickClipper interface {
	QuickClip(ctx context.Context, pageURL string) clipper.ClipResult
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot     *tgbot.Bot
	clipper QuickClipper
	log     logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(token string, c QuickClipper, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	b, err := tgbot.New(token)
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	h := &Handler{
		bot:     b,
		clipper: c,
		log:     log,
	}

	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command and message handlers.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "http", tgbot.MatchTypeContains, h.clipHandler)
	h.log.Info("Registered /start and link handlers")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

// startHandler handles the /start command.
func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"chat_id": update.Message.Chat.ID,
		"command": "/start",
	})
	log.Info("Received /start command")

	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   welcomeMessage,
	})
	if err != nil {
		log.WithError(err).Error("Failed to send welcome message")
	}
}

// clipHandler quick-clips the first link in a message and reports back.
func (h *Handler) clipHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	pageURL, ok := ExtractURL(update.Message.Text)
	if !ok {
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"chat_id": update.Message.Chat.ID,
		"url":     pageURL,
	})
	log.Info("Quick clip requested")

	result := h.clipper.QuickClip(ctx, pageURL)

	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   Reply(result),
	})
	if err != nil {
		log.WithError(err).Error("Failed to send clip result")
	}
}

// ExtractURL returns the first http(s) link in text, without trailing
// punctuation.
func ExtractURL(text string) (string, bool) {
	m := urlPattern.FindString(text)
	m = strings.TrimRight(m, ".,;:!?)]}'")
	if m == "" || m == "http://" || m == "https://" {
		return "", false
	}
	return m, true
}

// Reply renders a clip result for the chat.
func Reply(result clipper.ClipResult) string {
	if result.Success {
		return "Saved to Obsidian!\n" + result.Path
	}
	if result.Error == "" {
		return "Failed to save"
	}
	return result.Error
}
