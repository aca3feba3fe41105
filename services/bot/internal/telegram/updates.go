package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"palmreader/pkg/domain"
)

// Classify turns a Bot API update into an inbound event. Updates without a
// user-authored message (edits, channel posts, callbacks) are skipped.
func Classify(update tgbotapi.Update) (domain.InboundEvent, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return domain.InboundEvent{}, false
	}
	evt := domain.InboundEvent{
		Kind:      domain.EventOther,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Sender: domain.Sender{
			ID:        msg.From.ID,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
			Username:  msg.From.UserName,
		},
		Text: msg.Text,
	}
	switch {
	case len(msg.Photo) > 0:
		evt.Kind = domain.EventPhoto
		evt.Photos = make([]domain.PhotoSize, 0, len(msg.Photo))
		for _, p := range msg.Photo {
			evt.Photos = append(evt.Photos, domain.PhotoSize{
				FileID:       p.FileID,
				FileUniqueID: p.FileUniqueID,
				Width:        p.Width,
				Height:       p.Height,
				FileSize:     p.FileSize,
			})
		}
	case msg.Document != nil && isImageDocument(msg.Document):
		// Photos sent "as file" skip Telegram's compression and arrive as documents.
		evt.Kind = domain.EventPhoto
		evt.Photos = []domain.PhotoSize{{
			FileID:       msg.Document.FileID,
			FileUniqueID: msg.Document.FileUniqueID,
			FileSize:     msg.Document.FileSize,
		}}
	case strings.TrimSpace(msg.Text) != "":
		evt.Kind = domain.EventText
	}
	return evt, true
}

func isImageDocument(doc *tgbotapi.Document) bool {
	return strings.HasPrefix(strings.ToLower(doc.MimeType), "image/")
}
