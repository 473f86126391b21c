package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type WebAppButton struct {
	Text string
	URL  string
}

type Message struct {
	Text     string
	Markdown bool
	Button   *WebAppButton
}

// Messenger delivers messages to Telegram chats.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, m Message) error
	SendPhoto(ctx context.Context, chatID int64, photoPath string, m Message) error
}

type TelegramMessenger struct {
	bot *bot.Bot
}

func NewTelegramMessenger(b *bot.Bot) *TelegramMessenger {
	return &TelegramMessenger{bot: b}
}

func (t *TelegramMessenger) SendMessage(ctx context.Context, chatID int64, m Message) error {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   m.Text,
	}
	if m.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	if kb := keyboard(m.Button); kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send message to %d: %w", chatID, err)
	}
	return nil
}

func (t *TelegramMessenger) SendPhoto(ctx context.Context, chatID int64, photoPath string, m Message) error {
	f, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	params := &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: filepath.Base(photoPath), Data: f},
		Caption: m.Text,
	}
	if m.Markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}
	if kb := keyboard(m.Button); kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := t.bot.SendPhoto(ctx, params); err != nil {
		return fmt.Errorf("telegram send photo to %d: %w", chatID, err)
	}
	return nil
}

func keyboard(b *WebAppButton) *models.InlineKeyboardMarkup {
	if b == nil || b.URL == "" {
		return nil
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{
					Text:   b.Text,
					WebApp: &models.WebAppInfo{URL: b.URL},
				},
			},
		},
	}
}
