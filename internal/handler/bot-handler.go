package handler

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"mactabak/config"
	"mactabak/internal/auth"
	"mactabak/internal/domain"
	"mactabak/internal/notify"
	"mactabak/internal/repository"
)

const welcomeText = `🛍️ *ДОБРО ПОЖАЛОВАТЬ!*

*МАКТАБАК*
*Лучший Табачный Магазин*

Рады приветствовать вас в нашем магазине!
У нас вы найдете широкий ассортимент табачной продукции высшего качества.

Нажмите кнопку "Каталог" чтобы начать покупки.`

const cartReminderText = "⏰ У вас есть товары в корзине!\n" +
	"Доступность товаров ограничена по времени.\n" +
	"Завершите оформление заказа, чтобы не потерять выбранные товары."

// CartReader is the part of the cart store the bot needs.
type CartReader interface {
	Get(ctx context.Context, userID int64) (domain.Cart, error)
}

type BotHandler struct {
	logger       *zap.Logger
	cfg          *config.Config
	users        *repository.UserRepository
	carts        CartReader
	tokens       *auth.TokenIssuer
	messengerFor func(b *bot.Bot) notify.Messenger
	nudgeDelay   time.Duration
}

func NewBotHandler(logger *zap.Logger, cfg *config.Config, users *repository.UserRepository, carts CartReader, tokens *auth.TokenIssuer) *BotHandler {
	return &BotHandler{
		logger:     logger,
		cfg:        cfg,
		users:      users,
		carts:      carts,
		tokens:     tokens,
		nudgeDelay: 3 * time.Second,
		messengerFor: func(b *bot.Bot) notify.Messenger {
			return notify.NewTelegramMessenger(b)
		},
	}
}

// StartHandler registers the user, greets them and reminds about an unfinished cart.
func (h *BotHandler) StartHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	m := h.messengerFor(b)
	userID := msg.From.ID

	now := time.Now().UTC()
	err := h.users.Touch(ctx, domain.User{
		TelegramID:   userID,
		Username:     msg.From.Username,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LastActivity: now,
	})
	if err != nil {
		h.logger.Error("upsert user on start", zap.Int64("user_id", userID), zap.Error(err))
		if err := m.SendMessage(ctx, msg.Chat.ID, notify.Message{Text: "Произошла ошибка. Попробуйте позже."}); err != nil {
			h.logger.Error("send start error", zap.Error(err))
		}
		return
	}

	err = m.SendMessage(ctx, msg.Chat.ID, notify.Message{
		Text:     welcomeText,
		Markdown: true,
		Button:   &notify.WebAppButton{Text: "🛒 Каталог", URL: h.cfg.MiniAppUrl},
	})
	if err != nil {
		h.logger.Error("send welcome miniapp button", zap.Error(err))
	}

	cart, err := h.carts.Get(ctx, userID)
	if err != nil || len(cart.Items) == 0 || now.Sub(cart.UpdatedAt) > repository.CartTTL {
		return
	}

	chatID := msg.Chat.ID
	go func() {
		timer := time.NewTimer(h.nudgeDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		err := m.SendMessage(ctx, chatID, notify.Message{
			Text:   cartReminderText,
			Button: &notify.WebAppButton{Text: "🛒 Вернуться в корзину", URL: h.cfg.MiniAppUrl + "#cart"},
		})
		if err != nil {
			h.logger.Error("send cart reminder", zap.Int64("user_id", userID), zap.Error(err))
		}
	}()
}

// AdminHandler handles "/admin <password>" and answers with a signed admin panel link.
func (h *BotHandler) AdminHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	m := h.messengerFor(b)
	reply := func(text string) {
		if err := m.SendMessage(ctx, msg.Chat.ID, notify.Message{Text: text}); err != nil {
			h.logger.Error("send admin reply", zap.Error(err))
		}
	}

	if h.cfg.AdminID == 0 || msg.From.ID != h.cfg.AdminID {
		h.logger.Warn("admin command from non-admin", zap.Int64("user_id", msg.From.ID))
		reply("У вас нет прав администратора.")
		return
	}

	password := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/admin"))
	if password == "" {
		reply("Введите пароль: /admin <пароль>")
		return
	}
	if h.cfg.AdminPassword == "" || subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.AdminPassword)) != 1 {
		reply("Неверный пароль.")
		return
	}

	token, err := h.tokens.Issue(msg.From.ID)
	if err != nil {
		h.logger.Error("issue admin token", zap.Error(err))
		reply("Произошла ошибка. Попробуйте позже.")
		return
	}

	err = m.SendMessage(ctx, msg.Chat.ID, notify.Message{
		Text:     "🔐 *Админ-панель*\n\nНажмите кнопку ниже для доступа к панели управления товарами.",
		Markdown: true,
		Button:   &notify.WebAppButton{Text: "⚙️ Открыть админ-панель", URL: h.cfg.AdminPanelURL(token)},
	})
	if err != nil {
		h.logger.Error("send admin panel link", zap.Error(err))
	}
}

// DefaultHandler offers the catalog for any non-command message.
func (h *BotHandler) DefaultHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		return
	}
	err := h.messengerFor(b).SendMessage(ctx, msg.Chat.ID, notify.Message{
		Text:   "Выберите действие:",
		Button: &notify.WebAppButton{Text: "🛒 Каталог", URL: h.cfg.MiniAppUrl},
	})
	if err != nil {
		h.logger.Error("send catalog button", zap.Error(err))
	}
}
