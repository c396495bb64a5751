package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
)

// TelegramGateway answers workflow commands in Telegram chats and posts
// run summaries to the notification chats
type TelegramGateway struct {
	Bot         *tgbotapi.BotAPI
	Commands    *Commands
	NotifyChats []int64

	allowed map[int64]bool
	log     *slog.Logger
}

var _ Messenger = (*TelegramGateway)(nil)

func NewTelegramGateway(
	token string, commands *Commands, chats []int64, log *slog.Logger,
) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(bot, commands, chats, log), nil
}

// NewTelegramGatewayWithEndpoint talks to a Bot API server other than
// api.telegram.org. The endpoint is a format string taking the token and
// the method, like tgbotapi.APIEndpoint.
func NewTelegramGatewayWithEndpoint(
	token, endpoint string, commands *Commands, chats []int64, log *slog.Logger,
) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}
	return newTelegram(bot, commands, chats, log), nil
}

func newTelegram(
	bot *tgbotapi.BotAPI, commands *Commands, chats []int64, log *slog.Logger,
) *TelegramGateway {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	allowed := make(map[int64]bool, len(chats))
	for _, id := range chats {
		allowed[id] = true
	}
	log.Info("telegram authorized", slog.String("account", bot.Self.UserName))
	if len(allowed) == 0 {
		log.Warn("no telegram chats configured; commands will be ignored")
	}
	return &TelegramGateway{
		Bot:         bot,
		Commands:    commands,
		NotifyChats: chats,
		allowed:     allowed,
		log:         log,
	}
}

// Start handles updates until ctx is cancelled or Stop is called.
// Messages from chats outside the configured list are ignored.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			tg.handle(ctx, update.Message)
		}
	}
}

func (tg *TelegramGateway) handle(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	if !tg.Allowed(chatID) {
		tg.log.WarnContext(ctx, "ignoring message from unknown chat",
			slog.Int64("chat_id", chatID))
		return
	}
	tg.log.InfoContext(ctx, "telegram command",
		slog.Int64("chat_id", chatID), slog.String("text", m.Text))

	reply := tg.Commands.Handle(ctx, m.Text)
	if err := tg.Send(strconv.FormatInt(chatID, 10), reply); err != nil {
		tg.log.WarnContext(ctx, "failed to reply", slog.Any("error", err))
	}
}

// Allowed reports whether commands from chatID are accepted. With no
// chats configured nothing is.
func (tg *TelegramGateway) Allowed(chatID int64) bool {
	return tg.allowed[chatID]
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	_, err = tg.Bot.Send(tgbotapi.NewMessage(id, text))
	return err
}

// Notify posts the run summary to every notification chat
func (tg *TelegramGateway) Notify(_ context.Context, run *orchestrator.Run) error {
	text := Summary(run)
	for _, id := range tg.NotifyChats {
		if err := tg.Send(strconv.FormatInt(id, 10), text); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
