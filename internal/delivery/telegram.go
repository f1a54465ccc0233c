package delivery

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

type telegramSink struct {
	bot   *tele.Bot
	chats map[event.Channel]int64
	log   logx.Logger
}

func newTelegramSink(opts Options, log logx.Logger) (*telegramSink, error) {
	if opts.TelegramToken == "" {
		return nil, errors.New("delivery: telegram token is empty")
	}
	if len(opts.TelegramChats) == 0 {
		return nil, errors.New("delivery: telegram mode needs at least one chat mapping")
	}
	b, err := tele.NewBot(tele.Settings{
		Token: opts.TelegramToken,
	})
	if err != nil {
		return nil, fmt.Errorf("delivery: telegram: %w", err)
	}
	return &telegramSink{bot: b, chats: opts.TelegramChats, log: log}, nil
}

func (s *telegramSink) Send(ctx context.Context, in event.Intent) error {
	chatID, ok := s.chats[in.Channel]
	if !ok || chatID == 0 {
		return fmt.Errorf("telegram: no chat configured for channel %q", in.Channel)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := &tele.Chat{ID: chatID}
	_, err := s.bot.Send(chat, renderText(in), &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
