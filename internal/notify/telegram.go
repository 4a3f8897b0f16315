package notify

import (
	"html"
	"sync"

	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/logger"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const telegramQueueSize = 64

// TelegramSink 通过Telegram机器人推送通知，发送在后台goroutine中进行
type TelegramSink struct {
	bot   *tele.Bot
	chat  tele.ChatID
	queue chan Notification
	log   *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewTelegramSink 创建Telegram通知并启动发送协程
func NewTelegramSink(settings tele.Settings, chatID int64) (*TelegramSink, error) {
	if settings.Token == "" {
		return nil, errors.New(errors.ErrConfigMissing, "notify.telegram.token")
	}
	if chatID == 0 {
		return nil, errors.New(errors.ErrConfigMissing, "notify.telegram.chat_id")
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrNotifyFailed, "create telegram bot")
	}

	s := &TelegramSink{
		bot:   bot,
		chat:  tele.ChatID(chatID),
		queue: make(chan Notification, telegramQueueSize),
		log:   logger.WithModule("notify"),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Notify 放入发送队列，队列满时丢弃
func (s *TelegramSink) Notify(n Notification) {
	select {
	case s.queue <- n:
	default:
		s.log.Warn("Telegram发送队列已满，丢弃通知", zap.String("title", n.Title))
	}
}

// Close 发送完剩余通知后退出
func (s *TelegramSink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *TelegramSink) run() {
	defer s.wg.Done()
	for n := range s.queue {
		if _, err := s.bot.Send(s.chat, formatHTML(n), &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
			s.log.Warn("Telegram通知发送失败", zap.String("title", n.Title), zap.Error(err))
		}
	}
}

func formatHTML(n Notification) string {
	prefix := ""
	switch n.Severity {
	case SeverityError:
		prefix = "❌ "
	case SeverityWarning:
		prefix = "⚠️ "
	}
	return prefix + "<b>" + html.EscapeString(n.Title) + "</b>\n" + html.EscapeString(n.Body)
}
