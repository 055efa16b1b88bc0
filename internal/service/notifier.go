package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"innkeeper/internal/config"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the slice of *tgbotapi.BotAPI the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts staff notifications into one chat.
type TelegramNotifier struct {
	bot       TelegramSender
	chatID    int64
	parseMode string
}

func NewTelegramNotifier(bot TelegramSender, chatID int64, parseMode string) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID, parseMode: parseMode}
}

func (n *TelegramNotifier) Notify(_ context.Context, note models.Notification) error {
	msg := tgbotapi.NewMessage(n.chatID, formatNotification(note, n.parseMode))
	msg.ParseMode = n.parseMode
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatNotification(note models.Notification, parseMode string) string {
	switch parseMode {
	case models.ParseModeHTML:
		return fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(note.Subject), html.EscapeString(note.Text))
	case models.ParseModeMarkdown:
		// legacy Markdown: * and ` cannot be escaped, so they are stripped
		r := strings.NewReplacer("*", "", "`", "", "_", "\\_", "[", "\\[")
		return fmt.Sprintf("*%s*\n%s", r.Replace(note.Subject), r.Replace(note.Text))
	default:
		return note.Subject + "\n" + note.Text
	}
}

// LogNotifier writes notifications to the log when no bot is configured.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, note models.Notification) error {
	n.logger.Info().Int64("booking_id", note.BookingID).Str("subject", note.Subject).Msg(note.Text)
	return nil
}

// NewStaffNotifier picks the Telegram notifier when a bot token is set.
func NewStaffNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (domain.Notifier, error) {
	if cfg.BotToken == "" {
		return NewLogNotifier(logger), nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	if logger != nil {
		logger.Info().Str("bot", bot.Self.UserName).Int64("chat_id", cfg.StaffChatID).Msg("telegram notifier ready")
	}
	return NewTelegramNotifier(bot, cfg.StaffChatID, cfg.ParseMode), nil
}

// notificationFor builds the staff message for the events staff care about.
func notificationFor(eventType string, p events.BookingEventPayload) (models.Notification, bool) {
	label := "Booking"
	if p.Kind == kindTravel {
		label = "Travel booking"
	}
	note := models.Notification{BookingID: p.BookingID}

	switch eventType {
	case events.EventRefundRequested:
		note.Subject = "Refund requested"
		note.Text = fmt.Sprintf("%s #%d: customer %d asks for a refund.", label, p.BookingID, p.CustomerID)
		if p.Reason != "" {
			note.Text += " Reason: " + p.Reason
		}
	case events.EventBookingCheckedIn:
		note.Subject = "Guest checked in"
		note.Text = fmt.Sprintf("%s #%d checked in to room %s.", label, p.BookingID, p.RoomNumber)
	case events.EventBookingOverdueSwept:
		note.Subject = "Overdue stay closed"
		note.Text = fmt.Sprintf("%s #%d in room %s passed its checkout date and was closed as %s.", label, p.BookingID, p.RoomNumber, p.Status)
	default:
		return note, false
	}
	return note, true
}

// SubscribeNotifications turns staff-relevant events into notify tasks on the
// outbox.
func SubscribeNotifications(bus *events.EventBus, side domain.SideChannel) {
	handler := func(event *events.Event) error {
		var payload events.BookingEventPayload
		if err := event.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		note, ok := notificationFor(event.Type, payload)
		if !ok {
			return nil
		}
		return side.Enqueue(context.Background(), models.SideTask{
			Type:         models.SideTaskNotify,
			BookingID:    payload.BookingID,
			Notification: &note,
		})
	}
	bus.Subscribe(handler, events.EventRefundRequested, events.EventBookingCheckedIn, events.EventBookingOverdueSwept)
}
