package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"innkeeper/internal/config"
	"innkeeper/internal/events"
	"innkeeper/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func TestTelegramNotifier(t *testing.T) {
	sender := new(mockTelegramSender)
	n := NewTelegramNotifier(sender, -100123, models.ParseModeHTML)
	note := models.Notification{BookingID: 5, Subject: "Guest checked in", Text: "Room <101> & co"}

	t.Run("SendsToStaffChat", func(t *testing.T) {
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == -100123 &&
				msg.ParseMode == models.ParseModeHTML &&
				msg.Text == "<b>Guest checked in</b>\nRoom &lt;101&gt; &amp; co"
		})).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, n.Notify(context.Background(), note))
		sender.AssertExpectations(t)
	})

	t.Run("SendError", func(t *testing.T) {
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("chat not found")).Once()

		err := n.Notify(context.Background(), note)
		assert.ErrorContains(t, err, "chat not found")
		sender.AssertExpectations(t)
	})
}

func TestFormatNotification(t *testing.T) {
	note := models.Notification{Subject: "Refund *requested*", Text: "reason: late_arrival"}

	assert.Equal(t, "*Refund requested*\nreason: late\\_arrival", formatNotification(note, models.ParseModeMarkdown))
	assert.Equal(t, "Refund *requested*\nreason: late_arrival", formatNotification(note, ""))

	linkLike := models.Notification{Subject: "Refund requested", Text: "reason: [flight] cancelled `today`"}
	assert.Equal(t, "*Refund requested*\nreason: \\[flight] cancelled today", formatNotification(linkLike, models.ParseModeMarkdown))
	assert.Equal(t, "<b>Refund requested</b>\nreason: [flight] cancelled `today`", formatNotification(linkLike, models.ParseModeHTML))
}

func TestNewStaffNotifier_LogFallback(t *testing.T) {
	logger := zerolog.New(io.Discard)
	n, err := NewStaffNotifier(config.TelegramConfig{}, &logger)
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, n)
	assert.NoError(t, n.Notify(context.Background(), models.Notification{Subject: "s", Text: "t"}))
}

func TestSubscribeNotifications(t *testing.T) {
	bus := events.NewEventBus()
	side := &recordingSide{}
	SubscribeNotifications(bus, side)

	payload := events.BookingEventPayload{BookingID: 9, Kind: kindBooking, CustomerID: 7, RoomNumber: "101", Status: "checked_in"}
	require.NoError(t, bus.PublishJSON(events.EventBookingCheckedIn, payload))
	require.NoError(t, bus.PublishJSON(events.EventBookingCreated, payload))

	payload.Reason = "sick"
	payload.Kind = kindTravel
	require.NoError(t, bus.PublishJSON(events.EventRefundRequested, payload))

	tasks := side.byType(models.SideTaskNotify)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(9), tasks[0].BookingID)
	assert.Equal(t, "Guest checked in", tasks[0].Notification.Subject)
	assert.Contains(t, tasks[0].Notification.Text, "room 101")
	assert.Equal(t, "Refund requested", tasks[1].Notification.Subject)
	assert.Contains(t, tasks[1].Notification.Text, "Travel booking #9")
	assert.Contains(t, tasks[1].Notification.Text, "Reason: sick")
}

func TestCheckInPublishesStaffNotification(t *testing.T) {
	f := newFixture(t)
	SubscribeNotifications(f.bus, f.side)
	room := f.addRoom(t, "101", 100)

	f.checkedIn(t, room.ID, "2025-06-10", "2025-06-12")

	notes := f.side.byType(models.SideTaskNotify)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Notification.Text, "room 101")
}
