// Package notification delivers reminder and digest messages over Telegram.
// Delivery is best effort; the jobs layer logs failures and moves on.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/services"
	"github.com/dadlink/dadlink/internal/telemetry"
)

// MessageSender is the slice of *bot.Bot the dispatcher needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ChatLookup resolves a platform user ID to a Telegram chat ID.
type ChatLookup interface {
	GetTelegramID(ctx context.Context, userID string) (int64, error)
}

// Dispatcher sends the engine's outbound notifications.
type Dispatcher interface {
	SendReminder(ctx context.Context, userID string, slots []services.ReminderSlot) error
	SendDigest(ctx context.Context, userID string, overview *services.Overview, newMatches int) error
}

// TelegramDispatcher delivers notifications through the Telegram Bot API.
type TelegramDispatcher struct {
	sender MessageSender
	chats  ChatLookup
}

// NewTelegramDispatcher builds a dispatcher over an existing bot client.
func NewTelegramDispatcher(sender MessageSender, chats ChatLookup) *TelegramDispatcher {
	return &TelegramDispatcher{sender: sender, chats: chats}
}

// NewBot constructs the underlying Telegram client from a bot token.
func NewBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// SendReminder tells the user who else is available in their slots tomorrow.
// No slots means nothing is sent.
func (d *TelegramDispatcher) SendReminder(ctx context.Context, userID string, slots []services.ReminderSlot) error {
	if len(slots) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("👋 Tomorrow you have company:\n")
	for _, slot := range slots {
		sb.WriteString(fmt.Sprintf("\n• %s %s with ", dayName(slot.Slot.DayOfWeek), slot.Slot.TimeSlot))
		names := make([]string, 0, len(slot.MatchedUsers))
		for _, m := range slot.MatchedUsers {
			names = append(names, displayName(m))
		}
		sb.WriteString(strings.Join(names, ", "))
	}

	return d.send(ctx, userID, sb.String(), "reminder")
}

// SendDigest summarizes the user's match cache once a week.
func (d *TelegramDispatcher) SendDigest(ctx context.Context, userID string, overview *services.Overview, newMatches int) error {
	if overview == nil || overview.MatchesCount == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("📬 Your weekly dad digest\n")
	sb.WriteString(fmt.Sprintf("\nYou have %d matches", overview.MatchesCount))
	if newMatches > 0 {
		sb.WriteString(fmt.Sprintf(", %d new this week", newMatches))
	}
	sb.WriteString(".\n")

	if len(overview.TopMatches) > 0 {
		sb.WriteString("\nTop matches:\n")
		for _, m := range overview.TopMatches {
			sb.WriteString(fmt.Sprintf("• %s (score %d)\n", displayName(m), m.MatchScore))
		}
	}

	return d.send(ctx, userID, sb.String(), "digest")
}

func (d *TelegramDispatcher) send(ctx context.Context, userID, text, kind string) error {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"user_id": userID,
		"kind":    kind,
	})

	chatID, err := d.chats.GetTelegramID(ctx, userID)
	if err != nil {
		return apperrors.NewNotificationError("chat lookup", err).WithMetadata("user_id", userID)
	}
	if chatID == 0 {
		logger.Debug("User has no telegram chat, notification skipped")
		return nil
	}

	if _, err := d.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		return apperrors.NewNotificationError("send message", err).WithMetadata("user_id", userID)
	}

	logger.Debug("Notification sent")
	return nil
}

func displayName(m services.MatchPreview) string {
	if m.MatchedName != "" {
		return m.MatchedName
	}
	return "a nearby dad"
}

func dayName(dayOfWeek int) string {
	return time.Weekday(dayOfWeek % 7).String()
}
