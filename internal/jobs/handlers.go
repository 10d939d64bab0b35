package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/notification"
	"github.com/dadlink/dadlink/internal/services"
	"github.com/dadlink/dadlink/internal/telemetry"
)

const digestWindow = 7 * 24 * time.Hour

// Recalculator is the slice of the recalc service the nightly job needs.
type Recalculator interface {
	RunFullRecalculation(ctx context.Context) (*services.RecalcSummary, error)
}

// OverviewBuilder is the slice of the overview service the notification
// jobs need.
type OverviewBuilder interface {
	BuildOverview(ctx context.Context, userID string) (*services.Overview, error)
	MatchesSince(ctx context.Context, userID string, since time.Time) (int, error)
	TomorrowSlotsWithMatches(ctx context.Context, userID string) ([]services.ReminderSlot, error)
}

// UserLister enumerates the users a notification job fans out over.
type UserLister interface {
	UserIDsWithActiveSlots(ctx context.Context) ([]string, error)
}

// RecalculateHandler runs the nightly full recalculation.
type RecalculateHandler struct {
	recalc Recalculator
}

// NewRecalculateHandler creates the nightly recalculation handler.
func NewRecalculateHandler(recalc Recalculator) *RecalculateHandler {
	return &RecalculateHandler{recalc: recalc}
}

// ProcessTask handles the recalculation task. Per-user failures are part of
// the summary and do not fail the task; configuration errors do, so asynq
// surfaces them.
func (h *RecalculateHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())
	logger := telemetry.LogFromContext(ctx).WithField("task_type", TypeRecalculate)

	summary, err := h.recalc.RunFullRecalculation(ctx)
	if err != nil {
		logger.WithError(err).Error("Recalculation task failed")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"processed":       summary.Processed,
		"matches_created": summary.MatchesCreated,
		"errors":          len(summary.Errors),
	}).Info("Recalculation task finished")
	return nil
}

// DailyReminderHandler sends "tomorrow you have company" messages.
type DailyReminderHandler struct {
	users      UserLister
	overview   OverviewBuilder
	dispatcher notification.Dispatcher
}

// NewDailyReminderHandler creates the daily reminder handler.
func NewDailyReminderHandler(users UserLister, overview OverviewBuilder, dispatcher notification.Dispatcher) *DailyReminderHandler {
	return &DailyReminderHandler{users: users, overview: overview, dispatcher: dispatcher}
}

// ProcessTask fans the reminder out over every user with active slots.
// Delivery is best effort; one failing user never blocks the rest.
func (h *DailyReminderHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())
	logger := telemetry.LogFromContext(ctx).WithField("task_type", TypeDailyReminder)

	userIDs, err := h.users.UserIDsWithActiveSlots(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to enumerate users for reminders")
		return apperrors.NewConfigurationError("unable to enumerate reminder recipients").
			WithMetadata("cause", err.Error())
	}

	sent := 0
	for _, userID := range userIDs {
		slots, err := h.overview.TomorrowSlotsWithMatches(ctx, userID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("Reminder lookup failed, user skipped")
			continue
		}
		if len(slots) == 0 {
			continue
		}
		if err := h.dispatcher.SendReminder(ctx, userID, slots); err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("Reminder delivery failed, user skipped")
			continue
		}
		sent++
	}

	logger.WithFields(map[string]interface{}{
		"candidates": len(userIDs),
		"sent":       sent,
	}).Info("Daily reminder task finished")
	return nil
}

// WeeklyDigestHandler sends the weekly match summary.
type WeeklyDigestHandler struct {
	users      UserLister
	overview   OverviewBuilder
	dispatcher notification.Dispatcher
	now        func() time.Time
}

// NewWeeklyDigestHandler creates the weekly digest handler.
func NewWeeklyDigestHandler(users UserLister, overview OverviewBuilder, dispatcher notification.Dispatcher) *WeeklyDigestHandler {
	return &WeeklyDigestHandler{users: users, overview: overview, dispatcher: dispatcher, now: time.Now}
}

// ProcessTask builds and delivers a digest per user, best effort.
func (h *WeeklyDigestHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	ctx = telemetry.WithCorrelationID(ctx, telemetry.NewCorrelationID())
	logger := telemetry.LogFromContext(ctx).WithField("task_type", TypeWeeklyDigest)

	userIDs, err := h.users.UserIDsWithActiveSlots(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to enumerate users for digests")
		return apperrors.NewConfigurationError("unable to enumerate digest recipients").
			WithMetadata("cause", err.Error())
	}

	since := h.now().Add(-digestWindow)
	sent := 0
	for _, userID := range userIDs {
		overview, err := h.overview.BuildOverview(ctx, userID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("Digest build failed, user skipped")
			continue
		}
		if overview.MatchesCount == 0 {
			continue
		}

		newMatches, err := h.overview.MatchesSince(ctx, userID, since)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Debug("New match count unavailable")
			newMatches = 0
		}

		if err := h.dispatcher.SendDigest(ctx, userID, overview, newMatches); err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("Digest delivery failed, user skipped")
			continue
		}
		sent++
	}

	logger.WithFields(map[string]interface{}{
		"candidates": len(userIDs),
		"sent":       sent,
	}).Info("Weekly digest task finished")
	return nil
}
