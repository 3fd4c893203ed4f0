package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// handleOutbound relays a staff message from a thread to its user.
func (r *Relay) handleOutbound(ctx context.Context, log *zap.Logger, ev Event) {
	if ev.ChatID != r.containerID || ev.ThreadID == 0 {
		return
	}
	if !r.isStaff(ev.From.ID) {
		log.Debug("Ignoring thread message from non-staff member")
		return
	}

	userID, ok := r.directory.UserFor(ev.ThreadID)
	if !ok {
		log.Info("Reply in unbound thread", zap.Int64("thread_id", ev.ThreadID))
		r.replyStaff(ctx, log, ev, userNotFoundText)
		return
	}
	log = log.With(zap.Int64("user_id", userID), zap.Int64("thread_id", ev.ThreadID))

	err := r.deliverToUser(ctx, userID, ev)
	switch {
	case errors.Is(err, ErrDeliveryBlocked):
		// The binding stays; the user may unblock the bot later.
		log.Info("User has blocked the bot")
		r.replyStaff(ctx, log, ev, userBlockedText)
		return
	case err != nil:
		log.Error("Failed to deliver staff reply", zap.Error(err))
		r.replyStaff(ctx, log, ev, replyFailedText)
		return
	}

	log.Debug("Staff reply delivered", zap.Bool("media", ev.HasMedia))
	r.tracker.Touch(userID, r.now())
	r.persist(ctx)
}

// deliverToUser sends a short header and then copies the staff message
// verbatim, so formatting, links and attachments survive and the author
// stays anonymous.
func (r *Relay) deliverToUser(ctx context.Context, userID int64, ev Event) error {
	if _, err := r.sendText(ctx, TextMessage{ChatID: userID, Text: staffReplyHeader}); err != nil {
		return err
	}
	_, err := r.copyMessage(ctx, CopyRequest{
		FromChatID: ev.ChatID,
		MessageID:  ev.MessageID,
		ChatID:     userID,
	})
	return err
}
