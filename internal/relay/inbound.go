package relay

import (
	"context"
	"fmt"

	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// handleInbound relays a private user message into the user's thread.
// Banned users get no reaction at all.
func (r *Relay) handleInbound(ctx context.Context, log *zap.Logger, ev Event) {
	userID := ev.From.ID
	if r.bans.Contains(userID) {
		log.Debug("Dropping message from banned user")
		return
	}
	threadID, err := r.ensureThread(ctx, log, ev.From)
	if err != nil {
		log.Error("Failed to resolve thread", zap.Error(err))
		r.replyPrivate(ctx, log, ev, threadFailedText)
		return
	}
	// Activity and possibly a new binding changed from here on.
	defer r.persist(ctx)

	if err := r.forwardToThread(ctx, log, ev, threadID); err != nil {
		log.Error("Failed to forward message to thread",
			zap.Int64("thread_id", threadID),
			zap.Error(err))
		r.replyPrivate(ctx, log, ev, forwardFailedText)
		return
	}
	r.replyPrivate(ctx, log, ev, deliveredText)
}

// ensureThread resolves or creates the thread of user, records activity
// for it and announces new threads to staff when configured. A user whose
// thread could not be opened gets no activity record.
func (r *Relay) ensureThread(ctx context.Context, log *zap.Logger, user models.User) (int64, error) {
	discard := func(ctx context.Context, threadID int64) {
		r.closeThread(ctx, log, threadID)
	}
	threadID, created, err := r.directory.ResolveOrCreate(ctx, user.ID, user.FullName(), r.createThread, discard)
	if err != nil {
		return 0, err
	}
	r.tracker.Touch(user.ID, r.now())
	if created {
		log.Info("Thread created",
			zap.Int64("user_id", user.ID),
			zap.Int64("thread_id", threadID))
		if r.announceThreads {
			r.say(ctx, log, TextMessage{
				ChatID:   r.containerID,
				ThreadID: threadID,
				Text:     fmt.Sprintf(threadAnnounceFmt, user.ID),
			})
		}
	}
	return threadID, nil
}

// forwardToThread copies the original message verbatim into the thread and
// attaches a header naming the sender. Only a failed copy is an error.
func (r *Relay) forwardToThread(ctx context.Context, log *zap.Logger, ev Event, threadID int64) error {
	copyID, err := r.copyMessage(ctx, CopyRequest{
		FromChatID: ev.ChatID,
		MessageID:  ev.MessageID,
		ChatID:     r.containerID,
		ThreadID:   threadID,
	})
	if err != nil {
		return err
	}
	r.say(ctx, log, TextMessage{
		ChatID:   r.containerID,
		ThreadID: threadID,
		ReplyTo:  copyID,
		Text:     senderHeader(ev.From),
	})
	return nil
}

func senderHeader(u models.User) string {
	name := u.FullName()
	if name == "" {
		name = defaultTitleName
	}
	username := noUsernameText
	if u.Username != "" {
		username = "@" + u.Username
	}
	return fmt.Sprintf(headerFmt, name, u.ID, username)
}
