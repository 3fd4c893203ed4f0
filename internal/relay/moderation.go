package relay

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Ban denies userID service and drops their binding. It reports false if
// the user was already banned.
func (r *Relay) Ban(ctx context.Context, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ban(ctx, r.logger, userID)
}

// Unban restores service for userID. It reports false if the user was not
// banned. No binding is recreated.
func (r *Relay) Unban(ctx context.Context, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unban(ctx, r.logger, userID)
}

// Who returns the user bound to threadID, or ErrBindingNotFound.
func (r *Relay) Who(threadID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.directory.UserFor(threadID)
	if !ok {
		return 0, fmt.Errorf("%w: thread %d", ErrBindingNotFound, threadID)
	}
	return userID, nil
}

// ReapInactive closes and unbinds every user inactive since cutoff and
// saves the state once. It returns the reaped user ids.
func (r *Relay) ReapInactive(ctx context.Context, cutoff time.Time) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	reaped := slices.Collect(r.tracker.InactiveSince(cutoff))
	for _, userID := range reaped {
		if threadID, ok := r.directory.ThreadFor(userID); ok {
			r.closeThread(ctx, r.logger, threadID)
			r.logger.Info("Reaped inactive thread",
				zap.Int64("user_id", userID),
				zap.Int64("thread_id", threadID))
		}
		r.unbind(userID)
	}
	if len(reaped) > 0 {
		r.persist(ctx)
	}
	return reaped
}

func (r *Relay) ban(ctx context.Context, log *zap.Logger, userID int64) bool {
	if !r.bans.Add(userID) {
		return false
	}
	r.say(ctx, log, TextMessage{ChatID: userID, Text: bannedNoticeText})
	if threadID, ok := r.unbind(userID); ok {
		log.Info("Binding removed by ban",
			zap.Int64("user_id", userID),
			zap.Int64("thread_id", threadID))
	}
	r.persist(ctx)
	return true
}

func (r *Relay) unban(ctx context.Context, log *zap.Logger, userID int64) bool {
	if !r.bans.Remove(userID) {
		return false
	}
	r.persist(ctx)
	r.say(ctx, log, TextMessage{ChatID: userID, Text: unbannedNoticeText})
	return true
}

// handleCommand routes user commands from private chats and staff commands
// from the container. Banned users and non-staff get no answer.
func (r *Relay) handleCommand(ctx context.Context, log *zap.Logger, ev Event) {
	if ev.Private {
		if r.bans.Contains(ev.From.ID) {
			return
		}
		r.handleUserCommand(ctx, log, ev)
		return
	}
	if ev.ChatID != r.containerID || !r.isStaff(ev.From.ID) {
		return
	}

	switch ev.Command {
	case "who":
		r.cmdWho(ctx, log, ev)
	case "ban":
		if userID, ok := r.commandTarget(ctx, log, ev, banUsageText); ok {
			if r.ban(ctx, log, userID) {
				r.replyStaff(ctx, log, ev, fmt.Sprintf(bannedFmt, userID))
			} else {
				r.replyStaff(ctx, log, ev, fmt.Sprintf(alreadyBannedFmt, userID))
			}
		}
	case "unban":
		if userID, ok := r.commandTarget(ctx, log, ev, unbanUsageText); ok {
			if r.unban(ctx, log, userID) {
				r.replyStaff(ctx, log, ev, fmt.Sprintf(unbannedFmt, userID))
			} else {
				r.replyStaff(ctx, log, ev, fmt.Sprintf(notBannedFmt, userID))
			}
		}
	case "close":
		r.cmdClose(ctx, log, ev)
	default:
		r.replyStaff(ctx, log, ev, unknownStaffCmdText)
	}
}

func (r *Relay) handleUserCommand(ctx context.Context, log *zap.Logger, ev Event) {
	switch ev.Command {
	case "start":
		r.replyPrivate(ctx, log, ev, welcomeText)
		if !r.eagerThreads {
			return
		}
		if _, err := r.ensureThread(ctx, log, ev.From); err != nil {
			log.Error("Failed to open thread on start", zap.Error(err))
			return
		}
		r.persist(ctx)
	case "help", "rules":
		r.replyPrivate(ctx, log, ev, rulesText)
	default:
		r.replyPrivate(ctx, log, ev, unknownCommandText)
	}
}

func (r *Relay) cmdWho(ctx context.Context, log *zap.Logger, ev Event) {
	if ev.ThreadID == 0 {
		r.replyStaff(ctx, log, ev, useInThreadText)
		return
	}
	userID, ok := r.directory.UserFor(ev.ThreadID)
	if !ok {
		r.replyStaff(ctx, log, ev, userNotFoundText)
		return
	}
	r.replyStaff(ctx, log, ev, fmt.Sprintf(whoFmt, userID))
}

// cmdClose closes the current thread and drops its binding.
func (r *Relay) cmdClose(ctx context.Context, log *zap.Logger, ev Event) {
	if ev.ThreadID == 0 {
		r.replyStaff(ctx, log, ev, useInThreadText)
		return
	}
	userID, ok := r.directory.UserFor(ev.ThreadID)
	if !ok {
		r.replyStaff(ctx, log, ev, userNotFoundText)
		return
	}
	r.unbind(userID)
	r.persist(ctx)
	r.replyStaff(ctx, log, ev, fmt.Sprintf(closedFmt, userID))
	r.closeThread(ctx, log, ev.ThreadID)
}

// commandTarget picks the user a moderation command applies to: the
// numeric argument if given, otherwise the owner of the current thread.
func (r *Relay) commandTarget(ctx context.Context, log *zap.Logger, ev Event, usage string) (int64, bool) {
	if len(ev.Args) > 0 {
		userID, err := strconv.ParseInt(ev.Args[0], 10, 64)
		if err != nil || userID <= 0 {
			r.replyStaff(ctx, log, ev, usage)
			return 0, false
		}
		return userID, true
	}
	if ev.ThreadID == 0 {
		r.replyStaff(ctx, log, ev, usage)
		return 0, false
	}
	userID, ok := r.directory.UserFor(ev.ThreadID)
	if !ok {
		r.replyStaff(ctx, log, ev, userNotFoundText)
		return 0, false
	}
	return userID, true
}
