// Package relay routes private user messages into per-user staff threads
// and staff replies back to users. It owns the user/thread bindings, the
// activity records and the ban set, and persists them after every change.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds each platform and storage call.
const DefaultCallTimeout = 15 * time.Second

// Saver persists a state snapshot.
type Saver interface {
	Save(ctx context.Context, snapshot models.Snapshot) error
}

// Loader returns the last saved snapshot, or an empty one.
type Loader interface {
	Load(ctx context.Context) (models.Snapshot, error)
}

// Options configures a Relay.
type Options struct {
	ContainerID int64    // staff forum chat
	Platform    Platform // required
	Store       Saver    // optional; state is memory-only without it
	Logger      *zap.Logger

	// StaffIDs restricts relaying and commands in the container to these
	// senders. Empty means every non-bot member counts as staff.
	StaffIDs []int64

	// EagerThreads opens the user's thread on /start instead of on the
	// first message.
	EagerThreads bool

	// AnnounceThreads posts a short note into each newly created thread.
	AnnounceThreads bool

	CallTimeout time.Duration   // defaults to DefaultCallTimeout
	Now         func() time.Time // defaults to UTC wall clock at microsecond precision
}

// Relay is the routing core. All exported methods are serialized by one
// mutex, so resolve-or-create for a user can never interleave with another
// event or with a reaper sweep.
type Relay struct {
	mu sync.Mutex

	containerID     int64
	platform        Platform
	store           Saver
	logger          *zap.Logger
	staff           map[int64]struct{}
	eagerThreads    bool
	announceThreads bool
	callTimeout     time.Duration
	now             func() time.Time

	directory *Directory
	tracker   *Tracker
	bans      BanSet
}

// New creates a Relay with empty state.
func New(opts Options) (*Relay, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("relay: platform is required")
	}
	if opts.ContainerID == 0 {
		return nil, fmt.Errorf("relay: container id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	staff := make(map[int64]struct{}, len(opts.StaffIDs))
	for _, id := range opts.StaffIDs {
		staff[id] = struct{}{}
	}

	return &Relay{
		containerID:     opts.ContainerID,
		platform:        opts.Platform,
		store:           opts.Store,
		logger:          logger,
		staff:           staff,
		eagerThreads:    opts.EagerThreads,
		announceThreads: opts.AnnounceThreads,
		callTimeout:     timeout,
		now:             now,
		directory:       NewDirectory(),
		tracker:         NewTracker(),
		bans:            make(BanSet),
	}, nil
}

// Restore replaces the in-memory state with the snapshot returned by l.
// A failed load is only logged and keeps the current state, which is
// empty at startup.
func (r *Relay) Restore(ctx context.Context, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	snapshot, err := l.Load(ctx)
	if err != nil {
		r.logger.Warn("Starting with empty state",
			zap.Error(fmt.Errorf("%w: load: %v", ErrPersistenceUnavailable, err)))
		return
	}
	r.apply(snapshot)
	r.logger.Info("State restored",
		zap.Int("bindings", r.directory.Len()),
		zap.Int("banned", len(r.bans)))
}

// Snapshot returns the current state in its durable form.
func (r *Relay) Snapshot() models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Handle processes one inbound event. Platform failures are turned into
// user or staff notices and never returned.
func (r *Relay) Handle(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.From.IsBot {
		return
	}
	log := r.logger.With(
		zap.String("event_id", ev.ID),
		zap.Stringer("kind", ev.Kind),
		zap.Int64("chat_id", ev.ChatID),
		zap.Int64("from_id", ev.From.ID))

	switch ev.Kind {
	case EventPrivate:
		r.handleInbound(ctx, log, ev)
	case EventThread:
		r.handleOutbound(ctx, log, ev)
	case EventCommand:
		r.handleCommand(ctx, log, ev)
	default:
		log.Debug("Ignoring unclassified event")
	}
}

func (r *Relay) apply(snapshot models.Snapshot) {
	r.directory = NewDirectory()
	r.tracker = NewTracker()
	r.bans = make(BanSet)

	restoredAt := r.now()
	for _, b := range snapshot.Bindings {
		if err := r.directory.bind(b.UserID, b.ThreadID); err != nil {
			r.logger.Warn("Skipping conflicting binding", zap.Error(err))
			continue
		}
		at := b.LastActiveAt
		if at.IsZero() {
			at = restoredAt
		}
		r.tracker.Touch(b.UserID, at)
	}
	for _, id := range snapshot.Banned {
		r.bans.Add(id)
	}
}

func (r *Relay) snapshot() models.Snapshot {
	snapshot := models.Snapshot{
		Bindings: make([]models.Binding, 0, r.directory.Len()),
		Banned:   r.bans.List(),
		SavedAt:  r.now(),
	}
	for userID, threadID := range r.directory.byUser {
		at, _ := r.tracker.LastSeen(userID)
		snapshot.Bindings = append(snapshot.Bindings, models.Binding{
			UserID:       userID,
			ThreadID:     threadID,
			LastActiveAt: at,
		})
	}
	snapshot.Normalize()
	return snapshot
}

// persist writes the full state through to the store. A failed save keeps
// the in-memory state authoritative until the next successful one.
func (r *Relay) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if err := r.store.Save(ctx, r.snapshot()); err != nil {
		r.logger.Error("Failed to save state",
			zap.Error(fmt.Errorf("%w: save: %v", ErrPersistenceUnavailable, err)))
	}
}

func (r *Relay) isStaff(userID int64) bool {
	if len(r.staff) == 0 {
		return true
	}
	_, ok := r.staff[userID]
	return ok
}

// unbind drops the binding and the activity record of userID.
func (r *Relay) unbind(userID int64) (int64, bool) {
	threadID, ok := r.directory.Remove(userID)
	r.tracker.Forget(userID)
	return threadID, ok
}

func (r *Relay) sendText(ctx context.Context, msg TextMessage) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.platform.SendText(ctx, msg)
}

func (r *Relay) copyMessage(ctx context.Context, req CopyRequest) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.platform.CopyMessage(ctx, req)
}

func (r *Relay) createThread(ctx context.Context, title string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.platform.CreateThread(ctx, r.containerID, title)
}

func (r *Relay) closeThread(ctx context.Context, log *zap.Logger, threadID int64) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if err := r.platform.CloseThread(ctx, r.containerID, threadID); err != nil {
		log.Warn("Failed to close thread", zap.Int64("thread_id", threadID), zap.Error(err))
	}
}

// say sends a best-effort text and only logs failures.
func (r *Relay) say(ctx context.Context, log *zap.Logger, msg TextMessage) {
	if _, err := r.sendText(ctx, msg); err != nil {
		log.Warn("Failed to send message",
			zap.Int64("chat_id", msg.ChatID),
			zap.Int64("thread_id", msg.ThreadID),
			zap.Error(err))
	}
}

// replyPrivate answers a user in their private chat.
func (r *Relay) replyPrivate(ctx context.Context, log *zap.Logger, ev Event, text string) {
	r.say(ctx, log, TextMessage{ChatID: ev.ChatID, Text: text})
}

// replyStaff answers in the thread (or container) the event came from.
func (r *Relay) replyStaff(ctx context.Context, log *zap.Logger, ev Event, text string) {
	r.say(ctx, log, TextMessage{
		ChatID:   ev.ChatID,
		ThreadID: ev.ThreadID,
		ReplyTo:  ev.MessageID,
		Text:     text,
	})
}
