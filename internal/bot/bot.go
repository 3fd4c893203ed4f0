package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/xaenox/relay-bot/internal/relay"
	"go.uber.org/zap"
)

// Source delivers relay events until ctx is cancelled, then closes the
// channel.
type Source interface {
	Listen(ctx context.Context) (<-chan relay.Event, error)
}

// Handler is the relay engine as seen by the dispatcher.
type Handler interface {
	Handle(ctx context.Context, ev relay.Event)
	ReapInactive(ctx context.Context, cutoff time.Time) []int64
}

type Options struct {
	Handler Handler
	Source  Source
	Logger  *zap.Logger

	// ReapSchedule is a standard cron expression or descriptor such as
	// "@daily". Empty disables the reaper.
	ReapSchedule  string
	InactiveAfter time.Duration

	Now func() time.Time
}

// Bot pumps events from a Source into the relay one at a time and runs the
// inactivity reaper on its schedule from the same loop.
type Bot struct {
	handler       Handler
	source        Source
	logger        *zap.Logger
	schedule      cron.Schedule
	inactiveAfter time.Duration
	now           func() time.Time
}

func New(opts Options) (*Bot, error) {
	if opts.Handler == nil {
		return nil, errors.New("bot: handler is required")
	}
	if opts.Source == nil {
		return nil, errors.New("bot: source is required")
	}
	b := &Bot{
		handler:       opts.Handler,
		source:        opts.Source,
		logger:        opts.Logger,
		inactiveAfter: opts.InactiveAfter,
		now:           opts.Now,
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if opts.ReapSchedule != "" {
		if opts.InactiveAfter <= 0 {
			return nil, errors.New("bot: inactive-after must be positive when the reaper is enabled")
		}
		sched, err := cron.ParseStandard(opts.ReapSchedule)
		if err != nil {
			return nil, fmt.Errorf("bot: parse reap schedule %q: %w", opts.ReapSchedule, err)
		}
		b.schedule = sched
	}
	return b, nil
}

// Start runs the dispatch loop until ctx is cancelled or the source closes.
func (b *Bot) Start(ctx context.Context) error {
	events, err := b.source.Listen(ctx)
	if err != nil {
		return fmt.Errorf("bot: listen: %w", err)
	}

	var reapC <-chan time.Time
	var timer *time.Timer
	if b.schedule != nil {
		timer = time.NewTimer(b.untilNextReap())
		defer timer.Stop()
		reapC = timer.C
	}

	b.logger.Info("Bot started", zap.Bool("reaper", b.schedule != nil))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot stopping")
			return nil

		case ev, ok := <-events:
			if !ok {
				b.logger.Info("Update source closed")
				return nil
			}
			if ev.ID == "" {
				ev.ID = uuid.NewString()
			}
			b.handler.Handle(ctx, ev)

		case <-reapC:
			b.Reap(ctx)
			timer.Reset(b.untilNextReap())
		}
	}
}

// Reap closes threads of users inactive for longer than the configured
// window.
func (b *Bot) Reap(ctx context.Context) []int64 {
	cutoff := b.now().Add(-b.inactiveAfter)
	reaped := b.handler.ReapInactive(ctx, cutoff)
	b.logger.Info("Reaper finished",
		zap.Time("cutoff", cutoff),
		zap.Int("reaped", len(reaped)))
	return reaped
}

func (b *Bot) untilNextReap() time.Duration {
	now := b.now()
	d := b.schedule.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
