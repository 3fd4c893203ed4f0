package telegram

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/relay-bot/internal/relay"
	"go.uber.org/zap"
)

const (
	allowedUpdates   = `["message"]`
	pollRetryBackoff = 3 * time.Second
)

// Poller receives updates with getUpdates long polling. Its BotAPI needs
// an HTTP timeout longer than the poll timeout.
type Poller struct {
	api         *tgbotapi.BotAPI
	classifier  Classifier
	pollTimeout time.Duration
	logger      *zap.Logger
}

func NewPoller(api *tgbotapi.BotAPI, classifier Classifier, pollTimeout time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		api:         api,
		classifier:  classifier,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Listen removes any registered webhook and starts polling. The returned
// channel is closed when ctx is cancelled.
func (p *Poller) Listen(ctx context.Context) (<-chan relay.Event, error) {
	if err := makeRequest(ctx, p.api, "deleteWebhook", tgbotapi.Params{}, nil); err != nil {
		p.logger.Warn("Failed to delete webhook before polling", zap.Error(err))
	}

	out := make(chan relay.Event, 100)
	go p.run(ctx, out)
	return out, nil
}

func (p *Poller) run(ctx context.Context, out chan<- relay.Event) {
	defer close(out)
	offset := 0

	for ctx.Err() == nil {
		params := tgbotapi.Params{}
		params.AddNonZero("offset", offset)
		params.AddNonZero("timeout", int(p.pollTimeout/time.Second))
		params["allowed_updates"] = allowedUpdates

		var updates []Update
		if err := makeRequest(ctx, p.api, "getUpdates", params, &updates); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("Failed to get updates, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			ev, ok := p.classifier.Classify(u)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
