package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
	"palmreader/pkg/domain"
)

// UpdateSource is satisfied by *Client and *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// EventHandler processes one inbound event. It must not panic.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt domain.InboundEvent)
}

// PollerConfig tunes the long-poll loop.
type PollerConfig struct {
	Timeout      time.Duration
	Workers      int
	RetryBackoff time.Duration
}

// Poller long-polls getUpdates and dispatches events to a bounded worker pool.
type Poller struct {
	source  UpdateSource
	handler EventHandler
	cfg     PollerConfig
	logger  *slog.Logger
}

func NewPoller(source UpdateSource, handler EventHandler, cfg PollerConfig, logger *slog.Logger) *Poller {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, handler: handler, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled, then waits for in-flight events.
// Handlers get a context that survives the shutdown signal so started
// pipelines can finish; they carry their own deadlines.
func (p *Poller) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	handlerCtx := context.WithoutCancel(ctx)

	offset := 0
	for ctx.Err() == nil {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = int(p.cfg.Timeout / time.Second)
		cfg.AllowedUpdates = []string{"message"}
		// Updates fetched after shutdown are not acknowledged; Telegram redelivers them.
		updates, err := withContext(ctx, func() ([]tgbotapi.Update, error) {
			return p.source.GetUpdates(cfg)
		}, nil)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Warn("get updates failed", "err", err, "retry_in", p.cfg.RetryBackoff)
			sleep(ctx, p.cfg.RetryBackoff)
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			evt, ok := Classify(update)
			if !ok {
				continue
			}
			// Go blocks while all workers are busy, which stalls polling.
			g.Go(func() error {
				p.handler.HandleEvent(handlerCtx, evt)
				return nil
			})
		}
	}
	p.logger.Info("poller stopping, waiting for in-flight events")
	return g.Wait()
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
