package rates

import (
	"context"
	"errors"
	"time"

	"github.com/madflojo/tasks"
	"go.uber.org/zap"

	"github.com/seabucks/dealer"
)

// Warmer periodically refreshes every registered currency so quote requests are
// served from cache instead of waiting on a provider.
type Warmer struct {
	chain     *Chain
	scheduler *tasks.Scheduler
	interval  time.Duration
	codes     []string
	log       *zap.Logger
}

// NewWarmer creates a warmer refreshing chain every interval. Pick an interval below
// the cache TTL.
func NewWarmer(chain *Chain, interval time.Duration, log *zap.Logger) *Warmer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Warmer{
		chain:     chain,
		scheduler: tasks.New(),
		interval:  interval,
		codes:     dealer.CurrencyCodes(),
		log:       log,
	}
}

// Start warms the cache once and then schedules refreshes until ctx ends or Stop is called.
func (w *Warmer) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return errors.New("rates: warmer interval must be positive")
	}
	if err := w.refresh(ctx); err != nil {
		w.log.Warn("rates.warm_failed", zap.Error(err))
	}

	_, err := w.scheduler.Add(&tasks.Task{
		Interval:    w.interval,
		TaskContext: tasks.TaskContext{Context: ctx},
		FuncWithTaskContext: func(tc tasks.TaskContext) error {
			return w.refresh(tc.Context)
		},
		ErrFunc: func(err error) {
			w.log.Warn("rates.warm_failed", zap.Error(err))
		},
	})
	return err
}

func (w *Warmer) refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rates, err := w.chain.Refresh(ctx, w.codes)
	if err != nil {
		return err
	}
	w.log.Debug("rates.warmed", zap.Int("currencies", len(rates)))
	return nil
}

// Stop cancels scheduled refreshes.
func (w *Warmer) Stop() {
	w.scheduler.Stop()
}
