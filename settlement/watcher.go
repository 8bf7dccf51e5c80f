package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/seabucks/dealer/metrics"
)

// DefaultMaxBlockRange caps the span of a single eth_getLogs request.
const DefaultMaxBlockRange uint64 = 2000

// LogSource is the part of an RPC client the watcher needs. *ethclient.Client implements it.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Watcher relays SwapExecuted logs of a deployed router to an EventSink.
type Watcher struct {
	chainID  int64
	router   common.Address
	source   LogSource
	sink     EventSink
	maxRange uint64
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	next    uint64
	started bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithStartBlock begins at block instead of the chain head seen on the first poll.
func WithStartBlock(block uint64) WatcherOption {
	return func(w *Watcher) {
		w.next = block
		w.started = true
	}
}

// WithMaxBlockRange limits how many blocks one poll requests at a time.
func WithMaxBlockRange(n uint64) WatcherOption {
	return func(w *Watcher) {
		if n > 0 {
			w.maxRange = n
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(log *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithWatcherClock overrides the timestamp stamped on relayed events.
func WithWatcherClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) { w.now = now }
}

// NewWatcher creates a watcher for the router at address on chainID.
func NewWatcher(chainID int64, router common.Address, source LogSource, sink EventSink, opts ...WatcherOption) (*Watcher, error) {
	if source == nil || sink == nil {
		return nil, errors.New("settlement: watcher needs a log source and an event sink")
	}
	if router == (common.Address{}) {
		return nil, errors.New("settlement: watcher needs a router address")
	}
	w := &Watcher{
		chainID:  chainID,
		router:   router,
		source:   source,
		sink:     sink,
		maxRange: DefaultMaxBlockRange,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Next returns the first block the next poll will request.
func (w *Watcher) Next() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}

// Poll fetches new SwapExecuted logs up to the current head and publishes them in
// order. The cursor only advances past a range once every event in it was published,
// so a failed publish is retried on the next poll. Event IDs are derived from the log
// position and stay stable across retries.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	head, err := w.source.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read block number: %w", err)
	}
	if !w.started {
		w.next = head + 1
		w.started = true
		w.log.Info("settlement.watch_started",
			zap.Int64("chain_id", w.chainID),
			zap.Uint64("block", w.next),
		)
		return 0, nil
	}

	published := 0
	topic := routerABI.Events["SwapExecuted"].ID
	for w.next <= head {
		to := min(w.next+w.maxRange-1, head)
		logs, err := w.source.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(w.next),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{w.router},
			Topics:    [][]common.Hash{{topic}},
		})
		if err != nil {
			return published, fmt.Errorf("failed to filter logs %d-%d: %w", w.next, to, err)
		}

		for _, l := range logs {
			if l.Removed {
				continue
			}
			ev, err := ParseSwapExecuted(l)
			if err != nil {
				w.log.Warn("settlement.watch_skipped", zap.Stringer("tx", l.TxHash), zap.Error(err))
				continue
			}
			ev.ID = fmt.Sprintf("%s:%d", l.TxHash.Hex(), l.Index)
			ev.ChainID = w.chainID
			ev.Timestamp = w.now().UTC()

			if err := w.sink.Publish(ctx, *ev); err != nil {
				metrics.SettlementsTotal.WithLabelValues("relay_failed").Inc()
				return published, fmt.Errorf("failed to publish %s: %w", ev.ID, err)
			}
			published++
		}
		w.next = to + 1
	}
	return published, nil
}
