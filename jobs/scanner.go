/*
scanner.go - Periodic reorder-level scan

PURPOSE:
  Periodically lists the stock levels at or below their item's reorder level
  and enqueues one reorder-alert task per (item, location).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans once immediately on start
  - Task IDs are derived from the pair and the interval window, and
    completed tasks are retained for one interval, so a pair that stays low
    is alerted once per window no matter how many instances scan

CONFIGURATION:
  - Interval: How often to scan (default: 1 hour)
  - Enabled: Whether the scanner is active (default: true)

USAGE:
  scanner := NewReorderScanner(ledger, client, logger)
  scanner.Start()
  // ... later
  scanner.Stop()

SEE ALSO:
  - tasks.go: Task payload and handler
  - worker.go: asynq server that runs the handler
*/
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/warp/stock-engine/inventory"
)

// LevelReader is the slice of inventory.Ledger the scanner needs.
type LevelReader interface {
	StockLevels(ctx context.Context, filter inventory.LevelFilter) ([]inventory.StockLevel, error)
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReorderScanner enqueues reorder alerts on a ticker.
type ReorderScanner struct {
	Levels   LevelReader
	Queue    Enqueuer
	Interval time.Duration
	Enabled  bool

	logger zerolog.Logger
	now    func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReorderScanner creates a new scanner.
func NewReorderScanner(levels LevelReader, queue Enqueuer, logger zerolog.Logger) *ReorderScanner {
	return &ReorderScanner{
		Levels:   levels,
		Queue:    queue,
		Interval: 1 * time.Hour,
		Enabled:  true,
		logger:   logger.With().Str("component", "reorder_scanner").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scanner.
func (rs *ReorderScanner) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info().Msg("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.logger.Info().Dur("interval", rs.Interval).Msg("started")
}

// Stop stops the scanner and waits for an in-flight scan.
func (rs *ReorderScanner) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info().Msg("stopped")
	}
}

func (rs *ReorderScanner) run() {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-rs.stop
		cancel()
	}()

	rs.scanAndLog(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.scanAndLog(ctx)
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReorderScanner) scanAndLog(ctx context.Context) {
	n, err := rs.ScanOnce(ctx)
	if err != nil {
		rs.logger.Error().Err(err).Msg("scan failed")
		return
	}
	rs.logger.Debug().Int("enqueued", n).Msg("scan complete")
}

// ScanOnce enqueues an alert per low pair and returns how many were enqueued.
// Pairs already alerted within the interval are skipped.
func (rs *ReorderScanner) ScanOnce(ctx context.Context) (int, error) {
	levels, err := rs.Levels.StockLevels(ctx, inventory.LevelFilter{BelowReorderOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list low stock: %w", err)
	}

	enqueued := 0
	now := rs.now()
	for _, lvl := range levels {
		task, err := NewReorderAlertTask(ReorderAlertPayload{
			ItemID:       lvl.ItemID,
			LocationID:   lvl.LocationID,
			Quantity:     lvl.Quantity,
			ReorderLevel: lvl.ReorderLevel,
			DetectedAt:   now,
		})
		if err != nil {
			return enqueued, err
		}

		_, err = rs.Queue.EnqueueContext(ctx, task,
			asynq.Queue(QueueDefault),
			asynq.TaskID(alertTaskID(lvl.ItemID, lvl.LocationID, now, rs.Interval)),
			asynq.Retention(rs.Interval),
		)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
			// already alerted this interval
		default:
			return enqueued, fmt.Errorf("enqueue alert for item %d at location %d: %w", lvl.ItemID, lvl.LocationID, err)
		}
	}
	return enqueued, nil
}

// alertTaskID is stable for a pair within one interval window.
func alertTaskID(itemID inventory.ItemID, locationID inventory.LocationID, now time.Time, interval time.Duration) string {
	window := now.Truncate(interval).Unix()
	return fmt.Sprintf("reorder:%d:%d:%d", itemID, locationID, window)
}
