package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/store/memory"
)

// fakeQueue records tasks and rejects a repeated task ID like asynq does.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	ids   map[string]bool
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	if q.ids == nil {
		q.ids = make(map[string]bool)
	}
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id := o.Value().(string)
			if q.ids[id] {
				return nil, asynq.ErrTaskIDConflict
			}
			q.ids[id] = true
		}
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type fixture struct {
	store  *memory.Store
	ledger *inventory.DefaultLedger
	bolt   inventory.Item
	nut    inventory.Item
	main   inventory.Location
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	bolt, err := store.SaveItem(ctx, inventory.Item{Name: "Bolt", SKU: "B", ReorderLevel: decimal.NewFromInt(5)})
	require.NoError(t, err)
	nut, err := store.SaveItem(ctx, inventory.Item{Name: "Nut", SKU: "N", ReorderLevel: decimal.NewFromInt(5)})
	require.NoError(t, err)
	main, err := store.SaveLocation(ctx, inventory.Location{Name: "Main"})
	require.NoError(t, err)
	return fixture{store: store, ledger: inventory.NewLedger(store, store), bolt: bolt, nut: nut, main: main}
}

func (f fixture) receive(t *testing.T, item inventory.Item, qty int64) {
	t.Helper()
	_, err := f.ledger.Append(context.Background(), inventory.Movement{
		ItemID: item.ID, LocationID: f.main.ID, Kind: inventory.KindReceipt,
		Quantity: decimal.NewFromInt(qty), Date: inventory.Today(), CorrelationID: "c",
	})
	require.NoError(t, err)
}

func TestScanOnce_EnqueuesOnlyLowPairs(t *testing.T) {
	// GIVEN: Bolt exactly at its reorder level, nut well above
	f := newFixture(t)
	f.receive(t, f.bolt, 5)
	f.receive(t, f.nut, 50)
	queue := &fakeQueue{}
	scanner := NewReorderScanner(f.ledger, queue, zerolog.Nop())

	// WHEN: One scan runs
	n, err := scanner.ScanOnce(context.Background())

	// THEN: Only the bolt is alerted
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskReorderAlert, queue.tasks[0].Type())

	var payload ReorderAlertPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, f.bolt.ID, payload.ItemID)
	assert.True(t, payload.Quantity.Equal(decimal.NewFromInt(5)))
}

func TestScanOnce_SameWindowIsNotRealerted(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.bolt, 1)
	queue := &fakeQueue{}
	scanner := NewReorderScanner(f.ledger, queue, zerolog.Nop())
	fixed := time.Date(2026, 5, 1, 10, 15, 0, 0, time.UTC)
	scanner.now = func() time.Time { return fixed }

	first, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	second, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	// Next window alerts again
	scanner.now = func() time.Time { return fixed.Add(time.Hour) }
	third, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, third)
}

func TestScanOnce_PropagatesQueueErrors(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.bolt, 1)
	queue := &fakeQueue{err: errors.New("redis down")}
	scanner := NewReorderScanner(f.ledger, queue, zerolog.Nop())

	_, err := scanner.ScanOnce(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestScanner_StartStop(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.bolt, 1)
	queue := &fakeQueue{}
	scanner := NewReorderScanner(f.ledger, queue, zerolog.Nop())
	scanner.Interval = time.Hour

	scanner.Start()
	assert.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.tasks) == 1
	}, time.Second, 5*time.Millisecond)
	scanner.Stop()
	scanner.Stop()
}

func TestReorderAlertHandler(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.bolt, 2)
	handler := NewReorderAlertHandler(f.ledger, f.store, zerolog.Nop())
	ctx := context.Background()

	t.Run("processes a valid alert", func(t *testing.T) {
		task, err := NewReorderAlertTask(ReorderAlertPayload{ItemID: f.bolt.ID, LocationID: f.main.ID})
		require.NoError(t, err)
		assert.NoError(t, handler.ProcessTask(ctx, task))
	})

	t.Run("bad payload is not retried", func(t *testing.T) {
		err := handler.ProcessTask(ctx, asynq.NewTask(TaskReorderAlert, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("deleted item is not retried", func(t *testing.T) {
		task, err := NewReorderAlertTask(ReorderAlertPayload{ItemID: 999, LocationID: f.main.ID})
		require.NoError(t, err)
		assert.ErrorIs(t, handler.ProcessTask(ctx, task), asynq.SkipRetry)
	})
}

func TestAlertTaskID_StableWithinWindow(t *testing.T) {
	a := alertTaskID(1, 2, time.Date(2026, 1, 1, 10, 1, 0, 0, time.UTC), time.Hour)
	b := alertTaskID(1, 2, time.Date(2026, 1, 1, 10, 59, 0, 0, time.UTC), time.Hour)
	c := alertTaskID(1, 2, time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC), time.Hour)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
