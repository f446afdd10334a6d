//go:build integration

package storage_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/rezonia/stock-intake/internal/infra"
	"github.com/rezonia/stock-intake/internal/ledger"
	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/model"
	"github.com/rezonia/stock-intake/internal/storage"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func setupDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("stock_intake_test"),
		tcPostgres.WithUsername("intake"),
		tcPostgres.WithPassword("intake"),
		testcontainers.WithWaitStrategy(tcPostgres.BasicWaitStrategies()...),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDatabase(dsn)
	require.NoError(t, err)
	return db
}

func TestLedgerStore_Postgres(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()

	store := storage.NewLedgerStore(db)
	require.NoError(t, store.Migrate(ctx))

	lg := ledger.New(store,
		ledger.WithLogger(logger.Nop()),
		ledger.WithClock(func() time.Time { return t0.Add(24 * time.Hour) }),
	)

	bb := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("receive creates batch and event", func(t *testing.T) {
		ev, err := lg.Receive(ctx, 7, bb, 12, t0, nil)
		require.NoError(t, err)
		assert.Positive(t, ev.Seq)

		b, err := store.Batch(ctx, ev.BatchID)
		require.NoError(t, err)
		assert.Equal(t, int64(7), b.ProductID)
		assert.True(t, b.BestBefore.Equal(bb))

		stock, err := lg.BatchStock(ctx, ev.BatchID)
		require.NoError(t, err)
		assert.Equal(t, model.Stock{Storage: 12}, stock.Stock)
	})

	t.Run("second delivery joins open batch", func(t *testing.T) {
		ev, err := lg.Receive(ctx, 7, bb, 3, t0.Add(time.Hour), nil)
		require.NoError(t, err)

		ps, err := lg.ProductStock(ctx, 7)
		require.NoError(t, err)
		require.Len(t, ps.Batches, 1)
		assert.Equal(t, ev.BatchID, ps.Batches[0].Batch.ID)
		assert.Equal(t, 15, ps.TotalStorage)
	})

	t.Run("timestamp ties keep append order", func(t *testing.T) {
		ps, err := lg.ProductStock(ctx, 7)
		require.NoError(t, err)
		batchID := ps.Batches[0].Batch.ID

		at := t0.Add(2 * time.Hour)
		require.NoError(t, lg.TryAppend(ctx, &model.ShelvingEvent{
			BatchID: batchID, Type: model.MovedToShelf, Quantity: 15, OccurredAt: at,
		}))
		require.NoError(t, lg.TryAppend(ctx, &model.ShelvingEvent{
			BatchID: batchID, Type: model.RemovedFromShelf, Quantity: 15, OccurredAt: at,
		}))

		events, err := store.Events(ctx, batchID)
		require.NoError(t, err)
		require.Len(t, events, 4)
		for i := 1; i < len(events); i++ {
			assert.Less(t, events[i-1].Seq, events[i].Seq)
		}
	})

	t.Run("unknown batch", func(t *testing.T) {
		_, err := store.Batch(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrBatchNotFound)

		err = store.Append(ctx, &model.ShelvingEvent{
			ID: uuid.New(), BatchID: uuid.New(), Type: model.AddedToStorage, Quantity: 1, OccurredAt: t0,
		})
		assert.ErrorIs(t, err, model.ErrBatchNotFound)
	})
}

func TestLedgerStore_CompetingWithdrawals(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()

	store := storage.NewLedgerStore(db)
	require.NoError(t, store.Migrate(ctx))
	lg := ledger.New(store,
		ledger.WithLogger(logger.Nop()),
		ledger.WithClock(func() time.Time { return t0.Add(24 * time.Hour) }),
	)

	ev, err := lg.Receive(ctx, 1, t0, 10, t0, nil)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lg.TryAppend(ctx, &model.ShelvingEvent{
				BatchID: ev.BatchID, Type: model.RemovedFromStorage, Quantity: 7, OccurredAt: t0.Add(time.Hour),
			})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, model.ErrInsufficientStock):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(1), rejected.Load())
}

func TestLedgerStore_AppendRejectsOnStaleSnapshot(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()

	store := storage.NewLedgerStore(db)
	require.NoError(t, store.Migrate(ctx))

	batch := &model.Batch{ID: uuid.New(), ProductID: 3, BestBefore: t0, CreatedAt: t0}
	require.NoError(t, store.CreateBatch(ctx, batch))
	require.NoError(t, store.Append(ctx, &model.ShelvingEvent{
		ID: uuid.New(), BatchID: batch.ID, Type: model.AddedToStorage, Quantity: 10, OccurredAt: t0,
	}))

	// both withdrawals were checked against the same 10 units
	first := &model.ShelvingEvent{
		ID: uuid.New(), BatchID: batch.ID, Type: model.RemovedFromStorage, Quantity: 7, OccurredAt: t0.Add(time.Hour),
	}
	second := &model.ShelvingEvent{
		ID: uuid.New(), BatchID: batch.ID, Type: model.RemovedFromStorage, Quantity: 7, OccurredAt: t0.Add(time.Hour),
	}
	require.NoError(t, store.Append(ctx, first))
	err := store.Append(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInsufficientStock)

	events, err := store.Events(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.Stock{Storage: 3}, ledger.Fold(events))
}

func TestLedgerStore_WithdrawalsFromSeparateProcesses(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()

	store := storage.NewLedgerStore(db)
	require.NoError(t, store.Migrate(ctx))
	clock := ledger.WithClock(func() time.Time { return t0.Add(24 * time.Hour) })

	ev, err := ledger.New(store, ledger.WithLogger(logger.Nop()), clock).Receive(ctx, 1, t0, 10, t0, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		locker func() ledger.Locker
	}{
		{"private in-process locks", func() ledger.Locker { return ledger.NewKeyedMutex() }},
		{"advisory locks", func() ledger.Locker { return storage.NewAdvisoryLocker(db) }},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// top the batch back up to 10 for each case
			if i > 0 {
				lg := ledger.New(store, ledger.WithLogger(logger.Nop()), clock)
				stock, err := lg.BatchStock(ctx, ev.BatchID)
				require.NoError(t, err)
				require.NoError(t, lg.TryAppend(ctx, &model.ShelvingEvent{
					BatchID: ev.BatchID, Type: model.AddedToStorage, Quantity: 10 - stock.Stock.Storage, OccurredAt: t0.Add(time.Hour),
				}))
			}

			var (
				wg       sync.WaitGroup
				accepted atomic.Int32
				rejected atomic.Int32
			)
			for p := 0; p < 2; p++ {
				// one ledger per process, nothing shared but the database
				lg := ledger.New(store, ledger.WithLogger(logger.Nop()), ledger.WithLocker(tt.locker()), clock)
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := lg.TryAppend(ctx, &model.ShelvingEvent{
						BatchID: ev.BatchID, Type: model.RemovedFromStorage, Quantity: 7, OccurredAt: t0.Add(2 * time.Hour),
					})
					switch {
					case err == nil:
						accepted.Add(1)
					case errors.Is(err, model.ErrInsufficientStock):
						rejected.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), accepted.Load())
			assert.Equal(t, int32(1), rejected.Load())

			events, err := store.Events(ctx, ev.BatchID)
			require.NoError(t, err)
			_, err = ledger.Replay(events)
			assert.NoError(t, err)
		})
	}
}

func TestAdvisoryLocker(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()

	a := storage.NewAdvisoryLocker(db)
	b := storage.NewAdvisoryLocker(db)

	unlock, err := a.Lock(ctx, "batch-1")
	require.NoError(t, err)

	t.Run("held key blocks", func(t *testing.T) {
		tctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		_, err := b.Lock(tctx, "batch-1")
		assert.Error(t, err)
	})

	t.Run("other keys are free", func(t *testing.T) {
		other, err := b.Lock(ctx, "batch-2")
		require.NoError(t, err)
		other()
	})

	unlock()
	unlock()

	t.Run("released key is free", func(t *testing.T) {
		tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		again, err := b.Lock(tctx, "batch-1")
		require.NoError(t, err)
		again()
	})
}

func TestInvoiceStore_Postgres(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()

	store := storage.NewInvoiceStore(db)
	require.NoError(t, store.Migrate(ctx))

	number := "R-2024-0815"
	supplier := "Getränke Müller"
	pid := int64(42)
	bb := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	inv := &model.Invoice{
		ID:             uuid.New(),
		Number:         &number,
		Supplier:       &supplier,
		PriceReduction: decimal.RequireFromString("0.50"),
		CreatedAt:      t0,
		Lines: []model.InvoiceLine{
			{
				ID: uuid.New(), ProductID: &pid, ProductName: "Cola 0,33l",
				Quantity: 24, UnitPrice: decimal.RequireFromString("0.4500"),
				TotalPrice: decimal.RequireFromString("10.80"), BestBefore: &bb,
				MatchType: model.MatchExact, Confidence: 1,
			},
			{
				ID: uuid.New(), ProductName: "Pfand",
				Quantity: 1, UnitPrice: decimal.RequireFromString("3.4200"),
				TotalPrice: decimal.RequireFromString("3.42"),
				MatchType: model.MatchNone,
			},
		},
	}
	inv.CalculateTotals()

	require.NoError(t, store.SaveInvoice(ctx, inv))
	require.NoError(t, store.MarkStocked(ctx, inv.ID, []uuid.UUID{inv.Lines[0].ID}))

	got, err := store.Invoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, number, *got.Number)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("13.72")), got.Total.String())
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Cola 0,33l", got.Lines[0].ProductName)
	assert.True(t, got.Lines[0].Stocked)
	assert.False(t, got.Lines[1].Stocked)
	assert.Nil(t, got.Lines[1].ProductID)

	_, err = store.Invoice(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrInvoiceNotFound)
}
