package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rezonia/stock-intake/internal/ledger"
	"github.com/rezonia/stock-intake/internal/model"
)

type batchRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID  int64     `gorm:"not null;index"`
	BestBefore time.Time `gorm:"type:date;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (batchRow) TableName() string { return "stock_batches" }

// eventRow.Seq is the append order the fold relies on for timestamp ties
type eventRow struct {
	Seq                 int64      `gorm:"primaryKey;autoIncrement"`
	ID                  uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	BatchID             uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type                string     `gorm:"size:32;not null"`
	Quantity            int        `gorm:"not null"`
	OccurredAt          time.Time  `gorm:"not null"`
	SourceInvoiceItemID *uuid.UUID `gorm:"type:uuid"`
}

func (eventRow) TableName() string { return "shelving_events" }

func (r batchRow) toModel() model.Batch {
	return model.Batch{
		ID:         r.ID,
		ProductID:  r.ProductID,
		BestBefore: model.DateOnly(r.BestBefore),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func (r eventRow) toModel() model.ShelvingEvent {
	return model.ShelvingEvent{
		ID:                  r.ID,
		BatchID:             r.BatchID,
		Type:                model.EventType(r.Type),
		Quantity:            r.Quantity,
		OccurredAt:          r.OccurredAt.UTC(),
		SourceInvoiceItemID: r.SourceInvoiceItemID,
		Seq:                 r.Seq,
	}
}

// LedgerStore keeps batches and shelving events in Postgres
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore creates a store on db
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Migrate creates the ledger tables
func (s *LedgerStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&batchRow{}, &eventRow{})
}

// Append locks the batch row, replays the stored events together with ev
// and inserts ev only when the batch stays non-negative. Processes that
// share the database serialize on the row lock, so the check and the
// insert are one unit even without a shared Locker.
func (s *LedgerStore) Append(ctx context.Context, ev *model.ShelvingEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch batchRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", ev.BatchID).
			Take(&batch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrBatchNotFound
		} else if err != nil {
			return err
		}

		var rows []eventRow
		if err := tx.Where("batch_id = ?", ev.BatchID).Order("seq").Find(&rows).Error; err != nil {
			return err
		}
		events := make([]model.ShelvingEvent, 0, len(rows)+1)
		for _, r := range rows {
			events = append(events, r.toModel())
		}
		if _, err := ledger.Replay(append(events, *ev)); err != nil {
			return err
		}

		row := eventRow{
			ID:                  ev.ID,
			BatchID:             ev.BatchID,
			Type:                string(ev.Type),
			Quantity:            ev.Quantity,
			OccurredAt:          ev.OccurredAt,
			SourceInvoiceItemID: ev.SourceInvoiceItemID,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		ev.Seq = row.Seq
		return nil
	})
}

func (s *LedgerStore) Events(ctx context.Context, batchID uuid.UUID) ([]model.ShelvingEvent, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.ShelvingEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *LedgerStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	row := batchRow{
		ID:         b.ID,
		ProductID:  b.ProductID,
		BestBefore: b.BestBefore,
		CreatedAt:  b.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *LedgerStore) Batch(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var row batchRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}
	b := row.toModel()
	return &b, nil
}

func (s *LedgerStore) BatchesByProduct(ctx context.Context, productID int64) ([]model.Batch, error) {
	var rows []batchRow
	if err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Batch, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
