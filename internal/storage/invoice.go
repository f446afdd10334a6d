package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rezonia/stock-intake/internal/model"
)

// ErrInvoiceNotFound is returned by Invoice for unknown IDs
var ErrInvoiceNotFound = errors.New("invoice not found")

type invoiceRow struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Number          *string         `gorm:"size:64;index"`
	Date            *time.Time      `gorm:"type:date"`
	Supplier        *string         `gorm:"size:255"`
	Notes           *string         `gorm:"type:text"`
	Subtotal        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AdditionalCosts decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PriceReduction  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"not null"`

	Lines []invoiceLineRow `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

func (invoiceRow) TableName() string { return "invoices" }

type invoiceLineRow struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position      int             `gorm:"not null"`
	ProductID     *int64          `gorm:"index"`
	ProductName   string          `gorm:"size:255;not null"`
	ArticleNumber string          `gorm:"size:32"`
	Quantity      int             `gorm:"not null"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BestBefore    *time.Time      `gorm:"type:date"`
	MatchType     string          `gorm:"size:16;not null"`
	Confidence    float64         `gorm:"not null"`
	Stocked       bool            `gorm:"not null;default:false"`
}

func (invoiceLineRow) TableName() string { return "invoice_lines" }

// InvoiceStore persists assembled invoices with their lines
type InvoiceStore struct {
	db *gorm.DB
}

func NewInvoiceStore(db *gorm.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Migrate creates the invoice tables
func (s *InvoiceStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&invoiceRow{}, &invoiceLineRow{})
}

// SaveInvoice inserts the invoice and its lines in one transaction
func (s *InvoiceStore) SaveInvoice(ctx context.Context, inv *model.Invoice) error {
	row := invoiceRow{
		ID:              inv.ID,
		Number:          inv.Number,
		Date:            inv.Date,
		Supplier:        inv.Supplier,
		Notes:           inv.Notes,
		Subtotal:        inv.Subtotal,
		AdditionalCosts: inv.AdditionalCosts,
		PriceReduction:  inv.PriceReduction,
		Total:           inv.Total,
		CreatedAt:       inv.CreatedAt,
		Lines:           make([]invoiceLineRow, len(inv.Lines)),
	}
	for i, l := range inv.Lines {
		row.Lines[i] = invoiceLineRow{
			ID:            l.ID,
			InvoiceID:     inv.ID,
			Position:      i,
			ProductID:     l.ProductID,
			ProductName:   l.ProductName,
			ArticleNumber: l.ArticleNumber,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			TotalPrice:    l.TotalPrice,
			BestBefore:    l.BestBefore,
			MatchType:     string(l.MatchType),
			Confidence:    l.Confidence,
			Stocked:       l.Stocked,
		}
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// MarkStocked flags lines whose quantity was admitted to the ledger
func (s *InvoiceStore) MarkStocked(ctx context.Context, invoiceID uuid.UUID, lineIDs []uuid.UUID) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&invoiceLineRow{}).
		Where("invoice_id = ? AND id IN ?", invoiceID, lineIDs).
		Update("stocked", true).Error
}

// Invoice loads a stored invoice with its lines in original order
func (s *InvoiceStore) Invoice(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var row invoiceRow
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}

	inv := &model.Invoice{
		ID:              row.ID,
		Number:          row.Number,
		Date:            row.Date,
		Supplier:        row.Supplier,
		Notes:           row.Notes,
		Subtotal:        row.Subtotal,
		AdditionalCosts: row.AdditionalCosts,
		PriceReduction:  row.PriceReduction,
		Total:           row.Total,
		CreatedAt:       row.CreatedAt.UTC(),
		Lines:           make([]model.InvoiceLine, len(row.Lines)),
	}
	for i, l := range row.Lines {
		inv.Lines[i] = model.InvoiceLine{
			ID:            l.ID,
			ProductID:     l.ProductID,
			ProductName:   l.ProductName,
			ArticleNumber: l.ArticleNumber,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			TotalPrice:    l.TotalPrice,
			BestBefore:    l.BestBefore,
			MatchType:     model.MatchType(l.MatchType),
			Confidence:    l.Confidence,
			Stocked:       l.Stocked,
		}
	}
	return inv, nil
}
