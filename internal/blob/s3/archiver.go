package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// orderRecord is the archived JSON form of a ledger order.
type orderRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"`
	Type       string    `json:"type"`
	Quantity   float64   `json:"quantity"`
	Filled     float64   `json:"filled"`
	Price      float64   `json:"price,omitempty"`
	AvgPrice   float64   `json:"avg_price"`
	Commission float64   `json:"commission"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LedgerArchiver implements domain.LedgerArchiver. Each day becomes one
// JSONL object at ledger/<algo>/<date>.jsonl.
type LedgerArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewLedgerArchiver creates an archiver. audit may be nil.
func NewLedgerArchiver(writer domain.BlobWriter, audit domain.AuditStore) *LedgerArchiver {
	return &LedgerArchiver{writer: writer, audit: audit}
}

// ArchiveDays uploads every day and records one audit entry per upload.
func (a *LedgerArchiver) ArchiveDays(ctx context.Context, algo string, days []domain.LedgerDay) error {
	for _, day := range days {
		buf, err := marshalDay(day)
		if err != nil {
			return fmt.Errorf("s3blob: archive %s: %w", day.Date, err)
		}
		path := LedgerPath(algo, day.Date)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return fmt.Errorf("s3blob: archive %s: %w", day.Date, err)
		}
		if a.audit == nil {
			continue
		}
		if err := a.audit.Log(ctx, "ledger.archived", map[string]any{
			"algo":   algo,
			"date":   day.Date,
			"path":   path,
			"orders": len(day.Orders),
		}); err != nil {
			return fmt.Errorf("s3blob: audit archive %s: %w", day.Date, err)
		}
	}
	return nil
}

// LedgerPath is the object key for one archived ledger day.
func LedgerPath(algo, date string) string {
	return fmt.Sprintf("ledger/%s/%s.jsonl", algo, date)
}

func marshalDay(day domain.LedgerDay) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range day.Orders {
		rec := orderRecord{
			ID:         o.ID,
			Symbol:     o.Asset.Symbol,
			Instrument: string(o.Asset.Type),
			Side:       string(o.Side),
			Type:       string(o.Type),
			Quantity:   o.Quantity,
			Filled:     o.Filled,
			Price:      o.Price,
			AvgPrice:   o.AvgPrice,
			Commission: o.Commission,
			Status:     string(o.Status),
			Reason:     o.Reason,
			Strategy:   o.Strategy,
			CreatedAt:  o.CreatedAt,
			UpdatedAt:  o.UpdatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var _ domain.LedgerArchiver = (*LedgerArchiver)(nil)
