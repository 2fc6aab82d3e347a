package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	fail    bool
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.fail {
		return errors.New("boom")
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[path] = b
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveDays(t *testing.T) {
	w, audit := &memWriter{}, &memAudit{}
	a := NewLedgerArchiver(w, audit)

	days := []domain.LedgerDay{
		{Date: "2024-01-02", Orders: []domain.Order{
			{ID: "a", Asset: domain.Spot("ACME"), Side: domain.OrderSideBuy, Quantity: 5, Filled: 5, Status: domain.OrderStatusComplete},
			{ID: "b", Asset: domain.Spot("ACME"), Side: domain.OrderSideSell, Quantity: 2, Status: domain.OrderStatusCancelled},
		}},
		{Date: "2024-01-03"},
	}
	require.NoError(t, a.ArchiveDays(context.Background(), "momo", days))

	body := w.objects["ledger/momo/2024-01-02.jsonl"]
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"a"`)
	assert.Contains(t, lines[1], `"status":"cancelled"`)

	assert.Contains(t, w.objects, "ledger/momo/2024-01-03.jsonl")
	assert.Empty(t, bytes.TrimSpace(w.objects["ledger/momo/2024-01-03.jsonl"]))
	assert.Equal(t, []string{"ledger.archived", "ledger.archived"}, audit.events)
}

func TestArchiveDaysUploadError(t *testing.T) {
	a := NewLedgerArchiver(&memWriter{fail: true}, nil)
	err := a.ArchiveDays(context.Background(), "momo", []domain.LedgerDay{{Date: "2024-01-02"}})
	assert.ErrorContains(t, err, "2024-01-02")
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "http://x", endpointURL("http://x", true))
}
