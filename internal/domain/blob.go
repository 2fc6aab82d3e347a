package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// LedgerArchiver moves ledger days evicted from memory to cold storage.
type LedgerArchiver interface {
	ArchiveDays(ctx context.Context, algo string, days []LedgerDay) error
}
