package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// TransactionArchiveSource is the slice of the transaction store the archiver
// needs: batched reads below a cutoff and deletion of uploaded rows. The
// Postgres TransactionStore satisfies it.
type TransactionArchiveSource interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.TransactionRecord, error)
	DeleteBatch(ctx context.Context, ids []string) error
}

// TransactionArchiver implements domain.Archiver. It drains aged records from
// the transaction log in batches, uploads each batch as a JSONL object, and
// deletes the rows only after the upload succeeded. A batch that fails to
// upload stops the run; already-uploaded batches stay archived, so reruns are
// safe.
type TransactionArchiver struct {
	writer    domain.BlobWriter
	txns      TransactionArchiveSource
	batchSize int
	logger    *slog.Logger
}

// NewTransactionArchiver creates a TransactionArchiver. batchSize bounds how
// many records go into a single archive object.
func NewTransactionArchiver(writer domain.BlobWriter, txns TransactionArchiveSource, batchSize int, logger *slog.Logger) *TransactionArchiver {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &TransactionArchiver{
		writer:    writer,
		txns:      txns,
		batchSize: batchSize,
		logger:    logger.With("component", "archiver"),
	}
}

// ArchiveTransactions moves every record created strictly before the cutoff
// to blob storage and returns the number of records archived.
func (a *TransactionArchiver) ArchiveTransactions(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		batch, err := a.txns.ListOlderThan(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		path := archivePath(batch[0])
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}
		if err := a.txns.DeleteBatch(ctx, ids); err != nil {
			// The batch is safely in blob storage; the rows will be picked
			// up and re-uploaded on the next run.
			return total, fmt.Errorf("s3blob: archive prune: %w", err)
		}

		total += int64(len(batch))
		a.logger.Info("archived transaction batch",
			"path", path,
			"count", len(batch),
			"oldest", batch[0].CreatedAt.Format(time.RFC3339),
		)

		if len(batch) < a.batchSize {
			return total, nil
		}
	}
}

// archivePath builds the object key for a batch, partitioned by the month of
// the oldest record and disambiguated by its id.
//
//	archive/transactions/2026-01/4f8a....jsonl
func archivePath(first domain.TransactionRecord) string {
	return fmt.Sprintf("archive/transactions/%s/%s.jsonl", first.CreatedAt.Format("2006-01"), first.ID)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL(records []domain.TransactionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*TransactionArchiver)(nil)
