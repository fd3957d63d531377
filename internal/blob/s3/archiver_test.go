package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

type memBlobWriter struct {
	objects map[string][]byte
	putErr  error
}

func newMemBlobWriter() *memBlobWriter {
	return &memBlobWriter{objects: make(map[string][]byte)}
}

func (w *memBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.putErr != nil {
		return w.putErr
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = body
	return nil
}

type memArchiveSource struct {
	records   []domain.TransactionRecord
	deleteErr error
}

func (s *memArchiveSource) ListOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.TransactionRecord, error) {
	var out []domain.TransactionRecord
	for _, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memArchiveSource) DeleteBatch(_ context.Context, ids []string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.records[:0]
	for _, rec := range s.records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedRecords(n int, at time.Time) []domain.TransactionRecord {
	recs := make([]domain.TransactionRecord, n)
	for i := range recs {
		recs[i] = domain.TransactionRecord{
			ID:         fmt.Sprintf("rec-%03d", i),
			Kind:       domain.TxKindTransfer,
			SenderID:   "alice",
			ReceiverID: "bob",
			Asset:      "solana",
			Amount:     1,
			CreatedAt:  at.Add(time.Duration(i) * time.Minute),
		}
	}
	return recs
}

func TestArchiveTransactionsMovesAgedRecords(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	source := &memArchiveSource{records: seedRecords(5, base)}
	writer := newMemBlobWriter()
	archiver := NewTransactionArchiver(writer, source, 10, discardLogger())

	// Only the first three records fall before the cutoff.
	n, err := archiver.ArchiveTransactions(context.Background(), base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("ArchiveTransactions: %v", err)
	}
	if n != 3 {
		t.Errorf("archived = %d, want 3", n)
	}
	if len(source.records) != 2 {
		t.Errorf("remaining rows = %d, want 2", len(source.records))
	}
	if len(writer.objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(writer.objects))
	}

	wantPath := "archive/transactions/2026-01/rec-000.jsonl"
	body, ok := writer.objects[wantPath]
	if !ok {
		t.Fatalf("object %s missing, have %v", wantPath, keys(writer.objects))
	}

	var lines int
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		var rec domain.TransactionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("jsonl lines = %d, want 3", lines)
	}
}

func TestArchiveTransactionsBatches(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	source := &memArchiveSource{records: seedRecords(25, base)}
	writer := newMemBlobWriter()
	archiver := NewTransactionArchiver(writer, source, 10, discardLogger())

	n, err := archiver.ArchiveTransactions(context.Background(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("ArchiveTransactions: %v", err)
	}
	if n != 25 {
		t.Errorf("archived = %d, want 25", n)
	}
	if len(writer.objects) != 3 {
		t.Errorf("objects = %d, want 3 batches", len(writer.objects))
	}
	if len(source.records) != 0 {
		t.Errorf("remaining rows = %d, want 0", len(source.records))
	}
}

func TestArchiveTransactionsNothingToDo(t *testing.T) {
	source := &memArchiveSource{}
	writer := newMemBlobWriter()
	archiver := NewTransactionArchiver(writer, source, 10, discardLogger())

	n, err := archiver.ArchiveTransactions(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTransactions: %v", err)
	}
	if n != 0 {
		t.Errorf("archived = %d, want 0", n)
	}
	if len(writer.objects) != 0 {
		t.Errorf("objects = %d, want 0", len(writer.objects))
	}
}

func TestArchiveTransactionsUploadFailureKeepsRows(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	source := &memArchiveSource{records: seedRecords(5, base)}
	writer := newMemBlobWriter()
	writer.putErr = errors.New("bucket down")
	archiver := NewTransactionArchiver(writer, source, 10, discardLogger())

	n, err := archiver.ArchiveTransactions(context.Background(), base.Add(time.Hour))
	if err == nil {
		t.Fatal("ArchiveTransactions succeeded with a failing writer")
	}
	if n != 0 {
		t.Errorf("archived = %d, want 0", n)
	}
	if len(source.records) != 5 {
		t.Errorf("remaining rows = %d, want 5 (nothing pruned)", len(source.records))
	}
}

func TestArchiveTransactionsPruneFailureStopsRun(t *testing.T) {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	source := &memArchiveSource{records: seedRecords(5, base)}
	source.deleteErr = errors.New("db down")
	writer := newMemBlobWriter()
	archiver := NewTransactionArchiver(writer, source, 10, discardLogger())

	_, err := archiver.ArchiveTransactions(context.Background(), base.Add(time.Hour))
	if err == nil {
		t.Fatal("ArchiveTransactions succeeded with a failing prune")
	}
	// The upload happened; the rows remain and will re-upload next run.
	if len(writer.objects) != 1 {
		t.Errorf("objects = %d, want 1", len(writer.objects))
	}
	if len(source.records) != 5 {
		t.Errorf("remaining rows = %d, want 5", len(source.records))
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
