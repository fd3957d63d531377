package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

// defaultHistoryLimit caps history queries that do not name a limit.
const defaultHistoryLimit = 50

// HistoryService reads the append-only transaction log and classifies each
// record relative to the asking user. When an archive reader is configured it
// also serves records already drained to blob storage.
type HistoryService struct {
	txns    domain.TransactionStore
	archive domain.BlobReader // nil when archival is disabled
	logger  *slog.Logger
}

// NewHistoryService creates a HistoryService. archive may be nil.
func NewHistoryService(txns domain.TransactionStore, archive domain.BlobReader, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		txns:    txns,
		archive: archive,
		logger:  logger.With(slog.String("component", "history")),
	}
}

// History returns the most recent records touching the user, newest first,
// each tagged with its direction from the user's perspective.
func (s *HistoryService) History(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	records, err := s.txns.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history_service: list for %q: %w", userID, err)
	}

	entries := make([]domain.HistoryEntry, len(records))
	for i, rec := range records {
		entries[i] = domain.HistoryEntry{
			Record:    rec,
			Direction: rec.Direction(userID),
		}
	}
	return entries, nil
}

// ArchivedHistory returns every transaction record archived for the given
// month ("2006-01"), decoded from the JSONL batch objects the archiver wrote.
// Reports ErrNotFound when archival is disabled or the month has no archives.
func (s *HistoryService) ArchivedHistory(ctx context.Context, month string) ([]domain.TransactionRecord, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("history_service: archive disabled: %w", domain.ErrNotFound)
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("history_service: archive month %q: %w", month, domain.ErrInvalidMonth)
	}

	prefix := "archive/transactions/" + month + "/"
	infos, err := s.archive.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("history_service: list archives %s: %w", month, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("history_service: no archives for %s: %w", month, domain.ErrNotFound)
	}

	var records []domain.TransactionRecord
	for _, info := range infos {
		batch, err := s.readArchiveObject(ctx, info.Path)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}

	s.logger.InfoContext(ctx, "archived history served",
		slog.String("month", month),
		slog.Int("objects", len(infos)),
		slog.Int("records", len(records)),
	)

	return records, nil
}

// readArchiveObject decodes one JSONL batch object into records.
func (s *HistoryService) readArchiveObject(ctx context.Context, path string) ([]domain.TransactionRecord, error) {
	body, err := s.archive.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("history_service: read archive %s: %w", path, err)
	}
	defer body.Close()

	var records []domain.TransactionRecord
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec domain.TransactionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("history_service: decode archive %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history_service: scan archive %s: %w", path, err)
	}
	return records, nil
}
