package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// multipartThreshold is the payload size above which archives are uploaded
// via multipart instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver by reading old ledger rows inside a
// database transaction, serializing them to JSONL, and uploading the result
// to the blob store at archive/<kind>/YYYY-MM.jsonl.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; the ledger is append-only and pruning, if ever done, is a
// separate explicit step after the archive has been verified.
type ArchiveImpl struct {
	db     domain.TxRunner
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(db domain.TxRunner, writer domain.BlobWriter, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		db:     db,
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTxns uploads every txn row created strictly before the cutoff and
// returns the count of archived records.
func (a *ArchiveImpl) ArchiveTxns(ctx context.Context, before time.Time) (int64, error) {
	var txns []domain.Txn
	err := a.db.RunTx(ctx, func(tx domain.SettleTx) error {
		var err error
		txns, err = tx.Txns().ListBefore(ctx, before)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive txns query: %w", err)
	}
	return upload(ctx, a, "txns", before, txns)
}

// ArchiveBets uploads every bet row created strictly before the cutoff and
// returns the count of archived records.
func (a *ArchiveImpl) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	var bets []domain.Bet
	err := a.db.RunTx(ctx, func(tx domain.SettleTx) error {
		var err error
		bets, err = tx.Bets().ListBefore(ctx, before)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	return upload(ctx, a, "bets", before, bets)
}

func upload[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	a.logger.InfoContext(ctx, "archive uploaded",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("records", count),
		slog.Time("before", before),
	)
	return count, nil
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/txns/2026-01.jsonl
//	archive/bets/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
