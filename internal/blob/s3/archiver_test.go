package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/store/memory"
)

type captureWriter struct {
	puts map[string][]byte
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{puts: map[string][]byte{}}
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = buf
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

func TestArchiveTxnsUploadsJSONL(t *testing.T) {
	db := memory.NewStore()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	err := db.RunTx(context.Background(), func(tx domain.SettleTx) error {
		for i, created := range []time.Time{
			cutoff.Add(-48 * time.Hour),
			cutoff.Add(-time.Hour),
			cutoff.Add(time.Hour), // after cutoff, must not be archived
		} {
			if err := tx.Txns().Insert(context.Background(), domain.Txn{
				ID:          string(rune('a' + i)),
				CreatedTime: created,
				FromID:      "alice",
				FromType:    domain.PartyUser,
				ToID:        "m1",
				ToType:      domain.PartyContract,
				Amount:      10,
				Category:    domain.CategoryBet,
				Token:       domain.TokenMana,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	writer := newCaptureWriter()
	arch := NewArchiver(db, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveTxns(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	payload, ok := writer.puts["archive/txns/2026-03.jsonl"]
	require.True(t, ok, "archive is partitioned by cutoff year-month")

	lines := bytes.Split(bytes.TrimSpace(payload), []byte("\n"))
	require.Len(t, lines, 2)
	var row domain.Txn
	require.NoError(t, json.Unmarshal(lines[0], &row))
	assert.Equal(t, "alice", row.FromID)
}

func TestArchiveBetsSkipsEmpty(t *testing.T) {
	db := memory.NewStore()
	writer := newCaptureWriter()
	arch := NewArchiver(db, writer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveBets(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.puts, "nothing to archive, nothing uploaded")
}
