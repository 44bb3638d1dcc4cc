// Package ledger owns the per-material transfer history. It records what the
// engine tells it to record: authorization happens before Append is called,
// and nothing here can rewrite a row once it is in.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"scavenger/internal/domain"
)

type Ledger struct {
	DB *sql.DB
}

// Append records one transfer for wasteID inside the caller's transaction.
// Entries are keyed by insertion order; the table has no update or delete path.
func (l Ledger) Append(ctx context.Context, tx *sql.Tx, wasteID int64, from, to, note string, now time.Time) error {
	ts := now.UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO transfers(waste_id,sender,receiver,note,transferred_at) VALUES (?,?,?,?,?)`,
		wasteID, from, to, nullable(note), ts)
	return err
}

// History returns the full transfer sequence for wasteID in recording order.
// A material that was never transferred yields an empty slice, not an error.
func (l Ledger) History(ctx context.Context, wasteID int64) ([]domain.Transfer, error) {
	rows, err := l.DB.QueryContext(ctx,
		`SELECT waste_id,sender,receiver,COALESCE(note,''),transferred_at FROM transfers WHERE waste_id=? ORDER BY id`, wasteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	transfers := []domain.Transfer{}
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.WasteID, &t.From, &t.To, &t.Note, &t.TransferredAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// TransfersFrom returns transfers sent by address. By-sender lookups are not
// indexed yet and this intentionally returns an empty result rather than a
// table scan with different cost characteristics than the rest of the API.
// TODO: add a transfers_by_sender index table and implement the real query.
func (l Ledger) TransfersFrom(ctx context.Context, address string) ([]domain.Transfer, error) {
	return []domain.Transfer{}, nil
}

// TransfersTo returns transfers received by address. Same status as
// TransfersFrom: empty until a by-receiver index exists.
func (l Ledger) TransfersTo(ctx context.Context, address string) ([]domain.Transfer, error) {
	return []domain.Transfer{}, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
