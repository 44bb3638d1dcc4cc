package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"scavenger/internal/config"
	"scavenger/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a unique-constraint violation, e.g. a second
	// registration racing the first past the existence check.
	ErrDuplicate = errors.New("already exists")
)

// queryer is the read subset shared by *sql.DB and *sql.Tx. Reads that guard
// a write run against the write's transaction so the check and the mutation
// see the same state.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isConstraintErr(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func scanParticipant(row *sql.Row) (domain.Participant, error) {
	var p domain.Participant
	var name sql.NullString
	err := row.Scan(&p.Address, &p.Role, &name, &p.Latitude, &p.Longitude, &p.RegisteredAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if name.Valid {
		p.Name = name.String
	}
	return p, err
}

func (r Repo) InsertParticipant(ctx context.Context, tx *sql.Tx, p domain.Participant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO participants(address,role,name,latitude,longitude,registered_at) VALUES (?,?,?,?,?,?)`,
		p.Address, p.Role, nullable(p.Name), p.Latitude, p.Longitude, p.RegisteredAt)
	if isConstraintErr(err) {
		return ErrDuplicate
	}
	return err
}

func (r Repo) GetParticipant(ctx context.Context, address string) (domain.Participant, error) {
	return getParticipant(ctx, r.DB, address)
}

// GetParticipantTx reads a participant inside an open transaction.
func (r Repo) GetParticipantTx(ctx context.Context, tx *sql.Tx, address string) (domain.Participant, error) {
	return getParticipant(ctx, tx, address)
}

func getParticipant(ctx context.Context, q queryer, address string) (domain.Participant, error) {
	return scanParticipant(q.QueryRowContext(ctx,
		`SELECT address,role,name,latitude,longitude,registered_at FROM participants WHERE address=?`, address))
}

func (r Repo) ParticipantExists(ctx context.Context, address string) (bool, error) {
	return participantExists(ctx, r.DB, address)
}

// ParticipantExistsTx checks existence inside an open transaction.
func (r Repo) ParticipantExistsTx(ctx context.Context, tx *sql.Tx, address string) (bool, error) {
	return participantExists(ctx, tx, address)
}

func participantExists(ctx context.Context, q queryer, address string) (bool, error) {
	row := q.QueryRowContext(ctx, `SELECT 1 FROM participants WHERE address=? LIMIT 1`, address)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// UpdateParticipantRole overwrites the role only; registered_at is never touched.
func (r Repo) UpdateParticipantRole(ctx context.Context, tx *sql.Tx, address, role string) error {
	res, err := tx.ExecContext(ctx, `UPDATE participants SET role=? WHERE address=?`, role, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListParticipants(ctx context.Context) ([]domain.Participant, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT address,role,COALESCE(name,''),latitude,longitude,registered_at FROM participants ORDER BY registered_at, address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.Address, &p.Role, &p.Name, &p.Latitude, &p.Longitude, &p.RegisteredAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// GetLedgerConfig returns the config stored alongside the data.
func (r Repo) GetLedgerConfig(ctx context.Context) (*config.Config, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM ledger_config WHERE id=1`)
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r Repo) UpsertLedgerConfig(ctx context.Context, cfg *config.Config) error {
	return upsertLedgerConfig(ctx, r.DB, nil, cfg)
}

func (r Repo) UpsertLedgerConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	return upsertLedgerConfig(ctx, nil, tx, cfg)
}

func upsertLedgerConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO ledger_config(id,payload_json,updated_at) VALUES (1,?,?)
ON CONFLICT(id) DO UPDATE SET payload_json=excluded.payload_json, updated_at=excluded.updated_at`,
		string(payload), now)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
