package repo

import (
	"context"
	"database/sql"

	"scavenger/internal/domain"
)

func scanMaterial(row *sql.Row) (domain.Material, error) {
	var m domain.Material
	var desc sql.NullString
	err := row.Scan(&m.ID, &m.Owner, &m.Kind, &m.Quantity, &desc, &m.SubmittedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if desc.Valid {
		m.Description = desc.String
	}
	return m, err
}

// InsertMaterial stores a new material and returns its assigned id.
func (r Repo) InsertMaterial(ctx context.Context, tx *sql.Tx, m domain.Material) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO materials(owner,kind,quantity,description,submitted_at) VALUES (?,?,?,?,?)`,
		m.Owner, m.Kind, m.Quantity, nullable(m.Description), m.SubmittedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetMaterial(ctx context.Context, id int64) (domain.Material, error) {
	return getMaterial(ctx, r.DB, id)
}

// GetMaterialTx reads a material inside an open transaction.
func (r Repo) GetMaterialTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Material, error) {
	return getMaterial(ctx, tx, id)
}

func getMaterial(ctx context.Context, q queryer, id int64) (domain.Material, error) {
	return scanMaterial(q.QueryRowContext(ctx,
		`SELECT id,owner,kind,quantity,description,submitted_at FROM materials WHERE id=?`, id))
}

// UpdateMaterialOwner hands the material from its current owner to the next.
// The WHERE clause keys on the expected owner, so a row that changed hands
// since the caller looked is left untouched and reported as ErrNotFound.
func (r Repo) UpdateMaterialOwner(ctx context.Context, tx *sql.Tx, id int64, from, to string) error {
	res, err := tx.ExecContext(ctx, `UPDATE materials SET owner=? WHERE id=? AND owner=?`, to, id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMaterials returns materials, optionally filtered by current owner.
func (r Repo) ListMaterials(ctx context.Context, owner string) ([]domain.Material, error) {
	query := `SELECT id,owner,kind,quantity,COALESCE(description,''),submitted_at FROM materials`
	var args []any
	if owner != "" {
		query += ` WHERE owner=?`
		args = append(args, owner)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Material
	for rows.Next() {
		var m domain.Material
		if err := rows.Scan(&m.ID, &m.Owner, &m.Kind, &m.Quantity, &m.Description, &m.SubmittedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
