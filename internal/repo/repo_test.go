package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"scavenger/internal/db"
	"scavenger/internal/domain"
	"scavenger/internal/migrate"
	"scavenger/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func inTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return nil
}

func TestInsertParticipantDuplicate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	p := domain.Participant{Address: "addr-a", Role: domain.RoleCollector, RegisteredAt: "2024-01-01T00:00:00Z"}

	if err := inTx(t, r, func(tx *sql.Tx) error { return r.InsertParticipant(ctx, tx, p) }); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := inTx(t, r, func(tx *sql.Tx) error { return r.InsertParticipant(ctx, tx, p) })
	if !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUpdateMaterialOwnerRequiresCurrentOwner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	var id int64
	if err := inTx(t, r, func(tx *sql.Tx) error {
		if err := r.InsertParticipant(ctx, tx, domain.Participant{Address: "addr-a", Role: domain.RoleCollector, RegisteredAt: "2024-01-01T00:00:00Z"}); err != nil {
			return err
		}
		if err := r.InsertParticipant(ctx, tx, domain.Participant{Address: "addr-b", Role: domain.RoleCollector, RegisteredAt: "2024-01-01T00:00:00Z"}); err != nil {
			return err
		}
		var err error
		id, err = r.InsertMaterial(ctx, tx, domain.Material{Owner: "addr-a", Kind: "pet", Quantity: 1, SubmittedAt: "2024-01-01T00:00:01Z"})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Wrong expected owner leaves the row untouched.
	err := inTx(t, r, func(tx *sql.Tx) error { return r.UpdateMaterialOwner(ctx, tx, id, "addr-b", "addr-c") })
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stale owner, got %v", err)
	}
	m, err := r.GetMaterial(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Owner != "addr-a" {
		t.Fatalf("owner changed to %s", m.Owner)
	}

	if err := inTx(t, r, func(tx *sql.Tx) error { return r.UpdateMaterialOwner(ctx, tx, id, "addr-a", "addr-b") }); err != nil {
		t.Fatalf("handover: %v", err)
	}
	m, _ = r.GetMaterial(ctx, id)
	if m.Owner != "addr-b" {
		t.Fatalf("owner %s", m.Owner)
	}
}

func TestDeleteAPIKeyUnknownID(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if err := r.DeleteAPIKey(ctx, "no-such-id"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	key := domain.APIKey{ID: "key-1", Address: "addr-a", KeyHash: repo.HashAPIKey("secret")}
	if err := r.InsertAPIKey(ctx, nil, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, key.KeyHash); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("key should be gone, got %v", err)
	}
}
