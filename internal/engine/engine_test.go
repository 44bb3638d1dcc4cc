package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"scavenger/internal/config"
	"scavenger/internal/db"
	"scavenger/internal/domain"
	"scavenger/internal/engine"
	"scavenger/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvConfig(t, config.Default("test-ledger"))
}

func newTestEnvConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, cfg)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	eng.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) register(t *testing.T, address, role string) domain.Participant {
	t.Helper()
	p, err := env.Engine.RegisterParticipant(env.Ctx, engine.RegisterOptions{
		Actor:   address,
		Address: address,
		Role:    role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", address, err)
	}
	return p
}

func (env testEnv) submit(t *testing.T, address, kind string, qty int64) domain.Material {
	t.Helper()
	m, err := env.Engine.SubmitMaterial(env.Ctx, engine.SubmitOptions{
		Actor:    address,
		Kind:     kind,
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("submit for %s: %v", address, err)
	}
	return m
}

func TestRegisterUniqueness(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	_, err := env.Engine.RegisterParticipant(env.Ctx, engine.RegisterOptions{
		Actor:   "addr-a",
		Address: "addr-a",
		Role:    domain.RoleRecycler,
	})
	if !errors.Is(err, engine.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterRequiresMatchingActor(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RegisterParticipant(env.Ctx, engine.RegisterOptions{
		Actor:   "someone-else",
		Address: "addr-a",
		Role:    domain.RoleCollector,
	})
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if ok, _ := env.Engine.IsRegistered(env.Ctx, "addr-a"); ok {
		t.Fatalf("failed registration must leave no record")
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RegisterParticipant(env.Ctx, engine.RegisterOptions{
		Actor:   "addr-a",
		Address: "addr-a",
		Role:    "hoarder",
	})
	if !errors.Is(err, engine.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestUpdateRoleRequiresRegistration(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateRole(env.Ctx, "addr-a", "addr-a", domain.RoleRecycler)
	if !errors.Is(err, engine.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	env.register(t, "addr-a", domain.RoleCollector)
	p, err := env.Engine.UpdateRole(env.Ctx, "addr-a", "addr-a", domain.RoleRecycler)
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if p.Role != domain.RoleRecycler {
		t.Fatalf("role not updated: %s", p.Role)
	}
}

func TestRegisteredAtImmutable(t *testing.T) {
	env := newTestEnv(t)
	created := env.register(t, "addr-a", domain.RoleCollector)
	for _, role := range []string{domain.RoleRecycler, domain.RoleManufacturer, domain.RoleCollector} {
		if _, err := env.Engine.UpdateRole(env.Ctx, "addr-a", "addr-a", role); err != nil {
			t.Fatalf("update to %s: %v", role, err)
		}
	}
	p, err := env.Engine.GetParticipant(env.Ctx, "addr-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.RegisteredAt != created.RegisteredAt {
		t.Fatalf("registered_at changed: %s -> %s", created.RegisteredAt, p.RegisteredAt)
	}
	if p.Role != domain.RoleCollector {
		t.Fatalf("unexpected final role %s", p.Role)
	}
}

func TestSubmitRequiresCollector(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SubmitMaterial(env.Ctx, engine.SubmitOptions{Actor: "ghost", Kind: "pet", Quantity: 5})
	if !errors.Is(err, engine.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	env.register(t, "addr-r", domain.RoleRecycler)
	_, err = env.Engine.SubmitMaterial(env.Ctx, engine.SubmitOptions{Actor: "addr-r", Kind: "pet", Quantity: 5})
	if !errors.Is(err, engine.ErrCannotCollect) {
		t.Fatalf("expected ErrCannotCollect, got %v", err)
	}
	env.register(t, "addr-c", domain.RoleCollector)
	m := env.submit(t, "addr-c", "pet", 5)
	if m.ID == 0 || m.Owner != "addr-c" {
		t.Fatalf("unexpected material %+v", m)
	}
	m2 := env.submit(t, "addr-c", "glass", 3)
	if m2.ID <= m.ID {
		t.Fatalf("ids must grow: %d then %d", m.ID, m2.ID)
	}
}

func TestTransferGuardOrder(t *testing.T) {
	env := newTestEnv(t)

	// Both sides unregistered: the sender check fires first.
	_, err := env.Engine.TransferWaste(env.Ctx, "nobody", 1, "nobody", "nobody-else", "")
	if !errors.Is(err, engine.ErrSenderNotRegistered) {
		t.Fatalf("expected ErrSenderNotRegistered, got %v", err)
	}

	env.register(t, "addr-a", domain.RoleCollector)
	_, err = env.Engine.TransferWaste(env.Ctx, "addr-a", 1, "addr-a", "nobody-else", "")
	if !errors.Is(err, engine.ErrReceiverNotRegistered) {
		t.Fatalf("expected ErrReceiverNotRegistered, got %v", err)
	}

	env.register(t, "addr-b", domain.RoleRecycler)
	_, err = env.Engine.TransferWaste(env.Ctx, "addr-a", 99, "addr-a", "addr-b", "")
	if !errors.Is(err, engine.ErrMaterialNotFound) {
		t.Fatalf("expected ErrMaterialNotFound, got %v", err)
	}

	m := env.submit(t, "addr-a", "pet", 5)
	_, err = env.Engine.TransferWaste(env.Ctx, "addr-b", m.ID, "addr-b", "addr-a", "")
	if !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	_, err = env.Engine.TransferWaste(env.Ctx, "addr-b", m.ID, "addr-a", "addr-b", "")
	if !errors.Is(err, engine.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTransferEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	env.register(t, "addr-b", domain.RoleRecycler)
	m := env.submit(t, "addr-a", "aluminium", 10)

	got, err := env.Engine.TransferWaste(env.Ctx, "addr-a", m.ID, "addr-a", "addr-b", "pickup #1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got.Owner != "addr-b" {
		t.Fatalf("owner not updated: %s", got.Owner)
	}
	hist, err := env.Engine.History(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].From != "addr-a" || hist[0].To != "addr-b" || hist[0].Note != "pickup #1" {
		t.Fatalf("unexpected history %+v", hist)
	}

	// The previous owner can no longer transfer.
	_, err = env.Engine.TransferWaste(env.Ctx, "addr-a", m.ID, "addr-a", "addr-b", "again")
	if !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	hist, _ = env.Engine.History(env.Ctx, m.ID)
	if len(hist) != 1 {
		t.Fatalf("failed transfer must not grow history, got %d entries", len(hist))
	}

	stored, err := env.Engine.GetMaterial(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	if stored.Owner != "addr-b" {
		t.Fatalf("stored owner %s", stored.Owner)
	}
}

func TestInterleavedTransferCannotBypassOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	env.register(t, "addr-b", domain.RoleRecycler)
	env.register(t, "addr-c", domain.RoleManufacturer)
	m := env.submit(t, "addr-a", "pet", 1)

	// A rival transfer of the same material completes while the first call
	// is still in flight; the clock hook fires between the auth guard and
	// the transaction.
	clock := env.Engine.Now
	fired := false
	env.Engine.Now = func() time.Time {
		if !fired {
			fired = true
			if _, err := env.Engine.TransferWaste(env.Ctx, "addr-a", m.ID, "addr-a", "addr-c", "rival"); err != nil {
				t.Errorf("rival transfer: %v", err)
			}
		}
		return clock()
	}

	_, err := env.Engine.TransferWaste(env.Ctx, "addr-a", m.ID, "addr-a", "addr-b", "")
	if !errors.Is(err, engine.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	hist, err := env.Engine.History(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].To != "addr-c" {
		t.Fatalf("only the rival transfer may be recorded: %+v", hist)
	}
	stored, err := env.Engine.GetMaterial(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	if stored.Owner != "addr-c" {
		t.Fatalf("final owner %s", stored.Owner)
	}
}

func TestInterleavedRegistrationReportsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	clock := env.Engine.Now
	fired := false
	env.Engine.Now = func() time.Time {
		if !fired {
			fired = true
			if _, err := env.Engine.RegisterParticipant(env.Ctx, engine.RegisterOptions{
				Actor:   "addr-a",
				Address: "addr-a",
				Role:    domain.RoleRecycler,
			}); err != nil {
				t.Errorf("rival registration: %v", err)
			}
		}
		return clock()
	}

	_, err := env.Engine.RegisterParticipant(env.Ctx, engine.RegisterOptions{
		Actor:   "addr-a",
		Address: "addr-a",
		Role:    domain.RoleCollector,
	})
	if !errors.Is(err, engine.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	p, err := env.Engine.GetParticipant(env.Ctx, "addr-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Role != domain.RoleRecycler {
		t.Fatalf("first committed registration must win, got role %s", p.Role)
	}
}

func TestCatalogDrivesCapabilities(t *testing.T) {
	cfg := config.Default("test-ledger")
	// Hand collect to recyclers and take it away from collectors.
	cfg.Roles.Catalog[domain.RoleRecycler] = config.RoleSpec{Capabilities: []string{domain.CapCollect}}
	cfg.Roles.Catalog[domain.RoleCollector] = config.RoleSpec{Capabilities: []string{}}
	env := newTestEnvConfig(t, cfg)

	env.register(t, "addr-r", domain.RoleRecycler)
	m := env.submit(t, "addr-r", "pet", 2)
	if m.Owner != "addr-r" {
		t.Fatalf("owner %s", m.Owner)
	}

	env.register(t, "addr-c", domain.RoleCollector)
	_, err := env.Engine.SubmitMaterial(env.Ctx, engine.SubmitOptions{Actor: "addr-c", Kind: "pet", Quantity: 1})
	if !errors.Is(err, engine.ErrCannotCollect) {
		t.Fatalf("expected ErrCannotCollect for stripped collector, got %v", err)
	}
}

func TestRoleCapabilitiesFallback(t *testing.T) {
	var e engine.Engine
	caps := e.RoleCapabilities(domain.RoleManufacturer)
	if len(caps) != 1 || caps[0] != domain.CapManufacture {
		t.Fatalf("built-in manufacturer capabilities: %v", caps)
	}
	if len(e.RoleCapabilities("hoarder")) != 0 {
		t.Fatalf("unknown roles carry no capabilities")
	}
}

func TestHistoryOrderingAndIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	env.register(t, "addr-b", domain.RoleRecycler)
	env.register(t, "addr-c", domain.RoleManufacturer)
	m1 := env.submit(t, "addr-a", "pet", 1)
	m2 := env.submit(t, "addr-a", "glass", 2)

	steps := []struct {
		waste    int64
		from, to string
	}{
		{m1.ID, "addr-a", "addr-b"},
		{m2.ID, "addr-a", "addr-c"},
		{m1.ID, "addr-b", "addr-c"},
		{m2.ID, "addr-c", "addr-b"},
	}
	for _, s := range steps {
		if _, err := env.Engine.TransferWaste(env.Ctx, s.from, s.waste, s.from, s.to, ""); err != nil {
			t.Fatalf("transfer %d %s->%s: %v", s.waste, s.from, s.to, err)
		}
	}

	h1, err := env.Engine.History(env.Ctx, m1.ID)
	if err != nil {
		t.Fatalf("history m1: %v", err)
	}
	if len(h1) != 2 {
		t.Fatalf("m1 history length %d", len(h1))
	}
	if h1[0].To != "addr-b" || h1[1].To != "addr-c" {
		t.Fatalf("m1 history out of order: %+v", h1)
	}
	if h1[0].TransferredAt > h1[1].TransferredAt {
		t.Fatalf("timestamps decreased within sequence: %+v", h1)
	}

	h2, err := env.Engine.History(env.Ctx, m2.ID)
	if err != nil {
		t.Fatalf("history m2: %v", err)
	}
	if len(h2) != 2 || h2[0].To != "addr-c" || h2[1].To != "addr-b" {
		t.Fatalf("m2 history polluted by m1: %+v", h2)
	}
}

func TestEmptyHistory(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	m := env.submit(t, "addr-a", "pet", 1)
	hist, err := env.Engine.History(env.Ctx, m.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("expected empty history, got %+v", hist)
	}
}

func TestReverseLookupsReturnEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	env.register(t, "addr-b", domain.RoleRecycler)
	m := env.submit(t, "addr-a", "pet", 1)
	if _, err := env.Engine.TransferWaste(env.Ctx, "addr-a", m.ID, "addr-a", "addr-b", ""); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	from, err := env.Engine.TransfersFrom(env.Ctx, "addr-a")
	if err != nil || len(from) != 0 {
		t.Fatalf("TransfersFrom: %v %v", from, err)
	}
	to, err := env.Engine.TransfersTo(env.Ctx, "addr-b")
	if err != nil || len(to) != 0 {
		t.Fatalf("TransfersTo: %v %v", to, err)
	}
}

func TestEventsAppendedOnMutations(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "addr-a", domain.RoleCollector)
	env.register(t, "addr-b", domain.RoleRecycler)
	m := env.submit(t, "addr-a", "pet", 1)
	if _, err := env.Engine.TransferWaste(env.Ctx, "addr-a", m.ID, "addr-a", "addr-b", ""); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	// Two registrations, one submission, one transfer.
	if len(evts) != 4 {
		t.Fatalf("expected 4 events, got %d", len(evts))
	}
	if evts[0].Type != "waste.transferred" {
		t.Fatalf("newest event should be the transfer, got %s", evts[0].Type)
	}
	// Fourth tick of the injected clock: events share the mutation's clock.
	if evts[0].TS != "2024-01-01T00:00:04Z" {
		t.Fatalf("event timestamp not taken from the engine clock: %s", evts[0].TS)
	}
}
