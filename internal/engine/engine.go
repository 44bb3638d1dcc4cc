package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"scavenger/internal/config"
	"scavenger/internal/domain"
	"scavenger/internal/events"
	"scavenger/internal/ledger"
	"scavenger/internal/metrics"
	"scavenger/internal/repo"
)

// Engine coordinates the participant registry, the material registry and the
// transfer ledger. Every mutation runs inside a single transaction together
// with its audit event, so a failed call leaves no partial state behind.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Ledger  ledger.Ledger
	Events  events.Writer
	Config  *config.Config
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Ledger:  ledger.Ledger{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Metrics: metrics.Default(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RegisterOptions are parameters for registering a participant.
type RegisterOptions struct {
	Actor     string
	Address   string
	Role      string
	Name      string
	Latitude  int64
	Longitude int64
}

// RegisterParticipant creates the single registry record for an address.
// The caller must be authenticated as the address being registered.
func (e Engine) RegisterParticipant(ctx context.Context, opts RegisterOptions) (domain.Participant, error) {
	if opts.Actor == "" || opts.Actor != opts.Address {
		return domain.Participant{}, ErrUnauthorized
	}
	if err := e.checkRole(opts.Role); err != nil {
		return domain.Participant{}, err
	}
	now := e.now()
	p := domain.Participant{
		Address:      opts.Address,
		Role:         opts.Role,
		Name:         opts.Name,
		Latitude:     opts.Latitude,
		Longitude:    opts.Longitude,
		RegisteredAt: now.UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()

	// Existence is checked in the same transaction as the insert, and the
	// primary key backs it up: a racing duplicate surfaces as ErrDuplicate
	// at commit time instead of slipping through.
	exists, err := e.Repo.ParticipantExistsTx(ctx, tx, opts.Address)
	if err != nil {
		return domain.Participant{}, err
	}
	if exists {
		return domain.Participant{}, ErrAlreadyRegistered
	}
	if err := e.Repo.InsertParticipant(ctx, tx, p); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Participant{}, ErrAlreadyRegistered
		}
		return domain.Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	if err := e.Events.Append(ctx, tx, now, events.TypeParticipantRegistered, "participant", p.Address, opts.Actor, events.EventPayload{
		"role":      p.Role,
		"name":      p.Name,
		"latitude":  p.Latitude,
		"longitude": p.Longitude,
	}); err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	if e.Metrics != nil {
		e.Metrics.ParticipantsRegistered.Inc()
	}
	return p, nil
}

// IsRegistered is a pure existence check; no authentication required.
func (e Engine) IsRegistered(ctx context.Context, address string) (bool, error) {
	return e.Repo.ParticipantExists(ctx, address)
}

func (e Engine) GetParticipant(ctx context.Context, address string) (domain.Participant, error) {
	return e.Repo.GetParticipant(ctx, address)
}

// UpdateRole overwrites the role of an existing participant. registered_at is
// preserved; it is set once at creation and never changes afterwards.
func (e Engine) UpdateRole(ctx context.Context, actor, address, newRole string) (domain.Participant, error) {
	if actor == "" || actor != address {
		return domain.Participant{}, ErrUnauthorized
	}
	if err := e.checkRole(newRole); err != nil {
		return domain.Participant{}, err
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Participant{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetParticipantTx(ctx, tx, address)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Participant{}, ErrNotRegistered
		}
		return domain.Participant{}, err
	}
	oldRole := p.Role
	if err := e.Repo.UpdateParticipantRole(ctx, tx, address, newRole); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Participant{}, ErrNotRegistered
		}
		return domain.Participant{}, err
	}
	if err := e.Events.Append(ctx, tx, now, events.TypeRoleUpdated, "participant", address, actor, events.EventPayload{
		"old_role": oldRole,
		"new_role": newRole,
	}); err != nil {
		return domain.Participant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, err
	}
	p.Role = newRole
	return p, nil
}

// SubmitOptions are parameters for submitting a material into the chain.
type SubmitOptions struct {
	Actor       string
	Kind        string
	Quantity    int64
	Description string
}

// SubmitMaterial records a new waste unit owned by the submitting collector.
func (e Engine) SubmitMaterial(ctx context.Context, opts SubmitOptions) (domain.Material, error) {
	if opts.Actor == "" {
		return domain.Material{}, ErrUnauthorized
	}
	if opts.Kind == "" {
		return domain.Material{}, errors.New("kind is required")
	}
	if opts.Quantity <= 0 {
		return domain.Material{}, errors.New("quantity must be positive")
	}
	now := e.now()
	m := domain.Material{
		Owner:       opts.Actor,
		Kind:        opts.Kind,
		Quantity:    opts.Quantity,
		Description: opts.Description,
		SubmittedAt: now.UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Material{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetParticipantTx(ctx, tx, opts.Actor)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Material{}, ErrNotRegistered
		}
		return domain.Material{}, err
	}
	if !e.roleCan(p.Role, domain.CapCollect) {
		return domain.Material{}, ErrCannotCollect
	}
	id, err := e.Repo.InsertMaterial(ctx, tx, m)
	if err != nil {
		return domain.Material{}, fmt.Errorf("insert material: %w", err)
	}
	m.ID = id
	if err := e.Events.Append(ctx, tx, now, events.TypeMaterialSubmitted, "material", strconv.FormatInt(id, 10), opts.Actor, events.EventPayload{
		"kind":     m.Kind,
		"quantity": m.Quantity,
	}); err != nil {
		return domain.Material{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Material{}, err
	}
	if e.Metrics != nil {
		e.Metrics.MaterialsSubmitted.Inc()
	}
	return m, nil
}

func (e Engine) GetMaterial(ctx context.Context, id int64) (domain.Material, error) {
	m, err := e.Repo.GetMaterial(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Material{}, ErrMaterialNotFound
	}
	return m, err
}

// TransferWaste moves ownership of a material from one participant to another.
// Guards run in a fixed order and the first failure aborts the call with no
// side effects: caller authenticated as the sender, sender registered,
// receiver registered, material exists, sender owns the material. The guard
// reads share the transaction that updates the owner and appends the transfer,
// so two concurrent calls cannot both pass the ownership check and commit.
func (e Engine) TransferWaste(ctx context.Context, actor string, wasteID int64, from, to, note string) (domain.Material, error) {
	if actor == "" || actor != from {
		return domain.Material{}, e.rejectTransfer(ErrUnauthorized, "unauthorized")
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Material{}, err
	}
	defer tx.Rollback()

	senderOK, err := e.Repo.ParticipantExistsTx(ctx, tx, from)
	if err != nil {
		return domain.Material{}, err
	}
	if !senderOK {
		return domain.Material{}, e.rejectTransfer(ErrSenderNotRegistered, "sender_not_registered")
	}
	receiverOK, err := e.Repo.ParticipantExistsTx(ctx, tx, to)
	if err != nil {
		return domain.Material{}, err
	}
	if !receiverOK {
		return domain.Material{}, e.rejectTransfer(ErrReceiverNotRegistered, "receiver_not_registered")
	}
	m, err := e.Repo.GetMaterialTx(ctx, tx, wasteID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Material{}, e.rejectTransfer(ErrMaterialNotFound, "material_not_found")
		}
		return domain.Material{}, err
	}
	if m.Owner != from {
		return domain.Material{}, e.rejectTransfer(ErrNotOwner, "not_owner")
	}
	// The update keys on the expected owner, so a write that somehow raced
	// past the read above still cannot move a material the sender no
	// longer owns.
	if err := e.Repo.UpdateMaterialOwner(ctx, tx, wasteID, from, to); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Material{}, e.rejectTransfer(ErrNotOwner, "not_owner")
		}
		return domain.Material{}, fmt.Errorf("update owner: %w", err)
	}
	if err := e.Ledger.Append(ctx, tx, wasteID, from, to, note, now); err != nil {
		return domain.Material{}, fmt.Errorf("append transfer: %w", err)
	}
	if err := e.Events.Append(ctx, tx, now, events.TypeWasteTransferred, "material", strconv.FormatInt(wasteID, 10), actor, events.EventPayload{
		"from": from,
		"to":   to,
	}); err != nil {
		return domain.Material{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Material{}, err
	}
	if e.Metrics != nil {
		e.Metrics.TransfersRecorded.Inc()
	}
	m.Owner = to
	return m, nil
}

// History returns the ordered transfer sequence for a material, empty when
// the material has never been transferred.
func (e Engine) History(ctx context.Context, wasteID int64) ([]domain.Transfer, error) {
	return e.Ledger.History(ctx, wasteID)
}

// TransfersFrom and TransfersTo expose the reverse lookups. See ledger for
// why both currently return empty results.
func (e Engine) TransfersFrom(ctx context.Context, address string) ([]domain.Transfer, error) {
	return e.Ledger.TransfersFrom(ctx, address)
}

func (e Engine) TransfersTo(ctx context.Context, address string) ([]domain.Transfer, error) {
	return e.Ledger.TransfersTo(ctx, address)
}

// RoleCapabilities resolves the capability set for a role. The catalog wins
// when it declares the role, so operators can tune grants per ledger; roles
// outside the catalog fall back to the built-in mapping.
func (e Engine) RoleCapabilities(role string) []string {
	if e.Config != nil {
		if caps := e.Config.RoleCapabilities(role); caps != nil {
			return caps
		}
	}
	return domain.RoleCapabilities(role)
}

func (e Engine) roleCan(role, capability string) bool {
	for _, c := range e.RoleCapabilities(role) {
		if c == capability {
			return true
		}
	}
	return false
}

func (e Engine) checkRole(role string) error {
	if !domain.ValidRole(role) {
		return ErrInvalidRole
	}
	if e.Config != nil && !e.Config.KnownRole(role) {
		return ErrInvalidRole
	}
	return nil
}

func (e Engine) rejectTransfer(err error, reason string) error {
	if e.Metrics != nil {
		e.Metrics.TransfersRejected.WithLabelValues(reason).Inc()
	}
	return err
}
