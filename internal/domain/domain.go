package domain

// Participant roles. The set is closed: every registered participant holds
// exactly one of these at a time.
const (
	RoleRecycler     = "recycler"
	RoleCollector    = "collector"
	RoleManufacturer = "manufacturer"
)

// Roles lists the valid roles in a stable order.
func Roles() []string {
	return []string{RoleRecycler, RoleCollector, RoleManufacturer}
}

// ValidRole reports whether role is a member of the closed role set.
func ValidRole(role string) bool {
	switch role {
	case RoleRecycler, RoleCollector, RoleManufacturer:
		return true
	}
	return false
}

// Capabilities a role may grant.
const (
	CapCollect            = "collect"
	CapProcessRecyclables = "process_recyclables"
	CapManufacture        = "manufacture"
)

// RoleCapabilities returns the built-in capability set for a role. Ledgers
// with a role catalog override this per role.
func RoleCapabilities(role string) []string {
	p := Participant{Role: role}
	var caps []string
	if p.CanCollect() {
		caps = append(caps, CapCollect)
	}
	if p.CanProcessRecyclables() {
		caps = append(caps, CapProcessRecyclables)
	}
	if p.CanManufacture() {
		caps = append(caps, CapManufacture)
	}
	return caps
}

type Participant struct {
	Address      string `json:"address"`
	Role         string `json:"role" enum:"recycler,collector,manufacturer"`
	Name         string `json:"name,omitempty"`
	Latitude     int64  `json:"latitude"`
	Longitude    int64  `json:"longitude"`
	RegisteredAt string `json:"registered_at" format:"date-time"`
}

// Capability predicates derived from the role.

func (p Participant) CanCollect() bool            { return p.Role == RoleCollector }
func (p Participant) CanProcessRecyclables() bool { return p.Role == RoleRecycler }
func (p Participant) CanManufacture() bool        { return p.Role == RoleManufacturer }

// Material is a tracked waste unit. Owner always holds the current owner's
// address; transfer history lives in the transfers table, never here.
type Material struct {
	ID          int64  `json:"id"`
	Owner       string `json:"owner"`
	Kind        string `json:"kind"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description,omitempty"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
}

// Transfer records one ownership change of a material. Rows are append-only;
// there is no code path that updates or deletes one.
type Transfer struct {
	WasteID       int64  `json:"waste_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Note          string `json:"note,omitempty"`
	TransferredAt string `json:"transferred_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
