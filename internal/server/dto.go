package server

import (
	"scavenger/internal/domain"
	"scavenger/internal/engine"
)

// Request payloads

type RegisterParticipantRequest struct {
	Address   string `json:"address"`
	Role      string `json:"role" enum:"recycler,collector,manufacturer"`
	Name      string `json:"name,omitempty"`
	Latitude  int64  `json:"latitude,omitempty"`
	Longitude int64  `json:"longitude,omitempty"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" enum:"recycler,collector,manufacturer"`
}

type SubmitMaterialRequest struct {
	Kind        string `json:"kind"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description,omitempty"`
}

type TransferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Note string `json:"note,omitempty"`
}

type CreateAPIKeyRequest struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type ParticipantResponse struct {
	Address      string   `json:"address"`
	Role         string   `json:"role" enum:"recycler,collector,manufacturer"`
	Capabilities []string `json:"capabilities"`
	Name         string   `json:"name,omitempty"`
	Latitude     int64    `json:"latitude"`
	Longitude    int64    `json:"longitude"`
	RegisteredAt string   `json:"registered_at" format:"date-time"`
}

type RegisteredResponse struct {
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
}

type MaterialResponse struct {
	ID          int64  `json:"id"`
	Owner       string `json:"owner"`
	Kind        string `json:"kind"`
	Quantity    int64  `json:"quantity"`
	Description string `json:"description,omitempty"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
}

type TransferResponse struct {
	WasteID       int64  `json:"waste_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	Note          string `json:"note,omitempty"`
	TransferredAt string `json:"transferred_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is the plaintext secret, returned once at creation time only.
	Key string `json:"key,omitempty"`
}

func participantResponse(e engine.Engine, p domain.Participant) ParticipantResponse {
	caps := e.RoleCapabilities(p.Role)
	if caps == nil {
		caps = []string{}
	}
	return ParticipantResponse{
		Address:      p.Address,
		Role:         p.Role,
		Capabilities: caps,
		Name:         p.Name,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		RegisteredAt: p.RegisteredAt,
	}
}

func materialResponse(m domain.Material) MaterialResponse {
	return MaterialResponse{
		ID:          m.ID,
		Owner:       m.Owner,
		Kind:        m.Kind,
		Quantity:    m.Quantity,
		Description: m.Description,
		SubmittedAt: m.SubmittedAt,
	}
}

func transferResponses(transfers []domain.Transfer) []TransferResponse {
	res := []TransferResponse{}
	for _, t := range transfers {
		res = append(res, TransferResponse{
			WasteID:       t.WasteID,
			From:          t.From,
			To:            t.To,
			Note:          t.Note,
			TransferredAt: t.TransferredAt,
		})
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		Address:   k.Address,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}
