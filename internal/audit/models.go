package audit

import "time"

// Event is an immutable, append-only audit log record of a provisioning mutation.
//
// Invariants:
// - Events are never updated or deleted.
// - account_id is required for tenancy isolation.
// - Audit is best-effort; do not block provisioning on audit failures.
type Event struct {
	ID        string    `json:"id" db:"id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Type      EventType `json:"type" db:"action"`

	// Actor is the authenticated principal, empty for CLI runs.
	ActorID   string `json:"actor_id,omitempty" db:"actor_id"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// Resource names the kind of thing mutated, ResourceID its provider id.
	Resource   string `json:"resource,omitempty" db:"resource"`
	ResourceID string `json:"resource_id,omitempty" db:"resource_id"`

	// Metadata is optional JSON for full details. Never put secrets here.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCarrierTrunkCreated   EventType = "carrier_trunk_created"
	EventPhoneNumberAssociated EventType = "phone_number_associated"
	EventMediaResourceDeleted  EventType = "media_resource_deleted"
	EventMediaResourceCreated  EventType = "media_resource_created"
	EventConnectCompleted      EventType = "connect_completed"
	EventConnectFailed         EventType = "connect_failed"
	EventDisconnectRequested   EventType = "disconnect_requested"
)

// Resource kinds.
const (
	ResourceCarrierTrunk  = "carrier_trunk"
	ResourcePhoneNumber   = "phone_number"
	ResourceInboundTrunk  = "media_inbound_trunk"
	ResourceOutboundTrunk = "media_outbound_trunk"
	ResourceDispatchRule  = "media_dispatch_rule"
)
