package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrInvalidArgument = errors.New("store: invalid argument")
)

// InboundTrunk mirrors one carrier trunk and the media resources provisioned for it.
// AccountID is set on creation and never changed by later upserts.
type InboundTrunk struct {
	// TrunkID is the carrier trunk id.
	TrunkID   string `json:"trunk_id"`
	AccountID string `json:"account_id"`

	// MediaTrunkID is empty until the media inbound trunk is reconciled.
	MediaTrunkID string `json:"media_trunk_id,omitempty"`

	CarrierAccountSID string `json:"carrier_account_sid"`
	CarrierAuthToken  string `json:"-"`

	// SIP credentials are generated once and reused for the outbound trunk.
	SIPUsername string `json:"sip_username"`
	SIPPassword string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OutboundTrunk records the account's single media outbound trunk.
type OutboundTrunk struct {
	MediaTrunkID   string    `json:"media_trunk_id"`
	InboundTrunkID string    `json:"inbound_trunk_id"`
	AccountID      string    `json:"account_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type PhoneNumber struct {
	PhoneNumber string    `json:"phone_number"`
	TrunkID     string    `json:"trunk_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NumberRoute is what the voice runtime needs to resolve a dialed number.
type NumberRoute struct {
	PhoneNumber  string `json:"phone_number"`
	TrunkID      string `json:"trunk_id"`
	AccountID    string `json:"account_id"`
	MediaTrunkID string `json:"media_trunk_id,omitempty"`
}

// Store is the durable, account-scoped record of provisioned routing resources.
//
// Upserts merge: non-empty incoming mutable fields win; AccountID and already
// generated SIP credentials are kept. Implementations are safe for concurrent use.
type Store interface {
	FindInboundTrunkByCarrierID(ctx context.Context, trunkID string) (InboundTrunk, bool, error)
	// UpsertInboundTrunk returns the record as stored after the merge.
	UpsertInboundTrunk(ctx context.Context, t InboundTrunk) (InboundTrunk, error)

	UpsertPhoneNumber(ctx context.Context, n PhoneNumber) error
	// ListPhoneNumbers returns the numbers stored for the trunk, sorted.
	ListPhoneNumbers(ctx context.Context, trunkID string) ([]string, error)
	LookupNumber(ctx context.Context, phoneNumber string) (NumberRoute, error)

	// UpsertOutboundTrunk stores t and removes every other record for t.AccountID, atomically.
	UpsertOutboundTrunk(ctx context.Context, t OutboundTrunk) error
	FindOutboundTrunkByAccount(ctx context.Context, accountID string) (OutboundTrunk, error)
}

func validateInbound(t InboundTrunk) error {
	if t.TrunkID == "" || t.AccountID == "" {
		return ErrInvalidArgument
	}
	return nil
}

func validateOutbound(t OutboundTrunk) error {
	if t.MediaTrunkID == "" || t.InboundTrunkID == "" || t.AccountID == "" {
		return ErrInvalidArgument
	}
	return nil
}

func validatePhoneNumber(n PhoneNumber) error {
	if n.PhoneNumber == "" || n.TrunkID == "" {
		return ErrInvalidArgument
	}
	return nil
}
