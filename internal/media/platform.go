package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twitchtv/twirp"
)

// Platform is the provider-agnostic view of the media routing platform's SIP API.
//
// Rules:
// - All resources created here carry account metadata (see AccountMetadata).
// - Deleting a resource that no longer exists is not an error.
// - Errors are *APIError.
type Platform interface {
	ListInboundTrunks(ctx context.Context) ([]InboundTrunk, error)
	CreateInboundTrunk(ctx context.Context, spec InboundTrunkSpec) (string, error)
	DeleteInboundTrunk(ctx context.Context, id string) error

	ListOutboundTrunks(ctx context.Context) ([]OutboundTrunk, error)
	CreateOutboundTrunk(ctx context.Context, spec OutboundTrunkSpec) (string, error)
	DeleteOutboundTrunk(ctx context.Context, id string) error

	ListDispatchRules(ctx context.Context) ([]DispatchRule, error)
	CreateDispatchRule(ctx context.Context, spec DispatchRuleSpec) (string, error)
	DeleteDispatchRule(ctx context.Context, id string) error
}

type InboundTrunk struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Numbers      []string `json:"numbers"`
	Metadata     string   `json:"metadata,omitempty"`
	KrispEnabled bool     `json:"krisp_enabled"`
}

func (t InboundTrunk) AccountID() string { return AccountIDFromMetadata(t.Metadata) }

type OutboundTrunk struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Numbers      []string `json:"numbers"`
	AuthUsername string   `json:"auth_username,omitempty"`
	Metadata     string   `json:"metadata,omitempty"`
}

func (t OutboundTrunk) AccountID() string { return AccountIDFromMetadata(t.Metadata) }

type DispatchRule struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RoomPrefix string `json:"room_prefix"`
	AgentName  string `json:"agent_name,omitempty"`
	Metadata   string `json:"metadata,omitempty"`
}

type InboundTrunkSpec struct {
	Name string
	// Numbers not in this set are not routable through the trunk.
	Numbers      []string
	Metadata     string
	KrispEnabled bool
}

type OutboundTrunkSpec struct {
	Name string
	// Address is the carrier trunk's SIP domain.
	Address      string
	Numbers      []string
	AuthUsername string
	AuthPassword string
	Metadata     string
}

// DispatchRuleSpec describes an individual-room rule: one room per caller, named RoomPrefix + suffix.
type DispatchRuleSpec struct {
	Name       string
	RoomPrefix string
	AgentName  string
	Metadata   string
}

type accountMetadata struct {
	AccountID string `json:"account_id"`
}

// AccountMetadata renders the ownership tag written on every account-scoped resource.
func AccountMetadata(accountID string) string {
	b, _ := json.Marshal(accountMetadata{AccountID: accountID})
	return string(b)
}

// AccountIDFromMetadata returns "" for empty or foreign metadata.
func AccountIDFromMetadata(metadata string) string {
	if strings.TrimSpace(metadata) == "" {
		return ""
	}
	var m accountMetadata
	if err := json.Unmarshal([]byte(metadata), &m); err != nil {
		return ""
	}
	return m.AccountID
}

// APIError wraps a failed media platform call.
type APIError struct {
	Op string
	// Code is the twirp error code; empty for transport failures.
	Code twirp.ErrorCode
	Err  error
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("media: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("media: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request may succeed.
func (e *APIError) Transient() bool {
	switch e.Code {
	case "", twirp.Unavailable, twirp.Internal, twirp.DeadlineExceeded, twirp.ResourceExhausted, twirp.Unknown:
		return true
	default:
		return false
	}
}
