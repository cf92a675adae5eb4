package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Carrier is the provider-agnostic view of the carrier's trunking API.
//
// Rules:
// - No provider SDK types leak past this interface.
// - Implementations never purchase numbers; they only link numbers the account already owns.
// - Errors are *APIError (remote/transport failure) or wrap ErrPhoneNumberNotFound.
type Carrier interface {
	// FindTrunkByName returns the first trunk whose friendly name matches exactly.
	// found is false (with nil error) when no trunk matches, including an empty listing.
	FindTrunkByName(ctx context.Context, name string) (trunk Trunk, found bool, err error)

	// CreateTrunk creates a trunk with a randomized SIP domain and attaches sipURI as
	// its origination target. The trunk may exist remotely even if attaching fails.
	CreateTrunk(ctx context.Context, name, sipURI string) (Trunk, error)

	// AssociatePhoneNumber links an owned number to the trunk. Linking a number that is
	// already on the trunk is a no-op.
	AssociatePhoneNumber(ctx context.Context, trunk Trunk, phoneNumber string) error
}

// CarrierFactory builds a Carrier bound to one set of account credentials.
// A single factory is constructed at startup and injected; carriers are cheap per request.
type CarrierFactory interface {
	ForAccount(creds Credentials) (Carrier, error)
}

// Credentials authenticate against the carrier account that owns the numbers.
type Credentials struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"-"`
}

// Trunk is a carrier SIP trunk.
type Trunk struct {
	SID          string `json:"sid"`
	FriendlyName string `json:"friendly_name"`
	// DomainName is the trunk's SIP termination domain, e.g. livekit-trunk-1a2b3c4d.pstn.twilio.com.
	DomainName string `json:"domain_name"`
}

var ErrPhoneNumberNotFound = errors.New("telephony: phone number not found in carrier inventory")

// APIError is a non-2xx response or transport failure from the carrier.
type APIError struct {
	Op string
	// Status is the HTTP status; 0 means the request never got a response.
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("telephony: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("telephony: %s: status %d code %d: %s", e.Op, e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request may succeed.
func (e *APIError) Transient() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}
