package telephony

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	trunkingv1 "github.com/twilio/twilio-go/rest/trunking/v1"
)

const (
	twilioDomainSuffix        = ".pstn.twilio.com"
	originationFriendlyName   = "LiveKit SIP URI"
	originationWeight         = 1
	originationPriority       = 1
	incomingNumberLookupLimit = 20
	defaultTrunkDomainPrefix  = "livekit-trunk-"
)

// trunkingAPI is the subset of the Twilio Trunking v1 service we call.
type trunkingAPI interface {
	ListTrunk(params *trunkingv1.ListTrunkParams) ([]trunkingv1.TrunkingV1Trunk, error)
	CreateTrunk(params *trunkingv1.CreateTrunkParams) (*trunkingv1.TrunkingV1Trunk, error)
	CreateOriginationUrl(trunkSid string, params *trunkingv1.CreateOriginationUrlParams) (*trunkingv1.TrunkingV1OriginationUrl, error)
	ListPhoneNumber(trunkSid string, params *trunkingv1.ListPhoneNumberParams) ([]trunkingv1.TrunkingV1PhoneNumber, error)
	CreatePhoneNumber(trunkSid string, params *trunkingv1.CreatePhoneNumberParams) (*trunkingv1.TrunkingV1PhoneNumber, error)
}

// inventoryAPI is the subset of the Twilio 2010 API used to find owned numbers.
type inventoryAPI interface {
	ListIncomingPhoneNumber(params *openapi.ListIncomingPhoneNumberParams) ([]openapi.ApiV2010IncomingPhoneNumber, error)
}

// TwilioOptions tunes the Twilio adapter.
type TwilioOptions struct {
	// DomainPrefix is prepended to the random part of new trunk domains.
	DomainPrefix string
}

// TwilioFactory creates a TwilioCarrier per set of account credentials.
type TwilioFactory struct {
	opts TwilioOptions
}

func NewTwilioFactory(opts TwilioOptions) *TwilioFactory {
	if opts.DomainPrefix == "" {
		opts.DomainPrefix = defaultTrunkDomainPrefix
	}
	return &TwilioFactory{opts: opts}
}

func (f *TwilioFactory) ForAccount(creds Credentials) (Carrier, error) {
	if creds.AccountSID == "" || creds.AuthToken == "" {
		return nil, errors.New("telephony: twilio account sid and auth token required")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})
	return newTwilioCarrier(rc.TrunkingV1, rc.Api, f.opts.DomainPrefix), nil
}

// TwilioCarrier implements Carrier over the Twilio REST API.
// The SDK has no context support, so ctx is only checked before each request.
type TwilioCarrier struct {
	trunking     trunkingAPI
	inventory    inventoryAPI
	domainPrefix string
	randomHex    func(n int) (string, error)
}

func newTwilioCarrier(trunking trunkingAPI, inventory inventoryAPI, domainPrefix string) *TwilioCarrier {
	return &TwilioCarrier{
		trunking:     trunking,
		inventory:    inventory,
		domainPrefix: domainPrefix,
		randomHex:    randomHex,
	}
}

func (c *TwilioCarrier) FindTrunkByName(ctx context.Context, name string) (Trunk, bool, error) {
	if err := ctx.Err(); err != nil {
		return Trunk{}, false, err
	}
	trunks, err := c.trunking.ListTrunk(&trunkingv1.ListTrunkParams{})
	if err != nil {
		return Trunk{}, false, wrapTwilioErr("list trunks", err)
	}
	for _, t := range trunks {
		if deref(t.FriendlyName) == name {
			return trunkFromTwilio(t), true, nil
		}
	}
	return Trunk{}, false, nil
}

func (c *TwilioCarrier) CreateTrunk(ctx context.Context, name, sipURI string) (Trunk, error) {
	if err := ctx.Err(); err != nil {
		return Trunk{}, err
	}
	suffix, err := c.randomHex(4)
	if err != nil {
		return Trunk{}, fmt.Errorf("telephony: trunk domain: %w", err)
	}
	domain := c.domainPrefix + suffix + twilioDomainSuffix

	created, err := c.trunking.CreateTrunk((&trunkingv1.CreateTrunkParams{}).
		SetFriendlyName(name).
		SetDomainName(domain))
	if err != nil {
		return Trunk{}, wrapTwilioErr("create trunk", err)
	}
	trunk := trunkFromTwilio(*created)

	if err := ctx.Err(); err != nil {
		return trunk, err
	}
	_, err = c.trunking.CreateOriginationUrl(trunk.SID, (&trunkingv1.CreateOriginationUrlParams{}).
		SetSipUrl(sipURI).
		SetWeight(originationWeight).
		SetPriority(originationPriority).
		SetEnabled(true).
		SetFriendlyName(originationFriendlyName))
	if err != nil {
		return trunk, wrapTwilioErr("create origination url", err)
	}
	return trunk, nil
}

func (c *TwilioCarrier) AssociatePhoneNumber(ctx context.Context, trunk Trunk, phoneNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	owned, err := c.inventory.ListIncomingPhoneNumber((&openapi.ListIncomingPhoneNumberParams{}).
		SetPhoneNumber(phoneNumber).
		SetLimit(incomingNumberLookupLimit))
	if err != nil {
		return wrapTwilioErr("list incoming phone numbers", err)
	}
	if len(owned) == 0 || deref(owned[0].Sid) == "" {
		return fmt.Errorf("%w: %s", ErrPhoneNumberNotFound, phoneNumber)
	}
	numberSID := deref(owned[0].Sid)

	if err := ctx.Err(); err != nil {
		return err
	}
	linked, err := c.trunking.ListPhoneNumber(trunk.SID, &trunkingv1.ListPhoneNumberParams{})
	if err != nil {
		return wrapTwilioErr("list trunk phone numbers", err)
	}
	for _, n := range linked {
		if deref(n.Sid) == numberSID {
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.trunking.CreatePhoneNumber(trunk.SID, (&trunkingv1.CreatePhoneNumberParams{}).
		SetPhoneNumberSid(numberSID)); err != nil {
		return wrapTwilioErr("associate phone number", err)
	}
	return nil
}

func trunkFromTwilio(t trunkingv1.TrunkingV1Trunk) Trunk {
	return Trunk{
		SID:          deref(t.Sid),
		FriendlyName: deref(t.FriendlyName),
		DomainName:   deref(t.DomainName),
	}
}

func wrapTwilioErr(op string, err error) error {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return &APIError{Op: op, Status: restErr.Status, Code: restErr.Code, Message: restErr.Message, Err: err}
	}
	return &APIError{Op: op, Err: err}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
