package connector

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ConnectParams is the input of a connect run. Carrier credentials are used for this
// run and stored (obfuscated) on the inbound trunk record.
type ConnectParams struct {
	PhoneNumber       string `json:"phone_number" validate:"required,e164"`
	AccountID         string `json:"account_id" validate:"required"`
	CarrierAccountSID string `json:"carrier_account_sid" validate:"required"`
	CarrierAuthToken  string `json:"carrier_auth_token" validate:"required"`
}

// Normalize trims surrounding whitespace from every field.
func (p *ConnectParams) Normalize() {
	p.PhoneNumber = strings.TrimSpace(p.PhoneNumber)
	p.AccountID = strings.TrimSpace(p.AccountID)
	p.CarrierAccountSID = strings.TrimSpace(p.CarrierAccountSID)
	p.CarrierAuthToken = strings.TrimSpace(p.CarrierAuthToken)
}

func (p ConnectParams) Validate() error {
	return validationError(validate.Struct(p))
}

// String never includes the auth token.
func (p ConnectParams) String() string {
	return fmt.Sprintf("ConnectParams{phone_number=%s account_id=%s carrier_account_sid=%s}",
		p.PhoneNumber, p.AccountID, p.CarrierAccountSID)
}

// DisconnectParams identifies the number whose routing would be torn down.
type DisconnectParams struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
	AccountID   string `json:"account_id" validate:"required"`
}

func (p *DisconnectParams) Normalize() {
	p.PhoneNumber = strings.TrimSpace(p.PhoneNumber)
	p.AccountID = strings.TrimSpace(p.AccountID)
}

func (p DisconnectParams) Validate() error {
	return validationError(validate.Struct(p))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Kind: KindInvalidParams, Step: StepValidate, Err: err}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return &Error{Kind: KindInvalidParams, Step: StepValidate, Err: errors.New(strings.Join(msgs, "; "))}
}
