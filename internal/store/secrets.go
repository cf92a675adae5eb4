package store

import (
	"encoding/base64"
	"fmt"
)

// SecretCodec transforms secret columns (carrier auth token, SIP password) at the
// store boundary. Callers above the store only ever see plaintext.
type SecretCodec interface {
	Encode(plain string) (string, error)
	Decode(stored string) (string, error)
}

// Base64Codec is reversible obfuscation, not encryption. It keeps secrets out of
// casual view in dumps and logs; swap in a KMS-backed codec for real protection.
type Base64Codec struct{}

func (Base64Codec) Encode(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString([]byte(plain)), nil
}

func (Base64Codec) Decode(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	b, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("store: decode secret: %w", err)
	}
	return string(b), nil
}
