package connector

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const (
	sipUsernamePrefix   = "lk_sip_user_"
	sipPasswordLength   = 12
	sipPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"
)

// SIPCredentials authenticate the media platform's outbound trunk against the carrier trunk.
type SIPCredentials struct {
	Username string
	Password string
}

func generateSIPCredentials() (SIPCredentials, error) {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return SIPCredentials{}, err
	}
	password := make([]byte, sipPasswordLength)
	max := big.NewInt(int64(len(sipPasswordAlphabet)))
	for i := range password {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return SIPCredentials{}, err
		}
		password[i] = sipPasswordAlphabet[n.Int64()]
	}
	return SIPCredentials{
		Username: sipUsernamePrefix + hex.EncodeToString(suffix),
		Password: string(password),
	}, nil
}
