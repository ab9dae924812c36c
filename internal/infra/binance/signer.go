package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer handles Binance API request signatures
type Signer struct {
	apiKey    string
	secretKey string
}

// NewSigner creates a new Signer instance
func NewSigner(apiKey, secretKey string) *Signer {
	return &Signer{apiKey: apiKey, secretKey: secretKey}
}

// APIKey returns the key sent in the X-MBX-APIKEY header.
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign computes the hex HMAC-SHA256 signature over the full query
// string (including the timestamp parameter), as Binance requires.
func (s *Signer) Sign(query string) string {
	h := hmac.New(sha256.New, []byte(s.secretKey))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}
