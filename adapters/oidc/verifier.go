package oidc

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

// ExchangeVerifier 保存發起登入時產生的 state 與 nonce
type ExchangeVerifier struct {
	State string
	Nonce string
}

// NewExchangeVerifier 產生一組新的 state 與 nonce
func NewExchangeVerifier() *ExchangeVerifier {
	return &ExchangeVerifier{
		State: uuid.NewString(),
		Nonce: uuid.NewString(),
	}
}

func (v *ExchangeVerifier) VerifyState(state string) bool {
	return v.State != "" && subtle.ConstantTimeCompare([]byte(state), []byte(v.State)) == 1
}

func (v *ExchangeVerifier) VerifyNonce(nonce string) bool {
	return v.Nonce != "" && subtle.ConstantTimeCompare([]byte(nonce), []byte(v.Nonce)) == 1
}
