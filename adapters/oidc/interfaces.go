//go:generate mockgen -package=oidc -destination=mock.go -source=interfaces.go

package oidc

import "context"

// IProvider 是登入流程需要的 OIDC 操作
type IProvider interface {
	Name() string
	AuthURL(state, nonce string) string
	Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state string) (*IDToken, error)
}
