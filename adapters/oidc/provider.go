package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrStateMismatch = errors.New("state mismatch")
	ErrNonceMismatch = errors.New("nonce mismatch")
)

type ProviderConfig struct {
	Name         string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Provider struct {
	name     string
	oauth2   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewProvider 透過 discovery 取得端點，ctx 只用於這次請求
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	const op = "NewProvider"
	if cfg.Name == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("[%s] Provider name and client id are required", op)
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider %s, err=%w", op, cfg.Name, err)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	return &Provider{
		name: cfg.Name,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) AuthURL(state, nonce string) string {
	return p.oauth2.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange 以授權碼換取 token，並驗證 state、簽章與 nonce
func (p *Provider) Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state string) (*IDToken, error) {
	const op = "Exchange"
	if verifier == nil || !verifier.VerifyState(state) {
		return nil, ErrStateMismatch
	}
	oauth2Token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to exchange token, err=%w", op, err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("[%s] No id_token field in oauth2 token", op)
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to verify ID token, err=%w", op, err)
	}
	if !verifier.VerifyNonce(idToken.Nonce) {
		return nil, ErrNonceMismatch
	}
	var claims IDToken
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse ID token claims, err=%w", op, err)
	}
	return &claims, nil
}
