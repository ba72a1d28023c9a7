// 參考https://auth0.com/docs/get-started/apis/scopes/openid-connect-scopes
package oidc

import "strings"

type OpenID struct {
	Sub string `json:"sub"`
	Iss string `json:"iss"`
}

type Email struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type Profile struct {
	Name              string `json:"name"`
	Nickname          string `json:"nickname"`
	PreferredUsername string `json:"preferred_username"`
}

type IDToken struct {
	OpenID
	Email
	Profile
}

// Username 依序使用 preferred_username、nickname、name、email 前綴，最後才用 sub
func (t *IDToken) Username() string {
	for _, candidate := range []string{t.PreferredUsername, t.Nickname, t.Name} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	if local, _, ok := strings.Cut(t.Email.Email, "@"); ok && local != "" {
		return local
	}
	return t.Sub
}
