package api

import (
	"github.com/gin-gonic/gin"

	"productcatalog/adapters/session"
)

const (
	SESSION_KEY_REQUEST_STATE    = "request_state"
	SESSION_KEY_REQUEST_NONCE    = "request_nonce"
	SESSION_KEY_REQUEST_PROVIDER = "request_provider"
	SESSION_KEY_URL_BEFORE_LOGIN = "url_before_login"
)

func (impl *ServerImpl) SessionMiddleware() gin.HandlerFunc {
	return session.GinMiddleware(
		impl.sessionStore,
		session.WithCookieName(impl.config.Session.CookieName),
		session.WithTTL(impl.config.Session.TTL),
		session.WithCookieSecure(impl.config.Session.Secure),
	)
}
