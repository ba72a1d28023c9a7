package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const DefaultContextKey = "catalog-session"

var ErrSessionNotFound = errors.New("session not found")

// MiddlewareOptions 包含 session middleware 的設定
type MiddlewareOptions struct {
	cookieName     string
	contextKey     string
	ttl            time.Duration
	cookiePath     string
	cookieDomain   string
	cookieSecure   bool
	cookieSameSite http.SameSite
}

type MiddlewareOption func(*MiddlewareOptions)

// WithCookieName 設定 cookie 名稱
func WithCookieName(name string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieName = name
	}
}

// WithContextKey 設定 session 在 context 中的 key
func WithContextKey(key string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.contextKey = key
	}
}

// WithTTL 設定 session 與 cookie 的有效時間
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.ttl = ttl
	}
}

// WithCookiePath 設定 cookie 的路徑
func WithCookiePath(path string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookiePath = path
	}
}

// WithCookieDomain 設定 cookie 的域名
func WithCookieDomain(domain string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieDomain = domain
	}
}

// WithCookieSecure 設定是否只在 HTTPS 連線中傳送 cookie
func WithCookieSecure(secure bool) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieSecure = secure
	}
}

// WithCookieSameSite 設定 cookie 的 SameSite 屬性
func WithCookieSameSite(sameSite http.SameSite) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieSameSite = sameSite
	}
}

// GinMiddleware 為每個請求建立 session，cookie 在 handler 執行前寫入
func GinMiddleware(store IStore, opts ...MiddlewareOption) gin.HandlerFunc {
	// 默認選項
	options := MiddlewareOptions{
		cookieName:     "catalog_session",
		contextKey:     DefaultContextKey,
		ttl:            time.Hour,
		cookiePath:     "/",
		cookieSecure:   true,
		cookieSameSite: http.SameSiteLaxMode,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *gin.Context) {
		sessionID, err := c.Cookie(options.cookieName)
		if err != nil || uuid.Validate(sessionID) != nil {
			sessionID = uuid.NewString()
		}

		c.Set(options.contextKey, NewSession(c.Request.Context(), sessionID, store, options.ttl))
		c.SetSameSite(options.cookieSameSite)
		c.SetCookie(
			options.cookieName,
			sessionID,
			int(options.ttl/time.Second),
			options.cookiePath,
			options.cookieDomain,
			options.cookieSecure,
			true,
		)
		c.Next()
	}
}

// GetSession 從 context 中取得並載入 session
func GetSession(ctx context.Context, opts ...MiddlewareOption) (ISession, error) {
	const op = "session.GetSession"
	options := MiddlewareOptions{
		contextKey: DefaultContextKey,
	}
	for _, opt := range opts {
		opt(&options)
	}

	v := ctx.Value(options.contextKey)
	if v == nil {
		return nil, ErrSessionNotFound
	}
	session, ok := v.(ISession)
	if !ok {
		return nil, fmt.Errorf("[%s] Invalid session type in context", op)
	}
	if err := session.Load(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to load session, err=%w", op, err)
	}
	return session, nil
}
