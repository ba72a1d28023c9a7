package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"productcatalog/adapters/oidc"
	"productcatalog/adapters/session"
	"productcatalog/models"
)

const (
	ContextKeyUserID   = "catalog-user-id"
	ContextKeyUsername = "catalog-username"
)

// RequireUser 驗證 access token，token 可以放在 cookie 或 Authorization header
func (impl *ServerImpl) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "RequireUser"
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			tokenString, _ = c.Cookie(impl.config.Auth.CookieName)
		}
		if tokenString == "" {
			abortWithMessage(c, http.StatusUnauthorized, "Missing access token")
			return
		}
		claims, err := impl.tokens.Parse(tokenString)
		if err != nil {
			impl.logger.Info("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
			abortWithMessage(c, http.StatusUnauthorized, "Invalid access token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			abortWithMessage(c, http.StatusUnauthorized, "Invalid access token")
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyUsername, claims.Username)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// currentUserID 取得 RequireUser 寫入的使用者 ID
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// safeRedirect 只接受站內的相對路徑，避免 open redirect
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

// Obtain authentication url
// (GET /auth/sso/:provider/login)
func (impl *ServerImpl) GetAuthSsoProviderLogin(c *gin.Context) {
	const op = "GetAuthSsoProviderLogin"
	provider, ok := impl.oidcProviders[c.Param("provider")]
	if !ok {
		abortWithMessage(c, http.StatusNotFound, "Unknown SSO provider")
		return
	}
	s, err := session.GetSession(c)
	if err != nil {
		impl.logger.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	// 把 state 和 nonce 存在 session，callback 時取出比對
	verifier := oidc.NewExchangeVerifier()
	s.Set(SESSION_KEY_REQUEST_STATE, verifier.State)
	s.Set(SESSION_KEY_REQUEST_NONCE, verifier.Nonce)
	s.Set(SESSION_KEY_REQUEST_PROVIDER, provider.Name())
	s.Set(SESSION_KEY_URL_BEFORE_LOGIN, safeRedirect(c.Query("redirect_url")))
	if err := s.Save(); err != nil {
		impl.logger.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	// 返回 sso server 的登入頁面
	c.Redirect(http.StatusFound, provider.AuthURL(verifier.State, verifier.Nonce))
}

// Exchange authorization code
// (GET /auth/sso/:provider/callback)
func (impl *ServerImpl) GetAuthSsoProviderCallback(c *gin.Context) {
	const op = "GetAuthSsoProviderCallback"
	provider, ok := impl.oidcProviders[c.Param("provider")]
	if !ok {
		abortWithMessage(c, http.StatusNotFound, "Unknown SSO provider")
		return
	}
	s, err := session.GetSession(c)
	if err != nil {
		impl.logger.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	// state 和 nonce 只能使用一次
	verifier := &oidc.ExchangeVerifier{
		State: s.Pop(SESSION_KEY_REQUEST_STATE),
		Nonce: s.Pop(SESSION_KEY_REQUEST_NONCE),
	}
	requestProvider := s.Pop(SESSION_KEY_REQUEST_PROVIDER)
	redirectURL := safeRedirect(s.Pop(SESSION_KEY_URL_BEFORE_LOGIN))
	if err := s.Save(); err != nil {
		impl.logger.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if requestProvider != provider.Name() {
		abortWithMessage(c, http.StatusBadRequest, "Login request not found")
		return
	}

	// 向驗證伺服器交換token
	claims, err := provider.Exchange(c.Request.Context(), verifier, c.Query("code"), c.Query("state"))
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		abortWithMessage(c, http.StatusBadRequest, "Invalid login request")
		return
	}
	if err != nil {
		impl.logger.Error("Fail to exchange token", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusBadGateway, "Fail to exchange token")
		return
	}

	// 關聯使用者資料，identity 不存在時會建立新的使用者
	user, err := impl.users.FindOrCreateByIdentity(c.Request.Context(), provider.Name(), claims.Sub, claims.Username())
	if err != nil {
		impl.logger.Error("Fail to link user identity", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	tokenString, err := impl.tokens.Issue(user)
	if err != nil {
		impl.logger.Error("Fail to issue token", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	impl.logger.Info("User logged in", slog.String("provider", provider.Name()), slog.String("user", user.ID.String()))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(impl.config.Auth.CookieName, tokenString, impl.tokens.MaxAge(), "/", "", impl.config.Session.Secure, true)
	c.Redirect(http.StatusFound, redirectURL)
}

// Revoke authentication token
// (GET /auth/logout)
func (impl *ServerImpl) GetAuthLogout(c *gin.Context) {
	const op = "GetAuthLogout"
	// 只清除 cookie，不撤銷已簽發的 token
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(impl.config.Auth.CookieName, "", -1, "/", "", impl.config.Session.Secure, true)
	if s, err := session.GetSession(c); err == nil {
		if err := s.Destroy(); err != nil {
			impl.logger.Warn("Fail to destroy session", slog.String("op", op), slog.Any("error", err))
		}
	}
	c.Status(http.StatusNoContent)
}

// Get user information
// (GET /auth/me)
func (impl *ServerImpl) GetAuthMe(c *gin.Context) {
	const op = "GetAuthMe"
	userID, _ := currentUserID(c)
	user, err := impl.users.FindByID(c.Request.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		abortWithMessage(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		impl.logger.Error("Fail to find user", slog.String("op", op), slog.Any("error", err))
		abortWithMessage(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}
