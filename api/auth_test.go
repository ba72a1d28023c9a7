package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"productcatalog/adapters/oidc"
	"productcatalog/models"
)

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestRequireUser(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name       string
		prepare    func(t *testing.T, ts *testServer, req *http.Request)
		wantStatus int
	}{
		{
			name:       "missing token",
			prepare:    func(t *testing.T, ts *testServer, req *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "bearer token",
			prepare: func(t *testing.T, ts *testServer, req *http.Request) {
				ts.login(t, req, userID)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "cookie token",
			prepare: func(t *testing.T, ts *testServer, req *http.Request) {
				token, err := ts.tokens.Issue(&models.User{ID: userID})
				require.NoError(t, err)
				req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "invalid token",
			prepare: func(t *testing.T, ts *testServer, req *http.Request) {
				req.Header.Set("Authorization", "Bearer nope")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong scheme",
			prepare: func(t *testing.T, ts *testServer, req *http.Request) {
				req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.wantStatus == http.StatusOK {
				ts.users.EXPECT().FindByID(gomock.Any(), userID).Return(&models.User{ID: userID, Username: "alice"}, nil)
			}
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			tt.prepare(t, ts, req)
			rec := ts.do(req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGetAuthMe(t *testing.T) {
	userID := uuid.New()
	ts := newTestServer(t)
	ts.users.EXPECT().FindByID(gomock.Any(), userID).Return(&models.User{
		ID:       userID,
		Username: "alice",
		Identities: []models.UserIdentity{
			{SsoProvider: &models.SsoProvider{Name: "google"}},
			{SsoProvider: &models.SsoProvider{Name: "github"}},
		},
	}, nil)

	rec := ts.do(ts.login(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil), userID))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, []string{"google", "github"}, resp.SsoProviders)

	ts = newTestServer(t)
	ts.users.EXPECT().FindByID(gomock.Any(), userID).Return(nil, models.ErrNotFound)
	rec = ts.do(ts.login(t, httptest.NewRequest(http.MethodGet, "/auth/me", nil), userID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAuthSsoProviderLogin(t *testing.T) {
	t.Run("redirects to provider", func(t *testing.T) {
		ts := newTestServer(t)
		var saved map[string]string
		ts.sessions.EXPECT().Load(gomock.Any(), gomock.Any()).Return(nil, nil)
		ts.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), time.Hour).
			DoAndReturn(func(_ context.Context, _ string, data map[string]string, _ time.Duration) error {
				saved = data
				return nil
			})
		ts.provider.EXPECT().AuthURL(gomock.Any(), gomock.Any()).DoAndReturn(func(state, nonce string) string {
			return "https://idp.example.com/authorize?state=" + state
		})

		rec := ts.do(httptest.NewRequest(http.MethodGet, "/auth/sso/fake/login?redirect_url=/products", nil))
		require.Equal(t, http.StatusFound, rec.Code)
		require.NotNil(t, saved)
		assert.NotEmpty(t, saved[SESSION_KEY_REQUEST_STATE])
		assert.NotEmpty(t, saved[SESSION_KEY_REQUEST_NONCE])
		assert.Equal(t, "fake", saved[SESSION_KEY_REQUEST_PROVIDER])
		assert.Equal(t, "/products", saved[SESSION_KEY_URL_BEFORE_LOGIN])
		assert.Equal(t, "https://idp.example.com/authorize?state="+saved[SESSION_KEY_REQUEST_STATE], rec.Header().Get("Location"))
		assert.NotNil(t, findCookie(rec, "catalog_session"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/auth/sso/other/login", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("session store down", func(t *testing.T) {
		ts := newTestServer(t)
		ts.sessions.EXPECT().Load(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/auth/sso/fake/login", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetAuthSsoProviderCallback(t *testing.T) {
	user := &models.User{ID: uuid.New(), Username: "alice"}
	pending := func() map[string]string {
		return map[string]string{
			SESSION_KEY_REQUEST_STATE:    "s1",
			SESSION_KEY_REQUEST_NONCE:    "n1",
			SESSION_KEY_REQUEST_PROVIDER: "fake",
			SESSION_KEY_URL_BEFORE_LOGIN: "/products",
		}
	}

	tests := []struct {
		name         string
		session      map[string]string
		setup        func(ts *testServer)
		wantStatus   int
		wantLocation string
		wantToken    bool
	}{
		{
			name:    "success",
			session: pending(),
			setup: func(ts *testServer) {
				ts.provider.EXPECT().Exchange(gomock.Any(), &oidc.ExchangeVerifier{State: "s1", Nonce: "n1"}, "code-1", "s1").
					Return(&oidc.IDToken{OpenID: oidc.OpenID{Sub: "sub-1"}, Profile: oidc.Profile{PreferredUsername: "alice"}}, nil)
				ts.users.EXPECT().FindOrCreateByIdentity(gomock.Any(), "fake", "sub-1", "alice").Return(user, nil)
			},
			wantStatus:   http.StatusFound,
			wantLocation: "/products",
			wantToken:    true,
		},
		{
			name:    "state mismatch",
			session: pending(),
			setup: func(ts *testServer) {
				ts.provider.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, oidc.ErrStateMismatch)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "nonce mismatch",
			session: pending(),
			setup: func(ts *testServer) {
				ts.provider.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, oidc.ErrNonceMismatch)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no pending login",
			session:    map[string]string{},
			setup:      func(ts *testServer) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "exchange failure",
			session: pending(),
			setup: func(ts *testServer) {
				ts.provider.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("invalid_grant"))
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:    "user directory failure",
			session: pending(),
			setup: func(ts *testServer) {
				ts.provider.EXPECT().Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(&oidc.IDToken{OpenID: oidc.OpenID{Sub: "sub-1"}}, nil)
				ts.users.EXPECT().FindOrCreateByIdentity(gomock.Any(), "fake", "sub-1", "sub-1").Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.sessions.EXPECT().Load(gomock.Any(), gomock.Any()).Return(tt.session, nil)
			if len(tt.session) > 0 {
				// state 與 nonce 取出後立即寫回，確保只能使用一次
				ts.sessions.EXPECT().Save(gomock.Any(), gomock.Any(), map[string]string{}, gomock.Any()).Return(nil)
			}
			tt.setup(ts)

			rec := ts.do(httptest.NewRequest(http.MethodGet, "/auth/sso/fake/callback?code=code-1&state=s1", nil))
			require.Equal(t, tt.wantStatus, rec.Code)
			cookie := findCookie(rec, "access_token")
			if !tt.wantToken {
				assert.Nil(t, cookie)
				return
			}
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			require.NotNil(t, cookie)
			assert.True(t, cookie.HttpOnly)
			claims, err := ts.tokens.Parse(cookie.Value)
			require.NoError(t, err)
			assert.Equal(t, user.ID.String(), claims.Subject)
		})
	}
}

func TestGetAuthLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.EXPECT().Load(gomock.Any(), gomock.Any()).Return(map[string]string{"k": "v"}, nil)
	ts.sessions.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookie := findCookie(rec, "access_token")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{target: "/products?owner=1", want: "/products?owner=1"},
		{target: "", want: "/"},
		{target: "https://evil.example.com", want: "/"},
		{target: "//evil.example.com", want: "/"},
		{target: "/\\evil.example.com", want: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, safeRedirect(tt.target))
		})
	}
}
