package api

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"productcatalog/adapters/oidc"
	"productcatalog/adapters/session"
	"productcatalog/models"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// pngHeader 足以讓 http.DetectContentType 判斷為 image/png
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*ServerImpl
	router   *gin.Engine
	manager  *MockIProductManager
	users    *MockIUserDirectory
	provider *oidc.MockIProvider
	sessions *session.MockIStore
}

func newTestServer(t *testing.T, mutate ...func(*ServerConfig)) *testServer {
	t.Helper()
	ctrl := gomock.NewController(t)
	ts := &testServer{
		manager:  NewMockIProductManager(ctrl),
		users:    NewMockIUserDirectory(ctrl),
		provider: oidc.NewMockIProvider(ctrl),
		sessions: session.NewMockIStore(ctrl),
	}
	ts.provider.EXPECT().Name().Return("fake").AnyTimes()

	config := ServerConfig{
		Auth: AuthConfig{Issuer: "catalog-test", Audience: "catalog"},
	}
	for _, fn := range mutate {
		fn(&config)
	}
	server, err := NewServerWithDependencies(config, Dependencies{
		Manager:      ts.manager,
		Users:        ts.users,
		Providers:    map[string]oidc.IProvider{"fake": ts.provider},
		SessionStore: ts.sessions,
		Logger:       discardLogger,
	})
	require.NoError(t, err)
	ts.ServerImpl = server
	ts.router = server.Router()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// login 簽發 token 並加到請求上
func (ts *testServer) login(t *testing.T, req *http.Request, userID uuid.UUID) *http.Request {
	t.Helper()
	token, err := ts.tokens.Issue(&models.User{ID: userID, Username: "alice"})
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

type formFile struct {
	name    string
	content []byte
}

// multipartRequest 建立 multipart 表單請求
func multipartRequest(t *testing.T, method, target string, values map[string][]string, files ...formFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, vs := range values {
		for _, v := range vs {
			require.NoError(t, writer.WriteField(key, v))
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(FormFieldImages, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func pngFile(name string) formFile {
	return formFile{name: name, content: append(append([]byte{}, pngHeader...), []byte(name)...)}
}
