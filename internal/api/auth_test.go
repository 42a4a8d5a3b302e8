package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/peykchat/peyk/internal/cache"
	"github.com/peykchat/peyk/internal/config"
	"github.com/peykchat/peyk/internal/database"
	"github.com/peykchat/peyk/internal/server"
	"github.com/peykchat/peyk/internal/stats"
	"github.com/peykchat/peyk/internal/testutil"
	"github.com/peykchat/peyk/internal/transport"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestApp(t *testing.T) (*PeykApp, *database.MockRepository) {
	db := &database.MockRepository{}
	ms := server.NewMessengerServer(db, cache.New(cache.NewMemoryStore()),
		transport.NewLocal(), stats.NewMockProvider(), testutil.TestLogger(t))

	app := NewPeykApp(testutil.TestLogger(t), ms, db, &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, nil)
	return app, db
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

func TestCreateAccount(t *testing.T) {
	t.Run("creates the account", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("CreateAccount", mock.Anything, mock.MatchedBy(func(p database.CreateAccountParams) bool {
			// the handler must store a verifiable bcrypt hash, never the password
			return p.Username == "ada" && p.EmailAddress == "ada@example.com" &&
				bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("letmein-123")) == nil
		})).Return(database.User{Id: 1, Username: "ada", EmailAddress: "ada@example.com"}, nil).Once()
		defer db.AssertExpectations(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Email: "ada@example.com", Username: "ada", Password: "letmein-123",
		}))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, float64(1), resp["id"])
		assert.Equal(t, "ada", resp["username"])
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		app, db := newTestApp(t)
		defer db.AssertExpectations(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Email: "ada@example.com", Username: "ada", Password: "short",
		}))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "CreateAccount", mock.Anything, mock.Anything)
	})

	t.Run("duplicate account conflicts", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("CreateAccount", mock.Anything, mock.Anything).
			Return(database.User{}, database.ErrAlreadyExist).Once()
		defer db.AssertExpectations(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, RegisterRequest{
			Email: "ada@example.com", Username: "ada", Password: "letmein-123",
		}))
		app.createAccount(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein-123"), bcrypt.MinCost)
	require.NoError(t, err)
	account := database.User{
		Id: 1, Username: "ada", EmailAddress: "ada@example.com", PasswordHash: string(hash),
	}

	t.Run("sets the session cookie", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("GetAccountByEmail", mock.Anything, "ada@example.com").Return(account, nil).Once()
		defer db.AssertExpectations(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email: "ada@example.com", Password: "letmein-123",
		}))
		app.login(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected a token cookie")
		assert.True(t, cookie.HttpOnly)

		userId, err := app.extractUserIdFromToken(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, int64(1), userId)
	})

	t.Run("wrong password", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("GetAccountByEmail", mock.Anything, "ada@example.com").Return(account, nil).Once()
		defer db.AssertExpectations(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email: "ada@example.com", Password: "wrong",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey))
	})

	t.Run("unknown email", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("GetAccountByEmail", mock.Anything, "who@example.com").
			Return(database.User{}, database.ErrNotFound).Once()
		defer db.AssertExpectations(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", jsonBody(t, LoginRequest{
			Email: "who@example.com", Password: "letmein-123",
		}))
		app.login(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		app, _ := newTestApp(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		app.authMiddleware(app.session)(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		app, _ := newTestApp(t)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "not-a-jwt"})
		app.authMiddleware(app.session)(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		app, _ := newTestApp(t)
		token, err := app.createJwtForSession(1, -time.Minute)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		app.authMiddleware(app.session)(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("GetAccountById", mock.Anything, int64(1)).
			Return(database.User{Id: 1, Username: "ada"}, nil).Once()
		defer db.AssertExpectations(t)

		token, err := app.createJwtForSession(1, time.Hour)
		require.NoError(t, err)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		app.authMiddleware(app.session)(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "ada", resp["username"])
	})
}

func TestLogout(t *testing.T) {
	app, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	app.logout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()), "expected the cookie to be expired")
}
