package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/messagely/apiserver/internal/credential"
	"github.com/messagely/apiserver/internal/services"
	"github.com/messagely/apiserver/internal/store"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

var (
	userColumns = []string{"username", "password", "first_name", "last_name", "phone", "join_at", "last_login_at"}

	messageColumns = []string{
		"id", "from_username", "to_username", "body", "sent_at", "read_at",
		"f_username", "f_first_name", "f_last_name", "f_phone",
		"t_username", "t_first_name", "t_last_name", "t_phone",
	}

	joined = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
)

type testAPI struct {
	router http.Handler
	mock   sqlmock.Sqlmock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	userService := services.NewUserService(store.NewUserRepository(db), credential.NewBcryptStore(bcrypt.MinCost))
	messageService := services.NewMessageService(store.NewMessageRepository(db), userService, nil)
	inbox := services.NewInbox(userService, messageService, nil)
	auth := NewAuthHandler(userService, testSecret, time.Hour)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, auth, nil)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, inbox, auth.RequireAuth)
	})
	return &testAPI{router: router, mock: mock}
}

func (a *testAPI) do(t *testing.T, method, path, identity string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		token, err := issueToken(identity, []byte(testSecret), time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func userRow(username, hash string) *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).
		AddRow(username, hash, "First "+username, "Last "+username, "555-"+username, joined, joined)
}

func messageRow(id int64, from, to string, readAt any) *sqlmock.Rows {
	return sqlmock.NewRows(messageColumns).
		AddRow(id, from, to, "hello", joined, readAt,
			from, "First "+from, "Last "+from, "555-"+from,
			to, "First "+to, "Last "+to, "555-"+to)
}

func TestHealthz(t *testing.T) {
	rr := newTestAPI(t).do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRegister(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)

	api.mock.ExpectExec(`INSERT INTO users`).
		WithArgs("alice", sqlmock.AnyArg(), "Alice", "Liddell", "555-0100", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rr := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username":   "alice",
		"password":   "wonderland",
		"first_name": "Alice",
		"last_name":  "Liddell",
		"phone":      "555-0100",
	})
	req.Equal(http.StatusCreated, rr.Code)

	out := decodeBody[AuthResponse](t, rr)
	req.Equal("alice", out.User.Username)
	subject, err := parseTokenSubject(out.Token, []byte(testSecret))
	req.NoError(err)
	req.Equal("alice", subject)
}

func TestRegister_Conflict(t *testing.T) {
	api := newTestAPI(t)
	api.mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	rr := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestRegister_MissingPassword(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "password failed required validation", decodeBody[ErrorResponse](t, rr).Error)
}

func TestRegister_PasswordOverBcryptLimit(t *testing.T) {
	// 72 characters pass the length rule but take 144 bytes.
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice",
		"password": strings.Repeat("é", 72),
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "password must be at most 72 bytes", decodeBody[ErrorResponse](t, rr).Error)
}

func TestRegister_InvalidUsername(t *testing.T) {
	api := newTestAPI(t)
	for _, name := range []string{"..", "../etc", "a b"} {
		rr := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{"username": name, "password": "pw"})
		require.Equal(t, http.StatusBadRequest, rr.Code, name)
		require.Equal(t, "username failed username validation", decodeBody[ErrorResponse](t, rr).Error)
	}
}

func TestLogin(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("wonderland"), bcrypt.MinCost)
	req.NoError(err)

	api.mock.ExpectQuery(`SELECT username, password`).WithArgs("alice").
		WillReturnRows(userRow("alice", string(hash)))
	api.mock.ExpectExec(`UPDATE users SET last_login_at`).WithArgs(sqlmock.AnyArg(), "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	api.mock.ExpectQuery(`SELECT username, password`).WithArgs("alice").
		WillReturnRows(userRow("alice", string(hash)))

	rr := api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wonderland"})
	req.Equal(http.StatusOK, rr.Code)
	out := decodeBody[AuthResponse](t, rr)
	req.NotEmpty(out.Token)
	req.Equal("alice", out.User.Username)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("wonderland"), bcrypt.MinCost)
	req.NoError(err)

	api.mock.ExpectQuery(`SELECT username, password`).WithArgs("alice").
		WillReturnRows(userRow("alice", string(hash)))
	rr := api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	req.Equal(http.StatusUnauthorized, rr.Code)
	req.Equal("invalid credentials", decodeBody[ErrorResponse](t, rr).Error)

	api.mock.ExpectQuery(`SELECT username, password`).WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)
	rr = api.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "nope"})
	req.Equal(http.StatusUnauthorized, rr.Code)
}

func TestUsers_RequireAuth(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/users/", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/users/alice/to", "", nil).Code)
}

func TestGetUser_OtherProfileForbidden(t *testing.T) {
	rr := newTestAPI(t).do(t, http.MethodGet, "/users/alice/", "bob", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetMessage_ForbiddenBeforeLookup(t *testing.T) {
	// No query is expected: an unexpected one would surface as a 500.
	rr := newTestAPI(t).do(t, http.MethodGet, "/users/alice/messages/999", "carol", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetMessage_NotFound(t *testing.T) {
	api := newTestAPI(t)
	api.mock.ExpectQuery(`FROM messages AS m`).WithArgs(int64(5)).WillReturnError(sql.ErrNoRows)

	rr := api.do(t, http.MethodGet, "/users/bob/messages/5", "bob", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetMessage_BadID(t *testing.T) {
	rr := newTestAPI(t).do(t, http.MethodGet, "/users/bob/messages/zero", "bob", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMarkRead(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)
	readAt := joined.Add(time.Hour)

	api.mock.ExpectQuery(`FROM messages AS m`).WithArgs(int64(1)).
		WillReturnRows(messageRow(1, "alice", "bob", nil))
	api.mock.ExpectExec(`UPDATE messages SET read_at`).WithArgs(sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	api.mock.ExpectQuery(`FROM messages AS m`).WithArgs(int64(1)).
		WillReturnRows(messageRow(1, "alice", "bob", readAt))

	rr := api.do(t, http.MethodPost, "/users/bob/messages/1/read", "bob", nil)
	req.Equal(http.StatusOK, rr.Code)
	out := decodeBody[MessageResponse](t, rr)
	req.NotNil(out.Message.ReadAt)
	req.True(readAt.Equal(*out.Message.ReadAt))
}

func TestMarkRead_SenderForbidden(t *testing.T) {
	api := newTestAPI(t)
	api.mock.ExpectQuery(`FROM messages AS m`).WithArgs(int64(1)).
		WillReturnRows(messageRow(1, "alice", "bob", nil))

	rr := api.do(t, http.MethodPost, "/users/alice/messages/1/read", "alice", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSendMessage(t *testing.T) {
	req := require.New(t)
	api := newTestAPI(t)

	api.mock.ExpectQuery(`SELECT EXISTS`).WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	api.mock.ExpectQuery(`INSERT INTO messages`).WithArgs("alice", "bob", "hello", sqlmock.AnyArg()).
		WillReturnRows(messageRow(7, "alice", "bob", nil))

	rr := api.do(t, http.MethodPost, "/users/alice/messages", "alice", map[string]string{
		"to_username": "bob",
		"body":        "hello",
	})
	req.Equal(http.StatusCreated, rr.Code)
	out := decodeBody[MessageResponse](t, rr)
	req.Equal(int64(7), out.Message.ID)
	req.Equal("First bob", out.Message.To.FirstName)
}

func TestSendMessage_UnknownRecipient(t *testing.T) {
	api := newTestAPI(t)
	api.mock.ExpectQuery(`SELECT EXISTS`).WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rr := api.do(t, http.MethodPost, "/users/alice/messages", "alice", map[string]string{
		"to_username": "ghost",
		"body":        "hello",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSendMessage_AsSomeoneElse(t *testing.T) {
	rr := newTestAPI(t).do(t, http.MethodPost, "/users/alice/messages", "bob", map[string]string{
		"to_username": "bob",
		"body":        "spoof",
	})
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExportThreads_Disabled(t *testing.T) {
	rr := newTestAPI(t).do(t, http.MethodPost, "/users/alice/archive", "alice", nil)
	require.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestIPRateLimiter(t *testing.T) {
	req := require.New(t)
	limiter := NewIPRateLimiter(1, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) int {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, r)
		return rr.Code
	}

	req.Equal(http.StatusNoContent, call("10.0.0.1:1234"))
	req.Equal(http.StatusTooManyRequests, call("10.0.0.1:5678"))
	req.Equal(http.StatusNoContent, call("10.0.0.2:1234"))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusFor(services.KindBadInput))
	require.Equal(t, http.StatusUnauthorized, statusFor(services.KindUnauthenticated))
	require.Equal(t, http.StatusForbidden, statusFor(services.KindForbidden))
	require.Equal(t, http.StatusNotFound, statusFor(services.KindNotFound))
	require.Equal(t, http.StatusConflict, statusFor(services.KindConflict))
	require.Equal(t, http.StatusInternalServerError, statusFor(services.KindInternal))
}
