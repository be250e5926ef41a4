package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/earshotfm/earshot/internal/store"
)

var testSecret = []byte("test-secret-test-secret-test!!")

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &store.Store{DB: db}, mock
}

func postJSON(t *testing.T, h echo.HandlerFunc, target, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func asHTTPError(t *testing.T, err error) *echo.HTTPError {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	return asHTTPError(t, err).Code
}

func TestSignupCreatesUser(t *testing.T) {
	st, mock := newMockStore(t)
	a := &AuthHandler{Store: st, Secret: testSecret}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`)).
		WithArgs("new@example.com", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))

	rec, err := postJSON(t, a.signup, "/api/auth/signup", `{"email":"New@Example.com","password":"hunter2hunter2"}`)
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	st, mock := newMockStore(t)
	a := &AuthHandler{Store: st, Secret: testSecret}

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("dup@example.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := postJSON(t, a.signup, "/api/auth/signup", `{"email":"dup@example.com","password":"hunter2hunter2"}`)
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
}

func TestSignupValidation(t *testing.T) {
	st, _ := newMockStore(t)
	a := &AuthHandler{Store: st, Secret: testSecret}

	cases := []struct {
		name string
		body string
	}{
		{"short password", `{"email":"a@b.com","password":"short"}`},
		{"missing email", `{"password":"hunter2hunter2"}`},
		{"bad email", `{"email":"not-an-email","password":"hunter2hunter2"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := postJSON(t, a.signup, "/api/auth/signup", tc.body)
			if code := httpCode(t, err); code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", code)
			}
		})
	}
}

func TestLoginSetsCookieAndReturnsToken(t *testing.T) {
	st, mock := newMockStore(t)
	a := &AuthHandler{Store: st, Secret: testSecret}

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash, is_admin FROM users WHERE email=$1`)).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "is_admin"}).AddRow("user-1", string(hash), false))

	rec, err := postJSON(t, a.login, "/api/auth/login", `{"email":"user@example.com","password":"hunter2hunter2"}`)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected a token in the body")
	}
	if got := rec.Header().Get("Authorization"); got != "Bearer "+resp.Token {
		t.Fatalf("unexpected Authorization header: %q", got)
	}

	cookies := rec.Result().Cookies()
	var auth *http.Cookie
	for _, ck := range cookies {
		if ck.Name == "auth" {
			auth = ck
		}
	}
	if auth == nil {
		t.Fatalf("auth cookie not set")
	}
	if !auth.HttpOnly || auth.Value != resp.Token {
		t.Fatalf("unexpected cookie: %+v", auth)
	}
}

func TestLoginGrantsAdminScope(t *testing.T) {
	st, mock := newMockStore(t)
	a := &AuthHandler{Store: st, Secret: testSecret}

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash, is_admin FROM users WHERE email=$1`)).
		WithArgs("root@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "is_admin"}).AddRow("admin-1", string(hash), true))

	rec, err := postJSON(t, a.login, "/api/auth/login", `{"email":"root@example.com","password":"hunter2hunter2"}`)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	parsed, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) { return testSecret, nil })
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	scopes, ok := claims["scopes"].([]interface{})
	if !ok || len(scopes) != 1 || scopes[0] != "admin" {
		t.Fatalf("expected admin scope, got %v", claims["scopes"])
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	st, mock := newMockStore(t)
	a := &AuthHandler{Store: st, Secret: testSecret}

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse-battery"), bcrypt.MinCost)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash, is_admin FROM users WHERE email=$1`)).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash", "is_admin"}).AddRow("user-1", string(hash), false))

	_, err := postJSON(t, a.login, "/api/auth/login", `{"email":"user@example.com","password":"wrong-password"}`)
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestLogoutExpiresCookie(t *testing.T) {
	a := &AuthHandler{}

	rec, err := postJSON(t, a.logout, "/api/auth/logout", "")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "auth" || cookies[0].MaxAge != -1 {
		t.Fatalf("expected expired auth cookie, got %+v", cookies)
	}
}
