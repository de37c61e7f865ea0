package handler

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchstack/switchstack-api/internal/apperr"
	"github.com/switchstack/switchstack-api/internal/middleware"
	"github.com/switchstack/switchstack-api/internal/model"
)

func TestSignup(t *testing.T) {
	e := newEcho()
	acc := &stubAccounts{}
	h := NewAuthHandler(acc, true)
	e.POST("/users/signup", h.Signup)

	rec := do(e, http.MethodPost, "/users/signup",
		`{"name":"Ada","email":"ada@example.com","password":"password123","passwordConfirm":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "signed.jwt.token", body["token"])
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, map[string]any{"name": "Ada", "email": "ada@example.com"}, user)
	assert.NotContains(t, rec.Body.String(), "hash")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, middleware.CookieName, ck.Name)
	assert.Equal(t, "signed.jwt.token", ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.True(t, ck.Secure)
	assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
}

func TestSignup_Validation(t *testing.T) {
	e := newEcho()
	acc := &stubAccounts{}
	e.POST("/users/signup", NewAuthHandler(acc, false).Signup)

	rec := do(e, http.MethodPost, "/users/signup",
		`{"name":"Ada","email":"ada@example.com","password":"password123","passwordConfirm":"different1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "fail", body["status"])
	assert.Contains(t, body["message"], "Passwords are not the same!")

	rec = do(e, http.MethodPost, "/users/signup", `{"name":"Ada","email":"nope","password":"short","passwordConfirm":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "Please provide a valid email")

	rec = do(e, http.MethodPost, "/users/signup", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, acc.signupIn.Email)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	e := newEcho()
	acc := &stubAccounts{err: apperr.Invalid("Duplicate field value: %q. Please use another value!", "ada@example.com")}
	e.POST("/users/signup", NewAuthHandler(acc, false).Signup)

	rec := do(e, http.MethodPost, "/users/signup",
		`{"name":"Ada","email":"ada@example.com","password":"password123","passwordConfirm":"password123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "fail", decode(t, rec)["status"])
}

func TestLogin(t *testing.T) {
	e := newEcho()
	e.POST("/users/login", NewAuthHandler(&stubAccounts{}, false).Login)

	rec := do(e, http.MethodPost, "/users/login", `{"email":"ada@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.False(t, rec.Result().Cookies()[0].Secure)

	rec = do(e, http.MethodPost, "/users/login", `{"email":"ada@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect email or password", decode(t, rec)["message"])
}

func TestLogoutAndDeleteMe(t *testing.T) {
	e := newEcho()
	acc := &stubAccounts{}
	h := NewAuthHandler(acc, false)
	e.GET("/users/logout", h.Logout)
	e.DELETE("/users/deleteMe", h.DeleteMe, withIdentity(model.Identity{UserID: 7, Role: model.RoleUser}))

	rec := do(e, http.MethodGet, "/users/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loggedout", rec.Result().Cookies()[0].Value)

	rec = do(e, http.MethodDelete, "/users/deleteMe", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uint64{7}, acc.deactivated)
}

func TestListUsersAndCreateStub(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAccounts{}, false)
	e.GET("/users", h.ListUsers)
	e.POST("/users", h.CreateUser)

	rec := do(e, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["results"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(e, http.MethodPost, "/users", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "This route is not defined! Please use /signup instead", body["message"])
}

func TestCreateUser_ReturnsErrorToCentralHandler(t *testing.T) {
	e := newEcho()
	var handled error
	central := e.HTTPErrorHandler
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled = err
		central(err, c)
	}
	e.POST("/users", NewAuthHandler(&stubAccounts{}, false).CreateUser)

	rec := do(e, http.MethodPost, "/users", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var he *echo.HTTPError
	require.ErrorAs(t, handled, &he)
	assert.Equal(t, http.StatusInternalServerError, he.Code)
}
