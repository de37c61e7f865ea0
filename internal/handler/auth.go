package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/middleware"
	"github.com/switchstack/switchstack-api/internal/model"
	"github.com/switchstack/switchstack-api/internal/service"
)

// Accounts is the credential store as seen by the HTTP layer.
type Accounts interface {
	Signup(ctx context.Context, in service.SignupInput) (service.Session, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Deactivate(ctx context.Context, caller model.Identity) error
	ListUsers(ctx context.Context) ([]model.User, error)
}

// AuthHandler serves signup, login, logout and the user endpoints.
type AuthHandler struct {
	Accounts     Accounts
	SecureCookie bool
}

func NewAuthHandler(accounts Accounts, secureCookie bool) *AuthHandler {
	return &AuthHandler{Accounts: accounts, SecureCookie: secureCookie}
}

type signupReq struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type publicUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Signup creates an account and logs it in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.Accounts.Signup(c.Request().Context(), service.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusCreated, s)
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.Accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusOK, s)
}

func (h *AuthHandler) sendSession(c echo.Context, code int, s service.Session) error {
	h.setCookie(c, s.Token, s.Expires)
	body := success(echo.Map{"user": publicUser{Name: s.User.Name, Email: s.User.Email}})
	body.Token = s.Token
	return c.JSON(code, body)
}

// Logout overwrites the session cookie with a short-lived placeholder.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.setCookie(c, "loggedout", time.Now().Add(10*time.Second))
	return c.JSON(http.StatusOK, envelope{Status: "success"})
}

func (h *AuthHandler) setCookie(c echo.Context, value string, expires time.Time) {
	ck := &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if h.SecureCookie {
		// the frontend is served from another origin
		ck.SameSite = http.SameSiteNoneMode
	}
	c.SetCookie(ck)
}

// DeleteMe deactivates the caller's account.
func (h *AuthHandler) DeleteMe(c echo.Context) error {
	id, err := caller(c)
	if err != nil {
		return err
	}
	if err := h.Accounts.Deactivate(c.Request().Context(), id); err != nil {
		return err
	}
	h.setCookie(c, "loggedout", time.Now().Add(10*time.Second))
	return c.NoContent(http.StatusNoContent)
}

// ListUsers returns every active user.  Admin only.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	users, err := h.Accounts.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list(len(users), echo.Map{"users": users}))
}

// CreateUser is not offered; accounts are created through signup.
func (h *AuthHandler) CreateUser(c echo.Context) error {
	return echo.NewHTTPError(http.StatusInternalServerError, "This route is not defined! Please use /signup instead")
}
