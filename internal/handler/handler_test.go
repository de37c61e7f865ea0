package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/switchstack/switchstack-api/internal/apperr"
	"github.com/switchstack/switchstack-api/internal/middleware"
	"github.com/switchstack/switchstack-api/internal/model"
	"github.com/switchstack/switchstack-api/internal/service"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return e
}

func do(e *echo.Echo, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

// withIdentity stands in for middleware.Protect.
func withIdentity(id model.Identity) echo.MiddlewareFunc {
	return middleware.Protect(fixedAuth(id))
}

type fixedAuth model.Identity

func (f fixedAuth) Authenticate(context.Context, string) (model.Identity, error) {
	return model.Identity(f), nil
}

type stubAccounts struct {
	signupIn    service.SignupInput
	deactivated []uint64
	err         error
}

func (s *stubAccounts) Signup(_ context.Context, in service.SignupInput) (service.Session, error) {
	s.signupIn = in
	if s.err != nil {
		return service.Session{}, s.err
	}
	return service.Session{
		User:    model.User{ID: 7, Name: in.Name, Email: in.Email, PasswordHash: "$2a$hash", Role: model.RoleUser},
		Token:   "signed.jwt.token",
		Expires: time.Now().Add(90 * 24 * time.Hour),
	}, nil
}

func (s *stubAccounts) Login(_ context.Context, email, password string) (service.Session, error) {
	if email != "ada@example.com" || password != "password123" {
		return service.Session{}, apperr.Unauthorized("Incorrect email or password")
	}
	return service.Session{User: model.User{ID: 7, Name: "Ada", Email: email}, Token: "signed.jwt.token", Expires: time.Now().Add(time.Hour)}, nil
}

func (s *stubAccounts) Deactivate(_ context.Context, id model.Identity) error {
	s.deactivated = append(s.deactivated, id.UserID)
	return nil
}

func (s *stubAccounts) ListUsers(context.Context) ([]model.User, error) {
	return []model.User{{ID: 1, Name: "Root", Email: "root@example.com", PasswordHash: "x", Role: model.RoleAdmin}}, nil
}

type stubDevices struct {
	lastRef    string
	lastSwitch uint64
	lastState  *bool
	err        error
}

func (s *stubDevices) CreateDevice(_ context.Context, _ model.Identity, espID string, n *int) (model.Esp, error) {
	if s.err != nil {
		return model.Esp{}, s.err
	}
	return model.Esp{ID: 1, EspID: espID, NoOfSwitches: *n, Switches: []model.Switch{}}, nil
}

func (s *stubDevices) RegisterDevice(_ context.Context, id model.Identity, espID, name, _ string) (model.Esp, error) {
	if s.err != nil {
		return model.Esp{}, s.err
	}
	owner := id.UserID
	return model.Esp{ID: 1, EspID: espID, OwnerID: &owner, Name: &name, Users: []uint64{owner},
		Switches: []model.Switch{{ID: 10, EspID: 1, Position: 0}}}, nil
}

func (s *stubDevices) UpdateDeviceMeta(_ context.Context, _ model.Identity, ref string, name, icon *string) (model.Esp, error) {
	s.lastRef = ref
	if s.err != nil {
		return model.Esp{}, s.err
	}
	return model.Esp{ID: 1, EspID: ref, Name: name, Icon: icon}, nil
}

func (s *stubDevices) UpdateSwitchMeta(_ context.Context, _ model.Identity, ref string, switchID uint64, name, icon *string) (model.Switch, error) {
	s.lastRef, s.lastSwitch = ref, switchID
	if s.err != nil {
		return model.Switch{}, s.err
	}
	return model.Switch{ID: switchID, Name: name, Icon: icon}, nil
}

func (s *stubDevices) SetSwitchState(_ context.Context, _ model.Identity, ref string, switchID uint64, state *bool) (model.Switch, error) {
	s.lastRef, s.lastSwitch, s.lastState = ref, switchID, state
	if s.err != nil {
		return model.Switch{}, s.err
	}
	return model.Switch{ID: switchID, State: *state}, nil
}

func (s *stubDevices) ListDevices(context.Context, model.Identity) ([]model.Esp, error) {
	return []model.Esp{{ID: 1, EspID: "esp-A", Switches: []model.Switch{}}}, nil
}

func (s *stubDevices) GetDevice(_ context.Context, _ model.Identity, ref string) (model.Esp, error) {
	s.lastRef = ref
	if s.err != nil {
		return model.Esp{}, s.err
	}
	return model.Esp{ID: 1, EspID: ref}, nil
}
