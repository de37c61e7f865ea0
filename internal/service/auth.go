package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/switchstack/switchstack-api/internal/apperr"
	"github.com/switchstack/switchstack-api/internal/model"
	"github.com/switchstack/switchstack-api/internal/repository"
	"github.com/switchstack/switchstack-api/internal/utils"
)

// AuthOptions configures token and password handling.
type AuthOptions struct {
	Secret     string
	TokenTTL   time.Duration
	CookieDays int
	BcryptCost int
}

// AuthService is the credential store: signup, login, token verification
// and account deactivation.
type AuthService struct {
	users UserStore
	opts  AuthOptions
	log   *slog.Logger
	now   func() time.Time
}

func NewAuthService(users UserStore, opts AuthOptions, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, opts: opts, log: log, now: time.Now}
}

// SignupInput carries the fields of a new account.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// Session is the outcome of a successful signup or login.
type Session struct {
	User    model.User
	Token   string
	Expires time.Time // cookie expiry, not token expiry
}

// Signup creates a user with the default role and opens a session for it.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case in.Name == "":
		return Session{}, apperr.Invalid("Please tell us your name!")
	case in.Email == "":
		return Session{}, apperr.Invalid("Please provide your email")
	case in.Password == "":
		return Session{}, apperr.Invalid("Please provide a password")
	case in.Password != in.PasswordConfirm:
		return Session{}, apperr.Invalid("Passwords are not the same!")
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return Session{}, apperr.Wrap(err, "hash password")
	}
	u := model.User{Name: in.Name, Email: in.Email, PasswordHash: hash, Role: model.RoleUser}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return Session{}, apperr.Invalid("Duplicate field value: %q. Please use another value!", in.Email)
		}
		return Session{}, apperr.Wrap(err, "create user")
	}
	s.log.Info("user signed up", "user_id", u.ID)
	return s.session(u)
}

// Login verifies email and password and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, apperr.Invalid("Please provide email and password!")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Session{}, apperr.Wrap(err, "load user")
	}
	if err != nil || !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, apperr.Unauthorized("Incorrect email or password")
	}
	return s.session(u)
}

func (s *AuthService) session(u model.User) (Session, error) {
	tok, err := utils.SignToken(s.opts.Secret, u.ID, s.opts.TokenTTL)
	if err != nil {
		return Session{}, apperr.Wrap(err, "sign token")
	}
	return Session{User: u, Token: tok.Token, Expires: s.CookieExpiry()}, nil
}

// CookieExpiry is the absolute expiry of a session cookie issued now.
func (s *AuthService) CookieExpiry() time.Time {
	return s.now().Add(time.Duration(s.opts.CookieDays) * 24 * time.Hour)
}

// Authenticate resolves a raw session token to the identity of an active
// user.  Every failure is Unauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (model.Identity, error) {
	if raw == "" {
		return model.Identity{}, apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	userID, err := utils.ParseToken(s.opts.Secret, raw)
	if err != nil {
		msg := "Invalid token. Please log in again!"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Your token has expired! Please log in again"
		}
		return model.Identity{}, &apperr.Error{Kind: apperr.Unauthenticated, Message: msg, Err: err}
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Identity{}, apperr.Unauthorized("The user belonging to this token does no longer exist.")
	}
	if err != nil {
		return model.Identity{}, apperr.Wrap(err, "load user")
	}
	return model.IdentityOf(u), nil
}

// Authorize succeeds when the caller's role is one of roles.  Roles are
// compared exactly; there is no hierarchy.
func Authorize(id model.Identity, roles ...string) error {
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return apperr.Forbiddenf("You do not have permission to perform this action")
}

// Deactivate turns the caller's account inactive.  The row stays; every
// later lookup ignores it.
func (s *AuthService) Deactivate(ctx context.Context, caller model.Identity) error {
	err := s.users.Deactivate(ctx, caller.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFoundf("No user found with that ID")
	}
	if err != nil {
		return apperr.Wrap(err, "deactivate user")
	}
	s.log.Info("user deactivated", "user_id", caller.UserID)
	return nil
}

// ListUsers returns every active user.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list users")
	}
	return users, nil
}
