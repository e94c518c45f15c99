package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-shop/internal/common"
)

const defaultAccessTTL = 15 * time.Minute

const minPasswordLength = 8

// Service handles registration, login and access token validation.
type Service struct {
	users     UserStore
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
	issuer    string
	audience  string
	clockSkew time.Duration
}

// Config configures the auth service.
type Config struct {
	Users          UserStore
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// User is the client-visible subset of a user row.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult bundles the token returned after a successful login.
type LoginResult struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	AccessExpiry time.Time `json:"access_expires_at"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}

	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-shop"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "shop-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		users:     cfg.Users,
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new user. The username defaults to the local part of the email.
func (s *Service) Register(ctx context.Context, email, username, password string) (User, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" || !strings.Contains(normalizedEmail, "@") {
		return User{}, common.BadRequest("a valid email is required", nil)
	}
	if len(password) < minPasswordLength {
		return User{}, common.BadRequest("password must be at least 8 characters", nil)
	}
	name := strings.TrimSpace(username)
	if name == "" {
		name = normalizedEmail[:strings.Index(normalizedEmail, "@")]
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.CreateUser(ctx, normalizedEmail, name, hash)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, common.NewAppError(common.CodeConflict, "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return toUser(created), nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	normalizedEmail := normalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}

	record, err := s.users.GetUserByEmail(ctx, normalizedEmail)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, invalidCredentials()
		}
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := argon2id.ComparePasswordAndHash(password, record.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials()
	}

	accessToken, accessExpiry, err := s.signAccessToken(record.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	return LoginResult{
		User:         toUser(record),
		AccessToken:  accessToken,
		AccessExpiry: accessExpiry,
	}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, unauthorized("unauthorized", nil)
	}
	record, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, unauthorized("unauthorized", err)
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	return toUser(record), nil
}

// ParseAccessToken validates an access token and returns the subject (user ID).
func (s *Service) ParseAccessToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", unauthorized("missing token", nil)
	}
	subject, err := s.validator.Verify(token, s.secret, s.now())
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return "", unauthorized("token expired", err)
		}
		return "", unauthorized("invalid token", err)
	}
	return subject, nil
}

func (s *Service) signAccessToken(userID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func invalidCredentials() error {
	return common.NewAppError(common.CodeUnauthorized, "invalid email or password", http.StatusUnauthorized, nil)
}

func unauthorized(message string, err error) error {
	return common.NewAppError(common.CodeUnauthorized, message, http.StatusUnauthorized, err)
}

func toUser(u UserRecord) User {
	return User{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}
