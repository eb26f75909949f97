// Package auth issues the session tokens that scope every request to one
// owner: anonymous sign-in, exchange of a pre-issued token, refresh and
// logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coffeefarm/middleware"
)

var (
	// ErrInvalidToken covers bad signatures, expiry and revoked sessions.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrNoVerifier is returned by Exchange when no verifier is configured.
	ErrNoVerifier = errors.New("auth: token exchange not configured")
)

const issuer = "coffeefarm"

// Session is what a client holds after signing in.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Anonymous bool      `json:"anonymous"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenVerifier checks a pre-issued token and returns the owner it names.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// SessionRegistry tracks live session ids so logout can revoke a token
// before it expires.
type SessionRegistry interface {
	Put(ctx context.Context, sessionID, owner string, ttl time.Duration) error
	Active(ctx context.Context, sessionID string) (bool, error)
	Revoke(ctx context.Context, sessionID string) error
}

type Options struct {
	Secret    []byte
	TTL       time.Duration
	Sessions  SessionRegistry
	Verifiers []TokenVerifier
	// InitialToken is exchanged by Bootstrap when the client sends none.
	InitialToken string
	// OnLogout runs after a session of owner is revoked.
	OnLogout func(owner string)
	Logger   *zap.Logger
}

type Service struct {
	secret    []byte
	ttl       time.Duration
	sessions  SessionRegistry
	verifiers []TokenVerifier
	initial   string
	onLogout  func(string)
	logger    *zap.Logger

	// Now is the clock used for issuing tokens.
	Now func() time.Time
}

func NewService(opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.Sessions == nil {
		opts.Sessions = NewMemorySessions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		secret:    opts.Secret,
		ttl:       opts.TTL,
		sessions:  opts.Sessions,
		verifiers: opts.Verifiers,
		initial:   opts.InitialToken,
		onLogout:  opts.OnLogout,
		logger:    opts.Logger,
		Now:       time.Now,
	}
}

func (s *Service) issue(ctx context.Context, owner string, anonymous bool) (Session, error) {
	now := s.Now()
	expires := now.Add(s.ttl)
	sid := uuid.New().String()
	claims := &middleware.Claims{
		UserID:    owner,
		Anonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sid,
			Subject:   owner,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	if err := s.sessions.Put(ctx, sid, owner, s.ttl); err != nil {
		return Session{}, fmt.Errorf("register session: %w", err)
	}
	return Session{Token: signed, UserID: owner, Anonymous: anonymous, ExpiresAt: expires}, nil
}

// SignInAnonymously creates a fresh owner identity.
func (s *Service) SignInAnonymously(ctx context.Context) (Session, error) {
	owner := uuid.New().String()
	sess, err := s.issue(ctx, owner, true)
	if err == nil {
		s.logger.Info("anonymous sign-in", zap.String("owner", owner))
	}
	return sess, err
}

// Exchange trades a pre-issued token for a session, trying each verifier in
// order.
func (s *Service) Exchange(ctx context.Context, token string) (Session, error) {
	if len(s.verifiers) == 0 {
		return Session{}, ErrNoVerifier
	}
	var errs []error
	for _, v := range s.verifiers {
		owner, err := v.Verify(ctx, token)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if owner == "" {
			errs = append(errs, errors.New("token names no user"))
			continue
		}
		s.logger.Info("token sign-in", zap.String("owner", owner))
		return s.issue(ctx, owner, false)
	}
	return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, errors.Join(errs...))
}

// Bootstrap signs in with token, or the configured initial token when token
// is empty, and anonymously when there is neither.
func (s *Service) Bootstrap(ctx context.Context, token string) (Session, error) {
	if token == "" {
		token = s.initial
	}
	if token != "" {
		return s.Exchange(ctx, token)
	}
	return s.SignInAnonymously(ctx)
}

// Resolve returns the owner a pre-issued token names, without creating a
// session.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		token = s.initial
	}
	if token == "" {
		return "", ErrInvalidToken
	}
	var errs []error
	for _, v := range s.verifiers {
		owner, err := v.Verify(ctx, token)
		if err == nil && owner != "" {
			return owner, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoVerifier
	}
	return "", fmt.Errorf("%w: %w", ErrInvalidToken, errors.Join(errs...))
}

// Parse validates signature, expiry and that the session was not revoked.
func (s *Service) Parse(ctx context.Context, token string) (*middleware.Claims, error) {
	claims := &middleware.Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	active, err := s.sessions.Active(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !active {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh replaces a valid session with a new one for the same owner.
func (s *Service) Refresh(ctx context.Context, token string) (Session, error) {
	claims, err := s.Parse(ctx, token)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.issue(ctx, claims.UserID, claims.Anonymous)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		s.logger.Warn("revoke refreshed session", zap.Error(err))
	}
	return sess, nil
}

// Logout revokes the session and releases the owner's live state.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.Parse(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if s.onLogout != nil {
		s.onLogout(claims.UserID)
	}
	s.logger.Info("logout", zap.String("owner", claims.UserID))
	return nil
}
