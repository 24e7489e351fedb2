package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openmind-crm/backend/internal/auth"
	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
)

const defaultFirstName = "User"

var (
	// ErrAuthentication reports rejected credentials or session tokens.
	ErrAuthentication = errors.New("session: authentication failed")
	// ErrInvalidRegistration reports a registration request with missing fields.
	ErrInvalidRegistration = errors.New("session: invalid registration")
	// ErrEmailTaken reports a registration for an email that already exists.
	ErrEmailTaken = users.ErrEmailTaken
	// ErrInvalidServiceConfig wraps configuration failures of the service.
	ErrInvalidServiceConfig = errors.New("session: invalid service config")
)

// UserStore is the slice of the credential store used for identities.
type UserStore interface {
	CreateUser(ctx context.Context, user *users.User) error
	UserByID(ctx context.Context, userID int64) (users.User, error)
	UserByEmail(ctx context.Context, email string) (users.User, error)
	HasProviderToken(ctx context.Context, userID int64, provider string) (bool, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	IssueSessionToken(ctx context.Context, userID int64, email string) (string, time.Time, error)
}

// TokenValidator validates session tokens.
type TokenValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// IdentityVerifier verifies ID tokens from an external identity provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (auth.GoogleClaims, error)
}

// UserProfile is the client-facing projection of a user.
type UserProfile struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	IsActive        bool      `json:"isActive"`
	HasGoogleAccess bool      `json:"hasGoogleAccess"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserProfile `json:"user"`
}

// RegisterRequest carries a new account's details.
type RegisterRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// ServiceConfig describes the dependencies of the session service.
type ServiceConfig struct {
	Store     UserStore
	Hasher    PasswordHasher
	Issuer    TokenIssuer
	Validator TokenValidator
	// Google is optional; without it LoginWithGoogle always fails authentication.
	Google IdentityVerifier
	Logger *zap.Logger
}

// Service authenticates users and resolves their profiles.
type Service struct {
	store     UserStore
	hasher    PasswordHasher
	issuer    TokenIssuer
	validator TokenValidator
	google    IdentityVerifier
	logger    *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: user store required", ErrInvalidServiceConfig)
	case cfg.Hasher == nil:
		return nil, fmt.Errorf("%w: password hasher required", ErrInvalidServiceConfig)
	case cfg.Issuer == nil:
		return nil, fmt.Errorf("%w: token issuer required", ErrInvalidServiceConfig)
	case cfg.Validator == nil:
		return nil, fmt.Errorf("%w: token validator required", ErrInvalidServiceConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     cfg.Store,
		hasher:    cfg.Hasher,
		issuer:    cfg.Issuer,
		validator: cfg.Validator,
		google:    cfg.Google,
		logger:    logger,
	}, nil
}

// Login authenticates an email and password pair.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, users.ErrUserNotFound) {
		return Session{}, authenticationFailed("unknown email")
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authenticationFailed("inactive account")
	}
	if !user.HasPassword() {
		return Session{}, authenticationFailed("account has no password")
	}
	if err := s.hasher.Verify(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Session{}, authenticationFailed("password mismatch")
		}
		return Session{}, err
	}
	return s.openSession(ctx, user)
}

// Register creates a password account.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (UserProfile, error) {
	email := users.NormalizeEmail(request.Email)
	firstName := strings.TrimSpace(request.FirstName)
	lastName := strings.TrimSpace(request.LastName)
	if email == "" || request.Password == "" || firstName == "" || lastName == "" {
		return UserProfile{}, ErrInvalidRegistration
	}
	if !strings.Contains(email, "@") {
		return UserProfile{}, fmt.Errorf("%w: malformed email", ErrInvalidRegistration)
	}

	hash, err := s.hasher.Hash(request.Password)
	if err != nil {
		return UserProfile{}, err
	}
	user := users.User{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: &hash,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return UserProfile{}, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return s.profile(ctx, user)
}

// LoginWithGoogle signs a user in with a Google ID token, creating a passwordless
// account on first use.
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string) (Session, error) {
	if s.google == nil {
		return Session{}, authenticationFailed("google sign-in not configured")
	}
	claims, err := s.google.Verify(ctx, strings.TrimSpace(idToken))
	if err != nil {
		s.logger.Warn("google id token rejected", zap.Error(err))
		return Session{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return Session{}, authenticationFailed("google token has no email")
	}

	user, err := s.store.UserByEmail(ctx, claims.Email)
	if errors.Is(err, users.ErrUserNotFound) {
		user, err = s.createGoogleUser(ctx, claims)
	}
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, authenticationFailed("inactive account")
	}
	return s.openSession(ctx, user)
}

// UserByID returns the profile of the user.
func (s *Service) UserByID(ctx context.Context, userID int64) (UserProfile, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	return s.profile(ctx, user)
}

// UserByEmail returns the profile of the user.
func (s *Service) UserByEmail(ctx context.Context, email string) (UserProfile, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return UserProfile{}, err
	}
	return s.profile(ctx, user)
}

// ValidateSession resolves a session token to an active user.
func (s *Service) ValidateSession(ctx context.Context, token string) (UserProfile, error) {
	claims, err := s.validator.ValidateToken(token)
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	user, err := s.store.UserByID(ctx, claims.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return UserProfile{}, authenticationFailed("session user no longer exists")
	}
	if err != nil {
		return UserProfile{}, err
	}
	if !user.IsActive {
		return UserProfile{}, authenticationFailed("inactive account")
	}
	return s.profile(ctx, user)
}

func (s *Service) createGoogleUser(ctx context.Context, claims auth.GoogleClaims) (users.User, error) {
	firstName, lastName := googleDisplayName(claims)
	user := users.User{
		Email:     claims.Email,
		FirstName: firstName,
		LastName:  lastName,
	}
	err := s.store.CreateUser(ctx, &user)
	if errors.Is(err, users.ErrEmailTaken) {
		return s.store.UserByEmail(ctx, claims.Email)
	}
	if err != nil {
		return users.User{}, err
	}
	s.logger.Info("user created from google sign-in", zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *Service) openSession(ctx context.Context, user users.User) (Session, error) {
	token, expiresAt, err := s.issuer.IssueSessionToken(ctx, user.ID, user.Email)
	if err != nil {
		return Session{}, err
	}
	profile, err := s.profile(ctx, user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: profile}, nil
}

func (s *Service) profile(ctx context.Context, user users.User) (UserProfile, error) {
	hasGoogle, err := s.store.HasProviderToken(ctx, user.ID, users.ProviderGoogle)
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		IsActive:        user.IsActive,
		HasGoogleAccess: hasGoogle,
		CreatedAt:       user.CreatedAt,
	}, nil
}

// googleDisplayName prefers the structured name claims, then splits the full name.
func googleDisplayName(claims auth.GoogleClaims) (string, string) {
	if claims.GivenName != "" || claims.FamilyName != "" {
		first := claims.GivenName
		if first == "" {
			first = defaultFirstName
		}
		return first, claims.FamilyName
	}
	parts := strings.Fields(claims.Name)
	if len(parts) == 0 {
		return defaultFirstName, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func authenticationFailed(reason string) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, reason)
}
