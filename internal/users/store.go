package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	fieldUserID   = "user_id"
	fieldProvider = "provider"
	queryUserKey  = fieldUserID + " = ? AND " + fieldProvider + " = ?"
)

var tokenUpsertColumns = []string{"access_token", "refresh_token", "expires_at", "scopes", "updated_at"}

// StoreConfig describes the dependencies required by the credential store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists users and their per-provider OAuth credentials.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewStore constructs the credential store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// CreateUser inserts a new user. The email is normalized before storage.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user == nil {
		return newServiceError(opCreateUser, reasonInvalid, ErrInvalidUser)
	}
	user.Email = NormalizeEmail(user.Email)
	if user.Email == "" {
		return newServiceError(opCreateUser, reasonInvalid, ErrInvalidUser)
	}
	user.FirstName = normalize(user.FirstName)
	user.LastName = normalize(user.LastName)

	var existing int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
		s.logError(opCreateUser, reasonQueryFailed, err)
		return newServiceError(opCreateUser, reasonQueryFailed, err)
	}
	if existing > 0 {
		return newServiceError(opCreateUser, reasonDuplicate, ErrEmailTaken)
	}

	now := s.now().UTC()
	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") {
			return newServiceError(opCreateUser, reasonDuplicate, ErrEmailTaken)
		}
		s.logError(opCreateUser, reasonWriteFailed, err)
		return newServiceError(opCreateUser, reasonWriteFailed, err)
	}
	return nil
}

// UserByID loads a user by primary key.
func (s *Store) UserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		s.logError(opUserByID, reasonQueryFailed, err, zap.Int64(fieldUserID, userID))
		return User{}, newServiceError(opUserByID, reasonQueryFailed, err)
	}
	return user, nil
}

// UserByEmail loads a user by normalized email.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return User{}, ErrUserNotFound
	}
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		s.logError(opUserByEmail, reasonQueryFailed, err)
		return User{}, newServiceError(opUserByEmail, reasonQueryFailed, err)
	}
	return user, nil
}

// OAuthToken loads the credential for the user and provider.
func (s *Store) OAuthToken(ctx context.Context, userID int64, provider string) (OAuthToken, error) {
	var token OAuthToken
	err := s.db.WithContext(ctx).Where(queryUserKey, userID, provider).Take(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OAuthToken{}, ErrTokenNotFound
	}
	if err != nil {
		s.logError(opOAuthToken, reasonQueryFailed, err,
			zap.Int64(fieldUserID, userID),
			zap.String(fieldProvider, provider))
		return OAuthToken{}, newServiceError(opOAuthToken, reasonQueryFailed, err)
	}
	return token, nil
}

// UpsertOAuthToken creates or replaces the credential for (user, provider) in one statement.
// Concurrent writers for the same key resolve last-write-wins on the full record.
func (s *Store) UpsertOAuthToken(ctx context.Context, token *OAuthToken) error {
	if token == nil || token.UserID == 0 || normalize(token.Provider) == "" {
		return newServiceError(opUpsertToken, reasonInvalid, ErrInvalidToken)
	}
	now := s.now().UTC()
	record := *token
	record.ID = 0
	record.Provider = normalize(record.Provider)
	record.ExpiresAt = record.ExpiresAt.UTC()
	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: fieldUserID}, {Name: fieldProvider}},
		DoUpdates: clause.AssignmentColumns(tokenUpsertColumns),
	}).Create(&record).Error
	if err != nil {
		s.logError(opUpsertToken, reasonWriteFailed, err,
			zap.Int64(fieldUserID, token.UserID),
			zap.String(fieldProvider, token.Provider))
		return newServiceError(opUpsertToken, reasonWriteFailed, err)
	}

	token.Provider = record.Provider
	token.ExpiresAt = record.ExpiresAt
	token.CreatedAt = record.CreatedAt
	token.UpdatedAt = record.UpdatedAt
	return nil
}

// UpdateRefreshedOAuthToken rewrites the credential in place, but only while the stored row still
// carries previousRefreshToken. A credential revoked or replaced meanwhile is left alone and
// ErrTokenNotFound is returned.
func (s *Store) UpdateRefreshedOAuthToken(ctx context.Context, token *OAuthToken, previousRefreshToken string) error {
	if token == nil || token.UserID == 0 || normalize(token.Provider) == "" || previousRefreshToken == "" {
		return newServiceError(opUpdateRefreshed, reasonInvalid, ErrInvalidToken)
	}
	provider := normalize(token.Provider)
	now := s.now().UTC()
	expiresAt := token.ExpiresAt.UTC()

	result := s.db.WithContext(ctx).Model(&OAuthToken{}).
		Where(queryUserKey+" AND refresh_token = ?", token.UserID, provider, previousRefreshToken).
		Updates(map[string]any{
			"access_token":  token.AccessToken,
			"refresh_token": token.RefreshToken,
			"expires_at":    expiresAt,
			"updated_at":    now,
		})
	if result.Error != nil {
		s.logError(opUpdateRefreshed, reasonWriteFailed, result.Error,
			zap.Int64(fieldUserID, token.UserID),
			zap.String(fieldProvider, provider))
		return newServiceError(opUpdateRefreshed, reasonWriteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTokenNotFound
	}

	token.Provider = provider
	token.ExpiresAt = expiresAt
	token.UpdatedAt = now
	return nil
}

// DeleteOAuthToken removes the credential for the user and provider. Missing records are not an error.
func (s *Store) DeleteOAuthToken(ctx context.Context, userID int64, provider string) error {
	err := s.db.WithContext(ctx).Where(queryUserKey, userID, provider).Delete(&OAuthToken{}).Error
	if err != nil {
		s.logError(opDeleteToken, reasonWriteFailed, err,
			zap.Int64(fieldUserID, userID),
			zap.String(fieldProvider, provider))
		return newServiceError(opDeleteToken, reasonWriteFailed, err)
	}
	return nil
}

// HasProviderToken reports whether a credential with an access token is stored for the provider.
func (s *Store) HasProviderToken(ctx context.Context, userID int64, provider string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&OAuthToken{}).
		Where(queryUserKey+" AND access_token <> ''", userID, provider).
		Count(&count).Error
	if err != nil {
		s.logError(opOAuthToken, reasonQueryFailed, err,
			zap.Int64(fieldUserID, userID),
			zap.String(fieldProvider, provider))
		return false, newServiceError(opOAuthToken, reasonQueryFailed, err)
	}
	return count > 0, nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("credential store error", attrs...)
}
