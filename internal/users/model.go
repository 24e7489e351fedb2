package users

import (
	"strings"
	"time"
)

const (
	// ProviderGoogle is the stored provider name for Google credentials.
	ProviderGoogle = "Google"
	// ProviderMicrosoft is the stored provider name for Microsoft credentials.
	ProviderMicrosoft = "Microsoft"

	scopeSeparator = ","
)

// User is the identity record for a CRM account.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string    `gorm:"column:email;size:255;not null;uniqueIndex:idx_users_email"`
	FirstName    string    `gorm:"column:first_name;size:255;not null"`
	LastName     string    `gorm:"column:last_name;size:255;not null"`
	PasswordHash *string   `gorm:"column:password_hash;type:text"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// HasPassword reports whether the account can sign in with a password.
// Accounts created through Google Sign-In carry no hash.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// OAuthToken stores one provider credential per user.
type OAuthToken struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID       int64     `gorm:"column:user_id;not null;uniqueIndex:idx_oauth_tokens_user_provider,priority:1"`
	Provider     string    `gorm:"column:provider;size:50;not null;uniqueIndex:idx_oauth_tokens_user_provider,priority:2"`
	AccessToken  string    `gorm:"column:access_token;type:text;not null"`
	RefreshToken string    `gorm:"column:refresh_token;type:text"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null"`
	Scopes       string    `gorm:"column:scopes;size:500;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing provider credentials.
func (OAuthToken) TableName() string {
	return "oauth_tokens"
}

// ScopeList returns the granted scopes in the order they were requested.
func (t OAuthToken) ScopeList() []string {
	if strings.TrimSpace(t.Scopes) == "" {
		return nil
	}
	parts := strings.Split(t.Scopes, scopeSeparator)
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		if scope := normalize(part); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// JoinScopes flattens scopes into the stored representation.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, scopeSeparator)
}

// Expired reports whether the access token is no longer usable at now.
func (t OAuthToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NormalizeEmail trims and lower-cases an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(normalize(email))
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
