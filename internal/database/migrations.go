package database

import (
	"errors"
	"time"

	"github.com/openmind-crm/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationConvertToGenericOAuthTokens = "2026-01-07_convert_to_generic_oauth_tokens"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationConvertToGenericOAuthTokens, apply: convertToGenericOAuthTokens},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// legacyGoogleToken is the pre-provider credential table, one row per user.
type legacyGoogleToken struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	UserID       int64     `gorm:"column:user_id"`
	AccessToken  string    `gorm:"column:access_token"`
	RefreshToken string    `gorm:"column:refresh_token"`
	ExpiresAt    time.Time `gorm:"column:expires_at"`
	Scopes       string    `gorm:"column:scopes"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (legacyGoogleToken) TableName() string {
	return "user_google_tokens"
}

// convertToGenericOAuthTokens copies legacy Google credentials into oauth_tokens and drops
// the legacy table. Existing oauth_tokens rows for the same user are left untouched.
func convertToGenericOAuthTokens(db *gorm.DB) error {
	if !db.Migrator().HasTable(&legacyGoogleToken{}) {
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var legacy []legacyGoogleToken
		if err := tx.Order("id").Find(&legacy).Error; err != nil {
			return err
		}
		for _, row := range legacy {
			token := users.OAuthToken{
				UserID:       row.UserID,
				Provider:     users.ProviderGoogle,
				AccessToken:  row.AccessToken,
				RefreshToken: row.RefreshToken,
				ExpiresAt:    row.ExpiresAt.UTC(),
				Scopes:       row.Scopes,
				CreatedAt:    row.CreatedAt.UTC(),
				UpdatedAt:    row.UpdatedAt.UTC(),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&token).Error; err != nil {
				return err
			}
		}
		return tx.Migrator().DropTable(&legacyGoogleToken{})
	})
}
