package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fireshot/models"

	"gorm.io/gorm"
)

// Gorm stores users and their accounts in two tables.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

// Migrate creates or updates the users and accounts tables. Each model is
// migrated on its own so a failure on one is logged and does not block the
// other.
func Migrate(db *gorm.DB, log *slog.Logger) error {
	var errs []error
	for _, m := range []any{&models.User{}, &models.Account{}} {
		if err := db.AutoMigrate(m); err != nil {
			log.Warn("migration warning", slog.String("model", fmt.Sprintf("%T", m)), slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Gorm) Get(ctx context.Context, userID int64) (models.UserRecord, error) {
	var u models.User
	err := g.db.WithContext(ctx).Preload("Accounts").First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	return u.Record(), nil
}

// Put replaces the user's accounts with rec's inside one transaction.
func (g *Gorm) Put(ctx context.Context, userID int64, rec models.UserRecord) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u := models.User{ID: userID}
		if err := tx.FirstOrCreate(&u, models.User{ID: userID}).Error; err != nil {
			return fmt.Errorf("upsert user %d: %w", userID, err)
		}
		if err := tx.Model(&u).Update("relationship_seq", rec.RelationshipSeq).Error; err != nil {
			return fmt.Errorf("update user %d: %w", userID, err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Account{}).Error; err != nil {
			return fmt.Errorf("clear accounts of %d: %w", userID, err)
		}
		accounts := rec.AccountList()
		if len(accounts) == 0 {
			return nil
		}
		rows := make([]models.Account, 0, len(accounts))
		for _, a := range accounts {
			rows = append(rows, models.AccountRow(userID, a))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("save accounts of %d: %w", userID, err)
		}
		return nil
	})
}

func (g *Gorm) Exists(ctx context.Context, userID int64) (bool, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count user %d: %w", userID, err)
	}
	return n > 0, nil
}
