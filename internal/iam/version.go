package iam

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/botecohq/boteco/pkg/errors"

	"github.com/botecohq/boteco/internal/models"
)

// BumpPermVersion atomically increments a restaurant's permission version.
// Callers run it inside the same transaction as the permission write so the
// bump and the mutation become visible together.
func BumpPermVersion(ctx context.Context, tx *gorm.DB, restaurantID string) error {
	result := tx.WithContext(ctx).
		Model(&models.Restaurant{}).
		Where("id = ?", restaurantID).
		UpdateColumn("perm_version", gorm.Expr("perm_version + 1"))
	if result.Error != nil {
		return fmt.Errorf("iam: bump perm version: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("Restaurant not found")
	}
	return nil
}

// CurrentPermVersion reads a restaurant's permission version.
func CurrentPermVersion(ctx context.Context, db *gorm.DB, restaurantID string) (int64, error) {
	var version int64
	err := db.WithContext(ctx).
		Model(&models.Restaurant{}).
		Where("id = ?", restaurantID).
		Select("perm_version").
		Take(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.NewNotFound("Restaurant not found")
		}
		return 0, fmt.Errorf("iam: load perm version: %w", err)
	}
	return version, nil
}
