// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the TTL store for OAuth2 CSRF states
// issued when an authorization flow starts.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/agricapture/fieldsync/internal/domain"
)

// ErrDuplicate indicates that a state value has already been issued.
var ErrDuplicate = errors.New("duplicate")

// CreateAuthState records a state for farmerID valid for ttl and returns
// ErrDuplicate when the same state already exists.
func CreateAuthState(ctx context.Context, db *gorm.DB, state, farmerID string, ttl time.Duration) (*domain.AuthState, error) {
	now := time.Now().UTC()
	rec := &domain.AuthState{
		State:     state,
		FarmerID:  farmerID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// ConsumeAuthState deletes an unexpired state and returns the farmer it was
// issued for. A missing, expired or already consumed state yields
// ErrNotFound. Deletion is the claim, so two concurrent callbacks carrying
// the same state cannot both succeed.
func ConsumeAuthState(ctx context.Context, db *gorm.DB, state string, now time.Time) (string, error) {
	if strings.TrimSpace(state) == "" {
		return "", ErrNotFound
	}
	var farmerID string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.AuthState
		if err := tx.Where("state = ? AND expires_at > ?", state, now.UTC()).First(&rec).Error; err != nil {
			return err
		}
		res := tx.Where("state = ?", state).Delete(&domain.AuthState{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		farmerID = rec.FarmerID
		return nil
	})
	if err != nil {
		return "", err
	}
	return farmerID, nil
}

// PurgeExpiredAuthStates removes states whose validity ended before now.
func PurgeExpiredAuthStates(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.AuthState{})
	return res.RowsAffected, res.Error
}

// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
