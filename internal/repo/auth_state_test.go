package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agricapture/fieldsync/internal/domain"
)

func TestCreateAuthState_Duplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec, err := CreateAuthState(ctx, db, "s1", "farmer-1", time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ExpiresAt.Sub(rec.CreatedAt) != time.Minute {
		t.Fatalf("ttl not applied: %+v", rec)
	}
	if _, err := CreateAuthState(ctx, db, "s1", "farmer-2", time.Minute); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestConsumeAuthState_ExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateAuthState(ctx, db, "s1", "farmer-1", time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	farmer, err := ConsumeAuthState(ctx, db, "s1", time.Now())
	if err != nil || farmer != "farmer-1" {
		t.Fatalf("consume: farmer=%q err=%v", farmer, err)
	}
	if _, err := ConsumeAuthState(ctx, db, "s1", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume should fail with ErrNotFound, got %v", err)
	}
}

func TestConsumeAuthState_ExpiredOrBlank(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateAuthState(ctx, db, "old", "farmer-1", time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ConsumeAuthState(ctx, db, "old", time.Now().Add(2*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired state should be rejected, got %v", err)
	}
	if _, err := ConsumeAuthState(ctx, db, "   ", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank state should be rejected, got %v", err)
	}
}

func TestConsumeAuthState_ConcurrentCallbacks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	// Shared-cache memory DBs report table locks instead of waiting; one
	// connection keeps the goroutines contending on the claim itself.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if _, err := CreateAuthState(ctx, db, "race", "farmer-1", time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ConsumeAuthState(ctx, db, "race", time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}
}

func TestPurgeExpiredAuthStates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	db.Create(&domain.AuthState{State: "gone", FarmerID: "f", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)})
	db.Create(&domain.AuthState{State: "live", FarmerID: "f", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})

	n, err := PurgeExpiredAuthStates(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged row, got %d err=%v", n, err)
	}
	var left int64
	db.Model(&domain.AuthState{}).Count(&left)
	if left != 1 {
		t.Fatalf("expected live state to remain, left=%d", left)
	}
}
