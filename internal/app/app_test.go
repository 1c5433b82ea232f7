package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agricapture/fieldsync/internal/archive"
	"github.com/agricapture/fieldsync/internal/config"
	"github.com/agricapture/fieldsync/internal/domain"
	"github.com/agricapture/fieldsync/internal/repo"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:app_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		OAuth: config.OAuthConfig{
			ClientID:    "cid",
			RedirectURI: "http://localhost:8000/auth/callback",
			AuthURL:     "https://signin.example/authorize",
			TokenURL:    "https://signin.example/token",
			Scopes:      []string{"org1", "offline_access"},
		},
		Remote: config.RemoteConfig{BaseURL: "https://api.example/platform/", Timeout: time.Second},
		Sync:   config.SyncConfig{LookbackYears: 3, OrgConcurrency: 2},
	}
}

type fakeSecrets struct {
	id, key string
	value   string
	err     error
}

func (f *fakeSecrets) Value(_ context.Context, id, key string) (string, error) {
	f.id, f.key = id, key
	return f.value, f.err
}

func TestNew_WiresServices(t *testing.T) {
	a, err := New(context.Background(), newDB(t), testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Remote.BaseURL() != "https://api.example/platform" {
		t.Fatalf("base url = %q", a.Remote.BaseURL())
	}
	if a.Sync.LookbackYears != 3 || a.Sync.OrgConcurrency != 2 || a.Sync.Tokens == nil {
		t.Fatalf("sync = %+v", a.Sync)
	}
	if a.Archive != nil || a.Sync.Archive != nil {
		t.Fatal("archive must stay unset when disabled")
	}
	if a.Snapshot.Sync != a.Sync || a.Hierarchy.Remote == nil || a.Operations.Remote == nil {
		t.Fatal("services not wired")
	}
}

func TestNew_KeepsDefaultsForZeroTuning(t *testing.T) {
	cfg := testConfig()
	cfg.Sync = config.SyncConfig{}
	a, err := New(context.Background(), newDB(t), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Sync.LookbackYears != 5 || a.Sync.OrgConcurrency != 1 {
		t.Fatalf("sync = %d/%d", a.Sync.LookbackYears, a.Sync.OrgConcurrency)
	}
}

func TestNew_ResolvesClientSecretFromARN(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.ClientSecretARN = "arn:aws:secretsmanager:us-east-1:1:secret:deere"
	sec := &fakeSecrets{value: "s3cr3t"}

	a, err := New(context.Background(), newDB(t), cfg, WithSecrets(sec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Tokens.OAuth.ClientSecret != "s3cr3t" {
		t.Fatalf("secret = %q", a.Tokens.OAuth.ClientSecret)
	}
	if sec.id != cfg.OAuth.ClientSecretARN || sec.key != clientSecretKey {
		t.Fatalf("lookup = %q/%q", sec.id, sec.key)
	}
}

func TestNew_ExplicitSecretWins(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.ClientSecret = "plain"
	cfg.OAuth.ClientSecretARN = "arn:x"
	sec := &fakeSecrets{value: "other"}

	a, err := New(context.Background(), newDB(t), cfg, WithSecrets(sec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Tokens.OAuth.ClientSecret != "plain" || sec.id != "" {
		t.Fatalf("secret = %q, lookup %q", a.Tokens.OAuth.ClientSecret, sec.id)
	}
}

func TestNew_SecretFailure(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.ClientSecretARN = "arn:x"
	boom := errors.New("access denied")

	_, err := New(context.Background(), newDB(t), cfg, WithSecrets(&fakeSecrets{err: boom}))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_WithArchive(t *testing.T) {
	arc := &archive.Client{Bucket: "b"}
	a, err := New(context.Background(), newDB(t), testConfig(), WithArchive(arc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Archive != arc || a.Sync.Archive == nil {
		t.Fatal("archive not wired")
	}
}

func TestNew_InvalidOAuth(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.ClientID = ""
	if _, err := New(context.Background(), newDB(t), cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestEvery_RunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		Every(ctx, "test", 5*time.Millisecond, func(context.Context) error {
			if runs.Add(1) == 3 {
				cancel()
			}
			return errors.New("ignored")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if runs.Load() < 3 {
		t.Fatalf("runs = %d", runs.Load())
	}
}

func TestEvery_DisabledInterval(t *testing.T) {
	called := false
	Every(context.Background(), "off", 0, func(context.Context) error { called = true; return nil })
	if called {
		t.Fatal("job ran with zero interval")
	}
}

func TestPurgeAuthStates(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	if _, err := repo.CreateAuthState(ctx, db, "old", "f1", -time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateAuthState(ctx, db, "fresh", "f1", 10*time.Minute); err != nil {
		t.Fatal(err)
	}

	a := &App{DB: db}
	if err := a.PurgeAuthStates(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}
	var left []domain.AuthState
	if err := db.Find(&left).Error; err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].State != "fresh" {
		t.Fatalf("left = %+v", left)
	}
}
