package usecase

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/repository"
	"euicc-profile-service/migrations"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// mockMigrationRepository はテスト用のモック。
type mockMigrationRepository struct {
	appliedMigrations map[string]*domain.Migration
	ensureErr         error
}

func newMockMigrationRepository() *mockMigrationRepository {
	return &mockMigrationRepository{
		appliedMigrations: make(map[string]*domain.Migration),
	}
}

func (m *mockMigrationRepository) EnsureTable(ctx context.Context) error {
	return m.ensureErr
}

func (m *mockMigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var result []*domain.Migration
	for _, migration := range m.appliedMigrations {
		result = append(result, migration)
	}
	return result, nil
}

func (m *mockMigrationRepository) IsMigrationApplied(ctx context.Context, version string) (bool, error) {
	_, exists := m.appliedMigrations[version]
	return exists, nil
}

func (m *mockMigrationRepository) markApplied(versions ...string) {
	now := time.Now()
	for _, v := range versions {
		m.appliedMigrations[v] = &domain.Migration{
			Version:   v,
			AppliedAt: &now,
			Status:    domain.MigrationStatusApplied,
		}
	}
}

func testMigrationsFS() fstest.MapFS {
	return fstest.MapFS{
		"001_create_users.sql":    {Data: []byte("CREATE TABLE users (id INT);")},
		"002_create_posts.sql":    {Data: []byte("-- posts\nCREATE TABLE posts (id INT);\nCREATE INDEX idx_posts_id ON posts (id);")},
		"003_create_comments.sql": {Data: []byte("CREATE TABLE comments (id INT);")},
		"README.md":               {Data: []byte("not a migration")},
	}
}

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("CREATE TABLE schema_migrations (version VARCHAR(14) PRIMARY KEY, applied_at DATETIME)").Error; err != nil {
		t.Fatalf("failed to create schema_migrations table: %v", err)
	}
	return db
}

func tableExists(t *testing.T, db *gorm.DB, table string) bool {
	t.Helper()
	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count).Error; err != nil {
		t.Fatalf("failed to check table %s: %v", table, err)
	}
	return count == 1
}

func TestMigrationService_ApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	service := NewMigrationService(newMockMigrationRepository(), db, testMigrationsFS())

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied, got %d", count)
	}

	for _, table := range []string{"users", "posts", "comments"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}

	var recorded int64
	if err := db.Raw("SELECT COUNT(*) FROM schema_migrations").Scan(&recorded).Error; err != nil {
		t.Fatalf("failed to count history: %v", err)
	}
	if recorded != 3 {
		t.Errorf("expected 3 history rows, got %d", recorded)
	}
}

func TestMigrationService_ApplyMigrations_AlreadyApplied(t *testing.T) {
	ctx := context.Background()
	repo := newMockMigrationRepository()
	repo.markApplied("001", "002")

	service := NewMigrationService(repo, setupTestDB(t), testMigrationsFS())

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	// 未適用のマイグレーションのみ実行される
	if count != 1 {
		t.Errorf("expected 1 migration applied, got %d", count)
	}
}

func TestMigrationService_ApplyMigrations_Error(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	fsys := testMigrationsFS()
	fsys["004_invalid.sql"] = &fstest.MapFile{Data: []byte("INVALID SQL SYNTAX;")}

	service := NewMigrationService(newMockMigrationRepository(), db, fsys)

	count, err := service.ApplyMigrations(ctx)
	if !errors.Is(err, domain.ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 migrations applied before failure, got %d", count)
	}
}

func TestMigrationService_InvalidFileName(t *testing.T) {
	fsys := fstest.MapFS{"create_users.sql": {Data: []byte("CREATE TABLE users (id INT);")}}
	service := NewMigrationService(newMockMigrationRepository(), setupTestDB(t), fsys)

	_, err := service.ApplyMigrations(context.Background())
	if !errors.Is(err, domain.ErrInvalidMigrationFile) {
		t.Errorf("expected ErrInvalidMigrationFile, got %v", err)
	}
}

func TestMigrationService_GetMigrationStatus(t *testing.T) {
	repo := newMockMigrationRepository()
	repo.markApplied("001")
	service := NewMigrationService(repo, setupTestDB(t), testMigrationsFS())

	migrations, err := service.GetMigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	expected := []struct {
		version string
		status  domain.MigrationStatus
	}{
		{"001", domain.MigrationStatusApplied},
		{"002", domain.MigrationStatusPending},
		{"003", domain.MigrationStatusPending},
	}
	for i, want := range expected {
		if migrations[i].Version != want.version || migrations[i].Status != want.status {
			t.Errorf("migration %d: expected %s/%s, got %s/%s", i, want.version, want.status, migrations[i].Version, migrations[i].Status)
		}
	}
	if migrations[0].AppliedAt == nil {
		t.Error("expected applied_at for applied migration")
	}
}

func TestMigrationService_EmbeddedSQLite(t *testing.T) {
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	fsys, err := migrations.ForDriver("sqlite")
	if err != nil {
		t.Fatalf("ForDriver failed: %v", err)
	}
	service := NewMigrationService(repository.NewMigrationRepository(db), db, fsys)

	count, err := service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 migrations applied, got %d", count)
	}
	for _, table := range []string{"profiles", "certificates"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}

	// 2回目は何も適用しない
	count, err = service.ApplyMigrations(ctx)
	if err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 migrations on second run, got %d", count)
	}

	status, err := service.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	for _, m := range status {
		if m.Status != domain.MigrationStatusApplied {
			t.Errorf("migration %s: expected applied, got %s", m.Version, m.Status)
		}
	}

	if _, err := migrations.ForDriver("oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
