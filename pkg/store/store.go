package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/saint0x/ggchangelog/pkg/changelog"
	"github.com/saint0x/ggchangelog/pkg/log"
	"github.com/saint0x/ggchangelog/pkg/models"
)

// ErrNotFound is returned when a repository or commit does not exist.
var ErrNotFound = errors.New("record not found")

// Config holds DB configuration
type Config struct {
	Path     string
	LogLevel logger.LogLevel
	Logger   *log.Logger
}

// Store persists repositories, their changelog and ingested commits.
type Store struct {
	db *gorm.DB
}

// Open opens the SQLite database and runs migrations
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Warn
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(false)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	gormLogger := logger.New(
		log.GormWriter{Logger: cfg.Logger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  cfg.LogLevel,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: SQLite serialises writers anyway and this avoids
	// "database is locked" under concurrent commit upserts.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// migrate runs all automigrations. Keep the model list in one place.
func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Repository{},
		&models.Commit{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var repositoryUpdateColumns = []string{
	"owner_avatar_url", "full_name", "html_url", "default_branch", "description",
	"stargazers_count", "language", "topics", "license_name", "license_url",
	"host_updated_at", "updated_at",
}

// UpsertRepository inserts or refreshes the host metadata of a repository
// keyed by the lower-cased (owner, name). The stored changelog and
// lastGeneratedAt are left untouched. The returned row is the stored state
// after the write.
func (s *Store) UpsertRepository(ctx context.Context, repo *models.Repository) (*models.Repository, error) {
	if repo == nil || repo.Owner == "" || repo.Name == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	if repo.FullName == "" {
		repo.FullName = repo.Key()
	}

	var stored models.Repository
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := *repo
		row.Owner, row.Name = canonicalName(repo.Owner, repo.Name)
		row.ID = 0
		row.Changelog = nil
		row.LastGeneratedAt = nil
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns(repositoryUpdateColumns),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("owner = ? AND name = ?", row.Owner, row.Name).Take(&stored).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert repository %s: %w", repo.Key(), err)
	}
	return &stored, nil
}

var commitUpdateColumns = []string{
	"repository_id", "message", "author", "date", "branch_name",
	"files", "additions", "deletions", "pr", "updated_at",
}

// UpsertCommit stores a commit keyed by its SHA.
func (s *Store) UpsertCommit(ctx context.Context, commit *models.Commit) error {
	if commit == nil || commit.SHA == "" {
		return fmt.Errorf("commit sha is required")
	}
	if commit.RepositoryID == 0 {
		return fmt.Errorf("commit %s has no repository", commit.SHA)
	}

	row := *commit
	row.ID = 0
	row.Repository = nil
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sha"}},
		DoUpdates: clause.AssignmentColumns(commitUpdateColumns),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to upsert commit %s: %w", commit.SHA, err)
	}
	return nil
}

// SaveChangelog replaces the stored changelog of a repository and stamps
// lastGeneratedAt in a single update.
func (s *Store) SaveChangelog(ctx context.Context, repoID uint, cl *changelog.Changelog, generatedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Repository{ID: repoID}).
		Select("changelog", "last_generated_at", "updated_at").
		Updates(&models.Repository{
			Changelog:       cl,
			LastGeneratedAt: &generatedAt,
			UpdatedAt:       generatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save changelog: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to save changelog for repository %d: %w", repoID, ErrNotFound)
	}
	return nil
}

// GetRepository loads a repository by ID.
func (s *Store) GetRepository(ctx context.Context, id uint) (*models.Repository, error) {
	var repo models.Repository
	if err := s.db.WithContext(ctx).First(&repo, id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &repo, nil
}

// FindRepository loads a repository by owner and name, ignoring case.
func (s *Store) FindRepository(ctx context.Context, owner, name string) (*models.Repository, error) {
	owner, name = canonicalName(owner, name)
	var repo models.Repository
	if err := s.db.WithContext(ctx).Where("owner = ? AND name = ?", owner, name).Take(&repo).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &repo, nil
}

// ListRepositories returns all repositories, most recently generated first.
// Repositories that never completed a generation come last.
func (s *Store) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	var repos []models.Repository
	err := s.db.WithContext(ctx).
		Order("last_generated_at IS NULL, last_generated_at desc, id asc").
		Find(&repos).Error
	if err != nil {
		return nil, err
	}
	return repos, nil
}

// ListCommits returns stored commits of a repository, newest first.
func (s *Store) ListCommits(ctx context.Context, repoID uint, limit, offset int) ([]models.Commit, error) {
	if limit <= 0 {
		limit = 100
	}
	var commits []models.Commit
	err := s.db.WithContext(ctx).
		Where("repository_id = ?", repoID).
		Order("date desc, id asc").
		Limit(limit).Offset(offset).
		Find(&commits).Error
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// CountCommits returns how many commits are stored for a repository.
func (s *Store) CountCommits(ctx context.Context, repoID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Commit{}).Where("repository_id = ?", repoID).Count(&n).Error
	return n, err
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func canonicalName(owner, name string) (string, string) {
	return strings.ToLower(strings.TrimSpace(owner)), strings.ToLower(strings.TrimSpace(name))
}
