// Package store provides durable persistence for pairs, senders, mappings,
// block lists and subscriptions, with in-memory caches on the hot paths.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sunil55999/Zorox/internal/logger"
	"github.com/sunil55999/Zorox/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// StoreError wraps persistence failures so callers can distinguish them from
// domain errors and retry idempotent mutations.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return &StoreError{Op: op, Err: err}
}

// Store owns all persisted entities. Reads may be concurrent; writes are
// serialized by the underlying database. The source_chat→pairs index and the
// blocked-word sets are cached copy-on-write.
type Store struct {
	db  *gorm.DB
	log *logger.Logger

	// sqlite file path, empty for postgres
	sqlitePath string

	pairIndex pairIndex
	wordCache wordCache
}

// Open connects to the configured database and migrates the schema.
// databaseURL is either a sqlite file path or a postgres:// URL.
func Open(databaseURL string, log *logger.Logger) (*Store, error) {
	var dialector gorm.Dialector
	sqlitePath := ""
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
	} else {
		if dir := filepath.Dir(databaseURL); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		sqlitePath = databaseURL
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Pair{},
		&models.Mapping{},
		&models.Sender{},
		&models.BlockedWord{},
		&models.BlockedImage{},
		&models.Subscription{},
		&models.Setting{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &Store{db: db, log: log, sqlitePath: sqlitePath}
	if err := s.reloadPairIndex(); err != nil {
		return nil, err
	}
	if err := s.reloadWordCache(); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying gorm handle for session persistence layers.
func (s *Store) DB() *gorm.DB { return s.db }

// GetSetting returns a settings value, or the default when absent.
func (s *Store) GetSetting(key, defaultVal string) (string, error) {
	var row models.Setting
	err := s.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultVal, nil
	}
	if err != nil {
		return defaultVal, wrap("get setting", err)
	}
	return row.Value, nil
}

// SetSetting upserts a settings value.
func (s *Store) SetSetting(key, value string) error {
	row := models.Setting{Key: key, Value: value}
	err := s.db.Save(&row).Error
	return wrap("set setting", err)
}

// Backup copies the sqlite database file into dir. On postgres backends this
// is a no-op with a warning: backups are the operator's concern there.
func (s *Store) Backup(dir string) (string, error) {
	if s.sqlitePath == "" {
		s.log.Warn().Msg("store: backup requested on non-sqlite backend, skipping")
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", wrap("backup", err)
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(s.sqlitePath), time.Now().Format("20060102-150405"))
	dst := filepath.Join(dir, name)

	src, err := os.Open(s.sqlitePath)
	if err != nil {
		return "", wrap("backup", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", wrap("backup", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", wrap("backup", err)
	}
	return dst, nil
}

// Cleanup removes stale rows: blocked images never triggered and older than
// the cutoff, and mappings older than the cutoff. Returns rows removed.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	var total int64
	res := s.db.Where("usage_count = 0 AND created_at < ?", cutoff).Delete(&models.BlockedImage{})
	if res.Error != nil {
		return total, wrap("cleanup blocked images", res.Error)
	}
	total += res.RowsAffected

	res = s.db.Where("created_at < ?", cutoff).Delete(&models.Mapping{})
	if res.Error != nil {
		return total, wrap("cleanup mappings", res.Error)
	}
	total += res.RowsAffected
	return total, nil
}
