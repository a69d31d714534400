// Package storage persists learner preferences and conversation transcripts.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sjawhar/parlo/internal/conversation"
)

const defaultProfileID = "default"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "parlo.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			native_language TEXT NOT NULL,
			target_language TEXT NOT NULL,
			topic TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create profiles table: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// LoadProfile returns the saved profile, or fallback when nothing has been
// saved yet. Fields missing from the saved row are filled from fallback.
func (s *SQLiteStore) LoadProfile(fallback conversation.Profile) (conversation.Profile, error) {
	row := s.db.QueryRow(
		`SELECT native_language, target_language, topic FROM profiles WHERE id = ?`,
		defaultProfileID,
	)

	var p conversation.Profile
	if err := row.Scan(&p.NativeLanguage, &p.TargetLanguage, &p.Topic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("query profile: %w", err)
	}

	if p.NativeLanguage == "" {
		p.NativeLanguage = fallback.NativeLanguage
	}
	if p.TargetLanguage == "" {
		p.TargetLanguage = fallback.TargetLanguage
	}
	if p.Topic == "" {
		p.Topic = fallback.Topic
	}
	return p, nil
}

func (s *SQLiteStore) SaveProfile(p conversation.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO profiles(id, native_language, target_language, topic, updated_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			native_language = excluded.native_language,
			target_language = excluded.target_language,
			topic = excluded.topic,
			updated_at = excluded.updated_at`,
		defaultProfileID,
		strings.TrimSpace(p.NativeLanguage),
		strings.TrimSpace(p.TargetLanguage),
		strings.TrimSpace(p.Topic),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
