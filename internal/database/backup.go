package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shareit/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "shareit_"

// BackupService periodically snapshots a file-backed sqlite store with VACUUM INTO.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Enabled reports whether backups can run against this store.
func (s *BackupService) Enabled() bool {
	return s.config.Enabled && s.db.driver == DriverSQLite && s.db.path != ":memory:"
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := 24 * time.Hour
	if s.config.Schedule != "" {
		if d, err := time.ParseDuration(s.config.Schedule); err == nil {
			interval = d
		} else {
			s.logger.Warn().Err(err).Str("schedule", s.config.Schedule).Msg("Failed to parse backup schedule, using default 24h")
		}
	}
	s.logger.Info().Dur("interval", interval).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes a consistent copy of the store and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath := filepath.Join(s.config.StoragePath,
		fmt.Sprintf("%s%s.db", backupPrefix, time.Now().UTC().Format("20060102_150405.000")))
	if strings.ContainsRune(backupPath, '\'') {
		return "", fmt.Errorf("backup path must not contain quotes: %s", backupPath)
	}

	s.logger.Info().Str("path", backupPath).Msg("Performing database backup")
	if _, err := s.db.conn.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", backupPath)); err != nil {
		return "", fmt.Errorf("failed to vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return backupPath, nil
}

func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
			}
		}
	}
}
