package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"chatcore/internal/cerrors"
	"chatcore/internal/config"
)

// recordRow is the single table behind the durable backend: one row per
// record, the document as jsonb, the version for optimistic commits.
type recordRow struct {
	ID        string `gorm:"primaryKey;size:255"`
	Doc       []byte `gorm:"type:jsonb;not null"`
	Version   int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName specifies the table name for record rows.
func (recordRow) TableName() string {
	return "records"
}

// GormBackend is the durable record backend on gorm/postgres. Version
// checks run inside one database transaction per commit, so a conflicted
// commit applies nothing.
type GormBackend struct {
	db *gorm.DB
}

// InitDB opens the database connection using the provided configuration.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Type != "postgres" {
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	var dsnParts []string
	dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
	dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
	dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
	dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
	if cfg.Password != "" {
		dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
	}
	dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(strings.Join(dsnParts, " ")), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewGormBackend migrates the records table and returns the backend.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrate records table: %w", err)
	}
	return &GormBackend{db: db}, nil
}

// Get returns a single document, or cerrors.ErrNotFound.
func (g *GormBackend) Get(ctx context.Context, id string) (*Document, error) {
	var row recordRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cerrors.NotFoundf("record %s", id)
		}
		return nil, err
	}
	return &Document{ID: row.ID, Data: json.RawMessage(row.Doc), Version: row.Version}, nil
}

// Load returns the current documents for ids; absent ids are omitted.
func (g *GormBackend) Load(ctx context.Context, ids []string) (map[string]*Document, error) {
	var rows []recordRow
	if err := g.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*Document, len(rows))
	for _, row := range rows {
		out[row.ID] = &Document{ID: row.ID, Data: json.RawMessage(row.Doc), Version: row.Version}
	}
	return out, nil
}

// Commit applies writes and deletes in one database transaction. Every
// conditional statement carries the read version in its WHERE clause, so
// a row that moved since the read makes the statement touch zero rows
// and the whole transaction rolls back with ErrVersionConflict.
func (g *GormBackend) Commit(ctx context.Context, readVersions map[string]int64, writes map[string]json.RawMessage, deletes map[string]struct{}) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// Validate records that were only read. Written and deleted ids
		// get their version check from their own statements below.
		for id, version := range readVersions {
			if _, ok := writes[id]; ok {
				continue
			}
			if _, ok := deletes[id]; ok {
				continue
			}
			if version == 0 {
				var count int64
				if err := tx.Model(&recordRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return ErrVersionConflict
				}
				continue
			}
			res := tx.Model(&recordRow{}).
				Where("id = ? AND version = ?", id, version).
				Update("version", version)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		}

		for id, data := range writes {
			version := readVersions[id]
			if version == 0 {
				row := recordRow{ID: id, Doc: data, Version: 1, UpdatedAt: now}
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					// Someone created it since our read.
					return ErrVersionConflict
				}
				continue
			}
			res := tx.Model(&recordRow{}).
				Where("id = ? AND version = ?", id, version).
				Updates(map[string]any{"doc": []byte(data), "version": version + 1, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		}

		for id := range deletes {
			version := readVersions[id]
			if version == 0 {
				// Absent at read time and staged for deletion anyway.
				continue
			}
			res := tx.Where("id = ? AND version = ?", id, version).Delete(&recordRow{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrVersionConflict
			}
		}
		return nil
	})
}

// Close releases the underlying connection pool.
func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
