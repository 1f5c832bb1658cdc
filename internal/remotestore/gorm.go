/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package remotestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-hall-sync-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordRow struct {
	Id              uint      `gorm:"primaryKey"`
	RecordType      string    `gorm:"size:32;not null;uniqueIndex:idx_record_type_key"`
	RecordKey       string    `gorm:"size:191;not null;uniqueIndex:idx_record_type_key"`
	Body            string    `gorm:"type:text;not null"`
	RecordUpdatedAt time.Time `gorm:"index"`
	SyncedAt        time.Time
}

func (recordRow) TableName() string {
	return collectionName
}

func (r recordRow) toModel() models.SyncedRecord {
	return models.SyncedRecord{
		Type:      models.SyncType(r.RecordType),
		Key:       r.RecordKey,
		Body:      []byte(r.Body),
		UpdatedAt: r.RecordUpdatedAt.UTC(),
		SyncedAt:  r.SyncedAt.UTC(),
	}
}

// GormRepository keeps synced records in a SQL database through gorm
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

func NewGormRepository(dialector gorm.Dialector) (*GormRepository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access repository pool: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// sqlite allows a single writer; in-memory databases also live per connection
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate repository schema: %w", err)
	}

	zap.L().Info("Sync repository ready", zap.String("dialect", dialector.Name()))
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) Upsert(ctx context.Context, rec models.SyncedRecord) (bool, error) {
	written := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing recordRow
		err := tx.Where("record_type = ? AND record_key = ?", string(rec.Type), rec.Key).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := recordRow{
				RecordType:      string(rec.Type),
				RecordKey:       rec.Key,
				Body:            string(rec.Body),
				RecordUpdatedAt: rec.UpdatedAt.UTC(),
				SyncedAt:        rec.SyncedAt.UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			written = true
			return nil
		}
		if err != nil {
			return err
		}

		if !rec.UpdatedAt.After(existing.RecordUpdatedAt) {
			return nil
		}
		err = tx.Model(&existing).Updates(map[string]interface{}{
			"body":              string(rec.Body),
			"record_updated_at": rec.UpdatedAt.UTC(),
			"synced_at":         rec.SyncedAt.UTC(),
		}).Error
		if err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s %s: %w", rec.Type, rec.Key, err)
	}
	return written, nil
}

func (r *GormRepository) List(ctx context.Context, typ models.SyncType, limit int) ([]models.SyncedRecord, error) {
	var rows []recordRow
	q := r.db.WithContext(ctx).Where("record_type = ?", string(typ)).Order("record_updated_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", typ, err)
	}

	out := make([]models.SyncedRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

func (r *GormRepository) Get(ctx context.Context, typ models.SyncType, key string) (*models.SyncedRecord, error) {
	var row recordRow
	err := r.db.WithContext(ctx).Where("record_type = ? AND record_key = ?", string(typ), key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrRecordNotFound, typ, key)
	}
	if err != nil {
		return nil, err
	}
	rec := row.toModel()
	return &rec, nil
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
