package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const connectAttempts = 10

// ConnectPostgres opens the database, retrying while it comes up, and
// migrates the given models. Cancelling ctx stops the retry loop.
func ConnectPostgres(ctx context.Context, dsn string, logger *zap.Logger, models ...interface{}) (*gorm.DB, error) {
	return connect(ctx, postgres.Open(dsn), logger, connectAttempts, func(attempt int) time.Duration {
		return time.Duration(attempt) * 2 * time.Second
	}, models...)
}

func connect(ctx context.Context, dialector gorm.Dialector, logger *zap.Logger, attempts int, backoff func(int) time.Duration, models ...interface{}) (*gorm.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			if sqlDB, poolErr := db.DB(); poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}
			logger.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))

			if len(models) > 0 {
				if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
					return nil, fmt.Errorf("auto-migrate: %w", err)
				}
			}
			return db, nil
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		logger.Warn("PostgreSQL not reachable, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to PostgreSQL: %w", ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
	return nil, fmt.Errorf("connect to PostgreSQL after %d attempts: %w", attempts, lastErr)
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
