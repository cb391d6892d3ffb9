// Package db persists periodic EquitySnapshot records to MySQL via
// GORM, the same way the teacher repo's MySQLRecorder persists
// CurrentAssetSnapshot rows, repurposed for this module's
// wallet+position valuation instead of a four-asset DEX farming
// position.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clpagent"
)

// EquitySnapshotRecord is the database model for clpagent.EquitySnapshot.
type EquitySnapshotRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp       time.Time `gorm:"index;not null"`
	WalletWeth      string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	WalletUsdc      string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	PositionWeth    string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	PositionUsdc    string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	PendingFees0    string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	PendingFees1    string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	PriceUsdPerWeth string    `gorm:"type:varchar(78);not null;comment:big.Float as decimal string"`
	TotalUsd        string    `gorm:"type:varchar(78);not null;comment:big.Float as decimal string"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (EquitySnapshotRecord) TableName() string {
	return "equity_snapshots"
}

// EquityRecorder persists EquitySnapshot history to MySQL for offline
// reporting; the control loop itself never reads it back.
type EquityRecorder struct {
	db *gorm.DB
}

// NewEquityRecorder opens a MySQL connection and migrates the schema.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewEquityRecorder(dsn string) (*EquityRecorder, error) {
	gormDB, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewEquityRecorderWithDB(gormDB)
}

// NewEquityRecorderWithDB wraps an existing GORM DB instance, migrating
// the schema before returning.
func NewEquityRecorderWithDB(gormDB *gorm.DB) (*EquityRecorder, error) {
	if err := gormDB.AutoMigrate(&EquitySnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &EquityRecorder{db: gormDB}, nil
}

// RecordSnapshot inserts one EquitySnapshot row stamped at timestamp.
func (r *EquityRecorder) RecordSnapshot(timestamp time.Time, snapshot clpagent.EquitySnapshot) error {
	priceStr := "0"
	if snapshot.PriceUsdPerWeth != nil {
		priceStr = snapshot.PriceUsdPerWeth.Text('f', 8)
	}
	totalStr := "0"
	if snapshot.TotalUsd != nil {
		totalStr = snapshot.TotalUsd.Text('f', 8)
	}

	record := EquitySnapshotRecord{
		Timestamp:       timestamp,
		WalletWeth:      bigIntToString(snapshot.WalletWeth),
		WalletUsdc:      bigIntToString(snapshot.WalletUsdc),
		PositionWeth:    bigIntToString(snapshot.PositionWeth),
		PositionUsdc:    bigIntToString(snapshot.PositionUsdc),
		PendingFees0:    bigIntToString(snapshot.PendingFees0),
		PendingFees1:    bigIntToString(snapshot.PendingFees1),
		PriceUsdPerWeth: priceStr,
		TotalUsd:        totalStr,
	}

	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record equity snapshot: %w", result.Error)
	}
	return nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *EquityRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *EquityRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

// GetLatestSnapshot retrieves the most recently recorded snapshot.
func (r *EquityRecorder) GetLatestSnapshot() (*EquitySnapshotRecord, error) {
	var record EquitySnapshotRecord
	if result := r.db.Order("timestamp DESC").First(&record); result.Error != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", result.Error)
	}
	return &record, nil
}

// GetSnapshotsByTimeRange retrieves snapshots within [start, end].
func (r *EquityRecorder) GetSnapshotsByTimeRange(start, end time.Time) ([]EquitySnapshotRecord, error) {
	var records []EquitySnapshotRecord
	result := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get snapshots by time range: %w", result.Error)
	}
	return records, nil
}

// CountSnapshots returns the total number of recorded snapshots.
func (r *EquityRecorder) CountSnapshots() (int64, error) {
	var count int64
	if result := r.db.Model(&EquitySnapshotRecord{}).Count(&count); result.Error != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", result.Error)
	}
	return count, nil
}
