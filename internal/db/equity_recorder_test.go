package db

import (
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"clpagent"
)

func TestEquityRecorder_RecordSnapshot(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `equity_snapshots`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recorder := &EquityRecorder{db: gormDB}

	snapshot := clpagent.EquitySnapshot{
		WalletWeth:      big.NewInt(1_000_000_000_000_000_000),
		WalletUsdc:      big.NewInt(2_000_000),
		PositionWeth:    big.NewInt(500_000_000_000_000_000),
		PositionUsdc:    big.NewInt(1_500_000),
		PendingFees0:    big.NewInt(100),
		PendingFees1:    big.NewInt(200),
		PriceUsdPerWeth: big.NewFloat(3200.50),
		TotalUsd:        big.NewFloat(8000.25),
	}

	require.NoError(t, recorder.RecordSnapshot(time.Now(), snapshot))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBigIntToString(t *testing.T) {
	assert.Equal(t, "0", bigIntToString(nil))
	assert.Equal(t, "0", bigIntToString(big.NewInt(0)))
	assert.Equal(t, "123456789", bigIntToString(big.NewInt(123456789)))
}

func TestEquitySnapshotRecord_TableName(t *testing.T) {
	assert.Equal(t, "equity_snapshots", EquitySnapshotRecord{}.TableName())
}
