package database

import (
	"fmt"
	"time"

	"warehouse-billing/internal/config"
	"warehouse-billing/internal/logger"
	"warehouse-billing/internal/model"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection opens the configured database and migrates the schema.
func NewConnection(cfg config.DBConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.NewGormLogger(log, gormlogger.Warn, 200*time.Millisecond),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "", "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	case "sqlite":
		db, err = OpenSQLite(cfg.SQLitePath, gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Driver != "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a pure-Go SQLite database. SQLite allows a single writer,
// so the pool is capped at one connection and transactions run one at a time.
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	}
	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates every table of the ledger and billing engine.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.StockBalance{},
		&model.StockTransaction{},
		&model.BillableService{},
		&model.PricePolicy{},
		&model.BillingEvent{},
		&model.ExchangeRate{},
		&model.TaxRule{},
		&model.Invoice{},
		&model.InvoiceItem{},
		&model.InvoiceSequence{},
		&model.InvoiceGenerationSlot{},
		&model.SettlementBatch{},
		&model.SettlementLine{},
		&model.SettlementReopenRequest{},
		&model.SettlementReopenLog{},
		&model.AuditLog{},
	)
}
