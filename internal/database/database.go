package database

import (
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	_ "modernc.org/sqlite"
)

var (
	once    sync.Once
	shared  *gorm.DB
	onceErr error
)

// Connect opens a fresh connection. PostgreSQL for deployment, SQLite
// for local development and tests.
func Connect(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		log.Println("Connecting to PostgreSQL...")
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	}

	log.Println("Using SQLite for local development:", dsn)

	return gorm.Open(
		gormsqlite.New(gormsqlite.Config{
			DriverName: "sqlite",
			DSN:        dsn,
		}),
		&gorm.Config{},
	)
}

// Get returns the process-wide handle, connecting on first call.
// Concurrent first callers converge on a single connection attempt; the
// outcome, success or failure, is what every caller sees.
func Get(dsn string) (*gorm.DB, error) {
	once.Do(func() {
		shared, onceErr = Connect(dsn)
	})
	return shared, onceErr
}
