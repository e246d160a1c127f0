// Package db provides GORM connections and schema migration for the
// Deskhand ticket store.
package db

import (
	"fmt"

	sqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormConfig silences GORM's query logging; Deskhand does its own.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
}

// ConnectSQLite opens a GORM connection to a SQLite database file.
// Pass ":memory:" for an in-memory database.
func ConnectSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db: sqlite path is required")
	}
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect sqlite %s: %w", path, err)
	}
	return gdb, nil
}

// MySQLDSN builds a MySQL DSN from connection settings.
func MySQLDSN(host string, port int, user, password, database string) string {
	cfg := sqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.User = user
	cfg.Passwd = password
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ConnectMySQL opens a GORM connection to a MySQL database.
func ConnectMySQL(host string, port int, user, password, database string) (*gorm.DB, error) {
	dsn := MySQLDSN(host, port, user, password, database)
	gdb, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return gdb, nil
}
