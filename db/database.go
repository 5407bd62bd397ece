package db

import (
	"database/sql"
	"fmt"

	"TrackHound/config"
	"TrackHound/logger"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// ConnectDB establishes the raw SQL connection used by the suggestion
// repository for its upserts and prefix scans.
func ConnectDB(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to database")
	return sqlDB, nil
}

// InitDB creates the raw-SQL tables if they do not exist. GORM-managed
// tables are migrated separately via AutoMigrate.
func InitDB(sqlDB *sql.DB) error {
	if err := createPopularSearchesTable(sqlDB); err != nil {
		return err
	}
	logger.Info("database schema initialized")
	return nil
}

func createPopularSearchesTable(sqlDB *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS popular_searches (
		query VARCHAR(255) NOT NULL PRIMARY KEY,
		hits INT NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	if _, err := sqlDB.Exec(query); err != nil {
		return fmt.Errorf("failed to create popular_searches table: %w", err)
	}
	return nil
}
