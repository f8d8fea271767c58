package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/divergence-scanner/pkg/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// ActiveSymbolsQuery selects the instrument list for one exchange
const ActiveSymbolsQuery = `
		SELECT symbol
		FROM symbolsmap
		WHERE is_active = 1 AND exchange = ?
		ORDER BY symbol
	`

// MySQLClient handles MySQL database operations
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(cfg *config.MySQLConfig, logger *logrus.Logger) (*MySQLClient, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	logger.WithField("dsn", fmt.Sprintf("%s:***@tcp(%s:%d)/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)).Debug("Connecting to MySQL")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return NewMySQLClientFromDB(db, logger), nil
}

// NewMySQLClientFromDB wraps an existing handle
func NewMySQLClientFromDB(db *sql.DB, logger *logrus.Logger) *MySQLClient {
	return &MySQLClient{
		db:     db,
		logger: logger.WithField("component", "mysql"),
	}
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// Health checks database health
func (mc *MySQLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return mc.db.PingContext(ctx)
}

// GetActiveSymbols returns the active symbols of an exchange, sorted
func (mc *MySQLClient) GetActiveSymbols(ctx context.Context, exchange string) ([]string, error) {
	rows, err := mc.db.QueryContext(ctx, ActiveSymbolsQuery, exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol at row %d: %w", len(symbols)+1, err)
		}
		if symbol = strings.TrimSpace(symbol); symbol != "" {
			symbols = append(symbols, symbol)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	mc.logger.WithFields(logrus.Fields{
		"exchange": exchange,
		"count":    len(symbols),
	}).Debug("Loaded active symbols")

	return symbols, nil
}
