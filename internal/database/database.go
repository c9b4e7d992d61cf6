package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/sijms/go-ora/v2"
	log "github.com/sirupsen/logrus"

	"shiftscale/internal/config"
	"shiftscale/internal/layer"
	"shiftscale/internal/types"
)

// Supported database/sql driver names.
const (
	DriverOracle = "oracle"
	DriverSQLite = "sqlite3"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dsn builds a properly encoded connection string for Oracle Autonomous Database
func dsn(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		// Use wallet-based mTLS connection
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(username, password), // escapes automatically
		Host:     host + ":" + port,
		Path:     "/" + service, // keep full service name
		RawQuery: "ssl=true",    // ADB requires TCPS on 1522
	}).String()
}

// DBConfig holds database connection configuration
type DBConfig struct {
	Driver         string
	Host           string
	Port           string
	Service        string
	Username       string
	Password       string
	WalletLocation string
	// Path is the database file when Driver is sqlite3.
	Path string
}

// Database holds the database connection and configuration
type Database struct {
	db     *sql.DB
	config DBConfig
}

// NewDatabase opens and pings a connection for config.
func NewDatabase(config DBConfig) (*Database, error) {
	var driver, connStr string
	switch config.Driver {
	case "", DriverOracle:
		driver = DriverOracle
		connStr = dsn(config.Username, config.Password, config.Host, config.Port, config.Service, config.WalletLocation)
	case DriverSQLite:
		driver = DriverSQLite
		connStr = config.Path
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
	config.Driver = driver

	log.WithFields(log.Fields{"driver": driver, "host": config.Host, "service": config.Service}).Info("connecting to database")

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if driver == DriverSQLite {
		// One writer; keeps in-memory databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:     db,
		config: config,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// placeholder returns the n-th (1-based) bind parameter for the driver.
func (d *Database) placeholder(n int) string {
	if d.config.Driver == DriverOracle {
		return fmt.Sprintf(":%d", n)
	}
	return "?"
}

func checkTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// EnsurePointTable creates table with the OBJECTID, X, Y, Z columns if it
// does not exist yet. Only used with sqlite; Oracle tables are provisioned
// by the DBA.
func (d *Database) EnsurePointTable(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if d.config.Driver != DriverSQLite {
		return fmt.Errorf("EnsurePointTable is only supported for %s", DriverSQLite)
	}
	_, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		OBJECTID INTEGER PRIMARY KEY,
		X REAL NOT NULL,
		Y REAL NOT NULL,
		Z REAL NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// InsertPoints adds features to table in one transaction.
func (d *Database) InsertPoints(ctx context.Context, table string, points map[types.FeatureID]types.Coord) error {
	if err := checkTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (OBJECTID, X, Y, Z) VALUES (%s, %s, %s, %s)",
		table, d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4))
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for id, c := range points {
			if _, err := tx.ExecContext(ctx, query, int64(id), c.X, c.Y, c.Z); err != nil {
				return fmt.Errorf("failed to insert feature %d: %w", id, err)
			}
		}
		return nil
	})
}

// LoadPointLayer reads every row of table into an in-memory point layer.
func (d *Database) LoadPointLayer(ctx context.Context, table string, system types.CoordSystem) (*TableLayer, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := `SELECT OBJECTID, X, Y, Z FROM ` + table

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query point table %s: %w", table, err)
	}
	defer rows.Close()

	mem := layer.NewMemory(types.LayerID(strings.ToLower(table)), table, system)
	for rows.Next() {
		var (
			id   int64
			x, y float64
			z    sql.NullFloat64
		)
		if err := rows.Scan(&id, &x, &y, &z); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		mem.Put(types.FeatureID(id), types.Coord{X: x, Y: y, Z: z.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read point table %s: %w", table, err)
	}

	log.WithFields(log.Fields{"table": table, "features": mem.Len()}).Info("loaded point table")
	return &TableLayer{Memory: mem, db: d, table: table}, nil
}

// SavePoints writes the coordinates back to table. Every update runs in one
// transaction; a missing row or failed statement rolls the whole save back.
func (d *Database) SavePoints(ctx context.Context, table string, points map[types.FeatureID]types.Coord) error {
	if err := checkTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET X = %s, Y = %s, Z = %s WHERE OBJECTID = %s",
		table, d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4))

	return d.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare update: %w", err)
		}
		defer stmt.Close()

		for id, c := range points {
			res, err := stmt.ExecContext(ctx, c.X, c.Y, c.Z, int64(id))
			if err != nil {
				return fmt.Errorf("failed to update feature %d: %w", id, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("failed to update feature %d: no such row in %s", id, table)
			}
		}
		return nil
	})
}

func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithError(rbErr).Error("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// TableLayer is a point layer loaded from a database table.
type TableLayer struct {
	*layer.Memory
	db    *Database
	table string
}

// Table is the backing table name.
func (t *TableLayer) Table() string { return t.table }

// Save writes every feature of the layer back to its table.
func (t *TableLayer) Save(ctx context.Context) error {
	ids := t.IDs()
	pts, err := t.Points(ids)
	if err != nil {
		return err
	}
	return t.db.SavePoints(ctx, t.table, pts)
}

// LoadDatabaseConfig loads database configuration from environment variables
func LoadDatabaseConfig() DBConfig {
	// Try to load from .env file first
	config.LoadEnvFile(".env")

	return DBConfig{
		Driver:         config.GetEnvOrDefault("DB_DRIVER", DriverOracle),
		Host:           config.GetEnvOrDefault("DB_HOST", "localhost"),
		Port:           config.GetEnvOrDefault("DB_PORT", "1521"),
		Service:        config.GetEnvOrDefault("DB_SERVICE", "XE"),
		Username:       config.GetEnvOrDefault("DB_USERNAME", ""),
		Password:       config.GetEnvOrDefault("DB_PASSWORD", ""),
		WalletLocation: config.GetEnvOrDefault("DB_WALLET_LOCATION", ""),
		Path:           config.GetEnvOrDefault("DB_PATH", "shiftscale.db"),
	}
}
