package binlog

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/go-sql-driver/mysql"

	"binlog-router/internal/model"
)

// SourceConfig describes the MySQL server to replicate from.
type SourceConfig struct {
	DSN      string
	ServerID uint32
	Flavor   string // mysql or mariadb
	Host     string
	Port     uint16
	User     string
	Password string
}

// ParseSourceConfig fills connection settings from a go-sql-driver DSN,
// e.g. "repl:secret@tcp(db:3306)/".
func ParseSourceConfig(dsn string, serverID uint32, flavor string) (SourceConfig, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("parse mysql dsn: %w", err)
	}
	if parsed.Net != "tcp" {
		return SourceConfig{}, fmt.Errorf("binlog replication needs a tcp address, got %q", parsed.Net)
	}
	host, portStr, err := net.SplitHostPort(parsed.Addr)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("invalid mysql address %q: %w", parsed.Addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return SourceConfig{}, fmt.Errorf("invalid port number %q: %w", portStr, err)
	}
	if serverID == 0 {
		return SourceConfig{}, fmt.Errorf("server id must be non-zero")
	}
	if flavor == "" {
		flavor = "mysql"
	}
	return SourceConfig{
		DSN:      dsn,
		ServerID: serverID,
		Flavor:   flavor,
		Host:     host,
		Port:     uint16(port),
		User:     parsed.User,
		Password: parsed.Passwd,
	}, nil
}

func (c SourceConfig) syncerConfig() replication.BinlogSyncerConfig {
	return replication.BinlogSyncerConfig{
		ServerID: c.ServerID,
		Flavor:   c.Flavor,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
	}
}

// CurrentPosition asks the server for its latest binlog position.
func CurrentPosition(ctx context.Context, dsn string) (model.Position, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return model.Position{}, fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()

	// SHOW MASTER STATUS was renamed in MySQL 8.4.
	var lastErr error
	for _, query := range []string{"SHOW BINARY LOG STATUS", "SHOW MASTER STATUS"} {
		pos, err := queryPosition(ctx, db, query)
		if err == nil {
			return pos, nil
		}
		lastErr = err
	}
	return model.Position{}, lastErr
}

func queryPosition(ctx context.Context, db *sql.DB, query string) (model.Position, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return model.Position{}, fmt.Errorf("%s: %w", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.Position{}, fmt.Errorf("%s columns: %w", query, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Position{}, fmt.Errorf("%s: %w", query, err)
		}
		return model.Position{}, fmt.Errorf("%s returned no rows (is binary logging enabled?)", query)
	}
	// File and Position come first; the remaining columns vary by server version.
	var (
		file string
		pos  uint32
	)
	dest := make([]any, len(cols))
	dest[0], dest[1] = &file, &pos
	for i := 2; i < len(dest); i++ {
		dest[i] = new(sql.RawBytes)
	}
	if err := rows.Scan(dest...); err != nil {
		return model.Position{}, fmt.Errorf("%s scan: %w", query, err)
	}
	return model.Position{Name: file, Pos: pos}, nil
}
